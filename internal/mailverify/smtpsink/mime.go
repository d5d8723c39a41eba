package smtpsink

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// parsedMail is the subset of a MIME message the resolver needs.
type parsedMail struct {
	From    string
	To      string
	Subject string
	Body    string
}

// parseMail decodes headers and concatenates every text part.
func parseMail(raw []byte) (parsedMail, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return parsedMail{}, fmt.Errorf("parse mail: %w", err)
	}

	out := parsedMail{
		From:    decodeHeader(msg.Header.Get("From")),
		To:      decodeHeader(msg.Header.Get("To")),
		Subject: decodeHeader(msg.Header.Get("Subject")),
	}

	var body strings.Builder
	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil {
		mediaType, params = "text/plain", nil
	}
	if err := collectParts(msg.Body, mediaType, params, msg.Header.Get("Content-Transfer-Encoding"), &body); err != nil {
		return parsedMail{}, err
	}
	out.Body = body.String()
	return out, nil
}

func collectParts(r io.Reader, mediaType string, params map[string]string, cte string, body *strings.Builder) error {
	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("multipart message without boundary")
		}
		mr := multipart.NewReader(r, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("parse multipart: %w", err)
			}
			if disp, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition")); disp == "attachment" {
				continue
			}
			pt, pp, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
			if err != nil {
				pt, pp = "text/plain", nil
			}
			if err := collectParts(part, pt, pp, part.Header.Get("Content-Transfer-Encoding"), body); err != nil {
				return err
			}
		}
	}

	if !strings.HasPrefix(mediaType, "text/") {
		return nil
	}
	text, err := decodeBody(r, cte, params["charset"])
	if err != nil {
		return nil
	}
	body.WriteString(text)
	return nil
}

// decodeBody undoes the transfer encoding and converts legacy Korean
// charsets to UTF-8.
func decodeBody(r io.Reader, transferEncoding, charset string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if enc := charsetEncoding(charset); enc != nil {
		if converted, _, err := transform.Bytes(enc.NewDecoder(), data); err == nil {
			data = converted
		}
	}
	return string(data), nil
}

func charsetEncoding(charset string) encoding.Encoding {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "euc-kr", "ks_c_5601-1987", "cp949":
		return korean.EUCKR
	}
	return nil
}

var wordDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		if enc := charsetEncoding(charset); enc != nil {
			return transform.NewReader(input, enc.NewDecoder()), nil
		}
		return nil, fmt.Errorf("unhandled charset %q", charset)
	},
}

func decodeHeader(value string) string {
	if value == "" {
		return value
	}
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

package mailverify

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// anchorTextKeywords rank verification buttons by how specific their label is.
var anchorTextKeywords = []*regexp.Regexp{
	regexp.MustCompile(`이메일\s*인증`),
	regexp.MustCompile(`인증`),
	regexp.MustCompile(`(?i)verification`),
	regexp.MustCompile(`(?i)confirm`),
}

var redirectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)data-saferedirecturl="[^"]*url\?q=([^"&]*)`),
	regexp.MustCompile(`(?i)https://www\.google\.com/url\?q=([^"&]*)`),
}

// codePatterns are tried in order; the first that yields a code wins.
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile(`인증\s*코드\s*(\d{6})\b`),
	regexp.MustCompile(`>\s*(\d{6})\s*<`),
	regexp.MustCompile(`코드[^\d]*(\d{6})\b`),
}

var bareCodePattern = regexp.MustCompile(`\b(\d{6})\b`)

// LinkExtractor pulls the verification link out of a message body. Domain
// is the platform's name as it appears in its links' host.
type LinkExtractor struct {
	Domain      string
	domainLinks []*regexp.Regexp
}

// NewLinkExtractor compiles the domain-specific link patterns.
func NewLinkExtractor(domain string) *LinkExtractor {
	d := regexp.QuoteMeta(strings.ToLower(domain))
	e := &LinkExtractor{Domain: strings.ToLower(domain)}
	for _, route := range []string{"signup-complete", "verify", "confirm", "auth", "key="} {
		e.domainLinks = append(e.domainLinks,
			regexp.MustCompile(`(?i)https://[^"\s<>]*`+d+`[^"\s<>]*`+regexp.QuoteMeta(route)+`[^"\s<>]*`))
	}
	return e
}

// Extract returns the verification link in body, or "" when there is none.
// Candidates are searched from most to least specific: labelled buttons,
// platform links with a verification route, provider redirect wrappers and
// finally every anchor in the document.
func (e *LinkExtractor) Extract(body string) string {
	anchors := parseAnchors(body)

	for _, kw := range anchorTextKeywords {
		for _, a := range anchors {
			if a.href != "" && kw.MatchString(a.text) {
				return a.href
			}
		}
	}

	for _, re := range e.domainLinks {
		for _, m := range re.FindAllString(body, -1) {
			link := html.UnescapeString(m)
			if e.hostMatches(link) {
				return link
			}
		}
	}

	for _, re := range redirectPatterns {
		m := re.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		link, err := url.QueryUnescape(m[1])
		if err != nil {
			continue
		}
		if e.looksLikeVerification(link, "signup-complete", "verify", "key=") {
			return link
		}
	}

	for _, a := range anchors {
		if e.looksLikeVerification(a.href, "signup-complete", "verify", "confirm", "key=") {
			return a.href
		}
	}
	return ""
}

// hostMatches rejects wrapper links that only carry the platform URL in
// their query string.
func (e *LinkExtractor) hostMatches(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(u.Host), e.Domain)
}

func (e *LinkExtractor) looksLikeVerification(link string, routes ...string) bool {
	l := strings.ToLower(link)
	if !strings.Contains(l, e.Domain) {
		return false
	}
	for _, r := range routes {
		if strings.Contains(l, r) {
			return true
		}
	}
	return false
}

// ExtractCode returns the first six-digit verification code in body, or "".
func ExtractCode(body string) string {
	for _, re := range codePatterns {
		if m := re.FindStringSubmatch(body); m != nil {
			return m[1]
		}
	}
	// Bare numbers are only trusted in visible text so markup such as colour
	// values cannot match.
	if m := bareCodePattern.FindStringSubmatch(visibleText(body)); m != nil {
		return m[1]
	}
	return ""
}

type anchor struct {
	href string
	text string
}

// parseAnchors lists every <a href> in document order with its visible text.
// Entity references in hrefs are decoded by the tokenizer.
func parseAnchors(body string) []anchor {
	var (
		out     []anchor
		current *anchor
		text    strings.Builder
	)
	z := html.NewTokenizer(strings.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return out
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" {
				continue
			}
			a := anchor{}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if strings.EqualFold(string(key), "href") {
					a.href = strings.TrimSpace(string(val))
				}
			}
			current = &a
			text.Reset()
		case html.TextToken:
			if current != nil {
				text.Write(z.Text())
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "a" && current != nil {
				current.text = strings.TrimSpace(text.String())
				out = append(out, *current)
				current = nil
			}
		}
	}
}

// visibleText drops tags, scripts and styles from an HTML or plain body.
func visibleText(body string) string {
	var (
		b    strings.Builder
		skip int
	)
	z := html.NewTokenizer(strings.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			if name, _ := z.TagName(); isHiddenElement(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isHiddenElement(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isHiddenElement(name []byte) bool {
	switch string(name) {
	case "script", "style", "head":
		return true
	}
	return false
}

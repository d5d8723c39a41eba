// Package gmail searches a Gmail mailbox through the REST API.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/enroll-cli/internal/mailverify"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
)

// DefaultBaseURL is the Gmail v1 REST root.
const DefaultBaseURL = "https://gmail.googleapis.com/gmail/v1"

// ErrUnauthorized is returned when the API keeps rejecting fresh tokens.
var ErrUnauthorized = errors.New("gmail api rejected the access token")

// Config configures a Client.
type Config struct {
	BaseURL string
	// User is the mailbox id, "me" for the authenticated user.
	User              string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client implements mailverify.Searcher.
type Client struct {
	baseURL    string
	user       string
	tokens     TokenSource
	httpClient *http.Client
	limiter    *rate.Limiter
	newBackOff func() backoff.BackOff
	logger     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithBackOff replaces the retry policy of individual API calls.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(cl *Client) { cl.newBackOff = f }
}

// NewClient creates a Gmail searcher.
func NewClient(cfg Config, tokens TokenSource, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.User == "" {
		cfg.User = "me"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		user:       cfg.User,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 20 * time.Second
			return b
		},
		logger: observability.GetLogger().Named("gmail"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type listResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type messagePart struct {
	MimeType string `json:"mimeType"`
	Headers  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Body struct {
		Data string `json:"data"`
	} `json:"body"`
	Parts []messagePart `json:"parts"`
}

type messageResponse struct {
	ID           string      `json:"id"`
	InternalDate string      `json:"internalDate"`
	Payload      messagePart `json:"payload"`
}

// Search lists messages matching q and fetches each in full. Messages that
// cannot be fetched are skipped so one bad message does not hide the rest.
func (c *Client) Search(ctx context.Context, q mailverify.Query, maxResults int) ([]mailverify.Message, error) {
	params := url.Values{
		"q":          {RenderQuery(q)},
		"maxResults": {strconv.Itoa(maxResults)},
	}
	var list listResponse
	if err := c.get(ctx, "/users/"+url.PathEscape(c.user)+"/messages", params, &list); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	out := make([]mailverify.Message, 0, len(list.Messages))
	for _, ref := range list.Messages {
		var raw messageResponse
		path := "/users/" + url.PathEscape(c.user) + "/messages/" + url.PathEscape(ref.ID)
		if err := c.get(ctx, path, url.Values{"format": {"full"}}, &raw); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Debug("Skipping message that could not be fetched.", zap.String("id", ref.ID), zap.Error(err))
			continue
		}
		msg, err := convert(raw)
		if err != nil {
			c.logger.Debug("Skipping malformed message.", zap.String("id", ref.ID), zap.Error(err))
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// get performs one rate-limited GET with retries and decodes the JSON body.
func (c *Client) get(ctx context.Context, path string, params url.Values, into any) error {
	endpoint := c.baseURL + path + "?" + params.Encode()
	refreshed := false

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("Network error calling gmail, retrying.", zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusUnauthorized:
			c.tokens.Invalidate()
			if refreshed {
				return backoff.Permanent(ErrUnauthorized)
			}
			refreshed = true
			return ErrUnauthorized
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("gmail api returned status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("gmail api returned status %d: %s", resp.StatusCode, truncate(body, 200)))
		}

		if err := json.Unmarshal(body, into); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx))
}

func convert(raw messageResponse) (mailverify.Message, error) {
	ms, err := strconv.ParseInt(raw.InternalDate, 10, 64)
	if err != nil {
		return mailverify.Message{}, fmt.Errorf("invalid internalDate %q: %w", raw.InternalDate, err)
	}
	msg := mailverify.Message{
		ID:         raw.ID,
		ReceivedAt: time.UnixMilli(ms),
		From:       header(raw.Payload, "From"),
		To:         header(raw.Payload, "To"),
		Subject:    header(raw.Payload, "Subject"),
	}
	var body strings.Builder
	collectBody(raw.Payload, &body)
	msg.Body = body.String()
	return msg, nil
}

// collectBody concatenates every text/plain and text/html part, walking
// nested multiparts depth first.
func collectBody(p messagePart, b *strings.Builder) {
	if len(p.Parts) == 0 {
		if p.Body.Data == "" {
			return
		}
		if p.MimeType != "" && !strings.HasPrefix(p.MimeType, "text/") {
			return
		}
		decoded, err := decodeData(p.Body.Data)
		if err != nil {
			return
		}
		b.Write(decoded)
		return
	}
	for _, part := range p.Parts {
		collectBody(part, b)
	}
}

// decodeData accepts base64url with or without padding.
func decodeData(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

func header(p messagePart, name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

package notify

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/enroll-cli/internal/config"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
)

// Notifier delivers a message. It reports whether delivery succeeded and
// never fails the caller.
type Notifier interface {
	Send(ctx context.Context, msg Message) bool
}

// Slack posts messages to an incoming webhook.
type Slack struct {
	webhookURL string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// SlackOption customizes a Slack notifier.
type SlackOption func(*Slack)

// WithHTTPClient replaces the webhook HTTP client.
func WithHTTPClient(c *http.Client) SlackOption {
	return func(s *Slack) { s.httpClient = c }
}

// WithMetrics records delivery outcomes.
func WithMetrics(m *observability.Metrics) SlackOption {
	return func(s *Slack) { s.metrics = m }
}

// NewSlack returns a notifier posting to cfg.SlackWebhookURL.
func NewSlack(cfg config.NotifyConfig, opts ...SlackOption) *Slack {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}

	s := &Slack{
		webhookURL: cfg.SlackWebhookURL,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		logger:     observability.GetLogger().Named("notify"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Send implements Notifier.
func (s *Slack) Send(ctx context.Context, msg Message) bool {
	delivered := s.post(ctx, msg)
	s.metrics.ObserveNotification(delivered)
	return delivered
}

func (s *Slack) post(ctx context.Context, msg Message) bool {
	log := s.logger.With(zap.String("text", msg.Text))

	if err := s.limiter.Wait(ctx); err != nil {
		log.Warn("Notification dropped while rate limited.", zap.Error(err))
		return false
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error("Failed to encode notification.", zap.Error(err))
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		log.Error("Failed to build webhook request.", zap.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Warn("Webhook request failed.", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		log.Warn("Webhook rejected notification.", zap.Int("status", resp.StatusCode))
		return false
	}
	log.Debug("Notification delivered.")
	return true
}

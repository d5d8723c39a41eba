// Package smtpsink is a receive-only SMTP server that keeps recent mail in
// memory and serves it to the verification resolver. Sandbox mail domains
// can forward to it instead of a real mailbox.
package smtpsink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/mailverify"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
)

// Config configures a Sink.
type Config struct {
	ListenAddr      string
	Domain          string
	MaxMessageBytes int64
	// Retain caps how many messages are kept; the oldest are dropped.
	Retain        int
	AcceptDomains []string
}

// Sink is both the SMTP backend and a mailverify.Searcher.
type Sink struct {
	cfg    Config
	server *gosmtp.Server
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	messages []mailverify.Message
}

// New creates a Sink. It does not listen until Serve or ListenAndServe.
func New(cfg Config) *Sink {
	if cfg.Retain <= 0 {
		cfg.Retain = 500
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 10 << 20
	}
	if cfg.Domain == "" {
		cfg.Domain = "localhost"
	}
	s := &Sink{
		cfg:    cfg,
		logger: observability.GetLogger().Named("smtpsink"),
		now:    time.Now,
	}

	srv := gosmtp.NewServer(s)
	srv.Addr = cfg.ListenAddr
	srv.Domain = cfg.Domain
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.MaxMessageBytes = cfg.MaxMessageBytes
	srv.MaxRecipients = 50
	s.server = srv
	return s
}

// Serve accepts connections on l until Close is called.
func (s *Sink) Serve(l net.Listener) error {
	s.logger.Info("SMTP sink accepting mail.", zap.String("address", l.Addr().String()))
	if err := s.server.Serve(l); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
		return fmt.Errorf("smtp sink: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured address and stops when ctx is
// done.
func (s *Sink) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("smtp sink listen on %s: %w", s.cfg.ListenAddr, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()
	return s.Serve(l)
}

// Close stops the server and drops open connections.
func (s *Sink) Close() error {
	return s.server.Close()
}

// Deliver stores a message directly, bypassing SMTP.
func (s *Sink) Deliver(m mailverify.Message) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	if over := len(s.messages) - s.cfg.Retain; over > 0 {
		s.messages = append([]mailverify.Message(nil), s.messages[over:]...)
	}
}

// Len returns the number of retained messages.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Search returns up to maxResults matching messages, newest first.
func (s *Sink) Search(ctx context.Context, q mailverify.Query, maxResults int) ([]mailverify.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	matched := make([]mailverify.Message, 0, maxResults)
	for _, m := range s.messages {
		if q.Matches(m) {
			matched = append(matched, m)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ReceivedAt.After(matched[j].ReceivedAt)
	})
	if maxResults > 0 && len(matched) > maxResults {
		matched = matched[:maxResults]
	}
	return matched, nil
}

func (s *Sink) accepts(domain string) bool {
	if len(s.cfg.AcceptDomains) == 0 {
		return true
	}
	for _, d := range s.cfg.AcceptDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}

// NewSession implements gosmtp.Backend.
func (s *Sink) NewSession(_ *gosmtp.Conn) (gosmtp.Session, error) {
	return &session{sink: s}, nil
}

type session struct {
	sink       *Sink
	from       string
	recipients []string
}

func (ss *session) Mail(from string, _ *gosmtp.MailOptions) error {
	ss.from = normalizeAddress(from)
	return nil
}

func (ss *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)
	_, domain, ok := strings.Cut(addr, "@")
	if !ok || domain == "" {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}
	if !ss.sink.accepts(domain) {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "relay access denied",
		}
	}
	ss.recipients = append(ss.recipients, addr)
	return nil
}

func (ss *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(r, ss.sink.cfg.MaxMessageBytes))
	if err != nil {
		return err
	}
	parsed, err := parseMail(raw)
	if err != nil {
		ss.sink.logger.Warn("Rejecting unparsable message.", zap.String("from", ss.from), zap.Error(err))
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      "message could not be parsed",
		}
	}

	from := parsed.From
	if from == "" {
		from = ss.from
	}
	received := ss.sink.now()
	for _, rcpt := range ss.recipients {
		ss.sink.Deliver(mailverify.Message{
			ReceivedAt: received,
			From:       from,
			To:         rcpt,
			Subject:    parsed.Subject,
			Body:       parsed.Body,
		})
	}
	ss.sink.logger.Debug("Stored message.",
		zap.String("from", from),
		zap.Strings("recipients", ss.recipients),
		zap.String("subject", parsed.Subject))
	return nil
}

func (ss *session) Reset() {
	ss.from = ""
	ss.recipients = nil
}

func (ss *session) Logout() error {
	return nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}

package mailverify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/observability"
)

// ErrNotFound is returned when the polling budget is spent without finding
// a usable artifact. Callers treat it as a recoverable outcome.
var ErrNotFound = errors.New("verification artifact not found")

const (
	DefaultPollInterval  = 5 * time.Second
	DefaultCodeAttempts  = 24
	DefaultLinkRecency   = 5 * time.Minute
	DefaultCodeTolerance = 120 * time.Second

	linkAttemptsPerMinute = 12

	linkBatchSize   = 10
	codeBatchSize   = 10
	latestBatchSize = 5
)

// Options tune the resolver. Zero values fall back to the defaults above.
type Options struct {
	PollInterval  time.Duration
	CodeAttempts  int
	LinkRecency   time.Duration
	CodeTolerance time.Duration

	// LinkQuery finds signup verification mail; CodeQuery finds code mail.
	LinkQuery Query
	CodeQuery Query
	// FilterRecipient narrows every query to the target address.
	FilterRecipient bool
	// LinkDomain is the platform name expected in verification links.
	LinkDomain string
}

// Resolver polls a Searcher for verification artifacts.
type Resolver struct {
	searcher Searcher
	opts     Options
	links    *LinkExtractor
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithClock replaces the clock used for recency windows.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// WithSleeper replaces the wait between polling passes.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) ResolverOption {
	return func(r *Resolver) { r.sleep = sleep }
}

// WithMetrics records every polling pass.
func WithMetrics(m *observability.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a resolver over searcher.
func NewResolver(searcher Searcher, opts Options, ropts ...ResolverOption) *Resolver {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.CodeAttempts <= 0 {
		opts.CodeAttempts = DefaultCodeAttempts
	}
	if opts.LinkRecency <= 0 {
		opts.LinkRecency = DefaultLinkRecency
	}
	if opts.CodeTolerance <= 0 {
		opts.CodeTolerance = DefaultCodeTolerance
	}
	r := &Resolver{
		searcher: searcher,
		opts:     opts,
		links:    NewLinkExtractor(opts.LinkDomain),
		now:      time.Now,
		sleep:    Sleep,
		logger:   observability.GetLogger().Named("mailverify"),
	}
	for _, o := range ropts {
		o(r)
	}
	return r
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// candidate is a verification artifact and the receive time of its message.
type candidate struct {
	receivedAt time.Time
	payload    string
}

func (c *candidate) offer(receivedAt time.Time, payload string) {
	if payload == "" {
		return
	}
	if c.payload == "" || receivedAt.After(c.receivedAt) {
		c.receivedAt, c.payload = receivedAt, payload
	}
}

// LinkAttempts returns how many passes FindVerificationLink makes for a
// wait of maxWaitMinutes: twelve per minute, like the fixed code budget.
// The poll interval sets the pause between passes, not their number.
func (r *Resolver) LinkAttempts(maxWaitMinutes int) int {
	n := maxWaitMinutes * linkAttemptsPerMinute
	if n < 1 {
		n = 1
	}
	return n
}

// FindVerificationLink polls for the signup verification link sent to
// target. Messages older than the recency window are ignored and the newest
// link of a pass wins. It returns as soon as any pass yields a link.
func (r *Resolver) FindVerificationLink(ctx context.Context, target string, maxWaitMinutes int) (string, error) {
	attempts := r.LinkAttempts(maxWaitMinutes)
	q := r.query(r.opts.LinkQuery, target)

	r.logger.Info("Searching for verification link.",
		zap.String("email", target),
		zap.Int("attempts", attempts),
		zap.Duration("interval", r.opts.PollInterval))

	var found string
	err := r.poll(ctx, "link", attempts, func(ctx context.Context) (bool, error) {
		msgs, err := r.searcher.Search(ctx, q, linkBatchSize)
		if err != nil {
			return false, err
		}
		now := r.now()
		var best candidate
		for _, m := range msgs {
			if now.Sub(m.ReceivedAt) > r.opts.LinkRecency {
				continue
			}
			best.offer(m.ReceivedAt, r.links.Extract(m.Body))
		}
		found = best.payload
		return found != "", nil
	})
	if err != nil {
		return "", err
	}
	r.logger.Info("Verification link found.", zap.String("email", target))
	return found, nil
}

// FindCodeAfter polls for the newest six-digit code received no earlier
// than since minus the tolerance window.
func (r *Resolver) FindCodeAfter(ctx context.Context, target string, since time.Time) (string, error) {
	q := r.query(r.opts.CodeQuery, target)
	q.MatchAll = true
	threshold := since.Add(-r.opts.CodeTolerance)

	r.logger.Info("Searching for verification code.",
		zap.String("email", target),
		zap.Time("since", since),
		zap.Int("attempts", r.opts.CodeAttempts))

	var best candidate
	err := r.poll(ctx, "code_after", r.opts.CodeAttempts, func(ctx context.Context) (bool, error) {
		msgs, err := r.searcher.Search(ctx, q, codeBatchSize)
		if err != nil {
			return false, err
		}
		for _, m := range msgs {
			if m.ReceivedAt.Before(threshold) {
				r.logger.Debug("Skipping stale code mail.", zap.Time("received_at", m.ReceivedAt))
				continue
			}
			best.offer(m.ReceivedAt, ExtractCode(m.Body))
		}
		return best.payload != "", nil
	})
	if err != nil {
		return "", err
	}
	r.logger.Info("Verification code found.", zap.String("email", target), zap.Time("received_at", best.receivedAt))
	return best.payload, nil
}

// FindLatestCode makes a single pass over the most recent code mail and
// returns the newest code with no time filter.
func (r *Resolver) FindLatestCode(ctx context.Context, target string) (string, error) {
	q := r.query(r.opts.CodeQuery, target)
	q.MatchAll = true

	var best candidate
	err := r.poll(ctx, "code_latest", 1, func(ctx context.Context) (bool, error) {
		msgs, err := r.searcher.Search(ctx, q, latestBatchSize)
		if err != nil {
			return false, err
		}
		for _, m := range msgs {
			best.offer(m.ReceivedAt, ExtractCode(m.Body))
		}
		return best.payload != "", nil
	})
	if err != nil {
		return "", err
	}
	return best.payload, nil
}

// poll runs pass up to attempts times, sleeping between passes. Search
// errors are logged and count as an empty pass.
func (r *Resolver) poll(ctx context.Context, kind string, attempts int, pass func(context.Context) (bool, error)) error {
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		found, err := pass(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			r.logger.Warn("Mailbox search failed.", zap.String("kind", kind), zap.Int("attempt", i), zap.Error(err))
		}
		r.metrics.ObservePoll(kind, found)
		if found {
			return nil
		}
		r.logger.Debug("Waiting for verification mail.", zap.String("kind", kind), zap.Int("attempt", i), zap.Int("of", attempts))
		if i < attempts {
			if err := r.sleep(ctx, r.opts.PollInterval); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrNotFound, attempts)
}

func (r *Resolver) query(base Query, target string) Query {
	if r.opts.FilterRecipient {
		base.To = target
	}
	return base
}

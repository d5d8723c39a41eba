// Package login signs freshly verified accounts in, answers the
// anti-automation challenge when the site raises one, and reads the
// platform identifier from the account API.
package login

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/account"
	"github.com/xkilldash9x/enroll-cli/internal/browser"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
)

// Outcome is the result of a login attempt.
type Outcome int

const (
	// LoginFailed means the attempt was marked IdentifierExtractionFailed.
	LoginFailed Outcome = iota
	// LoginSucceeded means the attempt is Completed.
	LoginSucceeded
	// LoginChallenged means the site asked for a second code. The attempt
	// is unchanged and ResolveAdditionalVerification should run next.
	LoginChallenged
)

func (o Outcome) String() string {
	switch o {
	case LoginSucceeded:
		return "succeeded"
	case LoginChallenged:
		return "challenged"
	}
	return "failed"
}

// CodeStrategy selects how the challenge code is looked up.
type CodeStrategy string

const (
	// CodeAfter accepts only codes received after the challenge was issued.
	CodeAfter CodeStrategy = "after"
	// CodeLatest takes the most recent code regardless of its age.
	CodeLatest CodeStrategy = "latest"
)

// CodeFinder looks up one-time codes in the mailbox. *mailverify.Resolver
// implements it.
type CodeFinder interface {
	FindCodeAfter(ctx context.Context, target string, since time.Time) (string, error)
	FindLatestCode(ctx context.Context, target string) (string, error)
}

// Config holds the site locations and the settle delays of the flow.
type Config struct {
	LoginURL           string
	MypageURL          string
	IdentifierAPIPaths []string
	IdentifierField    string
	WaitTimeout        time.Duration

	PostNavigateDelay time.Duration
	ChallengeSettle   time.Duration
	SessionSettle     time.Duration
	MypageSettle      time.Duration
	IdentifierWait    time.Duration
	ChallengeGrace    time.Duration
	CodeSettle        time.Duration
	DialogWait        time.Duration
	LogoutSettle      time.Duration

	CodeStrategy CodeStrategy
}

// DefaultConfig returns the timings observed to work against the live site.
func DefaultConfig() Config {
	return Config{
		IdentifierAPIPaths: []string{"users/v1.0/users/me", "users/v1.0/users/account/me"},
		IdentifierField:    "wid",
		WaitTimeout:        15 * time.Second,
		PostNavigateDelay:  3 * time.Second,
		ChallengeSettle:    3 * time.Second,
		SessionSettle:      5 * time.Second,
		MypageSettle:       5 * time.Second,
		IdentifierWait:     20 * time.Second,
		ChallengeGrace:     10 * time.Second,
		CodeSettle:         3 * time.Second,
		DialogWait:         10 * time.Second,
		LogoutSettle:       3 * time.Second,
		CodeStrategy:       CodeAfter,
	}
}

// Flow runs the login and challenge steps.
type Flow struct {
	cfg    Config
	pause  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
	logger *zap.Logger
}

// Option customizes a Flow.
type Option func(*Flow)

// WithPause replaces the settle delays.
func WithPause(pause func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Flow) { f.pause = pause }
}

// WithClock replaces the clock used to stamp the challenge.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// NewFlow returns a Flow for cfg.
func NewFlow(cfg Config, opts ...Option) *Flow {
	if cfg.CodeStrategy == "" {
		cfg.CodeStrategy = CodeAfter
	}
	if cfg.IdentifierWait <= 0 {
		cfg.IdentifierWait = DefaultConfig().IdentifierWait
	}
	f := &Flow{
		cfg:    cfg,
		pause:  browser.Pause,
		now:    time.Now,
		logger: observability.GetLogger().Named("login"),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// LoginAndExtractIdentifier submits the attempt's credentials. When the
// site raises a challenge it returns LoginChallenged without touching the
// attempt. Otherwise it opens the account page, waits for the identifier
// API response and completes the attempt, logging out afterwards when
// isBatch is set. The error is non-nil only when ctx ended or the status
// could not be recorded.
func (f *Flow) LoginAndExtractIdentifier(ctx context.Context, page browser.Page, a *account.Attempt, isBatch bool) (Outcome, error) {
	log := f.logger.With(zap.String("email", a.Email))
	log.Info("Logging in.")

	if err := f.submitCredentials(ctx, page, a); err != nil {
		return f.fail(ctx, a, err)
	}

	challenged, err := f.detectChallenge(ctx, page)
	if err != nil {
		return LoginFailed, err
	}
	if challenged {
		log.Info("Login challenged; additional verification required.")
		return LoginChallenged, nil
	}

	if err := f.pause(ctx, f.cfg.SessionSettle); err != nil {
		return LoginFailed, err
	}
	return f.extractIdentifier(ctx, page, a, isBatch)
}

// ResolveAdditionalVerification answers a login challenge with the code
// mailed to the attempt's address, then extracts the identifier. It marks
// the attempt IdentifierExtractionFailed when no code arrives or the code
// cannot be submitted.
func (f *Flow) ResolveAdditionalVerification(ctx context.Context, page browser.Page, a *account.Attempt, codes CodeFinder, isBatch bool) (bool, error) {
	log := f.logger.With(zap.String("email", a.Email))
	issuedAt := f.now()
	log.Info("Waiting for the challenge code.",
		zap.Time("issued_at", issuedAt),
		zap.Duration("grace", f.cfg.ChallengeGrace),
		zap.String("strategy", string(f.cfg.CodeStrategy)))

	if err := f.pause(ctx, f.cfg.ChallengeGrace); err != nil {
		return false, err
	}

	code, err := f.findCode(ctx, codes, a.Email, issuedAt)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		_, ferr := f.fail(ctx, a, fmt.Errorf("challenge code: %w", err))
		return false, ferr
	}
	log.Info("Challenge code found.")

	if err := f.submitCode(ctx, page, code); err != nil {
		_, ferr := f.fail(ctx, a, err)
		return false, ferr
	}
	if err := f.pause(ctx, f.cfg.SessionSettle); err != nil {
		return false, err
	}

	outcome, err := f.extractIdentifier(ctx, page, a, isBatch)
	return outcome == LoginSucceeded, err
}

func (f *Flow) findCode(ctx context.Context, codes CodeFinder, email string, issuedAt time.Time) (string, error) {
	if f.cfg.CodeStrategy == CodeLatest {
		return codes.FindLatestCode(ctx, email)
	}
	return codes.FindCodeAfter(ctx, email, issuedAt)
}

func (f *Flow) submitCredentials(ctx context.Context, page browser.Page, a *account.Attempt) error {
	if err := page.Navigate(ctx, f.cfg.LoginURL); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}
	if err := f.pause(ctx, f.cfg.PostNavigateDelay); err != nil {
		return err
	}
	for _, field := range []struct{ selector, value string }{
		{EmailInput, a.Email},
		{PasswordInput, a.Password},
	} {
		if err := page.WaitForElement(ctx, field.selector, f.cfg.WaitTimeout); err != nil {
			return fmt.Errorf("login form: %w", err)
		}
		if err := page.Fill(ctx, field.selector, field.value); err != nil {
			return fmt.Errorf("failed to fill %s: %w", field.selector, err)
		}
	}
	if err := page.Click(ctx, LoginButton); err != nil {
		return fmt.Errorf("failed to submit login: %w", err)
	}
	return nil
}

// detectChallenge looks for the abnormal access notice or the code input.
// Lookup errors count as no challenge.
func (f *Flow) detectChallenge(ctx context.Context, page browser.Page) (bool, error) {
	if err := f.pause(ctx, f.cfg.ChallengeSettle); err != nil {
		return false, err
	}
	for _, selector := range []string{AbnormalAccessNotice, OTPInput} {
		found, err := page.HasElement(ctx, selector)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			f.logger.Debug("Challenge check failed; assuming none.", zap.String("selector", selector), zap.Error(err))
			continue
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

func (f *Flow) submitCode(ctx context.Context, page browser.Page, code string) error {
	if err := page.WaitForElement(ctx, OTPInput, f.cfg.WaitTimeout); err != nil {
		return fmt.Errorf("challenge input: %w", err)
	}
	if err := page.Fill(ctx, OTPInput, code); err != nil {
		return fmt.Errorf("failed to enter challenge code: %w", err)
	}

	if err := page.WaitForElement(ctx, OTPConfirmButton, 5*time.Second); err == nil {
		if err := page.Click(ctx, OTPConfirmButton); err != nil {
			return fmt.Errorf("failed to confirm challenge code: %w", err)
		}
	} else {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := page.Press(ctx, OTPInput, "Enter"); err != nil {
			return fmt.Errorf("failed to submit challenge code: %w", err)
		}
	}
	if err := f.pause(ctx, f.cfg.CodeSettle); err != nil {
		return err
	}
	f.confirmDialog(ctx, page, LoginCompleteConfirm, f.cfg.DialogWait)
	return nil
}

// extractIdentifier opens the account page and waits for the identifier
// response.
func (f *Flow) extractIdentifier(ctx context.Context, page browser.Page, a *account.Attempt, isBatch bool) (Outcome, error) {
	log := f.logger.With(zap.String("email", a.Email))

	future := newIdentifierFuture()
	stop, err := page.OnResponse(ctx, identifierMatcher(f.cfg.IdentifierAPIPaths), func(r browser.Response) {
		if id, ok := parseIdentifier(r.Body, f.cfg.IdentifierField); ok {
			future.resolve(id)
			return
		}
		log.Debug("Account response carried no identifier.", zap.String("url", r.URL))
	})
	if err != nil {
		return f.fail(ctx, a, fmt.Errorf("failed to watch account responses: %w", err))
	}
	defer stop()

	if err := f.openMypage(ctx, page); err != nil {
		return f.fail(ctx, a, err)
	}

	id, err := future.wait(ctx, f.cfg.IdentifierWait)
	if err != nil {
		return f.fail(ctx, a, err)
	}
	if err := a.Complete(id); err != nil {
		return LoginFailed, err
	}
	log.Info("Identifier extracted.", zap.String("wid", id))

	if isBatch {
		f.logout(ctx, page)
	}
	return LoginSucceeded, nil
}

func (f *Flow) openMypage(ctx context.Context, page browser.Page) error {
	if err := page.Navigate(ctx, f.cfg.MypageURL); err != nil {
		return fmt.Errorf("failed to open account page: %w", err)
	}
	if err := f.pause(ctx, f.cfg.MypageSettle); err != nil {
		return err
	}

	// A stale session sometimes bounces the first navigation elsewhere.
	current, err := page.CurrentURL(ctx)
	if err != nil || onPage(current, f.cfg.MypageURL) {
		return nil
	}
	f.logger.Warn("Account page not reached; retrying.", zap.String("url", current))
	if err := page.Navigate(ctx, f.cfg.MypageURL); err != nil {
		return fmt.Errorf("failed to open account page: %w", err)
	}
	return nil
}

// logout signs out so the next attempt starts clean. Failures only log.
func (f *Flow) logout(ctx context.Context, page browser.Page) {
	if f.confirmDialog(ctx, page, LogoutButton, 5*time.Second) {
		_ = f.pause(ctx, f.cfg.LogoutSettle)
		f.logger.Info("Logged out for the next account.")
		return
	}
	f.logger.Warn("Logout button not found; the next attempt may start signed in.")
}

// confirmDialog clicks selector if it appears within wait.
func (f *Flow) confirmDialog(ctx context.Context, page browser.Page, selector string, wait time.Duration) bool {
	if err := page.WaitForElement(ctx, selector, wait); err != nil {
		return false
	}
	if err := page.Click(ctx, selector); err != nil {
		f.logger.Debug("Dialog button click failed.", zap.String("selector", selector), zap.Error(err))
		return false
	}
	return true
}

// fail records IdentifierExtractionFailed unless ctx ended, in which case
// the status is left to the caller.
func (f *Flow) fail(ctx context.Context, a *account.Attempt, cause error) (Outcome, error) {
	if ctx.Err() != nil {
		return LoginFailed, ctx.Err()
	}
	f.logger.Warn("Login flow failed.", zap.String("email", a.Email), zap.Error(cause))
	if err := a.Fail(account.StatusIdentifierExtractionFailed, cause.Error()); err != nil {
		return LoginFailed, err
	}
	return LoginFailed, nil
}

func onPage(current, target string) bool {
	u, err := url.Parse(target)
	if err != nil || u.Path == "" {
		return strings.HasPrefix(current, target)
	}
	return strings.Contains(current, u.Path)
}

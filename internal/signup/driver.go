// Package signup drives the multi-step registration form.
package signup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/account"
	"github.com/xkilldash9x/enroll-cli/internal/browser"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
)

var (
	// ErrInvalidEmail means the form rejected the address format.
	ErrInvalidEmail = errors.New("email rejected as invalid")
	// ErrDuplicateEmail means the address is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrEmailBlocked covers any other condition that stops the email step.
	ErrEmailBlocked = errors.New("email step blocked by an unrecognized condition")
)

const (
	defaultWaitTimeout    = 15 * time.Second
	defaultPasswordSettle = time.Second
	defaultDialogWait     = 8 * time.Second
	defaultDialogSettle   = 2 * time.Second
)

// Config holds the timing knobs of the form driver.
type Config struct {
	SignupURL   string
	WaitTimeout time.Duration
	// PasswordSettle gives client side validation time before submitting.
	PasswordSettle time.Duration
	// DialogWait bounds the wait for the optional marketing consent dialog.
	DialogWait   time.Duration
	DialogSettle time.Duration
}

// Driver fills the signup form for one attempt at a time.
type Driver struct {
	cfg    Config
	pause  func(ctx context.Context, d time.Duration) error
	logger *zap.Logger
}

// Option customizes a Driver.
type Option func(*Driver)

// WithPause replaces the settle delays, mostly for tests.
func WithPause(pause func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Driver) { d.pause = pause }
}

// NewDriver returns a driver for cfg.
func NewDriver(cfg Config, opts ...Option) *Driver {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaultWaitTimeout
	}
	if cfg.PasswordSettle <= 0 {
		cfg.PasswordSettle = defaultPasswordSettle
	}
	if cfg.DialogWait <= 0 {
		cfg.DialogWait = defaultDialogWait
	}
	if cfg.DialogSettle <= 0 {
		cfg.DialogSettle = defaultDialogSettle
	}
	d := &Driver{
		cfg:    cfg,
		pause:  browser.Pause,
		logger: observability.GetLogger().Named("signup"),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

type step struct {
	name   string
	failed account.Status
	run    func(ctx context.Context, page browser.Page, a *account.Attempt) error
}

func (d *Driver) steps() []step {
	return []step{
		{"email", account.StatusEmailStepFailed, d.fillEmail},
		{"password", account.StatusPasswordStepFailed, d.fillPassword},
		{"nickname", account.StatusNicknameStepFailed, d.fillNickname},
		{"terms", account.StatusTermsStepFailed, d.acceptTerms},
	}
}

// FillSignupForm opens the signup page and runs the email, password,
// nickname and terms steps in order. A failing step records its
// *StepFailed status on a and stops the flow; success leaves a in
// EmailVerificationPending. The error is non-nil only when ctx ended or a
// could not be moved to the next status.
func (d *Driver) FillSignupForm(ctx context.Context, page browser.Page, a *account.Attempt) (bool, error) {
	log := d.logger.With(zap.String("email", a.Email))

	if err := page.Navigate(ctx, d.cfg.SignupURL); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		log.Error("Could not open the signup page.", zap.Error(err))
		return false, a.Fail(account.StatusCreationFailed, fmt.Sprintf("failed to open signup page: %v", err))
	}
	log.Info("Signup page opened.")

	for i, s := range d.steps() {
		log.Info("Running signup step.", zap.Int("step", i+1), zap.String("name", s.name))
		if err := s.run(ctx, page, a); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			log.Warn("Signup step failed.", zap.String("name", s.name), zap.Error(err))
			return false, a.Fail(s.failed, err.Error())
		}
	}

	if err := a.Update(account.StatusEmailVerificationPending); err != nil {
		return false, err
	}
	log.Info("Signup form submitted.")
	return true, nil
}

func (d *Driver) fillEmail(ctx context.Context, page browser.Page, a *account.Attempt) error {
	if err := page.WaitForElement(ctx, EmailInput, d.cfg.WaitTimeout); err != nil {
		return fmt.Errorf("email input: %w", err)
	}
	if err := page.Fill(ctx, EmailInput, a.Email); err != nil {
		return fmt.Errorf("failed to enter email: %w", err)
	}
	if err := page.Click(ctx, ContinueWithEmail); err != nil {
		return fmt.Errorf("failed to continue with email: %w", err)
	}

	err := page.WaitForElement(ctx, SignUpButton, d.cfg.WaitTimeout)
	if err == nil {
		if err := page.Click(ctx, SignUpButton); err != nil {
			return fmt.Errorf("failed to start registration: %w", err)
		}
		return nil
	}
	if !errors.Is(err, browser.ErrElementTimeout) {
		return err
	}
	return d.classifyEmailRejection(ctx, page)
}

// classifyEmailRejection inspects the page after the registration button
// failed to appear.
func (d *Driver) classifyEmailRejection(ctx context.Context, page browser.Page) error {
	notices := []struct {
		selector string
		err      error
	}{
		{InvalidEmailNotice, ErrInvalidEmail},
		{DuplicateEmailNotice, ErrDuplicateEmail},
	}
	for _, n := range notices {
		found, err := page.HasElement(ctx, n.selector)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Debug("Notice lookup failed.", zap.String("selector", n.selector), zap.Error(err))
			continue
		}
		if found {
			return n.err
		}
	}
	return ErrEmailBlocked
}

func (d *Driver) fillPassword(ctx context.Context, page browser.Page, a *account.Attempt) error {
	if err := page.WaitForElement(ctx, NewPasswordInput, d.cfg.WaitTimeout); err != nil {
		return fmt.Errorf("password input: %w", err)
	}
	if err := page.Fill(ctx, NewPasswordInput, a.Password); err != nil {
		return fmt.Errorf("failed to enter password: %w", err)
	}
	if err := page.Fill(ctx, ConfirmPasswordInput, a.Password); err != nil {
		return fmt.Errorf("failed to confirm password: %w", err)
	}
	if err := d.pause(ctx, d.cfg.PasswordSettle); err != nil {
		return err
	}
	if err := page.Click(ctx, NextButton); err != nil {
		return fmt.Errorf("failed to submit password: %w", err)
	}
	return nil
}

func (d *Driver) fillNickname(ctx context.Context, page browser.Page, a *account.Attempt) error {
	if err := page.WaitForElement(ctx, NicknameInput, d.cfg.WaitTimeout); err != nil {
		return fmt.Errorf("nickname input: %w", err)
	}
	// Fill replaces the generated default nickname.
	if err := page.Fill(ctx, NicknameInput, a.Nickname); err != nil {
		return fmt.Errorf("failed to enter nickname: %w", err)
	}
	if err := page.Click(ctx, NextButton); err != nil {
		return fmt.Errorf("failed to submit nickname: %w", err)
	}
	return nil
}

func (d *Driver) acceptTerms(ctx context.Context, page browser.Page, _ *account.Attempt) error {
	if err := page.WaitForElement(ctx, AgreeAllTerms, d.cfg.WaitTimeout); err != nil {
		return fmt.Errorf("terms page: %w", err)
	}
	if err := page.Click(ctx, AgreeAllTerms); err != nil {
		return fmt.Errorf("failed to accept terms: %w", err)
	}
	if err := page.Click(ctx, NextButton); err != nil {
		return fmt.Errorf("failed to submit terms: %w", err)
	}
	return d.dismissMarketingDialog(ctx, page)
}

// dismissMarketingDialog confirms the marketing consent dialog if it shows
// up within DialogWait. Its absence is not an error.
func (d *Driver) dismissMarketingDialog(ctx context.Context, page browser.Page) error {
	err := page.WaitForElement(ctx, MarketingConfirm, d.cfg.DialogWait)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		d.logger.Debug("No marketing consent dialog.", zap.Error(err))
		return nil
	}

	if err := page.Click(ctx, MarketingConfirm); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Warn("Could not dismiss the marketing consent dialog.", zap.Error(err))
		return nil
	}
	return d.pause(ctx, d.cfg.DialogSettle)
}

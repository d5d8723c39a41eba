// Package orchestrator runs a batch of account attempts end to end: form,
// email verification, login and identifier extraction, one attempt at a
// time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/account"
	"github.com/xkilldash9x/enroll-cli/internal/browser"
	"github.com/xkilldash9x/enroll-cli/internal/config"
	"github.com/xkilldash9x/enroll-cli/internal/identity"
	"github.com/xkilldash9x/enroll-cli/internal/login"
	"github.com/xkilldash9x/enroll-cli/internal/notify"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
	"github.com/xkilldash9x/enroll-cli/internal/signup"
)

// Link handling modes.
const (
	LinkModeNotify = "notify"
	LinkModeBrowse = "browse"
)

// PageOpener opens an isolated page for one attempt. The returned func
// releases it. *browser.Manager implements it.
type PageOpener interface {
	OpenPage(ctx context.Context) (browser.Page, func() error, error)
}

// Mailbox finds verification links and challenge codes.
// *mailverify.Resolver implements it.
type Mailbox interface {
	FindVerificationLink(ctx context.Context, target string, maxWaitMinutes int) (string, error)
	login.CodeFinder
}

// Recorder persists attempt snapshots and the batch outcome.
type Recorder interface {
	RecordAttempt(ctx context.Context, batchID string, s account.Snapshot) error
	RecordBatch(ctx context.Context, batchID string, r account.BatchResult) error
}

// ProgressFunc is called after every attempt with its 1-based index.
type ProgressFunc func(index, total int, s account.Snapshot)

// Config holds the verification phase settings.
type Config struct {
	LinkMode        string
	LinkWaitMinutes int
	ManualClickWait time.Duration
	PostSignupDelay time.Duration
}

// ConfigFromVerification maps the verification section of the config file.
func ConfigFromVerification(v config.VerificationConfig) Config {
	return Config{
		LinkMode:        v.LinkMode,
		LinkWaitMinutes: v.LinkWaitMinutes,
		ManualClickWait: v.ManualClickWait,
		PostSignupDelay: v.PostSignupDelay,
	}
}

// Deps are the collaborators of an Orchestrator. Mailbox, Notifier and
// Recorders are optional.
type Deps struct {
	Identity  *identity.Generator
	Pages     PageOpener
	Signup    *signup.Driver
	Login     *login.Flow
	Mailbox   Mailbox
	Notifier  notify.Notifier
	Messages  notify.Builder
	Recorders []Recorder
	Metrics   *observability.Metrics
}

// Report is what a run produces, complete or not.
type Report struct {
	BatchID     string
	Result      account.BatchResult
	Stats       account.Statistics
	Elapsed     time.Duration
	Interrupted bool
}

// Orchestrator sequences attempts.
type Orchestrator struct {
	cfg      Config
	deps     Deps
	logger   *zap.Logger
	pause    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	progress ProgressFunc
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithPause replaces the delays between and inside attempts.
func WithPause(pause func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.pause = pause }
}

// WithClock replaces the clock used for timings and the result stamp.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithProgress registers a per-attempt callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// New creates an Orchestrator. Identity, Pages, Signup and Login are
// required.
func New(cfg Config, deps Deps, opts ...Option) (*Orchestrator, error) {
	if deps.Identity == nil || deps.Pages == nil || deps.Signup == nil || deps.Login == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if cfg.LinkMode == "" {
		cfg.LinkMode = LinkModeNotify
	}
	if cfg.LinkMode != LinkModeNotify && cfg.LinkMode != LinkModeBrowse {
		return nil, fmt.Errorf("unknown link mode %q", cfg.LinkMode)
	}
	if cfg.LinkWaitMinutes <= 0 {
		cfg.LinkWaitMinutes = 2
	}

	o := &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: observability.GetLogger().Named("orchestrator"),
		pause:  browser.Pause,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run executes bc. Attempt failures are recorded as statuses and never
// returned. The error is non-nil for an invalid bc, an identity that
// cannot be generated, or an interrupted run; the report then holds the
// attempts finished so far.
func (o *Orchestrator) Run(ctx context.Context, bc account.BatchConfig) (Report, error) {
	if err := bc.Validate(); err != nil {
		return Report{}, err
	}

	start := o.now()
	report := Report{BatchID: uuid.NewString()}
	log := o.logger.With(zap.String("batch_id", report.BatchID), zap.String("environment", string(bc.Environment)))
	log.Info("Starting batch.", zap.Int("count", bc.Count), zap.Duration("delay", bc.Delay))

	o.deps.Identity.Clear()
	var snapshots []account.Snapshot
	var runErr error

	for i := 0; i < bc.Count; i++ {
		if i > 0 && bc.Delay > 0 {
			log.Info("Waiting before the next attempt.", zap.Duration("delay", bc.Delay))
			if err := o.pause(ctx, bc.Delay); err != nil {
				runErr = err
				break
			}
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		a, err := o.newAttempt(bc, i)
		if err != nil {
			runErr = err
			break
		}

		attemptStart := o.now()
		o.runAttempt(ctx, a, bc.IsBatch())
		snap := a.Snapshot()
		snapshots = append(snapshots, snap)
		o.deps.Metrics.ObserveAttempt(snap.Status.String(), string(bc.Environment), o.now().Sub(attemptStart))
		o.recordAttempt(ctx, report.BatchID, snap)
		if o.progress != nil {
			o.progress(i+1, bc.Count, snap)
		}
		log.Info("Attempt finished.",
			zap.Int("index", i+1),
			zap.String("email", snap.Email),
			zap.Stringer("status", snap.Status))

		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if a.IsFailed() && !bc.ContinueOnError {
			log.Warn("Stopping batch after a failed attempt.", zap.String("email", snap.Email))
			break
		}
	}

	report.Result = account.NewBatchResult(bc.Environment, o.now(), snapshots)
	report.Stats = account.ComputeStatistics(bc.Environment, snapshots)
	report.Elapsed = o.now().Sub(start)
	report.Interrupted = errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)

	// The summary and batch row go out even when the run was interrupted.
	detached := browser.Detach(ctx)
	if bc.IsBatch() {
		o.send(detached, o.deps.Messages.Summary(report.Stats, report.Elapsed))
	}
	o.recordBatch(detached, report.BatchID, report.Result)

	log.Info("Batch finished.",
		zap.Int("total", report.Stats.Total),
		zap.Int("success", report.Stats.Success),
		zap.Int("failed", report.Stats.Failed),
		zap.Int("pending", report.Stats.Pending),
		zap.Bool("interrupted", report.Interrupted),
		zap.Duration("elapsed", report.Elapsed))
	return report, runErr
}

func (o *Orchestrator) newAttempt(bc account.BatchConfig, i int) (*account.Attempt, error) {
	email := bc.EmailOverride
	if email != "" {
		o.deps.Identity.Reserve(email)
	} else {
		var err error
		if email, err = o.deps.Identity.GenerateEmail(bc.Environment, bc.BaseEmail); err != nil {
			return nil, fmt.Errorf("failed to generate email: %w", err)
		}
	}
	password, err := o.deps.Identity.GeneratePassword(bc.CustomPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to generate password: %w", err)
	}
	index := 0
	if bc.IsBatch() {
		index = i + 1
	}
	return account.NewAttempt(bc.Environment, email, password, o.deps.Identity.GenerateNickname(bc.CustomNickname, index)), nil
}

// runAttempt drives a through the pipeline. Every exit leaves a with the
// status reached; panics and interruptions become CreationFailed.
func (o *Orchestrator) runAttempt(ctx context.Context, a *account.Attempt, isBatch bool) {
	log := o.logger.With(zap.String("email", a.Email), zap.String("attempt_id", a.ID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Attempt panicked.", zap.Any("panic", r), zap.Stack("stack"))
			o.abort(ctx, a, fmt.Errorf("panic: %v", r))
		}
	}()

	page, closePage, err := o.deps.Pages.OpenPage(ctx)
	if err != nil {
		o.abort(ctx, a, fmt.Errorf("failed to open browser page: %w", err))
		o.sendFailure(ctx, a)
		return
	}
	defer func() {
		if err := closePage(); err != nil {
			log.Debug("Failed to close page.", zap.Error(err))
		}
	}()

	log.Info("Filling signup form.", zap.String("nickname", a.Nickname), observability.MaskedString("password", a.Password))
	ok, err := o.deps.Signup.FillSignupForm(ctx, page, a)
	if err != nil {
		o.abort(ctx, a, err)
		return
	}
	if !ok {
		o.sendFailure(ctx, a)
		return
	}

	if err := o.pause(ctx, o.cfg.PostSignupDelay); err != nil {
		o.abort(ctx, a, err)
		return
	}
	o.send(ctx, o.deps.Messages.Progress("Email verification pending", a.Snapshot()))

	if o.deps.Mailbox == nil {
		log.Info("No mailbox configured; leaving the attempt pending verification.")
		o.send(ctx, o.deps.Messages.Progress("Account incomplete: email verification pending", a.Snapshot()))
		return
	}

	if !o.verifyEmail(ctx, page, a) {
		if ctx.Err() == nil {
			o.sendFailure(ctx, a)
		}
		return
	}
	o.send(ctx, o.deps.Messages.Progress("Email verified, logging in", a.Snapshot()))

	outcome, err := o.deps.Login.LoginAndExtractIdentifier(ctx, page, a, isBatch)
	if err != nil {
		o.abort(ctx, a, err)
		return
	}
	if outcome == login.LoginChallenged {
		if _, err := o.deps.Login.ResolveAdditionalVerification(ctx, page, a, o.deps.Mailbox, isBatch); err != nil {
			o.abort(ctx, a, err)
			return
		}
	}

	switch {
	case a.IsCompleted():
		o.send(ctx, o.deps.Messages.Success(a.Snapshot()))
	case a.IsFailed():
		o.sendFailure(ctx, a)
	default:
		o.send(ctx, o.deps.Messages.Progress("Account incomplete", a.Snapshot()))
	}
}

// verifyEmail finds the verification link and gets it clicked. It reports
// whether the attempt reached EmailVerified.
func (o *Orchestrator) verifyEmail(ctx context.Context, page browser.Page, a *account.Attempt) bool {
	log := o.logger.With(zap.String("email", a.Email))

	link, err := o.deps.Mailbox.FindVerificationLink(ctx, a.Email, o.cfg.LinkWaitMinutes)
	if err != nil {
		if ctx.Err() != nil {
			o.abort(ctx, a, ctx.Err())
			return false
		}
		o.fail(a, account.StatusEmailVerificationFailed, fmt.Sprintf("verification link: %v", err))
		return false
	}
	log.Info("Verification link found.", zap.String("mode", o.cfg.LinkMode))

	if o.cfg.LinkMode == LinkModeNotify && o.deps.Notifier != nil {
		o.send(ctx, o.deps.Messages.VerificationLink(a.Email, link))
		log.Info("Waiting for the link to be clicked.", zap.Duration("wait", o.cfg.ManualClickWait))
		if err := o.pause(ctx, o.cfg.ManualClickWait); err != nil {
			o.abort(ctx, a, err)
			return false
		}
	} else if err := page.Navigate(ctx, link); err != nil {
		if ctx.Err() != nil {
			o.abort(ctx, a, ctx.Err())
			return false
		}
		o.fail(a, account.StatusEmailVerificationFailed, fmt.Sprintf("failed to open verification link: %v", err))
		return false
	}

	if err := a.Update(account.StatusEmailVerified); err != nil {
		o.abort(ctx, a, err)
		return false
	}
	return true
}

// abort marks a CreationFailed unless it already ended.
func (o *Orchestrator) abort(ctx context.Context, a *account.Attempt, cause error) {
	if a.Status().IsTerminal() {
		return
	}
	reason := cause.Error()
	if ctx.Err() != nil {
		reason = "interrupted: " + reason
	}
	o.fail(a, account.StatusCreationFailed, reason)
}

func (o *Orchestrator) fail(a *account.Attempt, status account.Status, reason string) {
	if err := a.Fail(status, reason); err != nil {
		o.logger.Error("Failed to record attempt status.",
			zap.String("email", a.Email),
			zap.Stringer("status", status),
			zap.Error(err))
	}
}

func (o *Orchestrator) sendFailure(ctx context.Context, a *account.Attempt) {
	o.send(ctx, o.deps.Messages.Failure(a.Reason, a.Snapshot()))
}

// send delivers msg when a notifier is configured. Delivery failures are
// already logged by the notifier.
func (o *Orchestrator) send(ctx context.Context, msg notify.Message) {
	if o.deps.Notifier == nil {
		o.logger.Debug("Notification skipped.", zap.String("text", msg.Text))
		return
	}
	o.deps.Notifier.Send(ctx, msg)
}

func (o *Orchestrator) recordAttempt(ctx context.Context, batchID string, s account.Snapshot) {
	ctx = browser.Detach(ctx)
	for _, r := range o.deps.Recorders {
		if err := r.RecordAttempt(ctx, batchID, s); err != nil {
			o.logger.Warn("Failed to record attempt.", zap.String("email", s.Email), zap.Error(err))
		}
	}
}

func (o *Orchestrator) recordBatch(ctx context.Context, batchID string, r account.BatchResult) {
	for _, rec := range o.deps.Recorders {
		if err := rec.RecordBatch(ctx, batchID, r); err != nil {
			o.logger.Warn("Failed to record batch.", zap.String("batch_id", batchID), zap.Error(err))
		}
	}
}

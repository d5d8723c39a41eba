package signup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/enroll-cli/internal/account"
	"github.com/xkilldash9x/enroll-cli/internal/browser/browsertest"
)

const testSignupURL = "https://account.example.test/signup"

type formScript struct {
	// afterEmail is shown instead of the registration button when set.
	afterEmail   string
	skipPassword bool
	marketing    bool
}

// scriptedForm wires a fake page that walks through the four form pages.
func scriptedForm(s formScript) *browsertest.Page {
	p := browsertest.New()
	stage := "email"

	p.OnNavigate(testSignupURL, func(p *browsertest.Page) {
		p.Show(EmailInput, ContinueWithEmail)
	})
	p.OnClick(ContinueWithEmail, func(p *browsertest.Page) {
		if s.afterEmail != "" {
			p.Show(s.afterEmail)
			return
		}
		p.Show(SignUpButton)
	})
	p.OnClick(SignUpButton, func(p *browsertest.Page) {
		p.Reset()
		stage = "password"
		if !s.skipPassword {
			p.Show(NewPasswordInput, ConfirmPasswordInput, NextButton)
		}
	})
	p.OnClick(NextButton, func(p *browsertest.Page) {
		p.Reset()
		switch stage {
		case "password":
			stage = "nickname"
			p.Show(NicknameInput, NextButton)
		case "nickname":
			stage = "terms"
			p.Show(AgreeAllTerms, NextButton)
		case "terms":
			stage = "done"
			if s.marketing {
				p.Show(MarketingConfirm)
			}
		}
	})
	return p
}

type pauseRecorder struct {
	waits []time.Duration
}

func (r *pauseRecorder) pause(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func newTestDriver(r *pauseRecorder) *Driver {
	return NewDriver(Config{SignupURL: testSignupURL, WaitTimeout: time.Second}, WithPause(r.pause))
}

func newAttempt() *account.Attempt {
	return account.NewAttempt(account.Sandbox, "abc123@benx.com", "Passw0rd!", "Member_abc123")
}

func TestFillSignupFormSuccess(t *testing.T) {
	for _, marketing := range []bool{true, false} {
		name := "WithoutMarketingDialog"
		if marketing {
			name = "WithMarketingDialog"
		}
		t.Run(name, func(t *testing.T) {
			page := scriptedForm(formScript{marketing: marketing})
			rec := &pauseRecorder{}
			a := newAttempt()

			ok, err := newTestDriver(rec).FillSignupForm(context.Background(), page, a)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, account.StatusEmailVerificationPending, a.Status())
			assert.False(t, a.IsFailed())

			assert.Equal(t, a.Email, page.Value(EmailInput))
			assert.Equal(t, a.Password, page.Value(NewPasswordInput))
			assert.Equal(t, a.Password, page.Value(ConfirmPasswordInput))
			assert.Equal(t, a.Nickname, page.Value(NicknameInput))
			assert.True(t, page.Called("click "+AgreeAllTerms))
			assert.Equal(t, marketing, page.Called("click "+MarketingConfirm))

			want := []time.Duration{defaultPasswordSettle}
			if marketing {
				want = append(want, defaultDialogSettle)
			}
			assert.Equal(t, want, rec.waits)
		})
	}
}

func TestFillSignupFormEmailRejections(t *testing.T) {
	cases := []struct {
		name   string
		notice string
		want   error
	}{
		{"InvalidFormat", InvalidEmailNotice, ErrInvalidEmail},
		{"AlreadyRegistered", DuplicateEmailNotice, ErrDuplicateEmail},
		{"Unrecognized", "#captcha", ErrEmailBlocked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page := scriptedForm(formScript{afterEmail: tc.notice})
			a := newAttempt()

			ok, err := newTestDriver(&pauseRecorder{}).FillSignupForm(context.Background(), page, a)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, account.StatusEmailStepFailed, a.Status())
			assert.True(t, a.IsFailed())
			assert.Equal(t, tc.want.Error(), a.Reason)
			assert.False(t, page.Called("fill "+NewPasswordInput), "later steps must not run")
		})
	}
}

func TestFillSignupFormPasswordStepFails(t *testing.T) {
	page := scriptedForm(formScript{skipPassword: true})
	a := newAttempt()

	ok, err := newTestDriver(&pauseRecorder{}).FillSignupForm(context.Background(), page, a)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, account.StatusPasswordStepFailed, a.Status())
	assert.Contains(t, a.Reason, "password input")
	assert.False(t, page.Called("fill "+NicknameInput))
}

func TestFillSignupFormLaterSteps(t *testing.T) {
	t.Run("NicknameFillFails", func(t *testing.T) {
		page := scriptedForm(formScript{})
		page.FailOn("fill", NicknameInput, errors.New("detached node"))
		a := newAttempt()

		ok, err := newTestDriver(&pauseRecorder{}).FillSignupForm(context.Background(), page, a)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, account.StatusNicknameStepFailed, a.Status())
	})

	t.Run("TermsClickFails", func(t *testing.T) {
		page := scriptedForm(formScript{})
		page.FailOn("click", AgreeAllTerms, errors.New("not clickable"))
		a := newAttempt()

		ok, err := newTestDriver(&pauseRecorder{}).FillSignupForm(context.Background(), page, a)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, account.StatusTermsStepFailed, a.Status())
	})

	t.Run("MarketingDialogClickFailureIsIgnored", func(t *testing.T) {
		page := scriptedForm(formScript{marketing: true})
		page.FailOn("click", MarketingConfirm, errors.New("gone"))
		a := newAttempt()

		ok, err := newTestDriver(&pauseRecorder{}).FillSignupForm(context.Background(), page, a)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, account.StatusEmailVerificationPending, a.Status())
	})
}

func TestFillSignupFormNavigationFailure(t *testing.T) {
	page := scriptedForm(formScript{})
	page.FailOn("navigate", testSignupURL, errors.New("net::ERR_NAME_NOT_RESOLVED"))
	a := newAttempt()

	ok, err := newTestDriver(&pauseRecorder{}).FillSignupForm(context.Background(), page, a)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, account.StatusCreationFailed, a.Status())
}

func TestFillSignupFormCanceled(t *testing.T) {
	page := scriptedForm(formScript{})
	ctx, cancel := context.WithCancel(context.Background())
	page.OnClick(SignUpButton, func(*browsertest.Page) { cancel() })
	a := newAttempt()

	ok, err := newTestDriver(&pauseRecorder{}).FillSignupForm(ctx, page, a)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, account.StatusCreated, a.Status(), "cancellation leaves the status to the caller")
}

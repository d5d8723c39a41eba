package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/config"
	"github.com/xkilldash9x/enroll-cli/internal/login"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
)

func TestNewMailbox(t *testing.T) {
	metrics := observability.NewMetrics()

	t.Run("None", func(t *testing.T) {
		cfg := config.NewDefaultConfig().Mail
		mailbox, sink, err := NewMailbox(cfg, metrics)
		require.NoError(t, err)
		assert.Nil(t, mailbox, "no provider means no mailbox, not a typed nil")
		assert.Nil(t, sink)
	})

	t.Run("SMTPSink", func(t *testing.T) {
		cfg := config.NewDefaultConfig().Mail
		cfg.Provider = "SMTP_SINK"
		mailbox, sink, err := NewMailbox(cfg, metrics)
		require.NoError(t, err)
		assert.NotNil(t, mailbox)
		require.NotNil(t, sink)
		assert.Zero(t, sink.Len())
	})

	t.Run("GmailRefreshToken", func(t *testing.T) {
		cfg := config.NewDefaultConfig().Mail
		cfg.Provider = "gmail"
		cfg.Gmail.ClientID = "client"
		cfg.Gmail.ClientSecret = "secret"
		cfg.Gmail.RefreshToken = "refresh"
		mailbox, sink, err := NewMailbox(cfg, metrics)
		require.NoError(t, err)
		assert.NotNil(t, mailbox)
		assert.Nil(t, sink)
	})

	t.Run("GmailMissingCredentialsFile", func(t *testing.T) {
		cfg := config.NewDefaultConfig().Mail
		cfg.Provider = "gmail"
		cfg.Gmail.CredentialsFile = filepath.Join(t.TempDir(), "missing.json")
		_, _, err := NewMailbox(cfg, metrics)
		assert.ErrorContains(t, err, "failed to initialize gmail credentials")
	})

	t.Run("Unsupported", func(t *testing.T) {
		cfg := config.NewDefaultConfig().Mail
		cfg.Provider = "imap"
		_, _, err := NewMailbox(cfg, metrics)
		assert.EqualError(t, err, "unsupported mail provider: imap")
	})
}

func TestInitializeStoreRejectsBadURL(t *testing.T) {
	_, _, err := InitializeStore(context.Background(), config.DatabaseConfig{URL: "postgres://%zz"}, zap.NewNop())
	assert.ErrorContains(t, err, "unable to parse database url")
}

func TestIdentityPolicy(t *testing.T) {
	cfg := config.NewDefaultConfig().Identity
	policy := IdentityPolicy(cfg)
	assert.Equal(t, "benx.com", policy.SandboxDomain)
	assert.Equal(t, "gmail.com", policy.ProductionDomain)
	assert.Equal(t, 8, policy.PasswordMinLength)
	assert.Equal(t, 12, policy.PasswordMaxLength)
	assert.Equal(t, "Member_", policy.NicknamePrefix)
	assert.Equal(t, 6, policy.NicknameSuffixLen)
}

func TestLoginConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Site.LoginURL = "https://example.test/login"
	cfg.Site.MypageURL = "https://example.test/more"
	cfg.Site.IdentifierAPIPaths = []string{"api/me"}
	cfg.Site.IdentifierField = "member_id"
	cfg.Browser.WaitTimeout = 7 * time.Second
	cfg.Verification.IdentifierWait = 11 * time.Second
	cfg.Verification.ChallengeGrace = 4 * time.Second
	cfg.Verification.ChallengeCodeStrategy = "latest"

	lc := LoginConfig(cfg)
	assert.Equal(t, "https://example.test/login", lc.LoginURL)
	assert.Equal(t, "https://example.test/more", lc.MypageURL)
	assert.Equal(t, []string{"api/me"}, lc.IdentifierAPIPaths)
	assert.Equal(t, "member_id", lc.IdentifierField)
	assert.Equal(t, 7*time.Second, lc.WaitTimeout)
	assert.Equal(t, 11*time.Second, lc.IdentifierWait)
	assert.Equal(t, 4*time.Second, lc.ChallengeGrace)
	assert.Equal(t, login.CodeLatest, lc.CodeStrategy)
	assert.Equal(t, login.DefaultConfig().LogoutSettle, lc.LogoutSettle, "unmapped timings keep their defaults")
}

func TestSignupConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	sc := SignupConfig(cfg)
	assert.Equal(t, cfg.Site.SignupURL, sc.SignupURL)
	assert.Equal(t, 15*time.Second, sc.WaitTimeout)
}

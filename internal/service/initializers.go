package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/config"
	"github.com/xkilldash9x/enroll-cli/internal/identity"
	"github.com/xkilldash9x/enroll-cli/internal/login"
	"github.com/xkilldash9x/enroll-cli/internal/mailverify"
	"github.com/xkilldash9x/enroll-cli/internal/mailverify/gmail"
	"github.com/xkilldash9x/enroll-cli/internal/mailverify/smtpsink"
	"github.com/xkilldash9x/enroll-cli/internal/network"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
	"github.com/xkilldash9x/enroll-cli/internal/orchestrator"
	"github.com/xkilldash9x/enroll-cli/internal/signup"
	"github.com/xkilldash9x/enroll-cli/internal/store"
)

// InitializeStore connects to PostgreSQL, verifies the connection and makes
// sure the tables exist. The caller owns the returned pool.
func InitializeStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*store.Store, *pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse database url: %w", err)
	}
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create database pool: %w", err)
	}

	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

// NewMailbox builds the verification mail resolver for the configured
// provider. It returns a nil Mailbox for provider "none". The sink is
// non-nil only for "smtp_sink" and must be served by the caller.
func NewMailbox(cfg config.MailConfig, metrics *observability.Metrics) (orchestrator.Mailbox, *smtpsink.Sink, error) {
	var (
		searcher mailverify.Searcher
		sink     *smtpsink.Sink
	)

	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return nil, nil, nil
	case "gmail":
		g := cfg.Gmail
		httpClient := network.NewClient(network.NewDefaultClientConfig())
		subject := g.User
		if subject == "me" {
			subject = ""
		}
		tokens, err := gmail.NewTokenSource(gmail.Credentials{
			File:         g.CredentialsFile,
			ClientID:     g.ClientID,
			ClientSecret: g.ClientSecret,
			RefreshToken: g.RefreshToken,
			User:         subject,
			TokenURL:     g.TokenURL,
		}, httpClient)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize gmail credentials: %w", err)
		}
		searcher = gmail.NewClient(gmail.Config{
			BaseURL:           g.BaseURL,
			User:              g.User,
			RequestsPerSecond: g.RequestsPerSecond,
		}, tokens, gmail.WithHTTPClient(httpClient))
	case "smtp_sink":
		s := cfg.SMTPSink
		sink = smtpsink.New(smtpsink.Config{
			ListenAddr:      s.ListenAddr,
			Domain:          s.Domain,
			MaxMessageBytes: s.MaxMessageBytes,
			Retain:          s.Retain,
			AcceptDomains:   s.AcceptDomains,
		})
		searcher = sink
	default:
		return nil, nil, fmt.Errorf("unsupported mail provider: %s", cfg.Provider)
	}

	resolver := mailverify.NewResolver(searcher, mailverify.Options{
		PollInterval: cfg.PollInterval,
		LinkQuery: mailverify.Query{
			From:    cfg.LinkSenders,
			Subject: cfg.LinkSubjects,
		},
		CodeQuery: mailverify.Query{
			From:     []string{cfg.CodeSender},
			Subject:  []string{cfg.CodeSubject},
			MatchAll: true,
		},
		FilterRecipient: cfg.Gmail.FilterRecipient,
		LinkDomain:      cfg.LinkDomain,
	}, mailverify.WithMetrics(metrics))
	return resolver, sink, nil
}

// IdentityPolicy maps the identity section of the configuration.
func IdentityPolicy(cfg config.IdentityConfig) identity.Policy {
	return identity.Policy{
		SandboxDomain:     cfg.SandboxDomain,
		ProductionDomain:  cfg.ProductionDomain,
		PasswordMinLength: cfg.PasswordMinLength,
		PasswordMaxLength: cfg.PasswordMaxLength,
		PasswordSymbols:   cfg.PasswordSymbols,
		NicknamePrefix:    cfg.NicknamePrefix,
		NicknameSuffixLen: cfg.NicknameSuffixLen,
	}
}

// SignupConfig maps the site and browser sections for the form driver.
func SignupConfig(cfg *config.Config) signup.Config {
	return signup.Config{
		SignupURL:   cfg.Site.SignupURL,
		WaitTimeout: cfg.Browser.WaitTimeout,
	}
}

// LoginConfig starts from the login defaults and applies the configured
// site locations and verification timings.
func LoginConfig(cfg *config.Config) login.Config {
	lc := login.DefaultConfig()
	lc.LoginURL = cfg.Site.LoginURL
	lc.MypageURL = cfg.Site.MypageURL
	if len(cfg.Site.IdentifierAPIPaths) > 0 {
		lc.IdentifierAPIPaths = cfg.Site.IdentifierAPIPaths
	}
	if cfg.Site.IdentifierField != "" {
		lc.IdentifierField = cfg.Site.IdentifierField
	}
	if cfg.Browser.WaitTimeout > 0 {
		lc.WaitTimeout = cfg.Browser.WaitTimeout
	}
	if cfg.Verification.IdentifierWait > 0 {
		lc.IdentifierWait = cfg.Verification.IdentifierWait
	}
	if cfg.Verification.ChallengeGrace > 0 {
		lc.ChallengeGrace = cfg.Verification.ChallengeGrace
	}
	if cfg.Verification.ChallengeCodeStrategy != "" {
		lc.CodeStrategy = login.CodeStrategy(cfg.Verification.ChallengeCodeStrategy)
	}
	return lc
}

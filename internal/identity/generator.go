// Package identity produces the email, password and nickname of each
// account attempt.
package identity

import (
	"fmt"
	mrand "math/rand/v2"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/account"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
)

const (
	lowerAlnum = "abcdefghijklmnopqrstuvwxyz0123456789"

	sandboxLocalPartLen = 8
	// maxVariantAttempts bounds the dot-variant search before the
	// timestamp fallback takes over.
	maxVariantAttempts = 100
)

// Policy holds the generation rules.
type Policy struct {
	SandboxDomain     string
	ProductionDomain  string
	PasswordMinLength int
	PasswordMaxLength int
	PasswordSymbols   string
	NicknamePrefix    string
	NicknameSuffixLen int
}

// DefaultPolicy mirrors the built-in configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		SandboxDomain:     "benx.com",
		ProductionDomain:  "gmail.com",
		PasswordMinLength: 8,
		PasswordMaxLength: 12,
		PasswordSymbols:   "!@#$%^&*",
		NicknamePrefix:    "Member_",
		NicknameSuffixLen: 6,
	}
}

// Generator issues identities for one batch run. It remembers every email it
// has handed out so no two attempts of the run share one. A Generator is
// not safe for concurrent use.
type Generator struct {
	policy     Policy
	issued     map[string]struct{}
	rng        *mrand.Rand
	now        func() time.Time
	strategies []dotStrategy
	logger     *zap.Logger
}

// Option customizes a Generator.
type Option func(*Generator)

// WithRand replaces the random source, mainly for deterministic tests.
func WithRand(r *mrand.Rand) Option {
	return func(g *Generator) { g.rng = r }
}

// WithClock replaces the clock used by the timestamp-based fallbacks.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a Generator with an empty issued set.
func NewGenerator(policy Policy, opts ...Option) *Generator {
	g := &Generator{
		policy:     policy,
		issued:     make(map[string]struct{}),
		rng:        mrand.New(mrand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		now:        time.Now,
		strategies: defaultStrategies(),
		logger:     observability.GetLogger().Named("identity"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateEmail returns an address not yet issued by this Generator.
func (g *Generator) GenerateEmail(env account.Environment, baseAddress string) (string, error) {
	switch env {
	case account.Sandbox:
		return g.sandboxEmail(), nil
	case account.Production:
		if baseAddress == "" {
			return "", &account.ConfigurationError{Field: "base_email", Reason: "is required for the production environment"}
		}
		return g.productionEmail(baseAddress)
	}
	return "", &account.ConfigurationError{Field: "environment", Reason: fmt.Sprintf("unsupported value %q", env)}
}

// Reserve marks an externally supplied email as issued.
func (g *Generator) Reserve(email string) {
	g.issued[strings.ToLower(email)] = struct{}{}
}

// Clear forgets every issued email.
func (g *Generator) Clear() {
	g.issued = make(map[string]struct{})
}

// IssuedCount returns how many emails have been issued since the last Clear.
func (g *Generator) IssuedCount() int {
	return len(g.issued)
}

// tryIssue records email and reports whether it was new.
func (g *Generator) tryIssue(email string) bool {
	key := strings.ToLower(email)
	if _, taken := g.issued[key]; taken {
		return false
	}
	g.issued[key] = struct{}{}
	return true
}

func (g *Generator) sandboxEmail() string {
	for {
		email := g.randomString(lowerAlnum, sandboxLocalPartLen) + "@" + g.policy.SandboxDomain
		if g.tryIssue(email) {
			return email
		}
	}
}

func (g *Generator) productionEmail(base string) (string, error) {
	user, domain, ok := strings.Cut(base, "@")
	if !ok || user == "" || !strings.EqualFold(domain, g.policy.ProductionDomain) {
		return "", &account.ConfigurationError{
			Field:  "base_email",
			Reason: fmt.Sprintf("must be an @%s address, got %q", g.policy.ProductionDomain, base),
		}
	}
	// Existing dots carry no meaning for dot-insensitive mailboxes.
	user = strings.ReplaceAll(user, ".", "")

	for attempt := 0; attempt < maxVariantAttempts; attempt++ {
		strategy, offset := g.strategyFor(attempt)
		email := strategy.apply(g, user, attempt-offset) + "@" + domain
		if g.tryIssue(email) {
			g.logger.Debug("Issued dot variant.",
				zap.String("strategy", strategy.name),
				zap.Int("attempt", attempt))
			return email, nil
		}
	}

	for {
		email := fmt.Sprintf("%s.%s.%s@%s", user, g.millisSuffix(6), g.randomString(lowerAlnum, 3), domain)
		if g.tryIssue(email) {
			g.logger.Info("Dot variants exhausted, using timestamp fallback.", zap.String("email", email))
			return email, nil
		}
	}
}

// strategyFor returns the strategy responsible for attempt and the attempt
// index at which it took over.
func (g *Generator) strategyFor(attempt int) (dotStrategy, int) {
	start := 0
	for _, s := range g.strategies {
		if attempt < s.until {
			return s, start
		}
		start = s.until
	}
	last := g.strategies[len(g.strategies)-1]
	return last, start
}

func (g *Generator) randomString(alphabet string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[g.rng.IntN(len(alphabet))]
	}
	return string(b)
}

// millisSuffix returns the last n digits of the current Unix time in ms.
func (g *Generator) millisSuffix(n int) string {
	ms := strconv.FormatInt(g.now().UnixMilli(), 10)
	if len(ms) > n {
		ms = ms[len(ms)-n:]
	}
	return ms
}

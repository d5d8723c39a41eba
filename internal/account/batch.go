package account

import (
	"strings"
	"time"
)

// Environment selects the target deployment and its mailbox strategy.
type Environment string

const (
	Sandbox    Environment = "sandbox"
	Production Environment = "production"
)

// ParseEnvironment accepts the canonical names and the legacy aliases
// "qa" and "real".
func ParseEnvironment(name string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sandbox", "qa":
		return Sandbox, nil
	case "production", "real":
		return Production, nil
	}
	return "", &ConfigurationError{Field: "environment", Reason: "must be sandbox or production, got " + name}
}

// BatchConfig is the immutable input to one orchestration run. Build it
// with NewBatchConfig so it is always validated.
type BatchConfig struct {
	Environment Environment
	Count       int
	// BaseEmail is the mailbox whose dot variants are used in production.
	BaseEmail      string
	CustomPassword string
	CustomNickname string
	// EmailOverride, when set, bypasses email generation. Only valid for a
	// single attempt.
	EmailOverride   string
	Delay           time.Duration
	ContinueOnError bool
	// NotificationTarget names where notifications go (informational).
	NotificationTarget string
}

// NewBatchConfig validates c and returns it.
func NewBatchConfig(c BatchConfig) (BatchConfig, error) {
	if err := c.Validate(); err != nil {
		return BatchConfig{}, err
	}
	return c, nil
}

// Validate enforces the pre-flight rules of a batch.
func (c BatchConfig) Validate() error {
	switch c.Environment {
	case Sandbox, Production:
	default:
		return &ConfigurationError{Field: "environment", Reason: "must be sandbox or production"}
	}
	if c.Count < 1 {
		return &ConfigurationError{Field: "count", Reason: "must be at least 1"}
	}
	if c.Delay < 0 {
		return &ConfigurationError{Field: "delay", Reason: "must not be negative"}
	}
	if c.Environment == Production && c.BaseEmail == "" && c.EmailOverride == "" {
		return &ConfigurationError{Field: "base_email", Reason: "is required for the production environment"}
	}
	if c.EmailOverride != "" && c.Count != 1 {
		return &ConfigurationError{Field: "email", Reason: "override can only be used with a count of 1"}
	}
	return nil
}

// IsBatch reports whether more than one attempt will run.
func (c BatchConfig) IsBatch() bool {
	return c.Count > 1
}

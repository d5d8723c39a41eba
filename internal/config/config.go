// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	Browser      BrowserConfig      `mapstructure:"browser" yaml:"browser"`
	Site         SiteConfig         `mapstructure:"site" yaml:"site"`
	Identity     IdentityConfig     `mapstructure:"identity" yaml:"identity"`
	Mail         MailConfig         `mapstructure:"mail" yaml:"mail"`
	Verification VerificationConfig `mapstructure:"verification" yaml:"verification"`
	Notify       NotifyConfig       `mapstructure:"notify" yaml:"notify"`
	Batch        BatchConfig        `mapstructure:"batch" yaml:"batch"`
	Output       OutputConfig       `mapstructure:"output" yaml:"output"`
	Database     DatabaseConfig     `mapstructure:"database" yaml:"database"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color settings for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the Chrome instance driven through chromedp.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	DisableCache    bool           `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
	UserAgent       string         `mapstructure:"user_agent" yaml:"user_agent"`

	// Stealth installs a browser persona on every session.
	Stealth  bool   `mapstructure:"stealth" yaml:"stealth"`
	Locale   string `mapstructure:"locale" yaml:"locale"`
	Timezone string `mapstructure:"timezone" yaml:"timezone"`

	// Timeout bounds page navigations.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// WaitTimeout bounds individual element waits.
	WaitTimeout time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`

	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// SiteConfig describes the target platform's entry points.
type SiteConfig struct {
	SignupURL          string   `mapstructure:"signup_url" yaml:"signup_url"`
	LoginURL           string   `mapstructure:"login_url" yaml:"login_url"`
	MypageURL          string   `mapstructure:"mypage_url" yaml:"mypage_url"`
	IdentifierAPIPaths []string `mapstructure:"identifier_api_paths" yaml:"identifier_api_paths"`
	IdentifierField    string   `mapstructure:"identifier_field" yaml:"identifier_field"`
}

// IdentityConfig feeds the identity generator.
type IdentityConfig struct {
	SandboxDomain     string `mapstructure:"sandbox_domain" yaml:"sandbox_domain"`
	ProductionDomain  string `mapstructure:"production_domain" yaml:"production_domain"`
	PasswordMinLength int    `mapstructure:"password_min_length" yaml:"password_min_length"`
	PasswordMaxLength int    `mapstructure:"password_max_length" yaml:"password_max_length"`
	PasswordSymbols   string `mapstructure:"password_symbols" yaml:"password_symbols"`
	NicknamePrefix    string `mapstructure:"nickname_prefix" yaml:"nickname_prefix"`
	NicknameSuffixLen int    `mapstructure:"nickname_suffix_length" yaml:"nickname_suffix_length"`
}

// MailConfig selects and configures the mailbox searched for verification mail.
type MailConfig struct {
	// Provider is one of "none", "gmail" or "smtp_sink".
	Provider     string         `mapstructure:"provider" yaml:"provider"`
	PollInterval time.Duration  `mapstructure:"poll_interval" yaml:"poll_interval"`
	LinkDomain   string         `mapstructure:"link_domain" yaml:"link_domain"`
	LinkSenders  []string       `mapstructure:"link_senders" yaml:"link_senders"`
	LinkSubjects []string       `mapstructure:"link_subjects" yaml:"link_subjects"`
	CodeSender   string         `mapstructure:"code_sender" yaml:"code_sender"`
	CodeSubject  string         `mapstructure:"code_subject" yaml:"code_subject"`
	Gmail        GmailConfig    `mapstructure:"gmail" yaml:"gmail"`
	SMTPSink     SMTPSinkConfig `mapstructure:"smtp_sink" yaml:"smtp_sink"`
}

// GmailConfig holds credentials for the Gmail REST API. Either a refresh
// token (with client id/secret) or a service account key file is required.
type GmailConfig struct {
	User              string  `mapstructure:"user" yaml:"user"`
	ClientID          string  `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret      string  `mapstructure:"client_secret" yaml:"client_secret"`
	RefreshToken      string  `mapstructure:"refresh_token" yaml:"refresh_token"`
	CredentialsFile   string  `mapstructure:"credentials_file" yaml:"credentials_file"`
	FilterRecipient   bool    `mapstructure:"filter_recipient" yaml:"filter_recipient"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url"`
	TokenURL          string  `mapstructure:"token_url" yaml:"token_url"`
}

// SMTPSinkConfig configures the in-process SMTP mailbox.
type SMTPSinkConfig struct {
	ListenAddr      string `mapstructure:"listen_addr" yaml:"listen_addr"`
	Domain          string `mapstructure:"domain" yaml:"domain"`
	MaxMessageBytes int64  `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	Retain          int    `mapstructure:"retain" yaml:"retain"`

	// AcceptDomains limits accepted recipients; empty accepts any domain.
	AcceptDomains []string `mapstructure:"accept_domains" yaml:"accept_domains"`
}

// VerificationConfig tunes the email verification and challenge phases.
type VerificationConfig struct {
	// LinkMode is "notify" (hand the link to a human) or "browse" (open it).
	LinkMode        string        `mapstructure:"link_mode" yaml:"link_mode"`
	LinkWaitMinutes int           `mapstructure:"link_wait_minutes" yaml:"link_wait_minutes"`
	ManualClickWait time.Duration `mapstructure:"manual_click_wait" yaml:"manual_click_wait"`
	PostSignupDelay time.Duration `mapstructure:"post_signup_delay" yaml:"post_signup_delay"`
	ChallengeGrace  time.Duration `mapstructure:"challenge_grace" yaml:"challenge_grace"`
	IdentifierWait  time.Duration `mapstructure:"identifier_wait" yaml:"identifier_wait"`

	// ChallengeCodeStrategy is "after" or "latest".
	ChallengeCodeStrategy string `mapstructure:"challenge_code_strategy" yaml:"challenge_code_strategy"`
}

// NotifyConfig configures outbound notifications.
type NotifyConfig struct {
	SlackWebhookURL string        `mapstructure:"slack_webhook_url" yaml:"slack_webhook_url"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RatePerSecond   float64       `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Burst           int           `mapstructure:"burst" yaml:"burst"`
	MaskPasswords   bool          `mapstructure:"mask_passwords" yaml:"mask_passwords"`
}

// BatchConfig carries the defaults for a creation run. CLI flags override it.
type BatchConfig struct {
	Environment     string        `mapstructure:"environment" yaml:"environment"`
	Count           int           `mapstructure:"count" yaml:"count"`
	BaseEmail       string        `mapstructure:"base_email" yaml:"base_email"`
	CustomPassword  string        `mapstructure:"custom_password" yaml:"custom_password"`
	CustomNickname  string        `mapstructure:"custom_nickname" yaml:"custom_nickname"`
	Delay           time.Duration `mapstructure:"delay" yaml:"delay"`
	ContinueOnError bool          `mapstructure:"continue_on_error" yaml:"continue_on_error"`

	// MaxConcurrent is accepted for compatibility; runs are sequential.
	MaxConcurrent int `mapstructure:"max_concurrent" yaml:"max_concurrent"`
}

// OutputConfig controls where result files are written.
type OutputConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// DatabaseConfig holds the optional PostgreSQL connection string.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// NewDefaultConfig returns a Config populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "enroll-cli")
	v.SetDefault("logger.log_file", "logs/enroll.log")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.compress", false)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.disable_cache", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.timeout", "30s")
	v.SetDefault("browser.wait_timeout", "15s")
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 900})
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.locale", "ko-KR")
	v.SetDefault("browser.timezone", "Asia/Seoul")

	// -- Site --
	v.SetDefault("site.signup_url", "https://account.weverse.io/ko/signup?client_id=weverse&redirect_uri=https%3A%2F%2Fweverse.io%2F&redirect_method=COOKIE")
	v.SetDefault("site.login_url", "https://account.weverse.io/ko/login")
	v.SetDefault("site.mypage_url", "https://weverse.io/more")
	v.SetDefault("site.identifier_api_paths", []string{"users/v1.0/users/me", "users/v1.0/users/account/me"})
	v.SetDefault("site.identifier_field", "wid")

	// -- Identity --
	v.SetDefault("identity.sandbox_domain", "benx.com")
	v.SetDefault("identity.production_domain", "gmail.com")
	v.SetDefault("identity.password_min_length", 8)
	v.SetDefault("identity.password_max_length", 12)
	v.SetDefault("identity.password_symbols", "!@#$%^&*")
	v.SetDefault("identity.nickname_prefix", "Member_")
	v.SetDefault("identity.nickname_suffix_length", 6)

	// -- Mail --
	v.SetDefault("mail.provider", "none")
	v.SetDefault("mail.poll_interval", "5s")
	v.SetDefault("mail.link_domain", "weverse")
	v.SetDefault("mail.link_senders", []string{"weverse", "hybe"})
	v.SetDefault("mail.link_subjects", []string{"weverse", "인증", "verification"})
	v.SetDefault("mail.code_sender", "noreply@weverse.io")
	v.SetDefault("mail.code_subject", "이메일 인증을 완료해주세요")
	v.SetDefault("mail.gmail.user", "me")
	v.SetDefault("mail.gmail.requests_per_second", 5.0)
	v.SetDefault("mail.gmail.base_url", "https://gmail.googleapis.com/gmail/v1")
	v.SetDefault("mail.gmail.token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("mail.smtp_sink.listen_addr", "127.0.0.1:2525")
	v.SetDefault("mail.smtp_sink.domain", "localhost")
	v.SetDefault("mail.smtp_sink.max_message_bytes", 10*1024*1024)
	v.SetDefault("mail.smtp_sink.retain", 500)

	// -- Verification --
	v.SetDefault("verification.link_mode", "notify")
	v.SetDefault("verification.link_wait_minutes", 2)
	v.SetDefault("verification.manual_click_wait", "90s")
	v.SetDefault("verification.post_signup_delay", "3s")
	v.SetDefault("verification.challenge_grace", "10s")
	v.SetDefault("verification.challenge_code_strategy", "after")
	v.SetDefault("verification.identifier_wait", "20s")

	// -- Notify --
	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("notify.rate_per_second", 1.0)
	v.SetDefault("notify.burst", 3)
	v.SetDefault("notify.mask_passwords", false)

	// -- Batch --
	v.SetDefault("batch.environment", "sandbox")
	v.SetDefault("batch.count", 1)
	v.SetDefault("batch.delay", "5s")
	v.SetDefault("batch.continue_on_error", true)
	v.SetDefault("batch.max_concurrent", 1)

	// -- Output --
	v.SetDefault("output.dir", "output")
}

// NewConfigFromViper unmarshals, normalizes and validates the configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets usually arrive through the environment or a .env file.
	_ = v.BindEnv("notify.slack_webhook_url", "ENROLL_SLACK_WEBHOOK_URL", "SLACK_WEBHOOK_URL")
	_ = v.BindEnv("mail.gmail.refresh_token", "ENROLL_GMAIL_REFRESH_TOKEN")
	_ = v.BindEnv("mail.gmail.client_secret", "ENROLL_GMAIL_CLIENT_SECRET")
	_ = v.BindEnv("database.url", "ENROLL_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in every file system path.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Output.Dir, &c.Logger.LogFile, &c.Mail.Gmail.CredentialsFile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
// Batch-level rules (base email for production, count) are enforced again
// by account.BatchConfig once CLI flags have been applied.
func (c *Config) Validate() error {
	if c.Browser.WaitTimeout <= 0 {
		return fmt.Errorf("browser.wait_timeout must be positive")
	}
	if c.Identity.PasswordMinLength < 4 {
		return fmt.Errorf("identity.password_min_length must be at least 4")
	}
	if c.Identity.PasswordMaxLength < c.Identity.PasswordMinLength {
		return fmt.Errorf("identity.password_max_length must not be less than identity.password_min_length")
	}
	if c.Identity.PasswordSymbols == "" {
		return fmt.Errorf("identity.password_symbols must not be empty")
	}
	switch strings.ToLower(c.Mail.Provider) {
	case "", "none", "smtp_sink":
	case "gmail":
		g := c.Mail.Gmail
		if g.CredentialsFile == "" && (g.RefreshToken == "" || g.ClientID == "" || g.ClientSecret == "") {
			return fmt.Errorf("mail.gmail requires either credentials_file or client_id, client_secret and refresh_token")
		}
	default:
		return fmt.Errorf("mail.provider %q is not supported", c.Mail.Provider)
	}
	if c.Mail.PollInterval <= 0 {
		return fmt.Errorf("mail.poll_interval must be positive")
	}
	switch c.Verification.LinkMode {
	case "notify", "browse":
	default:
		return fmt.Errorf("verification.link_mode must be 'notify' or 'browse'")
	}
	switch c.Verification.ChallengeCodeStrategy {
	case "after", "latest":
	default:
		return fmt.Errorf("verification.challenge_code_strategy must be 'after' or 'latest'")
	}
	if c.Verification.LinkWaitMinutes < 1 {
		return fmt.Errorf("verification.link_wait_minutes must be at least 1")
	}
	if c.Batch.Count < 1 {
		return fmt.Errorf("batch.count must be at least 1")
	}
	if c.Batch.Delay < 0 {
		return fmt.Errorf("batch.delay must not be negative")
	}
	if c.Batch.MaxConcurrent < 1 {
		return fmt.Errorf("batch.max_concurrent must be a positive integer")
	}
	return nil
}

// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/browser/stealth"
	"github.com/xkilldash9x/enroll-cli/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// Manager owns the Chrome process and hands out isolated sessions. The
// browser is started lazily on the first NewSession call.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	sessions map[string]*Session
	mu       sync.Mutex
	wg       sync.WaitGroup

	initOnce sync.Once
	initErr  error
}

// NewManager creates a manager. No process is started until a session is
// requested.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:      cfg,
		logger:   logger.Named("browser_manager"),
		sessions: make(map[string]*Session),
	}
	m.logger.Debug("Browser manager created (initialization deferred).")
	return m
}

func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Launching browser.", zap.Bool("headless", m.cfg.Headless))

		// The browser outlives the request that happened to start it.
		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(Detach(ctx), DefaultAllocatorOptions(m.cfg)...)

		var ctxOpts []chromedp.ContextOption
		if m.cfg.Debug {
			ctxOpts = append(ctxOpts, chromedp.WithDebugf(m.logger.Sugar().Debugf))
		}
		m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocCtx, ctxOpts...)

		// The first Run allocates the process and binds it to its context,
		// so it must not carry the caller's deadline.
		if err := chromedp.Run(m.browserCtx); err != nil {
			m.browserCancel()
			m.allocCancel()
			m.browserCtx = nil
			m.initErr = fmt.Errorf("failed to launch browser instance: %w", err)
			return
		}
		m.logger.Info("Browser launched.")
	})
	return m.initErr
}

// NewSession opens a tab in a fresh browser context so cookies and storage
// never leak between attempts.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx, chromedp.WithNewBrowserContext())

	m.wg.Add(1)
	var session *Session
	session = newSession(tabCtx, tabCancel, m.cfg, m.logger, func() {
		m.mu.Lock()
		delete(m.sessions, session.ID())
		m.mu.Unlock()
		m.wg.Done()
	})

	setup := []chromedp.Action{}
	if w, h := m.cfg.Viewport["width"], m.cfg.Viewport["height"]; w > 0 && h > 0 {
		setup = append(setup, chromedp.EmulateViewport(int64(w), int64(h)))
	}
	if m.cfg.Stealth {
		setup = append(setup, stealth.Apply(PersonaFor(m.cfg), m.logger))
	} else if m.cfg.UserAgent != "" {
		setup = append(setup, emulation.SetUserAgentOverride(m.cfg.UserAgent))
	}
	// Same as the browser: the first Run creates the target for tabCtx.
	if err := chromedp.Run(tabCtx, setup...); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	m.logger.Debug("New session created.", zap.String("session_id", session.ID()))
	return session, nil
}

// OpenPage is NewSession behind the Page interface. The returned func
// closes the session.
func (m *Manager) OpenPage(ctx context.Context) (Page, func() error, error) {
	s, err := m.NewSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

// Shutdown closes every session and then the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		_ = s.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Timed out waiting for sessions to close.", zap.Error(ctx.Err()))
	}

	if m.browserCtx == nil {
		return nil
	}

	cancelCtx, cancel := context.WithTimeout(Detach(ctx), shutdownGracePeriod)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- chromedp.Cancel(m.browserCtx) }()

	var err error
	select {
	case err = <-errCh:
	case <-cancelCtx.Done():
		err = fmt.Errorf("browser did not exit within %s", shutdownGracePeriod)
	}
	m.browserCancel()
	m.allocCancel()
	m.logger.Info("Browser shut down.")
	return err
}

// PersonaFor overlays the configured user agent, locale and timezone on
// the default persona.
func PersonaFor(cfg config.BrowserConfig) stealth.Persona {
	p := stealth.DefaultPersona
	p.Languages = append([]string(nil), p.Languages...)
	if cfg.UserAgent != "" {
		p.UserAgent = cfg.UserAgent
	}
	if cfg.Timezone != "" {
		p.Timezone = cfg.Timezone
	}
	if cfg.Locale != "" && cfg.Locale != p.Locale {
		p.Locale = cfg.Locale
		lang, _, _ := strings.Cut(cfg.Locale, "-")
		p.Languages = []string{cfg.Locale}
		if lang != cfg.Locale {
			p.Languages = append(p.Languages, lang)
		}
	}
	return p
}

// DefaultAllocatorOptions builds the Chrome launch options for cfg.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	flags := allocatorFlags(cfg)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

// allocatorFlags returns the command line switches, keyed without the
// leading dashes. User supplied args win over the defaults.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":                 cfg.Headless,
		"hide-scrollbars":          cfg.Headless,
		"mute-audio":               true,
		"disable-gpu":              true,
		"no-sandbox":               true,
		"disable-dev-shm-usage":    true,
		"no-first-run":             true,
		"no-default-browser-check": true,
		"enable-automation":        false,
		"disable-blink-features":   "AutomationControlled",
	}

	if cfg.DisableCache {
		flags["disk-cache-size"] = "0"
		flags["media-cache-size"] = "0"
		flags["disable-cache"] = true
	}
	if cfg.IgnoreTLSErrors {
		flags["ignore-certificate-errors"] = true
		flags["allow-insecure-localhost"] = true
	}
	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		flags["window-size"] = strconv.Itoa(w) + "," + strconv.Itoa(h)
	}

	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if name, value, ok := strings.Cut(arg, "="); ok {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}
	return flags
}

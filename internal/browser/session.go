// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/config"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultWaitTimeout       = 15 * time.Second
	responseBodyTimeout      = 15 * time.Second
)

// Session is one isolated browser tab driven over CDP. It implements Page.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    config.BrowserConfig

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

var _ Page = (*Session)(nil)

func newSession(ctx context.Context, cancel context.CancelFunc, cfg config.BrowserConfig, logger *zap.Logger, onClose func()) *Session {
	id := uuid.NewString()
	return &Session{
		id:      id,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With(zap.String("session_id", id)),
		cfg:     cfg,
		onClose: onClose,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))

	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()

	navTimeout := s.cfg.Timeout
	if navTimeout <= 0 {
		navTimeout = defaultNavigationTimeout
	}
	navCtx, navCancel := context.WithTimeout(opCtx, navTimeout)
	defer navCancel()

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		if opCtx.Err() != nil {
			return fmt.Errorf("navigation canceled: %w", opCtx.Err())
		}
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("navigation timed out after %s: %w", navTimeout, err)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// WaitForElement waits for selector to become visible.
func (s *Session) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()
	return s.waitVisible(opCtx, selector, timeout)
}

func (s *Session) waitVisible(opCtx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.waitTimeout()
	}
	waitCtx, cancel := context.WithTimeout(opCtx, timeout)
	defer cancel()

	err := chromedp.Run(waitCtx, chromedp.WaitVisible(selector, chromedp.BySearch))
	switch {
	case err == nil:
		return nil
	case opCtx.Err() != nil:
		return opCtx.Err()
	case errors.Is(waitCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %q after %s", ErrElementTimeout, selector, timeout)
	}
	return fmt.Errorf("failed to wait for %q: %w", selector, err)
}

// HasElement reports whether selector currently matches anything.
func (s *Session) HasElement(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	if err := s.runActions(ctx, chromedp.Nodes(selector, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return false, fmt.Errorf("failed to query %q: %w", selector, err)
	}
	return len(nodes) > 0, nil
}

// Fill waits for the input, clears it and types text.
func (s *Session) Fill(ctx context.Context, selector, text string) error {
	s.logger.Debug("Filling input.", zap.String("selector", selector), zap.Int("length", len(text)))
	return s.interact(ctx, selector,
		chromedp.ScrollIntoView(selector, chromedp.BySearch),
		chromedp.Clear(selector, chromedp.BySearch),
		chromedp.SendKeys(selector, text, chromedp.BySearch),
	)
}

// Click waits for the element and clicks it.
func (s *Session) Click(ctx context.Context, selector string) error {
	s.logger.Debug("Clicking element.", zap.String("selector", selector))
	return s.interact(ctx, selector,
		chromedp.ScrollIntoView(selector, chromedp.BySearch),
		chromedp.Click(selector, chromedp.BySearch),
	)
}

// Press sends a named key to the element.
func (s *Session) Press(ctx context.Context, selector, key string) error {
	return s.interact(ctx, selector, chromedp.SendKeys(selector, keyCode(key), chromedp.BySearch))
}

// CurrentURL returns the document location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := s.runActions(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return location, nil
}

// OnResponse enables the network domain and hands every finished response
// accepted by match, body included, to handler. handler runs on its own
// goroutine.
func (s *Session) OnResponse(ctx context.Context, match ResponseMatcher, handler func(Response)) (func(), error) {
	if err := s.runActions(ctx, network.Enable()); err != nil {
		return nil, fmt.Errorf("failed to enable network events: %w", err)
	}

	listenCtx, cancel := CombineContext(s.ctx, ctx)
	var mu sync.Mutex
	pending := make(map[network.RequestID]Response)

	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if e.Response == nil || !match(e.Response.URL, int(e.Response.Status)) {
				return
			}
			mu.Lock()
			pending[e.RequestID] = Response{URL: e.Response.URL, Status: int(e.Response.Status)}
			mu.Unlock()
		case *network.EventLoadingFinished:
			mu.Lock()
			resp, ok := pending[e.RequestID]
			delete(pending, e.RequestID)
			mu.Unlock()
			if ok {
				// CDP commands cannot run inside the listener.
				go s.deliver(listenCtx, e.RequestID, resp, handler)
			}
		}
	})
	return cancel, nil
}

func (s *Session) deliver(ctx context.Context, id network.RequestID, resp Response, handler func(Response)) {
	fetchCtx, cancel := context.WithTimeout(ctx, responseBodyTimeout)
	defer cancel()

	err := chromedp.Run(fetchCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		body, err := network.GetResponseBody(id).Do(ctx)
		if err != nil {
			return err
		}
		resp.Body = body
		return nil
	}))
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Debug("Failed to fetch response body.", zap.String("url", resp.URL), zap.Error(err))
		}
		return
	}
	handler(resp)
}

// Close closes the tab. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")
	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

func (s *Session) interact(ctx context.Context, selector string, actions ...chromedp.Action) error {
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()

	if err := s.waitVisible(opCtx, selector, 0); err != nil {
		return err
	}
	if err := chromedp.Run(opCtx, actions...); err != nil {
		if opCtx.Err() != nil {
			return opCtx.Err()
		}
		return fmt.Errorf("interaction with %q failed: %w", selector, err)
	}
	return nil
}

// runActions executes actions bound to both the session and ctx.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (s *Session) waitTimeout() time.Duration {
	if s.cfg.WaitTimeout > 0 {
		return s.cfg.WaitTimeout
	}
	return defaultWaitTimeout
}

func keyCode(key string) string {
	switch key {
	case "Enter":
		return kb.Enter
	case "Tab":
		return kb.Tab
	case "Escape":
		return kb.Escape
	case "Backspace":
		return kb.Backspace
	}
	return key
}

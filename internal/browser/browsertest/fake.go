// Package browsertest provides a scripted, in-memory browser.Page for
// exercising flows without Chrome. Page state changes only through the
// reactions a test registers, so every wait resolves immediately.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/enroll-cli/internal/browser"
)

// Reaction mutates the page in response to an action.
type Reaction func(p *Page)

type listener struct {
	ctx     context.Context
	match   browser.ResponseMatcher
	handler func(browser.Response)
}

// Page is a fake browser.Page.
type Page struct {
	mu sync.Mutex

	url      string
	visible  map[string]bool
	values   map[string]string
	calls    []string
	failures map[string]error

	onClick    map[string][]Reaction
	onFill     map[string][]Reaction
	onNavigate map[string][]Reaction

	listeners []listener
}

var _ browser.Page = (*Page)(nil)

// New returns an empty page at about:blank.
func New() *Page {
	return &Page{
		url:        "about:blank",
		visible:    make(map[string]bool),
		values:     make(map[string]string),
		failures:   make(map[string]error),
		onClick:    make(map[string][]Reaction),
		onFill:     make(map[string][]Reaction),
		onNavigate: make(map[string][]Reaction),
	}
}

// Show makes selectors match.
func (p *Page) Show(selectors ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		p.visible[s] = true
	}
}

// Hide makes selectors stop matching.
func (p *Page) Hide(selectors ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		delete(p.visible, s)
	}
}

// Reset hides every selector.
func (p *Page) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = make(map[string]bool)
}

// SetURL changes the current location without running reactions.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// OnClick registers a reaction run after selector is clicked.
func (p *Page) OnClick(selector string, r Reaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClick[selector] = append(p.onClick[selector], r)
}

// OnFill registers a reaction run after selector is filled.
func (p *Page) OnFill(selector string, r Reaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFill[selector] = append(p.onFill[selector], r)
}

// OnNavigate registers a reaction run after navigating to a URL that
// starts with prefix.
func (p *Page) OnNavigate(prefix string, r Reaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNavigate[prefix] = append(p.onNavigate[prefix], r)
}

// FailOn makes the next action of the given kind ("navigate", "fill",
// "click", "press") on target return err. target is a selector or URL.
func (p *Page) FailOn(kind, target string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[kind+" "+target] = err
}

// Emit delivers resp to every live listener whose matcher accepts it.
func (p *Page) Emit(resp browser.Response) {
	p.mu.Lock()
	var targets []func(browser.Response)
	live := p.listeners[:0]
	for _, l := range p.listeners {
		if l.ctx.Err() != nil {
			continue
		}
		live = append(live, l)
		if l.match(resp.URL, resp.Status) {
			targets = append(targets, l.handler)
		}
	}
	p.listeners = live
	p.mu.Unlock()

	for _, h := range targets {
		h(resp)
	}
}

// Value returns what was last filled into selector.
func (p *Page) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[selector]
}

// Calls returns the recorded actions, for example "click //span".
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Called reports whether an action was recorded.
func (p *Page) Called(call string) bool {
	for _, c := range p.Calls() {
		if c == call {
			return true
		}
	}
	return false
}

// Listeners returns the number of response listeners still registered.
func (p *Page) Listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, l := range p.listeners {
		if l.ctx.Err() == nil {
			n++
		}
	}
	return n
}

func (p *Page) record(kind, target string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, kind+" "+target)
	key := kind + " " + target
	if err, ok := p.failures[key]; ok {
		delete(p.failures, key)
		return err
	}
	return nil
}

func (p *Page) run(reactions []Reaction) {
	for _, r := range reactions {
		r(p)
	}
}

// Navigate implements browser.Page.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.record("navigate", url); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	var reactions []Reaction
	for prefix, rs := range p.onNavigate {
		if strings.HasPrefix(url, prefix) {
			reactions = append(reactions, rs...)
		}
	}
	p.mu.Unlock()
	p.run(reactions)
	return nil
}

// WaitForElement implements browser.Page. It never blocks.
func (p *Page) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	ok := p.visible[selector]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q after %s", browser.ErrElementTimeout, selector, timeout)
	}
	return nil
}

// HasElement implements browser.Page.
func (p *Page) HasElement(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[selector], nil
}

// Fill implements browser.Page.
func (p *Page) Fill(ctx context.Context, selector, text string) error {
	if err := p.WaitForElement(ctx, selector, 0); err != nil {
		return err
	}
	if err := p.record("fill", selector); err != nil {
		return err
	}
	p.mu.Lock()
	p.values[selector] = text
	reactions := append([]Reaction(nil), p.onFill[selector]...)
	p.mu.Unlock()
	p.run(reactions)
	return nil
}

// Click implements browser.Page.
func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.WaitForElement(ctx, selector, 0); err != nil {
		return err
	}
	if err := p.record("click", selector); err != nil {
		return err
	}
	p.mu.Lock()
	reactions := append([]Reaction(nil), p.onClick[selector]...)
	p.mu.Unlock()
	p.run(reactions)
	return nil
}

// Press implements browser.Page.
func (p *Page) Press(ctx context.Context, selector, key string) error {
	if err := p.WaitForElement(ctx, selector, 0); err != nil {
		return err
	}
	return p.record("press", selector+" "+key)
}

// CurrentURL implements browser.Page.
func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

// OnResponse implements browser.Page.
func (p *Page) OnResponse(ctx context.Context, match browser.ResponseMatcher, handler func(browser.Response)) (func(), error) {
	lctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.listeners = append(p.listeners, listener{ctx: lctx, match: match, handler: handler})
	p.mu.Unlock()
	return cancel, nil
}

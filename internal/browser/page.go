// internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrElementTimeout is returned when a selector does not match a visible
// element before its deadline. Callers treat it as a recoverable step
// failure.
var ErrElementTimeout = errors.New("element wait timed out")

// Response is a network response observed by the page.
type Response struct {
	URL    string
	Status int
	Body   []byte
}

// ResponseMatcher selects the responses an OnResponse handler receives.
type ResponseMatcher func(url string, status int) bool

// Page is the browser capability the signup and login flows drive.
// Selectors may be CSS or XPath (an XPath starts with "/" or "(").
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitForElement blocks until selector matches a visible element or
	// timeout elapses, in which case the error wraps ErrElementTimeout.
	WaitForElement(ctx context.Context, selector string, timeout time.Duration) error
	// HasElement checks for a match without waiting.
	HasElement(ctx context.Context, selector string) (bool, error)
	// Fill replaces the value of an input.
	Fill(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	// Press sends a single named key (for example "Enter") to an element.
	Press(ctx context.Context, selector, key string) error
	CurrentURL(ctx context.Context) (string, error)
	// OnResponse registers handler for matching responses until the
	// returned stop func is called or ctx is done.
	OnResponse(ctx context.Context, match ResponseMatcher, handler func(Response)) (stop func(), err error)
}

// internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// CombineContext returns a context that carries the values of session (the
// chromedp target lives there) and is canceled when either session or op is
// done.
func CombineContext(session, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(session)
	stop := context.AfterFunc(op, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// Detach returns a context with the values of ctx that outlives it. Used for
// cleanup that must still reach the browser after the caller gave up.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// Pause waits d for the page to settle, returning early with ctx's error.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

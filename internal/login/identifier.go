package login

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/enroll-cli/internal/browser"
)

// identifierFuture is resolved at most once by the response listener and
// awaited by the login flow.
type identifierFuture struct {
	once  sync.Once
	done  chan struct{}
	value string
}

func newIdentifierFuture() *identifierFuture {
	return &identifierFuture{done: make(chan struct{})}
}

func (f *identifierFuture) resolve(id string) {
	f.once.Do(func() {
		f.value = id
		close(f.done)
	})
}

// wait returns the identifier, or an error once timeout elapses or ctx is
// done.
func (f *identifierFuture) wait(ctx context.Context, timeout time.Duration) (string, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-t.C:
		return "", fmt.Errorf("identifier not observed within %s", timeout)
	}
}

// identifierMatcher accepts successful responses from any of the account
// API paths.
func identifierMatcher(paths []string) browser.ResponseMatcher {
	return func(url string, status int) bool {
		if status != 200 {
			return false
		}
		for _, p := range paths {
			if strings.Contains(url, p) {
				return true
			}
		}
		return false
	}
}

// numberCodec keeps numeric ids as their literal text.
var numberCodec = json.Config{UseNumber: true}.Froze()

// parseIdentifier reads field from a JSON object body. Numeric ids are
// returned exactly as they appear in the body.
func parseIdentifier(body []byte, field string) (string, bool) {
	var payload map[string]interface{}
	if err := numberCodec.Unmarshal(body, &payload); err != nil {
		return "", false
	}
	switch v := payload[field].(type) {
	case string:
		return v, v != ""
	case fmt.Stringer:
		n := v.String()
		return n, n != ""
	}
	return "", false
}

// internal/browser/context_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type ctxKey struct{}

func TestCombineContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("CanceledBySecondary", func(t *testing.T) {
		session := context.WithValue(context.Background(), ctxKey{}, "target")
		op, cancelOp := context.WithCancel(context.Background())

		combined, cancel := CombineContext(session, op)
		defer cancel()
		assert.Equal(t, "target", combined.Value(ctxKey{}), "values come from the session")

		cancelOp()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context not canceled by op")
		}
	})

	t.Run("CanceledByPrimary", func(t *testing.T) {
		session, cancelSession := context.WithCancel(context.Background())
		combined, cancel := CombineContext(session, context.Background())
		defer cancel()

		cancelSession()
		<-combined.Done()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("CancelFuncReleases", func(t *testing.T) {
		op, cancelOp := context.WithCancel(context.Background())
		defer cancelOp()
		combined, cancel := CombineContext(context.Background(), op)
		cancel()
		assert.Error(t, combined.Err())
	})
}

func TestDetach(t *testing.T) {
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "v"))
	detached := Detach(parent)
	cancel()

	assert.Error(t, parent.Err())
	assert.NoError(t, detached.Err())
	assert.Equal(t, "v", detached.Value(ctxKey{}))
	_, ok := detached.Deadline()
	assert.False(t, ok)
}

func TestPause(t *testing.T) {
	assert.NoError(t, Pause(context.Background(), time.Millisecond))
	assert.NoError(t, Pause(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Pause(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Pause(ctx, 0), context.Canceled)
}

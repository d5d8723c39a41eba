package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/enroll-cli/internal/account"
	"github.com/xkilldash9x/enroll-cli/internal/mocks"
)

func completedSnapshot(email string) account.Snapshot {
	wid := "W-1"
	return account.Snapshot{
		ID:          uuid.NewString(),
		Email:       email,
		Password:    "Passw0rd!",
		Nickname:    "Member_abc123",
		Identifier:  &wid,
		Status:      account.StatusCompleted,
		CreatedAt:   "2026-03-01 09:00:00",
		UpdatedAt:   "2026-03-01 09:04:00",
		Environment: account.Sandbox,
	}
}

func TestAsyncRecorderPreservesOrder(t *testing.T) {
	target := new(mocks.MockRecorder)
	var order []string
	target.On("RecordAttempt", mock.Anything, "batch-1", mock.Anything).
		Run(func(args mock.Arguments) { order = append(order, args.Get(2).(account.Snapshot).Email) }).
		Return(nil)
	target.On("RecordBatch", mock.Anything, "batch-1", mock.Anything).
		Run(func(mock.Arguments) { order = append(order, "batch") }).
		Return(nil)

	r := NewAsyncRecorder(target, 1, zap.NewNop())
	ctx := context.Background()
	snaps := []account.Snapshot{completedSnapshot("a@benx.com"), completedSnapshot("b@benx.com")}
	for _, s := range snaps {
		require.NoError(t, r.RecordAttempt(ctx, "batch-1", s))
	}
	require.NoError(t, r.RecordBatch(ctx, "batch-1", account.NewBatchResult(account.Sandbox, time.Now(), snaps)))

	require.True(t, r.Close(5*time.Second))
	assert.Equal(t, []string{"a@benx.com", "b@benx.com", "batch"}, order)
	target.AssertExpectations(t)
}

func TestAsyncRecorderLogsFailures(t *testing.T) {
	target := new(mocks.MockRecorder)
	target.On("RecordAttempt", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	core, logs := observer.New(zapcore.ErrorLevel)
	r := NewAsyncRecorder(target, 4, zap.New(core))
	require.NoError(t, r.RecordAttempt(context.Background(), "batch-1", completedSnapshot("a@benx.com")))
	require.True(t, r.Close(5*time.Second))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Failed to persist attempt.", entry.Message)
	assert.Equal(t, "a@benx.com", entry.ContextMap()["email"])
}

func TestAsyncRecorderEnqueueHonoursContext(t *testing.T) {
	target := new(mocks.MockRecorder)
	started := make(chan struct{}, 3)
	release := make(chan struct{})
	target.On("RecordAttempt", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			started <- struct{}{}
			<-release
		}).
		Return(nil)

	r := NewAsyncRecorder(target, 1, zap.NewNop())
	bg := context.Background()
	// The first record occupies the consumer, the second fills the buffer.
	require.NoError(t, r.RecordAttempt(bg, "b", completedSnapshot("a@benx.com")))
	<-started
	require.NoError(t, r.RecordAttempt(bg, "b", completedSnapshot("b@benx.com")))

	ctx, cancel := context.WithCancel(bg)
	cancel()
	assert.ErrorIs(t, r.RecordAttempt(ctx, "b", completedSnapshot("c@benx.com")), context.Canceled)

	close(release)
	assert.True(t, r.Close(5*time.Second))
	assert.True(t, r.Close(time.Second), "Close is idempotent")
}

package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/enroll-cli/internal/account"
	"github.com/xkilldash9x/enroll-cli/internal/config"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
)

var fixedNow = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }

func snapshot(status account.Status, wid string) account.Snapshot {
	s := account.Snapshot{
		Email:       "abc123@benx.com",
		Password:    "Passw0rd!",
		Nickname:    "Member_abc123",
		Status:      status,
		CreatedAt:   "2026-03-01 09:00:00",
		UpdatedAt:   "2026-03-01 09:05:00",
		Environment: account.Sandbox,
	}
	if wid != "" {
		s.Identifier = &wid
	}
	return s
}

func webhook(t *testing.T, status int) (*httptest.Server, <-chan map[string]interface{}) {
	t.Helper()
	bodies := make(chan map[string]interface{}, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &payload))
		bodies <- payload
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, bodies
}

func TestSlackSend(t *testing.T) {
	t.Run("Delivered", func(t *testing.T) {
		srv, bodies := webhook(t, http.StatusOK)
		m := observability.NewMetrics()
		s := NewSlack(config.NotifyConfig{SlackWebhookURL: srv.URL}, WithMetrics(m))

		ok := s.Send(context.Background(), Builder{Now: fixedNow}.Success(snapshot(account.StatusCompleted, "W-1")))
		require.True(t, ok)

		payload := <-bodies
		assert.Equal(t, "Account created: abc123@benx.com", payload["text"])
		blocks := payload["blocks"].([]interface{})
		require.Len(t, blocks, 2)
		assert.Equal(t, "header", blocks[0].(map[string]interface{})["type"])
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("delivered")))
	})

	t.Run("RejectedIsSwallowed", func(t *testing.T) {
		srv, _ := webhook(t, http.StatusForbidden)
		m := observability.NewMetrics()
		s := NewSlack(config.NotifyConfig{SlackWebhookURL: srv.URL}, WithMetrics(m))

		assert.False(t, s.Send(context.Background(), Message{Text: "x"}))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("failed")))
	})

	t.Run("TransportError", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		s := NewSlack(config.NotifyConfig{SlackWebhookURL: url})
		assert.False(t, s.Send(context.Background(), Message{Text: "x"}))
	})

	t.Run("Timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		s := NewSlack(config.NotifyConfig{SlackWebhookURL: srv.URL, Timeout: 50 * time.Millisecond})
		start := time.Now()
		assert.False(t, s.Send(context.Background(), Message{Text: "slow"}))
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("RateLimited", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		}))
		defer srv.Close()

		s := NewSlack(config.NotifyConfig{SlackWebhookURL: srv.URL, RatePerSecond: 0.001, Burst: 1})
		require.True(t, s.Send(context.Background(), Message{Text: "first"}))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.False(t, s.Send(ctx, Message{Text: "second"}))
		assert.Equal(t, int32(1), hits.Load())
	})
}

func TestBuilderMessages(t *testing.T) {
	b := Builder{Now: fixedNow}

	t.Run("VerificationLink", func(t *testing.T) {
		msg := b.VerificationLink("abc123@benx.com", "https://account.example.test/verify?t=1")
		require.Len(t, msg.Blocks, 3)
		button := msg.Blocks[1].Elements[0].(Button)
		assert.Equal(t, "https://account.example.test/verify?t=1", button.URL)
		assert.Equal(t, "primary", button.Style)
		assert.Contains(t, msg.Blocks[0].Text.Text, "abc123@benx.com")
		assert.Equal(t, "Requested at 2026-03-01 09:30:00", msg.Blocks[2].Elements[0].(Text).Text)
	})

	t.Run("ProgressMasksPassword", func(t *testing.T) {
		masked := Builder{MaskPasswords: true, Now: fixedNow}.Progress("Verification pending", snapshot(account.StatusEmailVerificationPending, ""))
		assert.Contains(t, masked.Blocks[0].Text.Text, "`P*******!`")
		assert.Contains(t, masked.Blocks[0].Text.Text, "`SANDBOX`")

		plain := b.Progress("Verification pending", snapshot(account.StatusEmailVerificationPending, ""))
		assert.Contains(t, plain.Blocks[0].Text.Text, "`Passw0rd!`")
	})

	t.Run("SuccessWithoutIdentifier", func(t *testing.T) {
		msg := b.Success(snapshot(account.StatusCompleted, ""))
		assert.Equal(t, "*WID:*\n`N/A`", msg.Blocks[1].Fields[2].Text)
		assert.Equal(t, "*Completed:*\n`2026-03-01 09:05:00`", msg.Blocks[1].Fields[4].Text)
	})

	t.Run("FailureFallsBackToStatus", func(t *testing.T) {
		msg := b.Failure("", snapshot(account.StatusPasswordStepFailed, ""))
		assert.Contains(t, msg.Blocks[1].Text.Text, "*Reason:*\npassword_step_failed")
		assert.Equal(t, "Failed at 2026-03-01 09:30:00", msg.Blocks[2].Elements[0].(Text).Text)
	})
}

func TestSummaryGrades(t *testing.T) {
	cases := []struct {
		success, total int
		header         string
		rate           string
	}{
		{3, 3, "Batch creation perfect", "100.0%"},
		{4, 5, "Batch creation success", "80.0%"},
		{1, 2, "Batch creation partial success", "50.0%"},
		{1, 3, "Batch creation failed", "33.3%"},
	}
	for _, tc := range cases {
		var snaps []account.Snapshot
		for i := 0; i < tc.total; i++ {
			st := account.StatusPasswordStepFailed
			if i < tc.success {
				st = account.StatusCompleted
			}
			snaps = append(snaps, snapshot(st, ""))
		}
		stats := account.ComputeStatistics(account.Sandbox, snaps)
		msg := Builder{Now: fixedNow}.Summary(stats, 95*time.Second)

		assert.Equal(t, tc.header, msg.Blocks[0].Text.Text)
		var rate, duration string
		for _, f := range msg.Blocks[1].Fields {
			switch {
			case strings.HasPrefix(f.Text, "*Success rate:*"):
				rate = f.Text
			case strings.HasPrefix(f.Text, "*Duration:*"):
				duration = f.Text
			}
		}
		assert.Equal(t, "*Success rate:*\n"+tc.rate, rate)
		assert.Equal(t, "*Duration:*\n1m35s", duration)
	}
}

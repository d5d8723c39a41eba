package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/enroll-cli/internal/account"
)

func TestRenderProgress(t *testing.T) {
	tests := []struct {
		name        string
		done, total int
		filled      int
	}{
		{name: "First", done: 1, total: 4, filled: 6},
		{name: "Half", done: 2, total: 4, filled: 12},
		{name: "Complete", done: 4, total: 4, filled: 24},
		{name: "ClampsOverflow", done: 5, total: 4, filled: 24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := renderProgress(tt.done, tt.total, snapshot("abc123@benx.com", account.StatusCompleted, "W-1"))
			assert.Equal(t, tt.filled, strings.Count(line, "█"))
			assert.Equal(t, progressWidth-tt.filled, strings.Count(line, "░"))
			assert.Contains(t, line, "abc123@benx.com completed")
		})
	}
}

func TestProgressPrinter(t *testing.T) {
	var out bytes.Buffer
	p := newProgressPrinter(&out)
	p.Update(1, 2, snapshot("abc123@benx.com", account.StatusCompleted, "W-1"))
	p.Update(2, 2, snapshot("def456@benx.com", account.StatusEmailVerificationFailed, ""))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "1/2 abc123@benx.com")
	assert.Contains(t, lines[1], "2/2 def456@benx.com email_verification_failed")
}

func TestPadAndTruncate(t *testing.T) {
	assert.Equal(t, "ab   ", pad("ab", 5))
	assert.Equal(t, "abcdef", pad("abcdef", 3))
	assert.Equal(t, "회원   ", pad("회원", 5))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}

func TestPrintStatisticsOrdersStatuses(t *testing.T) {
	snaps := []account.Snapshot{
		snapshot("abc123@benx.com", account.StatusPasswordStepFailed, ""),
		snapshot("def456@benx.com", account.StatusCompleted, "W-2"),
		snapshot("ghi789@benx.com", account.StatusEmailVerificationPending, ""),
	}
	var out bytes.Buffer
	printStatistics(&out, "Summary", account.ComputeStatistics(account.Sandbox, snaps))

	text := out.String()
	assert.Contains(t, text, "Total: 3")
	assert.Contains(t, text, "Pending: 1")
	assert.Contains(t, text, "Success rate: 33.3% (failed)")
	// Statuses are listed in lifecycle order.
	assert.Less(t, strings.Index(text, "email_verification_pending=1"), strings.Index(text, "completed=1"))
}

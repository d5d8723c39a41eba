package results

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/enroll-cli/internal/account"
)

func sampleResult() account.BatchResult {
	wid := "W-1001"
	return account.NewBatchResult(account.Sandbox, time.Date(2026, 3, 1, 9, 10, 0, 0, time.UTC), []account.Snapshot{
		{
			Email:       "abc123@benx.com",
			Password:    "Passw0rd!",
			Nickname:    "회원_01",
			Identifier:  &wid,
			Status:      account.StatusCompleted,
			CreatedAt:   "2026-03-01 09:00:00",
			UpdatedAt:   "2026-03-01 09:04:00",
			Environment: account.Sandbox,
		},
		{
			Email:       "def456@benx.com",
			Password:    "Passw0rd?",
			Nickname:    "회원_02",
			Status:      account.StatusPasswordStepFailed,
			CreatedAt:   "2026-03-01 09:05:00",
			UpdatedAt:   "2026-03-01 09:05:30",
			Environment: account.Sandbox,
		},
	})
}

func TestFileName(t *testing.T) {
	got := FileName(account.Production, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	assert.Equal(t, "accounts_production_20260102_030405.json", got)
}

func TestWriteAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "output")
	w := NewWriter(dir, WithClock(func() time.Time { return time.Date(2026, 3, 1, 9, 10, 0, 0, time.UTC) }))

	want := sampleResult()
	path, err := w.Write(want)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "accounts_sandbox_20260301_091000.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"nickname": "회원_01"`, "non-ASCII is written verbatim")
	assert.Contains(t, string(raw), `"wid": null`)
	assert.Contains(t, string(raw), `"status": "password_step_failed"`)
	assert.Contains(t, string(raw), `"created_at": "2026-03-01T09:10:00Z"`)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")

	got, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("loaded result mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeFieldOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleResult()))

	out := buf.String()
	order := []string{`"environment"`, `"created_at"`, `"total_accounts"`, `"successful_accounts"`, `"failed_accounts"`, `"accounts"`}
	last := -1
	for _, key := range order {
		idx := strings.Index(out, key)
		require.Greater(t, idx, last, key)
		last = idx
	}
	assert.True(t, strings.HasSuffix(out, "}\n"))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to read result file")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"accounts":[{"status":"teleported"}]}`), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "failed to decode result file")
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	_, err := Latest(dir)
	assert.ErrorIs(t, err, ErrNoResults)

	_, err = Latest(filepath.Join(dir, "absent"))
	assert.ErrorIs(t, err, ErrNoResults)

	for _, name := range []string{
		"accounts_sandbox_20260301_091000.json",
		"accounts_production_20260302_080000.json",
		"accounts_sandbox_20260301_235959.json",
		"accounts_sandbox_notastamp.json",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}

	got, err := Latest(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "accounts_production_20260302_080000.json"), got)
}

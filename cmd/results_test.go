package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/enroll-cli/internal/results"
)

func writeSample(t *testing.T, dir string, at time.Time) string {
	t.Helper()
	path, err := results.NewWriter(dir, results.WithClock(func() time.Time { return at })).Write(sampleReport().Result)
	require.NoError(t, err)
	return path
}

func TestResultsShow(t *testing.T) {
	t.Run("MasksPasswordsByDefault", func(t *testing.T) {
		resetForTest(t)
		path := writeSample(t, t.TempDir(), time.Date(2026, 3, 1, 9, 10, 0, 0, time.UTC))

		var out bytes.Buffer
		err := newPristineRootCmd(nil, &out, "results", "show", path).ExecuteContext(context.Background())
		require.NoError(t, err)

		text := out.String()
		assert.Contains(t, text, "Results "+path)
		assert.Contains(t, text, "abc123@benx.com")
		assert.Contains(t, text, "P*******!")
		assert.NotContains(t, text, "Passw0rd!")
		assert.Contains(t, text, "W-1")
		assert.Contains(t, text, "N/A")
		assert.Contains(t, text, "completed=1")
		assert.Contains(t, text, "password_step_failed=1")
	})

	t.Run("Reveal", func(t *testing.T) {
		resetForTest(t)
		path := writeSample(t, t.TempDir(), time.Now())

		var out bytes.Buffer
		err := newPristineRootCmd(nil, &out, "results", "show", "--reveal", path).ExecuteContext(context.Background())
		require.NoError(t, err)
		assert.Contains(t, out.String(), "Passw0rd!")
	})

	t.Run("NewestFileInOutputDir", func(t *testing.T) {
		resetForTest(t)
		dir := t.TempDir()
		writeSample(t, dir, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
		newest := writeSample(t, dir, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

		var out bytes.Buffer
		err := newPristineRootCmd(nil, &out, "results", "show", "--output", dir).ExecuteContext(context.Background())
		require.NoError(t, err)
		assert.Contains(t, out.String(), "Results "+newest)
	})

	t.Run("EmptyOutputDir", func(t *testing.T) {
		resetForTest(t)
		var out bytes.Buffer
		err := newPristineRootCmd(nil, &out, "results", "show", "--output", t.TempDir()).ExecuteContext(context.Background())
		assert.ErrorIs(t, err, results.ErrNoResults)
	})

	t.Run("MissingFile", func(t *testing.T) {
		resetForTest(t)
		var out bytes.Buffer
		err := newPristineRootCmd(nil, &out, "results", "show", filepath.Join(t.TempDir(), "nope.json")).ExecuteContext(context.Background())
		assert.ErrorContains(t, err, "failed to read result file")
	})

	t.Run("BatchWithoutDatabase", func(t *testing.T) {
		resetForTest(t)
		var out bytes.Buffer
		err := newPristineRootCmd(nil, &out, "results", "show", "--batch", "0b7c").ExecuteContext(context.Background())
		assert.ErrorIs(t, err, errNoDatabase)
	})
}

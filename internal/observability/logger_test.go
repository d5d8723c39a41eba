// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/enroll-cli/internal/config"
)

// initBuffered resets the global logger and points its console core at a buffer.
func initBuffered(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

func TestInitialize(t *testing.T) {
	t.Run("console output is colorized", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "enroll",
			Colors:      config.ColorConfig{Info: "green"},
		})

		GetLogger().Info("attempt started")
		Sync()

		out := buf.String()
		assert.Contains(t, out, ansiColors["green"]+"INFO"+colorReset)
		assert.Contains(t, out, "enroll.")
		assert.Contains(t, out, "attempt started")
	})

	t.Run("json output carries fields", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "batch"})

		GetLogger().Warn("slow mailbox", zap.String("email", "a@b.c"))
		Sync()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "batch", entry["logger"])
		assert.Equal(t, "slow mailbox", entry["msg"])
		assert.Equal(t, "a@b.c", entry["email"])
	})

	t.Run("level filters lower entries", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "error", Format: "json"})

		GetLogger().Info("hidden")
		GetLogger().Error("shown")
		Sync()

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("invalid level defaults to info", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "loud", Format: "json"})

		GetLogger().Debug("debug entry")
		GetLogger().Info("info entry")
		Sync()

		assert.NotContains(t, buf.String(), "debug entry")
		assert.Contains(t, buf.String(), "info entry")
	})

	t.Run("log file is created with its directory", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "nested", "enroll.log")
		initBuffered(t, config.LoggerConfig{Level: "debug", Format: "console", LogFile: logFile, MaxSize: 1})

		GetLogger().Info("to file", zap.Int("count", 3))
		Sync()

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		line := strings.TrimSpace(string(data))
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "file output is always JSON")
		assert.Equal(t, "to file", entry["msg"])
		assert.EqualValues(t, 3, entry["count"])
	})

	t.Run("second initialize is ignored", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "first"})
		var other bytes.Buffer
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "second"}, zapcore.AddSync(&other))

		GetLogger().Info("which")
		Sync()

		assert.Contains(t, buf.String(), "first")
		assert.Empty(t, other.String())
	})
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	ResetForTest()
	logger := GetLogger()
	require.NotNil(t, logger)
	assert.NotPanics(t, func() { logger.Info("dropped") })
}

func TestMask(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"a", "*"},
		{"ab", "**"},
		{"abc", "a*c"},
		{"Passw0rd!", "P*******!"},
		{"비밀번호", "비**호"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Mask(tt.in))
		})
	}

	field := MaskedString("password", "secret")
	assert.Equal(t, "s****t", field.String)
}

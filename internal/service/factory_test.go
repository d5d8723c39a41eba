package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/config"
)

func TestCreate(t *testing.T) {
	factory := NewComponentFactory()
	logger := zap.NewNop()
	ctx := context.Background()

	t.Run("DefaultConfiguration", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		components, err := factory.Create(ctx, cfg, logger)
		require.NoError(t, err)
		defer components.Shutdown()

		assert.NotNil(t, components.Runner)
		assert.NotNil(t, components.BrowserManager)
		assert.NotNil(t, components.Metrics)
		assert.Nil(t, components.Sink)
		assert.Nil(t, components.Recorder, "no database means no recorder")
		assert.Nil(t, components.DBPool)
	})

	t.Run("SMTPSinkProvider", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.Mail.Provider = "smtp_sink"
		components, err := factory.Create(ctx, cfg, logger)
		require.NoError(t, err)
		defer components.Shutdown()
		assert.NotNil(t, components.Sink)
	})

	t.Run("UnsupportedMailProvider", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.Mail.Provider = "pop3"
		_, err := factory.Create(ctx, cfg, logger)
		assert.ErrorContains(t, err, "unsupported mail provider")
	})

	t.Run("BadDatabaseURL", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.Database.URL = "postgres://%zz"
		_, err := factory.Create(ctx, cfg, logger)
		assert.ErrorContains(t, err, "failed to initialize database store")
	})

	t.Run("UnknownLinkMode", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.Verification.LinkMode = "carrier-pigeon"
		_, err := factory.Create(ctx, cfg, logger)
		assert.ErrorContains(t, err, "failed to create orchestrator")
	})
}

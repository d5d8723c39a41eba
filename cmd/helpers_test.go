package cmd

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/enroll-cli/internal/account"
	"github.com/xkilldash9x/enroll-cli/internal/config"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
	"github.com/xkilldash9x/enroll-cli/internal/orchestrator"
	"github.com/xkilldash9x/enroll-cli/internal/service"
)

func TestMain(m *testing.M) {
	// Plain text output keeps the assertions independent of the terminal.
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

// MockComponentFactory mocks service.ComponentFactory.
type MockComponentFactory struct {
	mock.Mock
}

func (m *MockComponentFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...orchestrator.Option) (*service.Components, error) {
	args := m.Called(ctx, cfg, logger, opts)
	var c *service.Components
	if v := args.Get(0); v != nil {
		c = v.(*service.Components)
	}
	return c, args.Error(1)
}

// resetForTest isolates a test from the working directory, the process
// environment and the global logger.
func resetForTest(t *testing.T) {
	t.Helper()

	t.Chdir(t.TempDir())
	for _, key := range []string{"ENROLL_OUTPUT_DIR", "ENROLL_BATCH_ENVIRONMENT", "ENROLL_BATCH_COUNT", "ENROLL_DATABASE_URL", "DATABASE_URL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	observability.ResetForTest()
	observability.Initialize(config.LoggerConfig{Level: "fatal", Format: "console"}, zapcore.AddSync(io.Discard))
	t.Cleanup(observability.ResetForTest)
}

// newPristineRootCmd returns a fresh command tree writing to out.
func newPristineRootCmd(factory service.ComponentFactory, out io.Writer, args ...string) *cobra.Command {
	cmd := newRootCmd(factory)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	return cmd
}

func snapshot(email string, status account.Status, wid string) account.Snapshot {
	s := account.Snapshot{
		ID:          uuid.NewString(),
		Email:       email,
		Password:    "Passw0rd!",
		Nickname:    "Member_" + email[:3],
		Status:      status,
		CreatedAt:   "2026-03-01 09:00:00",
		UpdatedAt:   "2026-03-01 09:04:00",
		Environment: account.Sandbox,
	}
	if wid != "" {
		s.Identifier = &wid
	}
	return s
}

func sampleReport() orchestrator.Report {
	snaps := []account.Snapshot{
		snapshot("abc123@benx.com", account.StatusCompleted, "W-1"),
		snapshot("def456@benx.com", account.StatusPasswordStepFailed, ""),
	}
	return orchestrator.Report{
		BatchID: uuid.NewString(),
		Result:  account.NewBatchResult(account.Sandbox, time.Date(2026, 3, 1, 9, 10, 0, 0, time.UTC), snaps),
		Stats:   account.ComputeStatistics(account.Sandbox, snaps),
		Elapsed: 4 * time.Minute,
	}
}

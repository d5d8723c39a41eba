package service

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/enroll-cli/internal/account"
	"github.com/xkilldash9x/enroll-cli/internal/mailverify/smtpsink"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
	"github.com/xkilldash9x/enroll-cli/internal/orchestrator"
)

const shutdownTimeout = 30 * time.Second

// Runner executes one creation run.
type Runner interface {
	Run(ctx context.Context, bc account.BatchConfig) (orchestrator.Report, error)
}

// BrowserManager opens pages for attempts and owns the browser process.
type BrowserManager interface {
	orchestrator.PageOpener
	Shutdown(ctx context.Context) error
}

// Components holds everything a creation run needs and manages its
// lifecycle.
type Components struct {
	Runner         Runner
	BrowserManager BrowserManager
	Recorder       *AsyncRecorder
	DBPool         *pgxpool.Pool
	Sink           *smtpsink.Sink
	Metrics        *observability.Metrics
	MetricsAddr    string
}

// Serve runs the background services (SMTP sink, metrics endpoint) until ctx
// is done or one of them fails. It returns immediately when none is
// configured.
func (c *Components) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if c.Sink != nil {
		g.Go(func() error { return c.Sink.ListenAndServe(gctx) })
	}
	if c.MetricsAddr != "" && c.Metrics != nil {
		l, err := net.Listen("tcp", c.MetricsAddr)
		if err != nil {
			return err
		}
		g.Go(func() error { return serveMetrics(gctx, l, c.Metrics.Handler()) })
	}
	return g.Wait()
}

// Shutdown releases the components in reverse order of their creation:
// pending records are flushed first, then the browser and the database
// pool are closed.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	if c.Recorder != nil {
		if !c.Recorder.Close(shutdownTimeout) {
			logger.Warn("Timed out flushing pending records; some may be lost.")
		} else {
			logger.Debug("Pending records flushed.")
		}
	}

	if c.BrowserManager != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.BrowserManager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser manager shut down.")
		}
	}

	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}

	logger.Info("All components shut down.")
}

// timedWait waits for wg up to timeout and reports whether it finished.
func timedWait(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

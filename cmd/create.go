package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/enroll-cli/internal/account"
	"github.com/xkilldash9x/enroll-cli/internal/config"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
	"github.com/xkilldash9x/enroll-cli/internal/orchestrator"
	"github.com/xkilldash9x/enroll-cli/internal/results"
	"github.com/xkilldash9x/enroll-cli/internal/service"
)

type createOptions struct {
	email string
}

func newCreateCmd(factory service.ComponentFactory) *cobra.Command {
	opts := &createOptions{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create one account or a batch of accounts",
		Long: `Create drives the signup form in a browser, verifies the email address,
logs in and records the account identifier. Results are written to the
output directory even when the run is interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runCreate(cmd.Context(), cfg, *opts, factory, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.String("env", "sandbox", "target environment: sandbox (qa) or production (real)")
	flags.IntP("count", "n", 1, "number of accounts to create")
	flags.String("base-email", "", "mailbox whose dot variants are used in production")
	flags.String("password", "", "use this password instead of a generated one")
	flags.String("nickname", "", "use this nickname (numbered in batches)")
	flags.Duration("delay", 5*time.Second, "pause between attempts")
	flags.Bool("continue-on-error", true, "keep going after a failed attempt")
	flags.String("link-mode", "notify", "verification link handling: notify or browse")
	flags.Bool("headless", false, "run the browser without a window")
	flags.String("output", "output", "directory for result files")
	flags.StringVar(&opts.email, "email", "", "use this exact email address (single account only)")

	bindConfigKey(cmd, "env", "batch.environment")
	bindConfigKey(cmd, "count", "batch.count")
	bindConfigKey(cmd, "base-email", "batch.base_email")
	bindConfigKey(cmd, "password", "batch.custom_password")
	bindConfigKey(cmd, "nickname", "batch.custom_nickname")
	bindConfigKey(cmd, "delay", "batch.delay")
	bindConfigKey(cmd, "continue-on-error", "batch.continue_on_error")
	bindConfigKey(cmd, "link-mode", "verification.link_mode")
	bindConfigKey(cmd, "headless", "browser.headless")
	bindConfigKey(cmd, "output", "output.dir")

	return cmd
}

// batchConfigFrom turns the merged configuration into a validated batch.
func batchConfigFrom(cfg *config.Config, opts createOptions) (account.BatchConfig, error) {
	env, err := account.ParseEnvironment(cfg.Batch.Environment)
	if err != nil {
		return account.BatchConfig{}, err
	}
	target := ""
	if cfg.Notify.SlackWebhookURL != "" {
		target = "slack"
	}
	return account.NewBatchConfig(account.BatchConfig{
		Environment:        env,
		Count:              cfg.Batch.Count,
		BaseEmail:          cfg.Batch.BaseEmail,
		CustomPassword:     cfg.Batch.CustomPassword,
		CustomNickname:     cfg.Batch.CustomNickname,
		EmailOverride:      opts.email,
		Delay:              cfg.Batch.Delay,
		ContinueOnError:    cfg.Batch.ContinueOnError,
		NotificationTarget: target,
	})
}

// runCreate executes a creation run and writes its results file.
func runCreate(ctx context.Context, cfg *config.Config, opts createOptions, factory service.ComponentFactory, out io.Writer) error {
	logger := observability.GetLogger().Named("create")

	bc, err := batchConfigFrom(cfg, opts)
	if err != nil {
		return err
	}
	if cfg.Batch.MaxConcurrent > 1 {
		logger.Warn("batch.max_concurrent is ignored; attempts run one at a time.", zap.Int("max_concurrent", cfg.Batch.MaxConcurrent))
	}

	progress := newProgressPrinter(out)
	components, err := factory.Create(ctx, cfg, logger, orchestrator.WithProgress(progress.Update))
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Shutdown()

	logger.Info("Starting account creation.",
		zap.String("environment", string(bc.Environment)),
		zap.Int("count", bc.Count),
		zap.Duration("delay", bc.Delay),
		zap.Bool("continue_on_error", bc.ContinueOnError))

	g, gctx := errgroup.WithContext(ctx)
	svcCtx, stopServices := context.WithCancel(gctx)
	defer stopServices()

	g.Go(func() error { return components.Serve(svcCtx) })

	var report orchestrator.Report
	g.Go(func() error {
		defer stopServices()
		var runErr error
		report, runErr = components.Runner.Run(gctx, bc)
		return runErr
	})
	runErr := g.Wait()

	if report.BatchID == "" {
		if runErr != nil {
			return fmt.Errorf("account creation failed: %w", runErr)
		}
		return nil
	}

	path, writeErr := results.NewWriter(cfg.Output.Dir).Write(report.Result)
	if writeErr != nil {
		logger.Error("Failed to save results.", zap.Error(writeErr))
	}

	fmt.Fprintln(out)
	printStatistics(out, "Batch "+report.BatchID, report.Stats)
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Elapsed:"), report.Elapsed.Round(time.Second))
	if path != "" {
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Results:"), path)
	}

	switch {
	case runErr != nil && report.Interrupted && ctx.Err() != nil:
		logger.Info("Run interrupted; partial results saved.", zap.String("path", path))
		return writeErr
	case runErr != nil:
		return fmt.Errorf("account creation failed: %w", runErr)
	case writeErr != nil:
		return writeErr
	}
	return nil
}

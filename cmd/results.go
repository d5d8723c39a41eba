package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/enroll-cli/internal/account"
	"github.com/xkilldash9x/enroll-cli/internal/config"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
	"github.com/xkilldash9x/enroll-cli/internal/results"
	"github.com/xkilldash9x/enroll-cli/internal/service"
)

var errNoDatabase = errors.New("database.url is not configured (hint: check ENROLL_DATABASE_URL)")

type showOptions struct {
	reveal  bool
	batchID string
}

func newResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect the results of previous runs",
	}
	cmd.AddCommand(newResultsShowCmd())
	return cmd
}

func newResultsShowCmd() *cobra.Command {
	opts := &showOptions{}

	cmd := &cobra.Command{
		Use:   "show [file]",
		Short: "Print the statistics and accounts of a results file",
		Long: `Show prints a results file. Without an argument the newest file in the
output directory is used. With --batch the accounts are read from the
database instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runResultsShow(cmd.Context(), cfg, path, *opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.reveal, "reveal", false, "print passwords in clear")
	cmd.Flags().StringVar(&opts.batchID, "batch", "", "read the accounts of this batch id from the database")
	cmd.Flags().String("output", "output", "directory searched for the newest results file")
	bindConfigKey(cmd, "output", "output.dir")
	return cmd
}

func runResultsShow(ctx context.Context, cfg *config.Config, path string, opts showOptions, out io.Writer) error {
	if opts.batchID != "" {
		return showBatch(ctx, cfg, opts, out)
	}

	if path == "" {
		latest, err := results.Latest(cfg.Output.Dir)
		if err != nil {
			if errors.Is(err, results.ErrNoResults) {
				return fmt.Errorf("no results in %s: %w", cfg.Output.Dir, err)
			}
			return err
		}
		path = latest
	}

	r, err := results.Load(path)
	if err != nil {
		return err
	}

	stats := account.ComputeStatistics(r.Environment, r.Accounts)
	printStatistics(out, "Results "+path, stats)
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Created:"), r.CreatedAt)
	printAccounts(out, r.Accounts, opts.reveal)
	return nil
}

func showBatch(ctx context.Context, cfg *config.Config, opts showOptions, out io.Writer) error {
	if cfg.Database.URL == "" {
		return errNoDatabase
	}
	logger := observability.GetLogger().Named("results")

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	s, pool, err := service.InitializeStore(connectCtx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to open the store: %w", err)
	}
	defer pool.Close()

	snaps, err := s.AttemptsByBatch(ctx, opts.batchID)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		return fmt.Errorf("batch %s has no recorded attempts", opts.batchID)
	}

	stats := account.ComputeStatistics(snaps[0].Environment, snaps)
	printStatistics(out, "Batch "+opts.batchID, stats)
	printAccounts(out, snaps, opts.reveal)
	return nil
}

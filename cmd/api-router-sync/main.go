package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/darkdragon/drift-api-router/internal/apply"
	"github.com/darkdragon/drift-api-router/internal/config"
	"github.com/darkdragon/drift-api-router/internal/controller"
	"github.com/darkdragon/drift-api-router/internal/metrics"
	"github.com/darkdragon/drift-api-router/internal/routing"
	"github.com/darkdragon/drift-api-router/internal/store/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "api-router-sync",
		Short:         "Keep the tier's nginx routing table in step with its running instances",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand(), newRenderCommand(), newMigrateCommand(), newMatchRuleCommand())
	return root
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		log := slog.New(slog.NewTextHandler(os.Stdout, nil))
		log.Error("failed to load configuration", "error", err)
		return config.Config{}, nil, err
	}
	return cfg, cfg.NewLogger(), nil
}

func newRunCommand() *cobra.Command {
	var once, dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run sync passes on the poll interval, or a single pass with --once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("once") {
				cfg.Controller.RunOnce = once
			}
			if cmd.Flags().Changed("dry-run") {
				cfg.Controller.DryRun = dryRun
			}

			ctx := cmd.Context()
			recorder := metrics.NewRecorder(prometheus.NewRegistry())
			w, err := wire(ctx, cfg, logger, recorder)
			if err != nil {
				logger.Error("failed to initialize", "error", err)
				return err
			}
			defer w.Close()

			if cfg.MetricsAddr != "" && !cfg.Controller.RunOnce {
				go func() {
					if err := recorder.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
						logger.Error("metrics server stopped", "error", err)
					}
				}()
			}

			sync := controller.NewController(cfg.Tier, w.components, cfg.Controller.PollInterval, logger)
			if !cfg.Controller.RunOnce {
				if err := sync.Run(ctx, false); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("controller stopped with error", "error", err)
					return err
				}
				return nil
			}

			outcome, err := sync.Pass(ctx)
			if err != nil {
				logger.Error("sync pass failed", "error", err)
				return err
			}
			switch outcome {
			case apply.OutcomeSkipped:
				fmt.Fprintln(cmd.OutOrStdout(), "No change detected.")
			case apply.OutcomeDryRun:
				fmt.Fprintln(cmd.OutOrStdout(), "Change detected; dry run left it unapplied.")
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "New config applied.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit (overrides SYNC_RUN_ONCE)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate changes without installing them (overrides SYNC_DRY_RUN)")
	return cmd
}

func newRenderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "render",
		Short: "Print the nginx config a pass would generate without applying it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			w, err := wire(ctx, cfg, logger, nil)
			if err != nil {
				logger.Error("failed to initialize", "error", err)
				return err
			}
			defer w.Close()

			w.components.Installer = printer{out: cmd.OutOrStdout()}
			w.components.Publisher = nil
			sync := controller.NewController(cfg.Tier, w.components, cfg.Controller.PollInterval, logger)
			_, err = sync.Pass(ctx)
			return err
		},
	}
}

func newMigrateCommand() *cobra.Command {
	var databaseURL string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply config store schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			if databaseURL == "" {
				return errors.New("missing required DATABASE_URL")
			}
			if err := postgres.Migrate(cmd.Context(), databaseURL, logger); err != nil {
				logger.Error("migration failed", "error", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres DSN (defaults to DATABASE_URL)")
	return cmd
}

func newMatchRuleCommand() *cobra.Command {
	var product, version string
	cmd := &cobra.Command{
		Use:   "match-rule",
		Short: "Show which api key rule a client version would hit for a product",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			reader, closeStore, err := openStore(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer closeStore()

			snapshot, err := reader.Snapshot(ctx, cfg.Tier)
			if err != nil {
				logger.Error("failed to read tier config", "error", err)
				return err
			}
			rule, ok := routing.MatchRule(routing.GroupRules(snapshot.APIKeyRules)[product], version)
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "No rule matches %s version %q.\n", product, version)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (status %d)\n", rule.RuleName, rule.RuleType, rule.StatusCode)
			return nil
		},
	}
	cmd.Flags().StringVar(&product, "product", "", "product name")
	cmd.Flags().StringVar(&version, "version", "", "client version")
	_ = cmd.MarkFlagRequired("product")
	return cmd
}

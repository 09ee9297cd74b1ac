package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"studyplanner/internal/config"
	"studyplanner/internal/format"
	appLog "studyplanner/internal/log"
	"studyplanner/internal/pipeline"
	"studyplanner/internal/web"
)

const version = "0.1.0"

// rootFlags holds persistent CLI flags.
type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "studyplanner",
		Short:         "Plan study sessions and sync them into a calendar",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "/etc/studyplanner/config.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (overrides config if set)")

	rootCmd.AddCommand(
		newPlanCommand(flags),
		newSyncCommand(flags),
		newServeCommand(flags),
		newWatchCommand(flags),
	)
	return rootCmd
}

func newPlanCommand(flags *rootFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the schedule and the calendar changes without applying them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return runOnce(ctx, flags, false, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func newSyncCommand(flags *rootFlags) *cobra.Command {
	var (
		dryRun bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Plan once and apply the changes to the calendar",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return runOnce(ctx, flags, !dryRun, asJSON)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute the plan but do not write the calendar")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func newServeCommand(flags *rootFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and re-plan on the refresh schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, runner, err := setup(flags)
			if err != nil {
				return err
			}
			// CLI --listen overrides config file listen if provided.
			if listen != "" {
				conf.Listen = listen
			}

			ctx, cancel := signalContext()
			defer cancel()

			srv := web.NewServer(conf, runner)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.ListenAndServe(gctx)
			})
			g.Go(func() error {
				return refreshLoop(gctx, conf, runner, srv.InvalidatePlan)
			})
			err = g.Wait()
			appLog.Info("studyplanner exiting")
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func newWatchCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-plan and sync on the refresh schedule until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, runner, err := setup(flags)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			err = refreshLoop(ctx, conf, runner, nil)
			appLog.Info("studyplanner exiting")
			return err
		},
	}
}

// setup loads config, applies the log level and wires the pipeline.
func setup(flags *rootFlags) (*config.Config, *pipeline.Runner, error) {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return nil, nil, err
	}

	level := conf.LogLevel
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	lv, ok := appLog.ParseLevel(level)
	if !ok {
		return nil, nil, fmt.Errorf("unknown log level %q", level)
	}
	appLog.SetLevel(lv)

	appLog.Info("effective config",
		"config_path", flags.configPath,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"calendar_path", conf.CalendarPath,
		"work_items_path", conf.WorkItemsPath,
		"busy_sources", len(conf.BusySources),
		"blackouts", len(conf.Blackouts),
		"horizon_days", conf.Planner.HorizonDays,
	)

	runner, err := pipeline.New(conf)
	if err != nil {
		return nil, nil, err
	}
	return conf, runner, nil
}

func runOnce(ctx context.Context, flags *rootFlags, apply, asJSON bool) error {
	_, runner, err := setup(flags)
	if err != nil {
		return err
	}
	rep, err := runner.Run(ctx, apply)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	return format.Report(os.Stdout, rep)
}

// refreshLoop syncs once immediately and then on every tick of the refresh
// schedule until ctx is done. Failed passes are logged and retried on the
// next tick. afterPass, if set, runs after every pass.
func refreshLoop(ctx context.Context, conf *config.Config, runner *pipeline.Runner, afterPass func()) error {
	loc, err := conf.Location()
	if err != nil {
		return err
	}

	pass := func() {
		if _, err := runner.Run(ctx, true); err != nil {
			appLog.Error("scheduled sync failed", err)
		}
		if afterPass != nil {
			afterPass()
		}
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(conf.RefreshCron, pass); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", conf.RefreshCron, err)
	}

	pass()
	c.Start()
	appLog.Info("refresh loop started", "refresh", conf.RefreshCron)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

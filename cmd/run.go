package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ddtcms/internal/catalog"
	"ddtcms/internal/client"
	"ddtcms/internal/config"
	"ddtcms/internal/reporting"
	"ddtcms/internal/run"
	"ddtcms/internal/tui"
	"ddtcms/pkg/logging"

	"github.com/spf13/cobra"
)

var (
	runTestSet     string
	runRelease     string
	runEnvironment string
	runWatch       bool
	runEndpoint    string
	runVerbose     bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit a test set for remote execution and report the result",
		Long: `Submits the named test set against a release to the execution
service, polls until the run reaches a terminal state and prints the
aggregated report. With --watch an interactive view tracks progress live.`,
		RunE: runTestSetRun,
	}

	cmd.Flags().StringVar(&runTestSet, "test-set", "", "Name of the test set to execute (required)")
	cmd.Flags().StringVar(&runRelease, "release", "", "Name of the release to run against (required)")
	cmd.Flags().StringVar(&runEnvironment, "env", "", "Target environment (defaults to the configured default)")
	cmd.Flags().BoolVar(&runWatch, "watch", false, "Watch run progress interactively")
	cmd.Flags().StringVar(&runEndpoint, "endpoint", "", "Override the service endpoint")
	cmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Enable debug logging")

	_ = cmd.MarkFlagRequired("test-set")
	_ = cmd.MarkFlagRequired("release")

	return cmd
}

func runTestSetRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if runEndpoint != "" {
		cfg.Server.Endpoint = runEndpoint
	}

	level := logging.LevelInfo
	if runVerbose {
		level = logging.LevelDebug
	}

	// Watch mode routes log entries over a channel into the TUI frame; it
	// must be live before Submit so the submit-phase logs are captured too.
	var logCh <-chan logging.LogEntry
	if runWatch {
		logCh = logging.InitForWatcher(level)
	} else {
		logging.InitForCLI(level, os.Stderr)
	}

	store, err := catalog.NewStorage(cfg.Catalog.Dir)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	if err := store.Load(); err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	testSet, err := store.FindTestSet(runTestSet)
	if err != nil {
		return err
	}
	release, err := store.FindRelease(runRelease)
	if err != nil {
		return err
	}

	environment := runEnvironment
	if environment == "" {
		environment = cfg.Execution.DefaultEnvironment
	}

	svc := client.New(cfg.Server.Endpoint, cfg.Server.Timeout)
	state := reporting.NewStore()
	orch := run.New(svc,
		run.WithPollInterval(cfg.Execution.PollInterval),
		run.WithFailureBackoff(cfg.Execution.FailureBackoff),
		run.WithMaxAttempts(cfg.Execution.MaxAttempts),
		run.WithChangeFunc(state.SetRunState),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orch.Submit(ctx, testSet.ID, release.ID, environment); err != nil {
		return fmt.Errorf("submitting run: %w", err)
	}

	var final run.Snapshot
	if runWatch {
		final, err = tui.Watch(orch, state, logCh)
		if err != nil {
			return err
		}
	} else {
		final = orch.RunUntilDone(ctx)
	}

	if final.Report != nil {
		fmt.Println(run.FormatReport(final.Report))
	}
	if final.Status == run.StatusFailed {
		os.Exit(1)
	}
	return nil
}

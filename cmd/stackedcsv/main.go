package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stackedcsv/internal/config"
	apperrors "stackedcsv/internal/errors"
	"stackedcsv/internal/infrastructure"
	"stackedcsv/internal/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// exitError carries an explicit process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// app is the state shared by the subcommands, built once the flags are parsed.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configFile string
	logLevel   string

	cfg       *config.Config
	logger    *slog.Logger
	logFile   *os.File
	providers *infrastructure.OTelProviders
	metrics   *infrastructure.SplitMetrics
	service   *services.SplitService
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	a.close(ctx)
	if err == nil {
		return apperrors.ExitOK
	}

	fmt.Fprintln(stderr, "Error:", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return apperrors.ExitCode(err)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "stackedcsv",
		Short: "Split concatenated key/value tables into one unified table",
		Long: `stackedcsv reads a CSV or XLSX file that holds two logical tables stacked in
one sheet (key rows that open a group, value rows that belong to it, repeated
header rows in between) and writes one row per value row with its key fields.

Example: stackedcsv split runs.csv --job job.yaml -o runs_unified.xlsx`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "Config file (default: stackedcsv.yaml or configs/stackedcsv.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the log level: debug|info|warn|error")

	root.AddCommand(
		newSplitCmd(a),
		newBatchCmd(a),
		newInspectCmd(a),
		newInitJobCmd(a),
	)
	return root
}

// setup loads the configuration and builds the logger, telemetry and service.
func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg

	logger, file, err := infrastructure.NewLogger(cfg.Logging, a.stderr)
	if err != nil {
		return apperrors.NewConfigError("failed to initialize logger", err)
	}
	a.logger, a.logFile = logger, file
	slog.SetDefault(logger)

	providers, err := infrastructure.InitializeOTel(ctx, cfg.Telemetry, a.stderr, logger)
	if err != nil {
		return apperrors.NewConfigError("failed to initialize telemetry", err)
	}
	a.providers = providers

	metrics, err := infrastructure.NewSplitMetrics(providers.Meter)
	if err != nil {
		return apperrors.NewConfigError("failed to create metrics", err)
	}
	a.metrics = metrics
	a.service = services.NewSplitService(logger, metrics, cfg.Batch.MaxConcurrent)
	return nil
}

func (a *app) close(ctx context.Context) {
	if a.providers != nil {
		if err := a.providers.Shutdown(ctx); err != nil && a.logger != nil {
			a.logger.Warn("telemetry_shutdown_failed", slog.String("error", err.Error()))
		}
		a.providers = nil
	}
	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}
}

// loadJob reads the job file at path, or returns the built-in job.
func loadJob(path string) (*config.JobConfig, error) {
	if path == "" {
		return config.DefaultJob(), nil
	}
	return config.LoadJob(path)
}

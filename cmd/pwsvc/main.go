// Command pwsvc runs the weekly personal-activity services: the LEFT-OFF digest
// and the Toggl project export. Without a service flag it only runs inside the
// configured time window; see `pwsvc guardrail`.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pwsvc/internal/config"
	"pwsvc/internal/guardrail"
	"pwsvc/internal/logging"
	"pwsvc/internal/service"
	"pwsvc/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string
	envFile    string
	timeout    time.Duration

	// Service selection
	runLeftOff bool
	runToggl   bool
	runAnyway  bool

	cfg    *config.Config
	logger *zap.Logger

	// clock is replaced in tests.
	clock = time.Now
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(err error) error {
	return &exitError{code: 1, err: err}
}

// exitCode maps an error returned by rootCmd to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return guardrail.ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

var rootCmd = &cobra.Command{
	Use:   "pwsvc",
	Short: "Weekly activity digest and time tracking export",
	Long: `pwsvc downloads the LEFT-OFF activity log from OneDrive, keeps the last days of
dated entries, asks a language model for a short digest, and exports Toggl Track
hours per project.

Without --run-left-off or --run-toggl every service runs, but only inside the
configured time window (default 22:55-23:05 local time). Outside it the
process exits with status 2 unless --run-anyway is given.

Exit status: 0 success or bypassed, 1 failure, 2 outside the allowed window.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return fail(err)
		}
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fail(err)
		}
		logger, err = logging.New(cfg.LoggingOptions(verbose))
		if err != nil {
			return fail(err)
		}
		logging.For(logger, logging.CategoryBoot).Debug("configuration loaded",
			zap.String("config", configPath),
			zap.String("environment", cfg.Logging.Environment))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runRoot,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Config file (missing file uses defaults)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "KEY=VALUE file loaded before the environment is read")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Overall operation timeout")

	rootCmd.Flags().BoolVar(&runLeftOff, "run-left-off", false, "Run the LEFT-OFF digest now, ignoring the time window")
	rootCmd.Flags().BoolVar(&runToggl, "run-toggl", false, "Run the Toggl export now, ignoring the time window")
	rootCmd.Flags().BoolVar(&runAnyway, "run-anyway", false, "Bypass the time window")

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(guardrailCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}

// commandContext applies --timeout and cancels on SIGINT/SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}

// decide evaluates the guardrail and emits the audit event.
func decide(o guardrail.Overrides) (guardrail.Decision, error) {
	window, err := cfg.GuardrailWindow()
	if err != nil {
		return guardrail.Decision{}, fail(err)
	}
	d := guardrail.Decide(clock(), window, o)

	glog := logging.For(logger, logging.CategoryGuardrail)
	fields := []zap.Field{
		zap.String("outcome", d.Outcome.String()),
		zap.Time("now", d.Now),
		zap.Time("window_start", d.WindowStart),
		zap.Time("window_end", d.WindowEnd),
		zap.String("reason", d.Reason),
	}
	if d.Allowed() {
		glog.Info("time window check passed", fields...)
	} else {
		glog.Warn("execution blocked by time window", fields...)
	}
	logging.NewAudit(logger).GuardrailDecision(d.Outcome.String(), d.Now, d.WindowStart, d.WindowEnd, d.ExitCode())
	return d, nil
}

func runRoot(cmd *cobra.Command, args []string) error {
	d, err := decide(guardrail.Overrides{
		ExplicitBypass:  runAnyway,
		ServiceSelected: runLeftOff || runToggl,
	})
	if err != nil {
		return err
	}
	if !d.Allowed() {
		return &exitError{code: d.ExitCode(), err: fmt.Errorf("outside the allowed time window: %s", d.Reason)}
	}

	if err := cfg.Validate(); err != nil {
		return fail(fmt.Errorf("configuration error: %w", err))
	}

	ctx, cancel := commandContext()
	defer cancel()

	var artifacts *store.ArtifactStore
	if cfg.Store.Enabled {
		artifacts, err = store.Open(cfg.DatabasePath(), logger)
		if err != nil {
			return fail(err)
		}
		defer artifacts.Close()
	}

	// A selected service runs alone. The scheduled run does every service whose
	// settings are present and fails only when none are.
	all := !runLeftOff && !runToggl
	var runners []service.Runner
	var skipped []error
	add := func(selected bool, build func() (service.Runner, error)) error {
		if !selected && !all {
			return nil
		}
		r, err := build()
		switch {
		case err == nil:
			runners = append(runners, r)
		case all && errors.Is(err, config.ErrMissingEnv):
			logger.Warn("service skipped", zap.Error(err))
			skipped = append(skipped, err)
		default:
			return fail(fmt.Errorf("configuration error: %w", err))
		}
		return nil
	}
	out := cmd.OutOrStdout()
	if err := add(runLeftOff, func() (service.Runner, error) { return newLeftOffService(ctx, artifacts, out) }); err != nil {
		return err
	}
	if err := add(runToggl, func() (service.Runner, error) { return newTogglService(artifacts, out) }); err != nil {
		return err
	}
	if len(runners) == 0 {
		return fail(fmt.Errorf("configuration error: %w", errors.Join(skipped...)))
	}

	var errs []error
	for _, r := range runners {
		if err := r.Run(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fail(errors.Join(errs...))
	}
	return nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/roach88/plc/internal/config"
	"github.com/roach88/plc/internal/engine"
	"github.com/roach88/plc/internal/gpio"
	"github.com/roach88/plc/internal/logging"
	"github.com/roach88/plc/internal/metrics"
	"github.com/roach88/plc/internal/monitor"
	"github.com/roach88/plc/internal/notify"
	"github.com/roach88/plc/internal/script"
	"github.com/roach88/plc/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Program   string
	Sim       bool
	Pins      map[string]string
	Database  string
	Cycles    int64
	CycleTime time.Duration
	Listen    string
	EnvFiles  []string
	LogFormat string
	LogLevel  string

	// RunIDGenerator overrides the UUIDv7 run identifiers (for testing).
	RunIDGenerator engine.RunIDGenerator

	// Terminator overrides process termination on a communication failure
	// (for testing). If nil, the engine exits through atexit.
	Terminator engine.Terminator
}

// RunSummary describes a finished run.
type RunSummary struct {
	RunID       string `json:"run_id"`
	Application string `json:"application"`
	Outcome     string `json:"outcome"`
	Cycles      int64  `json:"cycles"`
	Detail      string `json:"detail,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <application>",
		Short: "Run the scan loop",
		Long: `Run the scan loop of an application with a Starlark control program.

Each cycle reads every input, calls control() and writes every output. The
loop ends on SIGINT, SIGTERM or SIGTSTP (the exit routine runs on_exit()),
on an emergency raised by the program (on_emergency() runs), or on a
hardware failure, which terminates the process after alarming the operator.

No hardware driver is built in: --sim runs against an in-memory pin bank
whose input levels are set with --pin.

Example:
  plc run tank.yaml --program tank.star --sim --pin 17=high --cycles 100
  plc run tank.cue -p tank.star --sim --db trace.db --listen :9100`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Program, "program", "p", "", "Starlark control program (required)")
	_ = cmd.MarkFlagRequired("program")
	cmd.Flags().BoolVar(&opts.Sim, "sim", false, "drive a simulated pin bank")
	cmd.Flags().StringToStringVar(&opts.Pins, "pin", nil, "initial simulated pin level, e.g. 17=high (repeatable)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run into this SQLite trace database")
	cmd.Flags().Int64Var(&opts.Cycles, "cycles", 0, "stop after this many cycles (0 runs until stopped)")
	cmd.Flags().DurationVar(&opts.CycleTime, "cycle-time", 0, "override the application cycle period")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "serve /metrics, /snapshot and /healthz on this address")
	cmd.Flags().StringSliceVar(&opts.EnvFiles, "env-file", nil, "load environment variables from .env files")
	cmd.Flags().StringVar(&opts.LogFormat, "log-format", "text", "log format (text|json)")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error); --verbose forces debug")

	return cmd
}

func runEngine(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	level := logging.ParseLevel(opts.LogLevel)
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := logging.New(cmd.ErrOrStderr(), level, logging.Format(opts.LogFormat))

	if err := config.LoadEnv(opts.EnvFiles...); err != nil {
		return WrapExitError(ExitCommandError, "failed to load environment", err)
	}

	app, err := LoadApplication(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load application", err)
	}

	if !opts.Sim {
		return NewExitError(ExitCommandError, "no hardware driver available: use --sim")
	}
	sim := gpio.NewSimDriver()
	if err := setPins(sim, opts.Pins); err != nil {
		return WrapExitError(ExitCommandError, "invalid --pin", err)
	}

	notifier, err := buildNotifier(app.Notify, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to configure notifications", err)
	}

	engOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithNotifier(notifier),
		engine.WithCycleTime(app.CycleTime),
	}
	if opts.CycleTime > 0 {
		engOpts = append(engOpts, engine.WithCycleTime(opts.CycleTime))
	}
	if opts.RunIDGenerator != nil {
		engOpts = append(engOpts, engine.WithRunIDGenerator(opts.RunIDGenerator))
	}
	if opts.Terminator != nil {
		engOpts = append(engOpts, engine.WithTerminator(opts.Terminator))
	}

	var rec *store.Recorder
	if opts.Database != "" {
		logger.Debug("opening trace database", "path", opts.Database)
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		closeStore := sync.OnceFunc(func() {
			if err := st.Close(); err != nil {
				logger.Error("error closing database", "err", err)
			}
		})
		// A communication failure exits through atexit, skipping defers.
		atexit.Register(closeStore)
		defer closeStore()

		rec = store.NewRecorder(st, app.Name, logger)
		engOpts = append(engOpts, engine.WithHook(rec))
	}

	var collector *metrics.Collector
	if opts.Listen != "" {
		collector = metrics.New()
		engOpts = append(engOpts, engine.WithHook(collector))
	}
	if opts.Cycles > 0 {
		engOpts = append(engOpts, engine.WithHook(stopAfter(opts.Cycles)))
	}

	eng := engine.New(sim, engOpts...)
	if err := app.Apply(eng); err != nil {
		return WrapExitError(ExitCommandError, "failed to configure engine", err)
	}

	prog, err := script.Load(opts.Program, eng, script.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("%s: failed to load program", ErrCodeProgram), err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGTSTP)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping", "signal", sig)
			eng.Stop()
		case <-ctx.Done():
		}
	}()

	var monitorDone chan error
	if opts.Listen != "" {
		monitorDone = make(chan error, 1)
		monCtx, stopMonitor := context.WithCancel(ctx)
		defer func() {
			stopMonitor()
			if err := <-monitorDone; err != nil {
				logger.Error("monitor stopped", "err", err)
			}
		}()
		h := monitor.NewHandler(eng, collector.Registry())
		go func() {
			monitorDone <- monitor.Serve(monCtx, opts.Listen, h, logger)
		}()
	}

	formatter.VerboseLog("Running %s with %s", path, opts.Program)
	runErr := eng.Run(ctx, prog)

	if rec != nil {
		if err := rec.Err(); err != nil {
			logger.Warn("trace incomplete", "err", err)
		}
	}

	summary := RunSummary{
		RunID:       eng.RunID(),
		Application: app.Name,
		Outcome:     string(eng.Outcome()),
		Cycles:      eng.Cycle(),
	}
	if emErr := eng.Emergency(); emErr != nil {
		summary.Detail = emErr.Error()
	} else if runErr != nil {
		summary.Detail = runErr.Error()
	}

	if err := outputRunSummary(formatter, summary); err != nil {
		return err
	}
	return runExitError(eng.Outcome(), runErr, eng.Emergency())
}

func outputRunSummary(formatter *OutputFormatter, s RunSummary) error {
	if formatter.JSON() {
		return formatter.encode(CLIResponse{Status: "ok", Data: s, RunID: s.RunID})
	}
	fmt.Fprintf(formatter.Writer, "Run %s ended: %s after %d cycles\n", s.RunID, s.Outcome, s.Cycles)
	if s.Detail != "" {
		fmt.Fprintf(formatter.Writer, "  %s\n", s.Detail)
	}
	return nil
}

// runExitError maps the run outcome to the command result. A stop and a
// handled emergency both end the process normally.
func runExitError(outcome engine.Outcome, runErr, emergency error) error {
	switch outcome {
	case engine.OutcomeStopped:
		if runErr != nil {
			return WrapExitError(ExitFailure, "exit routine failed", runErr)
		}
		return nil
	case engine.OutcomeEmergency:
		if runErr != nil {
			return WrapExitError(ExitFailure, "emergency routine failed", errors.Join(emergency, runErr))
		}
		return nil
	case engine.OutcomeCommunicationFailure:
		return WrapExitError(ExitFailure, "communication failure", runErr)
	default:
		if runErr == nil {
			runErr = errors.New("run ended without an outcome")
		}
		return WrapExitError(ExitFailure, "control error", runErr)
	}
}

// stopAfter requests a stop once the given cycle completed.
func stopAfter(n int64) engine.Hook {
	return engine.HookFunc(func(hc engine.HookCtx) {
		if hc.Pos == engine.HookPosAfterCycle && hc.Cycle >= n {
			hc.Engine.Stop()
		}
	})
}

// setPins drives simulated pins to their initial levels.
func setPins(sim *gpio.SimDriver, pins map[string]string) error {
	for pin, raw := range pins {
		level, err := parseLevel(raw)
		if err != nil {
			return fmt.Errorf("pin %s: %w", pin, err)
		}
		sim.Set(pin, level)
	}
	return nil
}

func parseLevel(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "high", "on", "true":
		return true, nil
	case "0", "low", "off", "false":
		return false, nil
	default:
		return false, fmt.Errorf("unknown level %q (want high or low)", s)
	}
}

// buildNotifier assembles the alarm channels of an application. Alarms are
// always logged when no email recipient is configured.
func buildNotifier(cfg config.Notify, logger *slog.Logger) (engine.Notifier, error) {
	var multi notify.Multi
	if cfg.Log || len(cfg.Email) == 0 {
		multi = append(multi, notify.Log{Logger: logger})
	}
	if len(cfg.Email) > 0 {
		smtpCfg, err := config.SMTPFromEnv(cfg.Email)
		if err != nil {
			return nil, err
		}
		mail, err := notify.NewSMTP(smtpCfg, nil)
		if err != nil {
			return nil, err
		}
		multi = append(multi, mail)
	}
	return multi, nil
}

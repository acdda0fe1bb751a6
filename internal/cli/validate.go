package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/plc/internal/config"
	"github.com/roach88/plc/internal/engine"
	"github.com/roach88/plc/internal/gpio"
	"github.com/roach88/plc/internal/logging"
	"github.com/roach88/plc/internal/script"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Program string
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	Application string   `json:"application,omitempty"`
	Inputs      int      `json:"inputs"`
	Outputs     int      `json:"outputs"`
	Steps       int      `json:"steps"`
	Issues      []Issue  `json:"issues,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <application>",
		Short: "Validate an application without running it",
		Long: `Validate a YAML or CUE application file.

Checks syntax, unknown fields, names (empty, duplicate, or clashing with an
output read-back) and pin assignments. With --program the control script is
also loaded against the application, which catches Starlark syntax errors
and missing callbacks.

Exit codes:
  0 - Application valid
  1 - Validation failed
  2 - Command error (file not found, unsupported extension)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Program, "program", "p", "", "Starlark control program to check")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	formatter.VerboseLog("Loading application %s", path)
	app, err := LoadApplication(path)
	if err != nil {
		var loadErr *LoadError
		if !errors.As(err, &loadErr) {
			return outputValidateError(formatter, ErrCodeGeneric, err.Error())
		}
		switch loadErr.Code() {
		case ErrCodeNotFound, ErrCodeUnsupported:
			return outputValidateError(formatter, loadErr.Code(), loadErr.Issues[0].Message)
		}
		return outputValidationIssues(formatter, loadErr.Issues)
	}

	result := ValidationResult{
		Valid:       true,
		Application: app.Name,
		Inputs:      len(app.Inputs),
		Outputs:     len(app.Outputs) + len(app.PWMOutputs),
		Steps:       len(app.Steps),
		Warnings:    warnings(app),
	}

	if opts.Program != "" {
		formatter.VerboseLog("Loading program %s", opts.Program)
		if err := checkProgram(app, opts.Program); err != nil {
			return outputValidationIssues(formatter, []Issue{{
				Code:    ErrCodeProgram,
				Field:   "program",
				Message: err.Error(),
			}})
		}
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	name := result.Application
	if name == "" {
		name = path
	}
	fmt.Fprintf(formatter.Writer, "✓ %s valid (%d inputs, %d outputs, %d steps)\n",
		name, result.Inputs, result.Outputs, result.Steps)
	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "  warning: %s\n", w)
	}
	return nil
}

// checkProgram registers the application on a simulated engine and loads
// the program against it. Nothing runs.
func checkProgram(app *config.Application, program string) error {
	eng := engine.New(gpio.NewSimDriver(), engine.WithLogger(logging.NewNop()))
	if err := app.Apply(eng); err != nil {
		return err
	}
	_, err := script.Load(program, eng, script.WithLogger(logging.NewNop()))
	return err
}

// warnings lists settings that are valid but probably unintended.
func warnings(app *config.Application) []string {
	var out []string
	if app.Name == "" {
		out = append(out, "application has no name; trace runs will be recorded without one")
	}
	if len(app.Outputs)+len(app.PWMOutputs) == 0 {
		out = append(out, "no outputs declared")
	}
	if len(app.Notify.Email) > 0 {
		out = append(out, fmt.Sprintf("email alarms need the %s and %s environment", config.EnvSMTPHost, config.EnvSMTPFrom))
	}
	return out
}

// outputValidateError outputs a command-level error (exit code 2).
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationIssues outputs every issue (exit code 1).
func outputValidationIssues(formatter *OutputFormatter, issues []Issue) error {
	if formatter.JSON() {
		err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Issues: issues},
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		})
		if err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range issues {
		fmt.Fprintf(formatter.Writer, "  %s\n", issue)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/espressif/eim-e2e/internal/config"
	clierrors "github.com/espressif/eim-e2e/internal/errors"
	"github.com/espressif/eim-e2e/internal/output"
	"github.com/espressif/eim-e2e/internal/suite"
)

func newRunCmd() *cobra.Command {
	var (
		file string
		only []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario file against the installer",
		Long: `Run every case of a scenario file against the installer binary at
EIM_FILE_PATH. Each step opens a fresh shell in a pseudo-terminal, types the
installer command and answers its prompts. A failing case does not stop the
run; the exit code reports whether every case passed.`,
		Example: `  eim-e2e run --file default
  JSON_FILENAME=non-interactive eim-e2e run
  eim-e2e run --file custom --only 2,3
  eim-e2e run --file default --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}

			if err := checkInstaller(cfg); err != nil {
				return err
			}

			runner, cases, err := planCases(cmd.Context(), cfg, file, suite.Options{
				Reporter: newProgressReporter(out),
			})
			if err != nil {
				return err
			}

			cases, err = suite.Select(cases, only)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out.Info("Running %d case(s) against %s", len(cases), cfg.InstallerPath())

			report := runner.Run(ctx, cases)

			if out.JSON {
				if err := out.PrintJSON(report); err != nil {
					return err
				}
			} else {
				renderReport(out, report)
			}

			if err := ctx.Err(); err != nil && cmd.Context().Err() == nil {
				return &clierrors.CLIError{
					Message: "Run interrupted",
					Hint:    fmt.Sprintf("%d of %d case(s) ran before the interrupt", len(report.Cases), len(cases)),
					Code:    clierrors.ExitGeneral,
				}
			}

			return report.Err()
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Scenario file name or path (default: JSON_FILENAME)")
	cmd.Flags().StringSliceVar(&only, "only", nil, "Run only the cases with these ids")

	return cmd
}

// checkInstaller fails fast when the run cannot start at all.
func checkInstaller(cfg *config.Config) error {
	if runtime.GOOS == "windows" {
		return clierrors.PlatformUnsupported(runtime.GOOS)
	}

	path := cfg.InstallerPath()

	info, err := os.Stat(path)
	if err != nil {
		return clierrors.BinaryNotFound(path)
	}

	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return clierrors.BinaryNotExecutable(path, fmt.Errorf("mode %s", info.Mode()))
	}

	return nil
}

// progressReporter shows a spinner per step while a run executes.
type progressReporter struct {
	out *output.Writer

	mu      sync.Mutex
	spinner *output.Spinner
	next    int
}

func newProgressReporter(out *output.Writer) *progressReporter {
	return &progressReporter{out: out}
}

func (p *progressReporter) CaseStarted(c suite.Case) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.out.Println()
	p.out.Info("Case %s: %s", c.ID, c.Name)

	p.next = 0
	p.startStepLocked(c)
}

func (p *progressReporter) StepFinished(c suite.Case, step suite.StepResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch step.Outcome {
	case suite.OutcomeSkipped:
		p.out.Muted("  - %s skipped", step.Name)
	case suite.OutcomePassed:
		p.stopLocked(func(s *output.Spinner) {
			s.StopWithSuccess(fmt.Sprintf("%s (%s)", step.Name, step.Duration.Round(time.Millisecond)))
		})
	default:
		p.stopLocked(func(s *output.Spinner) {
			s.StopWithFailure(fmt.Sprintf("%s: %s", step.Name, step.Error))
		})
	}

	if step.Outcome == suite.OutcomePassed {
		p.startStepLocked(c)
	}
}

func (p *progressReporter) CaseFinished(result suite.CaseResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked(func(s *output.Spinner) { s.Stop() })

	if result.Passed() {
		return
	}

	if len(result.FailureTail) > 0 {
		p.out.Muted("  Last terminal output:")

		for _, line := range result.FailureTail {
			p.out.Muted("    %s", line)
		}
	}

	if result.Transcript != "" {
		p.out.Muted("  Transcript: %s", result.Transcript)
	}
}

func (p *progressReporter) startStepLocked(c suite.Case) {
	if p.next >= len(c.Steps) {
		return
	}

	p.spinner = p.out.Spinner(c.Steps[p.next].Name)
	p.spinner.Start()
	p.next++
}

func (p *progressReporter) stopLocked(stop func(*output.Spinner)) {
	if p.spinner == nil {
		return
	}

	stop(p.spinner)
	p.spinner = nil
}

// renderReport prints the per-case summary table and totals.
func renderReport(out *output.Writer, report suite.Report) {
	table := output.Table{Headers: []string{"ID", "TYPE", "RESULT", "DURATION", "NAME"}}

	for _, c := range report.Cases {
		table.Rows = append(table.Rows, []string{
			c.ID,
			c.Type,
			c.Outcome,
			c.Duration.Round(time.Second).String(),
			c.Name,
		})
	}

	out.Println()
	out.Table(table)
	out.Println()

	summary := fmt.Sprintf("%d passed, %d failed in %s (run %s)",
		report.Passed, report.Failed, report.Duration.Round(time.Second), report.RunID)

	if report.Failed > 0 {
		out.Warning("%s", summary)
		return
	}

	out.Success("%s", summary)
}

var _ suite.Reporter = (*progressReporter)(nil)

package main

import (
	"github.com/spf13/cobra"

	clierrors "github.com/espressif/eim-e2e/internal/errors"
	"github.com/espressif/eim-e2e/internal/doctor"
	"github.com/espressif/eim-e2e/internal/observability"
	"github.com/espressif/eim-e2e/internal/output"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the test host before a run",
		Long: `Run pre-flight checks that catch a broken setup before a long run.

Checks performed:
  - the installer binary exists and is executable
  - eim -V reports the expected version
  - a shell starts inside a pseudo-terminal
  - the selected scenario file parses
  - the activation script of a previous install exists`,
		Example: `  eim-e2e doctor
  EIM_FILE_PATH=./eim EIM_VERSION=">= 0.1.5" eim-e2e doctor --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}

			runner := doctor.New(doctor.Options{
				Config: cfg,
				Logger: observability.FromContext(cmd.Context()),
			})
			results := runner.Run(cmd.Context())
			passed, failed, warnings := doctor.Summary(results)

			if out.JSON {
				if err := out.PrintJSON(results); err != nil {
					return err
				}
			} else {
				renderDoctor(out, results, passed, failed, warnings)
			}

			if failed > 0 {
				return clierrors.DoctorFailed(failed)
			}

			return nil
		},
	}
}

func renderDoctor(out *output.Writer, results []doctor.Result, passed, failed, warnings int) {
	out.Println("eim-e2e doctor")
	out.Println("==============")
	out.Println()

	doctor.RenderResults(results, out.Print, out.Success, out.Warning, out.Failure, out.Muted)

	out.Println()
	out.Print("%d passed", passed)

	if failed > 0 {
		out.Print(", %d failed", failed)
	}

	if warnings > 0 {
		out.Print(", %d warning(s)", warnings)
	}

	out.Println()
}

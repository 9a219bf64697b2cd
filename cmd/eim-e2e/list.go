package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/espressif/eim-e2e/internal/output"
	"github.com/espressif/eim-e2e/internal/suite"
)

// caseInfo is the JSON form of a planned case.
type caseInfo struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	Timeout       string   `json:"timeout"`
	InstallFolder string   `json:"installFolder,omitempty"`
	Steps         []string `json:"steps"`
}

func newListCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the cases of a scenario file",
		Long: `Plan a scenario file without running it and show each case with its
steps. Planning validates the scenario data, so an unknown mirror or type is
reported here before a run starts.`,
		Example: `  eim-e2e list --file default
  eim-e2e list --file custom --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}

			// Planning alone logs nothing worth keeping.
			_, cases, err := planCases(cmd.Context(), cfg, file, suite.Options{
				Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
			})
			if err != nil {
				return err
			}

			infos := make([]caseInfo, 0, len(cases))
			for _, c := range cases {
				infos = append(infos, describeCase(c))
			}

			if out.JSON {
				return out.PrintJSON(infos)
			}

			if len(infos) == 0 {
				out.Muted("The scenario file has no cases.")
				return nil
			}

			table := output.Table{Headers: []string{"ID", "TYPE", "STEPS", "TIMEOUT", "NAME"}}
			for _, info := range infos {
				table.Rows = append(table.Rows, []string{
					info.ID,
					info.Type,
					fmt.Sprint(len(info.Steps)),
					info.Timeout,
					info.Name,
				})
			}

			out.Table(table)

			if out.Verbose {
				for _, info := range infos {
					out.Muted("%s: %s", info.ID, strings.Join(info.Steps, ", "))
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Scenario file name or path (default: JSON_FILENAME)")

	return cmd
}

func describeCase(c suite.Case) caseInfo {
	steps := make([]string, 0, len(c.Steps))
	for _, s := range c.Steps {
		steps = append(steps, s.Name)
	}

	return caseInfo{
		ID:            c.ID,
		Name:          c.Name,
		Type:          string(c.Type),
		Timeout:       c.Timeout.String(),
		InstallFolder: c.InstallFolder,
		Steps:         steps,
	}
}

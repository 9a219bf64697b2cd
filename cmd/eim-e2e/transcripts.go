package main

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"

	clierrors "github.com/espressif/eim-e2e/internal/errors"
	"github.com/espressif/eim-e2e/internal/output"
	"github.com/espressif/eim-e2e/internal/transcript"
)

func newTranscriptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcripts",
		Short: "Inspect terminal transcripts of past runs",
		Long:  `List, view and prune the per-case terminal recordings written by eim-e2e run.`,
	}

	cmd.AddCommand(newTranscriptsListCmd())
	cmd.AddCommand(newTranscriptsViewCmd())
	cmd.AddCommand(newTranscriptsPruneCmd())

	return cmd
}

func newTranscriptsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored transcripts",
		Long:  `List the recorded cases under the transcripts directory, newest first.`,
		Example: `  eim-e2e transcripts list
  eim-e2e transcripts list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}

			recordings, err := transcript.List(cfg.TranscriptDir())
			if err != nil {
				return err
			}

			if out.JSON {
				return out.PrintJSON(recordings)
			}

			if len(recordings) == 0 {
				out.Muted("No transcripts found.")
				return nil
			}

			table := output.Table{Headers: []string{"NAME", "RESULT", "STARTED", "CASE"}}

			for _, rec := range recordings {
				result := rec.Result
				if rec.ClosedAt == nil {
					result = "open"
				}

				table.Rows = append(table.Rows, []string{
					rec.Name(),
					result,
					rec.StartedAt.Local().Format(time.DateTime),
					rec.CaseName,
				})
			}

			out.Table(table)

			return nil
		},
	}
}

func newTranscriptsViewCmd() *cobra.Command {
	var (
		search string
		raw    bool
		input  bool
	)

	cmd := &cobra.Command{
		Use:   "view <name>",
		Short: "Print the terminal output of a transcript",
		Long: `Print what the installer wrote to the terminal during one recorded case.
Escape sequences are stripped unless --raw is given.`,
		Example: `  eim-e2e transcripts view 1a2b3c4d-2
  eim-e2e transcripts view 1a2b3c4d-2 --search error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}

			root := cfg.TranscriptDir()
			name := args[0]

			if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
				return clierrors.New(clierrors.ExitUsage, fmt.Sprintf("Invalid transcript name %q", name)).
					WithHint("Use a name shown by 'eim-e2e transcripts list'")
			}

			if root == "" {
				recordings, err := transcript.List(root)
				if err != nil {
					return err
				}

				for _, rec := range recordings {
					if rec.Name() == name {
						root = filepath.Dir(rec.Path)
						break
					}
				}
			}

			events, err := transcript.ReadEvents(filepath.Join(root, name))
			if err != nil {
				return clierrors.Wrap(clierrors.ExitGeneral, fmt.Sprintf("Cannot read transcript %q", name), err).
					WithHint("Use a name shown by 'eim-e2e transcripts list'")
			}

			for _, ev := range events {
				if ev.Stream == transcript.StreamInput && !input {
					continue
				}

				text := eventText(ev)
				if !raw {
					text = ansi.Strip(text)
				}

				if search != "" {
					text = filterLines(text, search)
					if text == "" {
						continue
					}
				}

				out.Print("%s", text)
			}

			out.Println()

			return nil
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Show only lines containing this substring")
	cmd.Flags().BoolVar(&raw, "raw", false, "Keep ANSI escape sequences")
	cmd.Flags().BoolVar(&input, "input", false, "Include the keystrokes sent to the terminal")

	return cmd
}

func newTranscriptsPruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete transcripts older than a duration",
		Long: `Delete recorded cases that closed before the retention window. Pruning
with the default window is also done when eim-e2e run starts.`,
		Example: `  eim-e2e transcripts prune
  eim-e2e transcripts prune --older-than 24h`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}

			window := olderThan
			if window <= 0 {
				window = transcript.DefaultRetention()
			}

			removed, err := transcript.Prune(cfg.TranscriptDir(), time.Now().Add(-window))
			if err != nil {
				return err
			}

			if out.JSON {
				return out.PrintJSON(map[string]int{"removed": removed})
			}

			out.Success("Removed %d transcript(s)", removed)

			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Override the retention window (example: 168h)")

	return cmd
}

// eventText returns the bytes of ev, preferring the exact raw payload.
func eventText(ev transcript.Event) string {
	if ev.RawBase64 != "" {
		if raw, err := base64.StdEncoding.DecodeString(ev.RawBase64); err == nil {
			return string(raw)
		}
	}

	return ev.Text
}

func filterLines(text, search string) string {
	needle := strings.ToLower(search)

	var kept []string

	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(strings.ToLower(line), needle) {
			kept = append(kept, strings.TrimRight(line, "\r"))
		}
	}

	if len(kept) == 0 {
		return ""
	}

	return strings.Join(kept, "\n") + "\n"
}

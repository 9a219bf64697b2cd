package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	clierrors "github.com/espressif/eim-e2e/internal/errors"
	"github.com/espressif/eim-e2e/internal/output"
)

func testWriter() (*output.Writer, *bytes.Buffer) {
	var buf bytes.Buffer

	term := &output.Terminal{IsTTY: false, NoColor: true, Width: 80, Height: 24}

	return output.NewWriter(&buf, &buf, term), &buf
}

func testRootCmd() *cobra.Command {
	out, _ := testWriter()
	return newRootCmd(out)
}

// TestAllRunnableCommandsHaveArgsValidator walks the entire command tree and
// fails if any runnable command is missing an Args validator.
func TestAllRunnableCommandsHaveArgsValidator(t *testing.T) {
	root := testRootCmd()

	var missing []string

	for _, cmd := range collectAllCommands(root) {
		if !cmd.Runnable() {
			continue
		}

		if cmd.Args == nil {
			missing = append(missing, cmd.CommandPath())
		}
	}

	if len(missing) > 0 {
		t.Errorf("runnable commands missing Args validator:\n  %s\n\nAdd Args: noArgs (or another validator) to each command.",
			strings.Join(missing, "\n  "))
	}
}

// collectAllCommands returns every command in the tree (including root).
func collectAllCommands(root *cobra.Command) []*cobra.Command {
	var all []*cobra.Command

	var walk func(cmd *cobra.Command)

	walk = func(cmd *cobra.Command) {
		all = append(all, cmd)
		for _, child := range cmd.Commands() {
			walk(child)
		}
	}

	walk(root)

	return all
}

func TestUnknownFlagReturnsCLIError(t *testing.T) {
	root := testRootCmd()
	root.SetArgs([]string{"version", "--bogus"})

	err := root.Execute()
	if err == nil {
		t.Fatal("expected error for unknown flag, got nil")
	}

	var cliErr *clierrors.CLIError
	if !clierrors.As(err, &cliErr) {
		t.Fatalf("expected CLIError, got %T: %v", err, err)
	}

	if cliErr.Code != clierrors.ExitUsage {
		t.Errorf("exit code = %d, want %d (ExitUsage)", cliErr.Code, clierrors.ExitUsage)
	}

	if !strings.Contains(cliErr.Message, "unknown flag") {
		t.Errorf("message = %q, want to contain 'unknown flag'", cliErr.Message)
	}

	if !strings.Contains(cliErr.Hint, "eim-e2e version --help") {
		t.Errorf("hint = %q, want to contain 'eim-e2e version --help'", cliErr.Hint)
	}
}

func TestNoArgsCommandRejectsExtraArgs(t *testing.T) {
	for _, args := range [][]string{
		{"version", "extra"},
		{"run", "default"},
		{"list", "default"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			root := testRootCmd()
			root.SetArgs(args)

			err := root.Execute()

			var cliErr *clierrors.CLIError
			if !clierrors.As(err, &cliErr) {
				t.Fatalf("expected CLIError, got %T: %v", err, err)
			}

			if cliErr.Code != clierrors.ExitUsage {
				t.Errorf("exit code = %d, want %d (ExitUsage)", cliErr.Code, clierrors.ExitUsage)
			}

			if !strings.Contains(cliErr.Message, "accepts no arguments") {
				t.Errorf("message = %q, want to contain 'accepts no arguments'", cliErr.Message)
			}
		})
	}
}

func TestHandleErrorExitCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "cli error", err: clierrors.SuiteFailed(1, 3), want: clierrors.ExitExecution},
		{name: "unknown command", err: errString(`unknown command "bogus" for "eim-e2e"`), want: clierrors.ExitUsage},
		{name: "unknown shorthand", err: errString("unknown shorthand flag: 'z' in -z"), want: clierrors.ExitUsage},
		{name: "anything else", err: errString("disk on fire"), want: clierrors.ExitGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, buf := testWriter()

			if got := handleError(out, tt.err); got != tt.want {
				t.Errorf("handleError() = %d, want %d", got, tt.want)
			}

			if buf.Len() == 0 {
				t.Error("handleError() printed nothing")
			}
		})
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestIsInteractiveCommand(t *testing.T) {
	for path, want := range map[string]bool{
		"eim-e2e run":         true,
		"eim-e2e run extra":   true,
		"eim-e2e runner":      false,
		"eim-e2e doctor":      false,
		"eim-e2e config list": false,
	} {
		if got := isInteractiveCommand(path); got != want {
			t.Errorf("isInteractiveCommand(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestPickFlagOrEnv(t *testing.T) {
	t.Setenv("EIM_E2E_TEST_LEVEL", " debug ")

	if got := pickFlagOrEnv("warn", "EIM_E2E_TEST_LEVEL", "info"); got != "warn" {
		t.Errorf("flag should win, got %q", got)
	}

	if got := pickFlagOrEnv("", "EIM_E2E_TEST_LEVEL", "info"); got != "debug" {
		t.Errorf("env should win over fallback, got %q", got)
	}

	if got := pickFlagOrEnv("", "EIM_E2E_TEST_UNSET", "info"); got != "info" {
		t.Errorf("fallback expected, got %q", got)
	}

	t.Setenv("EIM_E2E_TEST_JSON", "Yes")

	if !pickBoolFlagOrEnv(false, "EIM_E2E_TEST_JSON") {
		t.Error("pickBoolFlagOrEnv should accept yes")
	}
}

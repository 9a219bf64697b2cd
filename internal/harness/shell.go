package harness

import (
	"fmt"
	"runtime"
	"strings"
)

// Shell is the per-platform strategy for running programs interactively.
type Shell struct {
	// Command and Args start an interactive shell.
	Command string
	Args    []string

	// PromptMarkers are the trailing texts that show the shell is ready for
	// input. Any one of them matches.
	PromptMarkers []string

	// LineTerminator is appended to typed commands to press Enter.
	LineTerminator string

	// ExitCommand is typed to end the shell gracefully.
	ExitCommand string

	// SourceFormat loads a script into the running shell; %s is the script path.
	SourceFormat string

	// wrapsCommands is set when programs must be launched through the shell
	// because the platform has no POSIX exec semantics for the terminal.
	wrapsCommands bool
}

const (
	platformUnix    = "unix"
	platformWindows = "windows"
)

var shells = map[string]Shell{
	platformUnix: {
		Command:        "bash",
		PromptMarkers:  []string{"$", "#"}, // root prompts end in #
		LineTerminator: "\r",
		ExitCommand:    "exit\r",
		SourceFormat:   "source %s",
	},
	platformWindows: {
		Command:        "powershell.exe",
		Args:           []string{"-ExecutionPolicy", "Bypass", "-NoProfile"},
		PromptMarkers:  []string{">"},
		LineTerminator: "\r",
		ExitCommand:    "exit\r",
		SourceFormat:   `. "%s"`,
		wrapsCommands:  true,
	},
}

// ShellFor returns the shell strategy for a GOOS value.
func ShellFor(goos string) Shell {
	if goos == platformWindows {
		return shells[platformWindows]
	}

	return shells[platformUnix]
}

// DefaultShell returns the shell strategy for the running platform.
func DefaultShell() Shell {
	return ShellFor(runtime.GOOS)
}

// Wrap returns the command that actually gets spawned for c.
// On Windows the program runs as a powershell sub-invocation.
func (s Shell) Wrap(c Command) Command {
	if !s.wrapsCommands {
		return c
	}

	invocation := fmt.Sprintf("& '%s'", c.Path)
	if len(c.Args) > 0 {
		invocation += " " + strings.Join(c.Args, " ")
	}

	wrapped := c
	wrapped.Path = s.Command
	wrapped.Args = []string{"-Command", invocation}

	return wrapped
}

// Line returns text followed by the Enter keypress.
func (s Shell) Line(text string) string {
	return text + s.LineTerminator
}

// SourceLine returns the typed command that loads script into the shell.
func (s Shell) SourceLine(script string) string {
	return s.Line(fmt.Sprintf(s.SourceFormat, script))
}

// CommandLine returns the typed form of running path with args.
func (s Shell) CommandLine(path string, args ...string) string {
	parts := append([]string{path}, args...)
	if s.wrapsCommands {
		parts[0] = fmt.Sprintf("& '%s'", path)
	}

	return s.Line(strings.Join(parts, " "))
}

// promptReady reports whether tail ends with a prompt marker once
// escape sequences and trailing blanks are removed.
func (s Shell) promptReady(tail string) bool {
	if len(s.PromptMarkers) == 0 {
		return true
	}

	visible := strings.TrimRight(stripANSI(tail), " \t\r\n")

	for _, marker := range s.PromptMarkers {
		if marker != "" && strings.HasSuffix(visible, marker) {
			return true
		}
	}

	return false
}

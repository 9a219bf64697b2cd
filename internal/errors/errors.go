// Package errors provides structured CLI error types for the e2e runner.
//
// CLIError wraps errors with user-facing messages, hints, and exit codes
// to provide consistent, actionable error output across all commands.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Exit codes for CLI errors.
const (
	ExitSuccess   = 0  // Successful execution
	ExitGeneral   = 1  // General error
	ExitConfig    = 4  // Configuration error
	ExitTimeout   = 5  // Case timeout
	ExitExecution = 6  // One or more cases failed
	ExitUsage     = 64 // Command line usage error (BSD convention)
)

// maxHintOutput bounds how much installer output ends up in a hint.
const maxHintOutput = 200

// CLIError represents a user-facing CLI error with actionable guidance.
type CLIError struct {
	// Message is the primary error message shown to the user.
	Message string

	// Hint provides actionable guidance on how to fix the error.
	Hint string

	// Cause is the underlying error, if any.
	Cause error

	// Code is the exit code for the CLI.
	Code int
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// New creates a new CLIError with the given message and exit code.
func New(code int, message string) *CLIError {
	return &CLIError{
		Message: message,
		Code:    code,
	}
}

// Wrap wraps an existing error with a CLIError.
func Wrap(code int, message string, cause error) *CLIError {
	return &CLIError{
		Message: message,
		Cause:   cause,
		Code:    code,
	}
}

// WithHint adds a hint to the error.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// As is a convenience function for errors.As with CLIError.
func As(err error, target **CLIError) bool {
	return errors.As(err, target)
}

// ExitCode returns the exit code carried by err, ExitGeneral for any other
// non-nil error, and ExitSuccess for nil.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var cliErr *CLIError
	if As(err, &cliErr) && cliErr.Code != 0 {
		return cliErr.Code
	}

	return ExitGeneral
}

// --- Common error constructors ---

// BinaryNotFound returns an error when the installer binary is missing.
func BinaryNotFound(path string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Installer binary not found: %s", path),
		Hint:    "Set EIM_FILE_PATH to the eim executable, or run 'eim-e2e doctor'",
		Code:    ExitConfig,
	}
}

// BinaryNotExecutable returns an error when the installer cannot be started.
func BinaryNotExecutable(path string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Installer binary cannot be executed: %s", path),
		Hint:    fmt.Sprintf("Run 'chmod +x %s' and check the filesystem is not mounted noexec", path),
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// ScenarioNotFound returns an error when no scenario file matches name.
func ScenarioNotFound(name, dir string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Scenario file not found: %s", name),
		Hint:    fmt.Sprintf("Expected %s.json, .yaml, .yml or .toml in %s (set JSON_FILENAME or --file)", name, dir),
		Code:    ExitConfig,
	}
}

// ScenarioInvalid returns an error for a scenario file that cannot be used.
func ScenarioInvalid(path string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Invalid scenario file: %s", path),
		Hint:    "Each entry needs an id, a name and a type of arguments, default, custom, prerequisites or non-interactive",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// CaseNotFound returns an error when --only names an unknown case.
func CaseNotFound(id string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Test case not found: %s", id),
		Hint:    "Run 'eim-e2e list' to see the case ids in the scenario file",
		Code:    ExitUsage,
	}
}

// SuiteFailed returns an error when one or more cases failed.
func SuiteFailed(failed, total int) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("%d of %d test cases failed", failed, total),
		Hint:    "Terminal output of each failed case is in the log; rerun with DEBUG=true for input traces",
		Code:    ExitExecution,
	}
}

// CaseTimedOut returns an error when a case exceeds its time budget.
func CaseTimedOut(id string, timeout time.Duration) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Test case %s timed out after %s", id, timeout),
		Hint:    "Installs over slow mirrors can take long; try the dl_com or dl_cn tools mirror",
		Code:    ExitTimeout,
	}
}

// InstallerFailed returns an error for an installer step that printed an
// unexpected result. It detects common failure patterns in the output.
func InstallerFailed(exitCode int, output string) *CLIError {
	msg := "Installer did not reach the expected state"
	hint := ""

	switch {
	case containsAny(output, "missing prerequisites"):
		msg = "Installer reported missing prerequisites"
		hint = "Install git, cmake, ninja and python3 on the test host, or run the prerequisites scenario"
	case containsAny(output, "permission denied", "access is denied"):
		msg = "Installer was denied access to the install location"
		hint = "Check write permissions on the install folder"
	case containsAny(output, "failed to download", "connection", "timed out", "network"):
		msg = "Installer could not download its assets"
		hint = "Check network access or select a different mirror"
	case containsAny(output, "unexpected argument"):
		msg = "Installer rejected its arguments"
		hint = "Check the scenario data against 'eim --help'"
	case exitCode != 0 && strings.TrimSpace(output) == "":
		hint = "Run with DEBUG=true for more details"
	default:
		if trimmed := strings.TrimSpace(output); trimmed != "" {
			if len(trimmed) > maxHintOutput {
				trimmed = "..." + trimmed[len(trimmed)-maxHintOutput:]
			}

			hint = trimmed
		}
	}

	return &CLIError{
		Message: msg,
		Hint:    hint,
		Code:    ExitExecution,
	}
}

// ConfigFailed returns an error for configuration failures.
func ConfigFailed(operation string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Failed to %s", operation),
		Hint:    "Check the config file and .env syntax, or run 'eim-e2e doctor'",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// UnknownConfigKey returns an error for a config key that does not exist.
func UnknownConfigKey(key string, known []string) *CLIError {
	hint := "Run 'eim-e2e config list' to see all keys"
	if len(known) > 0 {
		hint = fmt.Sprintf("Known keys: %s", strings.Join(known, ", "))
	}

	return &CLIError{
		Message: fmt.Sprintf("Unknown config key: %s", key),
		Hint:    hint,
		Code:    ExitUsage,
	}
}

// PlatformUnsupported returns an error when PTYs are unavailable on goos.
func PlatformUnsupported(goos string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Pseudo-terminals are not supported on %s", goos),
		Hint:    "Run the suite on linux or macOS",
		Code:    ExitConfig,
	}
}

// DoctorFailed returns an error when pre-flight checks fail.
func DoctorFailed(failed int) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("%d pre-flight check(s) failed", failed),
		Hint:    "Fix the failing checks above before running the suite",
		Code:    ExitConfig,
	}
}

// containsAny checks if s contains any of the substrings, ignoring case.
func containsAny(s string, substrings ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrings {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}

	return false
}

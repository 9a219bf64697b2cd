// Package doctor runs pre-flight checks before a suite run.
//
// The checks validate:
//   - the installer binary exists and is executable
//   - `eim -V` reports the expected version
//   - a pseudo-terminal shell can be started
//   - the scenario file resolves and parses
//   - the activation script of a previous install is present
package doctor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/espressif/eim-e2e/internal/config"
	"github.com/espressif/eim-e2e/internal/harness"
	"github.com/espressif/eim-e2e/internal/scenario"
)

const (
	defaultVersionTimeout = 10 * time.Second
	ptyEchoTimeout        = 5 * time.Second
)

// Status represents the result of a diagnostic check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical failure.
	StatusFail
)

// String returns the status name used in JSON output.
func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result holds the outcome of a single check.
type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Check is a diagnostic check function.
type Check func(ctx context.Context) Result

// Options configures the default checks.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	// GOOS selects platform paths; "" means runtime.GOOS.
	GOOS string
	// Spawner and Shell override the pseudo-terminal check's harness.
	Spawner harness.Spawner
	Shell   *harness.Shell
	// VersionTimeout bounds `eim -V` (default 10s).
	VersionTimeout time.Duration
}

// Runner executes diagnostic checks.
type Runner struct {
	checks []namedCheck
}

type namedCheck struct {
	name  string
	check Check
}

// New creates a runner with the default checks registered.
func New(opts Options) *Runner {
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}

	if opts.VersionTimeout <= 0 {
		opts.VersionTimeout = defaultVersionTimeout
	}

	r := &Runner{}
	r.AddCheck("Installer binary", func(context.Context) Result {
		return checkBinary(opts.Config.InstallerPath())
	})
	r.AddCheck("Installer version", func(ctx context.Context) Result {
		return checkVersion(ctx, opts.Config.InstallerPath(), opts.Config.ExpectedVersion(), opts.VersionTimeout)
	})
	r.AddCheck("Pseudo-terminal", func(ctx context.Context) Result {
		return checkPTY(ctx, opts)
	})
	r.AddCheck("Scenario file", func(context.Context) Result {
		return checkScenario(opts.Config.SuiteDir(), opts.Config.SuiteFile())
	})
	r.AddCheck("Activation script", func(context.Context) Result {
		return checkActivationScript(opts.Config, opts.GOOS)
	})

	return r
}

// AddCheck registers a diagnostic check.
func (r *Runner) AddCheck(name string, check Check) {
	r.checks = append(r.checks, namedCheck{name: name, check: check})
}

// Run executes all registered checks in order.
func (r *Runner) Run(ctx context.Context) []Result {
	results := make([]Result, 0, len(r.checks))

	for _, nc := range r.checks {
		result := nc.check(ctx)
		result.Name = nc.name
		results = append(results, result)
	}

	return results
}

// Summary returns counts of passed, failed, and warning checks.
func Summary(results []Result) (passed, failed, warnings int) {
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			passed++
		case StatusFail:
			failed++
		case StatusWarn:
			warnings++
		}
	}

	return passed, failed, warnings
}

func checkBinary(path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		return Result{
			Status:  StatusFail,
			Message: "Not found: " + path,
			Detail:  "Set EIM_FILE_PATH to the eim binary under test",
		}
	}

	if info.IsDir() {
		return Result{Status: StatusFail, Message: path + " is a directory"}
	}

	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return Result{
			Status:  StatusFail,
			Message: path + " is not executable",
			Detail:  "Run: chmod +x " + path,
		}
	}

	return Result{Status: StatusPass, Message: path}
}

var versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?`)

func checkVersion(ctx context.Context, path, expected string, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "-V").Output() //nolint:gosec // path is the binary under test
	if err != nil {
		return Result{
			Status:  StatusFail,
			Message: "Could not run " + path + " -V",
			Detail:  err.Error(),
		}
	}

	line := strings.TrimSpace(string(out))
	if idx := strings.IndexByte(line, '\n'); idx > 0 {
		line = strings.TrimSpace(line[:idx])
	}

	status, detail := compareVersion(line, expected)

	return Result{Status: status, Message: line, Detail: detail}
}

// compareVersion matches the reported version line against the expected
// one. expected is either a full line such as "eim 0.1.6" or a semver
// constraint such as ">= 0.1.5".
func compareVersion(reported, expected string) (Status, string) {
	found := versionPattern.FindString(reported)
	if found == "" {
		return StatusWarn, "No version number in output"
	}

	got, err := semver.NewVersion(found)
	if err != nil {
		return StatusWarn, err.Error()
	}

	expected = strings.TrimSpace(expected)
	if expected == "" {
		return StatusPass, ""
	}

	if strings.ContainsAny(expected[:1], "<>=~^!") {
		constraint, err := semver.NewConstraint(expected)
		if err != nil {
			return StatusWarn, fmt.Sprintf("invalid version constraint %q: %v", expected, err)
		}

		if !constraint.Check(got) {
			return StatusFail, fmt.Sprintf("%s does not satisfy %s", got, expected)
		}

		return StatusPass, ""
	}

	wantText := versionPattern.FindString(expected)
	if wantText == "" {
		return StatusWarn, fmt.Sprintf("expected version %q has no version number", expected)
	}

	want, err := semver.NewVersion(wantText)
	if err != nil {
		return StatusWarn, err.Error()
	}

	switch {
	case got.Equal(want):
		return StatusPass, ""
	case got.LessThan(want):
		return StatusFail, fmt.Sprintf("older than expected %s", want)
	default:
		return StatusFail, fmt.Sprintf("newer than expected %s; update EIM_VERSION", want)
	}
}

func checkPTY(ctx context.Context, opts Options) Result {
	h := harness.New(harness.Options{
		Logger:  opts.Logger,
		Spawner: opts.Spawner,
		Shell:   opts.Shell,
		Cols:    opts.Config.Cols(),
		Rows:    opts.Config.Rows(),
	})

	shell := h.Shell()

	if err := h.StartShell(ctx, harness.ShellOptions{}); err != nil {
		_ = h.Stop(ctx, 0)

		return Result{
			Status:  StatusFail,
			Message: "Could not start " + shell.Command,
			Detail:  err.Error(),
		}
	}

	// The quotes keep the typed echo from matching.
	h.SendInput(shell.Line(`echo pty""-ok`))

	if !h.WaitForOutput(ctx, "pty-ok", ptyEchoTimeout) {
		_ = h.Stop(ctx, 0)

		return Result{
			Status:  StatusFail,
			Message: shell.Command + " did not echo through the terminal",
		}
	}

	if err := h.Stop(ctx, 0); err != nil {
		return Result{
			Status:  StatusWarn,
			Message: shell.Command + " started but did not stop cleanly",
			Detail:  err.Error(),
		}
	}

	return Result{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s (%dx%d)", shell.Command, opts.Config.Cols(), opts.Config.Rows()),
	}
}

func checkScenario(dir, name string) Result {
	if name == "" {
		return Result{
			Status:  StatusWarn,
			Message: "No scenario selected",
			Detail:  "Set JSON_FILENAME or pass --file",
		}
	}

	path, err := scenario.Find(dir, name)
	if err != nil {
		return Result{Status: StatusFail, Message: name, Detail: err.Error()}
	}

	entries, err := scenario.Load(path)
	if err != nil {
		return Result{Status: StatusFail, Message: path, Detail: err.Error()}
	}

	return Result{Status: StatusPass, Message: fmt.Sprintf("%s (%d entries)", path, len(entries))}
}

func checkActivationScript(cfg *config.Config, goos string) Result {
	script := cfg.ActivationScript()
	if script == "" {
		folder := scenario.DefaultInstallFolder(cfg.Home(), goos)
		script = scenario.ActivationScript(folder, cfg.IDFVersion(), goos)
	}

	if _, err := os.Stat(script); err != nil {
		return Result{
			Status:  StatusWarn,
			Message: "Not found: " + script,
			Detail:  "Post-install checks need a completed install",
		}
	}

	return Result{Status: StatusPass, Message: script}
}

// RenderResults formats results as aligned status lines through the given
// printers.
func RenderResults(results []Result, printFn, successFn, warningFn, failureFn, mutedFn func(format string, args ...any)) {
	width := 0
	for _, r := range results {
		width = max(width, len(r.Name))
	}

	width += 4

	for _, r := range results {
		switch r.Status {
		case StatusPass:
			successFn("%-*s%s", width, r.Name, r.Message)
		case StatusWarn:
			warningFn("%-*s%s", width, r.Name, r.Message)
		case StatusFail:
			failureFn("%-*s%s", width, r.Name, r.Message)
		default:
			printFn("%s %-*s%s\n", r.Status.Symbol(), width, r.Name, r.Message)
		}

		if r.Detail != "" {
			mutedFn("    %s", r.Detail)
		}
	}
}

// Symbol returns the status symbol for display.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return checkMark
	case StatusWarn:
		return warningMark
	case StatusFail:
		return xMark
	default:
		return "?"
	}
}

const (
	checkMark   = "\u2713" // ✓
	xMark       = "\u2717" // ✗
	warningMark = "\u26A0" // ⚠
)

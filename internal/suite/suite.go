// Package suite turns scenario entries into test cases and runs them
// against the installer through the terminal harness.
//
// A case is an ordered list of steps. Every step gets a fresh harness, so a
// step starts from a clean shell the way a person opening a new terminal
// would. The first failing step ends its case; later steps are reported as
// skipped.
package suite

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/espressif/eim-e2e/internal/config"
	clierrors "github.com/espressif/eim-e2e/internal/errors"
	"github.com/espressif/eim-e2e/internal/harness"
	"github.com/espressif/eim-e2e/internal/scenario"
)

// StepFunc runs one step against the harness in r.
type StepFunc func(ctx context.Context, r *Run) error

// Step is a named unit of a case.
type Step struct {
	Name string
	Run  StepFunc
}

// Case is one planned scenario entry.
type Case struct {
	ID      string
	Name    string
	Type    scenario.Type
	Entry   scenario.Entry
	Timeout time.Duration
	Steps   []Step

	// InstallFolder is removed after the case when cleanup is enabled and
	// the folder did not exist before the case ran.
	InstallFolder string
}

// Timeouts bounds the individual waits of the steps.
type Timeouts struct {
	// Output is the default wait for a line of output.
	Output time.Duration
	// FirstPrompt is the wait for the installer's first question.
	FirstPrompt time.Duration
	// Install is the wait for an installation to finish.
	Install time.Duration
	// Build is the wait for idf.py build.
	Build time.Duration
}

// DefaultTimeouts returns the waits used against a real installer.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Output:      10 * time.Second,
		FirstPrompt: 20 * time.Second,
		Install:     20 * time.Minute,
		Build:       20 * time.Minute,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()

	if t.Output <= 0 {
		t.Output = d.Output
	}

	if t.FirstPrompt <= 0 {
		t.FirstPrompt = d.FirstPrompt
	}

	if t.Install <= 0 {
		t.Install = d.Install
	}

	if t.Build <= 0 {
		t.Build = d.Build
	}

	return t
}

// caseTimeouts are the per-type budgets for a whole case.
var caseTimeouts = map[scenario.Type]time.Duration{
	scenario.TypeArguments:      time.Minute,
	scenario.TypePrerequisites:  10 * time.Minute,
	scenario.TypeDefault:        40 * time.Minute,
	scenario.TypeCustom:         40 * time.Minute,
	scenario.TypeNonInteractive: 40 * time.Minute,
}

// Options configures a Runner.
type Options struct {
	Config *config.Config
	Logger *slog.Logger

	// GOOS selects the platform whose installer behavior is expected.
	// Defaults to runtime.GOOS.
	GOOS string

	// Spawner and Shell are handed to every harness.
	Spawner harness.Spawner
	Shell   *harness.Shell

	Timeouts Timeouts

	// RunID names this run's transcripts. Defaults to a random id.
	RunID string

	// Reporter receives progress events.
	Reporter Reporter
}

// Run is the state a step works with.
type Run struct {
	Harness  *harness.Harness
	Config   *config.Config
	Logger   *slog.Logger
	Case     Case
	GOOS     string
	Timeouts Timeouts
}

// Shell is the harness's platform strategy.
func (r *Run) Shell() harness.Shell {
	return r.Harness.Shell()
}

// Data is the scenario data of the running case.
func (r *Run) Data() scenario.Data {
	return r.Case.Entry.Data
}

// Plan expands scenario entries into ordered cases.
func (rn *Runner) Plan(entries []scenario.Entry) ([]Case, error) {
	cases := make([]Case, 0, len(entries))

	for _, entry := range entries {
		c, err := rn.planCase(entry)
		if err != nil {
			return nil, fmt.Errorf("plan case %s: %w", entry.ID, err)
		}

		cases = append(cases, c)
	}

	return cases, nil
}

func (rn *Runner) planCase(entry scenario.Entry) (Case, error) {
	c := Case{
		ID:      entry.ID,
		Name:    entry.Title(),
		Type:    entry.Type,
		Entry:   entry,
		Timeout: entry.Data.Timeout,
	}

	if c.Timeout <= 0 {
		c.Timeout = caseTimeouts[entry.Type]
	}

	home := rn.cfg.Home()

	switch entry.Type {
	case scenario.TypeArguments:
		c.Steps = []Step{
			{Name: "show version", Run: stepVersion},
			{Name: "show help", Run: stepHelp},
			{Name: "reject invalid argument", Run: stepInvalidArgument},
		}
	case scenario.TypeDefault:
		c.InstallFolder = scenario.DefaultInstallFolder(home, rn.goos)
		c.Steps = []Step{
			{Name: "install with wizard defaults", Run: stepWizard},
			{Name: "create project from template", Run: stepPostInstall},
		}
	case scenario.TypeCustom:
		if _, err := scenario.InstallArgs(entry.Data, home, rn.goos); err != nil {
			return Case{}, err
		}

		c.InstallFolder = scenario.InstallFolder(entry.Data, home, rn.goos)
		c.Steps = []Step{
			{Name: "install with custom settings", Run: stepCustom},
			{Name: "create project from template", Run: stepPostInstall},
		}
	case scenario.TypeNonInteractive:
		if _, err := scenario.InstallArgs(entry.Data, home, rn.goos); err != nil {
			return Case{}, err
		}

		c.InstallFolder = scenario.InstallFolder(entry.Data, home, rn.goos)
		c.Steps = []Step{
			{Name: "install without questions", Run: stepNonInteractive},
			{Name: "create project from template", Run: stepPostInstall},
		}
	case scenario.TypePrerequisites:
		c.Steps = []Step{{Name: "report missing prerequisites", Run: stepPrerequisites}}
	default:
		return Case{}, fmt.Errorf("unknown type %q", entry.Type)
	}

	if entry.Data.Build && c.InstallFolder != "" {
		c.Steps = append(c.Steps, Step{Name: "build project", Run: stepBuild})
	}

	return c, nil
}

// Select keeps the cases whose ids are listed, in plan order. An empty
// list keeps every case.
func Select(cases []Case, ids []string) ([]Case, error) {
	if len(ids) == 0 {
		return cases, nil
	}

	known := make(map[string]bool, len(cases))
	for _, c := range cases {
		known[c.ID] = true
	}

	wanted := make([]string, 0, len(ids))

	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}

		if !known[id] {
			return nil, clierrors.CaseNotFound(id)
		}

		wanted = append(wanted, id)
	}

	selected := make([]Case, 0, len(wanted))

	for _, c := range cases {
		if slices.Contains(wanted, c.ID) {
			selected = append(selected, c)
		}
	}

	return selected, nil
}

func goosOr(goos string) string {
	if goos == "" {
		return runtime.GOOS
	}

	return goos
}

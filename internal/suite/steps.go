package suite

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	clierrors "github.com/espressif/eim-e2e/internal/errors"
	"github.com/espressif/eim-e2e/internal/harness"
	"github.com/espressif/eim-e2e/internal/scenario"
)

// Text the installer prints at each point of an installation.
const (
	textTargetPrompt    = "Please select all of the target platforms"
	textVersionPrompt   = "Please select the desired ESP-IDF version"
	textIDFMirrorPrompt = "Select the source from which to download esp-idf"
	textToolsPrompt     = "Select a source from which to download tools"
	textLocationPrompt  = "Please select the ESP-IDF installation location"
	textSaveConfig      = "Do you want to save the installer configuration"
	textInstalled       = "Successfully installed IDF"
	textReady           = "Now you can start using IDF tools"
	textDownloading     = "Downloading tools"
	textSubmodules      = "Finished fetching submodules"
	textMissingPrereqs  = "Error: Please install the missing prerequisites"
	textOfferPrereqs    = "Do you want to install prerequisites?"
	textDeclinedPrereqs = "Please install the missing prerequisites and try again"
	textBuildComplete   = "Project build complete"
	githubURL           = "https://github.com"
)

// ExpectationError reports text the installer should have printed.
type ExpectationError struct {
	// Message says what the installer failed to do.
	Message string
	// Want is the text that was expected, or rejected when Absent is set.
	Want   string
	Absent bool
	// Cause carries the installer failure diagnosis.
	Cause error
}

func (e *ExpectationError) Error() string {
	verb := "missing"
	if e.Absent {
		verb = "unexpected"
	}

	msg := fmt.Sprintf("%s (%s %q)", e.Message, verb, e.Want)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}

	return msg
}

// Unwrap returns the diagnosis.
func (e *ExpectationError) Unwrap() error {
	return e.Cause
}

// expect waits for want in the output. A miss is an ExpectationError unless
// the harness or the context failed first.
func (r *Run) expect(ctx context.Context, want string, timeout time.Duration, message string) error {
	if r.Harness.WaitForOutput(ctx, want, timeout) {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := r.Harness.Err(); err != nil {
		return fmt.Errorf("%s: %w", message, err)
	}

	code, _ := r.Harness.ExitCode()

	return &ExpectationError{
		Message: message,
		Want:    want,
		Cause:   clierrors.InstallerFailed(code, r.Harness.PlainOutput()),
	}
}

// expectNot fails when the output already contains unwanted.
func (r *Run) expectNot(unwanted, message string) error {
	if !strings.Contains(r.Harness.PlainOutput(), unwanted) {
		return nil
	}

	return &ExpectationError{Message: message, Want: unwanted, Absent: true}
}

// startShell opens the platform shell the installer is typed into.
func (r *Run) startShell(ctx context.Context) error {
	if err := r.Harness.StartShell(ctx, harness.ShellOptions{}); err != nil {
		return fmt.Errorf("start terminal: %w", err)
	}

	return nil
}

// typeInstaller types the installer command line into the shell.
func (r *Run) typeInstaller(args ...string) {
	line := r.Shell().CommandLine(r.Config.InstallerPath(), args...)

	r.Logger.Debug("running installer", slog.String("event.type", "suite.installer.run"), slog.Any("installer.args", args))
	r.Harness.SendInput(line)
}

// answer clears the output so the next wait only sees the installer's
// reaction, then types text.
func (r *Run) answer(text string) {
	r.Harness.ResetOutput()
	r.Harness.SendInput(text)
}

func (r *Run) home() string {
	return r.Config.Home()
}

func stepVersion(ctx context.Context, r *Run) error {
	if err := r.startShell(ctx); err != nil {
		return err
	}

	r.typeInstaller("-V")

	return r.expect(ctx, r.Config.ExpectedVersion(), r.Timeouts.Output, "installer shows an incorrect version number")
}

func stepHelp(ctx context.Context, r *Run) error {
	if err := r.startShell(ctx); err != nil {
		return err
	}

	r.typeInstaller("--help")

	if err := r.expect(ctx, "Options:", r.Timeouts.Output, "installer failed to print help options"); err != nil {
		return err
	}

	return r.expect(ctx, "Usage:", r.Timeouts.Output, "installer failed to print usage help")
}

func stepInvalidArgument(ctx context.Context, r *Run) error {
	if err := r.startShell(ctx); err != nil {
		return err
	}

	r.typeInstaller("--KK")

	return r.expect(ctx, "unexpected argument", r.Timeouts.Output, "installer accepted a non-existing argument")
}

// wizardPrompt is one question of the install wizard and a default answer
// it must offer.
type wizardPrompt struct {
	question string
	offers   string
	failure  string
}

func (r *Run) wizardPrompts() []wizardPrompt {
	folder := scenario.DefaultInstallFolder(r.home(), r.GOOS)

	return []wizardPrompt{
		{textTargetPrompt, "all", "installer failed to offer installation for all targets"},
		{textVersionPrompt, "master", "installer failed to offer the master branch"},
		{textIDFMirrorPrompt, githubURL, "installer failed to offer github as an ESP-IDF mirror"},
		{textToolsPrompt, githubURL, "installer failed to offer github as a tools mirror"},
		{textLocationPrompt, "(" + folder + ")", "installer failed to offer the default installation path"},
	}
}

func stepWizard(ctx context.Context, r *Run) error {
	if err := r.startShell(ctx); err != nil {
		return err
	}

	r.typeInstaller()

	for i, prompt := range r.wizardPrompts() {
		timeout := r.Timeouts.Output
		if i == 0 {
			timeout = r.Timeouts.FirstPrompt
		}

		if i > 0 {
			r.answer("\r")
		}

		if err := r.expect(ctx, prompt.question, timeout, "installer did not ask: "+prompt.question); err != nil {
			return err
		}

		if err := r.expect(ctx, prompt.offers, r.Timeouts.Output, prompt.failure); err != nil {
			return err
		}

		r.Logger.Info("wizard prompt passed", slog.String("event.type", "suite.wizard.prompt"), slog.String("wizard.prompt", prompt.question))
	}

	r.answer("\r")

	if err := r.expect(ctx, textSaveConfig, r.Timeouts.Install, "installation with wizard defaults did not complete"); err != nil {
		return err
	}

	if err := r.expectNot("error", "error message during installation"); err != nil {
		return err
	}

	if err := r.expect(ctx, textDownloading, r.Timeouts.Output, "installer did not download the tools"); err != nil {
		return err
	}

	r.answer("\r")

	return r.expect(ctx, textInstalled, r.Timeouts.Output, "installation did not report success")
}

func stepCustom(ctx context.Context, r *Run) error {
	args, err := scenario.InstallArgs(r.Data(), r.home(), r.GOOS)
	if err != nil {
		return err
	}

	if err := r.startShell(ctx); err != nil {
		return err
	}

	r.typeInstaller(args...)

	if err := r.expect(ctx, textSaveConfig, r.Timeouts.Install, "installation with custom settings did not complete"); err != nil {
		return err
	}

	if err := r.expectNot("error", "error message during installation"); err != nil {
		return err
	}

	// The save prompt reads a single key.
	r.answer("n")

	if err := r.expect(ctx, textInstalled, r.Timeouts.Output, "installation did not report success"); err != nil {
		return err
	}

	return r.expect(ctx, textReady, r.Timeouts.Output, "installation did not report the tools ready")
}

func stepNonInteractive(ctx context.Context, r *Run) error {
	data := r.Data()
	data.NonInteractive = "true"

	args, err := scenario.InstallArgs(data, r.home(), r.GOOS)
	if err != nil {
		return err
	}

	if err := r.startShell(ctx); err != nil {
		return err
	}

	r.typeInstaller(args...)

	if err := r.expect(ctx, textInstalled, r.Timeouts.Install, "non-interactive installation did not report success"); err != nil {
		return err
	}

	if err := r.expect(ctx, textReady, r.Timeouts.Output, "installation did not report the tools ready"); err != nil {
		return err
	}

	if !data.RecursiveEnabled() {
		return nil
	}

	if !r.Harness.Contains(textSubmodules) {
		return &ExpectationError{Message: "installer did not download submodules", Want: textSubmodules}
	}

	return nil
}

func stepPrerequisites(ctx context.Context, r *Run) error {
	if err := r.startShell(ctx); err != nil {
		return err
	}

	r.typeInstaller()

	if r.GOOS != "windows" {
		return r.expect(ctx, textMissingPrereqs, r.Timeouts.FirstPrompt, "installer did not report missing prerequisites")
	}

	if err := r.expect(ctx, textOfferPrereqs, r.Timeouts.Output, "installer did not offer to install the missing prerequisites"); err != nil {
		return err
	}

	r.answer("n")

	return r.expect(ctx, textDeclinedPrereqs, r.Timeouts.Output, "installer did not stop after prerequisites were declined")
}

// activatedShell starts a shell with the case's ESP-IDF environment loaded.
func (r *Run) activatedShell(ctx context.Context) error {
	script := r.Config.ActivationScript()
	if script == "" {
		version := r.Data().FirstVersion(r.Config.IDFVersion())
		script = scenario.ActivationScript(r.Case.InstallFolder, version, r.GOOS)
	}

	if err := r.Harness.StartActivatedShell(ctx, script, harness.ShellOptions{}); err != nil {
		return fmt.Errorf("start activated terminal: %w", err)
	}

	return nil
}

// idfPath is the ESP-IDF checkout as the shell should see it.
func (r *Run) idfPath() string {
	if path := r.Config.IDFPath(); path != "" {
		return path
	}

	if r.GOOS == "windows" {
		return "$env:IDF_PATH"
	}

	return `"$IDF_PATH"`
}

func (r *Run) projectDir() string {
	sep := "/"
	if r.GOOS == "windows" {
		sep = `\`
	}

	return r.Case.InstallFolder + sep + "project"
}

func stepPostInstall(ctx context.Context, r *Run) error {
	if err := r.activatedShell(ctx); err != nil {
		return err
	}

	shell := r.Shell()
	project := r.projectDir()
	template := r.idfPath() + "/examples/get-started/hello_world"

	mkdir := "mkdir -p " + project
	if r.GOOS == "windows" {
		mkdir = "New-Item -ItemType Directory -Force -Path " + project
		template = r.idfPath() + `\examples\get-started\hello_world`
	}

	for _, line := range []string{
		mkdir,
		"cd " + project,
		"cp -r " + template + " .",
		"cd hello_world",
		"ls",
	} {
		r.Harness.SendInput(shell.Line(line))
	}

	if err := r.expect(ctx, "pytest_hello_world.py", r.Timeouts.Output, "project template was not copied"); err != nil {
		return err
	}

	for _, name := range []string{"sdkconfig.ci", "main"} {
		if err := r.expect(ctx, name, r.Timeouts.Output, "project template is incomplete"); err != nil {
			return err
		}
	}

	if r.Harness.Exited() {
		return fmt.Errorf("activated terminal exited: %w", harness.ErrNotRunning)
	}

	return nil
}

func stepBuild(ctx context.Context, r *Run) error {
	if err := r.activatedShell(ctx); err != nil {
		return err
	}

	shell := r.Shell()
	target := r.Data().FirstTarget()

	r.Harness.SendInput(shell.Line("cd " + r.projectDir() + sepFor(r.GOOS) + "hello_world"))
	r.Harness.SendInput(shell.Line("idf.py set-target " + target))
	r.Harness.SendInput(shell.Line("idf.py build"))

	return r.expect(ctx, textBuildComplete, r.Timeouts.Build, "project did not build for "+target)
}

func sepFor(goos string) string {
	if goos == "windows" {
		return `\`
	}

	return "/"
}

// Package scenario reads the scenario files that drive a suite run and turns
// scenario data into installer arguments and install locations.
package scenario

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

// Type selects which steps a scenario entry runs.
type Type string

// Scenario types.
const (
	TypeArguments      Type = "arguments"
	TypeDefault        Type = "default"
	TypeCustom         Type = "custom"
	TypePrerequisites  Type = "prerequisites"
	TypeNonInteractive Type = "non-interactive"
)

// Types lists every scenario type in documentation order.
func Types() []Type {
	return []Type{TypeArguments, TypeDefault, TypeCustom, TypePrerequisites, TypeNonInteractive}
}

func (t Type) valid() bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}

	return false
}

// Label is a human-readable description used when an entry has no name.
func (t Type) Label() string {
	switch t {
	case TypeArguments:
		return "EIM command line arguments"
	case TypeDefault:
		return "Installation manager default installation"
	case TypeCustom:
		return "Installation using custom settings"
	case TypePrerequisites:
		return "Prerequisites check"
	case TypeNonInteractive:
		return "Non-interactive installation"
	default:
		return string(t)
	}
}

// Entry is one scenario of a scenario file.
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type Type   `json:"type"`
	Data Data   `json:"data"`
}

// Title is the name shown in listings and logs.
func (e Entry) Title() string {
	if e.Name != "" {
		return e.Name
	}

	return e.Type.Label()
}

// Data carries the installer settings of an entry. Empty strings mean the
// installer's own default applies.
type Data struct {
	InstallFolder  string `json:"installFolder,omitempty"`
	TargetList     string `json:"targetList,omitempty"`
	IDFList        string `json:"idfList,omitempty"`
	ToolsMirror    string `json:"toolsMirror,omitempty"`
	IDFMirror      string `json:"idfMirror,omitempty"`
	Recursive      string `json:"recursive,omitempty"`
	NonInteractive string `json:"nonInteractive,omitempty"`

	// Build also runs idf.py set-target and build after install.
	Build bool `json:"build,omitempty"`

	// Timeout overrides the per-case time budget.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// IDF mirror keys to URLs.
var IDFMirrors = map[string]string{
	"github":  "https://github.com",
	"jihulab": "https://jihulab.com/esp-mirror",
}

// Tools mirror keys to URLs.
var ToolsMirrors = map[string]string{
	"github": "https://github.com",
	"dl_com": "https://dl.espressif.com/github_assets",
	"dl_cn":  "https://dl.espressif.cn/github_assets",
}

// DefaultTarget is the chip used when an entry names none.
const DefaultTarget = "esp32"

func resolveMirror(table map[string]string, kind, key string) (string, error) {
	if url, ok := table[key]; ok {
		return url, nil
	}

	if strings.HasPrefix(key, "https://") || strings.HasPrefix(key, "http://") {
		return key, nil
	}

	return "", fmt.Errorf("unknown %s mirror %q", kind, key)
}

// splitList splits a "|"-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string

	for _, part := range strings.Split(s, "|") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

// Targets returns the entry's target chips.
func (d Data) Targets() []string {
	return splitList(d.TargetList)
}

// Versions returns the entry's ESP-IDF versions.
func (d Data) Versions() []string {
	return splitList(d.IDFList)
}

// FirstTarget is the chip post-install checks build for.
func (d Data) FirstTarget() string {
	if targets := d.Targets(); len(targets) > 0 {
		return targets[0]
	}

	return DefaultTarget
}

// FirstVersion is the version whose activation script is used.
func (d Data) FirstVersion(fallback string) string {
	if versions := d.Versions(); len(versions) > 0 {
		return versions[0]
	}

	return fallback
}

// RecursiveEnabled reports whether submodules are fetched.
func (d Data) RecursiveEnabled() bool {
	enabled, _ := strconv.ParseBool(d.Recursive)
	return enabled
}

// InstallArgs builds the installer argument list for d. Flags are emitted in
// a fixed order and only for fields that are set.
func InstallArgs(d Data, home, goos string) ([]string, error) {
	var args []string

	if d.InstallFolder != "" {
		args = append(args, "-p", InstallFolder(d, home, goos))
	}

	if targets := d.Targets(); len(targets) > 0 {
		args = append(args, "-t", strings.Join(targets, ","))
	}

	if versions := d.Versions(); len(versions) > 0 {
		args = append(args, "-i", strings.Join(versions, ","))
	}

	if d.ToolsMirror != "" {
		url, err := resolveMirror(ToolsMirrors, "tools", d.ToolsMirror)
		if err != nil {
			return nil, err
		}

		args = append(args, "-m", url)
	}

	if d.IDFMirror != "" {
		url, err := resolveMirror(IDFMirrors, "IDF", d.IDFMirror)
		if err != nil {
			return nil, err
		}

		args = append(args, "--idf-mirror", url)
	}

	if d.Recursive != "" {
		args = append(args, "-r", d.Recursive)
	}

	if d.NonInteractive != "" {
		args = append(args, "-n", d.NonInteractive)
	}

	return args, nil
}

// DefaultInstallFolder is where the installer puts ESP-IDF when not told otherwise.
func DefaultInstallFolder(home, goos string) string {
	if goos == "windows" {
		return `C:\esp`
	}

	return joinFor(goos, home, ".espressif")
}

// InstallFolder resolves the entry's install folder. Relative folders are
// taken from the home directory.
func InstallFolder(d Data, home, goos string) string {
	folder := d.InstallFolder
	if folder == "" {
		return DefaultInstallFolder(home, goos)
	}

	if isAbs(folder, goos) {
		return folder
	}

	return joinFor(goos, home, folder)
}

// ActivationScript is the script that loads the environment of an installed
// ESP-IDF version into a shell.
func ActivationScript(folder, version, goos string) string {
	if goos == "windows" {
		return joinFor(goos, folder, version, "Microsoft.PowerShell_profile.ps1")
	}

	return joinFor(goos, folder, "activate_idf_"+version+".sh")
}

func joinFor(goos string, elem ...string) string {
	if goos != "windows" {
		return path.Join(elem...)
	}

	for i, e := range elem {
		elem[i] = strings.ReplaceAll(e, `\`, "/")
	}

	return strings.ReplaceAll(path.Join(elem...), "/", `\`)
}

func isAbs(p, goos string) bool {
	if goos != "windows" {
		return strings.HasPrefix(p, "/")
	}

	return len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/')
}

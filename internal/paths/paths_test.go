package paths

import (
	"path/filepath"
	"testing"
)

func TestConfigRoot_UsesXDGConfigHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	got, err := ConfigRoot()
	if err != nil {
		t.Fatalf("ConfigRoot() error = %v", err)
	}

	want := filepath.Join(tmp, "eim-e2e")
	if got != want {
		t.Fatalf("ConfigRoot() = %q, want %q", got, want)
	}
}

func TestConfigRoot_IgnoresRelativeXDG(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", "relative/dir")
	t.Setenv("HOME", home)

	got, err := ConfigRoot()
	if err != nil {
		t.Fatalf("ConfigRoot() error = %v", err)
	}

	if filepath.Base(got) != "eim-e2e" || !filepath.IsAbs(got) {
		t.Fatalf("ConfigRoot() = %q, want absolute path ending in eim-e2e", got)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := t.TempDir()
	state := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfg)
	t.Setenv("XDG_STATE_HOME", state)

	tests := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{name: "config file", fn: ConfigFile, want: filepath.Join(cfg, "eim-e2e", "config.yaml")},
		{name: "logs dir", fn: LogsDir, want: filepath.Join(state, "eim-e2e", "logs")},
		{name: "log file", fn: DefaultLogFile, want: filepath.Join(state, "eim-e2e", "logs", "eim-e2e.log")},
		{name: "transcripts", fn: TranscriptDir, want: filepath.Join(state, "eim-e2e", "transcripts")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn()
			if err != nil {
				t.Fatalf("error = %v", err)
			}

			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultInstallerPath(t *testing.T) {
	home := filepath.Join("home", "dev")

	if got, want := DefaultInstallerPath("linux", home), filepath.Join(home, "eim-cli", "eim"); got != want {
		t.Fatalf("linux: got %q, want %q", got, want)
	}

	if got, want := DefaultInstallerPath("windows", home), filepath.Join(home, "eim-cli", "eim.exe"); got != want {
		t.Fatalf("windows: got %q, want %q", got, want)
	}
}

func TestExpandHome(t *testing.T) {
	home := filepath.Join("home", "dev")

	tests := map[string]string{
		"~":                home,
		"~/eim-cli/eim":    filepath.Join(home, "eim-cli", "eim"),
		"/opt/eim":         "/opt/eim",
		"relative/~/thing": "relative/~/thing",
	}

	for in, want := range tests {
		if got := ExpandHome(in, home); got != want {
			t.Errorf("ExpandHome(%q) = %q, want %q", in, got, want)
		}
	}
}

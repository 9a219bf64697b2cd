package testutil

import (
	"path/filepath"
	"testing"

	"github.com/espressif/eim-e2e/internal/config"
)

// runnerEnv lists every variable config.Load reads besides the EIM_E2E_* ones.
var runnerEnv = []string{
	"EIM_FILE_PATH", "EIM_VERSION", "IDF_VERSION", "IDF_SCRIPT", "IDF_PATH",
	"JSON_FILENAME", "DEBUG", "LOG_TO_FILE",
	"EIM_E2E_SUITE_DIR", "EIM_E2E_SUITE_CLEANUP", "EIM_E2E_TRANSCRIPT_DIR",
	"EIM_E2E_HARNESS_COLS", "EIM_E2E_HARNESS_ROWS",
	"EIM_E2E_HARNESS_START_GRACE", "EIM_E2E_HARNESS_STOP_TIMEOUT",
}

// Config loads configuration isolated from the caller's environment, with
// home as the home directory. env sets variables for the test; all other
// runner variables read as unset.
func Config(t testing.TB, home string, env map[string]string) *config.Config {
	t.Helper()

	for _, key := range runnerEnv {
		t.Setenv(key, "")
	}

	for key, value := range env {
		t.Setenv(key, value)
	}

	dir := t.TempDir()

	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: filepath.Join(dir, "config.yaml"),
		DotEnv:     filepath.Join(dir, ".env"),
		Home:       home,
	})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	return cfg
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// unsetEnvForTest unsets an environment variable and restores it afterward.
func unsetEnvForTest(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func clearEnv(t *testing.T) {
	t.Helper()

	for _, env := range envBindings {
		unsetEnvForTest(t, env)
	}

	unsetEnvForTest(t, "EIM_E2E_SUITE_DIR")
	unsetEnvForTest(t, "EIM_E2E_HARNESS_COLS")
}

func loadForTest(t *testing.T, configYAML, dotEnv string) *Config {
	t.Helper()

	dir := t.TempDir()
	opts := LoadOptions{
		ConfigFile: filepath.Join(dir, "config.yaml"),
		DotEnv:     filepath.Join(dir, ".env"),
		Home:       filepath.Join(dir, "home"),
	}

	if configYAML != "" {
		if err := os.WriteFile(opts.ConfigFile, []byte(configYAML), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}

	if dotEnv != "" {
		if err := os.WriteFile(opts.DotEnv, []byte(dotEnv), 0o600); err != nil {
			t.Fatalf("write .env: %v", err)
		}
	}

	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := loadForTest(t, "", "")

	tests := []struct {
		name string
		got  any
		want any
	}{
		{name: "installer path", got: filepath.Base(filepath.Dir(cfg.InstallerPath())), want: "eim-cli"},
		{name: "expected version", got: cfg.ExpectedVersion(), want: DefaultInstallerVersion},
		{name: "idf version", got: cfg.IDFVersion(), want: DefaultIDFVersion},
		{name: "suite dir", got: cfg.SuiteDir(), want: DefaultSuiteDir},
		{name: "cols", got: cfg.Cols(), want: 80},
		{name: "rows", got: cfg.Rows(), want: 30},
		{name: "start grace", got: cfg.StartGrace(), want: time.Second},
		{name: "stop timeout", got: cfg.StopTimeout(), want: 3 * time.Second},
		{name: "cleanup", got: cfg.Cleanup(), want: false},
		{name: "debug", got: cfg.Debug(), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}

	if cfg.FileUsed() != "" {
		t.Errorf("FileUsed() = %q, want empty when no config file exists", cfg.FileUsed())
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)

	t.Setenv("EIM_FILE_PATH", "/opt/eim/eim")
	t.Setenv("EIM_VERSION", "eim 0.2.0")
	t.Setenv("IDF_VERSION", "v5.3.2")
	t.Setenv("JSON_FILENAME", "nightly")
	t.Setenv("DEBUG", "true")
	t.Setenv("LOG_TO_FILE", "true")
	t.Setenv("EIM_E2E_HARNESS_COLS", "120")

	cfg := loadForTest(t, "", "")

	if got := cfg.InstallerPath(); got != "/opt/eim/eim" {
		t.Errorf("InstallerPath() = %q", got)
	}

	if got := cfg.ExpectedVersion(); got != "eim 0.2.0" {
		t.Errorf("ExpectedVersion() = %q", got)
	}

	if got := cfg.IDFVersion(); got != "v5.3.2" {
		t.Errorf("IDFVersion() = %q", got)
	}

	if got := cfg.SuiteFile(); got != "nightly" {
		t.Errorf("SuiteFile() = %q", got)
	}

	if !cfg.Debug() {
		t.Error("Debug() = false, want true")
	}

	if got := cfg.LogToFile(); got != "true" {
		t.Errorf("LogToFile() = %q", got)
	}

	if got := cfg.Cols(); got != 120 {
		t.Errorf("Cols() = %d, want 120", got)
	}
}

func TestIDFVersion_NullMeansUnset(t *testing.T) {
	clearEnv(t)
	t.Setenv("IDF_VERSION", "null")

	if got := loadForTest(t, "", "").IDFVersion(); got != DefaultIDFVersion {
		t.Fatalf("IDFVersion() = %q, want %q", got, DefaultIDFVersion)
	}
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)

	configYAML := "eim:\n  version: from-file\n  path: ~/from-file/eim\nidf:\n  version: v5.1\n"
	dotEnv := "EIM_VERSION=from-dotenv\nUNRELATED=1\n"

	t.Setenv("IDF_VERSION", "v5.2")

	cfg := loadForTest(t, configYAML, dotEnv)

	if got := cfg.ExpectedVersion(); got != "from-dotenv" {
		t.Errorf(".env should override file: got %q", got)
	}

	if got := cfg.IDFVersion(); got != "v5.2" {
		t.Errorf("env should override file: got %q", got)
	}

	want := filepath.Join(cfg.Home(), "from-file", "eim")
	if got := cfg.InstallerPath(); got != want {
		t.Errorf("InstallerPath() = %q, want %q", got, want)
	}

	if cfg.FileUsed() == "" {
		t.Error("FileUsed() empty, want config file path")
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("eim: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(LoadOptions{ConfigFile: path, DotEnv: filepath.Join(t.TempDir(), ".env")}); err == nil {
		t.Fatal("Load() error = nil, want parse error")
	}
}

func TestConfig_SetPersistsFileLayerOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("EIM_VERSION", "from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg, err := Load(LoadOptions{ConfigFile: path, DotEnv: filepath.Join(dir, ".env"), Home: dir})
	if err != nil {
		t.Fatal(err)
	}

	if err := cfg.Set("suite.cleanup", true); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if !cfg.Cleanup() {
		t.Error("Cleanup() = false after Set")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	content := string(data)
	if !strings.Contains(content, "cleanup: true") {
		t.Errorf("config file = %q, want cleanup entry", content)
	}

	if strings.Contains(content, "from-env") {
		t.Errorf("config file leaked environment value: %q", content)
	}
}

func TestConfig_Keys(t *testing.T) {
	clearEnv(t)

	cfg := loadForTest(t, "", "")

	for _, key := range []string{"eim.path", "idf.version", "harness.stop_timeout", "suite.dir"} {
		if !cfg.IsKnown(key) {
			t.Errorf("IsKnown(%q) = false", key)
		}
	}

	if cfg.IsKnown("api.url") {
		t.Error("IsKnown(api.url) = true, want false")
	}
}

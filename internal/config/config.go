// Package config resolves runner settings using Viper.
//
// Configuration sources (in priority order):
//  1. Environment variables (EIM_FILE_PATH, IDF_VERSION, ... and EIM_E2E_*)
//  2. A .env file in the working directory
//  3. Config file (~/.config/eim-e2e/config.yaml)
//  4. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/espressif/eim-e2e/internal/paths"
)

const (
	// DefaultInstallerVersion is the version line `eim -V` is expected to print.
	DefaultInstallerVersion = "eim 0.1.6"
	// DefaultIDFVersion is installed when IDF_VERSION is unset or "null".
	DefaultIDFVersion = "v5.4"
	// DefaultSuiteDir holds scenario files.
	DefaultSuiteDir = "suites"

	envPrefix = "EIM_E2E"
)

// envBindings maps config keys to the environment variables the CI
// pipelines already export.
var envBindings = map[string]string{
	"eim.path":    "EIM_FILE_PATH",
	"eim.version": "EIM_VERSION",
	"idf.version": "IDF_VERSION",
	"idf.script":  "IDF_SCRIPT",
	"idf.path":    "IDF_PATH",
	"suite.file":  "JSON_FILENAME",
	"log.debug":   "DEBUG",
	"log.to_file": "LOG_TO_FILE",
}

// Config holds the resolved runner configuration.
type Config struct {
	v        *viper.Viper
	home     string
	fileUsed string
	// target is where Set writes when no config file was read.
	target   string
}

// LoadOptions overrides where configuration is read from.
type LoadOptions struct {
	// ConfigFile replaces the default config file path.
	ConfigFile string
	// DotEnv is the .env file to merge; "" selects ./.env. Missing files are ignored.
	DotEnv string
	// Home replaces the user's home directory.
	Home string
}

// Load reads configuration from all sources.
func Load(opts LoadOptions) (*Config, error) {
	home := opts.Home
	if home == "" {
		home = paths.Home()
	}

	v := viper.New()
	setDefaults(v, home)

	configFile := opts.ConfigFile
	if configFile == "" {
		if defaultFile, err := paths.ConfigFile(); err == nil {
			configFile = defaultFile
		}
	}

	c := &Config{v: v, home: home, target: configFile}

	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config file %s: %w", configFile, err)
			}
		} else {
			c.fileUsed = configFile
		}
	}

	dotEnv := opts.DotEnv
	if dotEnv == "" {
		dotEnv = ".env"
	}

	if err := mergeDotEnv(v, dotEnv); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envBindings {
		if err := v.BindEnv(key, env, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	return c, nil
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("eim.path", paths.DefaultInstallerPath(runtime.GOOS, home))
	v.SetDefault("eim.version", DefaultInstallerVersion)
	v.SetDefault("idf.version", DefaultIDFVersion)
	v.SetDefault("idf.script", "")
	v.SetDefault("idf.path", "")
	v.SetDefault("suite.file", "")
	v.SetDefault("suite.dir", DefaultSuiteDir)
	v.SetDefault("suite.cleanup", false)
	v.SetDefault("log.debug", false)
	v.SetDefault("log.to_file", "")
	v.SetDefault("harness.cols", 80)
	v.SetDefault("harness.rows", 30)
	v.SetDefault("harness.start_grace", time.Second)
	v.SetDefault("harness.stop_timeout", 3*time.Second)
	v.SetDefault("transcript.dir", "")
}

// mergeDotEnv folds the known variables of a .env file into the config layer,
// so they win over the config file but lose to the real environment.
func mergeDotEnv(v *viper.Viper, path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("read .env file %s: %w", path, err)
	}

	envMap, err := godotenv.Unmarshal(string(data))
	if err != nil {
		return fmt.Errorf("parse .env file %s: %w", path, err)
	}

	merged := map[string]any{}

	for key, env := range envBindings {
		value, ok := envMap[env]
		if !ok {
			continue
		}

		section, leaf, _ := strings.Cut(key, ".")

		inner, _ := merged[section].(map[string]any)
		if inner == nil {
			inner = map[string]any{}
			merged[section] = inner
		}

		inner[leaf] = value
	}

	if len(merged) == 0 {
		return nil
	}

	if err := v.MergeConfigMap(merged); err != nil {
		return fmt.Errorf("merge .env file %s: %w", path, err)
	}

	return nil
}

// Get returns a configuration value.
func (c *Config) Get(key string) any {
	return c.v.Get(key)
}

// GetString returns a configuration value as string.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// IsKnown reports whether key is a recognised setting.
func (c *Config) IsKnown(key string) bool {
	for _, known := range c.Keys() {
		if known == key {
			return true
		}
	}

	return false
}

// Keys lists every recognised setting in sorted order.
func (c *Config) Keys() []string {
	keys := c.v.AllKeys()
	sort.Strings(keys)

	return keys
}

// All returns all configuration as a map.
func (c *Config) All() map[string]any {
	return c.v.AllSettings()
}

// FileUsed returns the config file that was read, if any.
func (c *Config) FileUsed() string {
	return c.fileUsed
}

// Set persists key=value to the config file. Only the file layer is
// rewritten; values from the environment are not copied into it.
func (c *Config) Set(key string, value any) error {
	target := c.fileUsed
	if target == "" {
		target = c.target
	}

	if target == "" {
		defaultFile, err := paths.ConfigFile()
		if err != nil {
			return fmt.Errorf("resolve config file: %w", err)
		}

		target = defaultFile
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	file := viper.New()
	file.SetConfigFile(target)

	if err := file.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config file %s: %w", target, err)
		}
	}

	file.Set(key, value)

	if err := file.WriteConfigAs(target); err != nil {
		return fmt.Errorf("write config file %s: %w", target, err)
	}

	c.v.Set(key, value)
	c.fileUsed = target

	return nil
}

// InstallerPath is the eim binary under test, with "~" expanded.
func (c *Config) InstallerPath() string {
	return paths.ExpandHome(c.v.GetString("eim.path"), c.home)
}

// ExpectedVersion is the text `eim -V` must print.
func (c *Config) ExpectedVersion() string {
	return c.v.GetString("eim.version")
}

// IDFVersion is the ESP-IDF version the scenarios install. The literal
// "null" that CI matrices emit for an empty cell counts as unset.
func (c *Config) IDFVersion() string {
	version := strings.TrimSpace(c.v.GetString("idf.version"))
	if version == "" || version == "null" {
		return DefaultIDFVersion
	}

	return version
}

// ActivationScript is an explicit activation script, or "" to derive one.
func (c *Config) ActivationScript() string {
	return paths.ExpandHome(c.v.GetString("idf.script"), c.home)
}

// IDFPath is the ESP-IDF checkout used by post-install checks.
func (c *Config) IDFPath() string {
	return paths.ExpandHome(c.v.GetString("idf.path"), c.home)
}

// SuiteFile is the scenario file name (without extension) under SuiteDir.
func (c *Config) SuiteFile() string {
	return c.v.GetString("suite.file")
}

// SuiteDir is the directory holding scenario files.
func (c *Config) SuiteDir() string {
	return c.v.GetString("suite.dir")
}

// Cleanup reports whether install folders are removed after each case.
func (c *Config) Cleanup() bool {
	return c.v.GetBool("suite.cleanup")
}

// Debug reports whether debug logging was requested.
func (c *Config) Debug() bool {
	return c.v.GetBool("log.debug")
}

// LogToFile returns the raw LOG_TO_FILE setting.
func (c *Config) LogToFile() string {
	return c.v.GetString("log.to_file")
}

// Cols is the terminal width handed to the installer.
func (c *Config) Cols() int {
	return c.v.GetInt("harness.cols")
}

// Rows is the terminal height handed to the installer.
func (c *Config) Rows() int {
	return c.v.GetInt("harness.rows")
}

// StartGrace is how long a started process must survive before Start returns.
func (c *Config) StartGrace() time.Duration {
	return c.v.GetDuration("harness.start_grace")
}

// StopTimeout bounds each stage of stopping a process.
func (c *Config) StopTimeout() time.Duration {
	return c.v.GetDuration("harness.stop_timeout")
}

// TranscriptDir is where per-case transcripts go; "" selects the state directory.
func (c *Config) TranscriptDir() string {
	return c.v.GetString("transcript.dir")
}

// Home is the home directory used for "~" expansion and default install folders.
func (c *Config) Home() string {
	return c.home
}

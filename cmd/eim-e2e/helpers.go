package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/espressif/eim-e2e/internal/config"
	clierrors "github.com/espressif/eim-e2e/internal/errors"
	"github.com/espressif/eim-e2e/internal/observability"
	"github.com/espressif/eim-e2e/internal/scenario"
	"github.com/espressif/eim-e2e/internal/suite"
)

type configKey struct{}

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// configFrom returns the configuration loaded by the root command, loading
// it again for commands executed without one.
func configFrom(ctx context.Context) (*config.Config, error) {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok && cfg != nil {
		return cfg, nil
	}

	cfg, err := config.Load(config.LoadOptions{})
	if err != nil {
		return nil, clierrors.ConfigFailed("load configuration", err)
	}

	return cfg, nil
}

// loadEntries resolves the scenario file named by --file or JSON_FILENAME
// and reads its entries.
func loadEntries(cfg *config.Config, file string) (string, []scenario.Entry, error) {
	name := file
	if name == "" {
		name = cfg.SuiteFile()
	}

	if name == "" {
		return "", nil, &clierrors.CLIError{
			Message: "No scenario file selected",
			Hint:    "Pass --file or set JSON_FILENAME to a scenario name such as 'default'",
			Code:    clierrors.ExitUsage,
		}
	}

	path, err := scenario.Find(cfg.SuiteDir(), name)
	if err != nil {
		if errors.Is(err, scenario.ErrNotFound) {
			return "", nil, clierrors.ScenarioNotFound(name, cfg.SuiteDir())
		}

		return "", nil, clierrors.ScenarioInvalid(name, err)
	}

	entries, err := scenario.Load(path)
	if err != nil {
		return "", nil, clierrors.ScenarioInvalid(path, err)
	}

	return path, entries, nil
}

// planCases loads the scenario file and expands it into runnable cases.
func planCases(ctx context.Context, cfg *config.Config, file string, opts suite.Options) (*suite.Runner, []suite.Case, error) {
	path, entries, err := loadEntries(cfg, file)
	if err != nil {
		return nil, nil, err
	}

	opts.Config = cfg
	if opts.Logger == nil {
		opts.Logger = observability.FromContext(ctx)
	}

	runner := suite.New(opts)

	cases, err := runner.Plan(entries)
	if err != nil {
		return nil, nil, clierrors.ScenarioInvalid(path, err)
	}

	opts.Logger.Debug(
		"scenario planned",
		slog.String("event.type", "suite.plan"),
		slog.String("scenario.path", path),
		slog.Int("scenario.cases", len(cases)),
	)

	return runner, cases, nil
}

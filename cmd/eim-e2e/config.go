package main

import (
	"github.com/spf13/cobra"

	clierrors "github.com/espressif/eim-e2e/internal/errors"
	"github.com/espressif/eim-e2e/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `View and modify eim-e2e configuration settings.`,
	}

	cmd.AddCommand(newConfigListCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		Long: `Display every configuration setting with its resolved value. Values come
from the environment, a .env file, the config file and built-in defaults, in
that order of precedence.`,
		Example: `  eim-e2e config list
  eim-e2e config list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}

			if out.JSON {
				return out.PrintJSON(cfg.All())
			}

			for _, key := range cfg.Keys() {
				out.Print("%s = %v\n", key, cfg.Get(key))
			}

			if file := cfg.FileUsed(); file != "" {
				out.Println()
				out.Muted("Config file: %s", file)
			}

			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <key>",
		Short:   "Get a configuration value",
		Long:    `Retrieve and display the current value of a single configuration key.`,
		Example: `  eim-e2e config get eim.path`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key := args[0]

			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}

			if !cfg.IsKnown(key) {
				return clierrors.UnknownConfigKey(key, cfg.Keys())
			}

			value := cfg.GetString(key)
			if value == "" {
				out.Muted("%s is not set", key)
				return nil
			}

			out.Print("%s = %s\n", key, value)

			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration key to the given value. The value is persisted to the
config file; an environment variable for the same key still takes precedence.`,
		Example: `  eim-e2e config set eim.path ~/bin/eim
  eim-e2e config set suite.cleanup true`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key, value := args[0], args[1]

			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}

			if !cfg.IsKnown(key) {
				return clierrors.UnknownConfigKey(key, cfg.Keys())
			}

			if err := cfg.Set(key, value); err != nil {
				return clierrors.ConfigFailed("set config", err)
			}

			out.Success("Set %s = %s", key, value)

			return nil
		},
	}
}

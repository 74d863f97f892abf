package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/godokan/go-dokan/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var forceInit bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		cfg := config.Default()
		if err := config.WriteFile(path, &cfg, forceInit); err != nil {
			return errors.Wrap(err, "init config")
		}
		cmd.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return config.Encode(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(
		&forceInit, "force", "f", false,
		"Overwrite an existing file",
	)
	configCmd.AddCommand(configInitCmd, configShowCmd)
}

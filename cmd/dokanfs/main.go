// Command dokanfs mounts one of the storage backends as a
// volume.
package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/godokan/go-dokan/config"
)

var (
	configPath string
)

var rootCmd = &cobra.Command{
	Use:           "dokanfs",
	Short:         "Serve a storage backend as a Dokan volume",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&configPath, "config", "c", "",
		"Configuration file, defaults to "+config.DefaultPath(),
	)
	rootCmd.AddCommand(mountCmd, configCmd)
}

// loadConfig reads the file selected by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrln("Error:", err)
		os.Exit(1)
	}
}

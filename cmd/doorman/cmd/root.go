package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/doorman/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "doorman",
	Short: "Doorman is a session login and password reset service",
	Long: `Doorman authenticates users with email and password, keeps login sessions,
and lets users reset a forgotten password through a signed, time-limited link.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a JSON config file")
}

// loadConfig layers defaults, the config file and DOORMAN_* environment
// variables. Command flags are applied on top by the caller.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		if err := cfg.LoadFile(configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

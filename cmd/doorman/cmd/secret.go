package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/doorman/internal/config"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a random secret_key value",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.GenerateSecret()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), s)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(secretCmd)
}

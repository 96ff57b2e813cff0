package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jmcleod/doorman/internal/app"
	"github.com/jmcleod/doorman/internal/config"
	"github.com/jmcleod/doorman/internal/util"
	"github.com/jmcleod/doorman/users"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var userEmail string

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
	Long:  `Commands for creating and listing users in persistent storage.`,
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user, prompting for the password",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		return withUserStore(cmd.Context(), func(store *users.Store) error {
			pw, err := promptPassword(out, "Password: ")
			if err != nil {
				return err
			}
			confirmation, err := promptPassword(out, "Confirm password: ")
			if err != nil {
				return err
			}
			u, err := store.Create(cmd.Context(), userEmail, pw, confirmation)
			if err != nil {
				return fmt.Errorf("creating user: %w", err)
			}
			fmt.Fprintf(out, "Created user %s (%s)\n", u.Email, u.ID)
			return nil
		})
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUserStore(cmd.Context(), func(store *users.Store) error {
			list, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEMAIL\tCREATED")
			for _, u := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", u.ID, u.Email, u.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		})
	},
}

func withUserStore(ctx context.Context, fn func(*users.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage == config.StorageMemory {
		return errors.New("user commands need persistent storage; set storage to bbolt or postgres")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := app.NewLogger(os.Stderr, slog.LevelWarn)

	repo, closeRepo, err := app.OpenRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	secret, err := app.MasterSecret(cfg, logger)
	if err != nil {
		return err
	}
	defer util.WipeBytes(secret)
	store, err := app.NewUserStore(repo, secret, logger)
	if err != nil {
		return err
	}
	return fn(store)
}

func promptPassword(w io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	defer util.WipeBytes(pw)
	return string(pw), nil
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd, userListCmd)
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Email address of the new user")
	_ = userAddCmd.MarkFlagRequired("email")
}

package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/doorman/internal/app"
	"github.com/jmcleod/doorman/internal/config"
)

var serverFlags struct {
	addr    string
	dataDir string
	storage string
	tlsCert string
	tlsKey  string
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the doorman HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyServerFlags(cmd, cfg)

		level, err := config.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger := app.NewLogger(os.Stderr, level)

		a, err := app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		server := &http.Server{
			Addr:              cfg.Addr,
			Handler:           a.Handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		useTLS := cfg.TLSCert != "" && cfg.TLSKey != ""
		if useTLS {
			cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			server.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if useTLS {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		out := cmd.OutOrStdout()
		printBanner(out)
		fmt.Fprintf(out, "Starting server on %s (storage: %s, sessions: %s, tls: %t)...\n",
			cfg.Addr, cfg.Storage, cfg.SessionStore, useTLS)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func applyServerFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = serverFlags.addr
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = serverFlags.dataDir
	}
	if flags.Changed("storage") {
		cfg.Storage = serverFlags.storage
	}
	if flags.Changed("tls-cert") {
		cfg.TLSCert = serverFlags.tlsCert
	}
	if flags.Changed("tls-key") {
		cfg.TLSKey = serverFlags.tlsKey
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVarP(&serverFlags.addr, "addr", "a", ":8080", "Address to listen on")
	serverCmd.Flags().StringVar(&serverFlags.dataDir, "data-dir", "./data", "Directory for bbolt data")
	serverCmd.Flags().StringVar(&serverFlags.storage, "storage", config.StorageMemory, "Record storage: memory, bbolt or postgres")
	serverCmd.Flags().StringVar(&serverFlags.tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&serverFlags.tlsKey, "tls-key", "", "Path to TLS key file")
}

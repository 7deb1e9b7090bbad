package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"florafi/cmd/florafi/chat"
	"florafi/internal/config"
	"florafi/internal/logging"
)

var (
	verbose    bool
	configPath string

	cfg      *config.Config
	stateDir string
)

var rootCmd = &cobra.Command{
	Use:   "florafi",
	Short: "FloraFi - a terminal companion for a capacitive-touch plant sensor",
	Long: `FloraFi connects a capacitive-touch plant sensor to a conversational
plant companion. It records each session as a transcript, exports and uploads
finalized transcripts to decentralized storage, and keeps a local marketplace
of listings built from them. A wallet connector discovers browser-injected
cryptocurrency wallets for signing.

Run without arguments to start the interactive chat.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		stateDir = config.DefaultStateDir()
		if configPath == "" {
			configPath = config.DefaultConfigPath()
		}
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.Logging.Debug = true
		}
		if err := logging.Initialize(stateDir, loggingOptions(cfg)); err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}
		logging.Boot("florafi starting: version=%s config=%s", cfg.Version, configPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return chat.Run(cfg, stateDir)
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive companion session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return chat.Run(cfg, stateDir)
	},
}

// loggingOptions maps the logging config onto logger options.
func loggingOptions(c *config.Config) logging.Options {
	return logging.Options{
		Debug:      c.Logging.Debug,
		Level:      c.Logging.Level,
		JSONFormat: c.Logging.Format == "json",
		Categories: c.Logging.Categories,
	}
}

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sig:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sig)
	}()
	return ctx, cancel
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.florafi/config.yaml)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(marketCmd)
	rootCmd.AddCommand(sensorCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

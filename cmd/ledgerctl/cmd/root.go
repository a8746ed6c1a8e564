// Package cmd provides the ledgerctl maintenance commands.
package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Operator tooling for the bank-ledger pipeline",
	Long: `ledgerctl runs maintenance tasks against the ledger databases directly,
bypassing the HTTP API.

Example:
  ledgerctl verify --tenant acme --session sess_01j9
  ledgerctl dedupe --tenant acme --since 2025-01-01
  ledgerctl dedupe --tenant acme --since 2025-01-01 --confirm
  ledgerctl reset --tenant acme --session sess_01j9`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()

		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Errors are already logged by the
// subcommands; main only needs the exit code.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		slog.Error("command failed", "error", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(dedupeCmd)
	rootCmd.AddCommand(resetCmd)
}

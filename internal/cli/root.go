// Package cli implements the pilot-sub-proxy command line interface.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pilot-sub-proxy",
	Short: "Verify payload proxies delegated through a pilot credential",
	Long: `Verify payload proxies delegated through a pilot credential.

A long-running pilot job launches payload work on behalf of another subject.
This tool proves the payload proxy certificate was issued by the pilot's
proxy, classifies its RFC 3820 compliance and restriction level, matches
VOMS FQANs against policy, and reports the resulting credential attributes.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the CLI logger, honoring the --debug flag.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

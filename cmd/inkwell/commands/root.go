// Package commands provides the CLI commands for Inkwell.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel  string
	logPretty bool
)

var rootCmd = &cobra.Command{
	Use:   "inkwell",
	Short: "Inkwell - AI writing assistant backend",
	Long: `Inkwell is the backend for an AI-assisted book writing tool. It manages
books, chapters, and character personas, and streams AI continuation
suggestions for a chapter over a WebSocket connection.

Run 'inkwell serve' to start the server.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "pretty-logs", false, "Human-readable log output")

	rootCmd.SetVersionTemplate(fmt.Sprintf("inkwell %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// Package commands provides the CLI commands for chatframe.
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
	logLevel   string
	prettyLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "chatframe",
	Short: "Chatframe - web front-end for the SFC configuration wizard",
	Long: `Chatframe serves the Shop Floor Connectivity configuration wizard over
HTTP: a websocket chat surface, a REST dashboard API and a server-sent
event feed, backed by session-scoped conversations with cancellable
streaming generations.

Run 'chatframe serve' to start the server.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand, show help
		cmd.Help()
	},
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty-logs", false, "Human-readable console logs")

	// Version template
	rootCmd.SetVersionTemplate(fmt.Sprintf("chatframe %s (%s)\n", Version, BuildTime))

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

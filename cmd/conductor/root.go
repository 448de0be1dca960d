package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Global flags shared by every subcommand.
var (
	configPath string
	agentsDir  string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Route requests to specialized agents",
	Long: `Conductor routes free-form requests to specialized agents.

Compound requests are decomposed into ordered or parallel subtasks, each
subtask runs as a time-bounded asynchronous run, and the outputs are merged
back into one reply.

Agents are declared as YAML or JSON documents in a directory
(agents.dir, default ./agents). See examples/agents for a starting set.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user and project config)")
	rootCmd.PersistentFlags().StringVar(&agentsDir, "agents", "", "Agent definitions directory (overrides agents.dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging and per-run details")

	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(decomposeCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

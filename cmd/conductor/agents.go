package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var agentsJSON bool

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agents in the agents directory",
	Args:  cobra.NoArgs,
	RunE:  runAgents,
}

func init() {
	agentsCmd.Flags().BoolVar(&agentsJSON, "json", false, "Print definitions as JSON")
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.discover(cmd.Context(), false)
	if err != nil {
		return err
	}

	agents := snap.Agents()
	out := cmd.OutOrStdout()
	if agentsJSON {
		return printJSON(out, agents)
	}

	fmt.Fprintf(out, "%s %s (%d)\n", color.New(color.Bold).Sprint("agents:"), snap.Dir(), len(agents))
	for _, def := range agents {
		fmt.Fprintf(out, "  %s %s\n", color.CyanString(def.Name), def.DisplayName())
		if def.Description != "" {
			fmt.Fprintf(out, "      %s\n", def.Description)
		}
		if len(def.Triggers.Intents) > 0 {
			fmt.Fprintf(out, "      intents:  %s\n", strings.Join(def.Triggers.Intents, ", "))
		}
		if len(def.Triggers.Keywords) > 0 {
			fmt.Fprintf(out, "      keywords: %s\n", strings.Join(def.Triggers.Keywords, ", "))
		}
		if def.Limits.TimeoutSeconds > 0 {
			fmt.Fprintf(out, "      timeout:  %ds\n", def.Limits.TimeoutSeconds)
		}
	}
	return nil
}

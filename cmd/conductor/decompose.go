package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var decomposeJSON bool

var decomposeCmd = &cobra.Command{
	Use:   "decompose <message>",
	Short: "Show the task graph for a message",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDecompose,
}

func init() {
	decomposeCmd.Flags().BoolVar(&decomposeJSON, "json", false, "Print the task graph as JSON")
}

func runDecompose(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	result := a.decomposer.Analyze(cmd.Context(), strings.Join(args, " "))
	if decomposeJSON {
		return printJSON(cmd.OutOrStdout(), result)
	}
	printDecomposition(cmd.OutOrStdout(), result)
	return nil
}

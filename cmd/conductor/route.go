package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var routeJSON bool

var routeCmd = &cobra.Command{
	Use:   "route <message>",
	Short: "Show which agent a message routes to",
	Long: `Route a message without running anything.

Resolution is tried in order: a registered keyword contained in the message,
then the classifier (accepted when confident enough and the agent exists),
then the fallback agent.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRoute,
}

func init() {
	routeCmd.Flags().BoolVar(&routeJSON, "json", false, "Print the decision as JSON")
}

func runRoute(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	decision := a.router.Route(cmd.Context(), strings.Join(args, " "))
	if routeJSON {
		return printJSON(cmd.OutOrStdout(), decision)
	}
	printDecision(cmd.OutOrStdout(), decision)
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conductor/internal/orchestrator"
)

var runJSON bool

var runCmd = &cobra.Command{
	Use:   "run <message>",
	Short: "Handle one message end to end",
	Long: `Decompose a message, run every subtask on its agent, and print the merged reply.

Agents without a registered handler use the mock executor, which echoes the
task after lifecycle.mock_delay. A task containing "[fail]" fails on purpose.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the full reply as JSON")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	reply, err := a.orch.Handle(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if runJSON {
		return printJSON(cmd.OutOrStdout(), reply)
	}
	printReply(cmd.OutOrStdout(), reply)
	return nil
}

// printReply writes the reply text, preceded by per-run details when verbose.
func printReply(w io.Writer, reply orchestrator.Reply) {
	if verbose {
		printDecomposition(w, reply.Decomposition)
		for _, s := range reply.Runs {
			printRun(w, s)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, reply.Text)
}

// handleLine runs one chat line and prints the outcome.
func handleLine(ctx context.Context, a *app, w io.Writer, line string) error {
	reply, err := a.orch.Handle(ctx, line)
	if err != nil {
		printStatus(w, "✗", err.Error(), color.FgRed)
		return err
	}
	printReply(w, reply)
	return nil
}

package main

import (
	"bufio"
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

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Handle messages read from stdin, one per line",
	Long: `Read messages from stdin and reply to each one.

The agents directory is watched while chat runs, so edits to agent documents
take effect on the next message. Type "exit" or send EOF to quit.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{watch: true, events: true})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if _, err := a.discover(ctx, true); err != nil {
		printStatus(out, "⚠", fmt.Sprintf("agents not loaded: %v", err), color.FgYellow)
	}

	go drainEvents(a.emitter.Events(), cmd.ErrOrStderr())

	return chatLoop(ctx, a, cmd.InOrStdin(), out)
}

// chatLoop handles lines until EOF, "exit", or ctx ends.
// A failed message is reported and the loop continues.
func chatLoop(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	prompt := color.New(color.FgCyan, color.Bold).Sprint("> ")

	fmt.Fprint(out, prompt)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			fmt.Fprint(out, prompt)
			continue
		case "exit", "quit":
			return nil
		}

		if err := handleLine(ctx, a, out, line); err != nil && ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, prompt)
	}
	return scanner.Err()
}

// drainEvents reports registry reloads, plus run events when verbose, until events closes.
func drainEvents(events <-chan orchestrator.Event, w io.Writer) {
	for ev := range events {
		switch ev.Type {
		case orchestrator.EventRegistryReloaded:
			printStatus(w, "↻", "agents reloaded from "+ev.Message, color.FgBlue)
		case orchestrator.EventRunFinished:
			if verbose {
				printStatus(w, statusSymbol(ev.Status), fmt.Sprintf("%s %s %s", ev.TaskID, ev.AgentName, ev.Status), statusColor(ev.Status))
			}
		}
	}
}

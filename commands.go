package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"rent360_assistant/internal/assistant"
	"rent360_assistant/internal/core"
	"rent360_assistant/pkg"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

// chatCmd runs an interactive conversation
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation with the assistant.

Type a message and press enter. Special inputs:
  /rate N  - rate the previous reply from 1 to 5
  /exit    - end the conversation`,
	RunE: runChat,
}

// askCmd answers a single message
var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Answer a single message and print the response envelope",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

// insightsCmd prints the learning report
var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Print learned patterns, common questions and improvement suggestions",
	Long: `Print the learning report: success and failure patterns, the most
common questions, average satisfaction and improvement suggestions.

Pass --user for that user's length preference and --role for the
patterns learned for that role.`,
	RunE: runInsights,
}

// cleanupCmd applies the learning retention window
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete stale, rarely seen learning patterns",
	RunE:  runCleanup,
}

// toolsCmd lists the lookup tools
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the knowledge lookup tools exposed to agent graphs",
	RunE:  runTools,
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newAssistant(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Rent360 (%s). Escribe /exit para salir.\n", pkg.NormalizeRole(role))

	var history []pkg.Turn
	var last *core.Result

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/exit":
			return nil
		case strings.HasPrefix(line, "/rate"):
			if last == nil {
				fmt.Fprintln(out, "No hay una respuesta para calificar.")
				continue
			}
			score, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/rate")))
			if err != nil {
				fmt.Fprintln(out, "Uso: /rate N (1 a 5)")
				continue
			}
			insights, err := a.Feedback(ctx, assistant.FeedbackFor(*last, score))
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			fmt.Fprintf(out, "Gracias por tu calificación (%d insights).\n", len(insights))
			continue
		}

		result := a.Process(ctx, pkg.Message{Text: line, Role: pkg.Role(role), UserID: userID, History: history})
		printReply(cmd, result.Envelope)

		history = append(history,
			pkg.Turn{Role: "user", Content: line},
			pkg.Turn{Role: "assistant", Content: result.Envelope.Text},
		)
		last = &result
	}
	return scanner.Err()
}

func printReply(cmd *cobra.Command, env pkg.ResponseEnvelope) {
	out := cmd.OutOrStdout()
	speaker := "Rent360"
	if env.Agent != nil {
		speaker = env.Agent.Name
	}
	fmt.Fprintf(out, "%s: %s\n", speaker, env.Text)
	for _, s := range env.Suggestions {
		fmt.Fprintf(out, "  - %s\n", s)
	}
	for _, link := range env.Links {
		fmt.Fprintf(out, "  [%s] %s\n", link.Label, link.URL)
	}
	fmt.Fprintf(out, "  (%s, confianza %.2f)\n", env.Tier, env.Confidence)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.WithoutCancel(cmd.Context())
	a, err := newAssistant(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	env := a.HandleMessage(ctx, strings.Join(args, " "), role, userID, nil)
	return printJSON(cmd, env)
}

func runInsights(cmd *cobra.Command, _ []string) error {
	a, err := newAssistant(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	// role defaults to guest for chat; here it only applies when given
	var forRole string
	if cmd.Flags().Changed("role") {
		forRole = role
	}
	report, err := a.Report(cmd.Context(), userID, forRole)
	if err != nil {
		return err
	}
	if report.Empty() {
		fmt.Fprintln(cmd.OutOrStdout(), "No insights yet.")
		return nil
	}
	return printJSON(cmd, report)
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	a, err := newAssistant(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	removed, err := a.Cleanup(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d stale patterns.\n", removed)
	return nil
}

func runTools(cmd *cobra.Command, _ []string) error {
	a, err := newAssistant(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	tools, err := a.Tools()
	if err != nil {
		return err
	}
	for _, t := range tools {
		info, err := t.Info(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to describe tool: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n  %s\n", info.Name, info.Desc)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

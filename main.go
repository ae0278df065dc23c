package main

import (
	"context"
	"fmt"
	"os"

	"rent360_assistant/internal/assistant"
	"rent360_assistant/src"
	"rent360_assistant/src/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	role   string
	userID string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rent360-assistant",
	Short: "Rent360 conversational assistant",
	Long: `Rent360 conversational assistant.

Answers platform questions for tenants, owners, brokers, providers,
runners, admins and guests. Replies come from the training dataset,
the configured AI provider, or the local knowledge base, and always
pass the security validator.

Configuration is read from ASSISTANT_* environment variables (a .env
file in the working directory is loaded first).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&role, "role", "r", "guest", "Role of the user (tenant, owner, broker, provider, runner, admin, guest)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "User id owning the conversation memory")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(toolsCmd)
}

// newAssistant loads the environment and builds the assistant
func newAssistant(ctx context.Context) (*assistant.Assistant, error) {
	// .env is optional
	_ = godotenv.Load()

	config, err := src.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := logger.InitLogger(config.Log); err != nil {
		return nil, fmt.Errorf("error initializing logger: %w", err)
	}
	return assistant.FromConfig(ctx, config)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ticket-workflow/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ticket-workflow",
	Short: "Support ticket triage workflow",
	Long:  "Classifies support tickets, extracts structured fields, drafts a customer reply and routes each ticket to a team, falling back to rules whenever the inference gateway is unavailable.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

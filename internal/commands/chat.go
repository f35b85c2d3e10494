package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diogo/chatbox/internal/chat"
	"github.com/diogo/chatbox/internal/config"
	"github.com/diogo/chatbox/internal/logging"
	"github.com/diogo/chatbox/internal/render"
	"github.com/diogo/chatbox/internal/tui"
)

func newChatCmd(deps *Dependencies, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session.

The whole conversation is sent with every message.
Type /exit or /quit, or press Esc or Ctrl+C to end the session.
/export <path> saves the transcript (JSON when the path ends in .json)
and /copy copies the last reply.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(flags)
			if err != nil {
				return err
			}
			return runChat(deps, cfg)
		},
	}
}

func runChat(deps *Dependencies, cfg config.Config) error {
	logger, closer, err := logging.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer closer.Close()

	client, release, err := deps.completer(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer release()

	if cfg.TUITheme != "" && !render.SetTUITheme(cfg.TUITheme) {
		logger.Warn("unknown tui theme, using default", "theme", cfg.TUITheme)
	}
	tui.UpdateTheme()

	widget := chat.NewWidget(client, chat.WithLogger(logger))
	logger.Info("chat started", "endpoint", cfg.Endpoint, "model", cfg.Model)

	return deps.TUI.RunChat(widget, cfg.Model, render.FromMarkdownConfig(cfg.Markdown))
}

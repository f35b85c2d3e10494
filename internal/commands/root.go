// Package commands provides CLI commands for chatbox.
package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/diogo/chatbox/internal/config"
)

var (
	// Version info (set at build time)
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// errReplyFailed makes the process exit non-zero after an error reply was
// already printed
var errReplyFailed = errors.New("request failed")

// rootFlags holds the flags shared by all commands
type rootFlags struct {
	endpoint string
	model    string
	output   string
	file     string
}

// NewRootCmd builds the command tree around deps
func NewRootCmd(deps *Dependencies) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "chatbox [prompt]",
		Short: "Terminal client for a chat-completion endpoint",
		Long: `chatbox sends your conversation to a chat-completion endpoint and shows
the replies. Every request carries the whole conversation so far.

Examples:
  chatbox chat                          Start interactive chat
  chatbox "What is Go?"                 Send a single query
  chatbox -f prompt.md                  Read prompt from file
  cat prompt.md | chatbox               Read prompt from stdin
  chatbox "Hello" -o response.md        Save response to file
  chatbox --endpoint http://host/api/chat chat
  chatbox config set model z-ai/glm-4.5-air:free`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Fprintf(deps.Out, "chatbox %s (built %s)\n", Version, BuildTime)
				return nil
			}

			prompt, ok, err := readPrompt(deps, flags, args)
			if err != nil {
				return err
			}
			if !ok {
				return cmd.Help()
			}

			cfg, err := loadSettings(flags)
			if err != nil {
				return err
			}
			return runQuery(cmd.Context(), deps, cfg, flags.output, prompt)
		},
	}

	cmd.SetOut(deps.Out)
	cmd.SetErr(deps.Err)

	cmd.PersistentFlags().StringVar(&flags.endpoint, "endpoint", "", "Chat endpoint URL (default from config)")
	cmd.PersistentFlags().StringVarP(&flags.model, "model", "m", "", "Model identifier sent with every request")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Save response to file")
	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "Read prompt from file")
	cmd.Flags().BoolP("version", "v", false, "Show version and exit")

	cmd.AddCommand(newChatCmd(deps, flags))
	cmd.AddCommand(NewConfigCmd(deps))

	return cmd
}

// readPrompt picks the prompt from -f, the positional argument or stdin, in
// that order. ok is false when there is no input at all.
func readPrompt(deps *Dependencies, flags *rootFlags, args []string) (string, bool, error) {
	if flags.file != "" {
		data, err := os.ReadFile(flags.file)
		if err != nil {
			return "", false, fmt.Errorf("failed to read file: %w", err)
		}
		return string(data), true, nil
	}

	if len(args) > 0 {
		return args[0], true, nil
	}

	if deps.hasPipedInput() {
		data, err := io.ReadAll(deps.In)
		if err != nil {
			return "", false, fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), true, nil
	}

	return "", false, nil
}

// loadSettings reads the config and applies flag overrides
func loadSettings(flags *rootFlags) (config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return cfg, err
	}

	if flags.endpoint != "" {
		cfg.Endpoint = flags.endpoint
	}
	if flags.model != "" {
		cfg.Model = flags.model
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Execute runs the root command
func Execute() {
	deps := NewDependencies()
	if err := NewRootCmd(deps).Execute(); err != nil {
		if !errors.Is(err, errReplyFailed) {
			fmt.Fprintln(deps.Err, formatErrorMessage(err, "Error"))
		}
		os.Exit(1)
	}
}

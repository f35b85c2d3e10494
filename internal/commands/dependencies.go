package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/atotto/clipboard"
	"golang.org/x/term"

	"github.com/diogo/chatbox/internal/api"
	"github.com/diogo/chatbox/internal/chat"
	"github.com/diogo/chatbox/internal/config"
	"github.com/diogo/chatbox/internal/render"
	"github.com/diogo/chatbox/internal/tui"
)

// TUIInterface defines the methods required from the TUI package.
type TUIInterface interface {
	RunChat(widget *chat.Widget, modelName string, opts render.Options) error
}

// Dependencies holds the external dependencies for the commands.
// This allows for dependency injection and easier testing.
type Dependencies struct {
	// Client replaces the HTTP completion client when set.
	Client chat.Completer

	// TUI is the terminal user interface.
	TUI TUIInterface

	In  io.Reader
	Out io.Writer
	Err io.Writer

	// IsTTY reports whether Out is a terminal.
	IsTTY func() bool

	// Clipboard copies text to the system clipboard.
	Clipboard func(string) error
}

// DefaultTUI is the production implementation of TUIInterface.
type DefaultTUI struct{}

func (d *DefaultTUI) RunChat(widget *chat.Widget, modelName string, opts render.Options) error {
	return tui.RunChat(widget, modelName, opts)
}

// NewDependencies creates a new Dependencies struct with default implementations.
func NewDependencies() *Dependencies {
	return &Dependencies{
		TUI:       &DefaultTUI{},
		In:        os.Stdin,
		Out:       os.Stdout,
		Err:       os.Stderr,
		IsTTY:     isStdoutTTY,
		Clipboard: clipboard.WriteAll,
	}
}

// completer returns the injected client or builds the HTTP client described
// by cfg. The returned func releases the client.
func (d *Dependencies) completer(cfg config.Config, logger *slog.Logger) (chat.Completer, func(), error) {
	if d.Client != nil {
		return d.Client, func() {}, nil
	}

	client, err := api.NewClient(
		api.WithEndpoint(cfg.Endpoint),
		api.WithModel(cfg.Model),
		api.WithTimeoutSeconds(cfg.RequestTimeout),
		api.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

// hasPipedInput reports whether In is a pipe or file rather than a terminal
func (d *Dependencies) hasPipedInput() bool {
	if d.In == nil {
		return false
	}
	f, ok := d.In.(*os.File)
	if !ok {
		return true
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// isStdoutTTY returns true if stdout is connected to a terminal
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// getTerminalWidth returns the terminal width or a default value
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

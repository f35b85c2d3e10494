package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/diogo/chatbox/internal/chat"
	"github.com/diogo/chatbox/internal/config"
	apierrors "github.com/diogo/chatbox/internal/errors"
	"github.com/diogo/chatbox/internal/logging"
	"github.com/diogo/chatbox/internal/models"
	"github.com/diogo/chatbox/internal/render"
)

// Gradient colors for animation
var gradientColors = []lipgloss.Color{
	lipgloss.Color("#ff6b6b"), // Red
	lipgloss.Color("#feca57"), // Yellow
	lipgloss.Color("#48dbfb"), // Cyan
	lipgloss.Color("#ff9ff3"), // Pink
	lipgloss.Color("#54a0ff"), // Blue
	lipgloss.Color("#5f27cd"), // Purple
	lipgloss.Color("#00d2d3"), // Teal
	lipgloss.Color("#1dd1a1"), // Green
}

// spinner handles the animated loading indicator
type spinner struct {
	w       io.Writer
	message string
	stop    chan struct{}
	done    chan struct{}
	mu      sync.Mutex
	frame   int
	stopped bool // Flag to prevent double-close
}

func newSpinner(w io.Writer, message string) *spinner {
	return &spinner{
		w:       w,
		message: message,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// start begins the animation
func (s *spinner) start() {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		// Hide cursor
		fmt.Fprint(s.w, "\033[?25l")

		for {
			select {
			case <-s.stop:
				// Clear line and show cursor
				fmt.Fprint(s.w, "\r\033[K\033[?25h")
				return
			case <-ticker.C:
				s.mu.Lock()
				s.render()
				s.frame++
				s.mu.Unlock()
			}
		}
	}()
}

// render draws the current animation frame
func (s *spinner) render() {
	theme := render.GetTUITheme()
	chars := []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}
	barChars := []string{"█", "█", "█", "█", "█", "█", "▓", "▒", "░"}

	spinColor := gradientColors[s.frame%len(gradientColors)]
	spinnerChar := lipgloss.NewStyle().Foreground(spinColor).Bold(true).Render(chars[s.frame%len(chars)])

	barWidth := 16
	var bar strings.Builder
	for i := 0; i < barWidth; i++ {
		colorIdx := (i + s.frame) % len(gradientColors)
		charIdx := (i + s.frame/2) % len(barChars)
		bar.WriteString(lipgloss.NewStyle().Foreground(gradientColors[colorIdx]).Render(barChars[charIdx]))
	}

	var dots strings.Builder
	numDots := (s.frame / 3) % 4
	for i := 0; i < 3; i++ {
		if i < numDots {
			dotColor := gradientColors[(s.frame+i)%len(gradientColors)]
			dots.WriteString(lipgloss.NewStyle().Foreground(dotColor).Render("●"))
		} else {
			dots.WriteString(lipgloss.NewStyle().Foreground(theme.TextMute).Render("○"))
		}
	}

	msg := lipgloss.NewStyle().Foreground(theme.Text).Render(s.message)

	fmt.Fprintf(s.w, "\r\033[K%s %s %s %s", spinnerChar, bar.String(), msg, dots.String())
}

// stopOnce safely closes the stop channel only once
func (s *spinner) stopOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		close(s.stop)
		s.stopped = true
	}
}

// stopWithSuccess stops the spinner and shows success message
func (s *spinner) stopWithSuccess(message string) {
	s.stopOnce()
	<-s.done

	color := render.GetTUITheme().Secondary
	checkmark := lipgloss.NewStyle().Foreground(color).Bold(true).Render("✓")
	fmt.Fprintf(s.w, "%s %s\n", checkmark, lipgloss.NewStyle().Foreground(color).Render(message))
}

// stopWithError stops the spinner and shows error
func (s *spinner) stopWithError() {
	s.stopOnce()
	<-s.done
}

// errorRecorder keeps the last error returned by the wrapped client so the
// one-shot mode can print its HTTP details
type errorRecorder struct {
	chat.Completer
	mu  sync.Mutex
	err error
}

func (r *errorRecorder) Complete(ctx context.Context, history []models.Message) (string, error) {
	reply, err := r.Completer.Complete(ctx, history)
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	return reply, err
}

func (r *errorRecorder) lastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// runQuery sends a single prompt through a fresh widget and prints the reply.
// A TTY gets a spinner and rendered markdown; anything else gets raw text.
func runQuery(ctx context.Context, deps *Dependencies, cfg config.Config, outputPath, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return fmt.Errorf("prompt cannot be empty")
	}

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

	if cfg.TUITheme != "" {
		render.SetTUITheme(cfg.TUITheme)
	}

	recorder := &errorRecorder{Completer: client}
	widget := chat.NewWidget(recorder, chat.WithLogger(logger))
	defer widget.Close()

	tty := deps.IsTTY != nil && deps.IsTTY()

	var spin *spinner
	if tty {
		spin = newSpinner(deps.Err, "Waiting for reply")
		spin.start()
	}

	widget.SetInput(prompt)
	reply, err := widget.Submit(ctx)
	if err != nil {
		if spin != nil {
			spin.stopWithError()
		}
		return err
	}

	if reply.Failed {
		if spin != nil {
			spin.stopWithError()
		}
		cause := recorder.lastErr()
		if cause == nil {
			cause = fmt.Errorf("%s", strings.TrimPrefix(reply.Content, models.ErrorPrefix))
		}
		fmt.Fprintln(deps.Err, formatErrorMessage(cause, "Request failed"))
		return errReplyFailed
	}
	if spin != nil {
		spin.stopWithSuccess("Done")
	}

	text := reply.Content

	if cfg.CopyToClipboard && deps.Clipboard != nil {
		if err := deps.Clipboard(text); err != nil {
			fmt.Fprintln(deps.Err, lipgloss.NewStyle().Foreground(render.GetTUITheme().Error).Render(
				fmt.Sprintf("⚠ Failed to copy to clipboard: %v", err),
			))
		} else if tty {
			fmt.Fprintln(deps.Err, lipgloss.NewStyle().Foreground(render.GetTUITheme().Secondary).Render("✓ Copied to clipboard"))
		}
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, []byte(text), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if tty {
			fmt.Fprintln(deps.Err, lipgloss.NewStyle().Foreground(render.GetTUITheme().Secondary).Render(
				fmt.Sprintf("✓ Response saved to %s", outputPath),
			))
		}
		return nil
	}

	if !tty {
		fmt.Fprint(deps.Out, text)
		return nil
	}

	fmt.Fprintln(deps.Out, renderReply(text, cfg, getTerminalWidth()))
	return nil
}

// renderReply draws the reply as an assistant bubble like the chat TUI
func renderReply(text string, cfg config.Config, termWidth int) string {
	theme := render.GetTUITheme()

	bubbleWidth := termWidth - 4
	if bubbleWidth < 40 {
		bubbleWidth = 40
	}
	if bubbleWidth > 120 {
		bubbleWidth = 120
	}
	contentWidth := bubbleWidth - 4

	label := lipgloss.NewStyle().
		Foreground(theme.Primary).
		Bold(true).
		Render("✦ Assistant")

	opts := render.FromMarkdownConfig(cfg.Markdown).WithWidth(contentWidth)
	bubble := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.Primary).
		Foreground(theme.Text).
		Padding(0, 1).
		MarginTop(1).
		MarginBottom(1).
		Width(bubbleWidth).
		Render(render.MarkdownOrPlain(text, opts))

	return label + "\n" + bubble
}

// formatErrorMessage formats an error with additional context from structured errors
func formatErrorMessage(err error, context string) string {
	if err == nil {
		return ""
	}

	theme := render.GetTUITheme()
	errorStyle := lipgloss.NewStyle().Foreground(theme.Error)
	dimStyle := lipgloss.NewStyle().Foreground(theme.TextDim)

	var sb strings.Builder
	sb.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s: %v", context, err)))

	if status := apierrors.GetHTTPStatus(err); status > 0 {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("\n  HTTP Status: %d", status)))
	}

	if endpoint := apierrors.GetEndpoint(err); endpoint != "" {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("\n  Endpoint: %s", endpoint)))
	}

	if body := apierrors.GetResponseBody(err); body != "" {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("\n\n  %s", strings.ReplaceAll(body, "\n", "\n  "))))
	} else {
		switch {
		case apierrors.IsNetworkError(err):
			sb.WriteString(dimStyle.Render("\n  Hint: Check that the endpoint is running, or set it with 'chatbox config set endpoint <url>'"))
		case apierrors.IsParseError(err):
			sb.WriteString(dimStyle.Render("\n  Hint: The endpoint did not answer with JSON"))
		}
	}

	return sb.String()
}

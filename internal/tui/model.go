package tui

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/diogo/chatbox/internal/chat"
	"github.com/diogo/chatbox/internal/models"
	"github.com/diogo/chatbox/internal/render"
)

// minBubbleWidth keeps bubbles readable before the first resize
const minBubbleWidth = 20

// Animation tick message
type animationTickMsg time.Time

// Message types for the TUI
type (
	// replyMsg carries the outcome of one exchange back to Update
	replyMsg struct {
		ex    *chat.Exchange
		reply string
		err   error
	}
)

// Model represents the TUI state
type Model struct {
	widget    *chat.Widget
	modelName string
	mdOpts    render.Options
	copyText  func(string) error

	// UI components
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	// State
	ready          bool
	quitting       bool
	err            error
	notice         string
	animationFrame int

	// Dimensions
	width  int
	height int
}

// NewChatModel creates a new chat TUI model around widget
func NewChatModel(widget *chat.Widget, modelName string, mdOpts render.Options) Model {
	ta := textarea.New()
	ta.Placeholder = "Type your message here..."
	ta.CharLimit = 4000
	ta.ShowLineNumbers = false
	ta.SetHeight(2)
	ta.Focus()

	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle().Foreground(colorText)
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(colorTextDim)
	ta.BlurredStyle = ta.FocusedStyle

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = loadingStyle

	return Model{
		widget:    widget,
		modelName: modelName,
		mdOpts:    mdOpts,
		copyText:  clipboard.WriteAll,
		textarea:  ta,
		spinner:   s,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
	)
}

func animationTick() tea.Cmd {
	return tea.Tick(time.Millisecond*80, func(t time.Time) tea.Msg {
		return animationTickMsg(t)
	})
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 4 // Header panel with border
		inputHeight := 6  // Input panel with border
		statusHeight := 1 // Status bar
		padding := 2      // Extra spacing

		vpHeight := m.height - headerHeight - inputHeight - statusHeight - padding
		if vpHeight < 5 {
			vpHeight = 5
		}

		contentWidth := m.width - 4

		if !m.ready {
			m.viewport = viewport.New(contentWidth, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = contentWidth
			m.viewport.Height = vpHeight
		}
		m.textarea.SetWidth(contentWidth - 4)
		m.updateViewport()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m.quit()

		case "enter":
			if m.widget.Loading() {
				return m, nil
			}
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				break
			}
			if strings.HasPrefix(input, "/") {
				if model, cmd, ok := m.runCommand(input); ok {
					return model, cmd
				}
			}
			return m.submit()
		}

	case replyMsg:
		if _, ok := m.widget.Finish(msg.ex, msg.reply, msg.err); ok {
			m.updateViewport()
			m.viewport.GotoBottom()
		}

	case spinner.TickMsg:
		if m.widget.Loading() {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case animationTickMsg:
		if m.widget.Loading() {
			m.animationFrame++
			cmds = append(cmds, animationTick())
		}
	}

	// Only pass KeyMsg to textarea to prevent escape sequence leaks
	if !m.widget.Loading() {
		if _, ok := msg.(tea.KeyMsg); ok {
			m.textarea, cmd = m.textarea.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// submit hands the textarea contents to the widget and starts the request
func (m Model) submit() (tea.Model, tea.Cmd) {
	m.widget.SetInput(m.textarea.Value())
	ex, err := m.widget.Begin()
	if err != nil {
		if !errors.Is(err, chat.ErrEmptyInput) && !errors.Is(err, chat.ErrBusy) {
			m.err = err
		}
		return m, nil
	}

	m.textarea.Reset()
	m.err = nil
	m.notice = ""
	m.animationFrame = 0
	m.updateViewport()
	m.viewport.GotoBottom()

	return m, tea.Batch(
		m.sendMessage(ex),
		m.spinner.Tick,
		animationTick(),
	)
}

// sendMessage creates a command that runs the exchange off the UI goroutine
func (m Model) sendMessage(ex *chat.Exchange) tea.Cmd {
	widget := m.widget
	return func() tea.Msg {
		reply, err := widget.Send(ex)
		return replyMsg{ex: ex, reply: reply, err: err}
	}
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.widget.Close()
	m.quitting = true
	return m, tea.Quit
}

// runCommand handles slash commands. ok is false for unknown commands, which
// are sent as ordinary messages.
func (m Model) runCommand(input string) (tea.Model, tea.Cmd, bool) {
	fields := strings.Fields(input)
	name, args := fields[0], fields[1:]

	switch name {
	case "/exit", "/quit":
		model, cmd := m.quit()
		return model, cmd, true

	case "/export":
		m.textarea.Reset()
		if len(args) != 1 {
			m.err = fmt.Errorf("usage: /export <path>")
			return m, nil, true
		}
		if err := m.exportTo(args[0]); err != nil {
			m.err = err
			return m, nil, true
		}
		m.err = nil
		m.notice = fmt.Sprintf("Exported %d messages to %s", m.widget.Len(), args[0])
		return m, nil, true

	case "/copy":
		m.textarea.Reset()
		last, ok := lastAssistant(m.widget.Messages())
		if !ok {
			m.err = fmt.Errorf("no reply to copy yet")
			return m, nil, true
		}
		if err := m.copyText(last.Content); err != nil {
			m.err = fmt.Errorf("copy to clipboard: %w", err)
			return m, nil, true
		}
		m.err = nil
		m.notice = "Copied last reply to clipboard"
		return m, nil, true
	}

	return m, nil, false
}

func (m Model) exportTo(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := m.widget.Export(f, chat.FormatForPath(path)); err != nil {
		_ = f.Close()
		return fmt.Errorf("export: %w", err)
	}
	return f.Close()
}

func lastAssistant(messages []models.Message) (models.Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleAssistant {
			return messages[i], true
		}
	}
	return models.Message{}, false
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return loadingStyle.Render("  Initializing...")
	}

	var sections []string
	contentWidth := m.width - 4

	// Header
	headerContent := lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render("✦ Chatbox"),
		hintStyle.Render("  •  "),
		subtitleStyle.Render(m.modelName),
	)
	sections = append(sections, headerStyle.Width(contentWidth).Render(headerContent))

	// Messages
	var messagesContent string
	if m.widget.Len() == 0 {
		messagesContent = m.renderWelcome()
	} else {
		messagesContent = m.viewport.View()
	}
	sections = append(sections, messagesAreaStyle.
		Width(contentWidth).
		Height(m.viewport.Height).
		Render(messagesContent))

	// Input
	var inputContent string
	if m.widget.Loading() {
		inputContent = m.renderLoadingAnimation()
	} else {
		inputContent = lipgloss.JoinVertical(
			lipgloss.Left,
			inputLabelStyle.Render("You"),
			m.textarea.View(),
		)
	}
	sections = append(sections, inputPanelStyle.Width(contentWidth).Render(inputContent))

	sections = append(sections, m.renderStatusBar(contentWidth))

	if m.err != nil {
		sections = append(sections, FormatError(m.err))
	} else if m.notice != "" {
		sections = append(sections, noticeStyle.Render(m.notice))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderWelcome() string {
	width := m.viewport.Width - 4
	height := m.viewport.Height

	icon := welcomeIconStyle.Width(width).Render("✦")
	title := welcomeTitleStyle.Width(width).Render("Welcome to Chatbox")
	subtitle := welcomeStyle.Width(width).Render("Start a conversation by typing a message below")

	content := lipgloss.JoinVertical(lipgloss.Center, "", icon, "", title, "", subtitle, "")

	topPadding := (height - lipgloss.Height(content)) / 2
	if topPadding < 0 {
		topPadding = 0
	}

	return strings.Repeat("\n", topPadding) + content
}

// renderLoadingAnimation renders a colorful animated loading indicator
func (m Model) renderLoadingAnimation() string {
	chars := []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}
	barChars := []string{"█", "█", "█", "█", "█", "█", "█", "█", "▓", "▒", "░"}

	frame := m.animationFrame

	spinColor := gradientColors[frame%len(gradientColors)]
	spin := lipgloss.NewStyle().Foreground(spinColor).Bold(true).Render(chars[frame%len(chars)])

	barWidth := 20
	var bar strings.Builder
	for i := 0; i < barWidth; i++ {
		colorIdx := (i + frame) % len(gradientColors)
		charIdx := (i + frame/2) % len(barChars)
		bar.WriteString(lipgloss.NewStyle().Foreground(gradientColors[colorIdx]).Render(barChars[charIdx]))
	}

	var dots strings.Builder
	numDots := (frame / 3) % 4
	for i := 0; i < 3; i++ {
		if i < numDots {
			dots.WriteString(lipgloss.NewStyle().Foreground(gradientColors[(frame+i)%len(gradientColors)]).Render("●"))
		} else {
			dots.WriteString(lipgloss.NewStyle().Foreground(colorTextMute).Render("○"))
		}
	}

	text := lipgloss.NewStyle().Foreground(colorText).Render(" Waiting for reply ")

	return fmt.Sprintf("%s %s %s %s", spin, bar.String(), text, dots.String())
}

func (m Model) renderStatusBar(width int) string {
	shortcuts := []struct {
		key  string
		desc string
	}{
		{"Enter", "Send"},
		{"Esc", "Quit"},
		{"↑↓", "Scroll"},
		{"/export", "Save"},
		{"/copy", "Copy"},
	}

	var items []string
	for _, s := range shortcuts {
		items = append(items, lipgloss.JoinHorizontal(
			lipgloss.Center,
			statusKeyStyle.Render(s.key),
			statusDescStyle.Render(" "+s.desc),
		))
	}

	return statusBarStyle.Width(width).Align(lipgloss.Center).Render(strings.Join(items, "  │  "))
}

// updateViewport refreshes the viewport content with styled messages
func (m *Model) updateViewport() {
	var content strings.Builder
	bubbleWidth := m.viewport.Width - 6
	if bubbleWidth < minBubbleWidth {
		bubbleWidth = minBubbleWidth
	}

	for i, msg := range m.widget.Messages() {
		if i > 0 {
			content.WriteString("\n")
		}

		switch {
		case msg.IsUser():
			label := userLabelStyle.Render("⬤ You")
			bubble := userBubbleStyle.Width(bubbleWidth).Render(msg.Content)
			content.WriteString(label + "\n" + bubble)

		case msg.Failed:
			label := assistantLabelStyle.Render("✦ Assistant")
			bubble := failedBubbleStyle.Width(bubbleWidth).Render(msg.Content)
			content.WriteString(label + "\n" + bubble)

		default:
			label := assistantLabelStyle.Render("✦ Assistant")
			rendered := render.MarkdownOrPlain(msg.Content, m.mdOpts.WithWidth(bubbleWidth-4))
			bubble := assistantBubbleStyle.Width(bubbleWidth).Render(rendered)
			content.WriteString(label + "\n" + bubble)
		}
		content.WriteString("\n")
	}

	m.viewport.SetContent(content.String())
}

// RunChat starts the chat TUI and closes the widget when it exits
func RunChat(widget *chat.Widget, modelName string, mdOpts render.Options) error {
	defer widget.Close()

	p := tea.NewProgram(
		NewChatModel(widget, modelName, mdOpts),
		tea.WithAltScreen(),
	)

	_, err := p.Run()
	return err
}

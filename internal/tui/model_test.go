package tui

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/diogo/chatbox/internal/api"
	"github.com/diogo/chatbox/internal/chat"
	apierrors "github.com/diogo/chatbox/internal/errors"
	"github.com/diogo/chatbox/internal/models"
	"github.com/diogo/chatbox/internal/render"
)

func newTestModel(t *testing.T, client chat.Completer) (Model, *chat.Widget) {
	t.Helper()
	w := chat.NewWidget(client)
	m := NewChatModel(w, "test-model", render.DefaultOptions().WithStyle("notty"))
	m.copyText = func(string) error { return nil }

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return updated.(Model), w
}

func pressEnter(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.textarea.SetValue(text)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return updated.(Model), cmd
}

// runReply executes the request command from a submit batch
func runReply(t *testing.T, cmd tea.Cmd) replyMsg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	batch, ok := cmd().(tea.BatchMsg)
	if !ok || len(batch) == 0 {
		t.Fatalf("expected tea.BatchMsg, got %T", cmd())
	}
	reply, ok := batch[0]().(replyMsg)
	if !ok {
		t.Fatalf("first command should produce replyMsg")
	}
	return reply
}

func TestWindowSize(t *testing.T) {
	m, _ := newTestModel(t, &api.MockClient{})

	if !m.ready {
		t.Fatal("model should be ready after WindowSizeMsg")
	}
	if m.viewport.Width != 96 {
		t.Errorf("viewport width = %d, want 96", m.viewport.Width)
	}
	if m.viewport.Height != 27 {
		t.Errorf("viewport height = %d, want 27", m.viewport.Height)
	}

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 20, Height: 5})
	m = updated.(Model)
	if m.viewport.Height != 5 {
		t.Errorf("viewport height should clamp to 5, got %d", m.viewport.Height)
	}
}

func TestView_BeforeReady(t *testing.T) {
	m := NewChatModel(chat.NewWidget(&api.MockClient{}), "x", render.DefaultOptions())
	if !strings.Contains(m.View(), "Initializing") {
		t.Error("expected initializing view")
	}
}

func TestView_Welcome(t *testing.T) {
	m, _ := newTestModel(t, &api.MockClient{})
	view := m.View()
	if !strings.Contains(view, "Welcome to Chatbox") {
		t.Error("expected welcome screen")
	}
	if !strings.Contains(view, "test-model") {
		t.Error("header should show the model name")
	}
}

func TestEnter_EmptyInputDoesNothing(t *testing.T) {
	mock := &api.MockClient{Reply: "unused"}
	m, w := newTestModel(t, mock)

	m, _ = pressEnter(t, m, "   ")
	if w.Len() != 0 {
		t.Errorf("messages = %d, want 0", w.Len())
	}
	if w.Loading() {
		t.Error("should not be loading")
	}
	if mock.Calls() != 0 {
		t.Error("no request expected")
	}
}

func TestEnter_SubmitAndReply(t *testing.T) {
	mock := &api.MockClient{Reply: "**hello**"}
	m, w := newTestModel(t, mock)

	m, cmd := pressEnter(t, m, "hi there")

	if w.Len() != 1 || w.Messages()[0].Content != "hi there" {
		t.Fatalf("user message not appended: %+v", w.Messages())
	}
	if !w.Loading() {
		t.Error("should be loading after submit")
	}
	if m.textarea.Value() != "" {
		t.Errorf("textarea should be cleared, got %q", m.textarea.Value())
	}
	if !strings.Contains(m.View(), "Waiting for reply") {
		t.Error("input panel should show the loading animation")
	}

	reply := runReply(t, cmd)
	updated, _ := m.Update(reply)
	m = updated.(Model)

	if w.Loading() {
		t.Error("loading should be cleared after reply")
	}
	msgs := w.Messages()
	if len(msgs) != 2 || msgs[1].Role != models.RoleAssistant || msgs[1].Content != "**hello**" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if !strings.Contains(m.viewport.View(), "hello") {
		t.Error("viewport should show the reply")
	}
}

func TestEnter_IgnoredWhileLoading(t *testing.T) {
	mock := &api.MockClient{Reply: "ok"}
	m, w := newTestModel(t, mock)

	m, _ = pressEnter(t, m, "first")
	m, cmd := pressEnter(t, m, "second")

	if cmd != nil {
		t.Error("enter while loading should not issue a command")
	}
	if w.Len() != 1 {
		t.Errorf("messages = %d, want 1", w.Len())
	}
}

func TestReply_Error(t *testing.T) {
	mock := &api.MockClient{Err: apierrors.NewNetworkError("complete", errors.New("connection refused"))}
	m, w := newTestModel(t, mock)

	m, cmd := pressEnter(t, m, "hi")
	updated, _ := m.Update(runReply(t, cmd))
	m = updated.(Model)

	last, ok := w.LastReply()
	if !ok || !last.Failed || !strings.HasPrefix(last.Content, "Error: ") {
		t.Fatalf("expected failed reply, got %+v", last)
	}
	if !strings.Contains(m.viewport.View(), "Error:") {
		t.Error("viewport should show the error reply")
	}
}

func TestEsc_ClosesWidget(t *testing.T) {
	release := make(chan struct{})
	mock := &api.MockClient{CompleteFunc: func(ctx context.Context, _ []models.Message) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-release:
			return "late", nil
		}
	}}
	m, w := newTestModel(t, mock)
	defer close(release)

	m, cmd := pressEnter(t, m, "hi")

	updated, quitCmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)

	if !w.Closed() {
		t.Error("esc should close the widget")
	}
	if quitCmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := quitCmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}

	// The cancelled request still resolves, but nothing is appended
	updated, _ = m.Update(runReply(t, cmd))
	m = updated.(Model)
	if w.Len() != 1 {
		t.Errorf("late reply should be ignored, messages = %d", w.Len())
	}
	if m.View() != "" {
		t.Error("view should be empty after quitting")
	}
}

func TestSlashQuit(t *testing.T) {
	for _, input := range []string{"/exit", "/quit"} {
		t.Run(input, func(t *testing.T) {
			mock := &api.MockClient{}
			m, w := newTestModel(t, mock)

			_, cmd := pressEnter(t, m, input)
			if cmd == nil {
				t.Fatal("expected quit command")
			}
			if _, ok := cmd().(tea.QuitMsg); !ok {
				t.Error("expected tea.QuitMsg")
			}
			if !w.Closed() || w.Len() != 0 || mock.Calls() != 0 {
				t.Error("quit command should close without sending")
			}
		})
	}
}

func TestSlashExport(t *testing.T) {
	mock := &api.MockClient{Reply: "pong"}
	m, w := newTestModel(t, mock)

	m, cmd := pressEnter(t, m, "ping")
	updated, _ := m.Update(runReply(t, cmd))
	m = updated.(Model)

	dir := t.TempDir()

	mdPath := filepath.Join(dir, "chat.md")
	m, _ = pressEnter(t, m, "/export "+mdPath)
	if m.err != nil {
		t.Fatalf("export error: %v", m.err)
	}
	data, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "ping") || !strings.Contains(string(data), "pong") {
		t.Errorf("markdown export missing messages:\n%s", data)
	}
	if !strings.Contains(m.View(), "Exported 2 messages") {
		t.Error("expected export notice")
	}

	jsonPath := filepath.Join(dir, "chat.json")
	m, _ = pressEnter(t, m, "/export "+jsonPath)
	data, err = os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var exported struct {
		Messages []models.Message `json:"messages"`
	}
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatalf("json export: %v", err)
	}
	if len(exported.Messages) != 2 {
		t.Errorf("exported %d messages, want 2", len(exported.Messages))
	}

	if w.Len() != 2 || mock.Calls() != 1 {
		t.Error("slash commands must not be sent as messages")
	}
}

func TestSlashExport_Usage(t *testing.T) {
	m, _ := newTestModel(t, &api.MockClient{})
	m, _ = pressEnter(t, m, "/export")
	if m.err == nil || !strings.Contains(m.err.Error(), "usage") {
		t.Errorf("expected usage error, got %v", m.err)
	}
}

func TestSlashCopy(t *testing.T) {
	mock := &api.MockClient{Reply: "copy me"}
	m, _ := newTestModel(t, mock)

	var copied string
	m.copyText = func(s string) error {
		copied = s
		return nil
	}

	m, _ = pressEnter(t, m, "/copy")
	if m.err == nil {
		t.Error("expected error with no reply yet")
	}

	m, cmd := pressEnter(t, m, "hi")
	updated, _ := m.Update(runReply(t, cmd))
	m = updated.(Model)

	m, _ = pressEnter(t, m, "/copy")
	if m.err != nil {
		t.Fatalf("copy error: %v", m.err)
	}
	if copied != "copy me" {
		t.Errorf("copied %q, want %q", copied, "copy me")
	}
}

func TestUnknownSlashCommandIsSent(t *testing.T) {
	mock := &api.MockClient{Reply: "ok"}
	m, w := newTestModel(t, mock)

	_, cmd := pressEnter(t, m, "/help me")
	if cmd == nil || w.Len() != 1 || w.Messages()[0].Content != "/help me" {
		t.Error("unknown slash command should be sent as a message")
	}
}

func TestUpdateViewport_NarrowWidth(t *testing.T) {
	mock := &api.MockClient{Reply: "a reply"}
	m, _ := newTestModel(t, mock)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 8, Height: 20})
	m = updated.(Model)

	m, cmd := pressEnter(t, m, "hi")
	updated, _ = m.Update(runReply(t, cmd))
	m = updated.(Model)

	if m.viewport.TotalLineCount() < 4 {
		t.Errorf("narrow viewport should still render messages, got %d lines", m.viewport.TotalLineCount())
	}
}

func TestFormatError(t *testing.T) {
	if FormatError(nil) != "" {
		t.Error("nil error should format as empty")
	}

	err := apierrors.NewAPIErrorWithBody(502, "http://localhost:3000/api/chat", "bad gateway", "upstream down")
	out := FormatError(err)
	for _, want := range []string{"HTTP Status: 502", "Endpoint: http://localhost:3000/api/chat", "upstream down"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatError() missing %q:\n%s", want, out)
		}
	}

	out = FormatError(apierrors.NewNetworkError("complete", errors.New("refused")))
	if !strings.Contains(out, "Hint:") {
		t.Errorf("network error should carry a hint:\n%s", out)
	}
}

func TestUpdateTheme(t *testing.T) {
	defer func() {
		render.SetTUITheme(render.DefaultTUITheme)
		UpdateTheme()
	}()

	if !render.SetTUITheme("nord") {
		t.Fatal("nord theme missing")
	}
	UpdateTheme()
	if colorPrimary != render.GetTUITheme().Primary {
		t.Error("colors should follow the active theme")
	}
}

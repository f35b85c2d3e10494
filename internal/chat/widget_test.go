package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/diogo/chatbox/internal/api"
	apierrors "github.com/diogo/chatbox/internal/errors"
	"github.com/diogo/chatbox/internal/models"
)

// sequentialIDs returns "id-1", "id-2", ...
func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestSubmit_EmptyInputIsNoop(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t "} {
		t.Run(fmt.Sprintf("%q", input), func(t *testing.T) {
			mock := &api.MockClient{Reply: "unused"}
			w := NewWidget(mock)
			w.SetInput(input)

			_, err := w.Submit(context.Background())
			if !errors.Is(err, ErrEmptyInput) {
				t.Errorf("Submit() error = %v, want ErrEmptyInput", err)
			}
			if w.Len() != 0 {
				t.Errorf("messages = %d, want 0", w.Len())
			}
			if mock.Calls() != 0 {
				t.Errorf("requests = %d, want 0", mock.Calls())
			}
			if w.Input() != input {
				t.Errorf("input should be left untouched, got %q", w.Input())
			}
			if w.Loading() {
				t.Error("loading should stay false")
			}
		})
	}
}

func TestSubmit_AppendsUserMessageBeforeRequest(t *testing.T) {
	var seen []models.Message
	var w *Widget
	mock := &api.MockClient{
		CompleteFunc: func(ctx context.Context, history []models.Message) (string, error) {
			seen = w.Messages()
			if !w.Loading() {
				t.Error("loading should be true while the request is in flight")
			}
			return "hello", nil
		},
	}
	w = NewWidget(mock)
	w.SetInput("  hi there  ")

	if _, err := w.Submit(context.Background()); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	if len(seen) != 1 {
		t.Fatalf("messages during request = %d, want 1", len(seen))
	}
	if seen[0].Role != models.RoleUser || seen[0].Content != "  hi there  " {
		t.Errorf("user message = %+v", seen[0])
	}
	if w.Input() != "" {
		t.Errorf("input should be cleared, got %q", w.Input())
	}
}

func TestSubmit_RequestCarriesFullHistory(t *testing.T) {
	mock := &api.MockClient{Reply: "ok"}
	w := NewWidget(mock)

	for i, s := range []string{"one", "two", "three"} {
		prior := w.Len()
		w.SetInput(s)
		if _, err := w.Submit(context.Background()); err != nil {
			t.Fatalf("Submit(%q) error: %v", s, err)
		}

		sent := mock.LastHistory()
		if len(sent) != prior+1 {
			t.Errorf("round %d: sent %d messages, want %d", i, len(sent), prior+1)
		}
		last := sent[len(sent)-1]
		if last.Role != models.RoleUser || last.Content != s {
			t.Errorf("round %d: last sent = %+v", i, last)
		}
		for j, m := range sent {
			if w.Messages()[j].ID != m.ID {
				t.Errorf("round %d: sent history diverges at %d", i, j)
			}
		}
	}
}

func TestSubmit_Success(t *testing.T) {
	w := NewWidget(&api.MockClient{Reply: "hello"})
	w.SetInput("hi")

	reply, err := w.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if reply.Role != models.RoleAssistant || reply.Content != "hello" || reply.Failed {
		t.Errorf("reply = %+v", reply)
	}

	msgs := w.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	assistants := 0
	for _, m := range msgs {
		if m.Role == models.RoleAssistant {
			assistants++
		}
	}
	if assistants != 1 {
		t.Errorf("assistant messages = %d, want 1", assistants)
	}
	if w.Loading() {
		t.Error("loading should be false after the reply")
	}
}

func TestSubmit_FallbackReply(t *testing.T) {
	w := NewWidget(&api.MockClient{Reply: ""})
	w.SetInput("hi")

	reply, err := w.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if reply.Content != models.FallbackReply {
		t.Errorf("reply = %q, want %q", reply.Content, models.FallbackReply)
	}
	if reply.Failed {
		t.Error("fallback reply is not a failure")
	}
}

func TestSubmit_RequestFailure(t *testing.T) {
	cause := apierrors.NewNetworkErrorWithEndpoint("complete", "http://x", errors.New("connection refused"))
	w := NewWidget(&api.MockClient{Err: cause})
	w.SetInput("hi")

	reply, err := w.Submit(context.Background())
	if err != nil {
		t.Fatalf("request failures should not be returned, got %v", err)
	}
	if !strings.HasPrefix(reply.Content, "Error: ") {
		t.Errorf("reply = %q, want Error: prefix", reply.Content)
	}
	if !strings.Contains(reply.Content, "connection refused") {
		t.Errorf("reply should describe the error, got %q", reply.Content)
	}
	if !reply.Failed {
		t.Error("reply should be marked failed")
	}
	if got := w.Len(); got != 2 {
		t.Errorf("messages = %d, want 2", got)
	}
	if w.Loading() {
		t.Error("loading should be false after a failure")
	}
}

func TestMessageIDsAreUnique(t *testing.T) {
	calls := 0
	mock := &api.MockClient{
		CompleteFunc: func(ctx context.Context, history []models.Message) (string, error) {
			calls++
			if calls%2 == 0 {
				return "", errors.New("boom")
			}
			return "ok", nil
		},
	}
	w := NewWidget(mock)

	for i := 0; i < 20; i++ {
		w.SetInput(fmt.Sprintf("msg %d", i))
		if _, err := w.Submit(context.Background()); err != nil {
			t.Fatalf("Submit() error: %v", err)
		}
	}

	seen := map[string]bool{}
	prev := ""
	for _, m := range w.Messages() {
		if seen[m.ID] {
			t.Fatalf("duplicate id %s", m.ID)
		}
		seen[m.ID] = true
		if prev != "" && m.ID <= prev {
			t.Errorf("ids should increase: %s after %s", m.ID, prev)
		}
		prev = m.ID
	}
	if len(seen) != 40 {
		t.Errorf("messages = %d, want 40", len(seen))
	}
}

func TestBegin_LoadingLifecycle(t *testing.T) {
	w := NewWidget(&api.MockClient{}, WithIDGenerator(sequentialIDs()))
	if w.Loading() {
		t.Fatal("new widget should not be loading")
	}

	w.SetInput("hi")
	ex, err := w.Begin()
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	if !w.Loading() {
		t.Error("loading should be true after Begin")
	}
	if ex.Prompt().ID != "id-1" {
		t.Errorf("prompt id = %q", ex.Prompt().ID)
	}

	if _, ok := w.Finish(ex, "done", nil); !ok {
		t.Fatal("Finish() should apply the outcome")
	}
	if w.Loading() {
		t.Error("loading should be false after Finish")
	}
}

func TestBegin_SingleFlight(t *testing.T) {
	mock := &api.MockClient{}
	w := NewWidget(mock)

	w.SetInput("first")
	ex, err := w.Begin()
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}

	w.SetInput("second")
	if _, err := w.Begin(); !errors.Is(err, ErrBusy) {
		t.Errorf("second Begin() error = %v, want ErrBusy", err)
	}
	if w.Len() != 1 {
		t.Errorf("messages = %d, want 1", w.Len())
	}
	if w.Input() != "second" {
		t.Error("rejected submission should keep the input")
	}

	w.Finish(ex, "ok", nil)
	if _, err := w.Begin(); err != nil {
		t.Errorf("Begin() after Finish error: %v", err)
	}
}

func TestClose_IgnoresLateReply(t *testing.T) {
	w := NewWidget(&api.MockClient{})
	w.SetInput("hi")
	ex, err := w.Begin()
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}

	w.Close()
	if ex.Context().Err() == nil {
		t.Error("Close() should cancel the in-flight exchange")
	}

	if _, ok := w.Finish(ex, "late", nil); ok {
		t.Error("Finish() after Close should be ignored")
	}
	if w.Len() != 1 {
		t.Errorf("messages = %d, want 1", w.Len())
	}

	w.SetInput("again")
	if _, err := w.Begin(); !errors.Is(err, ErrClosed) {
		t.Errorf("Begin() after Close error = %v, want ErrClosed", err)
	}
}

func TestClose_CancelsRunningRequest(t *testing.T) {
	started := make(chan struct{})
	mock := &api.MockClient{
		CompleteFunc: func(ctx context.Context, history []models.Message) (string, error) {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	w := NewWidget(mock)
	w.SetInput("hi")

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background())
		done <- err
	}()

	<-started
	w.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Submit() error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit() did not return after Close")
	}
	if w.Len() != 1 {
		t.Errorf("messages = %d, want 1 (no reply after teardown)", w.Len())
	}
}

func TestSubmit_CallerContextCancels(t *testing.T) {
	mock := &api.MockClient{
		CompleteFunc: func(ctx context.Context, history []models.Message) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	w := NewWidget(mock)
	w.SetInput("hi")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	reply, err := w.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if !reply.Failed || !strings.HasPrefix(reply.Content, models.ErrorPrefix) {
		t.Errorf("reply = %+v, want failure", reply)
	}
}

func TestFinish_StaleExchange(t *testing.T) {
	w := NewWidget(&api.MockClient{})
	w.SetInput("hi")
	ex, _ := w.Begin()
	w.Finish(ex, "ok", nil)

	if _, ok := w.Finish(ex, "again", nil); ok {
		t.Error("finishing the same exchange twice should be ignored")
	}
	if w.Len() != 2 {
		t.Errorf("messages = %d, want 2", w.Len())
	}
}

func TestLastReply(t *testing.T) {
	w := NewWidget(&api.MockClient{Reply: "answer"})
	if _, ok := w.LastReply(); ok {
		t.Error("empty widget has no reply")
	}
	w.SetInput("q")
	if _, err := w.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	reply, ok := w.LastReply()
	if !ok || reply.Content != "answer" {
		t.Errorf("LastReply() = %+v, %v", reply, ok)
	}
}

func TestWithClock(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	w := NewWidget(&api.MockClient{Reply: "x"}, WithClock(func() time.Time { return fixed }))
	w.SetInput("q")
	if _, err := w.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, m := range w.Messages() {
		if !m.CreatedAt.Equal(fixed) {
			t.Errorf("CreatedAt = %v, want %v", m.CreatedAt, fixed)
		}
	}
}

func TestNewID_Monotonic(t *testing.T) {
	prev := NewID()
	for i := 0; i < 100; i++ {
		id := NewID()
		if id <= prev {
			t.Fatalf("NewID() not increasing: %s after %s", id, prev)
		}
		prev = id
	}
}

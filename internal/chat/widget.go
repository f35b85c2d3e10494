// Package chat implements the chat widget: an append-only conversation, an
// input buffer and the single request/response exchange with the completion
// endpoint.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/diogo/chatbox/internal/models"
)

var (
	// ErrEmptyInput is returned when the input buffer is blank; nothing changes
	ErrEmptyInput = errors.New("input is empty")
	// ErrBusy is returned while a request is already in flight
	ErrBusy = errors.New("a request is already in flight")
	// ErrClosed is returned after the widget has been torn down
	ErrClosed = errors.New("chat widget is closed")
)

// Completer sends a history to the completion endpoint and returns the reply
type Completer interface {
	Complete(ctx context.Context, history []models.Message) (string, error)
}

// Widget holds the conversation and the transient UI state. It is safe for
// concurrent use; the request itself runs outside the lock.
type Widget struct {
	client Completer
	newID  func() string
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	messages []models.Message
	input    string
	loading  bool
	closed   bool
	pending  *Exchange
	ctx      context.Context
	cancel   context.CancelFunc
}

// Option configures a Widget
type Option func(*Widget)

// WithIDGenerator replaces the UUIDv7 id source
func WithIDGenerator(fn func() string) Option {
	return func(w *Widget) {
		w.newID = fn
	}
}

// WithClock replaces time.Now for message timestamps
func WithClock(fn func() time.Time) Option {
	return func(w *Widget) {
		w.now = fn
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(w *Widget) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWidget creates an empty widget that talks to client
func NewWidget(client Completer, opts ...Option) *Widget {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Widget{
		client:   client,
		newID:    NewID,
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
		messages: []models.Message{},
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Exchange is one submitted request awaiting its outcome
type Exchange struct {
	ctx     context.Context
	cancel  context.CancelFunc
	history []models.Message
	prompt  models.Message
	started time.Time
}

// Context is cancelled when the widget closes
func (e *Exchange) Context() context.Context {
	return e.ctx
}

// History is the full conversation including the new user message
func (e *Exchange) History() []models.Message {
	out := make([]models.Message, len(e.history))
	copy(out, e.history)
	return out
}

// Prompt is the user message that opened the exchange
func (e *Exchange) Prompt() models.Message {
	return e.prompt
}

// SetInput replaces the input buffer
func (w *Widget) SetInput(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.input = s
}

// Input returns the input buffer
func (w *Widget) Input() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.input
}

// Messages returns a copy of the conversation
func (w *Widget) Messages() []models.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.Message, len(w.messages))
	copy(out, w.messages)
	return out
}

// Len returns the number of messages
func (w *Widget) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.messages)
}

// LastReply returns the most recent assistant message
func (w *Widget) LastReply() (models.Message, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := len(w.messages) - 1; i >= 0; i-- {
		if w.messages[i].Role == models.RoleAssistant {
			return w.messages[i], true
		}
	}
	return models.Message{}, false
}

// Loading reports whether a request is in flight
func (w *Widget) Loading() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loading
}

// Closed reports whether the widget was torn down
func (w *Widget) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Begin starts a submission: it appends the user message, clears the input
// and marks the widget as loading. The returned exchange must be completed
// with Finish.
func (w *Widget) Begin() (*Exchange, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}
	if strings.TrimSpace(w.input) == "" {
		return nil, ErrEmptyInput
	}
	if w.loading {
		return nil, ErrBusy
	}

	msg := models.Message{
		ID:        w.newID(),
		Role:      models.RoleUser,
		Content:   w.input,
		CreatedAt: w.now(),
	}
	w.messages = append(w.messages, msg)
	w.input = ""
	w.loading = true

	history := make([]models.Message, len(w.messages))
	copy(history, w.messages)

	ctx, cancel := context.WithCancel(w.ctx)
	ex := &Exchange{
		ctx:     ctx,
		cancel:  cancel,
		history: history,
		prompt:  msg,
		started: w.now(),
	}
	w.pending = ex

	w.logger.Debug("submitted message", "id", msg.ID, "history", len(history))
	return ex, nil
}

// Send runs the exchange's request. It blocks until the endpoint answers or
// the widget closes.
func (w *Widget) Send(ex *Exchange) (string, error) {
	return w.client.Complete(ex.ctx, ex.history)
}

// Finish applies the outcome of ex. It appends the reply (or an error
// message) and clears the loading flag. The outcome is dropped when the widget
// was closed or ex is no longer the pending exchange; ok is false then.
func (w *Widget) Finish(ex *Exchange, reply string, err error) (msg models.Message, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ex.cancel()

	if w.closed || w.pending != ex {
		w.logger.Debug("dropped stale reply", "prompt", ex.prompt.ID)
		return models.Message{}, false
	}

	msg = models.Message{
		ID:        w.newID(),
		Role:      models.RoleAssistant,
		CreatedAt: w.now(),
	}
	switch {
	case err != nil:
		msg.Content = models.ErrorPrefix + err.Error()
		msg.Failed = true
		w.logger.Warn("request failed", "prompt", ex.prompt.ID, "error", err)
	case reply == "":
		msg.Content = models.FallbackReply
	default:
		msg.Content = reply
	}

	w.messages = append(w.messages, msg)
	w.loading = false
	w.pending = nil

	w.logger.Debug("reply received", "id", msg.ID, "failed", msg.Failed, "took", w.now().Sub(ex.started))
	return msg, true
}

// Submit runs a whole submission synchronously. Request failures are not
// returned; they become an assistant message with Failed set.
func (w *Widget) Submit(ctx context.Context) (models.Message, error) {
	ex, err := w.Begin()
	if err != nil {
		return models.Message{}, err
	}

	stop := context.AfterFunc(ctx, ex.cancel)
	defer stop()

	reply, sendErr := w.Send(ex)
	msg, ok := w.Finish(ex, reply, sendErr)
	if !ok {
		return models.Message{}, ErrClosed
	}
	return msg, nil
}

// Close tears the widget down. The in-flight request is cancelled and its
// outcome, if it still arrives, is ignored.
func (w *Widget) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	w.loading = false
	w.pending = nil
	w.cancel()
}

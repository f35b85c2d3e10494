package api

import (
	"context"
	"sync"

	"github.com/diogo/chatbox/internal/models"
)

// MockClient is a scripted completion client for tests
type MockClient struct {
	mu sync.Mutex

	// Reply and Err are returned when CompleteFunc is nil
	Reply string
	Err   error

	// CompleteFunc overrides Reply/Err when set
	CompleteFunc func(ctx context.Context, history []models.Message) (string, error)

	// Histories records every history passed to Complete
	Histories [][]models.Message
}

// Complete records the history and returns the scripted outcome
func (m *MockClient) Complete(ctx context.Context, history []models.Message) (string, error) {
	m.mu.Lock()
	snapshot := make([]models.Message, len(history))
	copy(snapshot, history)
	m.Histories = append(m.Histories, snapshot)
	fn := m.CompleteFunc
	reply, err := m.Reply, m.Err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, history)
	}
	return reply, err
}

// Calls returns how many times Complete was called
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Histories)
}

// LastHistory returns the most recent history, or nil
func (m *MockClient) LastHistory() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Histories) == 0 {
		return nil
	}
	return m.Histories[len(m.Histories)-1]
}

package intentstore

import (
	"context"
	"sync"

	"main/internal/model"
)

// Store persists the session's pending draft intent so that an interrupted
// order entry can resume with the same idempotency key.
type Store interface {
	Save(ctx context.Context, sessionID string, intent model.OrderIntent) error
	Load(ctx context.Context, sessionID string) (model.OrderIntent, bool, error)
	Delete(ctx context.Context, sessionID string) error
}

// Memory is a process-local store. It is the default when no database is
// configured; drafts then survive resets within the process only.
type Memory struct {
	mu     sync.Mutex
	drafts map[string]model.OrderIntent
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{drafts: make(map[string]model.OrderIntent)}
}

func (m *Memory) Save(_ context.Context, sessionID string, intent model.OrderIntent) error {
	m.mu.Lock()
	m.drafts[sessionID] = intent
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(_ context.Context, sessionID string) (model.OrderIntent, bool, error) {
	m.mu.Lock()
	intent, ok := m.drafts[sessionID]
	m.mu.Unlock()
	return intent, ok, nil
}

func (m *Memory) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.drafts, sessionID)
	m.mu.Unlock()
	return nil
}

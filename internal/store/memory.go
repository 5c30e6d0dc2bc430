package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryInbox is the inbox used when no database is configured. Contents do
// not survive a restart.
type MemoryInbox struct {
	mu       sync.Mutex
	messages map[string]*memoryEntry
	now      func() time.Time
}

type memoryEntry struct {
	msg       Message
	processed bool
	outcome   Outcome
	lastError string
}

func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{messages: make(map[string]*memoryEntry), now: time.Now}
}

// SetClock replaces the time source used to stamp new messages.
func (m *MemoryInbox) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *MemoryInbox) Enqueue(_ context.Context, in NewMessage) (Message, error) {
	if err := in.validate(); err != nil {
		return Message{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := Message{
		ID:         uuid.NewString(),
		Content:    in.Content,
		Source:     in.Source,
		Location:   in.Location,
		ReceivedAt: m.now().UTC(),
	}
	m.messages[msg.ID] = &memoryEntry{msg: msg}
	return msg, nil
}

func (m *MemoryInbox) ListUnprocessed(_ context.Context, limit int, exclude ...string) ([]Message, error) {
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, 0, len(m.messages))
	for _, e := range m.messages {
		if _, ok := skip[e.msg.ID]; ok || e.processed {
			continue
		}
		out = append(out, e.msg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Attempts != out[j].Attempts {
			return out[i].Attempts < out[j].Attempts
		}
		if out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryInbox) MarkFailed(_ context.Context, id string, cause string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.messages[id]
	if !ok || e.processed {
		return ErrNotFound
	}
	e.msg.Attempts++
	e.lastError = cause
	return nil
}

func (m *MemoryInbox) MarkProcessed(_ context.Context, id string, o Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.messages[id]
	if !ok || e.processed {
		return ErrNotFound
	}
	e.processed = true
	e.outcome = o
	return nil
}

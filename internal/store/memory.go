package store

import (
	"context"
	"sync"

	"github.com/balaji-balu/codeboard/pkg/model"
)

// Memory keeps messages in process. Intended for dev and tests.
type Memory struct {
	mu       sync.RWMutex
	messages []model.Message
	lastID   int64
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(_ context.Context, code string, timestamp int64, nodeID string) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, err := newMessage(m.lastID+1, code, timestamp, nodeID)
	if err != nil {
		return model.Message{}, err
	}
	m.lastID = msg.ID
	m.messages = append(m.messages, msg)
	if over := len(m.messages) - Retention; over > 0 {
		m.messages = append([]model.Message(nil), m.messages[over:]...)
	}
	return msg, nil
}

func (m *Memory) Since(_ context.Context, id int64) (model.PollResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := model.PollResponse{Messages: []model.Message{}, LastID: m.lastID}
	for _, msg := range m.messages {
		if msg.ID > id {
			out.Messages = append(out.Messages, msg)
		}
	}
	return out, nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	m.messages = nil
	m.mu.Unlock()
	return nil
}

func (m *Memory) Len(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages), nil
}

func (m *Memory) Close() error { return nil }

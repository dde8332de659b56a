// Package memory contains an in-memory publisher used for dry runs and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
	limit    int
	total    int
}

// PublishedMessage captures one publish call with its JSON encoding.
type PublishedMessage struct {
	ID    string
	Topic string
	Data  []byte
}

// New returns a memory Publisher that keeps every message.
func New() *Publisher {
	return &Publisher{}
}

// NewBounded returns a memory Publisher that keeps only the most recent limit
// messages. A limit <= 0 keeps everything.
func NewBounded(limit int) *Publisher {
	return &Publisher{limit: limit}
}

// Publish encodes payload as JSON, records it, and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total++
	id := fmt.Sprintf("memory-%d", p.total)
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Data: data})
	if p.limit > 0 && len(p.messages) > p.limit {
		// Copy down so the backing array does not keep growing.
		n := copy(p.messages, p.messages[len(p.messages)-p.limit:])
		clear(p.messages[n:])
		p.messages = p.messages[:n]
	}
	return id, nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}

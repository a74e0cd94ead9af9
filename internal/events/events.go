// Package events publishes session lifecycle notifications so other services
// can react when a process has connected to the recruitment contract.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Type enumerates lifecycle event kinds.
type Type string

const (
	TypeSessionInitialized Type = "session.initialized"
	TypeSessionFailed      Type = "session.failed"
)

// Event describes a single lifecycle transition.
type Event struct {
	Type       Type      `json:"type"`
	SessionID  string    `json:"session_id"`
	Network    string    `json:"network"`
	ChainID    string    `json:"chain_id"`
	Account    string    `json:"account,omitempty"`
	Contract   string    `json:"contract"`
	ErrorCode  string    `json:"error_code,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Encode serialises the event for the wire.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events to an external system.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }

// MemoryPublisher keeps published events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryPublisher creates an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records the event.
func (p *MemoryPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of the recorded events in publish order.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Close implements Publisher.
func (p *MemoryPublisher) Close() error { return nil }

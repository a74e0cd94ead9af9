package session

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "RecruitChain/internal/errors"
)

// ErrRecordNotFound is returned when no record exists for a session ID.
var ErrRecordNotFound = xerrors.New(xerrors.CodeNotFound, "")

// Record is the ledger entry written after a successful initialization.
type Record struct {
	SessionID     string    `json:"session_id"`
	Network       string    `json:"network"`
	ChainID       string    `json:"chain_id"`
	Account       string    `json:"account"`
	Contract      string    `json:"contract"`
	Interface     string    `json:"interface"`
	InitializedAt time.Time `json:"initialized_at"`
}

// Recorder persists session records.
type Recorder interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, sessionID string) (*Record, error)
	ListLatest(ctx context.Context, limit int) ([]Record, error)
}

// MemoryRecorder keeps records in process memory.
type MemoryRecorder struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryRecorder returns an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{records: make(map[string]Record)}
}

// Save stores rec, replacing any record with the same session ID.
func (m *MemoryRecorder) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.SessionID] = rec
	return nil
}

// Get returns the record for sessionID or ErrRecordNotFound.
func (m *MemoryRecorder) Get(_ context.Context, sessionID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[sessionID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &rec, nil
}

// ListLatest returns up to limit records, newest first.
func (m *MemoryRecorder) ListLatest(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	list := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		list = append(list, rec)
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].InitializedAt.Equal(list[j].InitializedAt) {
			return list[i].SessionID > list[j].SessionID
		}
		return list[i].InitializedAt.After(list[j].InitializedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Checkpoint is the pre-hand stack snapshot of a table. It exists only while
// a hand is in progress; finding one at startup means the process died
// mid-hand and the hand must be voided.
type Checkpoint struct {
	TableID    string         `json:"tableId"`
	HandID     string         `json:"handId"`
	HandNumber int            `json:"handNumber"`
	Stacks     map[int]int    `json:"stacks"`
	Users      map[int]string `json:"users,omitempty"`
	SavedAt    time.Time      `json:"savedAt"`
}

// Checkpointer stores one checkpoint per table.
type Checkpointer interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, tableID string) (*Checkpoint, error)
	Remove(ctx context.Context, tableID string) error
}

func encodeCheckpoint(cp *Checkpoint) ([]byte, error) {
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, errors.Wrap(err, "encode checkpoint")
	}
	return data, nil
}

func decodeCheckpoint(data []byte) (*Checkpoint, error) {
	if err := validateJSON("checkpoint", data); err != nil {
		return nil, err
	}
	cp := &Checkpoint{}
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, errors.Wrap(err, "decode checkpoint")
	}
	return cp, nil
}

// MemoryCheckpoints keeps checkpoints in process. They do not survive a
// restart, which is fine for tests and single-process deployments without
// redis.
type MemoryCheckpoints struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{saved: make(map[string][]byte)}
}

func (m *MemoryCheckpoints) Save(_ context.Context, cp *Checkpoint) error {
	data, err := encodeCheckpoint(cp)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[cp.TableID] = data
	return nil
}

func (m *MemoryCheckpoints) Load(_ context.Context, tableID string) (*Checkpoint, error) {
	m.mu.Lock()
	data, ok := m.saved[tableID]
	m.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "checkpoint for %s", tableID)
	}
	return decodeCheckpoint(data)
}

func (m *MemoryCheckpoints) Remove(_ context.Context, tableID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, tableID)
	return nil
}

package checkpoint

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory store used in tests and when persistence is
// disabled.
type Memory struct {
	mu      sync.RWMutex
	threads map[string][]Snapshot
}

func NewMemory() *Memory {
	return &Memory{threads: make(map[string][]Snapshot)}
}

func (m *Memory) Save(threadID, nodeID string, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stateCopy := make([]byte, len(state))
	copy(stateCopy, state)

	snaps := m.threads[threadID]
	m.threads[threadID] = append(snaps, Snapshot{
		ThreadID:     threadID,
		CheckpointID: uuid.New().String(),
		NodeID:       nodeID,
		Sequence:     len(snaps) + 1,
		CreatedAt:    time.Now().UTC(),
		State:        stateCopy,
	})
	return nil
}

func (m *Memory) Latest(threadID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := m.threads[threadID]
	if len(snaps) == 0 {
		return nil, ErrNotFound
	}
	snap := snaps[len(snaps)-1]
	return &snap, nil
}

func (m *Memory) List(threadID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := m.threads[threadID]
	infos := make([]Info, 0, len(snaps))
	for _, s := range snaps {
		infos = append(infos, Info{
			CheckpointID: s.CheckpointID,
			NodeID:       s.NodeID,
			Sequence:     s.Sequence,
			CreatedAt:    s.CreatedAt,
		})
	}
	return infos, nil
}

func (m *Memory) Prune(before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, snaps := range m.threads {
		kept := snaps[:0]
		for _, s := range snaps {
			if s.CreatedAt.Before(before) {
				removed++
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			delete(m.threads, id)
		} else {
			m.threads[id] = kept
		}
	}
	return removed, nil
}

func (m *Memory) Close() error { return nil }

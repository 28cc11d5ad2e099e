// Package checkpoint persists state snapshots taken during graph
// execution, namespaced by thread id. Snapshots enable thread
// introspection and resume-after-crash.
package checkpoint

import (
	"errors"
	"time"
)

// ErrNotFound indicates a thread has no snapshots.
var ErrNotFound = errors.New("checkpoint not found")

// Snapshot is one persisted state snapshot.
type Snapshot struct {
	ThreadID     string    `json:"thread_id"`
	CheckpointID string    `json:"checkpoint_id"`
	NodeID       string    `json:"node_id"`
	Sequence     int       `json:"sequence"`
	CreatedAt    time.Time `json:"created_at"`
	State        []byte    `json:"state"`
}

// Info is snapshot metadata without the state payload.
type Info struct {
	CheckpointID string    `json:"checkpoint_id"`
	NodeID       string    `json:"node_id"`
	Sequence     int       `json:"sequence"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists snapshots. Implementations must be safe for concurrent
// use from independent threads; all operations are namespaced by thread id.
type Store interface {
	// Save appends a snapshot for a thread at a node.
	Save(threadID, nodeID string, state []byte) error

	// Latest returns the most recent snapshot for a thread, or ErrNotFound.
	Latest(threadID string) (*Snapshot, error)

	// List returns snapshot metadata for a thread ordered by sequence.
	// A thread with no snapshots yields an empty slice, not an error.
	List(threadID string) ([]Info, error)

	// Prune removes snapshots created before the cutoff, returning the
	// number removed.
	Prune(before time.Time) (int, error)

	// Close releases resources.
	Close() error
}

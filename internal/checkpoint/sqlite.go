package checkpoint

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

// SQLite persists snapshots to a local database. State payloads are
// zstd-compressed; conversation states are repetitive JSON and compress
// well.
type SQLite struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewSQLite opens (and migrates) a snapshot database at path.
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL for concurrent readers, busy timeout so writers retry instead
	// of returning SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			checkpoint_id TEXT PRIMARY KEY,
			thread_id     TEXT NOT NULL,
			node_id       TEXT NOT NULL,
			sequence      INTEGER NOT NULL,
			created_at    DATETIME NOT NULL,
			state         BLOB NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_checkpoints_thread
		ON checkpoints(thread_id, sequence)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	return &SQLite{db: db, enc: enc, dec: dec}, nil
}

func (s *SQLite) Save(threadID, nodeID string, state []byte) error {
	compressed := s.enc.EncodeAll(state, nil)

	_, err := s.db.Exec(`
		INSERT INTO checkpoints (checkpoint_id, thread_id, node_id, sequence, created_at, state)
		VALUES (
			?, ?, ?,
			COALESCE((SELECT MAX(sequence) FROM checkpoints WHERE thread_id = ?), 0) + 1,
			?, ?
		)`,
		uuid.New().String(), threadID, nodeID, threadID,
		time.Now().UTC(), compressed)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *SQLite) Latest(threadID string) (*Snapshot, error) {
	row := s.db.QueryRow(`
		SELECT checkpoint_id, thread_id, node_id, sequence, created_at, state
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY sequence DESC
		LIMIT 1`, threadID)

	var snap Snapshot
	var compressed []byte
	err := row.Scan(&snap.CheckpointID, &snap.ThreadID, &snap.NodeID, &snap.Sequence, &snap.CreatedAt, &compressed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	snap.State, err = s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress checkpoint: %w", err)
	}
	return &snap, nil
}

func (s *SQLite) List(threadID string) ([]Info, error) {
	rows, err := s.db.Query(`
		SELECT checkpoint_id, node_id, sequence, created_at
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY sequence`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	infos := make([]Info, 0)
	for rows.Next() {
		var info Info
		if err := rows.Scan(&info.CheckpointID, &info.NodeID, &info.Sequence, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *SQLite) Prune(before time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM checkpoints WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLite) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}

package store

import (
	"database/sql"
	"fmt"
	"time"

	"ogma/internal/state"
)

// SwarmRun is the persisted record of one swarm execution.
type SwarmRun struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Request        string     `json:"request"`
	Status         string     `json:"status"`
	Summary        string     `json:"summary,omitempty"`
	AgentCount     int        `json:"agent_count"`
	CompletedCount int        `json:"completed_count"`
	FailedCount    int        `json:"failed_count"`
	DurationMs     int64      `json:"duration_ms"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// SaveSwarmRun records a swarm starting.
func (s *Store) SaveSwarmRun(r *SwarmRun) error {
	_, err := s.db.Exec(`
		INSERT INTO swarm_runs (id, conversation_id, request, status)
		VALUES (?, ?, ?, ?)`,
		r.ID, r.ConversationID, r.Request, r.Status)
	if err != nil {
		return fmt.Errorf("save swarm run: %w", err)
	}
	return nil
}

// FinishSwarmRun records the final outcome of a swarm.
func (s *Store) FinishSwarmRun(id string, result *state.SwarmResult) error {
	_, err := s.db.Exec(`
		UPDATE swarm_runs
		SET status = ?, summary = ?, agent_count = ?, completed_count = ?,
		    failed_count = ?, duration_ms = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		result.Status, result.Summary, result.AgentCount, result.CompletedCount,
		result.FailedCount, result.DurationMs, id)
	if err != nil {
		return fmt.Errorf("finish swarm run: %w", err)
	}
	return nil
}

func (s *Store) GetSwarmRun(id string) (*SwarmRun, error) {
	row := s.db.QueryRow(`
		SELECT id, conversation_id, request, status, summary, agent_count,
		       completed_count, failed_count, duration_ms, started_at, completed_at
		FROM swarm_runs WHERE id = ?`, id)
	r, err := scanSwarmRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get swarm run: %w", err)
	}
	return r, nil
}

func (s *Store) ListSwarmRuns() ([]SwarmRun, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, request, status, summary, agent_count,
		       completed_count, failed_count, duration_ms, started_at, completed_at
		FROM swarm_runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list swarm runs: %w", err)
	}
	defer rows.Close()

	var runs []SwarmRun
	for rows.Next() {
		r, err := scanSwarmRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swarm run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func scanSwarmRun(scanner interface{ Scan(dest ...any) error }) (*SwarmRun, error) {
	r := &SwarmRun{}
	var summary sql.NullString
	err := scanner.Scan(&r.ID, &r.ConversationID, &r.Request, &r.Status, &summary,
		&r.AgentCount, &r.CompletedCount, &r.FailedCount, &r.DurationMs,
		&r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	r.Summary = summary.String
	return r, nil
}

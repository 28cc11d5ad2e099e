package store

import (
	"database/sql"
	"fmt"
)

// Template is a stored command template. The empty codebase id holds
// global templates; codebase-specific templates shadow them.
type Template struct {
	Name       string `json:"name"`
	CodebaseID string `json:"codebase_id,omitempty"`
	Content    string `json:"content"`
}

// GetTemplate resolves a template by command name, preferring the
// codebase-specific entry over the global one.
func (s *Store) GetTemplate(name, codebaseID string) (*Template, error) {
	if codebaseID != "" {
		t, err := s.lookupTemplate(name, codebaseID)
		if err != nil && err != ErrNotFound {
			return nil, err
		}
		if t != nil {
			return t, nil
		}
	}
	return s.lookupTemplate(name, "")
}

func (s *Store) lookupTemplate(name, codebaseID string) (*Template, error) {
	row := s.db.QueryRow(`
		SELECT name, codebase_id, content
		FROM command_templates
		WHERE name = ? AND codebase_id = ?`, name, codebaseID)

	var t Template
	err := row.Scan(&t.Name, &t.CodebaseID, &t.Content)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &t, nil
}

// SaveTemplate upserts a template.
func (s *Store) SaveTemplate(t *Template) error {
	_, err := s.db.Exec(`
		INSERT INTO command_templates (name, codebase_id, content)
		VALUES (?, ?, ?)
		ON CONFLICT(name, codebase_id) DO UPDATE SET content = excluded.content`,
		t.Name, t.CodebaseID, t.Content)
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

// ListTemplates returns all templates visible to a codebase (global plus
// codebase-specific), ordered by name.
func (s *Store) ListTemplates(codebaseID string) ([]Template, error) {
	rows, err := s.db.Query(`
		SELECT name, codebase_id, content
		FROM command_templates
		WHERE codebase_id = '' OR codebase_id = ?
		ORDER BY name`, codebaseID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.Name, &t.CodebaseID, &t.Content); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

package store

import (
	"database/sql"
	"fmt"
)

// SetSecret stores a sealed secret blob under a name. Values are
// expected to already be encrypted by the vault.
func (s *Store) SetSecret(name string, sealed []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO secrets (name, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		name, sealed)
	if err != nil {
		return fmt.Errorf("set secret: %w", err)
	}
	return nil
}

// GetSecret returns the sealed blob for a name, or ErrNotFound.
func (s *Store) GetSecret(name string) ([]byte, error) {
	var sealed []byte
	err := s.db.QueryRow(`SELECT value FROM secrets WHERE name = ?`, name).Scan(&sealed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get secret: %w", err)
	}
	return sealed, nil
}

// DeleteSecret removes a secret. Deleting a missing secret is not an error.
func (s *Store) DeleteSecret(name string) error {
	_, err := s.db.Exec(`DELETE FROM secrets WHERE name = ?`, name)
	return err
}

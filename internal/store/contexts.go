package store

import (
	"database/sql"
	"errors"
	"fmt"

	"ogma/internal/state"
)

// ErrNotFound distinguishes "nothing stored" from a failing lookup.
var ErrNotFound = errors.New("store: not found")

// GetContext loads the persisted context for a conversation.
// Returns ErrNotFound when the conversation has never been bound.
func (s *Store) GetContext(conversationID string) (*state.ConversationContext, error) {
	row := s.db.QueryRow(`
		SELECT conversation_id, platform_type, codebase_id, codebase_name, cwd, assistant_session_id
		FROM conversation_contexts
		WHERE conversation_id = ?`, conversationID)

	var ctx state.ConversationContext
	var codebaseID, codebaseName, cwd, sessionID sql.NullString
	err := row.Scan(&ctx.ConversationID, &ctx.PlatformType, &codebaseID, &codebaseName, &cwd, &sessionID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get context: %w", err)
	}

	ctx.CodebaseID = codebaseID.String
	ctx.CodebaseName = codebaseName.String
	ctx.Cwd = cwd.String
	ctx.AssistantSessionID = sessionID.String
	return &ctx, nil
}

// SaveContext upserts the context for a conversation.
func (s *Store) SaveContext(ctx *state.ConversationContext) error {
	_, err := s.db.Exec(`
		INSERT INTO conversation_contexts
			(conversation_id, platform_type, codebase_id, codebase_name, cwd, assistant_session_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(conversation_id) DO UPDATE SET
			platform_type = excluded.platform_type,
			codebase_id = excluded.codebase_id,
			codebase_name = excluded.codebase_name,
			cwd = excluded.cwd,
			assistant_session_id = excluded.assistant_session_id,
			updated_at = CURRENT_TIMESTAMP`,
		ctx.ConversationID, ctx.PlatformType, ctx.CodebaseID, ctx.CodebaseName, ctx.Cwd, ctx.AssistantSessionID)
	if err != nil {
		return fmt.Errorf("save context: %w", err)
	}
	return nil
}

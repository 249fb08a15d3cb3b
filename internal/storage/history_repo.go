package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_history_store.go -package=mocks docqa/internal/storage HistoryStore

import (
	"context"
	"database/sql"
	"fmt"
)

// HistoryStore defines the interface for chat history storage operations.
type HistoryStore interface {
	// Append adds a message to the end of a session.
	Append(ctx context.Context, sessionID, role, content string) error
	// Recent returns up to n most recent messages of a session, oldest first.
	Recent(ctx context.Context, sessionID string, n int) ([]ChatMessage, error)
	// Trim deletes all but the keep most recent messages of a session.
	Trim(ctx context.Context, sessionID string, keep int) error
}

// HistoryRepo provides methods for chat history operations.
// It implements the HistoryStore interface.
type HistoryRepo struct {
	db *sql.DB
}

// NewHistoryRepo creates a new HistoryRepo.
func NewHistoryRepo(db *sql.DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

// Append adds a message to the end of a session.
func (r *HistoryRepo) Append(ctx context.Context, sessionID, role, content string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO chat_messages (session_id, role, content) VALUES (?, ?, ?)",
		sessionID, role, content,
	)
	if err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}
	return nil
}

// Recent returns up to n most recent messages of a session, oldest first.
// Returns an empty slice for an unknown session (not an error).
func (r *HistoryRepo) Recent(ctx context.Context, sessionID string, n int) ([]ChatMessage, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM chat_messages
		 WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var messages []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	// Newest first from the query, oldest first for callers
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Trim deletes all but the keep most recent messages of a session.
func (r *HistoryRepo) Trim(ctx context.Context, sessionID string, keep int) error {
	if keep < 0 {
		keep = 0
	}
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE session_id = ? AND id NOT IN (
			SELECT id FROM chat_messages WHERE session_id = ? ORDER BY id DESC LIMIT ?
		 )`,
		sessionID, sessionID, keep,
	)
	if err != nil {
		return fmt.Errorf("failed to trim chat history: %w", err)
	}
	return nil
}

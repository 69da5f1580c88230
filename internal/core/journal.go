package core

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cloudfs/cloudsh/internal/model"
)

// JournalManager records multi-step mutations so partial outcomes stay inspectable.
// Nothing is replayed: remote state is never rolled back automatically.
type JournalManager struct {
	db *sql.DB
	mu sync.Mutex
}

// NewJournalManager creates a new journal manager.
func NewJournalManager(db *sql.DB) *JournalManager {
	return &JournalManager{db: db}
}

// BeginOperation records the start of an operation and returns its ID.
func (jm *JournalManager) BeginOperation(ctx context.Context, opType string, payload string) (string, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	opID := uuid.New().String()

	query := `
		INSERT INTO journal (operation_id, operation_type, payload, state)
		VALUES (?, ?, ?, 'pending')
	`
	_, err := jm.db.ExecContext(ctx, query, opID, opType, payload)
	if err != nil {
		return "", fmt.Errorf("failed to begin operation: %w", err)
	}

	return opID, nil
}

// CommitOperation marks an operation as fully applied.
func (jm *JournalManager) CommitOperation(ctx context.Context, opID string) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	query := `UPDATE journal SET state = 'committed', completed_at = datetime('now') WHERE operation_id = ?`
	_, err := jm.db.ExecContext(ctx, query, opID)
	if err != nil {
		return fmt.Errorf("failed to commit operation: %w", err)
	}

	return nil
}

// RollbackOperation marks an operation as stopped at a failing step.
func (jm *JournalManager) RollbackOperation(ctx context.Context, opID string, errMsg string) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	query := `UPDATE journal SET state = 'rolled_back', error = ?, completed_at = datetime('now') WHERE operation_id = ?`
	_, err := jm.db.ExecContext(ctx, query, errMsg, opID)
	if err != nil {
		return fmt.Errorf("failed to rollback operation: %w", err)
	}

	return nil
}

// GetPendingOperations returns operations that never completed, e.g. after a crash.
func (jm *JournalManager) GetPendingOperations(ctx context.Context) ([]*model.JournalEntry, error) {
	return jm.query(ctx, `
		SELECT id, operation_id, operation_type, payload, state, error, created_at, completed_at
		FROM journal WHERE state = 'pending'
		ORDER BY id ASC
	`)
}

// Recent returns the newest limit entries, newest first.
func (jm *JournalManager) Recent(ctx context.Context, limit int) ([]*model.JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	return jm.query(ctx, `
		SELECT id, operation_id, operation_type, payload, state, error, created_at, completed_at
		FROM journal ORDER BY id DESC LIMIT ?
	`, limit)
}

func (jm *JournalManager) query(ctx context.Context, query string, args ...interface{}) ([]*model.JournalEntry, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	rows, err := jm.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []*model.JournalEntry
	for rows.Next() {
		var entry model.JournalEntry
		var createdAt string
		var completedAt sql.NullString
		err := rows.Scan(&entry.ID, &entry.OperationID, &entry.OperationType,
			&entry.Payload, &entry.State, &entry.Error, &createdAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entry.CreatedAt, _ = time.Parse(sqliteTime, createdAt)
		if completedAt.Valid {
			if t, err := time.Parse(sqliteTime, completedAt.String); err == nil {
				entry.CompletedAt = &t
			}
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

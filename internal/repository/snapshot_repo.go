package repository

import (
	"database/sql"
	"time"

	"github.com/marcus-tan/askleads/internal/domain"
)

// SnapshotRepository persists the latest enriched table text per
// session, so follow-up questions can omit the table payload.
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Upsert stores or replaces the table snapshot for a session
func (r *SnapshotRepository) Upsert(sessionID, tableData string) error {
	_, err := r.db.Exec(`
		INSERT INTO table_snapshots (session_id, table_data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			table_data = excluded.table_data,
			updated_at = excluded.updated_at
	`, sessionID, tableData, time.Now())
	return err
}

// Get retrieves the table snapshot for a session
func (r *SnapshotRepository) Get(sessionID string) (*domain.TableSnapshot, error) {
	snapshot := &domain.TableSnapshot{}

	err := r.db.QueryRow(`
		SELECT session_id, table_data, updated_at
		FROM table_snapshots WHERE session_id = ?
	`, sessionID).Scan(&snapshot.SessionID, &snapshot.TableData, &snapshot.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

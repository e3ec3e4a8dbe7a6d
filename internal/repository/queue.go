package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"hikbridge/internal/models"
)

// QueueRepository reads and removes commands from the sync_queue table and
// appends system log entries to it. The table carries both directions:
// outbound rows are log entries for the application, inbound rows are device
// sync commands written by the application.
type QueueRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewQueueRepository(db *sql.DB, logger *zap.Logger) *QueueRepository {
	return &QueueRepository{db: db, logger: logger}
}

// NextPending returns the oldest pending command, or nil when the queue is
// empty.
func (r *QueueRepository) NextPending(ctx context.Context) (*models.QueueCommand, error) {
	query := `
		SELECT id, btrim(inbound), created_at
		FROM sync_queue
		WHERE inbound IS NOT NULL
		  AND btrim(inbound) <> ''
		ORDER BY created_at ASC
		LIMIT 1
	`

	cmd := &models.QueueCommand{}
	err := r.db.QueryRowContext(ctx, query).Scan(&cmd.ID, &cmd.Payload, &cmd.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query sync queue: %w", err)
	}
	return cmd, nil
}

// Delete removes a consumed command. Called after exactly one processing
// attempt regardless of outcome.
func (r *QueueRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete queue item %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		r.logger.Warn("Queue item already gone", zap.Int64("id", id))
	}
	return nil
}

// InsertLogEntry appends one outbound system log entry.
func (r *QueueRepository) InsertLogEntry(ctx context.Context, entry string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO sync_queue (outbound) VALUES ($1)`, entry)
	if err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enqueue inserts a pending delivery item eligible immediately.
func (db *DB) Enqueue(ctx context.Context, item *QueueItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = item.CreatedAt
	if item.Status == "" {
		item.Status = StatusPending
	}
	if item.NextRetryAt.IsZero() {
		item.NextRetryAt = item.CreatedAt
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO delivery_queue
			(id, ticket_id, draft_id, channel, payload, status, retry_count, next_retry_at, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.TicketID, item.DraftID, item.Channel, item.Payload,
		item.Status, item.RetryCount, item.NextRetryAt, item.LastError,
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueueing delivery: %w", err)
	}
	return nil
}

// ClaimBatch selects due pending items in next_retry_at order and
// transitions each to processing with a compare-and-set update. An
// item claimed by a concurrent worker between the select and the
// update is skipped, so at most one worker holds any item.
func (db *DB) ClaimBatch(ctx context.Context, now time.Time, limit int) ([]*QueueItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, ticket_id, draft_id, channel, payload, status, retry_count, next_retry_at, last_error, created_at, updated_at
		FROM delivery_queue
		WHERE status = ? AND next_retry_at <= ?
		ORDER BY next_retry_at ASC
		LIMIT ?`,
		StatusPending, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting due items: %w", err)
	}

	var candidates []*QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, item)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("reading due items: %w", err)
	}

	claimed := make([]*QueueItem, 0, len(candidates))
	for _, item := range candidates {
		res, err := db.ExecContext(ctx, `
			UPDATE delivery_queue SET status = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			StatusProcessing, now, item.ID, StatusPending,
		)
		if err != nil {
			return claimed, fmt.Errorf("claiming item %s: %w", item.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return claimed, fmt.Errorf("claiming item %s: %w", item.ID, err)
		}
		if n != 1 {
			continue // lost the race to another worker
		}
		item.Status = StatusProcessing
		item.UpdatedAt = now
		claimed = append(claimed, item)
	}
	return claimed, nil
}

// MarkSucceeded transitions a processing item to its terminal success
// state. The row stays for audit and is never re-claimed.
func (db *DB) MarkSucceeded(ctx context.Context, id string, now time.Time) error {
	return db.transition(ctx, id, StatusProcessing, StatusSucceeded, `
		UPDATE delivery_queue SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		StatusSucceeded, now, id, StatusProcessing)
}

// Reschedule returns a processing item to pending with an increased
// retry count and a backoff-delayed eligibility time.
func (db *DB) Reschedule(ctx context.Context, id string, retryCount int, nextRetryAt time.Time, lastError string, now time.Time) error {
	return db.transition(ctx, id, StatusProcessing, StatusPending, `
		UPDATE delivery_queue SET status = ?, retry_count = ?, next_retry_at = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		StatusPending, retryCount, nextRetryAt, lastError, now, id, StatusProcessing)
}

// MarkFailed transitions a processing item to its terminal failed
// state after retries are exhausted or the error is permanent.
func (db *DB) MarkFailed(ctx context.Context, id string, retryCount int, lastError string, now time.Time) error {
	return db.transition(ctx, id, StatusProcessing, StatusFailed, `
		UPDATE delivery_queue SET status = ?, retry_count = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		StatusFailed, retryCount, lastError, now, id, StatusProcessing)
}

func (db *DB) transition(ctx context.Context, id string, from, to Status, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transitioning item %s to %s: %w", id, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transitioning item %s to %s: %w", id, to, err)
	}
	if n != 1 {
		return fmt.Errorf("item %s is not %s: %w", id, from, ErrNotFound)
	}
	return nil
}

// QueueItem fetches one queue item by ID.
func (db *DB) QueueItem(ctx context.Context, id string) (*QueueItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, ticket_id, draft_id, channel, payload, status, retry_count, next_retry_at, last_error, created_at, updated_at
		FROM delivery_queue WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("selecting item: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrNotFound
	}
	return scanQueueItem(rows)
}

func scanQueueItem(rows *sql.Rows) (*QueueItem, error) {
	var item QueueItem
	err := rows.Scan(
		&item.ID, &item.TicketID, &item.DraftID, &item.Channel, &item.Payload,
		&item.Status, &item.RetryCount, &item.NextRetryAt, &item.LastError,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning queue item: %w", err)
	}
	return &item, nil
}

// Stats counts rows per table and queue items per status.
func (db *DB) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{QueueByStatus: make(map[Status]int)}

	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM tickets", &stats.Tickets},
		{"SELECT COUNT(*) FROM drafts", &stats.Drafts},
		{"SELECT COUNT(*) FROM human_reviews", &stats.Reviews},
	}
	for _, c := range counts {
		if err := db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("counting rows: %w", err)
		}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM delivery_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting queue items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning queue counts: %w", err)
		}
		stats.QueueByStatus[status] = count
	}
	return stats, rows.Err()
}

// Cleanup deletes terminal queue rows last touched before the cutoff.
// Tickets, drafts and reviews are kept indefinitely.
func (db *DB) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `
		DELETE FROM delivery_queue
		WHERE status IN (?, ?) AND updated_at < ?`,
		StatusSucceeded, StatusFailed, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleaning up queue: %w", err)
	}
	return res.RowsAffected()
}

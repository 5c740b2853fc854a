package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// DedupKey derives the content-hash dedup key for an inbound email.
// The same email delivered twice (webhook redelivery) maps to the same
// ticket.
func DedupKey(source, rawEmail string) string {
	h := sha256.Sum256([]byte(source + "\x00" + rawEmail))
	return hex.EncodeToString(h[:])
}

// CreateTicket inserts a ticket. When a ticket with the same dedup key
// exists, ErrDuplicateTicket is returned and no row is written.
func (db *DB) CreateTicket(ctx context.Context, t *Ticket) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	var moveDate sql.NullTime
	if t.MoveDate != nil {
		moveDate = sql.NullTime{Time: *t.MoveDate, Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO tickets (id, source, dedup_key, customer_email, raw_email, reason, move_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Source, t.DedupKey, t.CustomerEmail, t.RawEmail, t.Reason, moveDate, t.CreatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicateTicket
		}
		return fmt.Errorf("inserting ticket: %w", err)
	}
	return nil
}

// TicketByDedupKey resolves the ticket a duplicate inbound email maps
// to.
func (db *DB) TicketByDedupKey(ctx context.Context, key string) (*Ticket, error) {
	return db.scanTicket(db.QueryRowContext(ctx, `
		SELECT id, source, dedup_key, customer_email, raw_email, reason, move_date, created_at
		FROM tickets WHERE dedup_key = ?`, key))
}

// Ticket fetches a ticket by ID.
func (db *DB) Ticket(ctx context.Context, id string) (*Ticket, error) {
	return db.scanTicket(db.QueryRowContext(ctx, `
		SELECT id, source, dedup_key, customer_email, raw_email, reason, move_date, created_at
		FROM tickets WHERE id = ?`, id))
}

func (db *DB) scanTicket(row *sql.Row) (*Ticket, error) {
	var t Ticket
	var moveDate sql.NullTime
	err := row.Scan(&t.ID, &t.Source, &t.DedupKey, &t.CustomerEmail, &t.RawEmail, &t.Reason, &moveDate, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning ticket: %w", err)
	}
	if moveDate.Valid {
		d := moveDate.Time
		t.MoveDate = &d
	}
	return &t, nil
}

// CreateDraft inserts a draft for an existing ticket.
func (db *DB) CreateDraft(ctx context.Context, d *Draft) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO drafts (id, ticket_id, language, draft_text, confidence, generator, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TicketID, d.Language, d.Text, d.Confidence, d.Generator, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting draft: %w", err)
	}
	return nil
}

// Draft fetches a draft by ID.
func (db *DB) Draft(ctx context.Context, id string) (*Draft, error) {
	var d Draft
	err := db.QueryRowContext(ctx, `
		SELECT id, ticket_id, language, draft_text, confidence, generator, created_at
		FROM drafts WHERE id = ?`, id,
	).Scan(&d.ID, &d.TicketID, &d.Language, &d.Text, &d.Confidence, &d.Generator, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning draft: %w", err)
	}
	return &d, nil
}

// CreateHumanReview records a reviewer decision. The referenced draft
// must exist; foreign keys are enforced.
func (db *DB) CreateHumanReview(ctx context.Context, r *HumanReview) error {
	if !ValidDecision(r.Decision) {
		return fmt.Errorf("invalid decision %q", r.Decision)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO human_reviews (id, ticket_id, draft_id, decision, final_text, reviewer, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TicketID, r.DraftID, r.Decision, r.FinalText, r.Reviewer, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting human review: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/cancelflow/internal/config"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(config.StoreConfig{
		Path:        filepath.Join(t.TempDir(), "cancelflow.db"),
		BusyTimeout: config.Duration(time.Second),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDedupKey(t *testing.T) {
	a := DedupKey("freescout", "Hei, jeg vil si opp.")
	b := DedupKey("freescout", "Hei, jeg vil si opp.")
	c := DedupKey("gmail", "Hei, jeg vil si opp.")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c, "source is part of the key")
	assert.Len(t, a, 64)
}

func TestCreateTicket_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	moveDate := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	ticket := &Ticket{
		Source:        "freescout",
		DedupKey:      DedupKey("freescout", "raw"),
		CustomerEmail: "j***@example.com",
		RawEmail:      "Hei, jeg skal flytte [address] og vil si opp.",
		Reason:        "moving",
		MoveDate:      &moveDate,
	}
	require.NoError(t, db.CreateTicket(ctx, ticket))
	require.NotEmpty(t, ticket.ID)

	got, err := db.Ticket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.Source, got.Source)
	assert.Equal(t, ticket.CustomerEmail, got.CustomerEmail)
	assert.Equal(t, ticket.Reason, got.Reason)
	require.NotNil(t, got.MoveDate)
	assert.Equal(t, moveDate.Unix(), got.MoveDate.Unix())
}

func TestCreateTicket_Duplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	key := DedupKey("freescout", "same email twice")
	first := &Ticket{Source: "freescout", DedupKey: key, CustomerEmail: "a***@x.no", RawEmail: "same email twice", Reason: "other"}
	require.NoError(t, db.CreateTicket(ctx, first))

	dup := &Ticket{Source: "freescout", DedupKey: key, CustomerEmail: "a***@x.no", RawEmail: "same email twice", Reason: "other"}
	err := db.CreateTicket(ctx, dup)
	require.ErrorIs(t, err, ErrDuplicateTicket)

	existing, err := db.TicketByDedupKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, first.ID, existing.ID)
}

func TestTicket_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Ticket(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateDraftAndReview(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ticket := &Ticket{Source: "freescout", DedupKey: DedupKey("freescout", "x"), CustomerEmail: "a***@x.no", RawEmail: "x", Reason: "moving"}
	require.NoError(t, db.CreateTicket(ctx, ticket))

	draft := &Draft{
		TicketID:   ticket.ID,
		Language:   "no",
		Text:       "Hei, vi bekrefter oppsigelsen.",
		Confidence: 0.85,
		Generator:  "templates/v3",
	}
	require.NoError(t, db.CreateDraft(ctx, draft))

	got, err := db.Draft(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, got.TicketID)
	assert.InDelta(t, 0.85, got.Confidence, 1e-9)

	review := &HumanReview{
		TicketID:  ticket.ID,
		DraftID:   draft.ID,
		Decision:  DecisionApprove,
		FinalText: got.Text,
		Reviewer:  "agent-1",
	}
	require.NoError(t, db.CreateHumanReview(ctx, review))
}

func TestCreateHumanReview_InvalidDecision(t *testing.T) {
	db := newTestDB(t)
	err := db.CreateHumanReview(context.Background(), &HumanReview{Decision: "maybe"})
	assert.Error(t, err)
}

func TestCreateHumanReview_RequiresExistingDraft(t *testing.T) {
	db := newTestDB(t)
	err := db.CreateHumanReview(context.Background(), &HumanReview{
		TicketID: "no-such-ticket",
		DraftID:  "no-such-draft",
		Decision: DecisionApprove,
		Reviewer: "agent-1",
	})
	assert.Error(t, err, "foreign keys are enforced")
}

func TestQueue_EnqueueDefaults(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	item := &QueueItem{TicketID: "t1", DraftID: "d1", Channel: "#review", Payload: `{"text":"x"}`}
	require.NoError(t, db.Enqueue(ctx, item))

	got, err := db.QueueItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.False(t, got.NextRetryAt.After(time.Now().Add(time.Second)))
}

func TestQueue_ClaimBatchOrderAndDueness(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	late := &QueueItem{TicketID: "t1", DraftID: "d1", Channel: "#r", Payload: "{}", NextRetryAt: now.Add(-time.Minute)}
	early := &QueueItem{TicketID: "t2", DraftID: "d2", Channel: "#r", Payload: "{}", NextRetryAt: now.Add(-time.Hour)}
	future := &QueueItem{TicketID: "t3", DraftID: "d3", Channel: "#r", Payload: "{}", NextRetryAt: now.Add(time.Hour)}
	require.NoError(t, db.Enqueue(ctx, late))
	require.NoError(t, db.Enqueue(ctx, early))
	require.NoError(t, db.Enqueue(ctx, future))

	claimed, err := db.ClaimBatch(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2, "future item is not due")
	assert.Equal(t, early.ID, claimed[0].ID, "oldest eligibility first")
	assert.Equal(t, late.ID, claimed[1].ID)
	for _, item := range claimed {
		assert.Equal(t, StatusProcessing, item.Status)
	}
}

func TestQueue_ClaimedItemCannotBeReclaimed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	item := &QueueItem{TicketID: "t1", DraftID: "d1", Channel: "#r", Payload: "{}", NextRetryAt: now.Add(-time.Minute)}
	require.NoError(t, db.Enqueue(ctx, item))

	first, err := db.ClaimBatch(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := db.ClaimBatch(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, second, "processing items are invisible to other workers")
}

func TestQueue_StateMachine(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	item := &QueueItem{TicketID: "t1", DraftID: "d1", Channel: "#r", Payload: "{}", NextRetryAt: now.Add(-time.Minute)}
	require.NoError(t, db.Enqueue(ctx, item))

	claimed, err := db.ClaimBatch(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Retryable failure: back to pending with backoff.
	next := now.Add(500 * time.Millisecond)
	require.NoError(t, db.Reschedule(ctx, item.ID, 1, next, "server error (503)", now))

	got, err := db.QueueItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "server error (503)", got.LastError)

	// Not due yet.
	claimed, err = db.ClaimBatch(ctx, now, 1)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	// Due again: claim and succeed.
	claimed, err = db.ClaimBatch(ctx, next.Add(time.Millisecond), 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, db.MarkSucceeded(ctx, item.ID, now))

	got, err = db.QueueItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)

	// Terminal rows are never claimable again.
	claimed, err = db.ClaimBatch(ctx, next.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestQueue_TransitionRequiresProcessing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	item := &QueueItem{TicketID: "t1", DraftID: "d1", Channel: "#r", Payload: "{}"}
	require.NoError(t, db.Enqueue(ctx, item))

	// Still pending, not claimed: terminal transitions are rejected.
	assert.Error(t, db.MarkSucceeded(ctx, item.ID, now))
	assert.Error(t, db.MarkFailed(ctx, item.ID, 3, "boom", now))
}

func TestQueue_MarkFailed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	item := &QueueItem{TicketID: "t1", DraftID: "d1", Channel: "#r", Payload: "{}", NextRetryAt: now.Add(-time.Minute)}
	require.NoError(t, db.Enqueue(ctx, item))

	claimed, err := db.ClaimBatch(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, db.MarkFailed(ctx, item.ID, 3, "rate limited (429)", now))

	got, err := db.QueueItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 3, got.RetryCount)
}

func TestStatsAndCleanup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ticket := &Ticket{Source: "s", DedupKey: DedupKey("s", "x"), CustomerEmail: "a***@x.no", RawEmail: "x", Reason: "other"}
	require.NoError(t, db.CreateTicket(ctx, ticket))

	old := &QueueItem{TicketID: ticket.ID, DraftID: "d1", Channel: "#r", Payload: "{}", NextRetryAt: now.Add(-time.Hour)}
	require.NoError(t, db.Enqueue(ctx, old))
	claimed, err := db.ClaimBatch(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, db.MarkSucceeded(ctx, old.ID, now.Add(-48*time.Hour)))

	fresh := &QueueItem{TicketID: ticket.ID, DraftID: "d2", Channel: "#r", Payload: "{}"}
	require.NoError(t, db.Enqueue(ctx, fresh))

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Tickets)
	assert.Equal(t, 1, stats.QueueByStatus[StatusSucceeded])
	assert.Equal(t, 1, stats.QueueByStatus[StatusPending])

	deleted, err := db.Cleanup(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted, "only the old terminal row is removed")

	_, err = db.QueueItem(ctx, old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.QueueItem(ctx, fresh.ID)
	assert.NoError(t, err)
}

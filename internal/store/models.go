package store

import "time"

// Ticket is one processed cancellation email. Append-only: never
// updated after creation.
type Ticket struct {
	ID            string     `json:"id"`
	Source        string     `json:"source"`
	DedupKey      string     `json:"-"`
	CustomerEmail string     `json:"customer_email"` // masked
	RawEmail      string     `json:"raw_email"`      // masked
	Reason        string     `json:"reason"`
	MoveDate      *time.Time `json:"move_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Draft is one composed reply awaiting human review. One-to-many from
// Ticket.
type Draft struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	Language   string    `json:"language"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Generator  string    `json:"generator"`
	CreatedAt  time.Time `json:"created_at"`
}

// Decision is a reviewer's verdict on a draft.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionEdit    Decision = "edit"
	DecisionReject  Decision = "reject"
)

// ValidDecision reports whether d is a known reviewer decision.
func ValidDecision(d Decision) bool {
	switch d {
	case DecisionApprove, DecisionEdit, DecisionReject:
		return true
	}
	return false
}

// HumanReview records one completed review action. Immutable.
type HumanReview struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	DraftID   string    `json:"draft_id"`
	Decision  Decision  `json:"decision"`
	FinalText string    `json:"final_text"`
	Reviewer  string    `json:"reviewer"`
	CreatedAt time.Time `json:"created_at"`
}

// Status of a delivery-queue item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// QueueItem is one pending review-channel delivery. Terminal rows
// (succeeded, failed) are kept for audit and removed only by explicit
// cleanup.
type QueueItem struct {
	ID          string    `json:"id"`
	TicketID    string    `json:"ticket_id"`
	DraftID     string    `json:"draft_id"`
	Channel     string    `json:"channel"`
	Payload     string    `json:"payload"`
	Status      Status    `json:"status"`
	RetryCount  int       `json:"retry_count"`
	NextRetryAt time.Time `json:"next_retry_at"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Stats summarizes the store for the stats command and the metrics
// collector.
type Stats struct {
	Tickets       int            `json:"tickets"`
	Drafts        int            `json:"drafts"`
	Reviews       int            `json:"reviews"`
	QueueByStatus map[Status]int `json:"queue_by_status"`
}

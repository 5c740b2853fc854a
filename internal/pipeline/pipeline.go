// Package pipeline orchestrates processing of one inbound email:
// mask, classify, retrieve context, compose, validate, persist and
// deliver. Each email is an independent task; the record store and the
// delivery queue are the only synchronization points.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/voltgrid/cancelflow/internal/compose"
	"github.com/voltgrid/cancelflow/internal/delivery"
	"github.com/voltgrid/cancelflow/internal/extraction"
	"github.com/voltgrid/cancelflow/internal/retrieval"
	"github.com/voltgrid/cancelflow/internal/sanitize"
	"github.com/voltgrid/cancelflow/internal/store"
)

// Inbound is one normalized email handed to the pipeline.
type Inbound struct {
	Source        string `json:"source"`
	CustomerEmail string `json:"customer_email"`
	RawEmail      string `json:"raw_email"`
}

// Outcome reports what processing one email produced.
type Outcome struct {
	Ticket     *store.Ticket      `json:"ticket,omitempty"`
	Draft      *store.Draft       `json:"draft,omitempty"`
	Result     extraction.Result  `json:"extraction"`
	Method     extraction.Method  `json:"method"`
	Validation compose.Validation `json:"validation"`

	// NotCancellation means no ticket was created because the email is
	// not a cancellation request.
	NotCancellation bool `json:"not_cancellation,omitempty"`
	// Duplicate means the email mapped to an existing ticket and no new
	// draft was composed.
	Duplicate bool `json:"duplicate,omitempty"`
	// Delivered means the synchronous delivery attempt succeeded.
	Delivered bool `json:"delivered,omitempty"`
	// Queued means delivery failed transiently and a retry item exists.
	Queued bool `json:"queued,omitempty"`
}

// Classifier produces an extraction result for masked email text.
type Classifier interface {
	Classify(ctx context.Context, rawText string) (extraction.Result, extraction.Method)
}

// Retriever finds similar past tickets. Implementations degrade to
// zero snippets on failure.
type Retriever interface {
	Retrieve(ctx context.Context, res extraction.Result, maskedText string) []retrieval.Snippet
}

// Deliverer posts approval messages to the review channel.
type Deliverer interface {
	Enabled() bool
	Channel() string
	PostApproval(ctx context.Context, msg delivery.Message) error
}

// RecordStore is the persistence contract the pipeline needs.
type RecordStore interface {
	CreateTicket(ctx context.Context, t *store.Ticket) error
	TicketByDedupKey(ctx context.Context, key string) (*store.Ticket, error)
	CreateDraft(ctx context.Context, d *store.Draft) error
	Enqueue(ctx context.Context, item *store.QueueItem) error
}

// Pipeline wires the processing stages together.
type Pipeline struct {
	classifier Classifier
	retriever  Retriever
	composer   *compose.Composer
	records    RecordStore
	deliverer  Deliverer
	log        *zap.Logger
}

// New creates a pipeline. retriever may be nil when retrieval is
// disabled; deliverer may be a disabled client.
func New(classifier Classifier, retriever Retriever, composer *compose.Composer, records RecordStore, deliverer Deliverer, log *zap.Logger) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		retriever:  retriever,
		composer:   composer,
		records:    records,
		deliverer:  deliverer,
		log:        log.Named("pipeline"),
	}
}

// Process runs one email through the full pipeline. Persistence
// failures propagate; retrieval and delivery failures degrade.
func (p *Pipeline) Process(ctx context.Context, in Inbound) (*Outcome, error) {
	masked := sanitize.Text(in.RawEmail)
	maskedEmail := sanitize.Email(in.CustomerEmail)

	res, method := p.classifier.Classify(ctx, masked)
	methodTotal.WithLabelValues(string(method)).Inc()

	out := &Outcome{Result: res, Method: method}

	if !res.IsCancellation {
		processedTotal.WithLabelValues("not_cancellation").Inc()
		out.NotCancellation = true
		p.log.Info("email is not a cancellation request, no ticket created",
			zap.String("source", in.Source),
			zap.String("language", string(res.Language)),
		)
		return out, nil
	}

	var snippets []string
	if p.retriever != nil {
		for _, s := range p.retriever.Retrieve(ctx, res, masked) {
			snippets = append(snippets, s.Text)
		}
	}

	draftText := p.composer.Compose(res, snippets)
	out.Validation = compose.Validate(draftText, res.Language, res.EdgeCase)
	if !out.Validation.Compliant {
		// The human reviewer is the actual compliance gate; persist
		// anyway.
		p.log.Warn("draft failed policy validation",
			zap.Strings("errors", out.Validation.Errors),
			zap.String("language", string(res.Language)),
			zap.String("edge_case", string(res.EdgeCase)),
		)
	}

	ticket := &store.Ticket{
		Source:        in.Source,
		DedupKey:      store.DedupKey(in.Source, in.RawEmail),
		CustomerEmail: maskedEmail,
		RawEmail:      masked,
		Reason:        string(res.Reason),
		MoveDate:      res.MoveDate,
	}
	err := p.records.CreateTicket(ctx, ticket)
	if errors.Is(err, store.ErrDuplicateTicket) {
		existing, lookupErr := p.records.TicketByDedupKey(ctx, ticket.DedupKey)
		if lookupErr != nil {
			return nil, fmt.Errorf("resolving duplicate ticket: %w", lookupErr)
		}
		processedTotal.WithLabelValues("duplicate").Inc()
		out.Duplicate = true
		out.Ticket = existing
		p.log.Info("duplicate inbound email, reusing existing ticket",
			zap.String("ticket_id", existing.ID))
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creating ticket: %w", err)
	}
	out.Ticket = ticket

	draft := &store.Draft{
		TicketID:   ticket.ID,
		Language:   string(res.Language),
		Text:       draftText,
		Confidence: confidenceScore(res.Confidence),
		Generator:  string(method) + "+" + compose.Version,
	}
	if err := p.records.CreateDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("creating draft: %w", err)
	}
	out.Draft = draft

	processedTotal.WithLabelValues("processed").Inc()
	p.log.Info("email processed",
		zap.String("ticket_id", ticket.ID),
		zap.String("draft_id", draft.ID),
		zap.String("method", string(method)),
		zap.String("language", string(res.Language)),
		zap.String("edge_case", string(res.EdgeCase)),
		zap.Float64("confidence", draft.Confidence),
	)

	p.deliver(ctx, out, ticket, draft)
	return out, nil
}

// deliver makes the synchronous delivery attempt. A transient failure
// enqueues a durable retry item; a permanent failure is logged and
// dropped, since retrying cannot fix it.
func (p *Pipeline) deliver(ctx context.Context, out *Outcome, ticket *store.Ticket, draft *store.Draft) {
	if p.deliverer == nil || !p.deliverer.Enabled() {
		return
	}

	msg := delivery.Message{
		Channel: p.deliverer.Channel(),
		Text:    approvalText(ticket, draft, out),
	}

	err := p.deliverer.PostApproval(ctx, msg)
	if err == nil {
		deliverySyncTotal.WithLabelValues("delivered").Inc()
		out.Delivered = true
		return
	}

	if !delivery.IsTransient(err) {
		deliverySyncTotal.WithLabelValues("dropped").Inc()
		p.log.Error("permanent delivery failure, approval message dropped",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err),
		)
		return
	}

	payload, merr := json.Marshal(msg)
	if merr != nil {
		p.log.Error("marshaling approval payload", zap.Error(merr))
		return
	}
	item := &store.QueueItem{
		TicketID: ticket.ID,
		DraftID:  draft.ID,
		Channel:  msg.Channel,
		Payload:  string(payload),
	}
	if qerr := p.records.Enqueue(ctx, item); qerr != nil {
		// The draft is persisted and reviewable; losing the push
		// notification is survivable, losing the records is not.
		p.log.Error("enqueueing delivery retry",
			zap.String("ticket_id", ticket.ID),
			zap.Error(qerr),
		)
		return
	}
	deliverySyncTotal.WithLabelValues("queued").Inc()
	out.Queued = true
	p.log.Warn("delivery failed transiently, queued for retry",
		zap.String("ticket_id", ticket.ID),
		zap.String("item_id", item.ID),
		zap.Error(err),
	)
}

// confidenceScore collapses the boolean factors into one 0-1 score.
// Clear intent carries half the weight: it is the factor reviewers
// care about most.
func confidenceScore(f extraction.ConfidenceFactors) float64 {
	score := 0.0
	if f.ClearIntent {
		score += 0.5
	}
	if f.CompleteInformation {
		score += 0.25
	}
	if f.StandardCase {
		score += 0.25
	}
	return score
}

// approvalText renders the review-channel message.
func approvalText(ticket *store.Ticket, draft *store.Draft, out *Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New cancellation draft for review\n")
	fmt.Fprintf(&b, "Ticket: %s (source %s)\n", ticket.ID, ticket.Source)
	fmt.Fprintf(&b, "Customer: %s\n", ticket.CustomerEmail)
	fmt.Fprintf(&b, "Reason: %s | Language: %s | Edge case: %s | Urgency: %s\n",
		ticket.Reason, draft.Language, out.Result.EdgeCase, out.Result.Urgency)
	fmt.Fprintf(&b, "Method: %s | Confidence: %.2f\n", out.Method, draft.Confidence)
	if len(out.Validation.Warnings) > 0 {
		fmt.Fprintf(&b, "Validation warnings: %s\n", strings.Join(out.Validation.Warnings, "; "))
	}
	if !out.Validation.Compliant {
		fmt.Fprintf(&b, "NON-COMPLIANT: %s\n", strings.Join(out.Validation.Errors, "; "))
	}
	fmt.Fprintf(&b, "\n%s", draft.Text)
	return b.String()
}

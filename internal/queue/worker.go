// Package queue runs the delivery retry worker: a polling loop that
// claims due queue items, replays their payloads to the review
// channel and reschedules or terminates each item.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voltgrid/cancelflow/internal/config"
	"github.com/voltgrid/cancelflow/internal/delivery"
	"github.com/voltgrid/cancelflow/internal/store"
)

// Sender posts one payload to the review channel.
type Sender interface {
	Post(ctx context.Context, payload []byte) error
}

// Store is the queue persistence contract the worker needs.
type Store interface {
	ClaimBatch(ctx context.Context, now time.Time, limit int) ([]*store.QueueItem, error)
	MarkSucceeded(ctx context.Context, id string, now time.Time) error
	Reschedule(ctx context.Context, id string, retryCount int, nextRetryAt time.Time, lastError string, now time.Time) error
	MarkFailed(ctx context.Context, id string, retryCount int, lastError string, now time.Time) error
}

// Worker polls the delivery queue on a fixed interval. Claimed items
// are processed one at a time; each outcome is independent, so one
// stuck delivery cannot block the batch.
type Worker struct {
	store  Store
	sender Sender
	log    *zap.Logger

	pollInterval time.Duration
	batchSize    int
	batchTimeout time.Duration
	baseDelay    time.Duration
	maxRetries   int

	now func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWorker creates a delivery retry worker. Call Start to begin
// polling.
func NewWorker(st Store, sender Sender, cfg config.QueueConfig, log *zap.Logger) *Worker {
	batchTimeout := cfg.BatchTimeout.Duration()
	if batchTimeout <= 0 {
		batchTimeout = time.Minute
	}
	return &Worker{
		store:        st,
		sender:       sender,
		log:          log.Named("queue"),
		pollInterval: cfg.PollInterval.Duration(),
		batchSize:    cfg.BatchSize,
		batchTimeout: batchTimeout,
		baseDelay:    cfg.BaseDelay.Duration(),
		maxRetries:   cfg.MaxRetries,
		now:          time.Now,
	}
}

// Start begins the background polling loop. Idempotent in the sense
// that starting a running worker is an error, not a second goroutine.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("worker is already running")
	}
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true

	w.log.Info("delivery worker started",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Int("batch_size", w.batchSize),
		zap.Int("max_retries", w.maxRetries),
	)

	go w.run()
	return nil
}

// Stop signals the polling loop to exit and waits for the current
// batch to finish. Stopping a stopped worker is a no-op.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	done := w.doneCh
	w.mu.Unlock()

	<-done
	w.log.Info("delivery worker stopped")
}

func (w *Worker) run() {
	defer close(w.doneCh)
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("worker goroutine panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
		}
	}()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.safeRunOnce()
		case <-w.stopCh:
			return
		}
	}
}

func (w *Worker) safeRunOnce() {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("delivery batch panicked, continuing",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.batchTimeout)
	defer cancel()

	if _, err := w.RunOnce(ctx); err != nil {
		w.log.Error("delivery batch failed", zap.Error(err))
	}
}

// RunOnce claims one batch of due items and processes each. It
// returns the number of items processed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	now := w.now().UTC()

	items, err := w.store.ClaimBatch(ctx, now, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("claiming batch: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	claimedTotal.Add(float64(len(items)))
	for _, item := range items {
		w.processItem(ctx, item)
	}
	return len(items), nil
}

// transitionTimeout bounds one store state transition. Transitions get
// fresh contexts, never the batch context: a claimed item whose
// delivery attempt outlived the batch deadline must still be
// rescheduled or failed, or it would sit in processing forever.
const transitionTimeout = 5 * time.Second

func transitionContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), transitionTimeout)
}

// processItem attempts one delivery and applies the state machine:
// success terminates the item, a transient failure reschedules it with
// exponential backoff until retries are exhausted, and a permanent
// failure terminates it immediately.
func (w *Worker) processItem(ctx context.Context, item *store.QueueItem) {
	now := w.now().UTC()
	err := w.sender.Post(ctx, []byte(item.Payload))

	tctx, cancel := transitionContext()
	defer cancel()

	if err == nil {
		if err := w.store.MarkSucceeded(tctx, item.ID, now); err != nil {
			w.log.Error("marking delivery succeeded", zap.String("item_id", item.ID), zap.Error(err))
			return
		}
		deliveriesTotal.WithLabelValues("succeeded").Inc()
		w.log.Info("delivery succeeded",
			zap.String("item_id", item.ID),
			zap.String("ticket_id", item.TicketID),
			zap.Int("retry_count", item.RetryCount),
		)
		return
	}

	if !delivery.IsTransient(err) {
		if err := w.store.MarkFailed(tctx, item.ID, item.RetryCount, err.Error(), now); err != nil {
			w.log.Error("marking delivery failed", zap.String("item_id", item.ID), zap.Error(err))
			return
		}
		deliveriesTotal.WithLabelValues("failed").Inc()
		w.log.Error("delivery failed permanently, manual follow-up required",
			zap.String("item_id", item.ID),
			zap.String("ticket_id", item.TicketID),
			zap.Error(err),
		)
		return
	}

	retryCount := item.RetryCount + 1
	if retryCount >= w.maxRetries {
		if err := w.store.MarkFailed(tctx, item.ID, retryCount, err.Error(), now); err != nil {
			w.log.Error("marking delivery failed", zap.String("item_id", item.ID), zap.Error(err))
			return
		}
		deliveriesTotal.WithLabelValues("failed").Inc()
		w.log.Error("delivery retries exhausted, manual follow-up required",
			zap.String("item_id", item.ID),
			zap.String("ticket_id", item.TicketID),
			zap.Int("retry_count", retryCount),
			zap.Error(err),
		)
		return
	}

	backoff := w.baseDelay * time.Duration(1<<retryCount)
	nextRetryAt := now.Add(backoff)
	if err := w.store.Reschedule(tctx, item.ID, retryCount, nextRetryAt, err.Error(), now); err != nil {
		w.log.Error("rescheduling delivery", zap.String("item_id", item.ID), zap.Error(err))
		return
	}
	deliveriesTotal.WithLabelValues("rescheduled").Inc()
	w.log.Warn("delivery failed, rescheduled",
		zap.String("item_id", item.ID),
		zap.String("ticket_id", item.TicketID),
		zap.Int("retry_count", retryCount),
		zap.Duration("backoff", backoff),
	)
}

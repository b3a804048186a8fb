package mailer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brightpath/email-tracking/internal/config"
	"github.com/brightpath/email-tracking/internal/ledger"
	"github.com/brightpath/email-tracking/internal/pkg/logger"
)

// Worker drains the send queue and delivers through the transport. Failed
// sends are retried with exponential backoff until attempts run out, at
// which point the delivery record is marked failed.
type Worker struct {
	queue     *Queue
	store     *ledger.Store
	transport Transport
	cfg       config.WorkerConfig
	fromEmail string
	fromName  string
	workerID  string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWorker creates a send-queue worker.
func NewWorker(queue *Queue, store *ledger.Store, transport Transport,
	cfg config.WorkerConfig, mailerCfg config.MailerConfig) *Worker {
	return &Worker{
		queue:     queue,
		store:     store,
		transport: transport,
		cfg:       cfg,
		fromEmail: mailerCfg.FromEmail,
		fromName:  mailerCfg.FromName,
		workerID:  fmt.Sprintf("sender-%s", uuid.New().String()[:8]),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the polling loop.
func (w *Worker) Start() {
	logger.Info("send worker starting", "worker_id", w.workerID,
		"batch_size", w.cfg.BatchSize, "interval", w.cfg.Interval().String())

	w.wg.Add(1)
	go w.run()
}

// Stop signals the loop and waits for the in-flight batch to finish.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	logger.Info("send worker stopped", "worker_id", w.workerID)
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.drainOnce()
		}
	}
}

// drainOnce claims and processes one batch. Kept separate from the loop so
// tests can drive it directly.
func (w *Worker) drainOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Claims abandoned by a crashed or timed-out worker go back to queued
	// before this batch is picked, so no send is ever stranded in 'claimed'.
	if n, err := w.queue.ReleaseStale(ctx, w.cfg.StaleAfter()); err != nil {
		logger.Error("release stale claims failed", "error", err)
	} else if n > 0 {
		logger.Warn("requeued stale claims", "count", n, "worker_id", w.workerID)
	}

	items, err := w.queue.Claim(ctx, w.workerID, w.cfg.BatchSize)
	if err != nil {
		logger.Error("claim batch failed", "error", err)
		return
	}

	for _, item := range items {
		w.processItem(ctx, item)
	}
}

func (w *Worker) processItem(ctx context.Context, item QueueItem) {
	msg := &Message{
		To:        item.Recipient,
		FromEmail: w.fromEmail,
		FromName:  w.fromName,
		Subject:   item.Subject,
		HTML:      item.HTML,
		Text:      item.Text,
	}

	result, err := w.transport.Send(ctx, msg)
	if err == nil && result.Success {
		if err := w.queue.MarkSent(ctx, item.ID, result.MessageID); err != nil {
			logger.Error("mark sent failed", "queue_id", item.ID, "error", err)
		}
		if result.MessageID != "" {
			if err := w.store.SetMessageID(ctx, item.TrackingToken, result.MessageID); err != nil {
				logger.Warn("attach message id failed", "queue_id", item.ID, "error", err)
			}
		}
		logger.Info("email sent", "recipient", item.Recipient,
			"message_id", result.MessageID, "attempt", item.Attempts+1)
		return
	}

	reason := "send failed"
	if err != nil {
		reason = err.Error()
	} else if result.Reason != "" {
		reason = result.Reason
	}

	attempts := item.Attempts + 1
	if attempts >= w.cfg.MaxAttempts {
		logger.Error("send attempts exhausted", "recipient", item.Recipient,
			"queue_id", item.ID, "attempts", attempts, "reason", reason)
		if err := w.queue.MarkExhausted(ctx, item.ID, attempts, reason); err != nil {
			logger.Error("mark exhausted failed", "queue_id", item.ID, "error", err)
		}
		if err := w.store.MarkFailed(ctx, item.TrackingToken); err != nil {
			logger.Error("mark delivery failed errored", "queue_id", item.ID, "error", err)
		}
		return
	}

	delay := Backoff(w.cfg.RetryBase(), w.cfg.RetryMax(), attempts)
	logger.Warn("send failed, rescheduling", "recipient", item.Recipient,
		"queue_id", item.ID, "attempt", attempts, "retry_in", delay.String(), "reason", reason)
	if err := w.queue.Reschedule(ctx, item.ID, attempts, time.Now().Add(delay), reason); err != nil {
		logger.Error("reschedule failed", "queue_id", item.ID, "error", err)
	}
}

// Backoff returns the delay before the next attempt: base doubled per prior
// attempt, capped at max. attempt is 1-based.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

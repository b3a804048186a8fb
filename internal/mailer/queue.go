package mailer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QueueItem is one pending send in the database-backed queue.
type QueueItem struct {
	ID            uuid.UUID
	Recipient     string
	Subject       string
	HTML          string
	Text          string
	TrackingToken string
	Attempts      int
	NextAttemptAt time.Time
	CreatedAt     time.Time
}

// Queue persists pending sends so delivery survives restarts and can be
// retried with backoff. Claiming uses SKIP LOCKED so multiple workers never
// contend over the same rows.
type Queue struct {
	db *sql.DB
}

func NewQueue(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue adds a rendered message to the queue.
func (q *Queue) Enqueue(ctx context.Context, item *QueueItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	_, err := q.db.ExecContext(ctx, `INSERT INTO send_queue
		(id, recipient, subject, html_content, text_content, tracking_token,
		 status, attempts, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'queued', 0, NOW(), NOW())`,
		item.ID, item.Recipient, item.Subject, item.HTML, item.Text, item.TrackingToken)
	if err != nil {
		return fmt.Errorf("enqueue send: %w", err)
	}
	return nil
}

// Claim atomically claims up to batchSize due items for workerID.
func (q *Queue) Claim(ctx context.Context, workerID string, batchSize int) ([]QueueItem, error) {
	rows, err := q.db.QueryContext(ctx, `
		WITH claimed AS (
			UPDATE send_queue
			SET status = 'claimed', worker_id = $1, claimed_at = NOW()
			WHERE id IN (
				SELECT id FROM send_queue
				WHERE status = 'queued' AND next_attempt_at <= NOW()
				ORDER BY next_attempt_at ASC
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, recipient, subject, html_content,
				COALESCE(text_content, '') AS text_content,
				tracking_token, attempts, created_at
		)
		SELECT id, recipient, subject, html_content, text_content,
			tracking_token, attempts, created_at
		FROM claimed`, workerID, batchSize)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	var items []QueueItem
	for rows.Next() {
		var item QueueItem
		if err := rows.Scan(&item.ID, &item.Recipient, &item.Subject, &item.HTML,
			&item.Text, &item.TrackingToken, &item.Attempts, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ReleaseStale requeues claims older than olderThan. A worker that dies or
// times out between claiming and finishing a batch leaves rows in
// 'claimed'; without this sweep those sends would be lost silently.
func (q *Queue) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE send_queue
		SET status = 'queued', worker_id = NULL, claimed_at = NULL
		WHERE status = 'claimed' AND claimed_at < NOW() - ($1 * interval '1 second')`,
		int64(olderThan.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	return res.RowsAffected()
}

// MarkSent finalizes a delivered item.
func (q *Queue) MarkSent(ctx context.Context, id uuid.UUID, messageID string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE send_queue SET status = 'sent', message_id = $1, sent_at = NOW() WHERE id = $2`,
		messageID, id)
	return err
}

// Reschedule returns an item to the queue for a later attempt.
func (q *Queue) Reschedule(ctx context.Context, id uuid.UUID, attempts int, nextAt time.Time, lastError string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE send_queue
		SET status = 'queued', attempts = $1, next_attempt_at = $2, last_error = $3,
		    worker_id = NULL, claimed_at = NULL
		WHERE id = $4`,
		attempts, nextAt, lastError, id)
	return err
}

// MarkExhausted parks an item that has run out of attempts.
func (q *Queue) MarkExhausted(ctx context.Context, id uuid.UUID, attempts int, lastError string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE send_queue SET status = 'failed', attempts = $1, last_error = $2 WHERE id = $3`,
		attempts, lastError, id)
	return err
}

package mailer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/brightpath/email-tracking/internal/config"
	"github.com/brightpath/email-tracking/internal/ledger"
)

// fakeTransport returns a scripted result or error for every send.
type fakeTransport struct {
	result *SendResult
	err    error
	sent   []*Message
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Send(ctx context.Context, msg *Message) (*SendResult, error) {
	f.sent = append(f.sent, msg)
	return f.result, f.err
}

func setupWorker(t *testing.T, transport Transport) (*Worker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	w := NewWorker(NewQueue(db), ledger.NewStore(db), transport,
		config.WorkerConfig{BatchSize: 10, IntervalSeconds: 1, MaxAttempts: 3,
			RetryBaseSeconds: 30, RetryMaxSeconds: 900, StaleClaimSeconds: 300},
		config.MailerConfig{FromEmail: "no-reply@brightpath.io", FromName: "BrightPath"})
	return w, mock
}

func TestProcessItemSuccess(t *testing.T) {
	transport := &fakeTransport{result: &SendResult{Success: true, MessageID: "msg-1"}}
	w, mock := setupWorker(t, transport)
	item := QueueItem{ID: uuid.New(), Recipient: "student@example.com",
		Subject: "Welcome", HTML: "<p>hi</p>", TrackingToken: "tok"}

	mock.ExpectExec("UPDATE send_queue").
		WithArgs("msg-1", item.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE delivery_records").
		WithArgs("msg-1", "tok").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w.processItem(context.Background(), item)

	if len(transport.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(transport.sent))
	}
	if transport.sent[0].FromEmail != "no-reply@brightpath.io" {
		t.Errorf("from = %q", transport.sent[0].FromEmail)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestProcessItemReschedulesOnFailure(t *testing.T) {
	transport := &fakeTransport{err: errors.New("connection refused")}
	w, mock := setupWorker(t, transport)
	item := QueueItem{ID: uuid.New(), Recipient: "student@example.com",
		TrackingToken: "tok", Attempts: 0}

	mock.ExpectExec("UPDATE send_queue").
		WithArgs(1, sqlmock.AnyArg(), "connection refused", item.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w.processItem(context.Background(), item)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestProcessItemExhaustsAttempts(t *testing.T) {
	transport := &fakeTransport{result: &SendResult{Success: false, Reason: "mailbox full"}}
	w, mock := setupWorker(t, transport)
	// Two prior attempts; this failure is the third and last.
	item := QueueItem{ID: uuid.New(), Recipient: "student@example.com",
		TrackingToken: "tok", Attempts: 2}

	mock.ExpectExec("UPDATE send_queue").
		WithArgs(3, "mailbox full", item.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE delivery_records").
		WithArgs(ledger.StatusFailed, "tok").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w.processItem(context.Background(), item)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDrainOnceRequeuesStaleClaimsFirst(t *testing.T) {
	transport := &fakeTransport{result: &SendResult{Success: true}}
	w, mock := setupWorker(t, transport)

	// Expectations are ordered: the sweep that rescues abandoned claims
	// must run before the next batch is taken.
	mock.ExpectExec(`UPDATE send_queue SET status = 'queued', worker_id = NULL, claimed_at = NULL`).
		WithArgs(int64(300)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("WITH claimed AS").
		WithArgs(w.workerID, 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "recipient", "subject", "html_content", "text_content",
			"tracking_token", "attempts", "created_at",
		}))

	w.drainOnce()

	if len(transport.sent) != 0 {
		t.Errorf("sent %d messages from an empty batch", len(transport.sent))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestBackoff(t *testing.T) {
	base := 30 * time.Second
	max := 900 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{4, 240 * time.Second},
		{5, 480 * time.Second},
		{6, 900 * time.Second},
		{10, 900 * time.Second},
		{0, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(base, max, tt.attempt); got != tt.want {
			t.Errorf("Backoff(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

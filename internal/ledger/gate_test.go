package ledger

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupGate(t *testing.T) (*PreferenceGate, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewPreferenceGate(NewStore(db), rdb, time.Minute), mock, mr
}

func TestGateReadThrough(t *testing.T) {
	gate, mock, mr := setupGate(t)
	ctx := context.Background()

	// First lookup misses the cache and hits the database.
	mock.ExpectQuery("SELECT opt_out FROM email_preferences").
		WithArgs("student@example.com", "progress_nudge", GlobalEmailType).
		WillReturnRows(sqlmock.NewRows([]string{"opt_out"}).AddRow(true))

	out, err := gate.IsOptedOut(ctx, "Student@Example.com", "progress_nudge")
	if err != nil {
		t.Fatalf("IsOptedOut: %v", err)
	}
	if !out {
		t.Error("first lookup should report opted-out")
	}

	if got, err := mr.Get("optout:progress_nudge:student@example.com"); err != nil || got != "1" {
		t.Errorf("cache entry = %q, %v; want \"1\"", got, err)
	}

	// Second lookup is served from the cache; no DB expectation is set, so a
	// store hit would fail the mock.
	out, err = gate.IsOptedOut(ctx, "student@example.com", "progress_nudge")
	if err != nil {
		t.Fatalf("cached IsOptedOut: %v", err)
	}
	if !out {
		t.Error("cached lookup should report opted-out")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGateCachesOptedIn(t *testing.T) {
	gate, mock, mr := setupGate(t)

	mock.ExpectQuery("SELECT opt_out FROM email_preferences").
		WithArgs("student@example.com", "receipt", GlobalEmailType).
		WillReturnError(sql.ErrNoRows)

	out, err := gate.IsOptedOut(context.Background(), "student@example.com", "receipt")
	if err != nil {
		t.Fatalf("IsOptedOut: %v", err)
	}
	if out {
		t.Error("absent preference should mean opted-in")
	}
	if got, _ := mr.Get("optout:receipt:student@example.com"); got != "0" {
		t.Errorf("opted-in answer not cached, got %q", got)
	}
}

func TestGateSetPreferenceInvalidates(t *testing.T) {
	gate, mock, mr := setupGate(t)
	ctx := context.Background()

	mr.Set("optout:progress_nudge:student@example.com", "0")

	mock.ExpectExec("INSERT INTO email_preferences").
		WithArgs("student@example.com", "progress_nudge", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if _, err := gate.SetPreference(ctx, "student@example.com", "progress_nudge", true); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}

	if mr.Exists("optout:progress_nudge:student@example.com") {
		t.Error("stale cache entry survived the upsert")
	}
}

func TestGateGlobalInvalidatesAllTypes(t *testing.T) {
	gate, mock, mr := setupGate(t)
	ctx := context.Background()

	mr.Set("optout:progress_nudge:student@example.com", "0")
	mr.Set("optout:receipt:student@example.com", "0")
	mr.Set("optout:receipt:other@example.com", "0")

	mock.ExpectExec("INSERT INTO email_preferences").
		WithArgs("student@example.com", GlobalEmailType, true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if _, err := gate.SetPreference(ctx, "student@example.com", GlobalEmailType, true); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}

	if mr.Exists("optout:progress_nudge:student@example.com") ||
		mr.Exists("optout:receipt:student@example.com") {
		t.Error("global opt-out did not invalidate the recipient's cached types")
	}
	if !mr.Exists("optout:receipt:other@example.com") {
		t.Error("another recipient's cache entry was invalidated")
	}
}

func TestGateWithoutRedis(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	gate := NewPreferenceGate(NewStore(db), nil, 0)

	mock.ExpectQuery("SELECT opt_out FROM email_preferences").
		WithArgs("student@example.com", "receipt", GlobalEmailType).
		WillReturnError(sql.ErrNoRows)

	out, err := gate.IsOptedOut(context.Background(), "student@example.com", "receipt")
	if err != nil {
		t.Fatalf("IsOptedOut: %v", err)
	}
	if out {
		t.Error("expected opted-in")
	}
}

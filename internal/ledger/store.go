package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a tracking token matches no delivery record.
var ErrNotFound = errors.New("delivery record not found")

// Store provides database operations for delivery records and preferences.
type Store struct {
	db *sql.DB
}

// NewStore creates a new ledger store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// LogSend creates and persists a new delivery record.
func (s *Store) LogSend(ctx context.Context, recipient, subject, templateName, trackingToken string, status Status) (*DeliveryRecord, error) {
	rec := &DeliveryRecord{
		ID:            uuid.New(),
		Recipient:     strings.ToLower(strings.TrimSpace(recipient)),
		Subject:       subject,
		TemplateName:  templateName,
		TrackingToken: trackingToken,
		Status:        status,
		CreatedAt:     time.Now().UTC(),
	}

	query := `INSERT INTO delivery_records (id, recipient, subject, template_name, tracking_token,
		status, open_count, click_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7)`

	_, err := s.db.ExecContext(ctx, query, rec.ID, rec.Recipient, rec.Subject, rec.TemplateName,
		rec.TrackingToken, rec.Status, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("log send: %w", err)
	}
	return rec, nil
}

// SetMessageID attaches the transport message id after a successful send.
func (s *Store) SetMessageID(ctx context.Context, trackingToken, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE delivery_records SET message_id = $1 WHERE tracking_token = $2`,
		messageID, trackingToken)
	return err
}

// MarkFailed records a terminal send failure. failed is reachable only from
// the send attempt, never from open/click handlers.
func (s *Store) MarkFailed(ctx context.Context, trackingToken string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE delivery_records SET status = $1 WHERE tracking_token = $2`,
		StatusFailed, trackingToken)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByToken retrieves a delivery record by its tracking token.
func (s *Store) GetByToken(ctx context.Context, trackingToken string) (*DeliveryRecord, error) {
	query := `SELECT id, recipient, subject, template_name, tracking_token, COALESCE(message_id, ''),
		status, open_count, click_count, first_opened_at, first_clicked_at, created_at
		FROM delivery_records WHERE tracking_token = $1`

	rec := &DeliveryRecord{}
	err := s.db.QueryRowContext(ctx, query, trackingToken).Scan(
		&rec.ID, &rec.Recipient, &rec.Subject, &rec.TemplateName, &rec.TrackingToken,
		&rec.MessageID, &rec.Status, &rec.OpenCount, &rec.ClickCount,
		&rec.FirstOpenedAt, &rec.FirstClickedAt, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordOpen applies one open event. The counter increment, first-open
// timestamp, and status upgrade happen in a single UPDATE so concurrent
// opens of the same token never lose an increment. A click status is not
// downgraded back to opened.
func (s *Store) RecordOpen(ctx context.Context, trackingToken string, meta EventMeta) error {
	query := `UPDATE delivery_records SET
		open_count = open_count + 1,
		first_opened_at = COALESCE(first_opened_at, NOW()),
		status = CASE WHEN status = 'sent' THEN 'opened' ELSE status END
		WHERE tracking_token = $1`

	res, err := s.db.ExecContext(ctx, query, trackingToken)
	if err != nil {
		return fmt.Errorf("record open: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordClick applies one click event: atomic counter increment, first-click
// timestamp, unconditional upgrade to clicked, and an append to the click
// history. Click is always the most engaged state.
func (s *Store) RecordClick(ctx context.Context, trackingToken, linkURL string, meta EventMeta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var deliveryID uuid.UUID
	err = tx.QueryRowContext(ctx, `UPDATE delivery_records SET
		click_count = click_count + 1,
		first_clicked_at = COALESCE(first_clicked_at, NOW()),
		status = 'clicked'
		WHERE tracking_token = $1
		RETURNING id`, trackingToken).Scan(&deliveryID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("record click: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO delivery_click_events
		(id, delivery_id, clicked_at, url, user_agent, ip_address)
		VALUES ($1, $2, NOW(), $3, $4, $5)`,
		uuid.New(), deliveryID, linkURL, meta.UserAgent, meta.IPAddress)
	if err != nil {
		return fmt.Errorf("append click event: %w", err)
	}

	return tx.Commit()
}

// GetClickEvents returns a delivery's click history, oldest first.
func (s *Store) GetClickEvents(ctx context.Context, deliveryID uuid.UUID) ([]*ClickEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, delivery_id, clicked_at, url,
		COALESCE(user_agent, ''), COALESCE(ip_address, '')
		FROM delivery_click_events WHERE delivery_id = $1 ORDER BY clicked_at`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*ClickEvent
	for rows.Next() {
		ev := &ClickEvent{}
		if err := rows.Scan(&ev.ID, &ev.DeliveryID, &ev.ClickedAt, &ev.URL, &ev.UserAgent, &ev.IPAddress); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// IsOptedOut reports whether sends of emailType to email are suppressed.
// Both the exact type and the global "*" row are consulted; no record means
// opted-in.
func (s *Store) IsOptedOut(ctx context.Context, email, emailType string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var optOut bool
	err := s.db.QueryRowContext(ctx, `SELECT opt_out FROM email_preferences
		WHERE email = $1 AND email_type IN ($2, $3) AND opt_out = true LIMIT 1`,
		email, emailType, GlobalEmailType).Scan(&optOut)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return optOut, nil
}

// SetPreference upserts a preference row.
func (s *Store) SetPreference(ctx context.Context, email, emailType string, optOut bool) (*Preference, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `INSERT INTO email_preferences (email, email_type, opt_out, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (email, email_type) DO UPDATE SET opt_out = EXCLUDED.opt_out, updated_at = NOW()`,
		email, emailType, optOut, now)
	if err != nil {
		return nil, fmt.Errorf("set preference: %w", err)
	}

	return &Preference{Email: email, EmailType: emailType, OptOut: optOut, UpdatedAt: now}, nil
}

// GetPreferences returns all preference rows for a recipient.
func (s *Store) GetPreferences(ctx context.Context, email string) ([]*Preference, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	rows, err := s.db.QueryContext(ctx, `SELECT email, email_type, opt_out, updated_at
		FROM email_preferences WHERE email = $1 ORDER BY email_type`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prefs []*Preference
	for rows.Next() {
		p := &Preference{}
		if err := rows.Scan(&p.Email, &p.EmailType, &p.OptOut, &p.UpdatedAt); err != nil {
			return nil, err
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// GetAnalytics returns per-(template, status) counts over the half-open
// range [start, end). An empty templateName matches all templates.
func (s *Store) GetAnalytics(ctx context.Context, start, end time.Time, templateName string) ([]AnalyticsRow, error) {
	query := `SELECT template_name, status, COUNT(*) FROM delivery_records
		WHERE created_at >= $1 AND created_at < $2`
	args := []interface{}{start, end}
	if templateName != "" {
		query += ` AND template_name = $3`
		args = append(args, templateName)
	}
	query += ` GROUP BY template_name, status ORDER BY template_name, status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnalyticsRow
	for rows.Next() {
		var row AnalyticsRow
		if err := rows.Scan(&row.TemplateName, &row.Status, &row.Count); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Package ledger persists one record per outbound email and keeps
// idempotent-per-event open/click bookkeeping plus the recipient
// preference gate.
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Status is the latest recorded disposition of a delivery, for display only.
// Counters persist regardless of status. Transitions are monotonic:
// sent -> opened -> clicked. failed is terminal and reachable only from the
// send attempt itself.
type Status string

const (
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
	StatusOpened  Status = "opened"
	StatusClicked Status = "clicked"
)

// DeliveryRecord describes one outbound email and its engagement history.
// The tracking token, not the internal ID, is the public correlation key.
type DeliveryRecord struct {
	ID             uuid.UUID  `json:"id"`
	Recipient      string     `json:"recipient"`
	Subject        string     `json:"subject"`
	TemplateName   string     `json:"template_name"`
	TrackingToken  string     `json:"tracking_token"`
	MessageID      string     `json:"message_id,omitempty"`
	Status         Status     `json:"status"`
	OpenCount      int        `json:"open_count"`
	ClickCount     int        `json:"click_count"`
	FirstOpenedAt  *time.Time `json:"first_opened_at,omitempty"`
	FirstClickedAt *time.Time `json:"first_clicked_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ClickEvent is one entry in a delivery's append-only click history.
type ClickEvent struct {
	ID         uuid.UUID `json:"id"`
	DeliveryID uuid.UUID `json:"delivery_id"`
	ClickedAt  time.Time `json:"clicked_at"`
	URL        string    `json:"url"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
}

// EventMeta carries request metadata captured at the tracking boundary.
type EventMeta struct {
	UserAgent string
	IPAddress string
}

// Preference is a recipient's standing opt-out instruction for one email
// type. EmailType "*" opts out of everything. Absence implies opted-in.
type Preference struct {
	Email     string    `json:"email"`
	EmailType string    `json:"email_type"`
	OptOut    bool      `json:"opt_out"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GlobalEmailType is the wildcard preference row matching every email type.
const GlobalEmailType = "*"

// AnalyticsRow is one (template, status) bucket of the analytics aggregate.
type AnalyticsRow struct {
	TemplateName string `json:"template_name"`
	Status       Status `json:"status"`
	Count        int    `json:"count"`
}

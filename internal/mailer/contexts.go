// Package mailer renders and dispatches transactional email for the
// learning platform, with recipient preferences enforced before any send
// and tracking rewrites applied to every outgoing body.
package mailer

import (
	"fmt"
	"time"
)

// TemplateContext is one of the closed set of transactional email kinds.
// Kind doubles as the preference email type a recipient can opt out of.
type TemplateContext interface {
	Kind() string
	TemplateName() string
	Subject() string
	Vars() map[string]interface{}
}

// EnrollmentWelcome greets a student who just enrolled in a course.
type EnrollmentWelcome struct {
	StudentName string
	CourseName  string
	CourseURL   string
	StartDate   time.Time
}

func (c EnrollmentWelcome) Kind() string         { return "enrollment_welcome" }
func (c EnrollmentWelcome) TemplateName() string { return "enrollment_welcome" }
func (c EnrollmentWelcome) Subject() string {
	return fmt.Sprintf("Welcome to %s", c.CourseName)
}
func (c EnrollmentWelcome) Vars() map[string]interface{} {
	return map[string]interface{}{
		"student_name": c.StudentName,
		"course_name":  c.CourseName,
		"course_url":   c.CourseURL,
		"start_date":   c.StartDate,
	}
}

// ProgressNudge reminds a student to resume a course they have stalled on.
type ProgressNudge struct {
	StudentName     string
	CourseName      string
	ResumeURL       string
	PercentComplete int
	LastActiveAt    time.Time
}

func (c ProgressNudge) Kind() string         { return "progress_nudge" }
func (c ProgressNudge) TemplateName() string { return "progress_nudge" }
func (c ProgressNudge) Subject() string {
	return fmt.Sprintf("Pick up where you left off in %s", c.CourseName)
}
func (c ProgressNudge) Vars() map[string]interface{} {
	return map[string]interface{}{
		"student_name":     c.StudentName,
		"course_name":      c.CourseName,
		"resume_url":       c.ResumeURL,
		"percent_complete": c.PercentComplete,
		"last_active_at":   c.LastActiveAt,
	}
}

// CertificateIssued tells a student their completion certificate is ready.
type CertificateIssued struct {
	StudentName    string
	CourseName     string
	CertificateURL string
	IssuedAt       time.Time
}

func (c CertificateIssued) Kind() string         { return "certificate_issued" }
func (c CertificateIssued) TemplateName() string { return "certificate_issued" }
func (c CertificateIssued) Subject() string {
	return fmt.Sprintf("Your certificate for %s is ready", c.CourseName)
}
func (c CertificateIssued) Vars() map[string]interface{} {
	return map[string]interface{}{
		"student_name":    c.StudentName,
		"course_name":     c.CourseName,
		"certificate_url": c.CertificateURL,
		"issued_at":       c.IssuedAt,
	}
}

// PaymentReceipt confirms a course purchase.
type PaymentReceipt struct {
	StudentName string
	CourseName  string
	Amount      float64
	Currency    string
	InvoiceID   string
	PaidAt      time.Time
}

func (c PaymentReceipt) Kind() string         { return "payment_receipt" }
func (c PaymentReceipt) TemplateName() string { return "payment_receipt" }
func (c PaymentReceipt) Subject() string {
	return fmt.Sprintf("Receipt for %s", c.CourseName)
}
func (c PaymentReceipt) Vars() map[string]interface{} {
	return map[string]interface{}{
		"student_name": c.StudentName,
		"course_name":  c.CourseName,
		"amount":       c.Amount,
		"currency":     c.Currency,
		"invoice_id":   c.InvoiceID,
		"paid_at":      c.PaidAt,
	}
}

// PasswordReset carries a reset link. It is always deliverable; account
// security email ignores marketing-style opt-outs, so its kind is empty.
type PasswordReset struct {
	StudentName string
	ResetURL    string
	ExpiresAt   time.Time
}

func (c PasswordReset) Kind() string         { return "" }
func (c PasswordReset) TemplateName() string { return "password_reset" }
func (c PasswordReset) Subject() string      { return "Reset your BrightPath password" }
func (c PasswordReset) Vars() map[string]interface{} {
	return map[string]interface{}{
		"student_name": c.StudentName,
		"reset_url":    c.ResetURL,
		"expires_at":   c.ExpiresAt,
	}
}

package mailer

import "context"

// Message is a fully rendered email ready for the wire.
type Message struct {
	To        string
	FromEmail string
	FromName  string
	Subject   string
	HTML      string
	Text      string
}

// SendResult reports the provider's disposition of one message. A provider
// rejection is a result, not an error; errors are reserved for transport
// failures worth retrying.
type SendResult struct {
	Success   bool
	MessageID string
	Reason    string
}

// Transport delivers rendered messages through an email service provider.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg *Message) (*SendResult, error)
}

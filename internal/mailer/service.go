package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brightpath/email-tracking/internal/config"
	"github.com/brightpath/email-tracking/internal/ledger"
	"github.com/brightpath/email-tracking/internal/pkg/logger"
	"github.com/brightpath/email-tracking/internal/tokens"
	"github.com/brightpath/email-tracking/internal/tracking"
)

// SendOutcome is the result of a send request. A suppressed send is a
// normal outcome, not an error: the recipient asked not to hear from us.
type SendOutcome struct {
	Suppressed bool
	Record     *ledger.DeliveryRecord
}

// Service renders, tracks, and enqueues transactional email. The actual
// wire delivery happens asynchronously in the queue worker.
type Service struct {
	gate       *ledger.PreferenceGate
	store      *ledger.Store
	signer     *tracking.Signer
	rewriter   *tracking.Rewriter
	renderer   *Renderer
	queue      *Queue
	tokenStore tokens.Store
	cfg        config.MailerConfig
}

// NewService wires the send pipeline together.
func NewService(gate *ledger.PreferenceGate, store *ledger.Store, signer *tracking.Signer,
	rewriter *tracking.Rewriter, renderer *Renderer, queue *Queue,
	tokenStore tokens.Store, cfg config.MailerConfig) *Service {
	return &Service{
		gate:       gate,
		store:      store,
		signer:     signer,
		rewriter:   rewriter,
		renderer:   renderer,
		queue:      queue,
		tokenStore: tokenStore,
		cfg:        cfg,
	}
}

// Send checks preferences, renders the template, applies tracking rewrites,
// logs the delivery record, and enqueues the message. The preference check
// comes first so a suppressed recipient costs no render work and leaves no
// queue row.
func (s *Service) Send(ctx context.Context, to string, tctx TemplateContext) (*SendOutcome, error) {
	to = strings.ToLower(strings.TrimSpace(to))
	kind := tctx.Kind()

	if kind != "" {
		optedOut, err := s.gate.IsOptedOut(ctx, to, kind)
		if err != nil {
			return nil, fmt.Errorf("preference check: %w", err)
		}
		if optedOut {
			logger.Info("send suppressed by preference", "recipient", to, "email_type", kind)
			return &SendOutcome{Suppressed: true}, nil
		}
	}

	html, err := s.renderer.Render(tctx.TemplateName(), tctx.Vars())
	if err != nil {
		return nil, err
	}

	token, err := s.signer.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate tracking token: %w", err)
	}

	if kind != "" {
		html += s.unsubscribeFooter(to, kind)
		unsubToken := s.signer.SignUnsubscribe(to, kind)
		ttl := s.cfg.UnsubscribeTTL()
		if ttl <= 0 {
			ttl = 30 * 24 * time.Hour
		}
		if err := s.tokenStore.Put(ctx, tokens.UnsubscribeKey(to, kind), unsubToken, ttl); err != nil {
			return nil, fmt.Errorf("register unsubscribe token: %w", err)
		}
	}

	tracked := s.rewriter.Apply(html, token)

	// The delivery record is written before the queue row: a queued message
	// whose token has no record would lose every open and click on it.
	rec, err := s.store.LogSend(ctx, to, tctx.Subject(), tctx.TemplateName(), token, ledger.StatusSent)
	if err != nil {
		return nil, err
	}

	item := &QueueItem{
		Recipient:     to,
		Subject:       tctx.Subject(),
		HTML:          tracked,
		TrackingToken: token,
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		// Nothing will deliver this record; it must not read as sent.
		if mfErr := s.store.MarkFailed(ctx, token); mfErr != nil {
			logger.Error("mark failed after enqueue error", "recipient", to, "error", mfErr)
		}
		return nil, err
	}

	logger.Info("email queued", "recipient", to, "template", tctx.TemplateName(), "queue_id", item.ID)

	return &SendOutcome{Record: rec}, nil
}

// unsubscribeFooter renders the standard opt-out footer. The link is on the
// rewriter's skip list, so click rewriting leaves it untouched.
func (s *Service) unsubscribeFooter(email, emailType string) string {
	return fmt.Sprintf(
		`<p style="font-size:12px;color:#888"><a href="%s">Unsubscribe from these emails</a></p>`,
		s.rewriter.UnsubscribeURL(email, emailType))
}

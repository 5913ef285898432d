package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

var (
	// ErrMissingSignature means the request carried no signature header
	ErrMissingSignature = errors.New("missing webhook signature")
	// ErrInvalidSignature means the payload did not verify against the shared secret
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

type eventHandler func(ctx context.Context, event stripe.Event) error

func (s *Service) eventHandlers() map[string]eventHandler {
	return map[string]eventHandler{
		"checkout.session.completed":    s.handleCheckoutCompleted,
		"customer.subscription.created": s.handleSubscriptionChanged,
		"customer.subscription.updated": s.handleSubscriptionChanged,
		"customer.subscription.deleted": s.handleSubscriptionDeleted,
		"invoice.payment_succeeded":     s.handleInvoicePaymentSucceeded,
		"invoice.paid":                  s.handleInvoicePaymentSucceeded,
		"invoice.payment_failed":        s.handleInvoicePaymentFailed,
		"invoice.upcoming":              s.handleInvoiceUpcoming,
		"invoice.created":               s.handleInvoiceCreated,
	}
}

// HandleWebhook verifies and dispatches a provider webhook delivery
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if signature == "" {
		return ErrMissingSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return s.ProcessEvent(ctx, event)
}

// ProcessEvent runs the handler for a verified event. Events already in the
// processed log are acknowledged without running again; an event is only
// logged once its handler succeeded so failures are redelivered.
func (s *Service) ProcessEvent(ctx context.Context, event stripe.Event) error {
	eventType := string(event.Type)
	log := s.log.With("event_id", event.ID, "event_type", eventType)

	handler, ok := s.handlers[eventType]
	if !ok {
		log.Debug("unhandled webhook event type")
		s.metrics.WebhookEvent(eventType, "ignored")
		return nil
	}

	if s.events != nil && event.ID != "" {
		seen, err := s.events.Seen(ctx, event.ID)
		if err != nil {
			s.metrics.WebhookEvent(eventType, "error")
			return fmt.Errorf("failed to check processed events: %w", err)
		}
		if seen {
			log.Info("duplicate webhook event skipped")
			s.metrics.WebhookEvent(eventType, "duplicate")
			return nil
		}
	}

	log.Info("webhook event received")
	if err := handler(ctx, event); err != nil {
		log.Error("webhook handler failed", "error", err)
		s.metrics.WebhookEvent(eventType, "error")
		return err
	}

	if s.events != nil && event.ID != "" {
		if err := s.events.MarkProcessed(ctx, event.ID, eventType); err != nil {
			// handlers are idempotent; a redelivery only repeats work
			log.Error("failed to record processed event", "error", err)
		}
	}

	s.metrics.WebhookEvent(eventType, "processed")
	return nil
}

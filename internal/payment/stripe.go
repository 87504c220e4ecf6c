// Package payment talks to the external payment providers.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"holidaysync/internal/models"
	"holidaysync/internal/util"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Webhook parse errors
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

// Stripe event types the reconciler acts on
const (
	stripeEventSucceeded = "payment_intent.succeeded"
	stripeEventFailed    = "payment_intent.payment_failed"
)

// IntentRequest describes a PaymentIntent to create.
type IntentRequest struct {
	BookingID        string
	BookingReference string
	AmountCents      int64
	Currency         string
}

// Intent is the client-facing part of a created PaymentIntent.
type Intent struct {
	ID           string
	ClientSecret string
}

// StripeGateway creates PaymentIntents and authenticates webhook deliveries.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway creates a gateway using the live Stripe API
func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	return &StripeGateway{api: client.New(secretKey, nil), webhookSecret: webhookSecret}
}

// NewStripeGatewayWithURL creates a gateway that sends API calls to baseURL
func NewStripeGatewayWithURL(secretKey, webhookSecret, baseURL string) *StripeGateway {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(baseURL),
		MaxNetworkRetries: stripe.Int64(0),
	})
	backends := &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	return &StripeGateway{api: client.New(secretKey, backends), webhookSecret: webhookSecret}
}

// CreatePaymentIntent creates a PaymentIntent tagged with the booking it pays for
func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	start := time.Now()
	defer func() {
		util.PaymentProviderLatency.WithLabelValues("stripe", "create_intent").Observe(time.Since(start).Seconds())
	}()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("bookingId", req.BookingID)
	params.AddMetadata("bookingReference", req.BookingReference)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event. It
// returns nil for event types that do not affect bookings.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*models.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var outcome models.PaymentOutcome
	switch string(event.Type) {
	case stripeEventSucceeded:
		outcome = models.PaymentOutcomeSucceeded
	case stripeEventFailed:
		outcome = models.PaymentOutcomeFailed
	default:
		return nil, nil
	}

	if event.Data == nil {
		return nil, fmt.Errorf("%w: stripe event %s has no data", ErrMalformedEvent, event.ID)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: failed to decode payment intent: %v", ErrMalformedEvent, err)
	}

	amount := pi.AmountReceived
	if amount == 0 {
		amount = pi.Amount
	}
	return &models.PaymentEvent{
		EventID:     event.ID,
		Type:        string(event.Type),
		Ref:         models.PaymentRef{Provider: models.ProviderStripe, ExternalID: pi.ID},
		BookingID:   pi.Metadata["bookingId"],
		AmountCents: amount,
		Outcome:     outcome,
	}, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

package service

import (
	"context"
	"errors"
	"strings"

	"holidaysync/internal/auth"
	"holidaysync/internal/models"
	"holidaysync/internal/payment"
	"holidaysync/internal/store"
	"holidaysync/internal/util"

	"go.uber.org/zap"
)

// StripeGateway creates Stripe PaymentIntents
type StripeGateway interface {
	CreatePaymentIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error)
}

// PayPalGateway creates and captures PayPal orders
type PayPalGateway interface {
	CreateOrder(ctx context.Context, req payment.OrderRequest) (string, error)
	CaptureOrder(ctx context.Context, orderID string) (*payment.Capture, error)
}

// PaymentService starts payment attempts for PENDING bookings. Completion
// arrives later through the Reconciler.
type PaymentService struct {
	repo        store.Repository
	stripe      StripeGateway
	paypal      PayPalGateway
	reconciler  *Reconciler
	currency    string
	guestUserID string
	logger      *zap.Logger
}

// NewPaymentService creates a new payment service. Either gateway may be nil
// when the provider is not configured.
func NewPaymentService(
	repo store.Repository,
	stripe StripeGateway,
	paypal PayPalGateway,
	reconciler *Reconciler,
	currency, guestUserID string,
) *PaymentService {
	return &PaymentService{
		repo:        repo,
		stripe:      stripe,
		paypal:      paypal,
		reconciler:  reconciler,
		currency:    currency,
		guestUserID: guestUserID,
		logger:      util.GetLogger(),
	}
}

// StripePayment is what the client needs to confirm a card payment
type StripePayment struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

// PayPalOrder identifies a PayPal order awaiting buyer approval
type PayPalOrder struct {
	OrderID string `json:"orderId"`
}

// CaptureResult reports the booking state after a PayPal capture
type CaptureResult struct {
	BookingID string               `json:"bookingId"`
	Status    models.BookingStatus `json:"status"`
	Outcome   Outcome              `json:"outcome"`
}

// payableBooking loads a booking the caller can pay for.
func (ps *PaymentService) payableBooking(ctx context.Context, caller *auth.Caller, bookingID string) (*models.Booking, error) {
	if !idPattern.MatchString(bookingID) {
		return nil, validationError("bookingId is invalid")
	}
	booking, err := ps.repo.GetBooking(ctx, bookingID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError("booking", err)
	}
	if err != nil {
		return nil, internalError("failed to load booking", err)
	}
	if !visibleTo(booking, caller, ps.guestUserID) {
		return nil, notFoundError("booking", nil)
	}
	if booking.Status != models.BookingStatusPending {
		return nil, newError(CodeConflict, "booking is not awaiting payment", nil)
	}
	return booking, nil
}

func (ps *PaymentService) recordAttempt(ctx context.Context, booking *models.Booking, ref models.PaymentRef) error {
	return ps.repo.InTx(ctx, func(tx store.Tx) error {
		current, err := tx.GetPaymentForUpdate(ctx, booking.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if current != nil && current.Status == models.PaymentStatusSucceeded {
			return newError(CodeConflict, "booking is already paid", nil)
		}
		return tx.UpsertPayment(ctx, &models.Payment{
			BookingID:   booking.ID,
			PaymentRef:  ref,
			AmountCents: booking.TotalPriceCents,
			Status:      models.PaymentStatusPending,
		})
	})
}

// StartStripePayment creates a PaymentIntent for the booking total
func (ps *PaymentService) StartStripePayment(ctx context.Context, caller *auth.Caller, bookingID string) (*StripePayment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.StartStripePayment", "booking_id", bookingID)
	defer span.End()

	if ps.stripe == nil {
		return nil, newError(CodeUnavailable, "card payments are not configured", nil)
	}
	booking, err := ps.payableBooking(ctx, caller, bookingID)
	if err != nil {
		return nil, err
	}

	util.PaymentAttemptsTotal.WithLabelValues(string(models.ProviderStripe)).Inc()
	intent, err := ps.stripe.CreatePaymentIntent(ctx, payment.IntentRequest{
		BookingID:        booking.ID,
		BookingReference: booking.BookingReference,
		AmountCents:      booking.TotalPriceCents,
		Currency:         ps.currency,
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, internalError("failed to start card payment", err)
	}

	ref := models.PaymentRef{Provider: models.ProviderStripe, ExternalID: intent.ID}
	if err := ps.recordAttempt(ctx, booking, ref); err != nil {
		return nil, asServiceError(err, "failed to record payment attempt")
	}

	ps.logger.Info("Stripe payment started",
		zap.String("booking_id", booking.ID),
		zap.String("payment_intent", intent.ID))
	return &StripePayment{ClientSecret: intent.ClientSecret, PaymentIntentID: intent.ID}, nil
}

// StartPayPalOrder creates a PayPal order for the booking total
func (ps *PaymentService) StartPayPalOrder(ctx context.Context, caller *auth.Caller, bookingID string) (*PayPalOrder, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.StartPayPalOrder", "booking_id", bookingID)
	defer span.End()

	if ps.paypal == nil {
		return nil, newError(CodeUnavailable, "PayPal is not configured", nil)
	}
	booking, err := ps.payableBooking(ctx, caller, bookingID)
	if err != nil {
		return nil, err
	}

	util.PaymentAttemptsTotal.WithLabelValues(string(models.ProviderPayPal)).Inc()
	orderID, err := ps.paypal.CreateOrder(ctx, payment.OrderRequest{
		BookingReference: booking.BookingReference,
		AmountCents:      booking.TotalPriceCents,
		Currency:         ps.currency,
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, internalError("failed to create PayPal order", err)
	}

	ref := models.PaymentRef{Provider: models.ProviderPayPal, ExternalID: orderID}
	if err := ps.recordAttempt(ctx, booking, ref); err != nil {
		return nil, asServiceError(err, "failed to record payment attempt")
	}

	ps.logger.Info("PayPal order created",
		zap.String("booking_id", booking.ID),
		zap.String("order_id", orderID))
	return &PayPalOrder{OrderID: orderID}, nil
}

// CapturePayPalOrder captures an approved order and reconciles the result. The
// order must be the booking's current payment attempt.
func (ps *PaymentService) CapturePayPalOrder(ctx context.Context, caller *auth.Caller, bookingID, orderID string) (*CaptureResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CapturePayPalOrder",
		"booking_id", bookingID, "order_id", orderID)
	defer span.End()

	if ps.paypal == nil {
		return nil, newError(CodeUnavailable, "PayPal is not configured", nil)
	}
	if strings.TrimSpace(orderID) == "" {
		return nil, validationError("orderId is required")
	}
	if !idPattern.MatchString(bookingID) {
		return nil, validationError("bookingId is invalid")
	}

	booking, err := ps.repo.GetBooking(ctx, bookingID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError("booking", err)
	}
	if err != nil {
		return nil, internalError("failed to load booking", err)
	}
	if !visibleTo(booking, caller, ps.guestUserID) {
		return nil, notFoundError("booking", nil)
	}

	current, err := ps.repo.GetPaymentByBookingID(ctx, bookingID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, internalError("failed to load payment", err)
	}
	ref := models.PaymentRef{Provider: models.ProviderPayPal, ExternalID: orderID}
	if current == nil || current.PaymentRef != ref {
		return nil, newError(CodeConflict, "order does not belong to this booking", nil)
	}
	if current.Status == models.PaymentStatusSucceeded {
		// PayPal refuses a second capture of the same order.
		return &CaptureResult{BookingID: bookingID, Status: booking.Status, Outcome: OutcomeDuplicate}, nil
	}

	capture, err := ps.paypal.CaptureOrder(ctx, orderID)
	if err != nil {
		util.RecordError(span, err)
		return nil, internalError("failed to capture PayPal order", err)
	}
	if capture.ReferenceID != "" && capture.ReferenceID != booking.BookingReference {
		ps.logger.Error("PayPal capture reference mismatch",
			zap.String("booking_id", bookingID),
			zap.String("reference_id", capture.ReferenceID))
		return nil, newError(CodeConflict, "order does not belong to this booking", nil)
	}

	ev := models.PaymentEvent{
		EventID:     "paypal:capture:" + orderID,
		Type:        "paypal.capture",
		Ref:         ref,
		BookingID:   bookingID,
		AmountCents: capture.AmountCents,
		Outcome:     models.PaymentOutcomeFailed,
	}
	if capture.Completed() {
		ev.Outcome = models.PaymentOutcomeSucceeded
	} else {
		// A failed capture must not shadow a later successful one.
		ev.EventID += ":" + strings.ToLower(capture.Status)
	}

	outcome, err := ps.reconciler.HandleEvent(ctx, ev)
	if err != nil {
		return nil, err
	}

	updated, err := ps.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, internalError("failed to load booking", err)
	}
	return &CaptureResult{BookingID: bookingID, Status: updated.Status, Outcome: outcome}, nil
}

func asServiceError(err error, msg string) error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return internalError(msg, err)
}

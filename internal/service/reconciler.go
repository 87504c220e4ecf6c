package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"holidaysync/internal/models"
	"holidaysync/internal/store"
	"holidaysync/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome describes what reconciling one provider event did.
type Outcome string

const (
	OutcomeConfirmed        Outcome = "confirmed"
	OutcomeAlreadyConfirmed Outcome = "already_confirmed"
	OutcomeCancelledBooking Outcome = "cancelled_booking"
	OutcomePaymentFailed    Outcome = "payment_failed"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeUnknownBooking   Outcome = "unknown_booking"
	OutcomeIgnored          Outcome = "ignored"
)

// Reconciler applies authenticated payment provider events to payments and
// bookings. Each event is applied at most once.
type Reconciler struct {
	repo      store.Repository
	publisher EventPublisher
	now       func() time.Time
	logger    *zap.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(repo store.Repository, publisher EventPublisher) *Reconciler {
	return &Reconciler{
		repo:      repo,
		publisher: publisher,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// HandleEvent reconciles ev. A nil error means the provider may stop
// redelivering; storage failures are returned so the event comes back.
func (r *Reconciler) HandleEvent(ctx context.Context, ev models.PaymentEvent) (Outcome, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.HandleEvent",
		"event_id", ev.EventID, "booking_id", ev.BookingID, "outcome", string(ev.Outcome))
	defer span.End()

	provider := strings.ToLower(string(ev.Ref.Provider))
	if ev.EventID == "" {
		return "", validationError("event id is required")
	}

	var (
		outcome Outcome
		err     error
	)
	switch ev.Outcome {
	case models.PaymentOutcomeSucceeded:
		outcome, err = r.handleSucceeded(ctx, ev)
	case models.PaymentOutcomeFailed:
		outcome, err = r.handleFailed(ctx, ev)
	default:
		return "", validationError("unsupported payment outcome %q", ev.Outcome)
	}
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues(provider, "error").Inc()
		util.RecordError(span, err)
		return "", err
	}

	util.WebhookEventsTotal.WithLabelValues(provider, string(outcome)).Inc()
	return outcome, nil
}

func (r *Reconciler) handleSucceeded(ctx context.Context, ev models.PaymentEvent) (Outcome, error) {
	var (
		outcome Outcome
		booking *models.Booking
		prior   *models.PaymentRef
	)

	err := r.repo.InTx(ctx, func(tx store.Tx) error {
		fresh, err := tx.MarkEventProcessed(ctx, ev.EventID, ev.Type)
		if err != nil {
			return err
		}
		if !fresh {
			outcome = OutcomeDuplicate
			return nil
		}

		booking, err = tx.GetBookingForUpdate(ctx, ev.BookingID)
		if errors.Is(err, store.ErrNotFound) {
			outcome = OutcomeUnknownBooking
			return nil
		}
		if err != nil {
			return err
		}

		amount := ev.AmountCents
		if amount == 0 {
			amount = booking.TotalPriceCents
		}
		if amount != booking.TotalPriceCents {
			r.logger.Warn("Captured amount differs from booking total",
				zap.String("booking_id", booking.ID),
				zap.Int64("captured_cents", amount),
				zap.Int64("total_cents", booking.TotalPriceCents))
		}

		existing, err := tx.GetPaymentForUpdate(ctx, booking.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if existing != nil && booking.Status == models.BookingStatusConfirmed &&
			existing.Status == models.PaymentStatusSucceeded && existing.PaymentRef != ev.Ref {
			prior = &existing.PaymentRef
		}

		err = tx.UpsertPayment(ctx, &models.Payment{
			BookingID:   booking.ID,
			PaymentRef:  ev.Ref,
			AmountCents: amount,
			Status:      models.PaymentStatusSucceeded,
		})
		if err != nil {
			return err
		}

		switch booking.Status {
		case models.BookingStatusConfirmed:
			outcome = OutcomeAlreadyConfirmed
			return nil
		case models.BookingStatusCancelled:
			outcome = OutcomeCancelledBooking
			return nil
		}

		if err := tx.UpdateBookingStatus(ctx, booking.ID, models.BookingStatusConfirmed); err != nil {
			return err
		}
		outcome = OutcomeConfirmed
		return nil
	})
	if err != nil {
		return "", internalError("failed to reconcile payment", fmt.Errorf("event %s: %w", ev.EventID, err))
	}

	switch outcome {
	case OutcomeConfirmed:
		util.PaymentSuccessTotal.WithLabelValues(string(ev.Ref.Provider)).Inc()
		util.BookingsConfirmedTotal.Inc()
		r.logger.Info("Booking confirmed by payment",
			zap.String("booking_id", ev.BookingID),
			zap.String("provider", string(ev.Ref.Provider)),
			zap.String("external_id", ev.Ref.ExternalID))
		r.publishConfirmed(ctx, ev.BookingID)
	case OutcomeAlreadyConfirmed:
		if prior != nil {
			r.logger.Warn("Second successful payment for a confirmed booking, possible double charge",
				zap.String("booking_id", ev.BookingID),
				zap.String("previous_provider", string(prior.Provider)),
				zap.String("previous_external_id", prior.ExternalID),
				zap.String("provider", string(ev.Ref.Provider)),
				zap.String("external_id", ev.Ref.ExternalID))
		}
	case OutcomeCancelledBooking:
		r.logger.Warn("Payment succeeded for a cancelled booking, manual refund needed",
			zap.String("booking_id", ev.BookingID),
			zap.String("external_id", ev.Ref.ExternalID))
	case OutcomeUnknownBooking:
		r.logger.Warn("Payment event for unknown booking",
			zap.String("event_id", ev.EventID),
			zap.String("booking_id", ev.BookingID))
	case OutcomeDuplicate:
		r.logger.Debug("Duplicate payment event", zap.String("event_id", ev.EventID))
	}
	return outcome, nil
}

func (r *Reconciler) handleFailed(ctx context.Context, ev models.PaymentEvent) (Outcome, error) {
	var outcome Outcome

	err := r.repo.InTx(ctx, func(tx store.Tx) error {
		fresh, err := tx.MarkEventProcessed(ctx, ev.EventID, ev.Type)
		if err != nil {
			return err
		}
		if !fresh {
			outcome = OutcomeDuplicate
			return nil
		}

		payment, err := tx.GetPaymentForUpdate(ctx, ev.BookingID)
		if errors.Is(err, store.ErrNotFound) {
			outcome = OutcomeUnknownBooking
			return nil
		}
		if err != nil {
			return err
		}

		// A late failure for an older attempt, or for one that already
		// succeeded, must not touch the current payment.
		if payment.PaymentRef != ev.Ref || payment.Status == models.PaymentStatusSucceeded {
			outcome = OutcomeIgnored
			return nil
		}

		payment.Status = models.PaymentStatusFailed
		if err := tx.UpsertPayment(ctx, payment); err != nil {
			return err
		}
		outcome = OutcomePaymentFailed
		return nil
	})
	if err != nil {
		return "", internalError("failed to reconcile payment", fmt.Errorf("event %s: %w", ev.EventID, err))
	}

	if outcome == OutcomePaymentFailed {
		util.PaymentFailedTotal.WithLabelValues(string(ev.Ref.Provider)).Inc()
		r.logger.Info("Payment failed",
			zap.String("booking_id", ev.BookingID),
			zap.String("external_id", ev.Ref.ExternalID))

		event := &models.PaymentFailedEvent{
			BaseEvent:  r.baseEvent(models.EventTypePaymentFailed),
			BookingID:  ev.BookingID,
			Provider:   ev.Ref.Provider,
			ExternalID: ev.Ref.ExternalID,
		}
		if err := r.publisher.PublishPaymentFailed(ctx, event); err != nil {
			r.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
		}
	}
	return outcome, nil
}

// publishConfirmed hands the confirmation to the notification pipeline. It
// runs after commit and never fails the reconciliation.
func (r *Reconciler) publishConfirmed(ctx context.Context, bookingID string) {
	details, err := r.repo.GetBookingDetails(ctx, bookingID)
	if err != nil {
		r.logger.Error("Failed to load booking for confirmation",
			zap.String("booking_id", bookingID), zap.Error(err))
		return
	}

	event := &models.BookingConfirmedEvent{
		BaseEvent:        r.baseEvent(models.EventTypeBookingConfirmed),
		BookingID:        details.ID,
		BookingReference: details.BookingReference,
		Email:            details.UserEmail,
		ActivityTitle:    details.ActivityTitle,
		TotalPriceCents:  details.TotalPriceCents,
		Date:             details.SlotStart,
	}
	if err := r.publisher.PublishBookingConfirmed(ctx, event); err != nil {
		r.logger.Error("Failed to publish BookingConfirmed event",
			zap.String("booking_id", bookingID), zap.Error(err))
	}
}

func (r *Reconciler) baseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: r.now(),
	}
}

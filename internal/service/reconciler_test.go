package service

import (
	"context"
	"testing"

	"holidaysync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func stripeRef(id string) models.PaymentRef {
	return models.PaymentRef{Provider: models.ProviderStripe, ExternalID: id}
}

func succeededEvent(eventID, bookingID, intentID string) models.PaymentEvent {
	return models.PaymentEvent{
		EventID:     eventID,
		Type:        "payment_intent.succeeded",
		Ref:         stripeRef(intentID),
		BookingID:   bookingID,
		AmountCents: priceCents * 2,
		Outcome:     models.PaymentOutcomeSucceeded,
	}
}

func TestReconcileSucceededConfirmsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.book(t, customer, 2)
	f.seedPayment(t, resp.BookingID, stripeRef("pi_1"), models.PaymentStatusPending)

	ev := succeededEvent("evt_1", resp.BookingID, "pi_1")

	outcome, err := f.reconciler.HandleEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)

	outcome, err = f.reconciler.HandleEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	assert.Equal(t, models.BookingStatusConfirmed, f.status(t, resp.BookingID))
	payment, err := f.repo.GetPaymentByBookingID(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)

	require.Len(t, f.pub.confirmed, 1)
	confirmed := f.pub.confirmed[0]
	assert.Equal(t, resp.BookingReference, confirmed.BookingReference)
	assert.Equal(t, customer.Email, confirmed.Email)
	assert.Equal(t, "Sunset Catamaran", confirmed.ActivityTitle)
	assert.Equal(t, priceCents*2, confirmed.TotalPriceCents)
	assert.False(t, confirmed.Date.IsZero())
}

func TestReconcileSucceededForConfirmedBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.book(t, customer, 2)

	_, err := f.reconciler.HandleEvent(ctx, succeededEvent("evt_1", resp.BookingID, "pi_1"))
	require.NoError(t, err)

	// A different delivery for the same payment, e.g. after a replay from the dashboard.
	outcome, err := f.reconciler.HandleEvent(ctx, succeededEvent("evt_2", resp.BookingID, "pi_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyConfirmed, outcome)

	assert.Len(t, f.pub.confirmed, 1)
	payment, err := f.repo.GetPaymentByBookingID(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)
}

func TestReconcileSecondProviderChargeIsFlagged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	core, logs := observer.New(zap.WarnLevel)
	f.reconciler.logger = zap.New(core)
	resp := f.book(t, customer, 2)

	paypalEv := succeededEvent("evt_1", resp.BookingID, "")
	paypalEv.Ref = models.PaymentRef{Provider: models.ProviderPayPal, ExternalID: "ORDER-1"}
	outcome, err := f.reconciler.HandleEvent(ctx, paypalEv)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)
	assert.Zero(t, logs.Len())

	outcome, err = f.reconciler.HandleEvent(ctx, succeededEvent("evt_2", resp.BookingID, "pi_old"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyConfirmed, outcome)

	flagged := logs.FilterMessageSnippet("possible double charge").All()
	require.Len(t, flagged, 1)
	fields := flagged[0].ContextMap()
	assert.Equal(t, "ORDER-1", fields["previous_external_id"])
	assert.Equal(t, "pi_old", fields["external_id"])

	// Replaying the same payment is not a second charge.
	_, err = f.reconciler.HandleEvent(ctx, succeededEvent("evt_3", resp.BookingID, "pi_old"))
	require.NoError(t, err)
	assert.Len(t, logs.FilterMessageSnippet("possible double charge").All(), 1)
}

func TestReconcileSucceededWithoutPriorPaymentRow(t *testing.T) {
	f := newFixture(t)
	resp := f.book(t, customer, 2)

	outcome, err := f.reconciler.HandleEvent(context.Background(), succeededEvent("evt_1", resp.BookingID, "pi_9"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)

	payment, err := f.repo.GetPaymentByBookingID(context.Background(), resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, stripeRef("pi_9"), payment.PaymentRef)
}

func TestReconcileSucceededDoesNotResurrectCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.book(t, customer, 2)
	_, err := f.bookings.Cancel(ctx, customer, resp.BookingID)
	require.NoError(t, err)

	outcome, err := f.reconciler.HandleEvent(ctx, succeededEvent("evt_1", resp.BookingID, "pi_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelledBooking, outcome)

	assert.Equal(t, models.BookingStatusCancelled, f.status(t, resp.BookingID))
	assert.Equal(t, 0, f.booked(t, slotID))
	assert.Empty(t, f.pub.confirmed)

	payment, err := f.repo.GetPaymentByBookingID(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)
}

func TestReconcileUnknownBooking(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.reconciler.HandleEvent(context.Background(), succeededEvent("evt_1", "ghost", "pi_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownBooking, outcome)
	assert.Empty(t, f.pub.confirmed)
}

func TestReconcileFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.book(t, customer, 2)
	f.seedPayment(t, resp.BookingID, stripeRef("pi_1"), models.PaymentStatusPending)

	ev := succeededEvent("evt_fail", resp.BookingID, "pi_1")
	ev.Outcome = models.PaymentOutcomeFailed
	ev.Type = "payment_intent.payment_failed"

	outcome, err := f.reconciler.HandleEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomePaymentFailed, outcome)

	payment, err := f.repo.GetPaymentByBookingID(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
	assert.Equal(t, models.BookingStatusPending, f.status(t, resp.BookingID))
	assert.Equal(t, 2, f.booked(t, slotID))
	require.Len(t, f.pub.failed, 1)

	// A retry with a new intent can still confirm the booking.
	outcome, err = f.reconciler.HandleEvent(ctx, succeededEvent("evt_ok", resp.BookingID, "pi_2"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)
}

func TestReconcileFailedNeverDowngrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.book(t, customer, 2)

	_, err := f.reconciler.HandleEvent(ctx, succeededEvent("evt_ok", resp.BookingID, "pi_1"))
	require.NoError(t, err)

	late := succeededEvent("evt_late", resp.BookingID, "pi_1")
	late.Outcome = models.PaymentOutcomeFailed
	outcome, err := f.reconciler.HandleEvent(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	payment, err := f.repo.GetPaymentByBookingID(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)
	assert.Equal(t, models.BookingStatusConfirmed, f.status(t, resp.BookingID))
}

func TestReconcileFailedForStaleAttempt(t *testing.T) {
	f := newFixture(t)
	resp := f.book(t, customer, 1)
	f.seedPayment(t, resp.BookingID, stripeRef("pi_new"), models.PaymentStatusPending)

	ev := succeededEvent("evt_old", resp.BookingID, "pi_old")
	ev.Outcome = models.PaymentOutcomeFailed
	outcome, err := f.reconciler.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	payment, err := f.repo.GetPaymentByBookingID(context.Background(), resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
}

func TestReconcilePublishFailureIsNotAnError(t *testing.T) {
	f := newFixture(t)
	resp := f.book(t, customer, 1)
	f.pub.err = errDiskFull

	outcome, err := f.reconciler.HandleEvent(context.Background(), succeededEvent("evt_1", resp.BookingID, "pi_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)
	assert.Equal(t, models.BookingStatusConfirmed, f.status(t, resp.BookingID))
}

func TestReconcileRejectsMalformedEvents(t *testing.T) {
	f := newFixture(t)

	_, err := f.reconciler.HandleEvent(context.Background(), models.PaymentEvent{Outcome: models.PaymentOutcomeSucceeded})
	assert.Equal(t, CodeValidation, ErrorCode(err))

	_, err = f.reconciler.HandleEvent(context.Background(), models.PaymentEvent{EventID: "evt", Outcome: "refunded"})
	assert.Equal(t, CodeValidation, ErrorCode(err))
}

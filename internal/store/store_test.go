package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"holidaysync/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore connects to TEST_DATABASE_URL and applies the schema.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Integration test - requires database (set TEST_DATABASE_URL)")
	}

	store, err := NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Migrate(context.Background(), "anonymous"))
	return store
}

func seedSlot(t *testing.T, store *Store, capacity int) (activityID, slotID string) {
	t.Helper()
	ctx := context.Background()

	activityID = uuid.NewString()
	slotID = uuid.NewString()

	_, err := store.GetDB().ExecContext(ctx,
		"INSERT INTO activities (id, title, price_cents) VALUES ($1, 'Harbour kayak', 4500)", activityID)
	require.NoError(t, err)

	start := time.Now().Add(48 * time.Hour)
	_, err = store.GetDB().ExecContext(ctx,
		"INSERT INTO availability_slots (id, activity_id, start_time, end_time, capacity) VALUES ($1, $2, $3, $4, $5)",
		slotID, activityID, start, start.Add(2*time.Hour), capacity)
	require.NoError(t, err)
	return activityID, slotID
}

func newBooking(activityID, slotID string, participants int) *models.Booking {
	return &models.Booking{
		ID:               uuid.NewString(),
		UserID:           "anonymous",
		ActivityID:       activityID,
		SlotID:           slotID,
		Participants:     participants,
		TotalPriceCents:  int64(participants) * 4500,
		BookingReference: "HS-" + uuid.NewString()[:6] + "-0001",
		Status:           models.BookingStatusPending,
	}
}

func TestReserveSlotIsConditional(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, slotID := seedSlot(t, store, 3)

	err := store.InTx(ctx, func(tx Tx) error { return tx.ReserveSlot(ctx, slotID, 2) })
	require.NoError(t, err)

	err = store.InTx(ctx, func(tx Tx) error { return tx.ReserveSlot(ctx, slotID, 2) })
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	err = store.InTx(ctx, func(tx Tx) error { return tx.ReserveSlot(ctx, uuid.NewString(), 1) })
	assert.ErrorIs(t, err, ErrNotFound)

	slot, err := store.GetSlot(ctx, slotID)
	require.NoError(t, err)
	assert.Equal(t, 2, slot.Booked)
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, slotID := seedSlot(t, store, 5)

	var wg sync.WaitGroup
	var ok, full int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.InTx(ctx, func(tx Tx) error { return tx.ReserveSlot(ctx, slotID, 1) })
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, ErrCapacityExceeded):
				atomic.AddInt32(&full, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), ok)
	assert.Equal(t, int32(15), full)

	slot, err := store.GetSlot(ctx, slotID)
	require.NoError(t, err)
	assert.Equal(t, 5, slot.Booked)
}

func TestInTxRollsBackReservation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, slotID := seedSlot(t, store, 4)

	boom := errors.New("boom")
	err := store.InTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.ReserveSlot(ctx, slotID, 3))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	slot, err := store.GetSlot(ctx, slotID)
	require.NoError(t, err)
	assert.Equal(t, 0, slot.Booked)
}

func TestInsertBookingUniqueness(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	activityID, slotID := seedSlot(t, store, 10)

	key := "checkout-" + uuid.NewString()
	first := newBooking(activityID, slotID, 1)
	first.IdempotencyKey = &key
	require.NoError(t, store.InTx(ctx, func(tx Tx) error { return tx.InsertBooking(ctx, first) }))
	assert.False(t, first.CreatedAt.IsZero())

	sameRef := newBooking(activityID, slotID, 1)
	sameRef.BookingReference = first.BookingReference
	err := store.InTx(ctx, func(tx Tx) error { return tx.InsertBooking(ctx, sameRef) })
	assert.ErrorIs(t, err, ErrDuplicateReference)

	sameKey := newBooking(activityID, slotID, 1)
	sameKey.IdempotencyKey = &key
	err = store.InTx(ctx, func(tx Tx) error { return tx.InsertBooking(ctx, sameKey) })
	assert.ErrorIs(t, err, ErrDuplicateIdempotencyKey)

	found, err := store.GetBookingByIdempotencyKey(ctx, "anonymous", key)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)
}

func TestMarkEventProcessedOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	eventID := "evt_" + uuid.NewString()

	var first, second bool
	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		var err error
		first, err = tx.MarkEventProcessed(ctx, eventID, "payment_intent.succeeded")
		return err
	}))
	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		var err error
		second, err = tx.MarkEventProcessed(ctx, eventID, "payment_intent.succeeded")
		return err
	}))

	assert.True(t, first)
	assert.False(t, second)
}

func TestUpsertPaymentReplacesAttempt(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	activityID, slotID := seedSlot(t, store, 10)
	booking := newBooking(activityID, slotID, 2)

	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertBooking(ctx, booking); err != nil {
			return err
		}
		return tx.UpsertPayment(ctx, &models.Payment{
			BookingID:   booking.ID,
			PaymentRef:  models.PaymentRef{Provider: models.ProviderStripe, ExternalID: "pi_1"},
			AmountCents: booking.TotalPriceCents,
			Status:      models.PaymentStatusPending,
		})
	}))

	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		return tx.UpsertPayment(ctx, &models.Payment{
			BookingID:   booking.ID,
			PaymentRef:  models.PaymentRef{Provider: models.ProviderPayPal, ExternalID: "paypal_ORDER1"},
			AmountCents: booking.TotalPriceCents,
			Status:      models.PaymentStatusSucceeded,
		})
	}))

	payment, err := store.GetPaymentByBookingID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderPayPal, payment.Provider)
	assert.Equal(t, "paypal_ORDER1", payment.ExternalID)
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)
}

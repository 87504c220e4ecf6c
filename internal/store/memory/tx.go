package memory

import (
	"context"
	"fmt"
	"time"

	"holidaysync/internal/models"
	"holidaysync/internal/store"
)

type memTx struct {
	st  *state
	now func() time.Time
}

func (t *memTx) ReserveSlot(ctx context.Context, slotID string, participants int) error {
	sl, ok := t.st.slots[slotID]
	if !ok {
		return fmt.Errorf("slot %s: %w", slotID, store.ErrNotFound)
	}
	if participants > sl.Remaining() {
		return fmt.Errorf("slot %s: %w", slotID, store.ErrCapacityExceeded)
	}
	sl.Booked += participants
	t.st.slots[slotID] = sl
	return nil
}

func (t *memTx) ReleaseSlot(ctx context.Context, slotID string, participants int) error {
	sl, ok := t.st.slots[slotID]
	if !ok {
		return fmt.Errorf("slot %s: %w", slotID, store.ErrNotFound)
	}
	sl.Booked -= participants
	if sl.Booked < 0 {
		sl.Booked = 0
	}
	t.st.slots[slotID] = sl
	return nil
}

func (t *memTx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	for _, b := range t.st.bookings {
		if b.BookingReference == booking.BookingReference {
			return store.ErrDuplicateReference
		}
		if booking.IdempotencyKey != nil && b.IdempotencyKey != nil &&
			b.UserID == booking.UserID && *b.IdempotencyKey == *booking.IdempotencyKey {
			return store.ErrDuplicateIdempotencyKey
		}
	}
	now := t.now()
	booking.CreatedAt = now
	booking.UpdatedAt = now
	t.st.bookings[booking.ID] = *booking
	return nil
}

func (t *memTx) GetBookingForUpdate(ctx context.Context, id string) (*models.Booking, error) {
	b, ok := t.st.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, store.ErrNotFound)
	}
	return &b, nil
}

func (t *memTx) UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus) error {
	b, ok := t.st.bookings[id]
	if !ok {
		return fmt.Errorf("booking %s: %w", id, store.ErrNotFound)
	}
	b.Status = status
	b.UpdatedAt = t.now()
	t.st.bookings[id] = b
	return nil
}

func (t *memTx) GetPaymentForUpdate(ctx context.Context, bookingID string) (*models.Payment, error) {
	p, ok := t.st.payments[bookingID]
	if !ok {
		return nil, fmt.Errorf("payment for booking %s: %w", bookingID, store.ErrNotFound)
	}
	return &p, nil
}

func (t *memTx) UpsertPayment(ctx context.Context, payment *models.Payment) error {
	now := t.now()
	if existing, ok := t.st.payments[payment.BookingID]; ok {
		payment.CreatedAt = existing.CreatedAt
	} else {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now
	t.st.payments[payment.BookingID] = *payment
	return nil
}

func (t *memTx) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	if _, ok := t.st.events[eventID]; ok {
		return false, nil
	}
	t.st.events[eventID] = models.ProcessedEvent{EventID: eventID, EventType: eventType, ProcessedAt: t.now()}
	return true, nil
}

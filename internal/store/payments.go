package store

import (
	"context"
	"fmt"

	"holidaysync/internal/models"
)

// GetPaymentByBookingID retrieves the payment attempt of a booking
func (s *Store) GetPaymentByBookingID(ctx context.Context, bookingID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE booking_id = $1", bookingID)
	if err != nil {
		return nil, notFound(err, "payment for booking", bookingID)
	}
	return &payment, nil
}

// GetPaymentForUpdate retrieves and locks the payment row of a booking
func (t *pgTx) GetPaymentForUpdate(ctx context.Context, bookingID string) (*models.Payment, error) {
	var payment models.Payment
	err := t.tx.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE booking_id = $1 FOR UPDATE", bookingID)
	if err != nil {
		return nil, notFound(err, "payment for booking", bookingID)
	}
	return &payment, nil
}

// UpsertPayment writes the payment attempt of a booking, replacing the previous one
func (t *pgTx) UpsertPayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (booking_id, provider, external_id, amount_cents, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (booking_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			external_id = EXCLUDED.external_id,
			amount_cents = EXCLUDED.amount_cents,
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING created_at, updated_at`

	err := t.tx.QueryRowxContext(ctx, query,
		payment.BookingID, payment.Provider, payment.ExternalID, payment.AmountCents, payment.Status,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert payment: %w", err)
	}
	return nil
}

// MarkEventProcessed records a provider event. It returns false when the event
// was already recorded.
func (t *pgTx) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"holidaysync/internal/models"
)

// GetBooking retrieves a booking by ID
func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.GetContext(ctx, &booking, "SELECT * FROM bookings WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "booking", id)
	}
	return &booking, nil
}

// GetBookingDetails retrieves a booking joined with its user, activity and slot
func (s *Store) GetBookingDetails(ctx context.Context, id string) (*models.BookingDetails, error) {
	var details models.BookingDetails
	err := s.db.GetContext(ctx, &details, `
		SELECT b.*, u.email AS user_email, a.title AS activity_title, sl.start_time AS slot_start
		FROM bookings b
		JOIN users u ON u.id = b.user_id
		JOIN activities a ON a.id = b.activity_id
		JOIN availability_slots sl ON sl.id = b.slot_id
		WHERE b.id = $1`, id)
	if err != nil {
		return nil, notFound(err, "booking", id)
	}
	return &details, nil
}

// GetBookingByIdempotencyKey returns the booking a user created with key, or nil
func (s *Store) GetBookingByIdempotencyKey(ctx context.Context, userID, key string) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.GetContext(ctx, &booking,
		"SELECT * FROM bookings WHERE user_id = $1 AND idempotency_key = $2", userID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListBookingsByUser retrieves bookings for a user, newest first
func (s *Store) ListBookingsByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := s.db.SelectContext(ctx, &bookings,
		"SELECT * FROM bookings WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return bookings, err
}

// ListBookings retrieves a page of all bookings, newest first
func (s *Store) ListBookings(ctx context.Context, limit, offset int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := s.db.SelectContext(ctx, &bookings,
		"SELECT * FROM bookings ORDER BY created_at DESC LIMIT $1 OFFSET $2", limit, offset)
	return bookings, err
}

// ListStalePendingBookings retrieves PENDING bookings created before the cutoff
// whose payment has not succeeded
func (s *Store) ListStalePendingBookings(ctx context.Context, createdBefore time.Time, limit int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := s.db.SelectContext(ctx, &bookings, `
		SELECT b.* FROM bookings b
		LEFT JOIN payments p ON p.booking_id = b.id
		WHERE b.status = 'PENDING' AND b.created_at < $1
		AND (p.status IS NULL OR p.status <> 'SUCCEEDED')
		ORDER BY b.created_at
		LIMIT $2`, createdBefore, limit)
	return bookings, err
}

// HasConfirmedBooking reports whether a user holds a CONFIRMED booking of an activity
func (s *Store) HasConfirmedBooking(ctx context.Context, userID, activityID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM bookings
		WHERE user_id = $1 AND activity_id = $2 AND status = 'CONFIRMED')`,
		userID, activityID)
	return exists, err
}

// InsertBooking creates a new booking row
func (t *pgTx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	query := `
		INSERT INTO bookings (id, user_id, activity_id, slot_id, participants,
			total_price_cents, booking_reference, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err := t.tx.QueryRowxContext(ctx, query,
		booking.ID, booking.UserID, booking.ActivityID, booking.SlotID, booking.Participants,
		booking.TotalPriceCents, booking.BookingReference, booking.Status, booking.IdempotencyKey,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case constraintBookingReference:
			return ErrDuplicateReference
		case constraintBookingIdempotency:
			return ErrDuplicateIdempotencyKey
		}
	}
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

// GetBookingForUpdate retrieves a booking and locks its row until the transaction ends
func (t *pgTx) GetBookingForUpdate(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := t.tx.GetContext(ctx, &booking, "SELECT * FROM bookings WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, notFound(err, "booking", id)
	}
	return &booking, nil
}

// UpdateBookingStatus updates booking status
func (t *pgTx) UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2", status, id)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	return nil
}

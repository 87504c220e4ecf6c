package store

import (
	"context"
	"fmt"

	"holidaysync/internal/models"
)

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

// GetActivity retrieves an activity by ID
func (s *Store) GetActivity(ctx context.Context, id string) (*models.Activity, error) {
	var activity models.Activity
	err := s.db.GetContext(ctx, &activity, "SELECT * FROM activities WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "activity", id)
	}
	return &activity, nil
}

// UpdateActivityPrice changes the list price. Existing bookings keep their snapshot.
func (s *Store) UpdateActivityPrice(ctx context.Context, id string, priceCents int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE activities SET price_cents = $1 WHERE id = $2", priceCents, id)
	if err != nil {
		return fmt.Errorf("failed to update activity price: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("activity %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetSlot retrieves an availability slot by ID
func (s *Store) GetSlot(ctx context.Context, id string) (*models.AvailabilitySlot, error) {
	var slot models.AvailabilitySlot
	err := s.db.GetContext(ctx, &slot, "SELECT * FROM availability_slots WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "slot", id)
	}
	return &slot, nil
}

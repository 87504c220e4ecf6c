package store

import (
	"context"
	"fmt"
)

// ReserveSlot adds participants to a slot's booked counter in a single
// guarded statement. Postgres re-checks the WHERE clause against the latest
// row version after waiting on a concurrent writer, so two callers can never
// both pass the capacity check on stale data.
func (t *pgTx) ReserveSlot(ctx context.Context, slotID string, participants int) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE availability_slots SET booked = booked + $1
		WHERE id = $2 AND booked + $1 <= capacity`,
		participants, slotID)
	if err != nil {
		return fmt.Errorf("failed to reserve slot: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read reserve result: %w", err)
	}
	if rows == 1 {
		return nil
	}

	var exists bool
	err = t.tx.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM availability_slots WHERE id = $1)", slotID)
	if err != nil {
		return fmt.Errorf("failed to probe slot: %w", err)
	}
	if !exists {
		return fmt.Errorf("slot %s: %w", slotID, ErrNotFound)
	}
	return fmt.Errorf("slot %s: %w", slotID, ErrCapacityExceeded)
}

// ReleaseSlot gives participants back to a slot, floored at zero.
func (t *pgTx) ReleaseSlot(ctx context.Context, slotID string, participants int) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE availability_slots SET booked = GREATEST(booked - $1, 0) WHERE id = $2",
		participants, slotID)
	if err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("slot %s: %w", slotID, ErrNotFound)
	}
	return nil
}

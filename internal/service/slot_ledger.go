package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"holidaysync/internal/store"
	"holidaysync/internal/util"

	"go.uber.org/zap"
)

// SlotLedger owns the booked counter of availability slots. It only works on a
// store.Tx so every change lands in the caller's unit of work.
type SlotLedger struct {
	logger *zap.Logger
}

// NewSlotLedger creates a new slot ledger
func NewSlotLedger() *SlotLedger {
	return &SlotLedger{logger: util.GetLogger()}
}

// Reserve takes participants seats from the slot, or fails with
// CAPACITY_EXCEEDED without changing anything.
func (l *SlotLedger) Reserve(ctx context.Context, tx store.Tx, slotID string, participants int) error {
	ctx, span := util.StartSpan(ctx, "SlotLedger.Reserve",
		"slot_id", slotID, "participants", strconv.Itoa(participants))
	defer span.End()

	if participants < 1 {
		return validationError("participants must be at least 1")
	}

	start := time.Now()
	err := tx.ReserveSlot(ctx, slotID, participants)
	util.SlotReserveLatency.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrCapacityExceeded):
		util.SlotCapacityExceededTotal.Inc()
		l.logger.Info("Slot capacity exceeded",
			zap.String("slot_id", slotID),
			zap.Int("participants", participants))
		return newError(CodeCapacityExceeded, "not enough seats left in this slot", err)
	case errors.Is(err, store.ErrNotFound):
		return notFoundError("slot", err)
	default:
		util.RecordError(span, err)
		return internalError("failed to reserve seats", err)
	}
}

// Release gives participants seats back to the slot. The counter never goes
// below zero.
func (l *SlotLedger) Release(ctx context.Context, tx store.Tx, slotID string, participants int) error {
	ctx, span := util.StartSpan(ctx, "SlotLedger.Release",
		"slot_id", slotID, "participants", strconv.Itoa(participants))
	defer span.End()

	if participants < 1 {
		return validationError("participants must be at least 1")
	}

	err := tx.ReleaseSlot(ctx, slotID, participants)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return notFoundError("slot", err)
	default:
		util.RecordError(span, err)
		return internalError("failed to release seats", err)
	}
}

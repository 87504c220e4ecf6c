package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"holidaysync/internal/auth"
	"holidaysync/internal/models"
	"holidaysync/internal/store"
	"holidaysync/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxReferenceAttempts = 5

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// BookingPolicy holds the business limits of booking creation.
type BookingPolicy struct {
	MaxParticipants int
	GuestUserID     string
}

// BookingService handles the booking lifecycle
type BookingService struct {
	repo         store.Repository
	ledger       *SlotLedger
	publisher    EventPublisher
	policy       BookingPolicy
	newReference func(time.Time) (string, error)
	now          func() time.Time
	logger       *zap.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	repo store.Repository,
	ledger *SlotLedger,
	publisher EventPublisher,
	policy BookingPolicy,
) *BookingService {
	if policy.MaxParticipants <= 0 {
		policy.MaxParticipants = 20
	}
	if policy.GuestUserID == "" {
		policy.GuestUserID = "anonymous"
	}
	return &BookingService{
		repo:         repo,
		ledger:       ledger,
		publisher:    publisher,
		policy:       policy,
		newReference: NewBookingReference,
		now:          time.Now,
		logger:       util.GetLogger(),
	}
}

// CreateBookingRequest represents a request to create a booking
type CreateBookingRequest struct {
	ActivityID     string `json:"activityId"`
	SlotID         string `json:"slotId"`
	Participants   int    `json:"participants"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// CreateBookingResponse represents the response after creating a booking
type CreateBookingResponse struct {
	BookingID          string               `json:"bookingId"`
	BookingReference   string               `json:"bookingReference"`
	TotalPriceCents    int64                `json:"totalPriceCents"`
	Status             models.BookingStatus `json:"status"`
	PaymentStepLocator string               `json:"paymentStepLocator"`
}

func newCreateBookingResponse(b *models.Booking) *CreateBookingResponse {
	return &CreateBookingResponse{
		BookingID:          b.ID,
		BookingReference:   b.BookingReference,
		TotalPriceCents:    b.TotalPriceCents,
		Status:             b.Status,
		PaymentStepLocator: "/checkout/" + b.ID,
	}
}

func (s *BookingService) validate(req *CreateBookingRequest) error {
	if !idPattern.MatchString(req.ActivityID) {
		return validationError("activityId is invalid")
	}
	if !idPattern.MatchString(req.SlotID) {
		return validationError("slotId is invalid")
	}
	if req.Participants < 1 || req.Participants > s.policy.MaxParticipants {
		return validationError("participants must be between 1 and %d", s.policy.MaxParticipants)
	}
	if len(req.IdempotencyKey) > 128 {
		return validationError("idempotency key is too long")
	}
	return nil
}

// resolveUser returns the user a booking is attributed to: the caller, or the
// guest user for anonymous checkouts.
func (s *BookingService) resolveUser(ctx context.Context, caller *auth.Caller) (string, error) {
	userID := s.policy.GuestUserID
	if caller != nil {
		userID = caller.UserID
	}

	_, err := s.repo.GetUser(ctx, userID)
	switch {
	case err == nil:
		return userID, nil
	case errors.Is(err, store.ErrNotFound) && caller == nil:
		return "", internalError("guest user is not provisioned", err)
	case errors.Is(err, store.ErrNotFound):
		return "", newError(CodeUnauthenticated, "unknown user", err)
	default:
		return "", internalError("failed to load user", err)
	}
}

// CreateBooking reserves seats and persists a PENDING booking in one transaction
func (s *BookingService) CreateBooking(ctx context.Context, caller *auth.Caller, req *CreateBookingRequest) (*CreateBookingResponse, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.CreateBooking",
		"activity_id", req.ActivityID, "slot_id", req.SlotID)
	defer span.End()

	if err := s.validate(req); err != nil {
		util.BookingsFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	userID, err := s.resolveUser(ctx, caller)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.repo.GetBookingByIdempotencyKey(ctx, userID, req.IdempotencyKey)
		if err != nil {
			return nil, internalError("failed to check idempotency", err)
		}
		if existing != nil {
			return s.replay(existing, req)
		}
	}

	activity, err := s.repo.GetActivity(ctx, req.ActivityID)
	if err != nil {
		return nil, s.lookupError("activity", err)
	}
	slot, err := s.repo.GetSlot(ctx, req.SlotID)
	if err != nil {
		return nil, s.lookupError("slot", err)
	}
	if slot.ActivityID != activity.ID {
		return nil, notFoundError("slot", nil)
	}

	booking := &models.Booking{
		ID:              uuid.New().String(),
		UserID:          userID,
		ActivityID:      activity.ID,
		SlotID:          slot.ID,
		Participants:    req.Participants,
		TotalPriceCents: activity.PriceCents * int64(req.Participants),
		Status:          models.BookingStatusPending,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		booking.IdempotencyKey = &key
	}

	for attempt := 1; ; attempt++ {
		booking.BookingReference, err = s.newReference(s.now())
		if err != nil {
			return nil, internalError("failed to create booking", err)
		}

		err = s.repo.InTx(ctx, func(tx store.Tx) error {
			if err := s.ledger.Reserve(ctx, tx, booking.SlotID, booking.Participants); err != nil {
				return err
			}
			return tx.InsertBooking(ctx, booking)
		})
		if errors.Is(err, store.ErrDuplicateReference) && attempt < maxReferenceAttempts {
			s.logger.Warn("Booking reference collision, retrying",
				zap.String("booking_reference", booking.BookingReference),
				zap.Int("attempt", attempt))
			continue
		}
		break
	}

	switch {
	case err == nil:
	case errors.Is(err, store.ErrDuplicateIdempotencyKey):
		existing, lerr := s.repo.GetBookingByIdempotencyKey(ctx, userID, req.IdempotencyKey)
		if lerr != nil || existing == nil {
			return nil, internalError("failed to load concurrent booking", lerr)
		}
		return s.replay(existing, req)
	default:
		util.BookingsFailedTotal.WithLabelValues(string(ErrorCode(err))).Inc()
		util.RecordError(span, err)
		var se *Error
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, internalError("failed to create booking", err)
	}

	util.BookingsCreatedTotal.Inc()
	s.logger.Info("Booking created",
		zap.String("booking_id", booking.ID),
		zap.String("booking_reference", booking.BookingReference),
		zap.String("slot_id", booking.SlotID),
		zap.Int("participants", booking.Participants))

	event := &models.BookingCreatedEvent{
		BaseEvent:        s.baseEvent(models.EventTypeBookingCreated),
		BookingID:        booking.ID,
		BookingReference: booking.BookingReference,
		UserID:           booking.UserID,
		SlotID:           booking.SlotID,
		Participants:     booking.Participants,
		TotalPriceCents:  booking.TotalPriceCents,
	}
	if err := s.publisher.PublishBookingCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish BookingCreated event", zap.Error(err))
	}

	return newCreateBookingResponse(booking), nil
}

// replay answers a retried request with the booking the key already produced.
func (s *BookingService) replay(existing *models.Booking, req *CreateBookingRequest) (*CreateBookingResponse, error) {
	if existing.ActivityID != req.ActivityID || existing.SlotID != req.SlotID || existing.Participants != req.Participants {
		return nil, newError(CodeConflict, "idempotency key was used for a different booking", nil)
	}
	s.logger.Info("Duplicate booking request detected",
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.String("booking_id", existing.ID))
	return newCreateBookingResponse(existing), nil
}

func (s *BookingService) lookupError(what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		util.BookingsFailedTotal.WithLabelValues("not_found").Inc()
		return notFoundError(what, err)
	}
	return internalError("failed to load "+what, err)
}

// Get returns a booking the caller is allowed to see
func (s *BookingService) Get(ctx context.Context, caller *auth.Caller, id string) (*models.Booking, error) {
	if !idPattern.MatchString(id) {
		return nil, validationError("booking id is invalid")
	}

	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, s.lookupError("booking", err)
	}
	if !visibleTo(booking, caller, s.policy.GuestUserID) {
		return nil, notFoundError("booking", nil)
	}
	return booking, nil
}

// ListForUser returns the caller's bookings, newest first
func (s *BookingService) ListForUser(ctx context.Context, caller *auth.Caller) ([]models.Booking, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	bookings, err := s.repo.ListBookingsByUser(ctx, caller.UserID)
	if err != nil {
		return nil, internalError("failed to list bookings", err)
	}
	return bookings, nil
}

// ListAll returns a page of every booking, for administrators
func (s *BookingService) ListAll(ctx context.Context, caller *auth.Caller, limit, offset int) ([]models.Booking, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	bookings, err := s.repo.ListBookings(ctx, limit, offset)
	if err != nil {
		return nil, internalError("failed to list bookings", err)
	}
	return bookings, nil
}

// canTransition applies the forward-only policy. Leaving a terminal state
// needs an explicit override.
func canTransition(from, to models.BookingStatus, override bool) bool {
	if from.Terminal() {
		return override
	}
	return to == models.BookingStatusConfirmed || to == models.BookingStatusCancelled
}

// UpdateStatus is the administrative status change. Seat accounting follows
// the status: entering CANCELLED releases seats, leaving it takes them again.
func (s *BookingService) UpdateStatus(ctx context.Context, caller *auth.Caller, id string, status models.BookingStatus, override bool) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.UpdateStatus",
		"booking_id", id, "status", string(status))
	defer span.End()

	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, validationError("unknown status %q", status)
	}

	var (
		updated *models.Booking
		from    models.BookingStatus
	)
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		booking, err := tx.GetBookingForUpdate(ctx, id)
		if err != nil {
			return s.lookupError("booking", err)
		}
		from = booking.Status
		updated = booking

		if booking.Status == status {
			return nil
		}
		if !canTransition(booking.Status, status, override) {
			return newError(CodeInvalidTransition,
				fmt.Sprintf("cannot move booking from %s to %s", booking.Status, status), nil)
		}

		if status == models.BookingStatusCancelled {
			if err := s.ledger.Release(ctx, tx, booking.SlotID, booking.Participants); err != nil {
				return err
			}
		}
		if booking.Status == models.BookingStatusCancelled {
			if err := s.ledger.Reserve(ctx, tx, booking.SlotID, booking.Participants); err != nil {
				return err
			}
		}

		if err := tx.UpdateBookingStatus(ctx, booking.ID, status); err != nil {
			return internalError("failed to update booking status", err)
		}
		booking.Status = status
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	if from != status {
		s.logger.Info("Booking status updated",
			zap.String("booking_id", id),
			zap.String("from", string(from)),
			zap.String("to", string(status)),
			zap.Bool("override", override),
			zap.String("admin_id", caller.UserID))
		if status == models.BookingStatusCancelled {
			s.publishCancelled(ctx, updated, "admin")
		}
	}
	return updated, nil
}

// Cancel lets the owner of a PENDING booking give its seats back
func (s *BookingService) Cancel(ctx context.Context, caller *auth.Caller, id string) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.Cancel", "booking_id", id)
	defer span.End()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	var cancelled *models.Booking
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		booking, err := tx.GetBookingForUpdate(ctx, id)
		if err != nil {
			return s.lookupError("booking", err)
		}
		if booking.UserID != caller.UserID && !caller.IsAdmin() {
			return notFoundError("booking", nil)
		}
		if booking.Status != models.BookingStatusPending {
			return newError(CodeInvalidTransition, "only pending bookings can be cancelled", nil)
		}
		if err := s.ledger.Release(ctx, tx, booking.SlotID, booking.Participants); err != nil {
			return err
		}
		if err := tx.UpdateBookingStatus(ctx, booking.ID, models.BookingStatusCancelled); err != nil {
			return internalError("failed to cancel booking", err)
		}
		booking.Status = models.BookingStatusCancelled
		cancelled = booking
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Booking cancelled", zap.String("booking_id", id), zap.String("user_id", caller.UserID))
	s.publishCancelled(ctx, cancelled, "customer")
	return cancelled, nil
}

// ExpirePending cancels PENDING bookings created before cutoff whose payment
// has not succeeded, releasing their seats. It returns how many were expired.
func (s *BookingService) ExpirePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.ExpirePending")
	defer span.End()

	stale, err := s.repo.ListStalePendingBookings(ctx, cutoff, limit)
	if err != nil {
		return 0, util.RecordError(span, fmt.Errorf("failed to list stale bookings: %w", err))
	}

	expired := 0
	for i := range stale {
		candidate := stale[i]
		var done *models.Booking

		err := s.repo.InTx(ctx, func(tx store.Tx) error {
			booking, err := tx.GetBookingForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if booking.Status != models.BookingStatusPending {
				return nil
			}
			payment, err := tx.GetPaymentForUpdate(ctx, booking.ID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if payment != nil && payment.Status == models.PaymentStatusSucceeded {
				return nil
			}
			if err := s.ledger.Release(ctx, tx, booking.SlotID, booking.Participants); err != nil {
				return err
			}
			if err := tx.UpdateBookingStatus(ctx, booking.ID, models.BookingStatusCancelled); err != nil {
				return err
			}
			booking.Status = models.BookingStatusCancelled
			done = booking
			return nil
		})
		if err != nil {
			s.logger.Error("Failed to expire booking",
				zap.String("booking_id", candidate.ID), zap.Error(err))
			continue
		}
		if done != nil {
			expired++
			s.publishCancelled(ctx, done, "expired")
		}
	}

	if expired > 0 {
		s.logger.Info("Expired pending bookings", zap.Int("count", expired))
	}
	return expired, nil
}

func (s *BookingService) publishCancelled(ctx context.Context, b *models.Booking, reason string) {
	util.BookingsCancelledTotal.WithLabelValues(reason).Inc()
	event := &models.BookingCancelledEvent{
		BaseEvent:    s.baseEvent(models.EventTypeBookingCancelled),
		BookingID:    b.ID,
		SlotID:       b.SlotID,
		Participants: b.Participants,
		Reason:       reason,
	}
	if err := s.publisher.PublishBookingCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish BookingCancelled event", zap.Error(err))
	}
}

func (s *BookingService) baseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: s.now(),
	}
}

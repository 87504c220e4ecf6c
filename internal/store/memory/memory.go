// Package memory is an in-process implementation of store.Repository. It
// serializes transactions behind one lock and applies each transaction to a
// private copy of the data, so a failed transaction leaves no trace.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"holidaysync/internal/models"
	"holidaysync/internal/store"
)

type state struct {
	users      map[string]models.User
	activities map[string]models.Activity
	slots      map[string]models.AvailabilitySlot
	bookings   map[string]models.Booking
	payments   map[string]models.Payment
	reviews    map[string]models.Review
	events     map[string]models.ProcessedEvent
}

func newState() *state {
	return &state{
		users:      map[string]models.User{},
		activities: map[string]models.Activity{},
		slots:      map[string]models.AvailabilitySlot{},
		bookings:   map[string]models.Booking{},
		payments:   map[string]models.Payment{},
		reviews:    map[string]models.Review{},
		events:     map[string]models.ProcessedEvent{},
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.activities {
		c.activities[k] = v
	}
	for k, v := range st.slots {
		c.slots[k] = v
	}
	for k, v := range st.bookings {
		c.bookings[k] = v
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	for k, v := range st.reviews {
		c.reviews[k] = v
	}
	for k, v := range st.events {
		c.events[k] = v
	}
	return c
}

// Store keeps all rows in maps guarded by one RWMutex.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

var _ store.Repository = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// AddUser inserts or replaces a user.
func (s *Store) AddUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.st.users[u.ID] = u
}

// AddActivity inserts or replaces an activity.
func (s *Store) AddActivity(a models.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	s.st.activities[a.ID] = a
}

// AddSlot inserts or replaces a slot.
func (s *Store) AddSlot(sl models.AvailabilitySlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.slots[sl.ID] = sl
}

// SetBookingCreatedAt backdates a booking, used to exercise expiry.
func (s *Store) SetBookingCreatedAt(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.st.bookings[id]; ok {
		b.CreatedAt = at
		s.st.bookings[id] = b
	}
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.st.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	return &u, nil
}

func (s *Store) GetActivity(ctx context.Context, id string) (*models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.st.activities[id]
	if !ok {
		return nil, fmt.Errorf("activity %s: %w", id, store.ErrNotFound)
	}
	return &a, nil
}

func (s *Store) UpdateActivityPrice(ctx context.Context, id string, priceCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.activities[id]
	if !ok {
		return fmt.Errorf("activity %s: %w", id, store.ErrNotFound)
	}
	a.PriceCents = priceCents
	s.st.activities[id] = a
	return nil
}

func (s *Store) GetSlot(ctx context.Context, id string) (*models.AvailabilitySlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.st.slots[id]
	if !ok {
		return nil, fmt.Errorf("slot %s: %w", id, store.ErrNotFound)
	}
	return &sl, nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.st.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, store.ErrNotFound)
	}
	return &b, nil
}

func (s *Store) GetBookingDetails(ctx context.Context, id string) (*models.BookingDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.st.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, store.ErrNotFound)
	}
	details := &models.BookingDetails{Booking: b}
	details.UserEmail = s.st.users[b.UserID].Email
	details.ActivityTitle = s.st.activities[b.ActivityID].Title
	details.SlotStart = s.st.slots[b.SlotID].StartTime
	return details, nil
}

func (s *Store) GetBookingByIdempotencyKey(ctx context.Context, userID, key string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.st.bookings {
		if b.UserID == userID && b.IdempotencyKey != nil && *b.IdempotencyKey == key {
			return &b, nil
		}
	}
	return nil, nil
}

func (s *Store) ListBookingsByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Booking{}
	for _, b := range s.st.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) ListBookings(ctx context.Context, limit, offset int) ([]models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Booking, 0, len(s.st.bookings))
	for _, b := range s.st.bookings {
		out = append(out, b)
	}
	sortNewestFirst(out)
	if offset >= len(out) {
		return []models.Booking{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListStalePendingBookings(ctx context.Context, createdBefore time.Time, limit int) ([]models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Booking{}
	for _, b := range s.st.bookings {
		if b.Status != models.BookingStatusPending || !b.CreatedAt.Before(createdBefore) {
			continue
		}
		if p, ok := s.st.payments[b.ID]; ok && p.Status == models.PaymentStatusSucceeded {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetPaymentByBookingID(ctx context.Context, bookingID string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.payments[bookingID]
	if !ok {
		return nil, fmt.Errorf("payment for booking %s: %w", bookingID, store.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) HasConfirmedBooking(ctx context.Context, userID, activityID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.st.bookings {
		if b.UserID == userID && b.ActivityID == activityID && b.Status == models.BookingStatusConfirmed {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateReview(ctx context.Context, review *models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.st.reviews {
		if r.UserID == review.UserID && r.ActivityID == review.ActivityID {
			return store.ErrDuplicateReview
		}
	}
	review.CreatedAt = s.now()
	s.st.reviews[review.ID] = *review
	return nil
}

// InTx runs fn against a copy of the data and swaps it in only when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.st.clone()
	if err := fn(&memTx{st: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func sortNewestFirst(bookings []models.Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
	})
}

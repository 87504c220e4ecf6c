package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"holidaysync/internal/auth"
	"holidaysync/internal/models"
	"holidaysync/internal/store"
	"holidaysync/internal/store/memory"

	"github.com/stretchr/testify/require"
)

const (
	guestID     = "anonymous"
	activityID  = "A1"
	slotID      = "S1"
	smallSlotID = "S-small"
	priceCents  = int64(4500)
)

var (
	customer = &auth.Caller{UserID: "U1", Role: models.RoleUser, Email: "u1@example.com"}
	stranger = &auth.Caller{UserID: "U2", Role: models.RoleUser, Email: "u2@example.com"}
	admin    = &auth.Caller{UserID: "admin", Role: models.RoleAdmin, Email: "ops@example.com"}
)

type recordingPublisher struct {
	mu        sync.Mutex
	err       error
	created   []*models.BookingCreatedEvent
	confirmed []*models.BookingConfirmedEvent
	cancelled []*models.BookingCancelledEvent
	failed    []*models.PaymentFailedEvent
}

func (p *recordingPublisher) PublishBookingCreated(_ context.Context, e *models.BookingCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return p.err
}

func (p *recordingPublisher) PublishBookingConfirmed(_ context.Context, e *models.BookingConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = append(p.confirmed, e)
	return p.err
}

func (p *recordingPublisher) PublishBookingCancelled(_ context.Context, e *models.BookingCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, e)
	return p.err
}

func (p *recordingPublisher) PublishPaymentFailed(_ context.Context, e *models.PaymentFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, e)
	return p.err
}

type fixture struct {
	repo       *memory.Store
	pub        *recordingPublisher
	bookings   *BookingService
	reconciler *Reconciler
}

func seededStore() *memory.Store {
	repo := memory.New()
	repo.AddUser(models.User{ID: guestID, Name: "Guest User", Role: models.RoleUser})
	repo.AddUser(models.User{ID: customer.UserID, Email: customer.Email, Role: models.RoleUser})
	repo.AddUser(models.User{ID: stranger.UserID, Email: stranger.Email, Role: models.RoleUser})
	repo.AddUser(models.User{ID: admin.UserID, Email: admin.Email, Role: models.RoleAdmin})
	repo.AddActivity(models.Activity{ID: activityID, Title: "Sunset Catamaran", PriceCents: priceCents})

	start := time.Date(2026, 11, 2, 17, 0, 0, 0, time.UTC)
	repo.AddSlot(models.AvailabilitySlot{ID: slotID, ActivityID: activityID, StartTime: start, EndTime: start.Add(3 * time.Hour), Capacity: 10})
	repo.AddSlot(models.AvailabilitySlot{ID: smallSlotID, ActivityID: activityID, StartTime: start, EndTime: start.Add(3 * time.Hour), Capacity: 1})
	return repo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, seededStore())
}

func newFixtureWithRepo(t *testing.T, repo *memory.Store) *fixture {
	t.Helper()
	pub := &recordingPublisher{}
	return &fixture{
		repo:       repo,
		pub:        pub,
		bookings:   NewBookingService(repo, NewSlotLedger(), pub, BookingPolicy{MaxParticipants: 20, GuestUserID: guestID}),
		reconciler: NewReconciler(repo, pub),
	}
}

func (f *fixture) book(t *testing.T, caller *auth.Caller, participants int) *CreateBookingResponse {
	t.Helper()
	resp, err := f.bookings.CreateBooking(context.Background(), caller, &CreateBookingRequest{
		ActivityID:   activityID,
		SlotID:       slotID,
		Participants: participants,
	})
	require.NoError(t, err)
	return resp
}

func (f *fixture) booked(t *testing.T, id string) int {
	t.Helper()
	slot, err := f.repo.GetSlot(context.Background(), id)
	require.NoError(t, err)
	return slot.Booked
}

func (f *fixture) status(t *testing.T, bookingID string) models.BookingStatus {
	t.Helper()
	b, err := f.repo.GetBooking(context.Background(), bookingID)
	require.NoError(t, err)
	return b.Status
}

func (f *fixture) seedPayment(t *testing.T, bookingID string, ref models.PaymentRef, status models.PaymentStatus) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.repo.InTx(ctx, func(tx store.Tx) error {
		return tx.UpsertPayment(ctx, &models.Payment{BookingID: bookingID, PaymentRef: ref, AmountCents: priceCents, Status: status})
	}))
}

// faultyRepo injects a failure into InsertBooking after the seats were taken.
type faultyRepo struct {
	*memory.Store
	insertErr error
}

func (r *faultyRepo) InTx(ctx context.Context, fn func(store.Tx) error) error {
	return r.Store.InTx(ctx, func(tx store.Tx) error {
		return fn(&faultyTx{Tx: tx, insertErr: r.insertErr})
	})
}

type faultyTx struct {
	store.Tx
	insertErr error
}

func (t *faultyTx) InsertBooking(ctx context.Context, b *models.Booking) error {
	return t.insertErr
}

var errDiskFull = errors.New("disk full")

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"holidaysync/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrCapacityExceeded        = errors.New("slot capacity exceeded")
	ErrDuplicateReference      = errors.New("duplicate booking reference")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrDuplicateReview         = errors.New("review already exists")
)

const (
	constraintBookingReference   = "bookings_reference_unique"
	constraintBookingIdempotency = "bookings_idempotency_unique"
	constraintReviewUserActivity = "reviews_user_activity_unique"
)

// Repository is the persistence boundary of the booking core. Reads run on the
// pool; every write that has to be atomic with another goes through InTx.
type Repository interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetActivity(ctx context.Context, id string) (*models.Activity, error)
	UpdateActivityPrice(ctx context.Context, id string, priceCents int64) error
	GetSlot(ctx context.Context, id string) (*models.AvailabilitySlot, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetBookingDetails(ctx context.Context, id string) (*models.BookingDetails, error)
	GetBookingByIdempotencyKey(ctx context.Context, userID, key string) (*models.Booking, error)
	ListBookingsByUser(ctx context.Context, userID string) ([]models.Booking, error)
	ListBookings(ctx context.Context, limit, offset int) ([]models.Booking, error)
	ListStalePendingBookings(ctx context.Context, createdBefore time.Time, limit int) ([]models.Booking, error)
	GetPaymentByBookingID(ctx context.Context, bookingID string) (*models.Payment, error)
	HasConfirmedBooking(ctx context.Context, userID, activityID string) (bool, error)
	CreateReview(ctx context.Context, review *models.Review) error
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the write set available inside one transaction. ReserveSlot and
// ReleaseSlot are the only statements that touch availability_slots.booked.
type Tx interface {
	ReserveSlot(ctx context.Context, slotID string, participants int) error
	ReleaseSlot(ctx context.Context, slotID string, participants int) error
	InsertBooking(ctx context.Context, booking *models.Booking) error
	GetBookingForUpdate(ctx context.Context, id string) (*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus) error
	GetPaymentForUpdate(ctx context.Context, bookingID string) (*models.Payment, error)
	UpsertPayment(ctx context.Context, payment *models.Payment) error
	MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error)
}

type Store struct {
	db *sqlx.DB
}

var _ Repository = (*Store)(nil)

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks that the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn in a transaction. The transaction commits only if fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sqlx.Tx
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return err
}

// uniqueViolation reports the constraint name of a unique violation, if err is one.
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}

package models

import "time"

// User is an account that can own bookings. The guest user is a fixed row
// provisioned by the migrate command.
type User struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// User roles
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Activity is a bookable experience. Images, Included, Excluded and Itinerary
// hold JSON-encoded string arrays.
type Activity struct {
	ID            string    `db:"id" json:"id"`
	Title         string    `db:"title" json:"title"`
	Description   string    `db:"description" json:"description"`
	PriceCents    int64     `db:"price_cents" json:"price_cents"`
	Duration      string    `db:"duration" json:"duration"`
	Images        string    `db:"images" json:"images"`
	Included      string    `db:"included" json:"included"`
	Excluded      string    `db:"excluded" json:"excluded"`
	Itinerary     string    `db:"itinerary" json:"itinerary"`
	DestinationID string    `db:"destination_id" json:"destination_id"`
	CategoryID    string    `db:"category_id" json:"category_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// AvailabilitySlot is a time window of an activity with a fixed capacity.
// Booked is written only by the slot ledger.
type AvailabilitySlot struct {
	ID         string    `db:"id" json:"id"`
	ActivityID string    `db:"activity_id" json:"activity_id"`
	StartTime  time.Time `db:"start_time" json:"start_time"`
	EndTime    time.Time `db:"end_time" json:"end_time"`
	Capacity   int       `db:"capacity" json:"capacity"`
	Booked     int       `db:"booked" json:"booked"`
}

// Remaining returns the number of seats still available.
func (s *AvailabilitySlot) Remaining() int {
	return s.Capacity - s.Booked
}

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

// Booking statuses
const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// Valid reports whether s is a known booking status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s can only be left through an administrative override.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusConfirmed || s == BookingStatusCancelled
}

// Booking is a reservation of participants on a slot. TotalPriceCents is the
// price snapshot taken at creation and is never recomputed.
type Booking struct {
	ID               string        `db:"id" json:"id"`
	UserID           string        `db:"user_id" json:"user_id"`
	ActivityID       string        `db:"activity_id" json:"activity_id"`
	SlotID           string        `db:"slot_id" json:"slot_id"`
	Participants     int           `db:"participants" json:"participants"`
	TotalPriceCents  int64         `db:"total_price_cents" json:"total_price_cents"`
	BookingReference string        `db:"booking_reference" json:"booking_reference"`
	Status           BookingStatus `db:"status" json:"status"`
	IdempotencyKey   *string       `db:"idempotency_key" json:"-"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// BookingDetails joins a booking with what a confirmation message needs.
type BookingDetails struct {
	Booking
	UserEmail     string    `db:"user_email" json:"user_email"`
	ActivityTitle string    `db:"activity_title" json:"activity_title"`
	SlotStart     time.Time `db:"slot_start" json:"slot_start"`
}

// PaymentProvider identifies which external processor holds a payment.
type PaymentProvider string

// Payment providers
const (
	ProviderStripe PaymentProvider = "STRIPE"
	ProviderPayPal PaymentProvider = "PAYPAL"
)

// PaymentRef is the provider-side handle of a payment attempt.
type PaymentRef struct {
	Provider   PaymentProvider `db:"provider" json:"provider"`
	ExternalID string          `db:"external_id" json:"external_id"`
}

// PaymentStatus is the state of a payment attempt.
type PaymentStatus string

// Payment statuses
const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusSucceeded PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// Payment is the latest payment attempt of a booking. There is at most one
// row per booking.
type Payment struct {
	BookingID string `db:"booking_id" json:"booking_id"`
	PaymentRef
	AmountCents int64         `db:"amount_cents" json:"amount_cents"`
	Status      PaymentStatus `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// Review is a rating left by a user who completed a booking of the activity.
type Review struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	ActivityID string    `db:"activity_id" json:"activity_id"`
	Rating     int       `db:"rating" json:"rating"`
	Comment    string    `db:"comment" json:"comment"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

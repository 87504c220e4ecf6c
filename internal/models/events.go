package models

import "time"

// Event types
const (
	EventTypeBookingCreated   = "BOOKING_CREATED"
	EventTypeBookingConfirmed = "BOOKING_CONFIRMED"
	EventTypeBookingCancelled = "BOOKING_CANCELLED"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingCreatedEvent published when a PENDING booking has been persisted
type BookingCreatedEvent struct {
	BaseEvent
	BookingID        string `json:"booking_id"`
	BookingReference string `json:"booking_reference"`
	UserID           string `json:"user_id"`
	SlotID           string `json:"slot_id"`
	Participants     int    `json:"participants"`
	TotalPriceCents  int64  `json:"total_price_cents"`
}

// BookingConfirmedEvent published once per PENDING -> CONFIRMED transition.
// It carries everything the notification worker needs.
type BookingConfirmedEvent struct {
	BaseEvent
	BookingID        string    `json:"booking_id"`
	BookingReference string    `json:"booking_reference"`
	Email            string    `json:"email"`
	ActivityTitle    string    `json:"activity_title"`
	TotalPriceCents  int64     `json:"total_price_cents"`
	Date             time.Time `json:"date"`
}

// BookingCancelledEvent published when seats are given back
type BookingCancelledEvent struct {
	BaseEvent
	BookingID    string `json:"booking_id"`
	SlotID       string `json:"slot_id"`
	Participants int    `json:"participants"`
	Reason       string `json:"reason"`
}

// PaymentFailedEvent published when a provider reports a failed attempt
type PaymentFailedEvent struct {
	BaseEvent
	BookingID  string          `json:"booking_id"`
	Provider   PaymentProvider `json:"provider"`
	ExternalID string          `json:"external_id"`
}

// PaymentOutcome is the terminal result reported by a payment provider.
type PaymentOutcome string

// Payment outcomes
const (
	PaymentOutcomeSucceeded PaymentOutcome = "succeeded"
	PaymentOutcomeFailed    PaymentOutcome = "failed"
)

// PaymentEvent is an authenticated provider notification, already decoded
// from the provider's wire format.
type PaymentEvent struct {
	EventID     string
	Type        string
	Ref         PaymentRef
	BookingID   string
	AmountCents int64
	Outcome     PaymentOutcome
}

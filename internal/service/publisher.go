package service

import (
	"context"

	"holidaysync/internal/models"
)

// EventPublisher delivers domain events after the transaction that produced
// them has committed. Delivery is best effort.
type EventPublisher interface {
	PublishBookingCreated(ctx context.Context, event *models.BookingCreatedEvent) error
	PublishBookingConfirmed(ctx context.Context, event *models.BookingConfirmedEvent) error
	PublishBookingCancelled(ctx context.Context, event *models.BookingCancelledEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishBookingCreated(context.Context, *models.BookingCreatedEvent) error {
	return nil
}

func (NopPublisher) PublishBookingConfirmed(context.Context, *models.BookingConfirmedEvent) error {
	return nil
}

func (NopPublisher) PublishBookingCancelled(context.Context, *models.BookingCancelledEvent) error {
	return nil
}

func (NopPublisher) PublishPaymentFailed(context.Context, *models.PaymentFailedEvent) error {
	return nil
}

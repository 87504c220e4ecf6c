package worker

import (
	"context"

	"holidaysync/internal/broker"
	"holidaysync/internal/models"
	"holidaysync/internal/notify"
	"holidaysync/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker sends booking confirmations from the booking event stream
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	notifier     notify.Notifier
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, notifier notify.Notifier) *NotificationWorker {
	w := &NotificationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		notifier:     notifier,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnBookingConfirmed(w.handleConfirmed)
	w.eventHandler.OnBookingCancelled(w.handleCancelled)
	return w
}

// handleConfirmed never returns an error. Delivery is best effort and a
// failed email must not hold back the stream.
func (w *NotificationWorker) handleConfirmed(ctx context.Context, event *models.BookingConfirmedEvent) error {
	if event.Email == "" {
		util.NotificationsTotal.WithLabelValues("skipped").Inc()
		w.logger.Info("No email on booking, confirmation skipped",
			zap.String("booking_id", event.BookingID))
		return nil
	}

	err := w.notifier.SendBookingConfirmation(ctx, notify.Confirmation{
		Email:            event.Email,
		BookingReference: event.BookingReference,
		ActivityTitle:    event.ActivityTitle,
		TotalPriceCents:  event.TotalPriceCents,
		Date:             event.Date,
	})
	if err != nil {
		util.NotificationsTotal.WithLabelValues("failed").Inc()
		w.logger.Error("Failed to send booking confirmation",
			zap.String("booking_id", event.BookingID),
			zap.Error(err))
		return nil
	}

	util.NotificationsTotal.WithLabelValues("sent").Inc()
	w.logger.Info("Booking confirmation sent",
		zap.String("booking_id", event.BookingID),
		zap.String("booking_reference", event.BookingReference))
	return nil
}

func (w *NotificationWorker) handleCancelled(_ context.Context, event *models.BookingCancelledEvent) error {
	w.logger.Info("Booking cancelled",
		zap.String("booking_id", event.BookingID),
		zap.String("reason", event.Reason))
	return nil
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

// Package notify delivers booking confirmations to customers.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"go.uber.org/zap"
)

// Confirmation is the content of a booking confirmation message.
type Confirmation struct {
	Email            string
	BookingReference string
	ActivityTitle    string
	TotalPriceCents  int64
	Date             time.Time
}

// Notifier sends booking confirmations.
type Notifier interface {
	SendBookingConfirmation(ctx context.Context, c Confirmation) error
}

// LogNotifier writes confirmations to the log instead of sending them.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendBookingConfirmation(ctx context.Context, c Confirmation) error {
	n.logger.Info("Booking confirmation (not sent, no mail provider configured)",
		zap.String("email", c.Email),
		zap.String("booking_reference", c.BookingReference),
		zap.String("activity", c.ActivityTitle),
		zap.String("amount", formatAmount(c.TotalPriceCents)),
		zap.Time("date", c.Date))
	return nil
}

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`
<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto;">
	<h1 style="color: #4f46e5;">Your Booking is Confirmed!</h1>
	<p>Thank you for booking with HolidaySync. We are excited to see you.</p>
	<div style="padding: 24px; background-color: #f8fafc; border-radius: 12px; margin: 24px 0;">
		<h3 style="margin-top: 0; color: #1e293b;">Booking Details</h3>
		<p style="margin: 8px 0;"><strong>Activity:</strong> {{.ActivityTitle}}</p>
		<p style="margin: 8px 0;"><strong>Reference:</strong> {{.BookingReference}}</p>
		<p style="margin: 8px 0;"><strong>Date:</strong> {{.Date}}</p>
		<p style="margin: 8px 0;"><strong>Amount Paid:</strong> ${{.Amount}}</p>
	</div>
	<p>If you have any questions, simply reply to this email.</p>
	<p style="color: #94a3b8; font-size: 12px; margin-top: 40px;">HolidaySync - Travel &amp; Adventures</p>
</div>`))

// Subject returns the subject line of a confirmation.
func Subject(c Confirmation) string {
	return "Booking Confirmed: " + c.ActivityTitle
}

// RenderHTML renders the confirmation email body. Values are HTML-escaped.
func RenderHTML(c Confirmation) (string, error) {
	var buf bytes.Buffer
	err := confirmationTemplate.Execute(&buf, struct {
		ActivityTitle    string
		BookingReference string
		Date             string
		Amount           string
	}{
		ActivityTitle:    c.ActivityTitle,
		BookingReference: c.BookingReference,
		Date:             c.Date.Format("Monday, January 2, 2006"),
		Amount:           formatAmount(c.TotalPriceCents),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render confirmation: %w", err)
	}
	return buf.String(), nil
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

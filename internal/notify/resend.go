package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

// ResendNotifier sends confirmations through the Resend email API.
type ResendNotifier struct {
	client *resend.Client
	from   string
}

// NewResendNotifier creates a notifier sending from the given address
func NewResendNotifier(apiKey, from string) *ResendNotifier {
	client := resend.NewCustomClient(&http.Client{Timeout: 10 * time.Second}, apiKey)
	return &ResendNotifier{client: client, from: from}
}

// WithBaseURL points the notifier at another Resend-compatible API
func (n *ResendNotifier) WithBaseURL(raw string) (*ResendNotifier, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid resend base url: %w", err)
	}
	n.client.BaseURL = u
	return n, nil
}

func (n *ResendNotifier) SendBookingConfirmation(ctx context.Context, c Confirmation) error {
	if c.Email == "" {
		return fmt.Errorf("booking %s has no recipient", c.BookingReference)
	}

	html, err := RenderHTML(c)
	if err != nil {
		return err
	}

	sent, err := n.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{c.Email},
		Subject: Subject(c),
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	if sent.Id == "" {
		return fmt.Errorf("resend: response has no email id")
	}
	return nil
}

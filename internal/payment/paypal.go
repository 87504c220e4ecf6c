package payment

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"holidaysync/internal/util"

	"github.com/plutov/paypal/v4"
)

// PayPal order and capture statuses
const (
	PayPalStatusCompleted = "COMPLETED"
)

// OrderRequest describes a PayPal order to create.
type OrderRequest struct {
	BookingReference string
	AmountCents      int64
	Currency         string
}

// Capture is the result of capturing a PayPal order.
type Capture struct {
	OrderID     string
	Status      string
	ReferenceID string
	AmountCents int64
}

// Completed reports whether PayPal moved the funds.
func (c *Capture) Completed() bool {
	return c.Status == PayPalStatusCompleted
}

// PayPalClient creates and captures orders through the PayPal Orders v2 API.
type PayPalClient struct {
	api *paypal.Client

	mu     sync.Mutex
	authed bool
}

// NewPayPalClient creates a client against apiBase, e.g. paypal.APIBaseSandBox
func NewPayPalClient(apiBase, clientID, clientSecret string) (*PayPalClient, error) {
	api, err := paypal.NewClient(clientID, clientSecret, strings.TrimRight(apiBase, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to create paypal client: %w", err)
	}
	api.Client = &http.Client{Timeout: 15 * time.Second}
	return &PayPalClient{api: api}, nil
}

// authenticate fetches the first OAuth token. The SDK refreshes it from then on.
func (c *PayPalClient) authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.authed {
		return nil
	}
	if _, err := c.api.GetAccessToken(ctx); err != nil {
		return fmt.Errorf("paypal token: %w", err)
	}
	c.authed = true
	return nil
}

// CreateOrder creates a CAPTURE order for the booking and returns its id
func (c *PayPalClient) CreateOrder(ctx context.Context, req OrderRequest) (string, error) {
	start := time.Now()
	defer func() {
		util.PaymentProviderLatency.WithLabelValues("paypal", "create_order").Observe(time.Since(start).Seconds())
	}()

	if err := CheckCurrency(req.Currency); err != nil {
		return "", fmt.Errorf("paypal create_order: %w", err)
	}
	if err := c.authenticate(ctx); err != nil {
		return "", err
	}

	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: req.BookingReference,
		Amount: &paypal.PurchaseUnitAmount{
			Currency: strings.ToUpper(req.Currency),
			Value:    FormatCents(req.AmountCents),
		},
	}}
	order, err := c.api.CreateOrder(ctx, paypal.OrderIntentCapture, units, nil, nil)
	if err != nil {
		return "", fmt.Errorf("paypal create_order: %w", err)
	}
	if order.ID == "" {
		return "", fmt.Errorf("paypal create_order: response has no order id")
	}
	return order.ID, nil
}

// CaptureOrder captures an approved order
func (c *PayPalClient) CaptureOrder(ctx context.Context, orderID string) (*Capture, error) {
	start := time.Now()
	defer func() {
		util.PaymentProviderLatency.WithLabelValues("paypal", "capture_order").Observe(time.Since(start).Seconds())
	}()

	if err := c.authenticate(ctx); err != nil {
		return nil, err
	}

	resp, err := c.api.CaptureOrder(ctx, orderID, paypal.CaptureOrderRequest{})
	if err != nil {
		return nil, fmt.Errorf("paypal capture_order: %w", err)
	}

	capture := &Capture{OrderID: resp.ID, Status: resp.Status}
	if capture.OrderID == "" {
		capture.OrderID = orderID
	}
	if len(resp.PurchaseUnits) > 0 {
		unit := resp.PurchaseUnits[0]
		capture.ReferenceID = unit.ReferenceID
		if unit.Payments != nil && len(unit.Payments.Captures) > 0 && unit.Payments.Captures[0].Amount != nil {
			cents, err := ParseCents(unit.Payments.Captures[0].Amount.Value)
			if err != nil {
				return nil, fmt.Errorf("paypal capture_order: %w", err)
			}
			capture.AmountCents = cents
		}
	}
	return capture, nil
}

// FormatCents renders minor units with two decimals, e.g. 9050 -> "90.50".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// ParseCents is the inverse of FormatCents. It accepts zero, one or two decimals.
func ParseCents(value string) (int64, error) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(value), ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	frac += strings.Repeat("0", 2-len(frac))

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	if strings.HasPrefix(whole, "-") {
		return w*100 - f, nil
	}
	return w*100 + f, nil
}

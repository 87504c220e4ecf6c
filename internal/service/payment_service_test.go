package service

import (
	"context"
	"errors"
	"testing"

	"holidaysync/internal/models"
	"holidaysync/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStripe struct {
	calls []payment.IntentRequest
	err   error
}

func (s *fakeStripe) CreatePaymentIntent(_ context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	return &payment.Intent{ID: "pi_test", ClientSecret: "pi_test_secret"}, nil
}

type fakePayPal struct {
	captureStatus string
	captureRef    string
	orders        []payment.OrderRequest
	captured      int
	completed     bool
}

func (p *fakePayPal) CreateOrder(_ context.Context, req payment.OrderRequest) (string, error) {
	p.orders = append(p.orders, req)
	return "ORDER-1", nil
}

func (p *fakePayPal) CaptureOrder(_ context.Context, orderID string) (*payment.Capture, error) {
	if p.completed {
		return nil, errors.New("UNPROCESSABLE_ENTITY: ORDER_ALREADY_CAPTURED")
	}
	p.captured++
	p.completed = p.captureStatus == payment.PayPalStatusCompleted
	return &payment.Capture{OrderID: orderID, Status: p.captureStatus, ReferenceID: p.captureRef, AmountCents: priceCents}, nil
}

func newPaymentService(f *fixture, st StripeGateway, pp PayPalGateway) *PaymentService {
	return NewPaymentService(f.repo, st, pp, f.reconciler, "usd", guestID)
}

func TestStartStripePayment(t *testing.T) {
	f := newFixture(t)
	st := &fakeStripe{}
	ps := newPaymentService(f, st, nil)
	resp := f.book(t, customer, 2)

	out, err := ps.StartStripePayment(context.Background(), customer, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, "pi_test_secret", out.ClientSecret)

	require.Len(t, st.calls, 1)
	assert.Equal(t, priceCents*2, st.calls[0].AmountCents)
	assert.Equal(t, resp.BookingReference, st.calls[0].BookingReference)
	assert.Equal(t, "usd", st.calls[0].Currency)

	p, err := f.repo.GetPaymentByBookingID(context.Background(), resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, stripeRef("pi_test"), p.PaymentRef)
	assert.Equal(t, models.PaymentStatusPending, p.Status)
}

func TestStartStripePaymentRules(t *testing.T) {
	f := newFixture(t)
	ps := newPaymentService(f, &fakeStripe{}, nil)
	ctx := context.Background()
	resp := f.book(t, customer, 1)

	_, err := ps.StartStripePayment(ctx, stranger, resp.BookingID)
	assert.Equal(t, CodeNotFound, ErrorCode(err))

	_, err = f.bookings.UpdateStatus(ctx, admin, resp.BookingID, models.BookingStatusConfirmed, false)
	require.NoError(t, err)
	_, err = ps.StartStripePayment(ctx, customer, resp.BookingID)
	assert.Equal(t, CodeConflict, ErrorCode(err))

	_, err = newPaymentService(f, nil, nil).StartStripePayment(ctx, customer, resp.BookingID)
	assert.Equal(t, CodeUnavailable, ErrorCode(err))
}

func TestStartStripePaymentGatewayError(t *testing.T) {
	f := newFixture(t)
	ps := newPaymentService(f, &fakeStripe{err: errors.New("card network down")}, nil)
	resp := f.book(t, customer, 1)

	_, err := ps.StartStripePayment(context.Background(), customer, resp.BookingID)
	assert.Equal(t, CodeInternal, ErrorCode(err))

	_, err = f.repo.GetPaymentByBookingID(context.Background(), resp.BookingID)
	assert.Error(t, err)
}

func TestPayPalCheckout(t *testing.T) {
	f := newFixture(t)
	pp := &fakePayPal{captureStatus: payment.PayPalStatusCompleted}
	ps := newPaymentService(f, nil, pp)
	ctx := context.Background()
	resp := f.book(t, nil, 2)
	pp.captureRef = resp.BookingReference

	order, err := ps.StartPayPalOrder(ctx, nil, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", order.OrderID)
	require.Len(t, pp.orders, 1)
	assert.Equal(t, priceCents*2, pp.orders[0].AmountCents)

	result, err := ps.CapturePayPalOrder(ctx, nil, resp.BookingID, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, result.Outcome)
	assert.Equal(t, models.BookingStatusConfirmed, result.Status)

	p, err := f.repo.GetPaymentByBookingID(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRef{Provider: models.ProviderPayPal, ExternalID: "ORDER-1"}, p.PaymentRef)
	assert.Equal(t, models.PaymentStatusSucceeded, p.Status)

	result, err = ps.CapturePayPalOrder(ctx, nil, resp.BookingID, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, result.Outcome)
	assert.Len(t, f.pub.confirmed, 1)
}

func TestPayPalCaptureRetryAfterSuccess(t *testing.T) {
	f := newFixture(t)
	pp := &fakePayPal{captureStatus: payment.PayPalStatusCompleted}
	ps := newPaymentService(f, nil, pp)
	ctx := context.Background()
	resp := f.book(t, customer, 1)
	pp.captureRef = resp.BookingReference

	order, err := ps.StartPayPalOrder(ctx, customer, resp.BookingID)
	require.NoError(t, err)

	first, err := ps.CapturePayPalOrder(ctx, customer, resp.BookingID, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, first.Outcome)

	retry, err := ps.CapturePayPalOrder(ctx, customer, resp.BookingID, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, retry.Outcome)
	assert.Equal(t, models.BookingStatusConfirmed, retry.Status)
	assert.Equal(t, 1, pp.captured)
	assert.Len(t, f.pub.confirmed, 1)
}

func TestPayPalCaptureRejectsForeignOrder(t *testing.T) {
	f := newFixture(t)
	pp := &fakePayPal{captureStatus: payment.PayPalStatusCompleted}
	ps := newPaymentService(f, nil, pp)
	resp := f.book(t, customer, 1)

	_, err := ps.CapturePayPalOrder(context.Background(), customer, resp.BookingID, "ORDER-OTHER")
	assert.Equal(t, CodeConflict, ErrorCode(err))
	assert.Equal(t, models.BookingStatusPending, f.status(t, resp.BookingID))
}

func TestPayPalCaptureNotCompleted(t *testing.T) {
	f := newFixture(t)
	pp := &fakePayPal{captureStatus: "DECLINED"}
	ps := newPaymentService(f, nil, pp)
	ctx := context.Background()
	resp := f.book(t, customer, 1)
	pp.captureRef = resp.BookingReference

	_, err := ps.StartPayPalOrder(ctx, customer, resp.BookingID)
	require.NoError(t, err)

	result, err := ps.CapturePayPalOrder(ctx, customer, resp.BookingID, "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomePaymentFailed, result.Outcome)
	assert.Equal(t, models.BookingStatusPending, result.Status)

	// The buyer retries with another funding source.
	pp.captureStatus = payment.PayPalStatusCompleted
	_, err = ps.StartPayPalOrder(ctx, customer, resp.BookingID)
	require.NoError(t, err)
	result, err = ps.CapturePayPalOrder(ctx, customer, resp.BookingID, "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, result.Outcome)
}

package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/plutov/paypal/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderBody struct {
	Intent        string `json:"intent"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		Amount      struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"amount"`
	} `json:"purchase_units"`
}

func newPayPalServer(t *testing.T, tokenCalls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)
	})

	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		var order orderBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&order))
		assert.Equal(t, "CAPTURE", order.Intent)
		require.Len(t, order.PurchaseUnits, 1)
		assert.Equal(t, "HS-ABC123-0001", order.PurchaseUnits[0].ReferenceID)
		assert.Equal(t, "90.50", order.PurchaseUnits[0].Amount.Value)
		assert.Equal(t, "USD", order.PurchaseUnits[0].Amount.CurrencyCode)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"ORDER-1","status":"CREATED"}`)
	})

	mux.HandleFunc("/v2/checkout/orders/ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"ORDER-1","status":"COMPLETED","purchase_units":[{"reference_id":"HS-ABC123-0001",
			"payments":{"captures":[{"id":"CAP-1","status":"COMPLETED","amount":{"currency_code":"USD","value":"90.50"}}]}}]}`)
	})

	mux.HandleFunc("/v2/checkout/orders/ORDER-2/capture", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_NOT_APPROVED"}]}`)
	})

	return httptest.NewServer(mux)
}

func TestPayPalCreateAndCapture(t *testing.T) {
	var tokenCalls int32
	srv := newPayPalServer(t, &tokenCalls)
	defer srv.Close()

	c, err := NewPayPalClient(srv.URL+"/", "client", "secret")
	require.NoError(t, err)
	ctx := context.Background()

	orderID, err := c.CreateOrder(ctx, OrderRequest{BookingReference: "HS-ABC123-0001", AmountCents: 9050, Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", orderID)

	capture, err := c.CaptureOrder(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, capture.Completed())
	assert.Equal(t, "HS-ABC123-0001", capture.ReferenceID)
	assert.Equal(t, int64(9050), capture.AmountCents)

	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls), "token is cached between calls")
}

func TestPayPalCaptureError(t *testing.T) {
	var tokenCalls int32
	srv := newPayPalServer(t, &tokenCalls)
	defer srv.Close()

	c, err := NewPayPalClient(srv.URL, "client", "secret")
	require.NoError(t, err)
	_, err = c.CaptureOrder(context.Background(), "ORDER-2")
	require.Error(t, err)

	var perr *paypal.ErrorResponse
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusUnprocessableEntity, perr.Response.StatusCode)
	require.Len(t, perr.Details, 1)
	assert.Equal(t, "ORDER_NOT_APPROVED", perr.Details[0].Issue)
}

func TestPayPalRejectsZeroDecimalCurrency(t *testing.T) {
	var tokenCalls int32
	srv := newPayPalServer(t, &tokenCalls)
	defer srv.Close()

	c, err := NewPayPalClient(srv.URL, "client", "secret")
	require.NoError(t, err)
	_, err = c.CreateOrder(context.Background(), OrderRequest{BookingReference: "HS-ABC123-0001", AmountCents: 9050, Currency: "jpy"})
	assert.Error(t, err)
	assert.Zero(t, atomic.LoadInt32(&tokenCalls))
}

func TestNewPayPalClientRequiresCredentials(t *testing.T) {
	_, err := NewPayPalClient(paypal.APIBaseSandBox, "", "secret")
	assert.Error(t, err)
}

func TestCentsFormatting(t *testing.T) {
	assert.Equal(t, "90.50", FormatCents(9050))
	assert.Equal(t, "0.05", FormatCents(5))
	assert.Equal(t, "120.00", FormatCents(12000))

	for in, want := range map[string]int64{"90.50": 9050, "90.5": 9050, "90": 9000, "0.05": 5} {
		got, err := ParseCents(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCents("1.234")
	assert.Error(t, err)
	_, err = ParseCents("abc")
	assert.Error(t, err)
}

func TestCheckCurrency(t *testing.T) {
	for _, ok := range []string{"usd", "EUR", "gbp", "AUD"} {
		assert.NoError(t, CheckCurrency(ok), ok)
	}
	for _, bad := range []string{"jpy", "KRW", "huf", "TWD", "", "us", "usd1", "U$D"} {
		assert.Error(t, CheckCurrency(bad), bad)
	}
}

package paypalapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-gallery/atelier/internal/port"
)

func testCreds() port.WalletCredentials {
	return port.WalletCredentials{ClientID: "cid", ClientSecret: "csec"}
}

// newServer answers the OAuth token exchange and delegates everything
// else to handle.
func newServer(t *testing.T, handle http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			require.Equal(t, "cid", user)
			require.Equal(t, "csec", pass)
			w.Write([]byte(`{"access_token":"tok_abc"}`))
			return
		}
		require.Equal(t, "Bearer tok_abc", r.Header.Get("Authorization"))
		handle(w, r)
	}))
}

func TestCreateOrder(t *testing.T) {
	var gotBody map[string]interface{}
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/checkout/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"id":"ORDER123","status":"CREATED"}`))
	})
	defer srv.Close()

	client := NewClient(srv.URL, srv.URL, 0)
	orderID, err := client.CreateOrder(t.Context(), testCreds(), 90050, "eur", "https://x/return", "https://x/cancel")
	require.NoError(t, err)
	assert.Equal(t, "ORDER123", orderID)

	assert.Equal(t, "CAPTURE", gotBody["intent"])
	units := gotBody["purchase_units"].([]interface{})
	amount := units[0].(map[string]interface{})["amount"].(map[string]interface{})
	assert.Equal(t, "EUR", amount["currency_code"])
	assert.Equal(t, "900.50", amount["value"])
	appCtx := gotBody["application_context"].(map[string]interface{})
	assert.Equal(t, "https://x/return", appCtx["return_url"])
}

func TestCaptureOrder(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/checkout/orders/ORDER123/capture", r.URL.Path)
		w.Write([]byte(`{
			"id": "ORDER123",
			"status": "COMPLETED",
			"payer": {"email_address": "payer@example.com"},
			"purchase_units": [{
				"shipping": {
					"name": {"full_name": "Jana Example"},
					"address": {
						"address_line_1": "Hlavna 1",
						"admin_area_2": "Bratislava",
						"postal_code": "81101",
						"country_code": "SK"
					}
				}
			}],
			"payments": {"captures": [{"id": "CAP789"}]}
		}`))
	})
	defer srv.Close()

	client := NewClient(srv.URL, srv.URL, 0)
	capture, err := client.CaptureOrder(t.Context(), testCreds(), "ORDER123")
	require.NoError(t, err)

	assert.Equal(t, "COMPLETED", capture.Status)
	assert.Equal(t, "CAP789", capture.CaptureID)
	assert.Equal(t, "payer@example.com", capture.PayerEmail)
	require.NotNil(t, capture.Shipping)
	assert.Equal(t, "Jana Example", capture.Shipping.Name)
	assert.Equal(t, "Bratislava", capture.Shipping.City)
	assert.Equal(t, "SK", capture.Shipping.Country)
}

func TestCaptureOrder_ErrorStatus(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY"}`))
	})
	defer srv.Close()

	client := NewClient(srv.URL, srv.URL, 0)
	_, err := client.CaptureOrder(t.Context(), testCreds(), "ORDER123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 422")
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.05", formatAmount(5))
	assert.Equal(t, "12.00", formatAmount(1200))
	assert.Equal(t, "900.50", formatAmount(90050))
}

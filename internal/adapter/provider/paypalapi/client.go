// Package paypalapi is a thin client for the redirect-based wallet
// provider: obtain an OAuth token with the vault-held client credentials,
// create a checkout order the buyer approves on the provider's site, and
// capture it afterwards.
package paypalapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atelier-gallery/atelier/internal/core/domain"
	"github.com/atelier-gallery/atelier/internal/port"
)

const (
	DefaultSandboxBaseURL = "https://api-m.sandbox.paypal.com"
	DefaultLiveBaseURL    = "https://api-m.paypal.com"
)

type Client struct {
	sandboxBaseURL string
	liveBaseURL    string
	httpc          *http.Client
}

func NewClient(sandboxBaseURL, liveBaseURL string, timeout time.Duration) *Client {
	if sandboxBaseURL == "" {
		sandboxBaseURL = DefaultSandboxBaseURL
	}
	if liveBaseURL == "" {
		liveBaseURL = DefaultLiveBaseURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		sandboxBaseURL: strings.TrimSuffix(sandboxBaseURL, "/"),
		liveBaseURL:    strings.TrimSuffix(liveBaseURL, "/"),
		httpc:          &http.Client{Timeout: timeout},
	}
}

func (c *Client) baseURL(creds port.WalletCredentials) string {
	if creds.Live {
		return c.liveBaseURL
	}
	return c.sandboxBaseURL
}

func (c *Client) token(ctx context.Context, creds port.WalletCredentials) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL(creds)+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(creds.ClientID, creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("oauth token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oauth token: status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("oauth token: decode: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("oauth token: empty access token")
	}
	return payload.AccessToken, nil
}

func (c *Client) post(ctx context.Context, creds port.WalletCredentials, path string, body any, out any) error {
	token, err := c.token(ctx, creds)
	if err != nil {
		return err
	}

	var reader *strings.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = strings.NewReader(string(encoded))
	} else {
		reader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL(creds)+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("POST %s: decode response: %w", path, err)
	}
	return nil
}

// CreateOrder registers a capture-intent checkout order with the provider
// and returns the provider's order id, the reference the buyer's approval
// and the later capture are keyed by.
func (c *Client) CreateOrder(ctx context.Context, creds port.WalletCredentials, amountCents int64, currency, returnURL, cancelURL string) (string, error) {
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{
			{
				"amount": map[string]string{
					"currency_code": strings.ToUpper(currency),
					"value":         formatAmount(amountCents),
				},
			},
		},
		"application_context": map[string]string{
			"return_url": returnURL,
			"cancel_url": cancelURL,
		},
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, creds, "/v2/checkout/orders", body, &payload); err != nil {
		return "", err
	}
	if payload.ID == "" {
		return "", fmt.Errorf("create order: empty order id")
	}
	return payload.ID, nil
}

type capturePayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Payer  struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
	PurchaseUnits []struct {
		Shipping struct {
			Name struct {
				FullName string `json:"full_name"`
			} `json:"name"`
			Address struct {
				AddressLine1 string `json:"address_line_1"`
				AdminArea2   string `json:"admin_area_2"`
				PostalCode   string `json:"postal_code"`
				CountryCode  string `json:"country_code"`
			} `json:"address"`
		} `json:"shipping"`
	} `json:"purchase_units"`
	Payments struct {
		Captures []struct {
			ID string `json:"id"`
		} `json:"captures"`
	} `json:"payments"`
}

// CaptureOrder captures an approved order. A non-2xx response leaves all
// local state untouched by contract; the caller only settles on success.
func (c *Client) CaptureOrder(ctx context.Context, creds port.WalletCredentials, orderID string) (*port.WalletCapture, error) {
	var payload capturePayload
	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	if err := c.post(ctx, creds, path, nil, &payload); err != nil {
		return nil, err
	}

	capture := &port.WalletCapture{
		Status:     payload.Status,
		PayerEmail: payload.Payer.EmailAddress,
	}
	if len(payload.Payments.Captures) > 0 {
		capture.CaptureID = payload.Payments.Captures[0].ID
	}
	if len(payload.PurchaseUnits) > 0 {
		sh := payload.PurchaseUnits[0].Shipping
		capture.Shipping = &domain.ShippingSnapshot{
			Name:    sh.Name.FullName,
			Address: sh.Address.AddressLine1,
			City:    sh.Address.AdminArea2,
			Zip:     sh.Address.PostalCode,
			Country: sh.Address.CountryCode,
		}
	}
	return capture, nil
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

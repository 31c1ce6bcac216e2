// Package stripeapi is a thin client for the hosted card-payment
// provider's REST API: create a payment intent, re-read it server-side at
// confirmation time, and look up the charge's receipt email. The API key
// is passed per call because it lives in the credential vault, not in
// process configuration.
package stripeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/atelier-gallery/atelier/internal/port"
)

const DefaultBaseURL = "https://api.stripe.com"

type Client struct {
	baseURL string
	httpc   *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

type intentPayload struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	LatestCharge string `json:"latest_charge"`
}

type chargePayload struct {
	ID             string `json:"id"`
	BillingDetails struct {
		Email string `json:"email"`
	} `json:"billing_details"`
}

func (c *Client) do(ctx context.Context, apiKey, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func (c *Client) CreateIntent(ctx context.Context, apiKey string, amountCents int64, currency, itemID string) (*port.CardIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("metadata[item_id]", itemID)

	var p intentPayload
	if err := c.do(ctx, apiKey, http.MethodPost, "/v1/payment_intents", form, &p); err != nil {
		return nil, err
	}
	return &port.CardIntent{
		ID:           p.ID,
		ClientSecret: p.ClientSecret,
		Status:       p.Status,
		LatestCharge: p.LatestCharge,
	}, nil
}

func (c *Client) GetIntent(ctx context.Context, apiKey, intentID string) (*port.CardIntent, error) {
	var p intentPayload
	if err := c.do(ctx, apiKey, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(intentID), nil, &p); err != nil {
		return nil, err
	}
	return &port.CardIntent{
		ID:           p.ID,
		ClientSecret: p.ClientSecret,
		Status:       p.Status,
		LatestCharge: p.LatestCharge,
	}, nil
}

func (c *Client) ChargeEmail(ctx context.Context, apiKey, chargeID string) (string, error) {
	var p chargePayload
	if err := c.do(ctx, apiKey, http.MethodGet, "/v1/charges/"+url.PathEscape(chargeID), nil, &p); err != nil {
		return "", err
	}
	return p.BillingDetails.Email, nil
}

package handler

import (
	"net/http"

	"github.com/atelier-gallery/atelier/internal/core/domain"
	"github.com/atelier-gallery/atelier/internal/core/service"
)

// CheckoutHandler is the buyer-facing surface: listing sellable items,
// the three payment rails, and the shipping quote.
type CheckoutHandler struct {
	checkout *service.CheckoutService
	admin    *service.AdminService
}

func NewCheckoutHandler(checkout *service.CheckoutService, admin *service.AdminService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, admin: admin}
}

func (h *CheckoutHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/items", h.ListItems)
	mux.HandleFunc("GET /api/rails", h.Rails)
	mux.HandleFunc("POST /api/orders/create", h.CreateBankOrder)
	mux.HandleFunc("POST /api/stripe/create-payment-intent", h.CreatePaymentIntent)
	mux.HandleFunc("POST /api/stripe/confirm-payment", h.ConfirmPayment)
	mux.HandleFunc("GET /api/stripe/configured", h.StripeConfigured)
	mux.HandleFunc("POST /api/paypal/create-order", h.CreatePayPalOrder)
	mux.HandleFunc("POST /api/paypal/capture-order", h.CapturePayPalOrder)
	mux.HandleFunc("POST /api/shipping/calculate", h.CalculateShipping)
	mux.HandleFunc("GET /health", h.HealthCheck)
}

// ListItems hides HIDDEN items from buyers; RESERVED and SOLD stay
// visible so the storefront can show them as taken.
func (h *CheckoutHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.admin.ListItems(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	visible := make([]domain.Item, 0, len(items))
	for _, item := range items {
		if item.Status != domain.ItemHidden {
			visible = append(visible, item)
		}
	}
	writeJSON(w, http.StatusOK, visible)
}

func (h *CheckoutHandler) Rails(w http.ResponseWriter, r *http.Request) {
	rails, err := h.checkout.Rails(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rails)
}

type shippingRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

type bankOrderRequest struct {
	ItemID            string `json:"item_id"`
	CustomAmountCents int64  `json:"custom_amount_cents"`
	shippingRequest
}

func (h *CheckoutHandler) CreateBankOrder(w http.ResponseWriter, r *http.Request) {
	var req bankOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "validation"})
		return
	}

	result, err := h.checkout.CreateBankOrder(r.Context(), service.BankOrderRequest{
		ItemID:            req.ItemID,
		Name:              req.Name,
		Email:             req.Email,
		Phone:             req.Phone,
		Address:           req.Address,
		City:              req.City,
		Zip:               req.Zip,
		Country:           req.Country,
		CustomAmountCents: req.CustomAmountCents,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"order_id":     result.OrderID,
		"reference":    result.Reference,
		"amount_cents": result.AmountCents,
		"bank_details": result.BankDetails,
	})
}

type cardIntentRequest struct {
	ItemID string `json:"item_id"`
	shippingRequest
}

func (h *CheckoutHandler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req cardIntentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "validation"})
		return
	}

	result, err := h.checkout.CreateCardIntent(r.Context(), service.CardIntentRequest{
		ItemID:  req.ItemID,
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
		City:    req.City,
		Zip:     req.Zip,
		Country: req.Country,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"payment_intent_id": result.IntentID,
		"client_secret":     result.ClientSecret,
		"publishable_key":   result.PublishableKey,
		"amount_cents":      result.AmountCents,
	})
}

func (h *CheckoutHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentIntentID string `json:"payment_intent_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "validation"})
		return
	}

	outcome, err := h.checkout.ConfirmCardPayment(r.Context(), req.PaymentIntentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"order_id":     outcome.OrderID,
		"already_paid": outcome.AlreadyPaid,
	})
}

func (h *CheckoutHandler) StripeConfigured(w http.ResponseWriter, r *http.Request) {
	configured, err := h.checkout.CardConfigured(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"configured": configured})
}

func (h *CheckoutHandler) CreatePayPalOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID    string `json:"item_id"`
		ReturnURL string `json:"return_url"`
		CancelURL string `json:"cancel_url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "validation"})
		return
	}

	orderID, err := h.checkout.CreateWalletOrder(r.Context(), service.WalletOrderRequest{
		ItemID:    req.ItemID,
		ReturnURL: req.ReturnURL,
		CancelURL: req.CancelURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"paypal_order_id": orderID})
}

func (h *CheckoutHandler) CapturePayPalOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PayPalOrderID string `json:"paypal_order_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "validation"})
		return
	}

	outcome, err := h.checkout.CaptureWalletOrder(r.Context(), req.PayPalOrderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"order_id":     outcome.OrderID,
		"already_paid": outcome.AlreadyPaid,
	})
}

func (h *CheckoutHandler) CalculateShipping(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Country string `json:"country"`
		Size    string `json:"size"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Country == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "country is required", Code: "validation"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"zone":           domain.ShippingZoneFor(req.Country),
		"shipping_cents": domain.ShippingCents(req.Country, req.Size),
	})
}

func (h *CheckoutHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

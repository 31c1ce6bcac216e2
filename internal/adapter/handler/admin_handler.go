package handler

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/atelier-gallery/atelier/internal/core/domain"
	"github.com/atelier-gallery/atelier/internal/core/service"
)

// AdminHandler is the operator surface. Every route requires the admin
// token; the handlers themselves stay thin and let the services decide.
type AdminHandler struct {
	admin    *service.AdminService
	checkout *service.CheckoutService
	token    string
}

func NewAdminHandler(admin *service.AdminService, checkout *service.CheckoutService, token string) *AdminHandler {
	return &AdminHandler{admin: admin, checkout: checkout, token: token}
}

func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/admin/items", h.auth(h.ListItems))
	mux.HandleFunc("POST /api/admin/items", h.auth(h.CreateItem))
	mux.HandleFunc("GET /api/admin/items/{id}", h.auth(h.GetItem))
	mux.HandleFunc("PUT /api/admin/items/{id}", h.auth(h.UpdateItem))
	mux.HandleFunc("POST /api/admin/items/{id}/status", h.auth(h.SetItemStatus))
	mux.HandleFunc("DELETE /api/admin/items/{id}", h.auth(h.DeleteItem))
	mux.HandleFunc("GET /api/admin/orders", h.auth(h.ListOrders))
	mux.HandleFunc("GET /api/admin/orders/{id}", h.auth(h.GetOrder))
	mux.HandleFunc("POST /api/admin/orders/{id}/mark-paid", h.auth(h.MarkOrderPaid))
	mux.HandleFunc("GET /api/admin/settings", h.auth(h.Settings))
	mux.HandleFunc("PUT /api/admin/settings", h.auth(h.PutSettings))
	mux.HandleFunc("GET /api/admin/reconciliation", h.auth(h.Reconciliation))
}

func (h *AdminHandler) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.token == "" {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "admin access not configured", Code: "not_configured"})
			return
		}
		got := r.Header.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		next(w, r)
	}
}

type itemRequest struct {
	Slug              string `json:"slug"`
	Category          string `json:"category"`
	PriceCents        int64  `json:"price_cents"`
	Size              string `json:"size"`
	Finish            string `json:"finish"`
	ProviderProductID string `json:"provider_product_id"`
	ProviderPriceID   string `json:"provider_price_id"`
	Status            string `json:"status"`
}

func (r itemRequest) input() service.ItemInput {
	return service.ItemInput{
		Slug:              r.Slug,
		Category:          r.Category,
		PriceCents:        r.PriceCents,
		Size:              r.Size,
		Finish:            r.Finish,
		ProviderProductID: r.ProviderProductID,
		ProviderPriceID:   r.ProviderPriceID,
	}
}

func (h *AdminHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.admin.ListItems(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AdminHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "validation"})
		return
	}
	item, err := h.admin.CreateItem(r.Context(), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *AdminHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.admin.GetItem(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *AdminHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "validation"})
		return
	}
	item, err := h.admin.UpdateItem(r.Context(), r.PathValue("id"), req.input(), domain.ItemStatus(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *AdminHandler) SetItemStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "validation"})
		return
	}
	if err := h.admin.SetItemStatus(r.Context(), r.PathValue("id"), domain.ItemStatus(req.Status)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

func (h *AdminHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.DeleteItem(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.admin.ListOrders(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *AdminHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.admin.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// MarkOrderPaid settles a bank-transfer order once the operator has
// matched the incoming payment against the order reference.
func (h *AdminHandler) MarkOrderPaid(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor string `json:"actor"`
	}
	_ = decodeJSON(r, &req)
	if req.Actor == "" {
		req.Actor = "admin"
	}

	outcome, err := h.checkout.MarkOrderPaid(r.Context(), r.PathValue("id"), req.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"order_id":     outcome.OrderID,
		"already_paid": outcome.AlreadyPaid,
	})
}

func (h *AdminHandler) Settings(w http.ResponseWriter, r *http.Request) {
	overview, err := h.admin.SettingsOverview(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *AdminHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Values map[string]string `json:"values"`
		Actor  string            `json:"actor"`
	}
	if err := decodeJSON(r, &req); err != nil || len(req.Values) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "validation"})
		return
	}
	if req.Actor == "" {
		req.Actor = "admin"
	}
	if err := h.admin.PutSettings(r.Context(), req.Values, req.Actor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *AdminHandler) Reconciliation(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	entries, err := h.admin.Reconciliation(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

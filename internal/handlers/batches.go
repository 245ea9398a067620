package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/julienbonastre/fullstock/internal/inventory"
	"github.com/julienbonastre/fullstock/internal/middleware"
)

// CreateBatchRequest lists the products and quantities of a new shipment
type CreateBatchRequest struct {
	Items    []inventory.BatchItem `json:"items"`
	SentDate string                `json:"sent_date"`
}

// GetBatches returns the user's shipments
func (h *Handler) GetBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.db.ListBatches(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if batches == nil {
		batches = []inventory.Batch{}
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"batches": batches,
		"total":   len(batches),
	})
}

// CreateBatch ships factory stock towards the Full warehouse
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	sent := h.now()
	if req.SentDate != "" {
		t, err := time.Parse(time.DateOnly, req.SentDate)
		if err != nil {
			h.writeError(w, r, inventory.Invalid("sent_date", "sent date must be YYYY-MM-DD"))
			return
		}
		sent = t
	}

	userID := middleware.GetUserID(r.Context())
	products, err := h.db.ListProducts(r.Context(), userID, h.now(), h.cfg.Marketplace.SalesWindowDays)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	plan, err := inventory.PlanShipment(userID, products, req.Items, sent)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.db.ApplyShipment(r.Context(), plan); err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusCreated, plan.Batch)
}

// ReceiveBatch marks a shipment as arrived at the Full warehouse
func (h *Handler) ReceiveBatch(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	batch, err := h.db.GetBatch(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	products, err := h.db.ListProducts(r.Context(), userID, h.now(), h.cfg.Marketplace.SalesWindowDays)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	received, updated, err := inventory.ReceiveShipment(*batch, products, h.now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.db.UpdateShipment(r.Context(), received, updated); err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, received)
}

// CancelBatch cancels a shipment that has not arrived and returns its stock
// to the factory
func (h *Handler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	batch, err := h.db.GetBatch(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	products, err := h.db.ListProducts(r.Context(), userID, h.now(), h.cfg.Marketplace.SalesWindowDays)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	cancelled, updated, err := inventory.CancelShipment(*batch, products)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.db.UpdateShipment(r.Context(), cancelled, updated); err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, cancelled)
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/julienbonastre/fullstock/internal/database"
	"github.com/julienbonastre/fullstock/internal/middleware"
)

// SyncNow pulls Full stock and sales from Mercado Livre and returns the
// refreshed product list
func (h *Handler) SyncNow(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	result, err := h.syncer.SyncUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	products, threshold, err := h.listProducts(r, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"products":  productViews(products, threshold),
		"warnings":  result.Warnings,
		"simulated": result.Simulated,
	})
}

// ImportListings creates products for active listings not tracked yet
func (h *Handler) ImportListings(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	created, err := h.syncer.ImportUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{"created": created})
}

// GetSyncHistory returns sync history
func (h *Handler) GetSyncHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	history, err := h.db.GetSyncHistory(r.Context(), middleware.GetUserID(r.Context()), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if history == nil {
		history = []database.SyncRun{}
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"history": history,
		"total":   len(history),
	})
}

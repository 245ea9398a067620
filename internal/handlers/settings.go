package handlers

import (
	"net/http"

	"github.com/julienbonastre/fullstock/internal/calculator"
	"github.com/julienbonastre/fullstock/internal/inventory"
	"github.com/julienbonastre/fullstock/internal/middleware"
)

// UpdateSettingsRequest changes the user's alert preferences
type UpdateSettingsRequest struct {
	AlertThresholdDays int `json:"alert_threshold_days"`
}

// GetSettings returns the user's settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.db.GetSettings(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, settings)
}

// UpdateSettings stores the user's alert threshold
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.AlertThresholdDays < 1 || req.AlertThresholdDays > 365 {
		h.writeError(w, r, inventory.Invalid("alert_threshold_days", "alert threshold must be between 1 and 365 days"))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.db.UpdateSettings(r.Context(), userID, req.AlertThresholdDays); err != nil {
		h.writeError(w, r, err)
		return
	}

	settings, err := h.db.GetSettings(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, settings)
}

// GetDashboard returns stock totals, today's sales and rupture alerts
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	products, threshold, err := h.listProducts(r, middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	stats := calculator.CalculateDashboard(calculator.CalculateDashboardParams{
		Products:      products,
		Today:         h.now(),
		ThresholdDays: threshold,
	})

	critical := make([]productView, 0)
	for _, v := range productViews(products, threshold) {
		if v.Rupture.Status == calculator.StatusCritical {
			critical = append(critical, v)
		}
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"stats":    stats,
		"critical": critical,
	})
}

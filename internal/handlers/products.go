package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/julienbonastre/fullstock/internal/calculator"
	"github.com/julienbonastre/fullstock/internal/database"
	"github.com/julienbonastre/fullstock/internal/inventory"
	"github.com/julienbonastre/fullstock/internal/middleware"
)

// productView is a product with its stockout prediction
type productView struct {
	inventory.Product
	Rupture calculator.RupturePrediction `json:"rupture"`
}

func productViews(products []inventory.Product, thresholdDays int) []productView {
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, productView{
			Product: p,
			Rupture: calculator.PredictRupture(p.StockFull, p.AvgDailySales, thresholdDays),
		})
	}
	return views
}

// listProducts loads the user's products sorted by stockout risk, along with
// their alert threshold
func (h *Handler) listProducts(r *http.Request, userID string) ([]inventory.Product, int, error) {
	settings, err := h.db.GetSettings(r.Context(), userID)
	if err != nil {
		return nil, 0, err
	}
	products, err := h.db.ListProducts(r.Context(), userID, h.now(), h.cfg.Marketplace.SalesWindowDays)
	if err != nil {
		return nil, 0, err
	}
	calculator.SortByRupture(products, settings.AlertThresholdDays)
	return products, settings.AlertThresholdDays, nil
}

// GetProducts returns the user's products
func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, threshold, err := h.listProducts(r, middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"products": productViews(products, threshold),
		"total":    len(products),
	})
}

// CreateProduct adds a manually entered product
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req inventory.NewProduct
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}

	p := req.Build(middleware.GetUserID(r.Context()))
	if err := h.db.CreateProduct(r.Context(), p); err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusCreated, p)
}

// UpdateFactoryStockRequest sets the stock held at the factory
type UpdateFactoryStockRequest struct {
	StockFactory *int `json:"stock_factory"`
}

// UpdateFactoryStock sets the factory stock of one product
func (h *Handler) UpdateFactoryStock(w http.ResponseWriter, r *http.Request) {
	var req UpdateFactoryStockRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.StockFactory == nil {
		h.writeError(w, r, inventory.Invalid("stock_factory", "factory stock is required"))
		return
	}
	if err := inventory.ValidateFactoryStock(*req.StockFactory); err != nil {
		h.writeError(w, r, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	id := chi.URLParam(r, "id")
	if err := h.db.UpdateProductStock(r.Context(), userID, id, database.StockUpdate{Factory: req.StockFactory}); err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.db.GetProduct(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

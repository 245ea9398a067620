package mercadolivre

import "time"

// MockToken is the access token stored for demo-mode connections. It is never
// sent to the provider.
const MockToken = "mock_token"

// LogisticFulfillment is the logistic type of items stocked in a Full warehouse.
const LogisticFulfillment = "fulfillment"

// AuthRequest is a started authorization attempt. The caller keeps Verifier
// and State server-side until the callback arrives.
type AuthRequest struct {
	URL         string
	Verifier    string
	State       string
	RedirectURI string
}

// TokenSet is the result of a code exchange or refresh.
type TokenSet struct {
	AccessToken       string    `json:"access_token"`
	RefreshToken      string    `json:"refresh_token"`
	MarketplaceUserID string    `json:"user_id"`
	Expiry            time.Time `json:"expiry,omitempty"`
}

// StockItem is a listing as seen by the marketplace.
type StockItem struct {
	MarketplaceItemID string `json:"ml_item_id"`
	Title             string `json:"title"`
	SKU               string `json:"sku"`
	StockFull         int    `json:"stock_full"`
	Permalink         string `json:"permalink,omitempty"`
	Thumbnail         string `json:"thumbnail,omitempty"`
	LogisticType      string `json:"logistic_type,omitempty"`
}

// SalesHistory groups sold quantities by SKU then by day (YYYY-MM-DD).
type SalesHistory map[string]map[string]int

// Add records qty units of sku sold on day.
func (h SalesHistory) Add(sku, day string, qty int) {
	byDay, ok := h[sku]
	if !ok {
		byDay = make(map[string]int)
		h[sku] = byDay
	}
	byDay[day] += qty
}

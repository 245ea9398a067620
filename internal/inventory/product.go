package inventory

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/julienbonastre/fullstock/internal/mercadolivre"
)

// Product is one SKU tracked across the factory, in-transit shipments and the
// Full warehouse.
type Product struct {
	ID                string          `json:"id"`
	UserID            string          `json:"-"`
	SKU               string          `json:"sku"`
	Title             string          `json:"title"`
	ImageURL          string          `json:"image_url"`
	CostPerUnit       decimal.Decimal `json:"cost_per_unit"`
	StockFactory      int             `json:"stock_factory"`
	StockScheduled    int             `json:"stock_scheduled"`
	StockFull         int             `json:"stock_full"`
	AvgDailySales     float64         `json:"avg_daily_sales"`
	SalesHistory      []Sale          `json:"sales_history"`
	MarketplaceItemID string          `json:"ml_item_id,omitempty"`
}

// Sale is the quantity sold on one day (YYYY-MM-DD).
type Sale struct {
	Date     string `json:"date"`
	Quantity int    `json:"quantity"`
}

// TotalStock is the sum of the three stock locations.
func (p Product) TotalStock() int {
	return p.StockFactory + p.StockScheduled + p.StockFull
}

// NewProduct builds the record for a manually entered product.
type NewProduct struct {
	SKU               string          `json:"sku"`
	Title             string          `json:"title"`
	ImageURL          string          `json:"image_url"`
	CostPerUnit       decimal.Decimal `json:"cost_per_unit"`
	StockFactory      int             `json:"stock_factory"`
	MarketplaceItemID string          `json:"ml_item_id,omitempty"`
}

// Validate checks the fields of a manual product entry.
func (n NewProduct) Validate() error {
	if n.SKU == "" {
		return Invalid("sku", "sku is required")
	}
	if n.Title == "" {
		return Invalid("title", "title is required")
	}
	if n.CostPerUnit.IsNegative() {
		return Invalid("cost_per_unit", "cost per unit cannot be negative")
	}
	if n.StockFactory < 0 {
		return Invalid("stock_factory", "factory stock cannot be negative")
	}
	return nil
}

// Build assigns an id and returns the product owned by userID.
func (n NewProduct) Build(userID string) Product {
	return Product{
		ID:                uuid.NewString(),
		UserID:            userID,
		SKU:               n.SKU,
		Title:             n.Title,
		ImageURL:          n.ImageURL,
		CostPerUnit:       n.CostPerUnit,
		StockFactory:      n.StockFactory,
		MarketplaceItemID: n.MarketplaceItemID,
	}
}

// FromListing builds a product for an imported marketplace listing. It starts
// with no factory stock and a zero unit cost.
func FromListing(userID string, item mercadolivre.StockItem) Product {
	return Product{
		ID:                uuid.NewString(),
		UserID:            userID,
		SKU:               item.SKU,
		Title:             item.Title,
		ImageURL:          item.Thumbnail,
		CostPerUnit:       decimal.Zero,
		StockFull:         item.StockFull,
		MarketplaceItemID: item.MarketplaceItemID,
	}
}

// ValidateFactoryStock checks a factory stock value entered by the user.
func ValidateFactoryStock(qty int) error {
	if qty < 0 {
		return Invalid("stock_factory", "factory stock cannot be negative")
	}
	return nil
}

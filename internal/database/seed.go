package database

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/julienbonastre/fullstock/internal/inventory"
)

type demoProduct struct {
	sku, title           string
	cost                 string
	factory, sched, full int
	maxDaily, minDaily   int
}

var demoCatalog = []demoProduct{
	{"HEAD-BT-001", "Headphone Bluetooth Noise Cancelling", "45.00", 150, 0, 12, 6, 0},
	{"MOUSE-GAMER-RGB", "Mouse Gamer RGB 12000 DPI", "22.50", 500, 50, 120, 12, 2},
	{"KEYBOARD-MECH", "Teclado Mecânico Switch Blue", "110.00", 20, 0, 5, 4, 0},
	{"WEBCAM-1080P", "Webcam Full HD 1080p com Microfone", "85.00", 0, 10, 45, 3, 0},
}

// SeedDemoProducts gives a demo user a sample catalogue with thirty days of
// sales. Users that already own products are left alone. It returns the
// number of products created.
func (db *DB) SeedDemoProducts(ctx context.Context, userID string, today time.Time, rng *rand.Rand) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products WHERE user_id = ?", userID).Scan(&count); err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil // Already seeded
	}

	products := make([]inventory.Product, 0, len(demoCatalog))
	sales := make(map[string]map[string]int, len(demoCatalog))
	for i, d := range demoCatalog {
		products = append(products, inventory.Product{
			ID:             uuid.NewString(),
			UserID:         userID,
			SKU:            d.sku,
			Title:          d.title,
			ImageURL:       "https://picsum.photos/100/100?random=" + strconv.Itoa(i+1),
			CostPerUnit:    decimal.RequireFromString(d.cost),
			StockFactory:   d.factory,
			StockScheduled: d.sched,
			StockFull:      d.full,
		})

		byDay := make(map[string]int, 30)
		for day := range 30 {
			byDay[today.AddDate(0, 0, -day).Format(time.DateOnly)] = d.minDaily + rng.IntN(d.maxDaily)
		}
		sales[d.sku] = byDay
	}

	if err := db.CreateProducts(ctx, products); err != nil {
		return 0, err
	}
	if err := db.UpsertDailySales(ctx, userID, sales); err != nil {
		return 0, err
	}
	return len(products), nil
}

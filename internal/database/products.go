package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/julienbonastre/fullstock/internal/calculator"
	"github.com/julienbonastre/fullstock/internal/inventory"
)

// StockUpdate changes the stock fields that are non-nil
type StockUpdate struct {
	Factory   *int
	Scheduled *int
	Full      *int
}

const productColumns = `id, user_id, sku, title, image_url, cost_per_unit,
	stock_factory, stock_scheduled, stock_full, COALESCE(ml_item_id, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (inventory.Product, error) {
	var (
		p    inventory.Product
		cost string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.SKU, &p.Title, &p.ImageURL, &cost,
		&p.StockFactory, &p.StockScheduled, &p.StockFull, &p.MarketplaceItemID)
	if err != nil {
		return p, err
	}
	p.CostPerUnit, err = decimal.NewFromString(cost)
	if err != nil {
		return p, fmt.Errorf("invalid cost_per_unit for product %s: %w", p.ID, err)
	}
	return p, nil
}

// ListProducts returns a user's products with their sales history over the
// windowDays ending on today and the derived average daily sales
func (db *DB) ListProducts(ctx context.Context, userID string, today time.Time, windowDays int) ([]inventory.Product, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE user_id = ?
		ORDER BY title, sku
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []inventory.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sales, err := db.salesSince(ctx, userID, today.AddDate(0, 0, -windowDays+1))
	if err != nil {
		return nil, err
	}

	for i := range products {
		history := calculator.FillSalesWindow(sales[products[i].SKU], today, windowDays)
		products[i].SalesHistory = history
		products[i].AvgDailySales = calculator.AverageDailySales(history, windowDays)
	}
	return products, nil
}

// GetProduct returns one product without sales history
func (db *DB) GetProduct(ctx context.Context, userID, id string) (*inventory.Product, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE user_id = ? AND id = ?
	`, userID, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProduct inserts a single product
func (db *DB) CreateProduct(ctx context.Context, p inventory.Product) error {
	return db.CreateProducts(ctx, []inventory.Product{p})
}

// CreateProducts inserts products in one transaction. Either all are created
// or none are.
func (db *DB) CreateProducts(ctx context.Context, products []inventory.Product) error {
	if len(products) == 0 {
		return nil
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO products (id, user_id, sku, title, image_url, cost_per_unit,
				stock_factory, stock_scheduled, stock_full, ml_item_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range products {
			_, err := stmt.ExecContext(ctx, p.ID, p.UserID, p.SKU, p.Title, p.ImageURL, p.CostPerUnit.String(),
				p.StockFactory, p.StockScheduled, p.StockFull, nullIfEmpty(p.MarketplaceItemID))
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateSKU, p.SKU)
			}
			if err != nil {
				return fmt.Errorf("failed to create product %s: %w", p.SKU, err)
			}
		}
		return nil
	})
}

// UpdateProductStock applies a stock update to one product
func (db *DB) UpdateProductStock(ctx context.Context, userID, id string, u StockUpdate) error {
	result, err := db.ExecContext(ctx, `
		UPDATE products
		SET stock_factory = COALESCE(?, stock_factory),
		    stock_scheduled = COALESCE(?, stock_scheduled),
		    stock_full = COALESCE(?, stock_full),
		    updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND id = ?
	`, intPtr(u.Factory), intPtr(u.Scheduled), intPtr(u.Full), userID, id)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveSyncResult persists a sync: the stock_full changes, the fetched daily
// sales and the user's last sync time, in one transaction. A change is only
// applied while the product still holds the value it was computed from, so a
// stock update made during the sync is kept. It returns the number of
// changes applied.
func (db *DB) SaveSyncResult(ctx context.Context, userID string, changes []inventory.StockChange, sales map[string]map[string]int, syncedAt time.Time) (int, error) {
	applied := 0
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		applied = 0
		for _, c := range changes {
			result, err := tx.ExecContext(ctx, `
				UPDATE products SET stock_full = ?, updated_at = CURRENT_TIMESTAMP
				WHERE user_id = ? AND id = ? AND stock_full = ?
			`, c.To, userID, c.ProductID, c.From)
			if err != nil {
				return fmt.Errorf("failed to update product %s: %w", c.ProductID, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return err
			}
			applied += int(n)
		}

		if err := upsertSales(ctx, tx, userID, sales); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, last_sync_at) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET last_sync_at = excluded.last_sync_at
		`, userID, syncedAt.UTC())
		return err
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// UpsertDailySales stores sold quantities keyed by sku then day
func (db *DB) UpsertDailySales(ctx context.Context, userID string, sales map[string]map[string]int) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return upsertSales(ctx, tx, userID, sales)
	})
}

func upsertSales(ctx context.Context, tx *sql.Tx, userID string, sales map[string]map[string]int) error {
	if len(sales) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sales_daily (user_id, sku, day, quantity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, sku, day) DO UPDATE SET quantity = excluded.quantity
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for sku, byDay := range sales {
		for day, qty := range byDay {
			if _, err := stmt.ExecContext(ctx, userID, sku, day, qty); err != nil {
				return fmt.Errorf("failed to store sales for %s on %s: %w", sku, day, err)
			}
		}
	}
	return nil
}

// salesSince loads daily sales from the given day on, grouped by sku
func (db *DB) salesSince(ctx context.Context, userID string, from time.Time) (map[string][]inventory.Sale, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT sku, day, quantity
		FROM sales_daily
		WHERE user_id = ? AND day >= ?
		ORDER BY day
	`, userID, from.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make(map[string][]inventory.Sale)
	for rows.Next() {
		var (
			sku string
			s   inventory.Sale
		)
		if err := rows.Scan(&sku, &s.Date, &s.Quantity); err != nil {
			return nil, err
		}
		sales[sku] = append(sales[sku], s)
	}
	return sales, rows.Err()
}

// updateStock writes all three stock fields of p inside tx
func updateStock(ctx context.Context, tx *sql.Tx, p inventory.Product) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock_factory = ?, stock_scheduled = ?, stock_full = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND id = ?
	`, p.StockFactory, p.StockScheduled, p.StockFull, p.UserID, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update product %s: %w", p.ID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func intPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/julienbonastre/fullstock/internal/inventory"
)

// ApplyShipment stores a new batch and the stock moves it causes in one
// transaction
func (db *DB) ApplyShipment(ctx context.Context, plan *inventory.ShipmentPlan) error {
	items, err := json.Marshal(plan.Batch.Items)
	if err != nil {
		return err
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		b := plan.Batch
		_, err := tx.ExecContext(ctx, `
			INSERT INTO batches (id, user_id, items, total_quantity, status, sent_date, received_date)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, b.ID, b.UserID, string(items), b.TotalQuantity, string(b.Status), b.SentDate, nullIfEmpty(b.ReceivedDate))
		if err != nil {
			return fmt.Errorf("failed to create batch: %w", err)
		}

		for _, p := range plan.Updated {
			if err := updateStock(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateShipment stores a batch status change and the products it moved in
// one transaction
func (db *DB) UpdateShipment(ctx context.Context, batch inventory.Batch, updated []inventory.Product) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE batches SET status = ?, received_date = ?
			WHERE user_id = ? AND id = ?
		`, string(batch.Status), nullIfEmpty(batch.ReceivedDate), batch.UserID, batch.ID)
		if err != nil {
			return fmt.Errorf("failed to update batch: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		for _, p := range updated {
			if err := updateStock(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

const batchColumns = `id, user_id, items, total_quantity, status, sent_date, COALESCE(received_date, '')`

func scanBatch(row rowScanner) (inventory.Batch, error) {
	var (
		b      inventory.Batch
		items  string
		status string
	)
	if err := row.Scan(&b.ID, &b.UserID, &items, &b.TotalQuantity, &status, &b.SentDate, &b.ReceivedDate); err != nil {
		return b, err
	}
	b.Status = inventory.BatchStatus(status)
	if err := json.Unmarshal([]byte(items), &b.Items); err != nil {
		return b, fmt.Errorf("invalid items for batch %s: %w", b.ID, err)
	}
	return b, nil
}

// GetBatch returns one batch
func (db *DB) GetBatch(ctx context.Context, userID, id string) (*inventory.Batch, error) {
	b, err := scanBatch(db.QueryRowContext(ctx, `
		SELECT `+batchColumns+` FROM batches WHERE user_id = ? AND id = ?
	`, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBatches returns a user's batches, newest first
func (db *DB) ListBatches(ctx context.Context, userID string) ([]inventory.Batch, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches
		WHERE user_id = ?
		ORDER BY sent_date DESC, created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []inventory.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

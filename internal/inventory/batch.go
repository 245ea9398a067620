package inventory

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the lifecycle state of a shipment to the Full warehouse.
type BatchStatus string

const (
	BatchPreparing BatchStatus = "PREPARING"
	BatchInTransit BatchStatus = "IN_TRANSIT"
	BatchReceived  BatchStatus = "RECEIVED"
	BatchCancelled BatchStatus = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s BatchStatus) Valid() bool {
	switch s {
	case BatchPreparing, BatchInTransit, BatchReceived, BatchCancelled:
		return true
	}
	return false
}

// BatchItem is one product line of a shipment.
type BatchItem struct {
	ProductID    string `json:"product_id"`
	ProductTitle string `json:"product_title"`
	Quantity     int    `json:"quantity"`
}

// Batch is a shipment of factory stock to the Full warehouse.
type Batch struct {
	ID            string      `json:"id"`
	UserID        string      `json:"-"`
	Items         []BatchItem `json:"items"`
	TotalQuantity int         `json:"total_quantity"`
	Status        BatchStatus `json:"status"`
	SentDate      string      `json:"sent_date"`
	ReceivedDate  string      `json:"received_date,omitempty"`
}

// ShipmentPlan is a validated shipment together with the products it changes.
type ShipmentPlan struct {
	Batch   Batch
	Updated []Product
}

// PlanShipment validates lines against factory stock and moves the shipped
// quantities from factory to scheduled. Duplicate lines for one product are
// summed before validating.
func PlanShipment(userID string, products []Product, lines []BatchItem, sent time.Time) (*ShipmentPlan, error) {
	if len(lines) == 0 {
		return nil, Invalid("items", "a shipment needs at least one item")
	}

	byID := make(map[string]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var (
		order []string
		qty   = make(map[string]int)
	)
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, Invalid("quantity", "quantity must be positive")
		}
		if _, ok := byID[line.ProductID]; !ok {
			return nil, Invalid("product_id", "unknown product %s", line.ProductID)
		}
		if _, seen := qty[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		qty[line.ProductID] += line.Quantity
	}

	plan := &ShipmentPlan{
		Batch: Batch{
			ID:       uuid.NewString(),
			UserID:   userID,
			Status:   BatchInTransit,
			SentDate: sent.Format(time.DateOnly),
		},
	}
	for _, id := range order {
		p := byID[id]
		n := qty[id]
		if n > p.StockFactory {
			return nil, Invalid("quantity", "insufficient factory stock for %s: %d available, %d requested", p.Title, p.StockFactory, n)
		}
		p.StockFactory -= n
		p.StockScheduled += n

		plan.Batch.Items = append(plan.Batch.Items, BatchItem{ProductID: id, ProductTitle: p.Title, Quantity: n})
		plan.Batch.TotalQuantity += n
		plan.Updated = append(plan.Updated, p)
	}
	return plan, nil
}

// ReceiveShipment marks batch as received and moves its quantities from
// scheduled to full. Products no longer present are skipped.
func ReceiveShipment(batch Batch, products []Product, received time.Time) (Batch, []Product, error) {
	switch batch.Status {
	case BatchReceived:
		return batch, nil, Invalid("status", "batch already received")
	case BatchCancelled:
		return batch, nil, Invalid("status", "batch was cancelled")
	}

	byID := make(map[string]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var updated []Product
	for _, item := range batch.Items {
		p, ok := byID[item.ProductID]
		if !ok {
			continue
		}
		p.StockScheduled = max(0, p.StockScheduled-item.Quantity)
		p.StockFull += item.Quantity
		byID[p.ID] = p
		updated = append(updated, p)
	}

	batch.Status = BatchReceived
	batch.ReceivedDate = received.Format(time.DateOnly)
	return batch, dedupeLast(updated), nil
}

// CancelShipment marks an unreceived batch as cancelled and returns its
// quantities from scheduled to factory.
func CancelShipment(batch Batch, products []Product) (Batch, []Product, error) {
	switch batch.Status {
	case BatchReceived:
		return batch, nil, Invalid("status", "batch already received")
	case BatchCancelled:
		return batch, nil, Invalid("status", "batch was cancelled")
	}

	byID := make(map[string]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var updated []Product
	for _, item := range batch.Items {
		p, ok := byID[item.ProductID]
		if !ok {
			continue
		}
		moved := min(item.Quantity, p.StockScheduled)
		p.StockScheduled -= moved
		p.StockFactory += moved
		byID[p.ID] = p
		updated = append(updated, p)
	}

	batch.Status = BatchCancelled
	return batch, dedupeLast(updated), nil
}

// dedupeLast keeps the last version of each product, in first-seen order.
func dedupeLast(products []Product) []Product {
	idx := make(map[string]int, len(products))
	var out []Product
	for _, p := range products {
		if i, ok := idx[p.ID]; ok {
			out[i] = p
			continue
		}
		idx[p.ID] = len(out)
		out = append(out, p)
	}
	return out
}

package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 3, 31, 9, 0, 0, 0, time.UTC)

func TestPlanShipment(t *testing.T) {
	products := []Product{
		{ID: "1", Title: "Headphone", StockFactory: 150, StockScheduled: 0, StockFull: 12},
		{ID: "2", Title: "Mouse", StockFactory: 500, StockScheduled: 50},
	}

	plan, err := PlanShipment("u1", products, []BatchItem{
		{ProductID: "1", Quantity: 30},
		{ProductID: "2", Quantity: 100},
		{ProductID: "1", Quantity: 20},
	}, day)
	require.NoError(t, err)

	assert.Equal(t, BatchInTransit, plan.Batch.Status)
	assert.Equal(t, "2026-03-31", plan.Batch.SentDate)
	assert.Equal(t, 150, plan.Batch.TotalQuantity)
	assert.Equal(t, []BatchItem{
		{ProductID: "1", ProductTitle: "Headphone", Quantity: 50},
		{ProductID: "2", ProductTitle: "Mouse", Quantity: 100},
	}, plan.Batch.Items)

	require.Len(t, plan.Updated, 2)
	assert.Equal(t, 100, plan.Updated[0].StockFactory)
	assert.Equal(t, 50, plan.Updated[0].StockScheduled)
	assert.Equal(t, 12, plan.Updated[0].StockFull)
	assert.Equal(t, 400, plan.Updated[1].StockFactory)
	assert.Equal(t, 150, plan.Updated[1].StockScheduled)
	assert.Equal(t, 150, products[0].StockFactory, "input is not mutated")
}

func TestPlanShipment_Rejections(t *testing.T) {
	products := []Product{{ID: "1", Title: "Keyboard", StockFactory: 20}}

	tests := []struct {
		name  string
		lines []BatchItem
	}{
		{"empty", nil},
		{"zero quantity", []BatchItem{{ProductID: "1", Quantity: 0}}},
		{"unknown product", []BatchItem{{ProductID: "9", Quantity: 1}}},
		{"insufficient", []BatchItem{{ProductID: "1", Quantity: 21}}},
		{"insufficient after aggregation", []BatchItem{{ProductID: "1", Quantity: 15}, {ProductID: "1", Quantity: 6}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PlanShipment("u1", products, tt.lines, day)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestPlanShipment_InsufficientMessageNamesProduct(t *testing.T) {
	_, err := PlanShipment("u1", []Product{{ID: "1", Title: "Keyboard", StockFactory: 2}}, []BatchItem{{ProductID: "1", Quantity: 3}}, day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Keyboard")
}

func TestReceiveShipment(t *testing.T) {
	batch := Batch{
		ID:     "b1",
		Status: BatchInTransit,
		Items: []BatchItem{
			{ProductID: "1", Quantity: 50},
			{ProductID: "gone", Quantity: 5},
		},
	}
	products := []Product{{ID: "1", StockScheduled: 40, StockFull: 12}}

	got, updated, err := ReceiveShipment(batch, products, day)
	require.NoError(t, err)
	assert.Equal(t, BatchReceived, got.Status)
	assert.Equal(t, "2026-03-31", got.ReceivedDate)
	require.Len(t, updated, 1)
	assert.Equal(t, 0, updated[0].StockScheduled, "scheduled is floored at zero")
	assert.Equal(t, 62, updated[0].StockFull)
}

func TestReceiveShipment_Twice(t *testing.T) {
	batch := Batch{ID: "b1", Status: BatchReceived}
	_, _, err := ReceiveShipment(batch, nil, day)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	batch.Status = BatchCancelled
	_, _, err = ReceiveShipment(batch, nil, day)
	assert.ErrorAs(t, err, &ve)
}

func TestCancelShipment(t *testing.T) {
	batch := Batch{ID: "b1", Status: BatchInTransit, Items: []BatchItem{
		{ProductID: "1", Quantity: 10},
		{ProductID: "gone", Quantity: 5},
	}}
	products := []Product{{ID: "1", StockFactory: 2, StockScheduled: 6, StockFull: 3}}

	cancelled, updated, err := CancelShipment(batch, products)
	require.NoError(t, err)
	assert.Equal(t, BatchCancelled, cancelled.Status)
	require.Len(t, updated, 1)
	assert.Equal(t, 8, updated[0].StockFactory)
	assert.Equal(t, 0, updated[0].StockScheduled)
	assert.Equal(t, 3, updated[0].StockFull)

	_, _, err = CancelShipment(cancelled, products)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestBatchStatusValid(t *testing.T) {
	assert.True(t, BatchPreparing.Valid())
	assert.True(t, BatchCancelled.Valid())
	assert.False(t, BatchStatus("LOST").Valid())
}

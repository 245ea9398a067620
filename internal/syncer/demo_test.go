package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julienbonastre/fullstock/internal/inventory"
)

func TestSimulate(t *testing.T) {
	s := newTestService(&stubMarket{}, &stubRefresher{}, newMemStore(), Options{SalesWindowDays: 3})
	s.randFloat = func() float64 { return 0.7 }
	s.randIntN = func(n int) int { return n - 1 }
	today := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	local := []inventory.Product{{
		ID: "p1", SKU: "X", StockFull: 2,
		SalesHistory: []inventory.Sale{
			{Date: "2026-03-28", Quantity: 1},
			{Date: "2026-03-29", Quantity: 2},
			{Date: "2026-03-30", Quantity: 3},
		},
	}}

	result := s.Simulate(local, today)
	require.Len(t, result.Products, 1)
	p := result.Products[0]
	assert.True(t, result.Simulated)
	assert.Equal(t, 0, p.StockFull, "stock never goes below zero")
	assert.Equal(t, []inventory.Sale{
		{Date: "2026-03-29", Quantity: 2},
		{Date: "2026-03-30", Quantity: 3},
		{Date: "2026-03-31", Quantity: 3},
	}, p.SalesHistory)
	assert.InDelta(t, 8.0/3.0, p.AvgDailySales, 1e-9)
	assert.Equal(t, map[string]int{"2026-03-31": 3}, map[string]int(result.Sales["X"]))
	assert.Len(t, local[0].SalesHistory, 3, "input is not mutated")
	assert.Equal(t, 2, local[0].StockFull)
}

func TestSimulate_NoSale(t *testing.T) {
	s := newTestService(&stubMarket{}, &stubRefresher{}, newMemStore(), Options{})
	s.randFloat = func() float64 { return 0.2 }
	today := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	result := s.Simulate([]inventory.Product{{ID: "p1", SKU: "X", StockFull: 5,
		SalesHistory: []inventory.Sale{{Date: "2026-03-31", Quantity: 4}}}}, today)

	p := result.Products[0]
	assert.Equal(t, 5, p.StockFull)
	assert.Equal(t, []inventory.Sale{{Date: "2026-03-31", Quantity: 4}}, p.SalesHistory)
}

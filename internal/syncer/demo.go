package syncer

import (
	"slices"
	"time"

	"github.com/julienbonastre/fullstock/internal/calculator"
	"github.com/julienbonastre/fullstock/internal/inventory"
	"github.com/julienbonastre/fullstock/internal/mercadolivre"
)

// Simulate stands in for a marketplace sync in demo mode. Each product sells
// 0 to 3 units today with a 40% chance, which comes off its Full stock.
func (s *Service) Simulate(local []inventory.Product, today time.Time) *Result {
	day := today.Format(time.DateOnly)
	sales := make(mercadolivre.SalesHistory)

	products := make([]inventory.Product, len(local))
	for i, p := range local {
		sold := 0
		if s.randFloat() > 0.6 {
			sold = s.randIntN(4)
		}

		history := slices.Clone(p.SalesHistory)
		if n := len(history); n > 0 && history[n-1].Date == day {
			history[n-1].Quantity += sold
		} else {
			if n >= s.opts.SalesWindowDays {
				history = history[n-s.opts.SalesWindowDays+1:]
			}
			history = append(history, inventory.Sale{Date: day, Quantity: sold})
		}

		p.SalesHistory = history
		p.StockFull = max(0, p.StockFull-sold)
		p.AvgDailySales = calculator.AverageDailySales(history, s.opts.SalesWindowDays)
		sales.Add(p.SKU, day, history[len(history)-1].Quantity)
		products[i] = p
	}

	return &Result{Products: products, Sales: sales, Simulated: true}
}

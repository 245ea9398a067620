package calculator

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/julienbonastre/fullstock/internal/inventory"
)

// RupturePrediction is the time left until a product runs out at Full
type RupturePrediction struct {
	DaysLeft int           `json:"daysLeft"`
	Status   RuptureStatus `json:"status"`
}

// DashboardStats summarises stock and sales across all products
type DashboardStats struct {
	TotalFull      int             `json:"totalFull"`
	TotalFactory   int             `json:"totalFactory"`
	TotalScheduled int             `json:"totalScheduled"`
	SalesToday     int             `json:"salesToday"`
	RuptureAlerts  int             `json:"ruptureAlerts"`
	StockValue     decimal.Decimal `json:"stockValue"`
}

// AverageDailySales averages sold quantities over a window of days. Days with
// no sale count as zero.
func AverageDailySales(history []inventory.Sale, windowDays int) float64 {
	if windowDays <= 0 {
		windowDays = SalesWindowDays
	}
	total := 0
	for _, s := range history {
		total += s.Quantity
	}
	return float64(total) / float64(windowDays)
}

// PredictRupture classifies stockout risk. thresholdDays is the user's alert
// threshold; zero or less falls back to the default.
func PredictRupture(stockFull int, avgDailySales float64, thresholdDays int) RupturePrediction {
	if avgDailySales <= 0 {
		return RupturePrediction{DaysLeft: Rupture.NoSalesDays, Status: StatusHealthy}
	}
	if thresholdDays <= 0 {
		thresholdDays = Rupture.CriticalDays
	}

	days := int(math.Floor(float64(stockFull) / avgDailySales))
	switch {
	case days <= thresholdDays:
		return RupturePrediction{DaysLeft: days, Status: StatusCritical}
	case days <= max(Rupture.WarningDays, thresholdDays):
		return RupturePrediction{DaysLeft: days, Status: StatusWarning}
	default:
		return RupturePrediction{DaysLeft: days, Status: StatusHealthy}
	}
}

// CalculateDashboardParams holds parameters for the dashboard summary
type CalculateDashboardParams struct {
	Products      []inventory.Product
	Today         time.Time
	ThresholdDays int
}

// CalculateDashboard totals stock, today's sales and critical products
func CalculateDashboard(params CalculateDashboardParams) DashboardStats {
	today := params.Today.Format(time.DateOnly)

	stats := DashboardStats{StockValue: decimal.Zero}
	for _, p := range params.Products {
		stats.TotalFull += p.StockFull
		stats.TotalFactory += p.StockFactory
		stats.TotalScheduled += p.StockScheduled
		stats.StockValue = stats.StockValue.Add(p.CostPerUnit.Mul(decimal.NewFromInt(int64(p.TotalStock()))))

		for _, s := range p.SalesHistory {
			if s.Date == today {
				stats.SalesToday += s.Quantity
			}
		}
		if PredictRupture(p.StockFull, p.AvgDailySales, params.ThresholdDays).Status == StatusCritical {
			stats.RuptureAlerts++
		}
	}
	return stats
}

// FillSalesWindow returns one entry per day for the windowDays days ending on
// today, oldest first, with zero quantity where no sale was recorded.
func FillSalesWindow(history []inventory.Sale, today time.Time, windowDays int) []inventory.Sale {
	if windowDays <= 0 {
		windowDays = SalesWindowDays
	}
	byDay := make(map[string]int, len(history))
	for _, s := range history {
		byDay[s.Date] += s.Quantity
	}

	out := make([]inventory.Sale, windowDays)
	for i := range windowDays {
		day := today.AddDate(0, 0, i-windowDays+1).Format(time.DateOnly)
		out[i] = inventory.Sale{Date: day, Quantity: byDay[day]}
	}
	return out
}

// SortByRupture orders products from the soonest stockout to the latest
func SortByRupture(products []inventory.Product, thresholdDays int) {
	sort.SliceStable(products, func(i, j int) bool {
		a := PredictRupture(products[i].StockFull, products[i].AvgDailySales, thresholdDays)
		b := PredictRupture(products[j].StockFull, products[j].AvgDailySales, thresholdDays)
		return a.DaysLeft < b.DaysLeft
	})
}

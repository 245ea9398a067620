package calculator

// RuptureStatus is the stockout risk level of a product
type RuptureStatus string

const (
	StatusCritical RuptureStatus = "CRITICAL"
	StatusWarning  RuptureStatus = "WARNING"
	StatusHealthy  RuptureStatus = "HEALTHY"
)

// RuptureBands holds the day limits used to classify stockout risk
type RuptureBands struct {
	CriticalDays int `json:"criticalDays"` // at or below: CRITICAL
	WarningDays  int `json:"warningDays"`  // at or below: WARNING
	NoSalesDays  int `json:"noSalesDays"`  // reported when nothing sells
}

// Rupture is the default classification. CriticalDays is overridden by the
// user's alert threshold.
var Rupture = RuptureBands{
	CriticalDays: 5,
	WarningDays:  15,
	NoSalesDays:  999,
}

// SalesWindowDays is the look-back window averaged for daily sales
const SalesWindowDays = 30

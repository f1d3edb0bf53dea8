package utils

import (
	"time"
)

// YearFraction computes the year fraction between two dates on the ACT/365F
// basis shared by every rate model in this module.
func YearFraction(start, end time.Time) float64 {
	return end.Sub(start).Hours() / 24 / 365.0
}

// TenorYears converts a tenor in days to years on the ACT/365F basis.
func TenorYears(days int) float64 {
	return float64(days) / 365.0
}

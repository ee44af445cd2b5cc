package marketdata

import "time"

var intervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "10m": true, "15m": true, "30m": true,
	"1h": true, "D": true, "W": true, "M": true,
}

// ConvertInterval maps a scanner interval onto an OpenAlgo one. Unknown
// intervals fall back to daily.
func ConvertInterval(interval string) string {
	if intervals[interval] {
		return interval
	}
	return "D"
}

// DefaultIntervals is reported when the server cannot be asked.
func DefaultIntervals() map[string][]string {
	return map[string][]string{
		"minutes": {"1m", "3m", "5m", "10m", "15m", "30m"},
		"hours":   {"1h"},
		"days":    {"D"},
		"weeks":   {},
		"months":  {},
	}
}

// dateRange returns the calendar window ending at now covering lookbackDays.
func dateRange(now time.Time, lookbackDays int) (time.Time, time.Time) {
	return now.AddDate(0, 0, -lookbackDays), now
}

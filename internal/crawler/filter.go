package crawler

import "time"

// FilterByMonth returns the dates that fall in year/month, keeping their order
func FilterByMonth(dates []AvailableDate, year int, month time.Month) []AvailableDate {
	filtered := make([]AvailableDate, 0, len(dates))
	for _, d := range dates {
		if d.Year == year && d.Month == month {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

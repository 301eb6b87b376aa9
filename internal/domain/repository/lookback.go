package repository

const (
	// DefaultHistoryDays is the calendar window fetched for scoring and forecasting.
	DefaultHistoryDays = 365
	// TrainingHistoryDays is the calendar window fetched before training a model.
	TrainingHistoryDays = 1825

	minHistoryDays = 120
	maxHistoryDays = 3650
)

// IsValidHistoryDays returns true if n is a supported lookback window.
func IsValidHistoryDays(n int) bool {
	return n >= minHistoryDays && n <= maxHistoryDays
}

// NormalizeHistoryDays converts a raw lookback to a supported one (or the default).
func NormalizeHistoryDays(n int) int {
	if n == 0 {
		return DefaultHistoryDays
	}
	if n < minHistoryDays {
		return minHistoryDays
	}
	if n > maxHistoryDays {
		return maxHistoryDays
	}
	return n
}

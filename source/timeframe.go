package source

import (
	"time"

	"tokenflow/models"
)

// Window maps a feed timeframe onto the lookback duration adapters use when
// a provider cannot filter server-side. Unknown values fall back to 24h.
func Window(timeframe string) time.Duration {
	switch timeframe {
	case models.Timeframe1h:
		return time.Hour
	case models.Timeframe7d:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// ClampLimit bounds a requested limit to (0, max].
func ClampLimit(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}

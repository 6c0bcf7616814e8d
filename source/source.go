// Package source holds the boundary adapters that translate one upstream
// provider's API into canonical tokens. Adapters own their provider's auth,
// rate limit and response shape; they report failures as soft errors and
// never panic past their boundary.
package source

import (
	"context"

	"tokenflow/models"
)

// Adapter fetches token-launch records from one upstream provider.
//
// Fetch must honour ctx cancellation, bound every network call with the
// provider's configured timeout, and return an empty slice together with the
// error on any failure. A provider without its required credentials fetches
// as always-empty rather than erroring.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, limit int, timeframe string) ([]models.Token, error)
}

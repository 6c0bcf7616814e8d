// Package dexscreener reads Solana pair data from the DexScreener public
// API. DexScreener reports numbers as decimal strings and pair creation
// times as epoch milliseconds.
package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"tokenflow/config"
	"tokenflow/logger"
	"tokenflow/models"
	"tokenflow/source"
)

const maxFetchLimit = 100

// Client fetches Solana pairs from DexScreener.
type Client struct {
	cfg        config.ProviderConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Log
}

// NewClient creates a DexScreener source adapter.
func NewClient(cfg config.ProviderConfig) *Client {
	rps := cfg.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     logger.GetLogger(),
	}
}

// Name returns the source tag this adapter writes into tokens.
func (c *Client) Name() string {
	return models.SourceDexScreener
}

// Fetch searches for recent Solana pairs and normalizes them.
func (c *Client) Fetch(ctx context.Context, limit int, timeframe string) ([]models.Token, error) {
	log := c.log.WithComponent("dexscreener_source").WithFields(logger.Fields{"operation": "fetch"})

	if !c.cfg.Enabled {
		return nil, nil
	}

	limit = source.ClampLimit(limit, maxFetchLimit)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	q := url.Values{}
	q.Set("q", "solana")
	reqURL := fmt.Sprintf("%s/latest/dex/search?%s", c.cfg.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("failed to fetch dexscreener pairs")
		return nil, fmt.Errorf("fetch pairs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.WithFields(logger.Fields{"status": resp.StatusCode}).Warn("dexscreener returned non-OK status")
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var search searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&search); err != nil {
		log.WithError(err).Warn("failed to decode dexscreener response")
		return nil, fmt.Errorf("decode pairs: %w", err)
	}

	logger.LogPerformanceEntry(log, "dexscreener_source", "api_request", time.Since(start), nil)

	cutoff := time.Now().Add(-source.Window(timeframe))
	tokens := make([]models.Token, 0, limit)
	for i := range search.Pairs {
		if len(tokens) >= limit {
			break
		}
		tok := normalizePair(&search.Pairs[i])
		if tok == nil {
			continue
		}
		if tok.CreatedAt.Before(cutoff) {
			continue
		}
		tokens = append(tokens, *tok)
	}

	logger.IncrementSourceFetch(c.Name(), len(tokens))
	log.WithFields(logger.Fields{"count": len(tokens)}).Debug("dexscreener pairs fetched")
	return tokens, nil
}

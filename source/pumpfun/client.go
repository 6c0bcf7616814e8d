// Package pumpfun reads freshly launched bonding-curve tokens from the
// pump.fun frontend API.
package pumpfun

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"tokenflow/config"
	"tokenflow/logger"
	"tokenflow/models"
	"tokenflow/source"
)

const maxFetchLimit = 100

// Client fetches recent token launches from pump.fun.
type Client struct {
	cfg        config.ProviderConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Log
}

// NewClient creates a pump.fun source adapter.
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
	return models.SourcePumpFun
}

// Fetch pulls the newest coins and normalizes them. Failures are returned as
// soft errors with an empty result.
func (c *Client) Fetch(ctx context.Context, limit int, timeframe string) ([]models.Token, error) {
	log := c.log.WithComponent("pumpfun_source").WithFields(logger.Fields{"operation": "fetch"})

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
	q.Set("offset", "0")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sort", "created_timestamp")
	q.Set("order", "DESC")
	q.Set("includeNsfw", "false")

	reqURL := fmt.Sprintf("%s/coins?%s", c.cfg.BaseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("failed to fetch pump.fun coins")
		return nil, fmt.Errorf("fetch coins: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.WithFields(logger.Fields{"status": resp.StatusCode}).Warn("pump.fun returned non-OK status")
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var coins []coinResponse
	if err := json.NewDecoder(resp.Body).Decode(&coins); err != nil {
		log.WithError(err).Warn("failed to decode pump.fun response")
		return nil, fmt.Errorf("decode coins: %w", err)
	}

	logger.LogPerformanceEntry(log, "pumpfun_source", "api_request", time.Since(start), nil)

	cutoff := time.Now().Add(-source.Window(timeframe))
	tokens := make([]models.Token, 0, len(coins))
	for i := range coins {
		tok := normalizeCoin(&coins[i])
		if tok == nil {
			continue
		}
		if tok.CreatedAt.Before(cutoff) {
			continue
		}
		tokens = append(tokens, *tok)
	}

	logger.IncrementSourceFetch(c.Name(), len(tokens))
	log.WithFields(logger.Fields{"count": len(tokens)}).Debug("pump.fun coins fetched")
	return tokens, nil
}

// Package birdeye reads the Birdeye token list. Birdeye requires an API key
// sent in the X-API-KEY header; when the key is absent the adapter degrades
// to always-empty instead of failing the aggregation. Birdeye is the
// authoritative source for priceUsd and marketCapUsd.
package birdeye

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

// Client fetches token market data from Birdeye.
type Client struct {
	cfg        config.ProviderConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Log
}

// NewClient creates a Birdeye source adapter.
func NewClient(cfg config.ProviderConfig) *Client {
	log := logger.GetLogger()

	if cfg.Enabled && cfg.APIKey == "" {
		log.WithComponent("birdeye_source").Warn("birdeye enabled without api key; adapter will return empty results")
	}

	rps := cfg.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 2
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
		log:     log,
	}
}

// Name returns the source tag this adapter writes into tokens.
func (c *Client) Name() string {
	return models.SourceBirdeye
}

// Fetch pulls the token list sorted by 24h volume and normalizes it.
func (c *Client) Fetch(ctx context.Context, limit int, timeframe string) ([]models.Token, error) {
	log := c.log.WithComponent("birdeye_source").WithFields(logger.Fields{"operation": "fetch"})

	if !c.cfg.Enabled || c.cfg.APIKey == "" {
		return nil, nil
	}

	limit = source.ClampLimit(limit, maxFetchLimit)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	q := url.Values{}
	q.Set("sort_by", "v24hUSD")
	q.Set("sort_type", "desc")
	q.Set("offset", "0")
	q.Set("limit", strconv.Itoa(limit))
	reqURL := fmt.Sprintf("%s/defi/tokenlist?%s", c.cfg.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.cfg.APIKey)
	req.Header.Set("x-chain", "solana")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("failed to fetch birdeye token list")
		return nil, fmt.Errorf("fetch token list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.WithFields(logger.Fields{"status": resp.StatusCode}).Warn("birdeye returned non-OK status")
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var list listResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		log.WithError(err).Warn("failed to decode birdeye response")
		return nil, fmt.Errorf("decode token list: %w", err)
	}
	if !list.Success {
		log.Warn("birdeye reported unsuccessful response")
		return nil, fmt.Errorf("birdeye response not successful")
	}

	logger.LogPerformanceEntry(log, "birdeye_source", "api_request", time.Since(start), nil)

	tokens := make([]models.Token, 0, len(list.Data.Tokens))
	for i := range list.Data.Tokens {
		if tok := normalizeItem(&list.Data.Tokens[i]); tok != nil {
			tokens = append(tokens, *tok)
		}
	}

	logger.IncrementSourceFetch(c.Name(), len(tokens))
	log.WithFields(logger.Fields{"count": len(tokens)}).Debug("birdeye tokens fetched")
	return tokens, nil
}

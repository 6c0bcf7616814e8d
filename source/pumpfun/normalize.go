package pumpfun

import (
	"time"

	"tokenflow/models"
)

const (
	lamportsPerSol = 1e9
	tokenBaseUnits = 1e6 // pump.fun mints use 6 decimals
)

// coinResponse mirrors the pump.fun frontend API coin shape. Timestamps are
// epoch milliseconds, reserve amounts are raw base units.
type coinResponse struct {
	Mint                 string  `json:"mint"`
	Name                 string  `json:"name"`
	Symbol               string  `json:"symbol"`
	ImageURI             string  `json:"image_uri"`
	CreatedTimestamp     int64   `json:"created_timestamp"`
	UsdMarketCap         float64 `json:"usd_market_cap"`
	MarketCap            float64 `json:"market_cap"` // denominated in SOL
	VirtualSolReserves   float64 `json:"virtual_sol_reserves"`
	VirtualTokenReserves float64 `json:"virtual_token_reserves"`
	ReplyCount           int     `json:"reply_count"`
	Complete             bool    `json:"complete"`
}

// normalizeCoin converts one raw coin into the canonical token, or nil when
// the record is missing its identity fields.
func normalizeCoin(c *coinResponse) *models.Token {
	if c == nil || c.Mint == "" || c.Symbol == "" {
		return nil
	}

	now := time.Now().UTC()
	tok := &models.Token{
		Address:      c.Mint,
		Symbol:       c.Symbol,
		Name:         c.Name,
		MarketCapUsd: c.UsdMarketCap,
		LogoURL:      c.ImageURI,
		Source:       models.SourcePumpFun,
		ObservedAt:   now,
	}

	if c.CreatedTimestamp > 0 {
		tok.CreatedAt = time.UnixMilli(c.CreatedTimestamp).UTC()
	}

	// The bonding curve quotes everything in SOL. usd_market_cap/market_cap
	// is the implied SOL price, which converts the curve price to USD.
	if c.VirtualSolReserves > 0 && c.VirtualTokenReserves > 0 && c.MarketCap > 0 {
		priceSol := (c.VirtualSolReserves / lamportsPerSol) / (c.VirtualTokenReserves / tokenBaseUnits)
		solUsd := c.UsdMarketCap / c.MarketCap
		tok.PriceUsd = priceSol * solUsd
		tok.LiquidityUsd = (c.VirtualSolReserves / lamportsPerSol) * solUsd
	}

	return tok
}

package dexscreener

import (
	"strconv"
	"time"

	"tokenflow/models"
)

type searchResponse struct {
	SchemaVersion string `json:"schemaVersion"`
	Pairs         []pair `json:"pairs"`
}

type pair struct {
	ChainID   string `json:"chainId"`
	DexID     string `json:"dexId"`
	BaseToken struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUsd string `json:"priceUsd"`
	Txns     struct {
		H24 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	MarketCap     float64 `json:"marketCap"`
	FDV           float64 `json:"fdv"`
	PairCreatedAt int64   `json:"pairCreatedAt"`
	Info          struct {
		ImageURL string `json:"imageUrl"`
	} `json:"info"`
}

// normalizePair converts one DexScreener pair into the canonical token.
// Non-Solana pairs and pairs without identity fields are dropped.
func normalizePair(p *pair) *models.Token {
	if p == nil || p.ChainID != "solana" {
		return nil
	}
	if p.BaseToken.Address == "" || p.BaseToken.Symbol == "" {
		return nil
	}

	tok := &models.Token{
		Address:          p.BaseToken.Address,
		Symbol:           p.BaseToken.Symbol,
		Name:             p.BaseToken.Name,
		LiquidityUsd:     p.Liquidity.USD,
		Volume24hUsd:     p.Volume.H24,
		TransactionCount: p.Txns.H24.Buys + p.Txns.H24.Sells,
		LogoURL:          p.Info.ImageURL,
		Source:           models.SourceDexScreener,
		ObservedAt:       time.Now().UTC(),
	}

	// priceUsd arrives as a decimal string; malformed values stay zero.
	if p.PriceUsd != "" {
		if v, err := strconv.ParseFloat(p.PriceUsd, 64); err == nil {
			tok.PriceUsd = v
		}
	}

	tok.MarketCapUsd = p.MarketCap
	if tok.MarketCapUsd == 0 {
		tok.MarketCapUsd = p.FDV
	}

	if p.PairCreatedAt > 0 {
		tok.CreatedAt = time.UnixMilli(p.PairCreatedAt).UTC()
	}

	return tok
}

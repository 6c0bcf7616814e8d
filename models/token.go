package models

import (
	"time"
)

// Source tags identify which upstream produced or most recently updated a
// token. They appear in Token.Source and in feed meta source counts.
const (
	SourcePumpFun     = "pumpfun"
	SourceDexScreener = "dexscreener"
	SourceBirdeye     = "birdeye"
	SourcePumpPortal  = "pumpportal"
)

// Token is the canonical token representation, independent of any one
// provider's schema. Address is the chain-native mint address and is unique
// within any aggregated result set.
type Token struct {
	Address          string    `json:"address"`
	Symbol           string    `json:"symbol"`
	Name             string    `json:"name"`
	CreatedAt        time.Time `json:"createdAt"`
	PriceUsd         float64   `json:"priceUsd"`
	MarketCapUsd     float64   `json:"marketCapUsd"`
	LiquidityUsd     float64   `json:"liquidityUsd"`
	Volume24hUsd     float64   `json:"volume24hUsd"`
	HolderCount      int       `json:"holderCount"`
	TransactionCount int       `json:"transactionCount"`
	Source           string    `json:"source"`
	LogoURL          string    `json:"logoUrl,omitempty"`
	ObservedAt       time.Time `json:"-"`
}

// Valid reports whether the token carries the required identity fields.
// Records without an address or symbol are dropped at the normalizer
// boundary, never defaulted into a result set.
func (t *Token) Valid() bool {
	return t != nil && t.Address != "" && t.Symbol != ""
}

// MergeFrom folds non-empty fields of other into t. Fields only move from
// populated to populated; an empty value from another source never regresses
// a field that already has data. Identity fields (Address) are left alone.
func (t *Token) MergeFrom(other Token) {
	if other.Symbol != "" {
		t.Symbol = other.Symbol
	}
	if other.Name != "" {
		t.Name = other.Name
	}
	if !other.CreatedAt.IsZero() && (t.CreatedAt.IsZero() || other.CreatedAt.Before(t.CreatedAt)) {
		// The earliest observed creation time is the launch time.
		t.CreatedAt = other.CreatedAt
	}
	if other.PriceUsd > 0 {
		t.PriceUsd = other.PriceUsd
	}
	if other.MarketCapUsd > 0 {
		t.MarketCapUsd = other.MarketCapUsd
	}
	if other.LiquidityUsd > 0 {
		t.LiquidityUsd = other.LiquidityUsd
	}
	if other.Volume24hUsd > 0 {
		t.Volume24hUsd = other.Volume24hUsd
	}
	if other.HolderCount > 0 {
		t.HolderCount = other.HolderCount
	}
	if other.TransactionCount > 0 {
		t.TransactionCount = other.TransactionCount
	}
	if other.LogoURL != "" {
		t.LogoURL = other.LogoURL
	}
	if other.Source != "" {
		t.Source = other.Source
	}
	if other.ObservedAt.After(t.ObservedAt) {
		t.ObservedAt = other.ObservedAt
	}
}

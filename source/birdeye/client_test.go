package birdeye

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"tokenflow/config"
	"tokenflow/models"
)

func testProviderConfig(baseURL, key string) config.ProviderConfig {
	return config.ProviderConfig{
		Enabled:   true,
		BaseURL:   baseURL,
		APIKey:    key,
		TimeoutMs: 5000,
	}
}

func TestNormalizeItem(t *testing.T) {
	it := &item{
		Address:           "mint1",
		Symbol:            "AAA",
		Name:              "Alpha",
		Price:             0.0031,
		MC:                310000,
		Liquidity:         52000,
		V24hUSD:           180000,
		Holder:            420,
		Trade24h:          900,
		LastTradeUnixTime: 1717000000,
	}

	tok := normalizeItem(it)
	if tok == nil {
		t.Fatalf("expected token")
	}
	if tok.PriceUsd != 0.0031 || tok.MarketCapUsd != 310000 {
		t.Fatalf("price fields wrong: %+v", tok)
	}
	if tok.ObservedAt.Unix() != 1717000000 {
		t.Fatalf("lastTradeUnixTime not converted from seconds: %v", tok.ObservedAt)
	}
	if !tok.CreatedAt.IsZero() {
		t.Fatalf("birdeye should not invent a launch time")
	}
	if tok.Source != models.SourceBirdeye {
		t.Fatalf("source tag wrong: %s", tok.Source)
	}
}

func TestFetchSendsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "secret" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("x-chain") != "solana" {
			t.Errorf("missing chain header")
		}
		w.Write([]byte(`{"success":true,"data":{"tokens":[{"address":"mint1","symbol":"AAA","price":1.5}]}}`))
	}))
	defer srv.Close()

	c := NewClient(testProviderConfig(srv.URL, "secret"))
	tokens, err := c.Fetch(context.Background(), 10, models.Timeframe24h)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(tokens) != 1 || tokens[0].PriceUsd != 1.5 {
		t.Fatalf("unexpected tokens: %+v", tokens)
	}
}

func TestFetchWithoutKeyIsEmpty(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(testProviderConfig(srv.URL, ""))
	tokens, err := c.Fetch(context.Background(), 10, models.Timeframe24h)
	if err != nil {
		t.Fatalf("missing key must not error: %v", err)
	}
	if tokens != nil {
		t.Fatalf("missing key should yield empty result")
	}
	if called {
		t.Fatalf("no request should be issued without a key")
	}
}

func TestFetchUnsuccessfulResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	c := NewClient(testProviderConfig(srv.URL, "secret"))
	tokens, err := c.Fetch(context.Background(), 10, models.Timeframe24h)
	if err == nil {
		t.Fatalf("expected soft error for unsuccessful response")
	}
	if len(tokens) != 0 {
		t.Fatalf("expected empty result")
	}
}

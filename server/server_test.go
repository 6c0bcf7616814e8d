package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tokenflow/aggregator"
	"tokenflow/cache"
	"tokenflow/config"
	"tokenflow/ingest"
	"tokenflow/models"
	"tokenflow/stream"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Addr:              ":0",
		ShutdownTimeoutMs: 1000,
		DefaultLimit:      50,
		MaxLimit:          100,
	}
}

type stubSocket struct{ state ingest.State }

func (s stubSocket) State() ingest.State { return s.state }

func newTestServer(t *testing.T, refresh cache.RefreshFunc, socket SocketStatus) (*Server, *httptest.Server) {
	t.Helper()
	c := cache.New(config.CacheConfig{TTLSeconds: 60, RefreshTimeoutMs: 1000}, refresh)
	t.Cleanup(c.Close)

	streamCfg := config.StreamConfig{TickIntervalMs: 20, MaxClients: 4}
	p := stream.NewPublisher(streamCfg, c)
	s := New(testServerConfig(), streamCfg, c, p, socket)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func capturingRefresh(keys *[]cache.Key, tokens []models.Token) cache.RefreshFunc {
	return func(ctx context.Context, key cache.Key) aggregator.Result {
		*keys = append(*keys, key)
		return aggregator.Result{
			Tokens:       tokens,
			SourceCounts: map[string]int{models.SourceDexScreener: len(tokens)},
		}
	}
}

func getPayload(t *testing.T, url string) (models.FeedPayload, *http.Response) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var payload models.FeedPayload
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode payload: %v", err)
		}
	}
	return payload, resp
}

func TestCombinedTokensDefaults(t *testing.T) {
	var keys []cache.Key
	tokens := []models.Token{{Address: "mint-a", Symbol: "ALPHA", Source: models.SourceDexScreener}}
	_, ts := newTestServer(t, capturingRefresh(&keys, tokens), nil)

	payload, resp := getPayload(t, ts.URL+"/combined-tokens")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !payload.Success || len(payload.Data) != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Meta.Limit != 50 || payload.Meta.Timeframe != models.Timeframe24h {
		t.Fatalf("expected default key, got %+v", payload.Meta)
	}

	if len(keys) != 1 {
		t.Fatalf("expected one refresh, got %d", len(keys))
	}
	if !keys[0].Realtime {
		t.Fatal("expected realtime to default to true")
	}
}

func TestCombinedTokensClampsLimit(t *testing.T) {
	var keys []cache.Key
	_, ts := newTestServer(t, capturingRefresh(&keys, nil), nil)

	payload, resp := getPayload(t, ts.URL+"/combined-tokens?limit=5000&timeframe=1h&realtime=false")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if payload.Meta.Limit != 100 {
		t.Fatalf("expected limit clamped to 100, got %d", payload.Meta.Limit)
	}
	if payload.Meta.Timeframe != models.Timeframe1h {
		t.Fatalf("expected timeframe 1h, got %s", payload.Meta.Timeframe)
	}
	if len(keys) != 1 || keys[0].Realtime {
		t.Fatalf("expected one non-realtime refresh, got %+v", keys)
	}
}

func TestCombinedTokensRejectsBadParams(t *testing.T) {
	var keys []cache.Key
	_, ts := newTestServer(t, capturingRefresh(&keys, nil), nil)

	for _, query := range []string{
		"?limit=abc",
		"?timeframe=3d",
		"?realtime=maybe",
	} {
		_, resp := getPayload(t, ts.URL+"/combined-tokens"+query)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("query %q: expected 400, got %d", query, resp.StatusCode)
		}
	}
	if len(keys) != 0 {
		t.Fatalf("expected no refresh on rejected requests, got %d", len(keys))
	}
}

func TestCombinedTokensMethodNotAllowed(t *testing.T) {
	var keys []cache.Key
	_, ts := newTestServer(t, capturingRefresh(&keys, nil), nil)

	resp, err := http.Post(ts.URL+"/combined-tokens", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestHealthzReportsSocketState(t *testing.T) {
	var keys []cache.Key
	_, ts := newTestServer(t, capturingRefresh(&keys, nil), stubSocket{state: ingest.StateConnected})

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if health.Status != "ok" {
		t.Fatalf("expected ok status, got %q", health.Status)
	}
	if health.SocketState != "connected" {
		t.Fatalf("expected connected socket state, got %q", health.SocketState)
	}
}

func TestHealthzWithoutSocket(t *testing.T) {
	var keys []cache.Key
	_, ts := newTestServer(t, capturingRefresh(&keys, nil), nil)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if health.SocketState != "disabled" {
		t.Fatalf("expected disabled socket state, got %q", health.SocketState)
	}
	if health.CacheAgeSeconds != -1 {
		t.Fatalf("expected cache age -1 before any aggregation, got %d", health.CacheAgeSeconds)
	}
}

func TestShutdownEndsOpenStreams(t *testing.T) {
	var keys []cache.Key
	tokens := []models.Token{{Address: "mint-a", Symbol: "ALPHA", Source: models.SourceDexScreener}}
	s, ts := newTestServer(t, capturingRefresh(&keys, tokens), nil)

	resp, err := http.Get(ts.URL + "/live-feed")
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	defer resp.Body.Close()

	// Wait for the first event so the stream is established.
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("failed to read stream: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Shutdown()
	}()

	// Shutdown must end the stream handler; the body reaches EOF without
	// the client disconnecting first.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		t.Fatalf("expected stream to end cleanly on shutdown: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("shutdown failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown did not complete while a stream client was connected")
	}
}

func TestLiveFeedRejectsBadParams(t *testing.T) {
	var keys []cache.Key
	_, ts := newTestServer(t, capturingRefresh(&keys, nil), nil)

	resp, err := http.Get(ts.URL + "/live-feed?timeframe=forever")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

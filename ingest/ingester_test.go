package ingest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tokenflow/config"
	"tokenflow/models"
)

func testSocketConfig(url string) config.SocketConfig {
	return config.SocketConfig{
		Enabled:            true,
		URL:                url,
		LiveMapCapacity:    10,
		HandshakeTimeoutMs: 2000,
		Backoff: config.SocketBackoffConfig{
			BaseDelayMs:        10,
			MaxDelayMs:         50,
			MaxAttempts:        3,
			InitialDelayMs:     10,
			InitialMaxAttempts: 2,
		},
	}
}

func waitForState(t *testing.T, ing *Ingester, want State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if ing.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, still %s", want, ing.State())
}

// feedServer upgrades connections, consumes the two subscription messages
// and then pushes whatever the test queues through the send channel.
type feedServer struct {
	srv  *httptest.Server
	send chan string

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	fs := &feedServer{send: make(chan string, 16)}
	upgrader := websocket.Upgrader{}

	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.conns = append(fs.conns, conn)
		fs.mu.Unlock()

		for i := 0; i < 2; i++ {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
		for msg := range fs.send {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(func() {
		close(fs.send)
		fs.srv.Close()
	})
	return fs
}

func (fs *feedServer) wsURL() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *feedServer) dropConnections() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, c := range fs.conns {
		c.Close()
	}
	fs.conns = nil
}

func TestIngesterConnectRejectsDisabled(t *testing.T) {
	cfg := testSocketConfig("ws://127.0.0.1:1")
	cfg.Enabled = false
	ing := New(cfg)

	if err := ing.Connect(); err == nil {
		t.Fatal("expected error connecting a disabled ingester")
	}
}

func TestIngesterAlreadyRunning(t *testing.T) {
	fs := newFeedServer(t)
	ing := New(testSocketConfig(fs.wsURL()))

	if err := ing.Connect(); err != nil {
		t.Fatalf("failed to start ingester: %v", err)
	}
	defer ing.Disconnect()

	if err := ing.Connect(); err == nil {
		t.Fatal("expected error on second Connect")
	}
}

func TestIngesterCreateAndMigrateEvents(t *testing.T) {
	fs := newFeedServer(t)
	ing := New(testSocketConfig(fs.wsURL()))

	var mu sync.Mutex
	var events []EventType
	ing.OnUpdate(func(event EventType, tok models.Token) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})

	if err := ing.Connect(); err != nil {
		t.Fatalf("failed to start ingester: %v", err)
	}
	defer ing.Disconnect()
	waitForState(t, ing, StateConnected)

	fs.send <- `{"txType":"create","mint":"mint-a","name":"Alpha","symbol":"ALPHA","marketCapSol":32.5,"pool":"pump"}`

	deadline := time.Now().Add(3 * time.Second)
	for ing.live.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	toks := ing.Tokens()
	if len(toks) != 1 {
		t.Fatalf("expected 1 live token, got %d", len(toks))
	}
	if toks[0].Address != "mint-a" || toks[0].Symbol != "ALPHA" {
		t.Fatalf("unexpected token: %+v", toks[0])
	}
	if toks[0].Source != models.SourcePumpPortal {
		t.Fatalf("expected source %s, got %s", models.SourcePumpPortal, toks[0].Source)
	}

	fs.send <- `{"txType":"migrate","mint":"mint-a","pool":"raydium"}`

	deadline = time.Now().Add(3 * time.Second)
	for ing.live.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if ing.live.Len() != 0 {
		t.Fatal("expected migrated token to leave the live map")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0] != EventCreate || events[1] != EventMigrate {
		t.Fatalf("unexpected event sequence: %v", events)
	}
}

func TestIngesterIgnoresUnknownAndMalformedMessages(t *testing.T) {
	fs := newFeedServer(t)
	ing := New(testSocketConfig(fs.wsURL()))

	if err := ing.Connect(); err != nil {
		t.Fatalf("failed to start ingester: %v", err)
	}
	defer ing.Disconnect()
	waitForState(t, ing, StateConnected)

	fs.send <- `not json at all`
	fs.send <- `{"message":"Successfully subscribed to token creation events."}`
	fs.send <- `{"txType":"sell","mint":"mint-a"}`
	fs.send <- `{"txType":"create","mint":"mint-b","symbol":"BETA"}`

	deadline := time.Now().Add(3 * time.Second)
	for ing.live.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	toks := ing.Tokens()
	if len(toks) != 1 || toks[0].Address != "mint-b" {
		t.Fatalf("expected only the create event to land, got %+v", toks)
	}
}

func TestIngesterNeverConnectedExhaustsFlatBudget(t *testing.T) {
	// Port 1 is never listening; the socket never completes a handshake.
	ing := New(testSocketConfig("ws://127.0.0.1:1"))

	if err := ing.Connect(); err != nil {
		t.Fatalf("failed to start ingester: %v", err)
	}
	waitForState(t, ing, StateExhausted)

	// Terminal until an explicit Reconnect; the loop goroutine has exited.
	time.Sleep(50 * time.Millisecond)
	if ing.State() != StateExhausted {
		t.Fatalf("expected exhausted to be terminal, got %s", ing.State())
	}
}

func TestIngesterReconnectLeavesExhausted(t *testing.T) {
	ing := New(testSocketConfig("ws://127.0.0.1:1"))

	if err := ing.Reconnect(); err == nil {
		t.Fatal("expected Reconnect to fail outside the exhausted state")
	}

	if err := ing.Connect(); err != nil {
		t.Fatalf("failed to start ingester: %v", err)
	}
	waitForState(t, ing, StateExhausted)

	fs := newFeedServer(t)
	ing.cfg.URL = fs.wsURL()
	if err := ing.Reconnect(); err != nil {
		t.Fatalf("failed to reconnect: %v", err)
	}
	defer ing.Disconnect()
	waitForState(t, ing, StateConnected)
}

func TestIngesterPostConnectBackoffGrowsUntilExhausted(t *testing.T) {
	var mu sync.Mutex
	var attempts []time.Time
	accepted := false
	upgrader := websocket.Upgrader{}

	// Accept exactly one session, then refuse every re-dial so the
	// dropped-after-connect budget is the one being spent.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts = append(attempts, time.Now())
		refuse := accepted
		accepted = true
		mu.Unlock()

		if refuse {
			http.Error(w, "gone", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for i := 0; i < 2; i++ {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
		conn.Close()
	}))
	defer srv.Close()

	cfg := testSocketConfig("ws" + strings.TrimPrefix(srv.URL, "http"))
	cfg.Backoff.BaseDelayMs = 50
	cfg.Backoff.MaxDelayMs = 1000
	cfg.Backoff.MaxAttempts = 3

	ing := New(cfg)
	if err := ing.Connect(); err != nil {
		t.Fatalf("failed to start ingester: %v", err)
	}
	waitForState(t, ing, StateExhausted)

	mu.Lock()
	defer mu.Unlock()
	// One accepted dial plus MaxAttempts refused re-dials.
	if len(attempts) != 4 {
		t.Fatalf("expected 4 dial attempts, got %d", len(attempts))
	}
	gapOne := attempts[2].Sub(attempts[1])
	gapTwo := attempts[3].Sub(attempts[2])
	if gapTwo <= gapOne {
		t.Fatalf("expected reconnect delays to grow, got %v then %v", gapOne, gapTwo)
	}
}

func TestIngesterDropClearsLiveMapAndRetries(t *testing.T) {
	fs := newFeedServer(t)
	ing := New(testSocketConfig(fs.wsURL()))

	if err := ing.Connect(); err != nil {
		t.Fatalf("failed to start ingester: %v", err)
	}
	defer ing.Disconnect()
	waitForState(t, ing, StateConnected)

	fs.send <- `{"txType":"create","mint":"mint-a","symbol":"ALPHA"}`
	deadline := time.Now().Add(3 * time.Second)
	for ing.live.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	fs.dropConnections()
	waitForState(t, ing, StateConnected)

	if ing.live.Len() != 0 {
		t.Fatal("expected live map to be cleared across a reconnect")
	}
}

func TestIngesterDisconnectStopsLoop(t *testing.T) {
	fs := newFeedServer(t)
	ing := New(testSocketConfig(fs.wsURL()))

	if err := ing.Connect(); err != nil {
		t.Fatalf("failed to start ingester: %v", err)
	}
	waitForState(t, ing, StateConnected)

	ing.Disconnect()

	if ing.State() != StateDisconnected {
		t.Fatalf("expected disconnected state, got %s", ing.State())
	}
	if err := ing.Connect(); err != nil {
		t.Fatalf("expected restart after disconnect to succeed: %v", err)
	}
	ing.Disconnect()
}

// Package ingest maintains a persistent websocket connection to a
// PumpPortal-style push feed and keeps a bounded map of live tokens derived
// from it. Reconnects are bounded by two budgets: a socket that has never
// completed a handshake retries flatter and less often than one that
// dropped after working, because a never-working socket is more likely
// misconfigured than transiently down.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"tokenflow/config"
	"tokenflow/logger"
	"tokenflow/models"
)

// EventType classifies a live-map mutation reported to subscribers.
type EventType string

const (
	// EventCreate is a new-token launch inserted into the live map.
	EventCreate EventType = "create"
	// EventMigrate is a bonding-curve graduation; the token leaves the map.
	EventMigrate EventType = "migrate"
)

// UpdateFunc receives every successful mutation of the live map.
type UpdateFunc func(event EventType, tok models.Token)

// Ingester owns one persistent socket connection and the live token map fed
// from it.
type Ingester struct {
	cfg    config.SocketConfig
	dialer *websocket.Dialer
	live   *LiveMap
	log    *logger.Log

	state atomic.Int32

	mu            sync.Mutex
	running       bool
	everConnected bool
	attempts      int
	subscribers   []UpdateFunc
	cancel        context.CancelFunc

	wg sync.WaitGroup
}

// New creates an Ingester. Connect must be called to start it.
func New(cfg config.SocketConfig) *Ingester {
	return &Ingester{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout(),
		},
		live: NewLiveMap(cfg.LiveMapCapacity),
		log:  logger.GetLogger(),
	}
}

// Name returns the source tag for tokens derived from the socket feed.
func (i *Ingester) Name() string {
	return models.SourcePumpPortal
}

// Tokens snapshots the live map; it implements aggregator.LiveSource.
func (i *Ingester) Tokens() []models.Token {
	return i.live.Tokens()
}

// State returns the current connection state.
func (i *Ingester) State() State {
	return State(i.state.Load())
}

func (i *Ingester) setState(s State) {
	i.state.Store(int32(s))
}

// OnUpdate registers a subscriber callback. Callbacks run on the message
// handling goroutine and must not block; they are invoked only after a
// successful live-map mutation.
func (i *Ingester) OnUpdate(fn UpdateFunc) {
	i.mu.Lock()
	i.subscribers = append(i.subscribers, fn)
	i.mu.Unlock()
}

// Connect starts the connection loop. It returns an error when the ingester
// is already running or disabled by configuration.
func (i *Ingester) Connect() error {
	if !i.cfg.Enabled {
		return fmt.Errorf("socket feed is disabled")
	}

	i.mu.Lock()
	if i.running {
		i.mu.Unlock()
		return fmt.Errorf("ingester already running")
	}
	i.running = true
	i.attempts = 0
	ctx, cancel := context.WithCancel(context.Background())
	i.cancel = cancel
	i.mu.Unlock()

	i.setState(StateConnecting)
	i.wg.Add(1)
	go i.run(ctx)

	i.log.WithComponent("socket_ingester").WithFields(logger.Fields{"url": i.cfg.URL}).Info("ingester started")
	return nil
}

// Disconnect stops the connection loop, clears the live map and leaves the
// ingester in StateDisconnected.
func (i *Ingester) Disconnect() {
	i.mu.Lock()
	cancel := i.cancel
	i.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	i.wg.Wait()

	i.mu.Lock()
	i.running = false
	i.mu.Unlock()

	i.live.Clear()
	i.setState(StateDisconnected)
	i.log.WithComponent("socket_ingester").Info("ingester stopped")
}

// Reconnect leaves StateExhausted and starts a fresh connection loop with
// reset retry budgets. It is the only way out of the terminal state.
func (i *Ingester) Reconnect() error {
	if i.State() != StateExhausted {
		return fmt.Errorf("reconnect only applies to the exhausted state, current state is %s", i.State())
	}

	i.mu.Lock()
	i.running = false
	i.mu.Unlock()
	i.wg.Wait()

	return i.Connect()
}

func (i *Ingester) run(ctx context.Context) {
	defer i.wg.Done()

	log := i.log.WithComponent("socket_ingester")
	bo := &backoff.Backoff{
		Min:    i.cfg.Backoff.BaseDelay(),
		Max:    i.cfg.Backoff.MaxDelay(),
		Factor: 2,
	}

	for {
		if ctx.Err() != nil {
			return
		}

		i.setState(StateConnecting)
		conn, _, err := i.dialer.DialContext(ctx, i.cfg.URL, nil)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"url": i.cfg.URL}).Warn("failed to connect to socket feed")
			if !i.waitRetry(ctx, bo) {
				return
			}
			continue
		}

		if err := i.subscribe(conn); err != nil {
			log.WithError(err).Warn("failed to send subscription messages")
			conn.Close()
			if !i.waitRetry(ctx, bo) {
				return
			}
			continue
		}

		i.mu.Lock()
		i.everConnected = true
		i.attempts = 0
		i.mu.Unlock()
		bo.Reset()
		i.setState(StateConnected)
		log.Info("socket feed connected")

		err = i.readLoop(ctx, conn)
		conn.Close()
		i.live.Clear()

		if ctx.Err() != nil {
			return
		}
		log.WithError(err).Warn("socket feed dropped")
		if !i.waitRetry(ctx, bo) {
			return
		}
	}
}

// waitRetry spends one unit of the applicable retry budget. It returns false
// when the budget is exhausted or the context is done; the caller must then
// stop the loop.
func (i *Ingester) waitRetry(ctx context.Context, bo *backoff.Backoff) bool {
	i.mu.Lock()
	ever := i.everConnected
	i.attempts++
	attempt := i.attempts
	i.mu.Unlock()

	logger.IncrementSocketReconnect()

	budget := i.cfg.Backoff.InitialMaxAttempts
	delay := i.cfg.Backoff.InitialDelay()
	if ever {
		budget = i.cfg.Backoff.MaxAttempts
		delay = bo.Duration()
	}

	if attempt > budget {
		i.setState(StateExhausted)
		i.log.WithComponent("socket_ingester").WithFields(logger.Fields{
			"attempts":       attempt - 1,
			"ever_connected": ever,
		}).Error("retry budget exhausted; falling back to polling sources")
		return false
	}

	i.setState(StateRetrying)
	i.log.WithComponent("socket_ingester").WithFields(logger.Fields{
		"attempt": attempt,
		"budget":  budget,
		"delay":   delay.String(),
	}).Warn("waiting before reconnect")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type subscribeMessage struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys,omitempty"`
}

func (i *Ingester) subscribe(conn *websocket.Conn) error {
	for _, method := range []string{"subscribeNewToken", "subscribeMigration"} {
		if err := conn.WriteJSON(subscribeMessage{Method: method}); err != nil {
			return fmt.Errorf("subscribe %s: %w", method, err)
		}
	}
	return nil
}

func (i *Ingester) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		logger.IncrementSocketEvent(len(msg))
		i.handleMessage(msg)
	}
}

// feedMessage is the superset of the fields the feed sends for the event
// classes we subscribe to. Unrecognized txType values are ignored.
type feedMessage struct {
	TxType       string  `json:"txType"`
	Mint         string  `json:"mint"`
	Name         string  `json:"name"`
	Symbol       string  `json:"symbol"`
	URI          string  `json:"uri"`
	MarketCapSol float64 `json:"marketCapSol"`
	Pool         string  `json:"pool"`
}

func (i *Ingester) handleMessage(raw []byte) {
	log := i.log.WithComponent("socket_ingester")

	var msg feedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.WithError(err).Debug("unparseable socket message dropped")
		return
	}

	switch msg.TxType {
	case "create":
		tok := normalizeCreate(&msg)
		if tok == nil {
			return
		}
		i.live.Put(*tok)
		i.notify(EventCreate, *tok)
		log.WithFields(logger.Fields{"mint": tok.Address, "symbol": tok.Symbol}).Debug("live token added")
	case "migrate":
		if msg.Mint == "" {
			return
		}
		if removed := i.live.Delete(msg.Mint); removed {
			i.notify(EventMigrate, models.Token{Address: msg.Mint, Source: models.SourcePumpPortal})
			log.WithFields(logger.Fields{"mint": msg.Mint}).Debug("live token migrated")
		}
	default:
		// Subscription acks and unknown event classes are not errors.
	}
}

// normalizeCreate converts a create event into a canonical token, or nil
// when identity fields are missing.
func normalizeCreate(msg *feedMessage) *models.Token {
	if msg.Mint == "" || msg.Symbol == "" {
		return nil
	}
	now := time.Now().UTC()
	return &models.Token{
		Address:    msg.Mint,
		Symbol:     msg.Symbol,
		Name:       msg.Name,
		CreatedAt:  now,
		Source:     models.SourcePumpPortal,
		ObservedAt: now,
	}
}

func (i *Ingester) notify(event EventType, tok models.Token) {
	i.mu.Lock()
	subs := make([]UpdateFunc, len(i.subscribers))
	copy(subs, i.subscribers)
	i.mu.Unlock()

	for _, fn := range subs {
		fn(event, tok)
	}
}

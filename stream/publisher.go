// Package stream pushes aggregation snapshots to browsers over
// server-sent events. Every connected client gets an immediate snapshot
// followed by one event per tick interval; each client's cadence is driven
// by its own timer so a slow client never stalls the others.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"tokenflow/cache"
	"tokenflow/config"
	"tokenflow/logger"
	"tokenflow/models"
)

// Payload shapes a cache entry into the wire format shared by the one-shot
// endpoint and every stream tick.
func Payload(entry cache.Entry, key cache.Key, tick time.Duration) models.FeedPayload {
	counts := entry.Result.SourceCounts
	if counts == nil {
		counts = map[string]int{}
	}
	return models.FeedPayload{
		Success: !entry.Result.Unavailable,
		Data:    entry.Result.Tokens,
		Meta: models.FeedMeta{
			Limit:             key.Limit,
			Timeframe:         key.Timeframe,
			Count:             len(entry.Result.Tokens),
			SourceCounts:      counts,
			Timestamp:         entry.CapturedAt.UnixMilli(),
			PollingIntervalMs: tick.Milliseconds(),
			Unavailable:       entry.Result.Unavailable,
		},
	}
}

// Publisher tracks connected stream clients and serves the event loop for
// each of them.
type Publisher struct {
	cfg   config.StreamConfig
	cache *cache.Cache
	log   *logger.Log

	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	clients map[string]time.Time
}

// NewPublisher creates a Publisher backed by the given snapshot cache.
func NewPublisher(cfg config.StreamConfig, c *cache.Cache) *Publisher {
	return &Publisher{
		cfg:     cfg,
		cache:   c,
		log:     logger.GetLogger(),
		done:    make(chan struct{}),
		clients: make(map[string]time.Time),
	}
}

// Close ends every connected client's event loop. Without it an open stream
// would hold http.Server.Shutdown for the full drain timeout, since active
// handlers otherwise only exit on client disconnect.
func (p *Publisher) Close() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
}

// ClientCount returns the number of currently connected clients.
func (p *Publisher) ClientCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

func (p *Publisher) register() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.clients) >= p.cfg.MaxClients {
		return "", fmt.Errorf("stream client limit of %d reached", p.cfg.MaxClients)
	}
	id := uuid.New().String()
	p.clients[id] = time.Now()
	logger.SetStreamClients(int64(len(p.clients)))
	return id, nil
}

func (p *Publisher) deregister(id string) {
	p.mu.Lock()
	connectedAt, ok := p.clients[id]
	delete(p.clients, id)
	n := len(p.clients)
	p.mu.Unlock()

	logger.SetStreamClients(int64(n))
	if ok {
		p.log.WithComponent("stream_publisher").WithFields(logger.Fields{
			"client_id": id,
			"duration":  time.Since(connectedAt).String(),
		}).Info("stream client disconnected")
	}
}

// Serve runs the event loop for one client until the request context is
// done. The first event is written before the first tick so new clients see
// data immediately.
func (p *Publisher) Serve(w http.ResponseWriter, r *http.Request, key cache.Key) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, err := p.register()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer p.deregister(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	p.log.WithComponent("stream_publisher").WithFields(logger.Fields{
		"client_id": id,
		"key":       key.String(),
	}).Info("stream client connected")

	// First event: force a synchronous build when nothing is cached yet so
	// the client never waits a full tick for its first snapshot.
	entry, cached := p.cache.Get(key)
	if !cached {
		entry = p.cache.Refresh(key)
	}
	if err := p.writeEvent(w, flusher, entry, key); err != nil {
		return
	}

	ticker := time.NewTicker(p.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			// Every tick carries a snapshot no older than the tick itself;
			// concurrent clients on the same key collapse to one upstream
			// call through the cache's in-flight bookkeeping.
			entry := p.cache.Refresh(key)
			if err := p.writeEvent(w, flusher, entry, key); err != nil {
				return
			}
		}
	}
}

func (p *Publisher) writeEvent(w http.ResponseWriter, flusher http.Flusher, entry cache.Entry, key cache.Key) error {
	payload := Payload(entry, key, p.cfg.TickInterval())
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal feed payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", body); err != nil {
		return err
	}
	flusher.Flush()
	logger.IncrementStreamTick(len(body))
	return nil
}

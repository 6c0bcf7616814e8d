// Package server exposes the aggregation core over HTTP: a one-shot JSON
// endpoint, the server-sent-event stream, and a health probe.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tokenflow/cache"
	"tokenflow/config"
	"tokenflow/ingest"
	"tokenflow/logger"
	"tokenflow/models"
	"tokenflow/source"
	"tokenflow/stream"
)

// SocketStatus reports the socket ingester's connection state. A nil
// SocketStatus means the socket feed is disabled.
type SocketStatus interface {
	State() ingest.State
}

// Server wires the HTTP surface over the cache and stream publisher.
type Server struct {
	cfg       config.ServerConfig
	streamCfg config.StreamConfig
	cache     *cache.Cache
	publisher *stream.Publisher
	socket    SocketStatus
	log       *logger.Log

	startedAt time.Time
	httpSrv   *http.Server
}

// New builds the Server and its route table.
func New(cfg config.ServerConfig, streamCfg config.StreamConfig, c *cache.Cache, p *stream.Publisher, socket SocketStatus) *Server {
	s := &Server{
		cfg:       cfg,
		streamCfg: streamCfg,
		cache:     c,
		publisher: p,
		socket:    socket,
		log:       logger.GetLogger(),
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/combined-tokens", s.handleCombinedTokens)
	mux.HandleFunc("/live-feed", s.handleLiveFeed)
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.httpSrv = &http.Server{
		Addr:        cfg.Addr,
		Handler:     mux,
		ReadTimeout: time.Duration(cfg.ReadTimeoutMs) * time.Millisecond,
	}
	// Shutdown can only drain once open streams end, so closing the
	// publisher is part of beginning a shutdown.
	s.httpSrv.RegisterOnShutdown(p.Close)
	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.log.WithComponent("http_server").WithFields(logger.Fields{"addr": s.cfg.Addr}).Info("http server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown closes the stream publisher and then drains in-flight requests
// within the configured timeout.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout())
	defer cancel()
	s.log.WithComponent("http_server").Info("http server shutting down")
	return s.httpSrv.Shutdown(ctx)
}

// feedKey parses the shared query parameters of the feed endpoints. Absent
// parameters get defaults; out-of-range limits clamp instead of erroring so
// greedy clients still get the capped feed.
func (s *Server) feedKey(r *http.Request) (cache.Key, error) {
	q := r.URL.Query()

	limit := s.cfg.DefaultLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return cache.Key{}, fmt.Errorf("limit must be an integer, got %q", raw)
		}
		limit = source.ClampLimit(n, s.cfg.MaxLimit)
	}

	timeframe := q.Get("timeframe")
	switch timeframe {
	case "":
		timeframe = models.Timeframe24h
	case models.Timeframe1h, models.Timeframe24h, models.Timeframe7d:
	default:
		return cache.Key{}, fmt.Errorf("timeframe must be one of 1h, 24h, 7d, got %q", timeframe)
	}

	realtime := true
	if raw := q.Get("realtime"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return cache.Key{}, fmt.Errorf("realtime must be a boolean, got %q", raw)
		}
		realtime = v
	}

	return cache.Key{Limit: limit, Timeframe: timeframe, Realtime: realtime}, nil
}

func (s *Server) handleCombinedTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key, err := s.feedKey(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, cached := s.cache.Get(key)
	if !cached {
		entry = s.cache.Refresh(key)
	}

	payload := stream.Payload(entry, key, s.streamCfg.TickInterval())
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleLiveFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key, err := s.feedKey(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.publisher.Serve(w, r, key)
}

type healthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version,omitempty"`
	UptimeSeconds   int64  `json:"uptimeSeconds"`
	SocketState     string `json:"socketState"`
	StreamClients   int    `json:"streamClients"`
	CacheAgeSeconds int64  `json:"cacheAgeSeconds"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	socketState := "disabled"
	if s.socket != nil {
		socketState = s.socket.State().String()
	}

	// -1 means nothing has been aggregated yet.
	cacheAge := int64(-1)
	if last := s.cache.LastCaptured(); !last.IsZero() {
		cacheAge = int64(time.Since(last).Seconds())
	}

	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:          "ok",
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
		SocketState:     socketState,
		StreamClients:   s.publisher.ClientCount(),
		CacheAgeSeconds: cacheAge,
	})
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.log.WithComponent("http_server").WithError(err).Warn("request rejected")
	s.writeJSON(w, status, errorResponse{Success: false, Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithComponent("http_server").WithError(err).Error("failed to write response")
	}
}

// Package metrics exposes Prometheus metrics and health status for the relay.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	HMACacheHits    prometheus.Counter
	HMACacheMisses  prometheus.Counter
	HMAEvictions    prometheus.Counter
	HMAComputeDur   prometheus.Histogram
	HistoryFetchDur prometheus.Histogram
	HMAErrors       *prometheus.CounterVec // labels: kind=fetch|insufficient_data

	ProxyRequests *prometheus.CounterVec // labels: endpoint
	OrdersPlaced  prometheus.Counter

	WSClients prometheus.Gauge
}

// NewMetrics registers and returns all relay metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		HMACacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_hma_cache_hits_total",
			Help: "HMA requests served from the per-symbol cache",
		}),
		HMACacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_hma_cache_misses_total",
			Help: "HMA requests that triggered a history fetch and recompute",
		}),
		HMAEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_hma_evictions_total",
			Help: "Explicit per-symbol cache evictions",
		}),
		HMAComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_hma_compute_duration_seconds",
			Help:    "Full fetch-normalize-compute latency on a cache miss",
			Buckets: prometheus.DefBuckets,
		}),
		HistoryFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_history_fetch_duration_seconds",
			Help:    "Broker history endpoint latency",
			Buckets: prometheus.DefBuckets,
		}),
		HMAErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_hma_errors_total",
			Help: "HMA pipeline failures by kind",
		}, []string{"kind"}),

		ProxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_proxy_requests_total",
			Help: "Broker proxy requests by endpoint",
		}, []string{"endpoint"}),
		OrdersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_orders_placed_total",
			Help: "Orders forwarded to the broker",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_ws_clients",
			Help: "Connected WebSocket clients",
		}),
	}

	prometheus.MustRegister(
		m.HMACacheHits,
		m.HMACacheMisses,
		m.HMAEvictions,
		m.HMAComputeDur,
		m.HistoryFetchDur,
		m.HMAErrors,
		m.ProxyRequests,
		m.OrdersPlaced,
		m.WSClients,
	)

	return m
}

// HealthStatus represents relay health for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	SessionActive  bool
	RedisConnected bool
	JournalOK      bool
	LastHMAAt      time.Time
	StartedAt      time.Time

	RedisLatencyMs   float64
	JournalLatencyMs float64
	LastCheckAt      time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetSessionActive(v bool) {
	h.mu.Lock()
	h.SessionActive = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastHMAAt(t time.Time) {
	h.mu.Lock()
	h.LastHMAAt = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckJournal pings the journal database and records latency + health.
func (h *HealthStatus) CheckJournal(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.JournalOK = err == nil
	h.JournalLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. rdb and db may be
// nil when the corresponding backend is not configured.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if db != nil {
					h.CheckJournal(probeCtx, db)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	httpCode := http.StatusOK
	if !h.SessionActive {
		status = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	out := struct {
		Status           string  `json:"status"`
		Uptime           string  `json:"uptime"`
		SessionActive    bool    `json:"session_active"`
		RedisConnected   bool    `json:"redis_connected"`
		RedisLatencyMs   float64 `json:"redis_latency_ms"`
		JournalOK        bool    `json:"journal_ok"`
		JournalLatencyMs float64 `json:"journal_latency_ms"`
		LastHMAAt        string  `json:"last_hma_at"`
	}{
		Status:           status,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		SessionActive:    h.SessionActive,
		RedisConnected:   h.RedisConnected,
		RedisLatencyMs:   h.RedisLatencyMs,
		JournalOK:        h.JournalOK,
		JournalLatencyMs: h.JournalLatencyMs,
		LastHMAAt:        h.LastHMAAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(out)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", slog.Any("err", err))
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

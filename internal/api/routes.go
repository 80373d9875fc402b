// Package api is the relay's HTTP route layer: HMA endpoints backed by the
// engine cache, plus thin pass-through proxies to the broker API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"traderelay/internal/expiry"
	"traderelay/internal/hma"
	"traderelay/internal/logger"
	"traderelay/internal/metrics"
	"traderelay/internal/model"
	"traderelay/internal/session"
	redisstore "traderelay/internal/store/redis"
	"traderelay/internal/store/statefile"
)

// HMAEngine is the subset of the HMA engine the route layer uses.
type HMAEngine interface {
	FetchAndCompute(ctx context.Context, symbol string) (*model.HMAResult, bool, error)
	Evict(symbol string) bool
	CacheStats() []hma.CacheStat
}

// Broker is the subset of the broker client the proxy endpoints use.
type Broker interface {
	AuthCodeURL(state string) string
	GenerateSession(ctx context.Context, authCode string) error
	Tokens() (access, refresh string)

	Quotes(ctx context.Context, symbols string) (map[string]any, error)
	Depth(ctx context.Context, symbol string) (map[string]any, error)
	History(ctx context.Context, symbol, resolution string, from, to int64) ([][]float64, error)
	PlaceOrder(ctx context.Context, params map[string]any) (string, error)
	Orders(ctx context.Context) (map[string]any, error)
	Positions(ctx context.Context) (map[string]any, error)
	Holdings(ctx context.Context) (map[string]any, error)
}

// OrderJournal records forwarded order placements.
type OrderJournal interface {
	RecordOrder(rec model.OrderRecord) error
	RecentOrders(limit int) ([]model.OrderRecord, error)
}

// Deps carries everything the route handlers need. Publisher, Journal,
// Sessions, Health and Prom may be nil; handlers degrade gracefully.
type Deps struct {
	Engine    HMAEngine
	Broker    Broker
	Journal   OrderJournal
	Hub       *Hub
	Publisher *redisstore.Publisher
	Sessions  *statefile.Store
	Health    *metrics.HealthStatus
	Prom      *metrics.Metrics
	Log       *slog.Logger
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// RegisterRoutes registers all relay routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, d Deps) {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	// ---- HMA core ----

	mux.HandleFunc("/api/hma", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			writeError(w, http.StatusBadRequest, "symbol query parameter required")
			return
		}

		start := time.Now()
		ctx := logger.WithRequestID(r.Context(), logger.GenerateRequestID(symbol, start))
		res, cached, err := d.Engine.FetchAndCompute(ctx, symbol)
		if err != nil {
			var fe *hma.FetchError
			switch {
			case errors.Is(err, hma.ErrInsufficientData):
				if d.Prom != nil {
					d.Prom.HMAErrors.WithLabelValues("insufficient_data").Inc()
				}
				writeError(w, http.StatusUnprocessableEntity, err.Error())
			case errors.As(err, &fe):
				if d.Prom != nil {
					d.Prom.HMAErrors.WithLabelValues("fetch").Inc()
				}
				writeError(w, http.StatusBadGateway, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, err.Error())
			}
			args := []any{slog.String("symbol", symbol), slog.Any("err", err)}
			args = append(args, logger.LogWithRequest(ctx)...)
			log.Warn("hma request failed", args...)
			return
		}

		if d.Prom != nil {
			if cached {
				d.Prom.HMACacheHits.Inc()
			} else {
				d.Prom.HMACacheMisses.Inc()
				d.Prom.HMAComputeDur.Observe(time.Since(start).Seconds())
			}
		}
		if d.Health != nil {
			d.Health.SetLastHMAAt(res.LastUpdate)
		}
		if !cached {
			// Fresh recompute: fan out to WS clients and downstream consumers.
			if d.Hub != nil {
				d.Hub.BroadcastHMA(symbol, res)
			}
			d.Publisher.PublishHMA(ctx, symbol, res)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"symbol":     symbol,
			"cached":     cached,
			"period":     res.Period,
			"currentHMA": res.CurrentHMA,
			"lastUpdate": res.LastUpdate,
			"data":       res.Data,
		})
	})

	mux.HandleFunc("/api/hma/cache", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, d.Engine.CacheStats())
		case http.MethodDelete:
			symbol := r.URL.Query().Get("symbol")
			if symbol == "" {
				writeError(w, http.StatusBadRequest, "symbol query parameter required")
				return
			}
			evicted := d.Engine.Evict(symbol)
			if evicted && d.Prom != nil {
				d.Prom.HMAEvictions.Inc()
			}
			writeJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "evicted": evicted})
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		default:
			writeError(w, http.StatusMethodNotAllowed, "GET or DELETE only")
		}
	})

	// ---- Broker auth ----

	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		http.Redirect(w, r, d.Broker.AuthCodeURL(state), http.StatusFound)
	})

	mux.HandleFunc("/api/callback", func(w http.ResponseWriter, r *http.Request) {
		authCode := r.URL.Query().Get("auth_code")
		if authCode == "" {
			authCode = r.URL.Query().Get("code")
		}
		if authCode == "" {
			writeError(w, http.StatusBadRequest, "auth_code query parameter required")
			return
		}
		if err := d.Broker.GenerateSession(r.Context(), authCode); err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		access, refresh := d.Broker.Tokens()
		if d.Sessions != nil {
			if err := d.Sessions.Save(&statefile.Session{
				AccessToken:  access,
				RefreshToken: refresh,
				LastLogin:    time.Now().UTC(),
			}); err != nil {
				log.Warn("session persist failed", slog.Any("err", err))
			}
		}
		if d.Health != nil {
			d.Health.SetSessionActive(true)
		}
		log.Info("broker session established")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// ---- Market-data proxies ----

	proxy := func(endpoint string, fn func(r *http.Request) (map[string]any, error)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			SetCORS(w)
			if d.Prom != nil {
				d.Prom.ProxyRequests.WithLabelValues(endpoint).Inc()
			}
			res, err := fn(r)
			if err != nil {
				writeError(w, http.StatusBadGateway, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, res)
		}
	}

	mux.HandleFunc("/api/quotes", proxy("quotes", func(r *http.Request) (map[string]any, error) {
		return d.Broker.Quotes(r.Context(), r.URL.Query().Get("symbols"))
	}))

	mux.HandleFunc("/api/depth", proxy("depth", func(r *http.Request) (map[string]any, error) {
		return d.Broker.Depth(r.Context(), r.URL.Query().Get("symbol"))
	}))

	mux.HandleFunc("/api/positions", proxy("positions", func(r *http.Request) (map[string]any, error) {
		return d.Broker.Positions(r.Context())
	}))

	mux.HandleFunc("/api/holdings", proxy("holdings", func(r *http.Request) (map[string]any, error) {
		return d.Broker.Holdings(r.Context())
	}))

	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		q := r.URL.Query()
		symbol := q.Get("symbol")
		if symbol == "" {
			writeError(w, http.StatusBadRequest, "symbol query parameter required")
			return
		}
		resolution := q.Get("resolution")
		if resolution == "" {
			resolution = "5"
		}
		days := 2
		from, to := session.LookbackWindow(time.Now(), days)
		if d.Prom != nil {
			d.Prom.ProxyRequests.WithLabelValues("history").Inc()
		}
		fetchStart := time.Now()
		candles, err := d.Broker.History(r.Context(), symbol, resolution, from, to)
		if d.Prom != nil {
			d.Prom.HistoryFetchDur.Observe(time.Since(fetchStart).Seconds())
		}
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "candles": candles})
	})

	// ---- Orders ----

	mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		switch r.Method {
		case http.MethodGet:
			res, err := d.Broker.Orders(r.Context())
			if err != nil {
				writeError(w, http.StatusBadGateway, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, res)

		case http.MethodPost:
			var req model.OrderRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
				return
			}
			if req.Symbol == "" || req.Qty <= 0 || req.Side == "" {
				writeError(w, http.StatusBadRequest, "symbol, qty and side are required")
				return
			}

			orderID, err := d.Broker.PlaceOrder(r.Context(), map[string]any{
				"symbol":      req.Symbol,
				"qty":         req.Qty,
				"side":        req.Side,
				"type":        req.Type,
				"productType": req.ProductType,
				"limitPrice":  req.LimitPrice,
				"stopPrice":   req.StopPrice,
			})
			if err != nil {
				writeError(w, http.StatusBadGateway, err.Error())
				return
			}

			if d.Prom != nil {
				d.Prom.OrdersPlaced.Inc()
			}
			if d.Journal != nil {
				if err := d.Journal.RecordOrder(model.OrderRecord{
					OrderID:  orderID,
					Symbol:   req.Symbol,
					Side:     req.Side,
					Type:     req.Type,
					Qty:      req.Qty,
					Price:    req.LimitPrice,
					Status:   "FORWARDED",
					PlacedAt: time.Now().UTC(),
				}); err != nil {
					log.Warn("order journal write failed", slog.Any("err", err))
				}
			}
			log.Info("order forwarded",
				slog.String("symbol", req.Symbol),
				slog.String("side", req.Side),
				slog.String("order_id", orderID))
			writeJSON(w, http.StatusOK, map[string]string{"id": orderID})

		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		default:
			writeError(w, http.StatusMethodNotAllowed, "GET or POST only")
		}
	})

	mux.HandleFunc("/api/orders/log", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if d.Journal == nil {
			writeJSON(w, http.StatusOK, []model.OrderRecord{})
			return
		}
		recs, err := d.Journal.RecentOrders(100)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if recs == nil {
			recs = []model.OrderRecord{}
		}
		writeJSON(w, http.StatusOK, recs)
	})

	// ---- Calendar ----

	mux.HandleFunc("/api/expiry", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		now := time.Now().In(session.IST)
		weekly := expiry.NextWeekly(now)
		monthly := expiry.Monthly(now.Year(), now.Month())
		writeJSON(w, http.StatusOK, map[string]string{
			"weekly":  weekly.Format("2006-01-02"),
			"monthly": monthly.Format("2006-01-02"),
		})
	})

	// ---- Health / streaming ----

	if d.Health != nil {
		mux.Handle("/healthz", d.Health)
	}
	if d.Hub != nil {
		mux.HandleFunc("/ws", d.Hub.HandleWS)
	}
}

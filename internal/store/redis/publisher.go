// Package redis publishes computed HMA results to Redis streams so
// downstream consumers (alerting, dashboards) can tail them without
// touching the relay's in-memory cache.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"traderelay/internal/model"
)

const (
	// Stream trimming: one result per symbol per 5-minute window keeps
	// this comfortably under a trading week of history.
	streamMaxLen = 2000
	latestTTL    = 30 * time.Minute
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string
	Password string
	DB       int
}

// Publisher writes HMA results to Redis. All writes are fire-and-forget:
// a Redis outage never fails an HMA request.
type Publisher struct {
	client *goredis.Client
}

// NewPublisher connects to Redis and pings the server.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis publisher connected", slog.String("addr", cfg.Addr))
	return &Publisher{client: client}, nil
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// PublishHMA appends the result to the symbol's stream and refreshes the
// latest-value key. Errors are logged, not returned — nil-safe on a nil
// receiver so the relay runs fine without Redis configured.
func (p *Publisher) PublishHMA(ctx context.Context, symbol string, res *model.HMAResult) {
	if p == nil {
		return
	}
	stream := "hma:" + symbol
	payload := map[string]interface{}{
		"hma":   res.CurrentHMA,
		"ts":    res.LastUpdate.Unix(),
		"count": len(res.Data),
	}

	if err := p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: payload,
	}).Err(); err != nil {
		slog.Warn("hma stream publish failed", slog.String("symbol", symbol), slog.Any("err", err))
		return
	}

	if err := p.client.Set(ctx, "hma:latest:"+symbol, res.JSON(), latestTTL).Err(); err != nil {
		slog.Warn("hma latest set failed", slog.String("symbol", symbol), slog.Any("err", err))
	}
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.client.Close()
}

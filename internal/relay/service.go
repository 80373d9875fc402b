// Package relay is the top-level orchestrator: it wires the broker client,
// the HMA engine, persistence and the HTTP/WS surface, and manages lifecycle.
package relay

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"traderelay/config"
	"traderelay/internal/api"
	"traderelay/internal/hma"
	"traderelay/internal/logger"
	"traderelay/internal/metrics"
	"traderelay/internal/notify"
	redisstore "traderelay/internal/store/redis"
	"traderelay/internal/store/sqlite"
	"traderelay/internal/store/statefile"
	"traderelay/pkg/fyersconnect"
)

// Service wires all relay subsystems and coordinates their lifecycle.
type Service struct {
	cfg *config.Config
	log *slog.Logger

	broker    *fyersconnect.Client
	engine    *hma.Engine
	journal   *sqlite.Journal
	publisher *redisstore.Publisher
	sessions  *statefile.Store
	hub       *api.Hub
	notifier  notify.Notifier

	prom   *metrics.Metrics
	health *metrics.HealthStatus

	httpSrv    *http.Server
	metricsSrv *metrics.Server
}

// New creates a Service from the given Config. SQLite and Redis failures
// are non-fatal: the relay degrades to in-memory operation and logs a
// warning, matching first-run behavior before infra is provisioned.
func New(cfg *config.Config) (*Service, error) {
	svc := &Service{
		cfg:    cfg,
		log:    logger.Init("relay", cfg.LogLevel),
		prom:   metrics.NewMetrics(),
		health: metrics.NewHealthStatus(),
	}

	svc.broker = fyersconnect.New(fyersconnect.Config{
		AppID:       cfg.FyersAppID,
		SecretID:    cfg.FyersSecret,
		RedirectURI: cfg.FyersRedirect,
	})
	svc.broker.SessionExpiryHook = svc.onSessionExpired

	svc.engine = hma.NewEngine(svc.broker)

	// ---- Session state ----
	var err error
	svc.sessions, err = statefile.New(cfg.StatePath)
	if err != nil {
		return nil, err
	}

	// ---- Order journal ----
	svc.journal, err = sqlite.NewJournal(cfg.SQLitePath)
	if err != nil {
		svc.log.Warn("order journal init failed, orders will not be persisted",
			slog.Any("err", err))
		svc.journal = nil
	}

	// ---- Redis publisher (optional) ----
	if cfg.RedisAddr != "" {
		svc.publisher, err = redisstore.NewPublisher(redisstore.PublisherConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			svc.log.Warn("redis unavailable, HMA publishing disabled",
				slog.Any("err", err))
			svc.publisher = nil
		}
	}

	svc.hub = api.NewHub(svc.prom)
	svc.notifier = buildNotifier(cfg, svc.log)
	return svc, nil
}

// buildNotifier assembles the alert fanout from whichever channels are
// configured; without any it degrades to structured-log alerts.
func buildNotifier(cfg *config.Config, log *slog.Logger) notify.Notifier {
	var channels []notify.Notifier
	if cfg.NotifyWebhookURL != "" {
		channels = append(channels, notify.NewWebhook(cfg.NotifyWebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		channels = append(channels, notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if len(channels) == 0 {
		return &notify.LogNotifier{Log: log}
	}
	return &notify.Fanout{Log: log, Channels: channels}
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg

	// ---- Restore broker session ----
	svc.restoreSession(ctx)

	// ---- HTTP surface ----
	mux := http.NewServeMux()
	api.RegisterRoutes(mux, api.Deps{
		Engine:    svc.engine,
		Broker:    svc.broker,
		Journal:   journalOrNil(svc.journal),
		Hub:       svc.hub,
		Publisher: svc.publisher,
		Sessions:  svc.sessions,
		Health:    svc.health,
		Prom:      svc.prom,
		Log:       svc.log,
	})
	svc.httpSrv = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		svc.log.Info("http server listening", slog.String("addr", cfg.HTTPAddr))
		if err := svc.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			svc.log.Error("http server failed", slog.Any("err", err))
		}
	}()

	// ---- Metrics / health ----
	svc.metricsSrv = metrics.NewServer(cfg.MetricsAddr, svc.health)
	svc.metricsSrv.Start()
	svc.startLiveness(ctx)

	svc.log.Info("relay active",
		slog.String("http", cfg.HTTPAddr),
		slog.String("metrics", cfg.MetricsAddr),
		slog.Bool("redis", svc.publisher != nil),
		slog.Bool("journal", svc.journal != nil))

	<-ctx.Done()
	svc.shutdown()
	return nil
}

// restoreSession loads persisted broker tokens; falls back to the headless
// TOTP login when credentials for it are configured.
func (svc *Service) restoreSession(ctx context.Context) {
	sess, err := svc.sessions.Load()
	if err != nil {
		svc.log.Warn("session state read failed", slog.Any("err", err))
	}
	if sess != nil && sess.AccessToken != "" {
		svc.broker.SetTokens(sess.AccessToken, sess.RefreshToken)
		svc.health.SetSessionActive(true)
		svc.log.Info("broker session restored",
			slog.Time("last_login", sess.LastLogin))
		return
	}

	if !svc.cfg.AutoLoginConfigured() {
		svc.log.Info("no persisted session, waiting for /api/login flow")
		return
	}

	loginCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := svc.broker.TOTPLogin(loginCtx, svc.cfg.FyersID, svc.cfg.FyersTOTPSecret, svc.cfg.FyersPIN); err != nil {
		svc.log.Warn("headless TOTP login failed", slog.Any("err", err))
		return
	}
	svc.persistTokens()
	svc.health.SetSessionActive(true)
	svc.log.Info("broker session established via TOTP login")
}

// onSessionExpired fires from the broker client when the API reports an
// expired token. It tries a refresh-token renewal before giving up.
func (svc *Service) onSessionExpired() {
	svc.health.SetSessionActive(false)
	svc.log.Warn("broker session expired")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if svc.cfg.FyersPIN == "" {
		svc.notifier.Send(ctx, notify.Alert{
			Level:   notify.LevelCritical,
			Title:   "broker session expired",
			Message: "no PIN configured for refresh, manual login required",
		})
		return
	}
	if err := svc.broker.RefreshSession(ctx, svc.cfg.FyersPIN); err != nil {
		svc.log.Warn("session refresh failed, re-login required", slog.Any("err", err))
		svc.notifier.Send(ctx, notify.Alert{
			Level:   notify.LevelCritical,
			Title:   "broker session refresh failed",
			Message: err.Error(),
		})
		return
	}
	svc.persistTokens()
	svc.health.SetSessionActive(true)
	svc.log.Info("broker session refreshed")
}

func (svc *Service) persistTokens() {
	access, refresh := svc.broker.Tokens()
	if err := svc.sessions.Save(&statefile.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		LastLogin:    time.Now().UTC(),
	}); err != nil {
		svc.log.Warn("session persist failed", slog.Any("err", err))
	}
}

func (svc *Service) startLiveness(ctx context.Context) {
	var rdb *goredis.Client
	if svc.publisher != nil {
		rdb = svc.publisher.Client()
	}
	var db *sql.DB
	if svc.journal != nil {
		db = svc.journal.DB()
	}
	if rdb == nil && db == nil {
		return
	}
	svc.health.StartLivenessChecker(ctx, rdb, db, 30*time.Second)
}

// shutdown stops the HTTP surface and closes connections.
func (svc *Service) shutdown() {
	svc.log.Info("shutdown signal received")

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := svc.httpSrv.Shutdown(shutCtx); err != nil {
		svc.log.Warn("http shutdown", slog.Any("err", err))
	}
	svc.metricsSrv.Stop(shutCtx)

	if svc.publisher != nil {
		svc.publisher.Close()
	}
	if svc.journal != nil {
		svc.journal.Close()
	}
	svc.log.Info("shutdown complete")
}

// journalOrNil avoids handing the route layer a typed-nil interface when
// the journal failed to open.
func journalOrNil(j *sqlite.Journal) api.OrderJournal {
	if j == nil {
		return nil
	}
	return j
}

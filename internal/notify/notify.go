// Package notify delivers relay alerts (session expiry, order failures)
// to external channels: a generic webhook or a Telegram chat.
package notify

import (
	"context"
	"log/slog"
)

// Level is alert severity.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Alert is a notification to be delivered.
type Alert struct {
	Level   Level  `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Notifier delivers alerts to one channel.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log. It is the fallback when
// no external channel is configured.
type LogNotifier struct {
	Log *slog.Logger
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log := n.Log
	if log == nil {
		log = slog.Default()
	}
	log.Warn("alert",
		slog.String("level", string(alert.Level)),
		slog.String("title", alert.Title),
		slog.String("message", alert.Message))
	return nil
}

// Fanout sends each alert to every configured notifier. Delivery errors are
// logged and swallowed so one dead channel does not silence the others.
type Fanout struct {
	Log      *slog.Logger
	Channels []Notifier
}

func (f *Fanout) Send(ctx context.Context, alert Alert) error {
	for _, n := range f.Channels {
		if err := n.Send(ctx, alert); err != nil && f.Log != nil {
			f.Log.Warn("alert delivery failed", slog.Any("err", err))
		}
	}
	return nil
}

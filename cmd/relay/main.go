package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"traderelay/config"
	"traderelay/internal/relay"
)

func main() {
	cfg := config.Load()

	svc, err := relay.New(cfg)
	if err != nil {
		log.Fatalf("[relay] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[relay] fatal: %v", err)
	}
}

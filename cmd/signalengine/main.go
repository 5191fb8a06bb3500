package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/xmandeng/tastytrade-sdk-sub001/config"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/logger"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/sigengine"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg := config.Load()
	slogger := logger.Init("signalengine", logger.ParseLevel(cfg.LogLevel))
	log.Printf("[signalengine] engine=%s source=%s timeframe=%s symbols=%v", cfg.EngineID, cfg.Source, cfg.Timeframe, cfg.Symbols)

	svc, err := sigengine.New(cfg, slogger)
	if err != nil {
		log.Fatalf("[signalengine] init failed: %v", err)
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
		log.Fatalf("[signalengine] fatal: %v", err)
	}
}

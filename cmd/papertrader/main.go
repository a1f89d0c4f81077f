package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camuig/paper-trader/internal/app"
	"github.com/camuig/paper-trader/internal/config"
	"github.com/camuig/paper-trader/internal/logger"
	"github.com/camuig/paper-trader/internal/scheduler"
	"github.com/camuig/paper-trader/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)
	log.Info("starting paper-trader", "symbol", cfg.Price.Symbol, "storage", cfg.Storage.Driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("init failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if a.Stream != nil {
		go a.Stream.Run(ctx)
	}

	var generator scheduler.SignalGenerator
	if g := a.Generator(); g != nil {
		generator = g
	}
	sched := scheduler.NewScheduler(a.Syncer, generator, a.Notifier, cfg.SyncInterval(), cfg.AIInterval(), log.With("component", "scheduler"))
	webServer := web.NewServer(a.Store, a.Oracle, a.Syncer, cfg, log.With("component", "web"))

	go sched.Run(ctx)

	go func() {
		if err := webServer.Start(); err != nil {
			log.Error("web server error", "error", err)
		}
	}()

	a.Notifier.NotifyStatus(fmt.Sprintf("Paper-trader started (%s)", cfg.Price.Symbol))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", "signal", sig.String())

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error("web server shutdown error", "error", err)
	}

	a.Notifier.NotifyStatus("Paper-trader stopped")
	log.Info("paper-trader stopped")
}

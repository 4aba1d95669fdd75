package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/InductWatch/config"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	m, analyzer, err := buildMonitor(cfg, defaultMonitorFactories())
	if err != nil {
		panic(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		err := runMonitorHTTPServer(ctx, monitorHTTPOpts{
			httpAddr: cfg.Monitor.HTTPAddr,
			monitor:  m,
			analyzer: analyzer,
			cfg:      cfg,
			onListen: func(addr string) {
				slog.Info("diagnostics HTTP listening", "addr", addr)
			},
		})
		if err != nil && err != http.ErrServerClosed {
			slog.Error("diagnostics HTTP server", "error", err.Error())
		}
	}()

	if err := m.Run(ctx); err != nil && err != context.Canceled {
		panic(err)
	}
}

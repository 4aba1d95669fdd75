package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/InductWatch/config"
	"github.com/BearBump/InductWatch/internal/broker/kafka"
	"github.com/BearBump/InductWatch/internal/cache/rediscache"
	"github.com/BearBump/InductWatch/internal/services/scans"
	"github.com/BearBump/InductWatch/internal/storage/pgscan"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.Monitor.APIHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.Kafka.APIConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "induct-api"
	}
	topic := cfg.Kafka.ScansAnalyzedTopicName
	if topic == "" {
		topic = "induct.scans_analyzed"
	}
	cacheTTL := time.Duration(cfg.Monitor.SummaryCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)
	defer st.Close()

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	svc := scans.New(st, rc, cacheTTL)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)
	defer func() { _ = consumer.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = runInductAPI(ctx, inductAPIOpts{
		httpAddr:      httpAddr,
		topic:         topic,
		consumerGroup: consumerGroup,
		onListen: func(addr string) {
			slog.Info("induct-api listening", "addr", addr)
		},
	}, svc, consumer)
	if err != nil && err != context.Canceled {
		panic(err)
	}
}

// Postgres в docker compose может подниматься дольше, чем сам сервис.
func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgscan.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgscan.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

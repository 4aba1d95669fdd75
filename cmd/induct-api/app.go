package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/InductWatch/internal/api/inductapi"
	"github.com/BearBump/InductWatch/internal/broker/messages"
	"github.com/BearBump/InductWatch/internal/services/scans"
)

type inductAPIOpts struct {
	httpAddr string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

func runInductAPI(ctx context.Context, opts inductAPIOpts, svc *scans.Service, consumer kafkaConsumer) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8080"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		_ = consumer.Consume(ctx, func(key, value []byte) error {
			return applyMessage(ctx, svc, key, value)
		})
	}()

	srv := &http.Server{Handler: inductapi.New(svc).Router()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// applyMessage разбирает сообщение по ключу: "daily:<date>" — итог смены,
// всё остальное — результат цикла скрейпа.
func applyMessage(ctx context.Context, svc *scans.Service, key, value []byte) error {
	if strings.HasPrefix(string(key), "daily:") {
		var m messages.DailySummarySaved
		if err := json.Unmarshal(value, &m); err != nil {
			return err
		}
		return svc.ApplyDailySummary(ctx, m)
	}

	var m messages.ScansAnalyzed
	if err := json.Unmarshal(value, &m); err != nil {
		return err
	}
	return svc.ApplyScansAnalyzed(ctx, m)
}

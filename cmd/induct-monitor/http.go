package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/InductWatch/config"
	"github.com/BearBump/InductWatch/internal/downtime"
	"github.com/BearBump/InductWatch/internal/services/monitor"
	"github.com/go-chi/chi/v5"
)

type monitorHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	monitor  *monitor.Monitor
	analyzer *downtime.Analyzer
	cfg      *config.Config
}

func runMonitorHTTPServer(ctx context.Context, opts monitorHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.monitor == nil {
			_, _ = w.Write([]byte(`{"error":"monitor not wired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(opts.monitor.Stats())
	})

	r.Get("/summaries", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.analyzer == nil {
			_, _ = w.Write([]byte(`{"error":"analyzer not wired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"locations":  opts.analyzer.LocationSummaries(),
			"statistics": opts.analyzer.Statistics(),
		})
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.cfg == nil {
			_, _ = w.Write([]byte(`{"error":"config not wired"}`))
			return
		}
		// Avoid dumping secrets; show only operational monitor settings.
		out := map[string]any{
			"scrapeIntervalSeconds":    opts.cfg.Mercury.ScrapeIntervalSeconds,
			"validLocations":           opts.cfg.Locations.Valid,
			"breakThresholdSeconds":    opts.cfg.Downtime.BreakThresholdSeconds,
			"reportIntervalSeconds":    opts.cfg.Slack.ReportIntervalSeconds,
			"alertThresholdSeconds":    opts.cfg.Slack.AlertThresholdSeconds,
			"shiftEndThresholdSeconds": opts.cfg.Slack.ShiftEndThresholdSeconds,
			"storageMode":              opts.cfg.Storage.Mode,
			"shiftStart":               opts.cfg.Shift.Start,
			"shiftEnd":                 opts.cfg.Shift.End,
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.monitor == nil {
			_, _ = w.Write([]byte(`{"error":"monitor not wired"}`))
			return
		}
		opts.monitor.Trigger()
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}

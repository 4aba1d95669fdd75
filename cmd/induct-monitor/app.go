package main

import (
	"fmt"
	"time"

	"github.com/BearBump/InductWatch/config"
	"github.com/BearBump/InductWatch/internal/auth/midway"
	"github.com/BearBump/InductWatch/internal/broker/kafka"
	"github.com/BearBump/InductWatch/internal/cache/rediscache"
	"github.com/BearBump/InductWatch/internal/downtime"
	"github.com/BearBump/InductWatch/internal/models"
	"github.com/BearBump/InductWatch/internal/notify/slack"
	"github.com/BearBump/InductWatch/internal/scraper/fake"
	"github.com/BearBump/InductWatch/internal/scraper/mercury"
	"github.com/BearBump/InductWatch/internal/services/monitor"
	"github.com/BearBump/InductWatch/internal/storage/csvexport"
	"github.com/pkg/errors"
)

type monitorFactories struct {
	newScanSource  func(cfg *config.Config) (monitor.ScanSource, error)
	newNotifier    func(cfg *config.Config) monitor.Notifier
	newProducer    func(cfg *config.Config) monitor.Producer
	newExporter    func(cfg *config.Config) (monitor.Exporter, error)
	newRateLimiter func(cfg *config.Config) monitor.RateLimiter
}

func defaultMonitorFactories() monitorFactories {
	return monitorFactories{
		newScanSource: func(cfg *config.Config) (monitor.ScanSource, error) {
			// Без URL Mercury работаем на локальной заглушке (офлайн-демо).
			if cfg.Mercury.URL == "" {
				return fake.New(cfg.Locations.Valid), nil
			}

			cookiePath := cfg.Mercury.CookiePath
			if cookiePath == "" {
				cookiePath = midway.DefaultCookiePath
			}
			httpc, err := midway.New(cookiePath).Client()
			if err != nil {
				return nil, errors.Wrap(err, "midway auth")
			}

			statuses := cfg.Mercury.ValidStatuses
			if len(statuses) == 0 {
				statuses = []string{
					models.ScanStatusInducted, models.ScanStatusInduct,
					models.ScanStatusStowBuffer, models.ScanStatusAtStation,
				}
			}

			c := mercury.New(cfg.Mercury.URL, httpc, cfg.Locations.Valid, statuses)
			if cfg.Mercury.MaxRetries > 0 {
				c = c.WithRetry(cfg.Mercury.MaxRetries, time.Duration(cfg.Mercury.RetryDelaySeconds)*time.Second)
			}
			return c, nil
		},
		newNotifier: func(cfg *config.Config) monitor.Notifier {
			return slack.New(cfg.Slack.Webhook, cfg.Slack.AlertThresholdSeconds)
		},
		newProducer: func(cfg *config.Config) monitor.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newExporter: func(cfg *config.Config) (monitor.Exporter, error) {
			dir := cfg.Storage.CSVPath
			if dir == "" {
				dir = "data"
			}
			return csvexport.New(dir)
		},
		newRateLimiter: func(cfg *config.Config) monitor.RateLimiter {
			if cfg.Redis.Host == "" {
				return nil
			}
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
	}
}

func categoriesFromConfig(cfg *config.Config) []downtime.Category {
	out := make([]downtime.Category, 0, len(cfg.Downtime.Categories))
	for _, c := range cfg.Downtime.Categories {
		out = append(out, downtime.Category{Name: c.Name, Min: c.Min, Max: c.Max})
	}
	return out
}

// buildMonitor собирает монитор из фабрик. Analyzer возвращается отдельно:
// его читает диагностический HTTP-сервер.
func buildMonitor(cfg *config.Config, f monitorFactories) (*monitor.Monitor, *downtime.Analyzer, error) {
	analyzer := downtime.NewAnalyzer(
		categoriesFromConfig(cfg),
		time.Duration(cfg.Downtime.BreakThresholdSeconds)*time.Second,
	)

	source, err := f.newScanSource(cfg)
	if err != nil {
		return nil, nil, err
	}

	m := monitor.New(analyzer, source, f.newNotifier(cfg))

	switch cfg.Storage.Mode {
	case "csv":
		exporter, err := f.newExporter(cfg)
		if err != nil {
			return nil, nil, err
		}
		m.WithExporter(exporter)
	default:
		topic := cfg.Kafka.ScansAnalyzedTopicName
		if topic == "" {
			topic = "induct.scans_analyzed"
		}
		m.WithProducer(f.newProducer(cfg), topic)
	}

	if rl := f.newRateLimiter(cfg); rl != nil {
		m.WithRateLimiter(rl)
	}

	if cfg.Shift.Start != "" && cfg.Shift.End != "" {
		sched, err := monitor.NewSchedule(cfg.Shift.Start, cfg.Shift.End, cfg.Shift.BreakStart, cfg.Shift.BreakEnd)
		if err != nil {
			return nil, nil, errors.Wrap(err, "shift schedule")
		}
		m.WithSchedule(sched)
	}

	m.WithSettings(
		time.Duration(cfg.Mercury.ScrapeIntervalSeconds)*time.Second,
		time.Duration(cfg.Slack.ReportIntervalSeconds)*time.Second,
		cfg.Slack.AlertThresholdSeconds,
		cfg.Slack.ShiftEndThresholdSeconds,
		time.Duration(cfg.Slack.AlertCooldownSeconds)*time.Second,
		int64(cfg.Slack.AlertsPerCooldown),
		cfg.Monitor.MaxConsecutiveErrors,
	)

	return m, analyzer, nil
}

package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/InductWatch/internal/broker/messages"
	"github.com/BearBump/InductWatch/internal/downtime"
	"github.com/BearBump/InductWatch/internal/models"
	"github.com/pkg/errors"
)

type ScanSource interface {
	ScrapeWithRetry(ctx context.Context) ([]models.ScanEvent, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Notifier interface {
	SendDowntimeAlert(ctx context.Context, ep models.DowntimeEpisode) error
	Send30MinuteReport(ctx context.Context, summaries []models.LocationSummary, at time.Time) error
	SendShiftEndAlerts(ctx context.Context, alerts []models.ShiftAlert) error
	SendShiftSummary(ctx context.Context, summaries []models.LocationSummary, shiftStart, shiftEnd string) error
	SendSystemAlert(ctx context.Context, severity, message, details string) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Exporter — CSV-режим хранения вместо kafka (одиночный запуск без инфры).
type Exporter interface {
	AppendScans(scans []models.ScanEvent) error
	AppendEpisodes(episodes []models.DowntimeEpisode) error
	WriteShiftSummary(date time.Time, summaries []models.LocationSummary) error
}

// Monitor runs the scrape → analyze → publish → alert loop during the shift
// and closes the shift with a summary when the window ends.
type Monitor struct {
	analyzer *downtime.Analyzer
	source   ScanSource
	notifier Notifier

	producer Producer
	topic    string
	exporter Exporter

	rl RateLimiter

	schedule *Schedule

	scrapeInterval           time.Duration
	reportInterval           time.Duration
	alertThresholdSeconds    int
	shiftEndThresholdSeconds int
	alertCooldown            time.Duration
	alertsPerCooldown        int64
	maxConsecutiveErrors     int

	triggerCh chan struct{}

	// wasActive помнит, была ли смена активна на прошлом тике:
	// переход active → inactive закрывает смену.
	wasActive bool

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	lastReportUnixNano  atomic.Int64
	totalScrapes        atomic.Int64
	totalScans          atomic.Int64
	totalEpisodes       atomic.Int64
	totalAlerts         atomic.Int64
	totalErrors         atomic.Int64
	consecutiveErrors   atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string

	now func() time.Time
}

func New(analyzer *downtime.Analyzer, source ScanSource, notifier Notifier) *Monitor {
	return &Monitor{
		analyzer: analyzer,
		source:   source,
		notifier: notifier,

		scrapeInterval:           120 * time.Second,
		reportInterval:           30 * time.Minute,
		alertThresholdSeconds:    120,
		shiftEndThresholdSeconds: 2100,
		alertCooldown:            10 * time.Minute,
		alertsPerCooldown:        1,
		maxConsecutiveErrors:     5,

		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
		now:               func() time.Time { return time.Now() },
	}
}

func (m *Monitor) WithProducer(p Producer, topic string) *Monitor {
	m.producer = p
	m.topic = topic
	return m
}

func (m *Monitor) WithExporter(e Exporter) *Monitor {
	m.exporter = e
	return m
}

func (m *Monitor) WithRateLimiter(rl RateLimiter) *Monitor {
	m.rl = rl
	return m
}

func (m *Monitor) WithSchedule(s *Schedule) *Monitor {
	m.schedule = s
	return m
}

func (m *Monitor) WithSettings(scrapeInterval, reportInterval time.Duration, alertThreshold, shiftEndThreshold int, alertCooldown time.Duration, alertsPerCooldown int64, maxConsecutiveErrors int) *Monitor {
	if scrapeInterval > 0 {
		m.scrapeInterval = scrapeInterval
	}
	if reportInterval > 0 {
		m.reportInterval = reportInterval
	}
	if alertThreshold > 0 {
		m.alertThresholdSeconds = alertThreshold
	}
	if shiftEndThreshold > 0 {
		m.shiftEndThresholdSeconds = shiftEndThreshold
	}
	if alertCooldown > 0 {
		m.alertCooldown = alertCooldown
	}
	if alertsPerCooldown > 0 {
		m.alertsPerCooldown = alertsPerCooldown
	}
	if maxConsecutiveErrors > 0 {
		m.maxConsecutiveErrors = maxConsecutiveErrors
	}
	return m
}

// Trigger forces an immediate scrape cycle (best-effort, non-blocking).
func (m *Monitor) Trigger() {
	m.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case m.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt         time.Time  `json:"startedAt"`
	LastCycleAt       *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt     *time.Time `json:"lastTriggerAt,omitempty"`
	LastReportAt      *time.Time `json:"lastReportAt,omitempty"`
	TotalScrapes      int64      `json:"totalScrapes"`
	TotalScans        int64      `json:"totalScans"`
	TotalEpisodes     int64      `json:"totalEpisodes"`
	TotalAlerts       int64      `json:"totalAlerts"`
	TotalErrors       int64      `json:"totalErrors"`
	ConsecutiveErrors int64      `json:"consecutiveErrors"`
	LastError         string     `json:"lastError,omitempty"`
}

func (m *Monitor) Stats() Stats {
	st := Stats{
		StartedAt:         time.Unix(0, m.startedAtUnixNano).UTC(),
		TotalScrapes:      m.totalScrapes.Load(),
		TotalScans:        m.totalScans.Load(),
		TotalEpisodes:     m.totalEpisodes.Load(),
		TotalAlerts:       m.totalAlerts.Load(),
		TotalErrors:       m.totalErrors.Load(),
		ConsecutiveErrors: m.consecutiveErrors.Load(),
	}
	if n := m.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := m.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	if n := m.lastReportUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastReportAt = &t
	}
	m.lastErrorMu.Lock()
	st.LastError = m.lastError
	m.lastErrorMu.Unlock()
	return st
}

func (m *Monitor) Run(ctx context.Context) error {
	scrape := time.NewTicker(m.scrapeInterval)
	defer scrape.Stop()
	report := time.NewTicker(m.reportInterval)
	defer report.Stop()

	m.wasActive = m.shiftActive(m.now())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-scrape.C:
			m.tick(ctx)
		case <-m.triggerCh:
			m.tick(ctx)
		case <-report.C:
			m.sendPeriodicReport(ctx)
		}
	}
}

func (m *Monitor) shiftActive(t time.Time) bool {
	if m.schedule == nil {
		return true
	}
	return m.schedule.ShiftActive(t)
}

func (m *Monitor) breakActive(t time.Time) bool {
	if m.schedule == nil {
		return false
	}
	return m.schedule.BreakActive(t)
}

func (m *Monitor) tick(ctx context.Context) {
	now := m.now()
	active := m.shiftActive(now)

	if m.wasActive && !active {
		m.closeShift(ctx)
	}
	m.wasActive = active

	if !active {
		slog.Debug("shift not active, skipping scrape")
		return
	}

	m.runCycle(ctx)
}

func (m *Monitor) runCycle(ctx context.Context) {
	now := m.now()
	m.lastCycleUnixNano.Store(now.UTC().UnixNano())
	m.totalScrapes.Add(1)

	scans, err := m.source.ScrapeWithRetry(ctx)
	if err != nil {
		n := m.consecutiveErrors.Add(1)
		m.totalErrors.Add(1)
		m.setLastError(err)
		slog.Error("scrape failed", "consecutive", n, "error", err.Error())

		if int(n) == m.maxConsecutiveErrors {
			if alertErr := m.notifier.SendSystemAlert(ctx, "error", "Scraping System Failure",
				fmt.Sprintf("Failed to scrape data %d times in a row", n)); alertErr != nil {
				slog.Error("system alert failed", "error", alertErr.Error())
			}
		}
		return
	}
	m.consecutiveErrors.Store(0)
	m.totalScans.Add(int64(len(scans)))
	slog.Info("scrape ok", "scans", len(scans))

	episodes := m.analyzer.ProcessScans(scans)
	m.totalEpisodes.Add(int64(len(episodes)))

	if err := m.publish(ctx, now, scans, episodes); err != nil {
		m.totalErrors.Add(1)
		m.setLastError(err)
		slog.Error("publish failed", "error", err.Error())
	}

	for _, ep := range episodes {
		m.maybeAlert(ctx, *ep)
	}

	m.checkShiftEndAlerts(ctx)
}

func (m *Monitor) publish(ctx context.Context, scrapedAt time.Time, scans []models.ScanEvent, episodes []*models.DowntimeEpisode) error {
	if m.exporter != nil {
		if err := m.exporter.AppendScans(scans); err != nil {
			return err
		}
		eps := make([]models.DowntimeEpisode, 0, len(episodes))
		for _, ep := range episodes {
			eps = append(eps, *ep)
		}
		return m.exporter.AppendEpisodes(eps)
	}

	if m.producer == nil {
		return nil
	}
	if len(scans) == 0 && len(episodes) == 0 {
		return nil
	}

	msg := messages.ScansAnalyzed{ScrapedAt: scrapedAt.UTC()}
	for _, sc := range scans {
		msg.Scans = append(msg.Scans, messages.ScanRecord{
			Location:     sc.Location,
			TrackingID:   sc.TrackingID,
			Status:       sc.Status,
			Timestamp:    sc.Timestamp,
			RawTimestamp: sc.RawTimestamp,
		})
	}
	for _, ep := range episodes {
		msg.Episodes = append(msg.Episodes, messages.DowntimeRecord{
			Location:        ep.Location,
			DowntimeSeconds: ep.DowntimeSeconds,
			Category:        ep.Category,
			StartTimestamp:  ep.StartTimestamp,
			EndTimestamp:    ep.EndTimestamp,
			StartTrackingID: ep.StartTrackingID,
			EndTrackingID:   ep.EndTrackingID,
			StartStatus:     ep.StartStatus,
			EndStatus:       ep.EndStatus,
			DetectedAt:      ep.DetectedAt,
		})
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}

	key := []byte(scrapedAt.UTC().Format(time.RFC3339))
	// Kafka может быть не готова сразу после старта docker compose.
	// Для устойчивости делаем небольшой retry.
	var pubErr error
	for i := 0; i < 10; i++ {
		if err := m.producer.Publish(ctx, m.topic, key, b); err == nil {
			return nil
		} else {
			pubErr = err
			time.Sleep(time.Duration(150*(i+1)) * time.Millisecond)
		}
	}
	return pubErr
}

// maybeAlert шлёт немедленный алерт по значимому эпизоду, с cooldown на
// станцию, чтобы дребезжащая станция не заспамила канал.
func (m *Monitor) maybeAlert(ctx context.Context, ep models.DowntimeEpisode) {
	if ep.DowntimeSeconds < m.alertThresholdSeconds {
		return
	}

	if m.rl != nil {
		allowed, n, err := m.rl.Allow(ctx, "alert:downtime:"+ep.Location, m.alertsPerCooldown, m.alertCooldown)
		if err != nil {
			slog.Error("alert rate limit check failed", "location", ep.Location, "error", err.Error())
		} else if !allowed {
			slog.Warn("alert suppressed by cooldown", "location", ep.Location, "count", n)
			return
		}
	}

	if err := m.notifier.SendDowntimeAlert(ctx, ep); err != nil {
		m.totalErrors.Add(1)
		m.setLastError(err)
		slog.Error("downtime alert failed", "location", ep.Location, "error", err.Error())
		return
	}
	m.totalAlerts.Add(1)
}

func (m *Monitor) checkShiftEndAlerts(ctx context.Context) {
	alerts := m.analyzer.CheckShiftEnd(m.shiftEndThresholdSeconds)
	if len(alerts) == 0 {
		return
	}

	// Порог превышен — он останется превышенным до конца смены,
	// поэтому на каждую станцию шлём не чаще, чем раз в cooldown.
	filtered := alerts[:0]
	for _, a := range alerts {
		if m.rl != nil {
			allowed, _, err := m.rl.Allow(ctx, "alert:shiftend:"+a.Location, 1, m.alertCooldown)
			if err != nil {
				slog.Error("shift-end rate limit check failed", "location", a.Location, "error", err.Error())
			} else if !allowed {
				continue
			}
		}
		filtered = append(filtered, a)
	}
	if len(filtered) == 0 {
		return
	}

	if err := m.notifier.SendShiftEndAlerts(ctx, filtered); err != nil {
		m.totalErrors.Add(1)
		m.setLastError(err)
		slog.Error("shift-end alerts failed", "error", err.Error())
		return
	}
	m.totalAlerts.Add(int64(len(filtered)))
}

func (m *Monitor) sendPeriodicReport(ctx context.Context) {
	now := m.now()
	if !m.shiftActive(now) || m.breakActive(now) {
		slog.Info("skipping periodic report", "shift_active", m.shiftActive(now), "break", m.breakActive(now))
		return
	}

	summaries := m.summariesSlice()
	if err := m.notifier.Send30MinuteReport(ctx, summaries, now); err != nil {
		m.totalErrors.Add(1)
		m.setLastError(err)
		slog.Error("periodic report failed", "error", err.Error())
		return
	}
	m.lastReportUnixNano.Store(now.UTC().UnixNano())
}

// closeShift отправляет итог смены, сохраняет дневную сводку и сбрасывает
// агрегаты под новую смену.
func (m *Monitor) closeShift(ctx context.Context) {
	now := m.now()
	slog.Info("shift window closed, sending summary")

	summaries := m.summariesSlice()

	shiftStart, shiftEnd := "", ""
	if m.schedule != nil {
		shiftStart = m.schedule.ShiftStartString()
		shiftEnd = m.schedule.ShiftEndString()
	}

	if err := m.notifier.SendShiftSummary(ctx, summaries, shiftStart, shiftEnd); err != nil {
		m.totalErrors.Add(1)
		m.setLastError(err)
		slog.Error("shift summary failed", "error", err.Error())
	}

	if err := m.persistDailySummary(ctx, now, summaries); err != nil {
		m.totalErrors.Add(1)
		m.setLastError(err)
		slog.Error("daily summary persist failed", "error", err.Error())
	}

	m.analyzer.Reset()
}

func (m *Monitor) persistDailySummary(ctx context.Context, now time.Time, summaries []models.LocationSummary) error {
	if m.exporter != nil {
		return m.exporter.WriteShiftSummary(now, summaries)
	}
	if m.producer == nil {
		return nil
	}

	msg := messages.DailySummarySaved{
		Date:      now.UTC().Format("2006-01-02"),
		Summaries: map[string]messages.LocationSummary{},
	}
	for _, sum := range summaries {
		msg.Summaries[sum.Location] = messages.LocationSummary{
			TotalDowntimeSeconds: sum.TotalDowntimeSeconds,
			EpisodeCount:         sum.EpisodeCount,
			CategoryCounts:       sum.CategoryCounts,
			AverageDowntimeSecs:  sum.AverageDowntimeSecs,
		}
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal daily summary msg")
	}
	return m.producer.Publish(ctx, m.topic, []byte("daily:"+msg.Date), b)
}

func (m *Monitor) summariesSlice() []models.LocationSummary {
	byLocation := m.analyzer.LocationSummaries()
	out := make([]models.LocationSummary, 0, len(byLocation))
	for _, sum := range byLocation {
		out = append(out, sum)
	}
	return out
}

func (m *Monitor) setLastError(err error) {
	m.lastErrorMu.Lock()
	m.lastError = err.Error()
	m.lastErrorMu.Unlock()
}

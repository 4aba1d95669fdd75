package monitor

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/InductWatch/internal/broker/messages"
	"github.com/BearBump/InductWatch/internal/downtime"
	"github.com/BearBump/InductWatch/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	batches [][]models.ScanEvent
	err     error
	calls   int
}

func (f *fakeSource) ScrapeWithRetry(ctx context.Context) ([]models.ScanEvent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

type fakeNotifier struct {
	downtimeAlerts []models.DowntimeEpisode
	reports        int
	shiftEnd       [][]models.ShiftAlert
	shiftSummaries int
	systemAlerts   []string
}

func (f *fakeNotifier) SendDowntimeAlert(ctx context.Context, ep models.DowntimeEpisode) error {
	f.downtimeAlerts = append(f.downtimeAlerts, ep)
	return nil
}

func (f *fakeNotifier) Send30MinuteReport(ctx context.Context, summaries []models.LocationSummary, at time.Time) error {
	f.reports++
	return nil
}

func (f *fakeNotifier) SendShiftEndAlerts(ctx context.Context, alerts []models.ShiftAlert) error {
	f.shiftEnd = append(f.shiftEnd, alerts)
	return nil
}

func (f *fakeNotifier) SendShiftSummary(ctx context.Context, summaries []models.LocationSummary, shiftStart, shiftEnd string) error {
	f.shiftSummaries++
	return nil
}

func (f *fakeNotifier) SendSystemAlert(ctx context.Context, severity, message, details string) error {
	f.systemAlerts = append(f.systemAlerts, severity+": "+message)
	return nil
}

type published struct {
	key   []byte
	value []byte
}

type fakeProducer struct {
	msgs []published
	err  error
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{key: key, value: value})
	return nil
}

type fakeLimiter struct {
	deny  map[string]bool
	calls []string
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	f.calls = append(f.calls, key)
	if f.deny[key] {
		return false, limit + 1, nil
	}
	return true, 1, nil
}

func testCategories() []downtime.Category {
	return []downtime.Category{
		{Name: "20-60", Min: 20, Max: 60},
		{Name: "60-120", Min: 60, Max: 120},
		{Name: "120-780", Min: 120, Max: 780},
	}
}

func newTestMonitor(src ScanSource, n Notifier) (*Monitor, *downtime.Analyzer) {
	a := downtime.NewAnalyzer(testCategories(), 780*time.Second)
	m := New(a, src, n)
	return m, a
}

func TestMonitor_CyclePublishesAndAlerts(t *testing.T) {
	base := time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC)
	src := &fakeSource{batches: [][]models.ScanEvent{{
		{Location: "GA1", TrackingID: "T1", Status: "INDUCTED", Timestamp: base},
		{Location: "GA1", TrackingID: "T2", Status: "INDUCTED", Timestamp: base.Add(300 * time.Second)},
	}}}
	notifier := &fakeNotifier{}
	producer := &fakeProducer{}

	m, _ := newTestMonitor(src, notifier)
	m.WithProducer(producer, "induct.scans_analyzed")

	m.tick(context.Background())

	require.Len(t, producer.msgs, 1)
	var msg messages.ScansAnalyzed
	require.NoError(t, json.Unmarshal(producer.msgs[0].value, &msg))
	require.Len(t, msg.Scans, 2)
	require.Len(t, msg.Episodes, 1)
	require.Equal(t, 300, msg.Episodes[0].DowntimeSeconds)
	require.Equal(t, "120-780", msg.Episodes[0].Category)

	// 300s >= порога 120s — алерт ушёл
	require.Len(t, notifier.downtimeAlerts, 1)
	require.Equal(t, "GA1", notifier.downtimeAlerts[0].Location)

	st := m.Stats()
	require.Equal(t, int64(1), st.TotalScrapes)
	require.Equal(t, int64(2), st.TotalScans)
	require.Equal(t, int64(1), st.TotalEpisodes)
	require.Equal(t, int64(1), st.TotalAlerts)
	require.Zero(t, st.TotalErrors)
}

func TestMonitor_ShortEpisodeNotAlerted(t *testing.T) {
	base := time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC)
	src := &fakeSource{batches: [][]models.ScanEvent{{
		{Location: "GA1", TrackingID: "T1", Status: "INDUCTED", Timestamp: base},
		{Location: "GA1", TrackingID: "T2", Status: "INDUCTED", Timestamp: base.Add(45 * time.Second)},
	}}}
	notifier := &fakeNotifier{}

	m, _ := newTestMonitor(src, notifier)
	m.tick(context.Background())

	require.Empty(t, notifier.downtimeAlerts)
	require.Equal(t, int64(1), m.Stats().TotalEpisodes)
}

func TestMonitor_AlertCooldownSuppresses(t *testing.T) {
	base := time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC)
	src := &fakeSource{batches: [][]models.ScanEvent{{
		{Location: "GA1", TrackingID: "T1", Status: "INDUCTED", Timestamp: base},
		{Location: "GA1", TrackingID: "T2", Status: "INDUCTED", Timestamp: base.Add(200 * time.Second)},
	}}}
	notifier := &fakeNotifier{}
	rl := &fakeLimiter{deny: map[string]bool{"alert:downtime:GA1": true}}

	m, _ := newTestMonitor(src, notifier)
	m.WithRateLimiter(rl)
	m.tick(context.Background())

	require.Empty(t, notifier.downtimeAlerts)
	require.Contains(t, rl.calls, "alert:downtime:GA1")
}

func TestMonitor_ConsecutiveErrorEscalation(t *testing.T) {
	src := &fakeSource{err: errors.New("mercury down")}
	notifier := &fakeNotifier{}

	m, _ := newTestMonitor(src, notifier)
	m.WithSettings(0, 0, 0, 0, 0, 0, 3)

	ctx := context.Background()
	m.tick(ctx)
	m.tick(ctx)
	require.Empty(t, notifier.systemAlerts)

	m.tick(ctx)
	require.Len(t, notifier.systemAlerts, 1)
	require.Contains(t, notifier.systemAlerts[0], "error: Scraping System Failure")

	// четвёртая ошибка не дублирует алерт
	m.tick(ctx)
	require.Len(t, notifier.systemAlerts, 1)

	require.Equal(t, int64(4), m.Stats().ConsecutiveErrors)
	require.Contains(t, m.Stats().LastError, "mercury down")
}

func TestMonitor_ErrorCounterResetsOnSuccess(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	notifier := &fakeNotifier{}

	m, _ := newTestMonitor(src, notifier)
	ctx := context.Background()
	m.tick(ctx)
	require.Equal(t, int64(1), m.Stats().ConsecutiveErrors)

	src.err = nil
	m.tick(ctx)
	require.Zero(t, m.Stats().ConsecutiveErrors)
}

func TestMonitor_ShiftEndAlertWithCooldown(t *testing.T) {
	base := time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC)
	// 700 + 700 + 750 = 2150 > 2100
	scans := []models.ScanEvent{
		{Location: "GA1", TrackingID: "T1", Status: "INDUCTED", Timestamp: base},
		{Location: "GA1", TrackingID: "T2", Status: "INDUCTED", Timestamp: base.Add(700 * time.Second)},
		{Location: "GA1", TrackingID: "T3", Status: "INDUCTED", Timestamp: base.Add(1400 * time.Second)},
		{Location: "GA1", TrackingID: "T4", Status: "INDUCTED", Timestamp: base.Add(2150 * time.Second)},
	}
	src := &fakeSource{batches: [][]models.ScanEvent{scans, {}}}
	notifier := &fakeNotifier{}
	rl := &fakeLimiter{deny: map[string]bool{}}

	m, _ := newTestMonitor(src, notifier)
	m.WithRateLimiter(rl)
	m.WithSettings(0, 0, 0, 2100, 0, 0, 0)

	ctx := context.Background()
	m.tick(ctx)
	require.Len(t, notifier.shiftEnd, 1)
	require.Equal(t, "GA1", notifier.shiftEnd[0][0].Location)
	require.Equal(t, 2150, notifier.shiftEnd[0][0].TotalDowntimeSeconds)

	// вторая проверка подавлена cooldown-ом
	rl.deny["alert:shiftend:GA1"] = true
	m.tick(ctx)
	require.Len(t, notifier.shiftEnd, 1)
}

func TestMonitor_CloseShiftSendsSummaryAndResets(t *testing.T) {
	sched, err := NewSchedule("01:20", "08:30", "04:55", "05:30")
	require.NoError(t, err)

	base := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)
	src := &fakeSource{batches: [][]models.ScanEvent{{
		{Location: "GA1", TrackingID: "T1", Status: "INDUCTED", Timestamp: base},
		{Location: "GA1", TrackingID: "T2", Status: "INDUCTED", Timestamp: base.Add(100 * time.Second)},
	}}}
	notifier := &fakeNotifier{}
	producer := &fakeProducer{}

	m, a := newTestMonitor(src, notifier)
	m.WithProducer(producer, "induct.scans_analyzed")
	m.WithSchedule(sched)

	wall := base
	m.now = func() time.Time { return wall }
	m.wasActive = true

	ctx := context.Background()
	m.tick(ctx)
	require.Equal(t, int64(1), m.Stats().TotalEpisodes)

	// смена кончилась
	wall = time.Date(2026, 8, 30, 8, 40, 0, 0, time.UTC)
	m.tick(ctx)

	require.Equal(t, 1, notifier.shiftSummaries)

	// последняя публикация — дневная сводка
	last := producer.msgs[len(producer.msgs)-1]
	require.True(t, strings.HasPrefix(string(last.key), "daily:"))
	var daily messages.DailySummarySaved
	require.NoError(t, json.Unmarshal(last.value, &daily))
	require.Equal(t, "2026-08-30", daily.Date)
	require.Equal(t, 100, daily.Summaries["GA1"].TotalDowntimeSeconds)

	// агрегаты сброшены
	sum, ok := a.Summary("GA1")
	require.True(t, ok)
	require.Zero(t, sum.EpisodeCount)

	// вне смены скрейп не выполняется
	calls := src.calls
	m.tick(ctx)
	require.Equal(t, calls, src.calls)
}

func TestMonitor_PeriodicReportSkippedDuringBreak(t *testing.T) {
	sched, err := NewSchedule("01:20", "08:30", "04:55", "05:30")
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	m, _ := newTestMonitor(&fakeSource{}, notifier)
	m.WithSchedule(sched)

	wall := time.Date(2026, 8, 30, 5, 0, 0, 0, time.UTC) // перерыв
	m.now = func() time.Time { return wall }

	m.sendPeriodicReport(context.Background())
	require.Zero(t, notifier.reports)

	wall = time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
	m.sendPeriodicReport(context.Background())
	require.Equal(t, 1, notifier.reports)
}

func TestMonitor_TriggerNonBlocking(t *testing.T) {
	m, _ := newTestMonitor(&fakeSource{}, &fakeNotifier{})
	m.Trigger()
	m.Trigger() // второй не должен блокировать
	require.NotNil(t, m.Stats().LastTriggerAt)
}

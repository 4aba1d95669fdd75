package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/InductWatch/internal/models"
	"github.com/stretchr/testify/require"
)

type capture struct {
	texts []string
	code  int
}

func newServer(c *capture) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var p struct {
			Text string `json:"text"`
		}
		_ = json.Unmarshal(b, &p)
		c.texts = append(c.texts, p.Text)
		if c.code != 0 {
			w.WriteHeader(c.code)
		}
	}))
}

func TestNotifier_DowntimeAlert_ThresholdGate(t *testing.T) {
	c := &capture{}
	srv := newServer(c)
	defer srv.Close()

	n := New(srv.URL, 120)
	ctx := context.Background()

	// ниже порога — тишина
	require.NoError(t, n.SendDowntimeAlert(ctx, models.DowntimeEpisode{
		Location: "GA1", DowntimeSeconds: 45, Category: "20-60",
	}))
	require.Empty(t, c.texts)

	start := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	require.NoError(t, n.SendDowntimeAlert(ctx, models.DowntimeEpisode{
		Location: "GA1", DowntimeSeconds: 300, Category: "120-780",
		StartStatus: "INDUCTED", EndStatus: "INDUCTED",
		StartTimestamp: start, EndTimestamp: start.Add(300 * time.Second),
	}))
	require.Len(t, c.texts, 1)
	require.Contains(t, c.texts[0], "Significant Downtime - GA1")
	require.Contains(t, c.texts[0], "Duration: 300s (120-780)")
	require.Contains(t, c.texts[0], "10:00:00 - 10:05:00")
}

func TestNotifier_30MinuteReport(t *testing.T) {
	c := &capture{}
	srv := newServer(c)
	defer srv.Close()

	n := New(srv.URL, 120)
	at := time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)

	summaries := []models.LocationSummary{
		{Location: "GA2", EpisodeCount: 2, TotalDowntimeSeconds: 85, CategoryCounts: map[string]int{"20-60": 2}},
		{Location: "GA1", EpisodeCount: 3, TotalDowntimeSeconds: 245, CategoryCounts: map[string]int{"20-60": 2, "60-120": 1}},
		{Location: "GA3", EpisodeCount: 0},
	}
	require.NoError(t, n.Send30MinuteReport(context.Background(), summaries, at))
	require.Len(t, c.texts, 1)

	msg := c.texts[0]
	require.Contains(t, msg, "Induct Downtime Report - 2:30 PM")
	require.Contains(t, msg, "GA1: 3 events (20-60: 2, 60-120: 1) Total: 245s")
	require.Contains(t, msg, "GA2: 2 events (20-60: 2) Total: 85s")
	require.NotContains(t, msg, "GA3")
	require.Contains(t, msg, "Summary: 5 total events, 330s total downtime")
}

func TestNotifier_30MinuteReport_Quiet(t *testing.T) {
	c := &capture{}
	srv := newServer(c)
	defer srv.Close()

	n := New(srv.URL, 120)
	require.NoError(t, n.Send30MinuteReport(context.Background(), nil, time.Now()))
	require.Len(t, c.texts, 1)
	require.Contains(t, c.texts[0], "No significant downtime events")
}

func TestNotifier_ShiftEndAlerts(t *testing.T) {
	c := &capture{}
	srv := newServer(c)
	defer srv.Close()

	n := New(srv.URL, 120)
	alerts := []models.ShiftAlert{
		{Location: "GA5", TotalDowntimeSeconds: 2245, Threshold: 2100, EpisodeCount: 15},
		{Location: "GA7", TotalDowntimeSeconds: 2500, Threshold: 2100, EpisodeCount: 9},
	}
	require.NoError(t, n.SendShiftEndAlerts(context.Background(), alerts))
	require.Len(t, c.texts, 2)
	require.Contains(t, c.texts[0], "GA5 Excessive Downtime")
	require.Contains(t, c.texts[0], "exceeded 2100 seconds")
	require.Contains(t, c.texts[0], "Current: 2245s (15 events)")
}

func TestNotifier_ShiftSummary(t *testing.T) {
	c := &capture{}
	srv := newServer(c)
	defer srv.Close()

	n := New(srv.URL, 120)
	summaries := []models.LocationSummary{
		{Location: "GA1", EpisodeCount: 2, TotalDowntimeSeconds: 100, AverageDowntimeSecs: 50},
		{Location: "GA2", EpisodeCount: 4, TotalDowntimeSeconds: 600, AverageDowntimeSecs: 150,
			CategoryCounts: map[string]int{"120-780": 3, "60-120": 1}},
	}
	require.NoError(t, n.SendShiftSummary(context.Background(), summaries, "07:00", "17:30"))
	require.Len(t, c.texts, 1)

	msg := c.texts[0]
	require.Contains(t, msg, "Shift Summary Report (07:00 - 17:30)")
	require.Contains(t, msg, "Total downtime events: 6")
	require.Contains(t, msg, "Total downtime: 700s (11.7 minutes)")
	require.Contains(t, msg, "Active locations: 2/2")
	// худшая станция раньше
	require.Less(t, strings.Index(msg, "GA2:"), strings.Index(msg, "GA1:"))
	// разбивка только для станций с 3+ эпизодами
	require.Contains(t, msg, "└ 120-780: 3, 60-120: 1")
}

func TestNotifier_SystemAlert_And_Errors(t *testing.T) {
	c := &capture{}
	srv := newServer(c)
	defer srv.Close()

	n := New(srv.URL, 120)
	require.NoError(t, n.SendSystemAlert(context.Background(), "error", "Scraper failing", "5 consecutive errors"))
	require.Contains(t, c.texts[0], "❌ System Alert - Scraper failing")

	c.code = http.StatusForbidden
	err := n.SendSystemAlert(context.Background(), "info", "x", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}

package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/BearBump/InductWatch/internal/models"
	"github.com/pkg/errors"
)

// Notifier шлёт сообщения в Slack workflow webhook.
// Workflow builder принимает только поле "text".
type Notifier struct {
	webhookURL            string
	alertThresholdSeconds int
	httpc                 *http.Client
}

func New(webhookURL string, alertThresholdSeconds int) *Notifier {
	if alertThresholdSeconds <= 0 {
		alertThresholdSeconds = 120
	}
	return &Notifier{
		webhookURL:            webhookURL,
		alertThresholdSeconds: alertThresholdSeconds,
		httpc:                 &http.Client{Timeout: 10 * time.Second},
	}
}

type payload struct {
	Text string `json:"text"`
}

func (n *Notifier) send(ctx context.Context, title, body string) error {
	text := title
	if body != "" {
		text = title + "\n\n" + body
	}

	b, err := json.Marshal(payload{Text: text})
	if err != nil {
		return errors.Wrap(err, "marshal slack payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "build slack request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "post to slack")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("slack webhook status %d", resp.StatusCode)
	}
	return nil
}

// SendDowntimeAlert шлёт немедленный алерт по одному эпизоду.
// Короткие эпизоды (ниже порога) не алертятся вовсе.
func (n *Notifier) SendDowntimeAlert(ctx context.Context, ep models.DowntimeEpisode) error {
	if ep.DowntimeSeconds < n.alertThresholdSeconds {
		return nil
	}

	title := fmt.Sprintf("⏰ Significant Downtime - %s", ep.Location)
	body := fmt.Sprintf(
		"Location: %s\nDuration: %ds (%s)\nFrom: %s → %s\nTime: %s - %s",
		ep.Location,
		ep.DowntimeSeconds, ep.Category,
		ep.StartStatus, ep.EndStatus,
		ep.StartTimestamp.Format("15:04:05"), ep.EndTimestamp.Format("15:04:05"),
	)
	return n.send(ctx, title, body)
}

// Send30MinuteReport шлёт периодический отчёт по всем станциям.
func (n *Notifier) Send30MinuteReport(ctx context.Context, summaries []models.LocationSummary, at time.Time) error {
	title := fmt.Sprintf("📊 Induct Downtime Report - %s", at.Format("3:04 PM"))

	sorted := make([]models.LocationSummary, len(summaries))
	copy(sorted, summaries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Location < sorted[j].Location })

	var lines []string
	totalEvents := 0
	totalDowntime := 0
	for _, sum := range sorted {
		if sum.EpisodeCount == 0 {
			continue
		}
		catStr := formatCategoryCounts(sum.CategoryCounts)
		if catStr != "" {
			catStr = "(" + catStr + ") "
		}
		lines = append(lines, fmt.Sprintf("%s: %d events %sTotal: %ds",
			sum.Location, sum.EpisodeCount, catStr, sum.TotalDowntimeSeconds))
		totalEvents += sum.EpisodeCount
		totalDowntime += sum.TotalDowntimeSeconds
	}

	var body string
	if len(lines) == 0 {
		body = "✅ No significant downtime events in the last 30 minutes"
	} else {
		body = strings.Join(lines, "\n") +
			fmt.Sprintf("\n\n📈 Summary: %d total events, %ds total downtime", totalEvents, totalDowntime)
	}
	return n.send(ctx, title, body)
}

// SendShiftEndAlerts шлёт по отдельному сообщению на каждую станцию,
// превысившую сменный порог.
func (n *Notifier) SendShiftEndAlerts(ctx context.Context, alerts []models.ShiftAlert) error {
	for _, a := range alerts {
		title := fmt.Sprintf("🚨 Shift End Alert - %s Excessive Downtime", a.Location)
		body := fmt.Sprintf(
			"%s has exceeded %d seconds of downtime\nCurrent: %ds (%d events)",
			a.Location, a.Threshold, a.TotalDowntimeSeconds, a.EpisodeCount,
		)
		if err := n.send(ctx, title, body); err != nil {
			return err
		}
	}
	return nil
}

// SendShiftSummary шлёт итог смены: станции от худшей к лучшей,
// разбивка по категориям для станций с 3+ эпизодами.
func (n *Notifier) SendShiftSummary(ctx context.Context, summaries []models.LocationSummary, shiftStart, shiftEnd string) error {
	title := fmt.Sprintf("📋 Shift Summary Report (%s - %s)", shiftStart, shiftEnd)

	totalEvents := 0
	totalDowntime := 0
	activeLocations := 0
	for _, sum := range summaries {
		totalEvents += sum.EpisodeCount
		totalDowntime += sum.TotalDowntimeSeconds
		if sum.EpisodeCount > 0 {
			activeLocations++
		}
	}

	avgPerLocation := 0
	if len(summaries) > 0 {
		avgPerLocation = totalDowntime / len(summaries)
	}

	lines := []string{
		"🎯 Shift Overview:",
		fmt.Sprintf("  • Total downtime events: %d", totalEvents),
		fmt.Sprintf("  • Total downtime: %ds (%.1f minutes)", totalDowntime, float64(totalDowntime)/60),
		fmt.Sprintf("  • Active locations: %d/%d", activeLocations, len(summaries)),
		fmt.Sprintf("  • Average per location: %ds", avgPerLocation),
		"",
		"📊 Location Breakdown:",
	}

	sorted := make([]models.LocationSummary, len(summaries))
	copy(sorted, summaries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TotalDowntimeSeconds > sorted[j].TotalDowntimeSeconds
	})

	for _, sum := range sorted {
		if sum.EpisodeCount == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("  • %s: %ds (%d events, avg: %ds)",
			sum.Location, sum.TotalDowntimeSeconds, sum.EpisodeCount, sum.AverageDowntimeSecs))
		if sum.EpisodeCount >= 3 {
			if cats := formatCategoryCounts(sum.CategoryCounts); cats != "" {
				lines = append(lines, "    └ "+cats)
			}
		}
	}

	return n.send(ctx, title, strings.Join(lines, "\n"))
}

// SendSystemAlert шлёт служебное сообщение (ошибки скрейпера и т.п.).
func (n *Notifier) SendSystemAlert(ctx context.Context, severity, message, details string) error {
	icons := map[string]string{
		"error":   "❌",
		"warning": "⚠️",
		"info":    "ℹ️",
		"success": "✅",
	}
	icon, ok := icons[strings.ToLower(severity)]
	if !ok {
		icon = "🔔"
	}
	return n.send(ctx, fmt.Sprintf("%s System Alert - %s", icon, message), details)
}

func (n *Notifier) TestConnection(ctx context.Context) error {
	return n.send(ctx,
		"🧪 Test notification from Induct Downtime Monitor",
		"Connection test at "+time.Now().Format("2006-01-02 15:04:05"))
}

func formatCategoryCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		if counts[k] > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}

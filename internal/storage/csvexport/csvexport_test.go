package csvexport

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BearBump/InductWatch/internal/models"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestExporter_AppendScans(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	require.NoError(t, err)

	ts := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	scans := []models.ScanEvent{
		{Location: "GA1", TrackingID: "TBA001", Status: models.ScanStatusInducted, Timestamp: ts, ScrapedAt: ts},
		{Location: "GA2", TrackingID: "TBA002", Status: models.ScanStatusInducted, Timestamp: ts.Add(time.Minute), ScrapedAt: ts},
	}
	require.NoError(t, e.AppendScans(scans))
	require.NoError(t, e.AppendScans(scans[:1])) // append, заголовок не дублируется

	rows := readCSV(t, filepath.Join(dir, "scans_2026-08-30.csv"))
	require.Len(t, rows, 4) // header + 3
	require.Equal(t, []string{"timestamp", "location", "tracking_id", "status", "raw_timestamp", "scraped_at"}, rows[0])
	require.Equal(t, "TBA001", rows[1][2])
	require.Equal(t, "GA2", rows[2][1])
}

func TestExporter_AppendEpisodes_SplitsByDay(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	require.NoError(t, err)

	d1 := time.Date(2026, 8, 29, 23, 50, 0, 0, time.UTC)
	d2 := time.Date(2026, 8, 30, 0, 10, 0, 0, time.UTC)
	eps := []models.DowntimeEpisode{
		{Location: "GA1", DowntimeSeconds: 45, Category: "20-60", StartTimestamp: d1.Add(-45 * time.Second), EndTimestamp: d1, DetectedAt: d1},
		{Location: "GA1", DowntimeSeconds: 90, Category: "60-120", StartTimestamp: d2.Add(-90 * time.Second), EndTimestamp: d2, DetectedAt: d2},
	}
	require.NoError(t, e.AppendEpisodes(eps))

	rows := readCSV(t, filepath.Join(dir, "episodes_2026-08-29.csv"))
	require.Len(t, rows, 2)
	require.Equal(t, "45", rows[1][1])

	rows = readCSV(t, filepath.Join(dir, "episodes_2026-08-30.csv"))
	require.Len(t, rows, 2)
	require.Equal(t, "60-120", rows[1][2])
}

func TestExporter_WriteShiftSummary_Overwrites(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	require.NoError(t, err)

	day := time.Date(2026, 8, 30, 18, 30, 0, 0, time.UTC)
	require.NoError(t, e.WriteShiftSummary(day, []models.LocationSummary{
		{Location: "GA1", TotalDowntimeSeconds: 100, EpisodeCount: 1, AverageDowntimeSecs: 100},
	}))
	require.NoError(t, e.WriteShiftSummary(day, []models.LocationSummary{
		{Location: "GA1", TotalDowntimeSeconds: 300, EpisodeCount: 3, AverageDowntimeSecs: 100,
			CategoryCounts: map[string]int{"20-60": 2, "60-120": 1}},
	}))

	rows := readCSV(t, filepath.Join(dir, "shift_summary_2026-08-30.csv"))
	require.Len(t, rows, 2)
	require.Equal(t, "300", rows[1][2])
	require.Equal(t, "20-60=2;60-120=1", rows[1][5])
}

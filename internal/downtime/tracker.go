package downtime

import (
	"time"

	"github.com/BearBump/InductWatch/internal/models"
)

type lastScan struct {
	Timestamp  time.Time
	TrackingID string
	Status     string
}

// locationTracker держит состояние одной станции: последний принятый скан и
// накопленную статистику с начала смены. Инвариант: totalDowntimeSeconds
// всегда равен сумме длительностей episodes.
type locationTracker struct {
	lastScan             *lastScan
	episodes             []*models.DowntimeEpisode
	totalDowntimeSeconds int
	categoryCounts       map[string]int
}

func newLocationTracker() *locationTracker {
	return &locationTracker{
		categoryCounts: map[string]int{},
	}
}

func (t *locationTracker) recordScan(scan models.ScanEvent) {
	t.lastScan = &lastScan{
		Timestamp:  scan.Timestamp,
		TrackingID: scan.TrackingID,
		Status:     scan.Status,
	}
}

func (t *locationTracker) addEpisode(e *models.DowntimeEpisode) {
	t.episodes = append(t.episodes, e)
	t.totalDowntimeSeconds += e.DowntimeSeconds
	t.categoryCounts[e.Category]++
}

// reset очищает агрегаты, сам трекер остаётся в карте станций.
func (t *locationTracker) reset() {
	t.lastScan = nil
	t.episodes = nil
	t.totalDowntimeSeconds = 0
	t.categoryCounts = map[string]int{}
}

func (t *locationTracker) lastScanAt() *time.Time {
	if t.lastScan == nil {
		return nil
	}
	ts := t.lastScan.Timestamp
	return &ts
}

func (t *locationTracker) summary(location string) models.LocationSummary {
	avg := 0
	if n := len(t.episodes); n > 0 {
		avg = t.totalDowntimeSeconds / n
	}

	counts := make(map[string]int, len(t.categoryCounts))
	for k, v := range t.categoryCounts {
		counts[k] = v
	}

	return models.LocationSummary{
		Location:             location,
		TotalDowntimeSeconds: t.totalDowntimeSeconds,
		EpisodeCount:         len(t.episodes),
		CategoryCounts:       counts,
		AverageDowntimeSecs:  avg,
		LastScanAt:           t.lastScanAt(),
	}
}

package downtime

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/InductWatch/internal/models"
)

// Простои короче этого порога считаем нормальным потоком, а не остановкой.
const minimumTracked = 20 * time.Second

const defaultBreakThreshold = 780 * time.Second

// Analyzer converts batches of scan events into classified downtime episodes
// and keeps per-location aggregates until the next shift reset.
//
// The monitor loop is single-threaded, but the diagnostics HTTP server reads
// summaries concurrently, so all state is guarded by one mutex. Trackers are
// independent of each other (no cross-location invariant).
type Analyzer struct {
	mu             sync.Mutex
	categorizer    *Categorizer
	breakThreshold time.Duration
	trackers       map[string]*locationTracker

	now func() time.Time
}

func NewAnalyzer(categories []Category, breakThreshold time.Duration) *Analyzer {
	if breakThreshold <= 0 {
		breakThreshold = defaultBreakThreshold
	}
	return &Analyzer{
		categorizer:    NewCategorizer(categories),
		breakThreshold: breakThreshold,
		trackers:       map[string]*locationTracker{},
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// ProcessScans sorts the batch by timestamp (the scrape does not guarantee
// order) and routes every event to its location tracker. Returns the newly
// detected episodes in processing order.
func (a *Analyzer) ProcessScans(scans []models.ScanEvent) []*models.DowntimeEpisode {
	a.mu.Lock()
	defer a.mu.Unlock()

	sorted := make([]models.ScanEvent, len(scans))
	copy(sorted, scans)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var episodes []*models.DowntimeEpisode
	for _, scan := range sorted {
		if e := a.processSingle(scan); e != nil {
			episodes = append(episodes, e)
		}
	}
	return episodes
}

func (a *Analyzer) processSingle(scan models.ScanEvent) *models.DowntimeEpisode {
	// Битые записи пропускаем поштучно, батч продолжается.
	if scan.Location == "" || scan.Timestamp.IsZero() {
		slog.Debug("skipping malformed scan", "location", scan.Location, "tracking_id", scan.TrackingID)
		return nil
	}

	tracker := a.getOrCreateTracker(scan.Location)

	if tracker.lastScan == nil {
		tracker.recordScan(scan)
		slog.Debug("first scan recorded", "location", scan.Location)
		return nil
	}

	gap := scan.Timestamp.Sub(tracker.lastScan.Timestamp)

	// Скан старее уже учтённого (догнал из прошлого батча): игнорируем,
	// не трогая lastScan, чтобы не испортить хронологию станции.
	if gap <= 0 {
		slog.Debug("ignoring out-of-order scan", "location", scan.Location, "gap", gap)
		return nil
	}

	if gap > a.breakThreshold {
		slog.Debug("ignoring gap above break threshold", "location", scan.Location, "gap", gap)
		tracker.recordScan(scan)
		return nil
	}

	if gap < minimumTracked {
		tracker.recordScan(scan)
		return nil
	}

	bucket := a.categorizer.Categorize(gap.Seconds())
	episode := &models.DowntimeEpisode{
		Location:        scan.Location,
		DowntimeSeconds: int(gap.Seconds()),
		Category:        bucket.Label(),
		StartTimestamp:  tracker.lastScan.Timestamp,
		EndTimestamp:    scan.Timestamp,
		StartTrackingID: tracker.lastScan.TrackingID,
		EndTrackingID:   scan.TrackingID,
		StartStatus:     tracker.lastScan.Status,
		EndStatus:       scan.Status,
		DetectedAt:      a.now(),
	}

	tracker.addEpisode(episode)
	tracker.recordScan(scan)

	slog.Info("downtime detected",
		"location", episode.Location,
		"seconds", episode.DowntimeSeconds,
		"category", episode.Category,
	)
	return episode
}

func (a *Analyzer) getOrCreateTracker(location string) *locationTracker {
	tracker, ok := a.trackers[location]
	if !ok {
		tracker = newLocationTracker()
		a.trackers[location] = tracker
	}
	return tracker
}

// RecentEpisodes returns episodes detected within the window, newest first.
func (a *Analyzer) RecentEpisodes(window time.Duration) []*models.DowntimeEpisode {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-window)
	var recent []*models.DowntimeEpisode
	for _, tracker := range a.trackers {
		for _, e := range tracker.episodes {
			if !e.DetectedAt.Before(cutoff) {
				recent = append(recent, e)
			}
		}
	}

	sort.Slice(recent, func(i, j int) bool {
		return recent[i].DetectedAt.After(recent[j].DetectedAt)
	})
	return recent
}

// CheckShiftEnd returns an alert for every location whose accumulated
// downtime exceeds thresholdSeconds. Pure read.
func (a *Analyzer) CheckShiftEnd(thresholdSeconds int) []models.ShiftAlert {
	a.mu.Lock()
	defer a.mu.Unlock()

	var alerts []models.ShiftAlert
	for location, tracker := range a.trackers {
		if tracker.totalDowntimeSeconds > thresholdSeconds {
			alerts = append(alerts, models.ShiftAlert{
				Location:             location,
				TotalDowntimeSeconds: tracker.totalDowntimeSeconds,
				Threshold:            thresholdSeconds,
				EpisodeCount:         len(tracker.episodes),
				LastScanAt:           tracker.lastScanAt(),
			})
		}
	}

	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Location < alerts[j].Location })
	return alerts
}

// Summary returns the running summary for one location, false if the
// location has never been seen.
func (a *Analyzer) Summary(location string) (models.LocationSummary, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tracker, ok := a.trackers[location]
	if !ok {
		return models.LocationSummary{}, false
	}
	return tracker.summary(location), true
}

func (a *Analyzer) LocationSummaries() map[string]models.LocationSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	summaries := make(map[string]models.LocationSummary, len(a.trackers))
	for location, tracker := range a.trackers {
		summaries[location] = tracker.summary(location)
	}
	return summaries
}

func (a *Analyzer) Statistics() models.Statistics {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := models.Statistics{CategoryDistribution: map[string]int{}}
	for _, tracker := range a.trackers {
		st.TotalEpisodes += len(tracker.episodes)
		st.TotalDowntimeSeconds += tracker.totalDowntimeSeconds
		for category, count := range tracker.categoryCounts {
			st.CategoryDistribution[category] += count
		}
		if tracker.lastScan != nil {
			st.ActiveLocations++
		}
	}
	if st.TotalEpisodes > 0 {
		st.AverageDowntimeSecs = st.TotalDowntimeSeconds / st.TotalEpisodes
	}
	return st
}

// Reset clears all per-location state at a shift boundary. The set of known
// locations is preserved: a later scan does not need to re-declare a station.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	slog.Info("resetting shift data", "locations", len(a.trackers))
	for _, tracker := range a.trackers {
		tracker.reset()
	}
}

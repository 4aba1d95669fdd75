package models

import "time"

// Статусы сканов, которые считаем индукцией (можно расширять через конфиг).
const (
	ScanStatusInducted   = "INDUCTED"
	ScanStatusInduct     = "INDUCT"
	ScanStatusStowBuffer = "STOW_BUFFER"
	ScanStatusAtStation  = "AT_STATION"
)

// ScanEvent is one observed package scan at an induct station.
// Timestamp is meaningful only within a single location's sequence.
type ScanEvent struct {
	Location     string
	TrackingID   string
	Status       string
	Timestamp    time.Time
	RawTimestamp string
	ScrapedAt    time.Time
}

// DowntimeEpisode is one detected gap between two consecutive scans at one
// location. Immutable once created.
type DowntimeEpisode struct {
	ID              uint64
	Location        string
	DowntimeSeconds int
	Category        string
	StartTimestamp  time.Time
	EndTimestamp    time.Time
	StartTrackingID string
	EndTrackingID   string
	StartStatus     string
	EndStatus       string
	DetectedAt      time.Time
}

// LocationSummary — сводка по одной станции с момента начала смены.
type LocationSummary struct {
	Location             string
	TotalDowntimeSeconds int
	EpisodeCount         int
	CategoryCounts       map[string]int
	AverageDowntimeSecs  int
	LastScanAt           *time.Time
}

// ShiftAlert is emitted when a location's accumulated downtime exceeds the
// shift-end threshold.
type ShiftAlert struct {
	Location             string
	TotalDowntimeSeconds int
	Threshold            int
	EpisodeCount         int
	LastScanAt           *time.Time
}

// Statistics is the global rollup across all locations.
type Statistics struct {
	TotalEpisodes        int
	TotalDowntimeSeconds int
	AverageDowntimeSecs  int
	CategoryDistribution map[string]int
	ActiveLocations      int
}

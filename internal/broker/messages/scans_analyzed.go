package messages

import "time"

// ScansAnalyzed — результат одного цикла опроса: сырые сканы плюс
// обнаруженные эпизоды простоя. Публикуется монитором, применяется induct-api.
type ScansAnalyzed struct {
	ScrapedAt time.Time `json:"scraped_at"`

	Scans    []ScanRecord     `json:"scans,omitempty"`
	Episodes []DowntimeRecord `json:"episodes,omitempty"`
}

type ScanRecord struct {
	Location     string    `json:"location"`
	TrackingID   string    `json:"tracking_id"`
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	RawTimestamp string    `json:"raw_timestamp,omitempty"`
}

type DowntimeRecord struct {
	Location        string    `json:"location"`
	DowntimeSeconds int       `json:"downtime_seconds"`
	Category        string    `json:"category"`
	StartTimestamp  time.Time `json:"start_timestamp"`
	EndTimestamp    time.Time `json:"end_timestamp"`
	StartTrackingID string    `json:"start_tracking_id"`
	EndTrackingID   string    `json:"end_tracking_id"`
	StartStatus     string    `json:"start_status"`
	EndStatus       string    `json:"end_status"`
	DetectedAt      time.Time `json:"detected_at"`
}

// DailySummarySaved публикуется после закрытия смены, чтобы api сохранил
// дневную сводку.
type DailySummarySaved struct {
	Date      string                     `json:"date"`
	Summaries map[string]LocationSummary `json:"summaries"`
}

type LocationSummary struct {
	TotalDowntimeSeconds int            `json:"total_downtime_seconds"`
	EpisodeCount         int            `json:"episode_count"`
	CategoryCounts       map[string]int `json:"category_counts,omitempty"`
	AverageDowntimeSecs  int            `json:"average_downtime_seconds"`
}

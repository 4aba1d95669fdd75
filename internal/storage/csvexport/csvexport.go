package csvexport

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/BearBump/InductWatch/internal/models"
	"github.com/pkg/errors"
)

// Exporter пишет сканы и эпизоды в дневные CSV-файлы. Это лёгкая
// альтернатива kafka+postgres для одиночного запуска на ноутбуке оператора.
type Exporter struct {
	mu  sync.Mutex
	dir string
}

func New(dir string) (*Exporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create export dir")
	}
	return &Exporter{dir: dir}, nil
}

var scanHeader = []string{"timestamp", "location", "tracking_id", "status", "raw_timestamp", "scraped_at"}

func (e *Exporter) AppendScans(scans []models.ScanEvent) error {
	if len(scans) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	byDay := map[string][]models.ScanEvent{}
	for _, sc := range scans {
		day := sc.Timestamp.UTC().Format("2006-01-02")
		byDay[day] = append(byDay[day], sc)
	}

	for day, batch := range byDay {
		rows := make([][]string, 0, len(batch))
		for _, sc := range batch {
			rows = append(rows, []string{
				sc.Timestamp.UTC().Format(time.RFC3339),
				sc.Location,
				sc.TrackingID,
				sc.Status,
				sc.RawTimestamp,
				sc.ScrapedAt.UTC().Format(time.RFC3339),
			})
		}
		if err := e.appendRows("scans_"+day+".csv", scanHeader, rows); err != nil {
			return err
		}
	}
	return nil
}

var episodeHeader = []string{
	"location", "downtime_seconds", "category",
	"start_timestamp", "end_timestamp",
	"start_tracking_id", "end_tracking_id",
	"start_status", "end_status",
	"detected_at",
}

func (e *Exporter) AppendEpisodes(episodes []models.DowntimeEpisode) error {
	if len(episodes) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	byDay := map[string][][]string{}
	for _, ep := range episodes {
		day := ep.EndTimestamp.UTC().Format("2006-01-02")
		byDay[day] = append(byDay[day], []string{
			ep.Location,
			strconv.Itoa(ep.DowntimeSeconds),
			ep.Category,
			ep.StartTimestamp.UTC().Format(time.RFC3339),
			ep.EndTimestamp.UTC().Format(time.RFC3339),
			ep.StartTrackingID,
			ep.EndTrackingID,
			ep.StartStatus,
			ep.EndStatus,
			ep.DetectedAt.UTC().Format(time.RFC3339),
		})
	}

	for day, rows := range byDay {
		if err := e.appendRows("episodes_"+day+".csv", episodeHeader, rows); err != nil {
			return err
		}
	}
	return nil
}

var summaryHeader = []string{"date", "location", "total_downtime_seconds", "episode_count", "average_downtime_seconds", "category_counts"}

// WriteShiftSummary перезаписывает файл сводки целиком: итог смены — один на день.
func (e *Exporter) WriteShiftSummary(date time.Time, summaries []models.LocationSummary) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	day := date.UTC().Format("2006-01-02")
	path := filepath.Join(e.dir, "shift_summary_"+day+".csv")

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create summary file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(summaryHeader); err != nil {
		return errors.Wrap(err, "write summary header")
	}
	for _, sum := range summaries {
		row := []string{
			day,
			sum.Location,
			strconv.Itoa(sum.TotalDowntimeSeconds),
			strconv.Itoa(sum.EpisodeCount),
			strconv.Itoa(sum.AverageDowntimeSecs),
			formatCounts(sum.CategoryCounts),
		}
		if err := w.Write(row); err != nil {
			return errors.Wrap(err, "write summary row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "flush summary")
	}
	return nil
}

func (e *Exporter) appendRows(name string, header []string, rows [][]string) error {
	path := filepath.Join(e.dir, name)

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open csv")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(header); err != nil {
			return errors.Wrap(err, "write header")
		}
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return errors.Wrap(err, "write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "flush csv")
	}
	return nil
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ";"
		}
		out += fmt.Sprintf("%s=%d", k, counts[k])
	}
	return out
}

package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/BearBump/InductWatch/internal/models"
)

// FakeSource — заглушка источника сканов для офлайн-запуска без доступа к
// Mercury. Генерирует детерминированный поток по (location, минута): часть
// станций получает заметные паузы между сканами.
type FakeSource struct {
	locations []string
	now       func() time.Time
}

func New(locations []string) *FakeSource {
	if len(locations) == 0 {
		locations = []string{"GA1", "GA2", "GA3"}
	}
	return &FakeSource{
		locations: locations,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (f *FakeSource) ScrapeWithRetry(ctx context.Context) ([]models.ScanEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := f.now()
	minute := now.Truncate(time.Minute)

	var out []models.ScanEvent
	for _, loc := range f.locations {
		h := fnv.New32a()
		_, _ = h.Write([]byte(loc))
		_, _ = h.Write([]byte("|"))
		_, _ = h.Write([]byte(minute.Format(time.RFC3339)))
		v := h.Sum32()

		// каждая пятая комбинация — пауза вместо скана
		if v%5 == 0 {
			continue
		}

		gap := time.Duration(v%120) * time.Second
		ts := minute.Add(-gap)
		out = append(out, models.ScanEvent{
			Location:     loc,
			TrackingID:   fmt.Sprintf("TBA%09d", v),
			Status:       models.ScanStatusInducted,
			Timestamp:    ts,
			RawTimestamp: ts.Format(time.RFC3339),
			ScrapedAt:    now,
		})
	}
	return out, nil
}

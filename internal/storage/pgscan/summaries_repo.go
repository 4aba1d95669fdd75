package pgscan

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/InductWatch/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// UpsertDailySummaries пишет итог смены по каждой станции. Повторная запись
// за тот же день перетирает предыдущую (воркер шлёт итог один раз, но
// переотправка после рестарта не должна падать).
func (s *Storage) UpsertDailySummaries(ctx context.Context, date time.Time, summaries []models.LocationSummary) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	day := date.UTC().Truncate(24 * time.Hour)
	for _, sum := range summaries {
		var counts any
		if len(sum.CategoryCounts) > 0 {
			counts = sum.CategoryCounts
		}

		_, err := tx.Exec(ctx, `
INSERT INTO daily_summaries (
  summary_date, location, total_downtime_seconds, episode_count,
  category_counts, average_downtime_seconds, created_at
)
VALUES ($1,$2,$3,$4,$5,$6, now())
ON CONFLICT (summary_date, location)
DO UPDATE SET
  total_downtime_seconds = EXCLUDED.total_downtime_seconds,
  episode_count = EXCLUDED.episode_count,
  category_counts = EXCLUDED.category_counts,
  average_downtime_seconds = EXCLUDED.average_downtime_seconds
`, day, sum.Location, sum.TotalDowntimeSeconds, sum.EpisodeCount, counts, sum.AverageDowntimeSecs)
		if err != nil {
			return errors.Wrap(err, "upsert daily summary")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func (s *Storage) GetDailySummaries(ctx context.Context, date time.Time) ([]models.LocationSummary, error) {
	day := date.UTC().Truncate(24 * time.Hour)

	rows, err := s.db.Query(ctx, `
SELECT
  location, total_downtime_seconds, episode_count, category_counts, average_downtime_seconds
FROM daily_summaries
WHERE summary_date = $1
ORDER BY total_downtime_seconds DESC
`, day)
	if err != nil {
		return nil, errors.Wrap(err, "select daily summaries")
	}
	defer rows.Close()

	var out []models.LocationSummary
	for rows.Next() {
		var sum models.LocationSummary
		var counts any
		if err := rows.Scan(
			&sum.Location, &sum.TotalDowntimeSeconds, &sum.EpisodeCount, &counts, &sum.AverageDowntimeSecs,
		); err != nil {
			return nil, errors.Wrap(err, "scan daily summary")
		}

		if counts != nil {
			b, _ := json.Marshal(counts)
			m := map[string]int{}
			if json.Unmarshal(b, &m) == nil && len(m) > 0 {
				sum.CategoryCounts = m
			}
		}

		out = append(out, sum)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

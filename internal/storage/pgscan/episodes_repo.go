package pgscan

import (
	"context"
	"time"

	"github.com/BearBump/InductWatch/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// InsertEpisodes сохраняет эпизоды простоя. Ключ дедупликации —
// (location, start_timestamp, end_timestamp): повторная доставка сообщения
// не создаёт вторую запись.
func (s *Storage) InsertEpisodes(ctx context.Context, episodes []models.DowntimeEpisode) (int, error) {
	if len(episodes) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted := 0
	for _, ep := range episodes {
		tag, err := tx.Exec(ctx, `
INSERT INTO downtime_episodes (
  location, downtime_seconds, category,
  start_timestamp, end_timestamp,
  start_tracking_id, end_tracking_id,
  start_status, end_status,
  detected_at, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now())
ON CONFLICT (location, start_timestamp, end_timestamp) DO NOTHING
`, ep.Location, ep.DowntimeSeconds, ep.Category,
			ep.StartTimestamp.UTC(), ep.EndTimestamp.UTC(),
			ep.StartTrackingID, ep.EndTrackingID,
			ep.StartStatus, ep.EndStatus,
			ep.DetectedAt.UTC())
		if err != nil {
			return 0, errors.Wrap(err, "insert episode")
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit tx")
	}
	return inserted, nil
}

func (s *Storage) ListRecentEpisodes(ctx context.Context, since time.Time, limit int) ([]models.DowntimeEpisode, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, location, downtime_seconds, category,
  start_timestamp, end_timestamp,
  start_tracking_id, end_tracking_id,
  start_status, end_status,
  detected_at
FROM downtime_episodes
WHERE detected_at >= $1
ORDER BY detected_at DESC
LIMIT $2
`, since.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select recent episodes")
	}
	defer rows.Close()

	return scanEpisodes(rows)
}

func (s *Storage) ListEpisodesByLocation(ctx context.Context, location string, limit, offset int) ([]models.DowntimeEpisode, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, location, downtime_seconds, category,
  start_timestamp, end_timestamp,
  start_tracking_id, end_tracking_id,
  start_status, end_status,
  detected_at
FROM downtime_episodes
WHERE location = $1
ORDER BY end_timestamp DESC
LIMIT $2 OFFSET $3
`, location, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select episodes by location")
	}
	defer rows.Close()

	return scanEpisodes(rows)
}

func scanEpisodes(rows pgx.Rows) ([]models.DowntimeEpisode, error) {
	var out []models.DowntimeEpisode
	for rows.Next() {
		var ep models.DowntimeEpisode
		if err := rows.Scan(
			&ep.ID, &ep.Location, &ep.DowntimeSeconds, &ep.Category,
			&ep.StartTimestamp, &ep.EndTimestamp,
			&ep.StartTrackingID, &ep.EndTrackingID,
			&ep.StartStatus, &ep.EndStatus,
			&ep.DetectedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan episode")
		}
		out = append(out, ep)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

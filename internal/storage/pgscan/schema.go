package pgscan

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS raw_scans (
  id BIGSERIAL PRIMARY KEY,
  tracking_id TEXT NOT NULL,
  location TEXT NOT NULL,
  status TEXT NOT NULL,
  scan_timestamp TIMESTAMPTZ NOT NULL,
  raw_timestamp TEXT NOT NULL DEFAULT '',
  scraped_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  UNIQUE (tracking_id, scan_timestamp)
)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_scans_location_ts ON raw_scans(location, scan_timestamp DESC)`,
		`
CREATE TABLE IF NOT EXISTS downtime_episodes (
  id BIGSERIAL PRIMARY KEY,
  location TEXT NOT NULL,
  downtime_seconds INT NOT NULL,
  category TEXT NOT NULL,
  start_timestamp TIMESTAMPTZ NOT NULL,
  end_timestamp TIMESTAMPTZ NOT NULL,
  start_tracking_id TEXT NOT NULL,
  end_tracking_id TEXT NOT NULL,
  start_status TEXT NOT NULL,
  end_status TEXT NOT NULL,
  detected_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_downtime_episodes_location ON downtime_episodes(location)`,
		`CREATE INDEX IF NOT EXISTS idx_downtime_episodes_detected_at ON downtime_episodes(detected_at DESC)`,
		// Повторная доставка одного сообщения из kafka не должна дублировать эпизоды.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_downtime_episodes_dedup ON downtime_episodes(location, start_timestamp, end_timestamp)`,
		`
CREATE TABLE IF NOT EXISTS daily_summaries (
  id BIGSERIAL PRIMARY KEY,
  summary_date DATE NOT NULL,
  location TEXT NOT NULL,
  total_downtime_seconds INT NOT NULL,
  episode_count INT NOT NULL,
  category_counts JSONB NULL,
  average_downtime_seconds INT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  UNIQUE (summary_date, location)
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}

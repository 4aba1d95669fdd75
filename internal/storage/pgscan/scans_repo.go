package pgscan

import (
	"context"
	"time"

	"github.com/BearBump/InductWatch/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// InsertScans складывает пачку сырых сканов. Дубликаты (tracking_id, timestamp)
// молча пропускаются — скрейпер постоянно видит одни и те же строки.
func (s *Storage) InsertScans(ctx context.Context, scans []models.ScanEvent) (int, error) {
	if len(scans) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted := 0
	for _, sc := range scans {
		tag, err := tx.Exec(ctx, `
INSERT INTO raw_scans (
  tracking_id, location, status, scan_timestamp, raw_timestamp, scraped_at, created_at
)
VALUES ($1,$2,$3,$4,$5,$6, now())
ON CONFLICT (tracking_id, scan_timestamp) DO NOTHING
`, sc.TrackingID, sc.Location, sc.Status, sc.Timestamp.UTC(), sc.RawTimestamp, sc.ScrapedAt.UTC())
		if err != nil {
			return 0, errors.Wrap(err, "insert raw scan")
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit tx")
	}
	return inserted, nil
}

func (s *Storage) ListScansByLocation(ctx context.Context, location string, limit, offset int) ([]models.ScanEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  tracking_id, location, status, scan_timestamp, raw_timestamp, scraped_at
FROM raw_scans
WHERE location = $1
ORDER BY scan_timestamp DESC
LIMIT $2 OFFSET $3
`, location, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select scans")
	}
	defer rows.Close()

	var out []models.ScanEvent
	for rows.Next() {
		var sc models.ScanEvent
		if err := rows.Scan(
			&sc.TrackingID, &sc.Location, &sc.Status, &sc.Timestamp, &sc.RawTimestamp, &sc.ScrapedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan raw scan")
		}
		out = append(out, sc)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// LastScanAt возвращает время последнего скана по станции, если он есть.
func (s *Storage) LastScanAt(ctx context.Context, location string) (*time.Time, error) {
	var ts time.Time
	err := s.db.QueryRow(ctx, `
SELECT scan_timestamp FROM raw_scans WHERE location = $1 ORDER BY scan_timestamp DESC LIMIT 1
`, location).Scan(&ts)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select last scan")
	}
	return &ts, nil
}

package scans

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/InductWatch/internal/broker/messages"
	"github.com/BearBump/InductWatch/internal/cache"
	"github.com/BearBump/InductWatch/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	InsertScans(ctx context.Context, scans []models.ScanEvent) (int, error)
	InsertEpisodes(ctx context.Context, episodes []models.DowntimeEpisode) (int, error)
	UpsertDailySummaries(ctx context.Context, date time.Time, summaries []models.LocationSummary) error
	ListRecentEpisodes(ctx context.Context, since time.Time, limit int) ([]models.DowntimeEpisode, error)
	ListEpisodesByLocation(ctx context.Context, location string, limit, offset int) ([]models.DowntimeEpisode, error)
	GetDailySummaries(ctx context.Context, date time.Time) ([]models.LocationSummary, error)
}

type Service struct {
	repo       Repository
	cache      cache.BytesCache
	summaryTTL time.Duration
}

func New(repo Repository, c cache.BytesCache, summaryTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, summaryTTL: summaryTTL}
}

// ApplyScansAnalyzed применяет результат одного цикла монитора: сырые сканы
// и эпизоды. Повторная доставка безопасна — обе таблицы дедуплицируют.
func (s *Service) ApplyScansAnalyzed(ctx context.Context, msg messages.ScansAnalyzed) error {
	scans := make([]models.ScanEvent, 0, len(msg.Scans))
	for _, sc := range msg.Scans {
		if sc.Location == "" || sc.Timestamp.IsZero() {
			continue
		}
		scans = append(scans, models.ScanEvent{
			Location:     sc.Location,
			TrackingID:   sc.TrackingID,
			Status:       sc.Status,
			Timestamp:    sc.Timestamp,
			RawTimestamp: sc.RawTimestamp,
			ScrapedAt:    msg.ScrapedAt,
		})
	}

	episodes := make([]models.DowntimeEpisode, 0, len(msg.Episodes))
	for _, ep := range msg.Episodes {
		episodes = append(episodes, models.DowntimeEpisode{
			Location:        ep.Location,
			DowntimeSeconds: ep.DowntimeSeconds,
			Category:        ep.Category,
			StartTimestamp:  ep.StartTimestamp,
			EndTimestamp:    ep.EndTimestamp,
			StartTrackingID: ep.StartTrackingID,
			EndTrackingID:   ep.EndTrackingID,
			StartStatus:     ep.StartStatus,
			EndStatus:       ep.EndStatus,
			DetectedAt:      ep.DetectedAt,
		})
	}

	if _, err := s.repo.InsertScans(ctx, scans); err != nil {
		return err
	}
	_, err := s.repo.InsertEpisodes(ctx, episodes)
	return err
}

// ApplyDailySummary сохраняет итог смены и перезаписывает кэш сводки дня.
func (s *Service) ApplyDailySummary(ctx context.Context, msg messages.DailySummarySaved) error {
	date, err := time.Parse("2006-01-02", msg.Date)
	if err != nil {
		return errors.Wrap(err, "parse summary date")
	}

	summaries := make([]models.LocationSummary, 0, len(msg.Summaries))
	for location, sum := range msg.Summaries {
		summaries = append(summaries, models.LocationSummary{
			Location:             location,
			TotalDowntimeSeconds: sum.TotalDowntimeSeconds,
			EpisodeCount:         sum.EpisodeCount,
			CategoryCounts:       sum.CategoryCounts,
			AverageDowntimeSecs:  sum.AverageDowntimeSecs,
		})
	}

	if err := s.repo.UpsertDailySummaries(ctx, date, summaries); err != nil {
		return err
	}

	if s.cache != nil && s.summaryTTL > 0 {
		fresh, err := s.repo.GetDailySummaries(ctx, date)
		if err == nil {
			b, _ := json.Marshal(fresh)
			_ = s.cache.Set(ctx, summaryKey(msg.Date), b, s.summaryTTL)
		}
	}
	return nil
}

func (s *Service) RecentEpisodes(ctx context.Context, since time.Time, limit int) ([]models.DowntimeEpisode, error) {
	if since.IsZero() {
		since = time.Now().UTC().Add(-30 * time.Minute)
	}
	return s.repo.ListRecentEpisodes(ctx, since, limit)
}

func (s *Service) EpisodesByLocation(ctx context.Context, location string, limit, offset int) ([]models.DowntimeEpisode, error) {
	if location == "" {
		return nil, errors.New("location is required")
	}
	return s.repo.ListEpisodesByLocation(ctx, location, limit, offset)
}

// DailySummaries отдаёт сводку за день, best-effort через redis-кэш.
func (s *Service) DailySummaries(ctx context.Context, date string) ([]models.LocationSummary, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, errors.Wrap(err, "parse date")
	}

	if s.cache != nil && s.summaryTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, summaryKey(date)); err == nil && ok {
			var out []models.LocationSummary
			if json.Unmarshal(b, &out) == nil {
				return out, nil
			}
		}
	}

	out, err := s.repo.GetDailySummaries(ctx, day)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.summaryTTL > 0 {
		b, _ := json.Marshal(out)
		_ = s.cache.Set(ctx, summaryKey(date), b, s.summaryTTL)
	}
	return out, nil
}

func summaryKey(date string) string {
	return "summary:" + date + ":daily"
}

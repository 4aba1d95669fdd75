package mercury

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/InductWatch/internal/models"
	"github.com/pkg/errors"
)

// Client scrapes the Mercury dashboard query endpoint for induct scan rows.
// Filtering by valid locations/statuses happens here, before events reach the
// downtime engine.
type Client struct {
	queryURL       string
	validLocations map[string]struct{}
	validStatuses  map[string]struct{}
	httpc          *http.Client

	maxRetries int
	retryDelay time.Duration

	now func() time.Time
}

func New(queryURL string, httpc *http.Client, validLocations, validStatuses []string) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{
		queryURL:       queryURL,
		validLocations: toSet(validLocations),
		validStatuses:  toSet(validStatuses),
		httpc:          httpc,
		maxRetries:     3,
		retryDelay:     5 * time.Second,
		now:            func() time.Time { return time.Now().UTC() },
	}
	return c
}

func (c *Client) WithRetry(maxRetries int, delay time.Duration) *Client {
	if maxRetries > 0 {
		c.maxRetries = maxRetries
	}
	if delay > 0 {
		c.retryDelay = delay
	}
	return c
}

func toSet(items []string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (c *Client) Scrape(ctx context.Context) ([]models.ScanEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.queryURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "InductWatch/1.0")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	// Редиректы выключены: 3xx означает протухшую Midway-сессию.
	if resp.StatusCode/100 == 3 {
		return nil, errors.Errorf("mercury redirected to login (http %d), session expired", resp.StatusCode)
	}
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("mercury http %d", resp.StatusCode)
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "decode mercury response")
	}

	events := c.extractEvents(payload)
	slog.Info("mercury scrape done", "events", len(events))
	return events, nil
}

// ScrapeWithRetry wraps Scrape with bounded exponential backoff.
func (c *Client) ScrapeWithRetry(ctx context.Context) ([]models.ScanEvent, error) {
	delay := c.retryDelay
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		events, err := c.Scrape(ctx)
		if err == nil {
			return events, nil
		}
		lastErr = err
		slog.Warn("mercury scrape attempt failed", "attempt", attempt+1, "error", err.Error())

		if attempt < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return nil, errors.Wrap(lastErr, "all scrape attempts failed")
}

// Mercury отвечает то {"data": [...]}, то {"results": [...]}, то голым массивом.
func (c *Client) extractEvents(payload any) []models.ScanEvent {
	var rows []any
	switch v := payload.(type) {
	case map[string]any:
		if d, ok := v["data"].([]any); ok {
			rows = d
		} else if r, ok := v["results"].([]any); ok {
			rows = r
		} else {
			rows = []any{v}
		}
	case []any:
		rows = v
	default:
		return nil
	}

	scrapedAt := c.now()
	events := make([]models.ScanEvent, 0, len(rows))
	for _, row := range rows {
		item, ok := row.(map[string]any)
		if !ok {
			continue
		}
		if ev, ok := c.parseRow(item, scrapedAt); ok {
			events = append(events, ev)
		}
	}
	return events
}

func (c *Client) parseRow(item map[string]any, scrapedAt time.Time) (models.ScanEvent, bool) {
	status := nestedString(item, "compLastScanInOrder", "internalStatusCode")
	trackingID := nestedString(item, "trackingId")
	location := nestedString(item, "Induct", "destination", "id")
	rawTimestamp := nestedString(item, "lastScanInOrder", "timestamp")

	if status == "" || trackingID == "" || location == "" || rawTimestamp == "" {
		return models.ScanEvent{}, false
	}

	if _, ok := c.validStatuses[status]; !ok {
		return models.ScanEvent{}, false
	}
	if _, ok := c.validLocations[location]; !ok {
		return models.ScanEvent{}, false
	}

	ts, ok := parseTimestamp(rawTimestamp)
	if !ok {
		slog.Warn("could not parse scan timestamp", "raw", rawTimestamp, "tracking_id", trackingID)
		return models.ScanEvent{}, false
	}

	return models.ScanEvent{
		Location:     location,
		TrackingID:   trackingID,
		Status:       status,
		Timestamp:    ts,
		RawTimestamp: rawTimestamp,
		ScrapedAt:    scrapedAt,
	}, true
}

func nestedString(item map[string]any, keys ...string) string {
	current := any(item)
	for _, key := range keys {
		m, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = m[key]
		if !ok {
			return ""
		}
	}
	switch v := current.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
}

func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}

	// Эпоха в секундах или миллисекундах.
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		switch {
		case n > 1_000_000_000_000:
			return time.UnixMilli(n).UTC(), true
		case n > 1_000_000_000:
			return time.Unix(n, 0).UTC(), true
		}
	}
	return time.Time{}, false
}

package inductapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/InductWatch/internal/services/scans"
	"github.com/go-chi/chi/v5"
)

// API — read-only HTTP слой над сервисом сканов: эпизоды и дневные сводки
// для дашбордов и ручной диагностики.
type API struct {
	svc *scans.Service
}

func New(svc *scans.Service) *API {
	return &API{svc: svc}
}

func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/episodes", a.handleRecentEpisodes)
	r.Get("/locations/{location}/episodes", a.handleLocationEpisodes)
	r.Get("/summaries/{date}", a.handleDailySummaries)

	return r
}

func (a *API) handleRecentEpisodes(w http.ResponseWriter, r *http.Request) {
	sinceMinutes := queryInt(r, "since_minutes", 30)
	limit := queryInt(r, "limit", 100)

	since := time.Now().UTC().Add(-time.Duration(sinceMinutes) * time.Minute)
	eps, err := a.svc.RecentEpisodes(r.Context(), since, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]any{"episodes": eps})
}

func (a *API) handleLocationEpisodes(w http.ResponseWriter, r *http.Request) {
	location := chi.URLParam(r, "location")
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	eps, err := a.svc.EpisodesByLocation(r.Context(), location, limit, offset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, map[string]any{"location": location, "episodes": eps})
}

func (a *API) handleDailySummaries(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")

	sums, err := a.svc.DailySummaries(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, map[string]any{"date": date, "summaries": sums})
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

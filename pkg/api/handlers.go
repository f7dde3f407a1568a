package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethpandaops/pagespeedoor/pkg/api/store"
	"github.com/ethpandaops/pagespeedoor/pkg/history"
	"github.com/ethpandaops/pagespeedoor/pkg/pagespeed"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// --- Public handlers ---

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConfig returns the public API configuration.
func (s *server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	archiveEnabled := s.archiver != nil

	writeJSON(w, http.StatusOK, map[string]any{
		"history": map[string]any{
			"default_limit": s.cfg.History.DefaultLimit,
			"max_limit":     s.cfg.History.MaxLimit,
		},
		"archive": map[string]any{
			"enabled": archiveEnabled,
		},
		"rate_limit": map[string]any{
			"enabled": s.cfg.Server.RateLimit.Enabled,
		},
	})
}

// --- Analysis ---

type analyzeRequest struct {
	URL      string `json:"url"`
	Strategy string `json:"strategy"`
}

type analyzeResponse struct {
	ID                string                      `json:"id"`
	CruxMetrics       pagespeed.CruxMetrics       `json:"cruxMetrics"`
	LighthouseMetrics pagespeed.LighthouseMetrics `json:"lighthouseMetrics"`
	DatabaseID        *uint                       `json:"databaseId,omitempty"`
}

// handleAnalyze runs one PageSpeed Insights analysis for the requested
// URL and strategy, persists the parsed metrics, and returns the
// extracted document fields. Persistence and archival are best-effort:
// their failures are logged and the analysis result is still returned.
func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"url is required"})

		return
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = pagespeed.StrategyDesktop
	}

	if !pagespeed.ValidStrategy(strategy) {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"strategy must be desktop or mobile"})

		return
	}

	result, err := s.psi.Analyze(r.Context(), req.URL, strategy)
	if err != nil {
		s.log.WithError(err).
			WithField("url", req.URL).
			WithField("strategy", strategy).
			Error("Upstream analysis failed")

		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"Failed to fetch PageSpeed data"})

		return
	}

	resp := analyzeResponse{
		ID:                result.ID,
		CruxMetrics:       result.Crux,
		LighthouseMetrics: result.Lighthouse,
	}

	rec := &store.Record{
		URL:                    req.URL,
		Strategy:               strategy,
		FirstContentfulPaint:   pagespeed.ParseDisplayValue(result.Lighthouse.FirstContentfulPaint),
		SpeedIndex:             pagespeed.ParseDisplayValue(result.Lighthouse.SpeedIndex),
		LargestContentfulPaint: pagespeed.ParseDisplayValue(result.Lighthouse.LargestContentfulPaint),
		TotalBlockingTime:      pagespeed.ParseDisplayValue(result.Lighthouse.TotalBlockingTime),
		TimeToInteractive:      pagespeed.ParseDisplayValue(result.Lighthouse.TimeToInteractive),
	}

	if err := s.store.CreateRecord(r.Context(), rec); err != nil {
		// The analysis itself succeeded, so the caller still gets the
		// metrics. The record id is simply absent from the response.
		s.log.WithError(err).
			WithField("url", req.URL).
			Warn("Persisting analysis record failed")
	} else {
		resp.DatabaseID = &rec.ID
	}

	if s.archiver != nil {
		s.archiveRawResponse(r.Context(), strategy, result.Raw)
	}

	writeJSON(w, http.StatusOK, resp)
}

// archiveRawResponse stores the raw upstream document, logging and
// swallowing any failure.
func (s *server) archiveRawResponse(
	ctx context.Context, strategy string, raw []byte,
) {
	now := time.Now().UTC()
	key := fmt.Sprintf("%s/%d-%s.json",
		now.Format("2006/01/02"), now.UnixNano(), strategy)

	if err := s.archiver.Put(ctx, key, raw); err != nil {
		s.log.WithError(err).
			WithField("key", key).
			Warn("Archiving raw response failed")
	}
}

// --- History ---

// historyQuery is the validated common query surface of the history
// endpoints.
type historyQuery struct {
	limit  int
	filter history.Filter
	sort   history.SortField
	dir    history.Direction
}

// parseHistoryQuery validates limit/domain/strategy/sort/direction
// query parameters. It writes the error response itself and returns
// false when a parameter is invalid.
func (s *server) parseHistoryQuery(
	w http.ResponseWriter, r *http.Request,
) (historyQuery, bool) {
	q := historyQuery{
		limit: s.cfg.History.DefaultLimit,
		sort:  history.SortCreatedAt,
		dir:   history.Descending,
	}

	query := r.URL.Query()

	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"limit must be a positive integer"})

			return q, false
		}

		if n > s.cfg.History.MaxLimit {
			n = s.cfg.History.MaxLimit
		}

		q.limit = n
	}

	q.filter.Domain = query.Get("domain")
	q.filter.Strategy = query.Get("strategy")

	if raw := query.Get("sort"); raw != "" {
		field, ok := history.ParseSortField(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"unknown sort field"})

			return q, false
		}

		q.sort = field

		// Metric sorts default to ascending so the best run comes
		// first; explicit direction below still wins.
		if field != history.SortCreatedAt {
			q.dir = history.Ascending
		}
	}

	if raw := query.Get("direction"); raw != "" {
		dir, ok := history.ParseDirection(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"direction must be asc or desc"})

			return q, false
		}

		q.dir = dir
	}

	return q, true
}

// fetchHistory loads, filters, and sorts records per the query.
func (s *server) fetchHistory(
	ctx context.Context, q historyQuery,
) ([]store.Record, error) {
	// Filtering happens after the fetch, so read up to the configured
	// maximum and cut down to the requested limit at the end.
	records, err := s.store.ListRecords(ctx, s.cfg.History.MaxLimit)
	if err != nil {
		return nil, err
	}

	records = history.Apply(records, q.filter)
	history.Sort(records, q.sort, q.dir)

	if len(records) > q.limit {
		records = records[:q.limit]
	}

	return records, nil
}

// handleResults returns stored analysis records, optionally filtered
// by domain and strategy and sorted by a metric column.
func (s *server) handleResults(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseHistoryQuery(w, r)
	if !ok {
		return
	}

	records, err := s.fetchHistory(r.Context(), q)
	if err != nil {
		s.log.WithError(err).Error("Listing records failed")

		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"failed to load results"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": records,
		"count":   len(records),
	})
}

// handleSites returns records grouped per website, newest group first.
func (s *server) handleSites(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListRecords(
		r.Context(), s.cfg.History.MaxLimit,
	)
	if err != nil {
		s.log.WithError(err).Error("Listing records failed")

		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"failed to load results"})

		return
	}

	groups := history.GroupByDomain(records)

	writeJSON(w, http.StatusOK, map[string]any{
		"sites": groups,
		"count": len(groups),
	})
}

// handleExportCSV streams the filtered history as a CSV attachment.
func (s *server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseHistoryQuery(w, r)
	if !ok {
		return
	}

	records, err := s.fetchHistory(r.Context(), q)
	if err != nil {
		s.log.WithError(err).Error("Listing records failed")

		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"failed to load results"})

		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		`attachment; filename="pagespeed-results.csv"`)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte(history.ExportCSV(records))); err != nil {
		s.log.WithError(err).Warn("Writing CSV response failed")
	}
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethpandaops/pagespeedoor/pkg/api/store"
	"github.com/ethpandaops/pagespeedoor/pkg/config"
	"github.com/ethpandaops/pagespeedoor/pkg/pagespeed"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store for handler tests.
type fakeStore struct {
	records    []store.Record
	nextID     uint
	failCreate bool
	failList   bool
}

func (f *fakeStore) Start(context.Context) error { return nil }
func (f *fakeStore) Stop() error                 { return nil }

func (f *fakeStore) CreateRecord(_ context.Context, rec *store.Record) error {
	if f.failCreate {
		return fmt.Errorf("disk full")
	}

	f.nextID++
	rec.ID = f.nextID
	rec.CreatedAt = time.Now().UTC()
	f.records = append(f.records, *rec)

	return nil
}

func (f *fakeStore) ListRecords(_ context.Context, limit int) ([]store.Record, error) {
	if f.failList {
		return nil, fmt.Errorf("connection reset")
	}

	out := make([]store.Record, len(f.records))
	copy(out, f.records)

	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// fakeClient returns a canned result or error.
type fakeClient struct {
	result *pagespeed.Result
	err    error

	gotURL      string
	gotStrategy string
}

func (f *fakeClient) Analyze(
	_ context.Context, targetURL, strategy string,
) (*pagespeed.Result, error) {
	f.gotURL = targetURL
	f.gotStrategy = strategy

	if f.err != nil {
		return nil, f.err
	}

	return f.result, nil
}

// failingArchiver always errors.
type failingArchiver struct{}

func (failingArchiver) Put(context.Context, string, []byte) error {
	return fmt.Errorf("bucket gone")
}

func goodResult() *pagespeed.Result {
	return &pagespeed.Result{
		ID: "https://example.com/",
		Crux: pagespeed.CruxMetrics{
			FirstContentfulPaint: "FAST",
			FirstInputDelay:      "AVERAGE",
		},
		Lighthouse: pagespeed.LighthouseMetrics{
			FirstContentfulPaint:   "1.2 s",
			SpeedIndex:             "2.0 s",
			LargestContentfulPaint: "2.5 s",
			TotalBlockingTime:      "150 ms",
			TimeToInteractive:      "N/A",
		},
		Raw: []byte(`{"id":"https://example.com/"}`),
	}
}

func newTestServer(st store.Store, psi pagespeed.Client) *server {
	return &server{
		log:   logrus.New(),
		store: st,
		psi:   psi,
		cfg: &config.Config{
			History: config.HistoryConfig{
				DefaultLimit: 100,
				MaxLimit:     1000,
			},
		},
	}
}

func doRequest(s *server, method, target string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, req)

	return rec
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(&fakeStore{}, &fakeClient{})

	rec := doRequest(s, http.MethodGet, "/api/v1/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleAnalyze(t *testing.T) {
	st := &fakeStore{}
	psi := &fakeClient{result: goodResult()}
	s := newTestServer(st, psi)

	rec := doRequest(s, http.MethodPost, "/api/v1/analyze",
		[]byte(`{"url":"https://example.com","strategy":"mobile"}`))

	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "https://example.com", psi.gotURL)
	assert.Equal(t, "mobile", psi.gotStrategy)

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "https://example.com/", resp.ID)
	assert.Equal(t, "FAST", resp.CruxMetrics.FirstContentfulPaint)
	assert.Equal(t, "1.2 s", resp.LighthouseMetrics.FirstContentfulPaint)
	assert.Equal(t, "N/A", resp.LighthouseMetrics.TimeToInteractive)

	require.NotNil(t, resp.DatabaseID)
	assert.Equal(t, uint(1), *resp.DatabaseID)

	// The stored record carries the parsed metric values.
	require.Len(t, st.records, 1)
	stored := st.records[0]
	assert.Equal(t, "https://example.com", stored.URL)
	assert.Equal(t, "mobile", stored.Strategy)
	assert.InDelta(t, 1.2, stored.FirstContentfulPaint, 1e-9)
	assert.InDelta(t, 150, stored.TotalBlockingTime, 1e-9)
	assert.Zero(t, stored.TimeToInteractive)
}

func TestHandleAnalyze_DefaultStrategy(t *testing.T) {
	psi := &fakeClient{result: goodResult()}
	s := newTestServer(&fakeStore{}, psi)

	rec := doRequest(s, http.MethodPost, "/api/v1/analyze",
		[]byte(`{"url":"https://example.com"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pagespeed.StrategyDesktop, psi.gotStrategy)
}

func TestHandleAnalyze_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ``},
		{name: "not json", body: `hello`},
		{name: "missing url", body: `{"strategy":"desktop"}`},
		{name: "bad strategy", body: `{"url":"https://x.com","strategy":"tablet"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeStore{}, &fakeClient{result: goodResult()})

			rec := doRequest(s, http.MethodPost, "/api/v1/analyze",
				[]byte(tt.body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleAnalyze_UpstreamFailure(t *testing.T) {
	psi := &fakeClient{err: fmt.Errorf("upstream says no")}
	st := &fakeStore{}
	s := newTestServer(st, psi)

	rec := doRequest(s, http.MethodPost, "/api/v1/analyze",
		[]byte(`{"url":"https://example.com"}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch PageSpeed data"}`,
		rec.Body.String())

	// Nothing gets persisted for a failed analysis.
	assert.Empty(t, st.records)
}

func TestHandleAnalyze_StoreFailureIsBestEffort(t *testing.T) {
	st := &fakeStore{failCreate: true}
	s := newTestServer(st, &fakeClient{result: goodResult()})

	rec := doRequest(s, http.MethodPost, "/api/v1/analyze",
		[]byte(`{"url":"https://example.com"}`))

	// The analysis still succeeds; only the database id is missing.
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "https://example.com/", resp["id"])
	assert.NotContains(t, resp, "databaseId")
}

func TestHandleAnalyze_ArchiveFailureIsBestEffort(t *testing.T) {
	s := newTestServer(&fakeStore{}, &fakeClient{result: goodResult()})
	s.archiver = failingArchiver{}

	rec := doRequest(s, http.MethodPost, "/api/v1/analyze",
		[]byte(`{"url":"https://example.com"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func seededStore() *fakeStore {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	return &fakeStore{
		nextID: 3,
		records: []store.Record{
			{
				ID: 1, CreatedAt: base,
				URL: "https://example.com/", Strategy: "desktop",
				SpeedIndex: 3.0,
			},
			{
				ID: 2, CreatedAt: base.Add(time.Hour),
				URL: "https://www.example.com/", Strategy: "mobile",
				SpeedIndex: 1.0,
			},
			{
				ID: 3, CreatedAt: base.Add(2 * time.Hour),
				URL: "https://other.org/", Strategy: "desktop",
				SpeedIndex: 2.0,
			},
		},
	}
}

func TestHandleResults(t *testing.T) {
	s := newTestServer(seededStore(), &fakeClient{})

	rec := doRequest(s, http.MethodGet, "/api/v1/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results []store.Record `json:"results"`
		Count   int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, 3, resp.Count)
	require.Len(t, resp.Results, 3)

	// Default order is newest first.
	assert.Equal(t, uint(3), resp.Results[0].ID)
}

func TestHandleResults_Filters(t *testing.T) {
	s := newTestServer(seededStore(), &fakeClient{})

	t.Run("by strategy", func(t *testing.T) {
		rec := doRequest(s, http.MethodGet,
			"/api/v1/results?strategy=mobile", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Results []store.Record `json:"results"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

		require.Len(t, resp.Results, 1)
		assert.Equal(t, uint(2), resp.Results[0].ID)
	})

	t.Run("by exact domain", func(t *testing.T) {
		rec := doRequest(s, http.MethodGet,
			"/api/v1/results?domain=example.com", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Results []store.Record `json:"results"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

		// www.example.com does not match example.com.
		require.Len(t, resp.Results, 1)
		assert.Equal(t, uint(1), resp.Results[0].ID)
	})

	t.Run("by metric sort", func(t *testing.T) {
		rec := doRequest(s, http.MethodGet,
			"/api/v1/results?sort=speed_index", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Results []store.Record `json:"results"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

		require.Len(t, resp.Results, 3)
		assert.Equal(t, uint(2), resp.Results[0].ID)
		assert.Equal(t, uint(1), resp.Results[2].ID)
	})

	t.Run("limit", func(t *testing.T) {
		rec := doRequest(s, http.MethodGet,
			"/api/v1/results?limit=2", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Results []store.Record `json:"results"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

		assert.Len(t, resp.Results, 2)
	})
}

func TestHandleResults_BadParams(t *testing.T) {
	s := newTestServer(seededStore(), &fakeClient{})

	for _, target := range []string{
		"/api/v1/results?limit=abc",
		"/api/v1/results?limit=0",
		"/api/v1/results?limit=-5",
		"/api/v1/results?sort=bogus",
		"/api/v1/results?direction=sideways",
	} {
		rec := doRequest(s, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestHandleResults_StoreFailure(t *testing.T) {
	s := newTestServer(&fakeStore{failList: true}, &fakeClient{})

	rec := doRequest(s, http.MethodGet, "/api/v1/results", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleSites(t *testing.T) {
	s := newTestServer(seededStore(), &fakeClient{})

	rec := doRequest(s, http.MethodGet, "/api/v1/sites", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sites []struct {
			Domain      string `json:"domain"`
			DisplayName string `json:"display_name"`
			Count       int    `json:"count"`
		} `json:"sites"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Equal(t, 3, resp.Count)

	// Groups ordered by most recent test.
	assert.Equal(t, "other.org", resp.Sites[0].Domain)
	assert.Equal(t, "www.example.com", resp.Sites[1].Domain)
	assert.Equal(t, "example.com", resp.Sites[1].DisplayName)
}

func TestHandleExportCSV(t *testing.T) {
	s := newTestServer(seededStore(), &fakeClient{})

	rec := doRequest(s, http.MethodGet,
		"/api/v1/export.csv?strategy=desktop", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "text/csv; charset=utf-8",
		rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"),
		"attachment")

	body := rec.Body.String()
	assert.Contains(t, body, `"id","created_at"`)
	assert.Contains(t, body, `"https://example.com/"`)
	assert.Contains(t, body, `"https://other.org/"`)
	assert.NotContains(t, body, "www.example.com")
}

func TestHandleConfig(t *testing.T) {
	s := newTestServer(&fakeStore{}, &fakeClient{})

	rec := doRequest(s, http.MethodGet, "/api/v1/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Contains(t, resp, "history")
	assert.Contains(t, resp, "rate_limit")
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(seededStore(), &fakeClient{})
	s.cfg.Server.RateLimit = config.RateLimitConfig{
		Enabled: true,
		Public:  config.RateLimitTier{RequestsPerMinute: 2},
		Analyze: config.RateLimitTier{RequestsPerMinute: 2},
	}

	router := s.buildRouter()

	codes := make([]int, 0, 3)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/results", nil)
		req.RemoteAddr = "10.0.0.1:1234"

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{
		http.StatusOK,
		http.StatusOK,
		http.StatusTooManyRequests,
	}, codes)
}

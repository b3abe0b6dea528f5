package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/uni-comb/app/metrics"
	"github.com/lysyi3m/uni-comb/app/pipeline"
	"github.com/lysyi3m/uni-comb/app/source"
	"github.com/lysyi3m/uni-comb/app/staging"
	"github.com/lysyi3m/uni-comb/app/university"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockRefresher returns a canned result.
type MockRefresher struct {
	result pipeline.RunResult
	calls  int
}

func (m *MockRefresher) Run(ctx context.Context, trigger pipeline.Trigger) pipeline.RunResult {
	m.calls++
	return m.result
}

func (m *MockRefresher) State() pipeline.State           { return pipeline.StateIdle }
func (m *MockRefresher) LastResult() *pipeline.RunResult { return nil }

// PanickingStore blows up on every read.
type PanickingStore struct{}

func (PanickingStore) ReadJSON() ([]university.Record, error) { panic("corrupted state") }
func (PanickingStore) OpenCSV() (io.ReadCloser, int64, error) { panic("corrupted state") }
func (PanickingStore) Status() map[string]staging.ArtifactInfo {
	return map[string]staging.ArtifactInfo{}
}

type testEnv struct {
	router *gin.Engine
	store  *staging.Store
}

// newTestEnv wires the real pipeline against a fake directory API that
// returns one valid and one invalid university per country.
func newTestEnv(t *testing.T, countries []string) *testEnv {
	t.Helper()

	directory := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		country := r.URL.Query().Get("country")
		_, _ = w.Write([]byte(`[
			{"name": "University of ` + country + `", "country": "` + country + `", "domains": ["u.edu"], "web_pages": ["http://u.edu"]},
			{"name": "No Pages", "country": "` + country + `"}
		]`))
	}))
	t.Cleanup(directory.Close)

	m := metrics.New()
	store := staging.NewStore(t.TempDir())
	gateway := source.NewGateway(source.Options{BaseURL: directory.URL, Countries: countries, Metrics: m})
	orchestrator := pipeline.NewOrchestrator(gateway, university.NewNormalizer(), store, pipeline.WithMetrics(m))

	nextRun := func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }
	handler := NewHandler(orchestrator, store, m.Handler(), nextRun, "test")

	return &testEnv{router: NewServer(handler, false), store: store}
}

func (e *testEnv) do(method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCSVBeforeAndAfterRefresh(t *testing.T) {
	env := newTestEnv(t, []string{"Canada", "Peru"})

	rec := env.do(http.MethodGet, "/api/universities/csv")
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "CSV file not found", body["error"])
	assert.Contains(t, body["suggestion"], "/api/refresh")

	rec = env.do(http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decodeBody(t, rec)
	assert.Equal(t, "Data refreshed successfully", body["message"])
	assert.Equal(t, 2.0, body["recordCount"])
	assert.NotEmpty(t, body["timestamp"])

	rec = env.do(http.MethodGet, "/api/universities/csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	rows, err := csv.NewReader(bytes.NewReader(rec.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, staging.CSVHeader, rows[0])
	assert.Equal(t, "University of Canada", rows[1][0])
	assert.Equal(t, "", rows[1][2])
	assert.Equal(t, "u.edu", rows[1][4])
}

func TestJSONBeforeAndAfterRefresh(t *testing.T) {
	env := newTestEnv(t, []string{"Canada"})

	rec := env.do(http.MethodGet, "/api/universities/json")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "JSON file not found", decodeBody(t, rec)["error"])

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/refresh").Code)

	rec = env.do(http.MethodGet, "/api/universities/json")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count       int                 `json:"count"`
		Data        []university.Record `json:"data"`
		LastUpdated *time.Time          `json:"last_updated"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "University of Canada", body.Data[0].Name)
	assert.Nil(t, body.Data[0].StateProvince)
	require.NotNil(t, body.LastUpdated)
	assert.True(t, body.LastUpdated.Equal(body.Data[0].LastUpdated))
}

func TestJSONEmptyGeneration(t *testing.T) {
	env := newTestEnv(t, nil)

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/refresh").Code)

	rec := env.do(http.MethodGet, "/api/universities/json")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, 0.0, body["count"])
	assert.Equal(t, []any{}, body["data"])
	assert.Nil(t, body["last_updated"])
}

func TestRefreshFailure(t *testing.T) {
	refresher := &MockRefresher{result: pipeline.RunResult{Error: "staging failed: disk full"}}
	router := NewServer(NewHandler(refresher, staging.NewStore(t.TempDir()), nil, nil, "test"), false)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Failed to refresh data", body["error"])
	assert.Equal(t, "staging failed: disk full", body["details"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestRefreshInProgress(t *testing.T) {
	extractor := &blockingExtractor{started: make(chan struct{}), release: make(chan struct{})}
	orchestrator := pipeline.NewOrchestrator(extractor, university.NewNormalizer(),
		staging.NewStore(t.TempDir()), pipeline.WithOverlapPolicy(pipeline.OverlapSkip))
	router := NewServer(NewHandler(orchestrator, staging.NewStore(t.TempDir()), nil, nil, "test"), false)

	done := make(chan pipeline.RunResult, 1)
	go func() { done <- orchestrator.Run(context.Background(), pipeline.TriggerScheduled) }()
	<-extractor.started

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, pipeline.ErrRunInProgress.Error(), decodeBody(t, rec)["details"])

	close(extractor.release)
	assert.True(t, (<-done).Success)
}

type blockingExtractor struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingExtractor) Run(ctx context.Context) (*source.Result, error) {
	close(b.started)
	<-b.release
	return &source.Result{}, nil
}

func TestPanicIsGenericServerError(t *testing.T) {
	router := NewServer(NewHandler(&MockRefresher{}, PanickingStore{}, nil, nil, "test"), false)

	for _, path := range []string{"/api/universities/json", "/api/universities/csv"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
		assert.Equal(t, map[string]any{"error": "Internal server error"}, decodeBody(t, rec), path)
		assert.NotContains(t, rec.Body.String(), "corrupted")
	}
}

func TestIndexListsEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body, len(endpoints))
	assert.Contains(t, body, "POST /api/refresh")
	assert.Contains(t, body, "GET /api/universities/csv")
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, req := range []struct{ method, path string }{
		{http.MethodGet, "/nope"},
		{http.MethodGet, "/api/refresh"},
		{http.MethodDelete, "/api/universities/json"},
	} {
		rec := env.do(req.method, req.path)
		assert.Equal(t, http.StatusNotFound, rec.Code, req.path)
		body := decodeBody(t, rec)
		assert.Equal(t, "Endpoint not found", body["error"])
		assert.Contains(t, body["availableEndpoints"], "GET /api/universities/json")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, []string{"Canada"})

	body := decodeBody(t, env.do(http.MethodGet, "/health"))
	assert.Equal(t, "idle", body["state"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, "2030-01-01T00:00:00Z", body["next_scheduled_run"])
	assert.NotContains(t, body, "last_run")

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/refresh").Code)

	body = decodeBody(t, env.do(http.MethodGet, "/health"))
	lastRun, ok := body["last_run"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, lastRun["success"])
	assert.Equal(t, "manual", lastRun["trigger"])
	artifacts := body["artifacts"].(map[string]any)
	assert.Equal(t, true, artifacts["csv"].(map[string]any)["exists"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, []string{"Canada"})
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/refresh").Code)

	rec := env.do(http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `unicomb_pipeline_runs_total{outcome="success",trigger="manual"} 1`)
	assert.Contains(t, rec.Body.String(), `unicomb_source_requests_total{country="Canada",status="ok"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodOptions, "/api/refresh")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

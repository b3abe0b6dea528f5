package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/lysyi3m/uni-comb/app/pipeline"
	"github.com/lysyi3m/uni-comb/app/staging"
	"github.com/lysyi3m/uni-comb/app/university"
)

type Refresher interface {
	Run(ctx context.Context, trigger pipeline.Trigger) pipeline.RunResult
	State() pipeline.State
	LastResult() *pipeline.RunResult
}

type ArtifactStore interface {
	ReadJSON() ([]university.Record, error)
	OpenCSV() (io.ReadCloser, int64, error)
	Status() map[string]staging.ArtifactInfo
}

var (
	_ Refresher     = (*pipeline.Orchestrator)(nil)
	_ ArtifactStore = (*staging.Store)(nil)
)

type Handler struct {
	refresher      Refresher
	store          ArtifactStore
	metricsHandler http.Handler
	nextRun        func() time.Time
	version        string
}

// endpoints lists the public routes in display order.
var endpoints = []struct {
	Route       string
	Description string
}{
	{"GET /", "List available endpoints"},
	{"GET /api/universities/csv", "Download the staged universities as CSV"},
	{"GET /api/universities/json", "Get the staged universities as JSON"},
	{"POST /api/refresh", "Run the ETL pipeline now"},
	{"GET /health", "Pipeline state and artifact status"},
	{"GET /metrics", "Prometheus metrics"},
}

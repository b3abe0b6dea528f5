package cfg

import (
	"time"

	"github.com/lysyi3m/uni-comb/app/pipeline"
)

type Cfg struct {
	// HTTP server
	Port            string
	ShutdownTimeout time.Duration

	// Staging
	DataDir string

	// Directory API
	SourceURL      string
	Countries      []string
	RequestTimeout time.Duration
	RequestRate    float64
	RequestBurst   int
	UserAgent      string

	// Pipeline
	RefreshSchedule string
	OverlapPolicy   pipeline.OverlapPolicy

	// Application metadata
	Debug   bool
	Version string
}

package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/robfig/cron/v3"

	"github.com/lysyi3m/uni-comb/app/pipeline"
	"github.com/lysyi3m/uni-comb/app/source"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// HTTP server
	Port            string `long:"port" env:"PORT" default:"3000" description:"HTTP server port"`
	ShutdownTimeout int    `long:"shutdown-timeout" env:"SHUTDOWN_TIMEOUT" default:"0" description:"Seconds to drain requests on shutdown (0 closes immediately)"`

	// Staging
	DataDir string `long:"data-dir" env:"DATA_DIR" default:"./data" description:"Directory holding the staged JSON and CSV artifacts"`

	// Directory API
	SourceURL      string   `long:"source-url" env:"SOURCE_URL" default:"http://universities.hipolabs.com/search" description:"University directory API endpoint"`
	Countries      []string `long:"country" env:"COUNTRIES" env-delim:"," description:"Country to fetch (repeatable)"`
	CountriesFile  string   `long:"countries-file" env:"COUNTRIES_FILE" description:"YAML file with a 'countries' list"`
	RequestTimeout int      `long:"request-timeout" env:"REQUEST_TIMEOUT" default:"30" description:"Per-request timeout in seconds"`
	RequestRate    float64  `long:"request-rate" env:"REQUEST_RATE" default:"5" description:"Outbound requests per second"`
	RequestBurst   int      `long:"request-burst" env:"REQUEST_BURST" default:"5" description:"Outbound request burst size"`
	UserAgent      string   `long:"user-agent" env:"USER_AGENT" default:"Uni-Comb/1.0" description:"User agent string for HTTP requests"`

	// Pipeline
	RefreshSchedule string `long:"refresh-schedule" env:"REFRESH_SCHEDULE" default:"0 0 * * *" description:"Cron expression for the daily refresh, evaluated in UTC"`
	OverlapPolicy   string `long:"overlap-policy" env:"OVERLAP_POLICY" default:"queue" choice:"queue" choice:"skip" description:"What to do when a refresh is requested during a run"`

	// Application metadata
	Debug bool `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses os.Args and the environment. It returns a nil config when
// help was requested.
func Load() (*Cfg, error) {
	return parse(os.Args[1:], flags.Default)
}

func parse(args []string, options flags.Options) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, options)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	countries := cleanCountries(raw.Countries)
	if raw.CountriesFile != "" {
		fromFile, err := LoadCountries(raw.CountriesFile)
		if err != nil {
			return nil, err
		}
		countries = fromFile
	}
	if len(countries) == 0 {
		countries = append([]string(nil), source.DefaultCountries...)
	}

	policy, err := pipeline.ParseOverlapPolicy(raw.OverlapPolicy)
	if err != nil {
		return nil, err
	}

	cfg := &Cfg{
		Port:            raw.Port,
		ShutdownTimeout: time.Duration(raw.ShutdownTimeout) * time.Second,
		DataDir:         raw.DataDir,
		SourceURL:       raw.SourceURL,
		Countries:       countries,
		RequestTimeout:  time.Duration(raw.RequestTimeout) * time.Second,
		RequestRate:     raw.RequestRate,
		RequestBurst:    raw.RequestBurst,
		UserAgent:       raw.UserAgent,
		RefreshSchedule: raw.RefreshSchedule,
		OverlapPolicy:   policy,
		Debug:           raw.Debug,
		Version:         GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Cfg) error {
	if cfg.Port == "" {
		return fmt.Errorf("port is required")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	if cfg.SourceURL == "" {
		return fmt.Errorf("source URL is required")
	}
	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must be non-negative")
	}
	if cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown timeout must be non-negative")
	}
	if cfg.RequestRate < 0 {
		return fmt.Errorf("request rate must be non-negative")
	}
	if cfg.RequestBurst < 1 {
		return fmt.Errorf("request burst must be at least 1")
	}
	if _, err := cron.ParseStandard(cfg.RefreshSchedule); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", cfg.RefreshSchedule, err)
	}
	return nil
}

func cleanCountries(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lysyi3m/uni-comb/app/metrics"
	"github.com/lysyi3m/uni-comb/app/university"
)

type Options struct {
	BaseURL        string
	Countries      []string
	UserAgent      string
	RequestTimeout time.Duration
	RequestRate    float64
	RequestBurst   int
	HTTPClient     *http.Client
	Metrics        *metrics.Metrics
}

// Gateway queries the directory API once per country, concurrently.
type Gateway struct {
	baseURL    string
	countries  []string
	userAgent  string
	timeout    time.Duration
	limiter    *rate.Limiter
	httpClient *http.Client
	metrics    *metrics.Metrics
}

func NewGateway(opts Options) *Gateway {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}

	limit := rate.Inf
	if opts.RequestRate > 0 {
		limit = rate.Limit(opts.RequestRate)
	}
	burst := opts.RequestBurst
	if burst <= 0 {
		burst = 1
	}

	countries := make([]string, len(opts.Countries))
	copy(countries, opts.Countries)

	return &Gateway{
		baseURL:    opts.BaseURL,
		countries:  countries,
		userAgent:  opts.UserAgent,
		timeout:    opts.RequestTimeout,
		limiter:    rate.NewLimiter(limit, burst),
		httpClient: httpClient,
		metrics:    opts.Metrics,
	}
}

func (g *Gateway) Countries() []string {
	out := make([]string, len(g.countries))
	copy(out, g.countries)
	return out
}

// Run fetches every configured country and waits for all of them to settle.
// A failing country contributes no records and never affects the others.
// The returned error is only set when ctx ended before the fan-out finished.
func (g *Gateway) Run(ctx context.Context) (*Result, error) {
	batches := make([][]university.RawRecord, len(g.countries))
	outcomes := make([]CountryOutcome, len(g.countries))

	var eg errgroup.Group
	for i, country := range g.countries {
		eg.Go(func() error {
			records, err := g.fetchCountry(ctx, country)
			outcome := CountryOutcome{Country: country, OK: err == nil, Records: len(records)}
			if err != nil {
				outcome.Error = err.Error()
				slog.Warn("Country fetch failed", "country", country, "error", err)
			} else {
				slog.Debug("Country fetched", "country", country, "records", len(records))
			}
			g.metrics.ObserveFetch(country, err == nil, len(records))

			batches[i] = records
			outcomes[i] = outcome
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extraction interrupted: %w", err)
	}

	total := 0
	for _, batch := range batches {
		total += len(batch)
	}
	result := &Result{
		Records:   make([]university.RawRecord, 0, total),
		Countries: outcomes,
	}
	for _, batch := range batches {
		result.Records = append(result.Records, batch...)
	}

	slog.Info("Extraction completed",
		"countries", len(g.countries),
		"failed", result.Failed(),
		"records", len(result.Records))

	return result, nil
}

func (g *Gateway) fetchCountry(ctx context.Context, country string) ([]university.RawRecord, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	endpoint, err := g.countryURL(country)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	items, ok := payload.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T, want array", payload)
	}

	records := make([]university.RawRecord, 0, len(items))
	for _, item := range items {
		// Non-object entries stay in the batch as empty records so the
		// normalizer accounts for them as dropped.
		obj, _ := item.(map[string]any)
		records = append(records, university.RawRecord(obj))
	}

	return records, nil
}

func (g *Gateway) countryURL(country string) (string, error) {
	u, err := url.Parse(g.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid source URL %q: %w", g.baseURL, err)
	}
	q := u.Query()
	q.Set("country", country)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Package airquality wraps the WAQI (World Air Quality Index) feed API for
// BreatheCheck.
//
// Lookups never surface errors to the caller: any network, decode, or
// provider failure degrades to an unavailable reading so an unreachable
// provider can never abort an assessment.
package airquality

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/BTreeMap/BreatheCheck/internal/models"
)

// Default configuration for the WAQI client.
const (
	// DefaultBaseURL is the WAQI feed endpoint.
	DefaultBaseURL = "https://api.waqi.info"
	// DefaultTimeout bounds a single lookup so one slow provider call cannot
	// stall a user's turn.
	DefaultTimeout = 5 * time.Second
)

// Client is the air-quality lookup contract consumed by the assessment
// engine.
type Client interface {
	Lookup(ctx context.Context, city string) models.AQIReading
}

// Opts holds configuration options for the WAQI client.
type Opts struct {
	Token      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option defines a configuration option for the WAQI client.
type Option func(*Opts)

// WithToken sets the WAQI API token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithBaseURL overrides the WAQI endpoint (used in tests).
func WithBaseURL(baseURL string) Option {
	return func(o *Opts) { o.BaseURL = baseURL }
}

// WithTimeout sets the per-lookup timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Opts) { o.Timeout = timeout }
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = client }
}

// WAQIClient fetches AQI readings from the WAQI feed API.
type WAQIClient struct {
	token      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewWAQIClient creates a WAQI client, applying any provided options.
func NewWAQIClient(opts ...Option) *WAQIClient {
	cfg := Opts{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	slog.Debug("WAQI client created", "base_url", cfg.BaseURL, "token_set", cfg.Token != "", "timeout", cfg.Timeout)
	return &WAQIClient{
		token:      cfg.Token,
		baseURL:    cfg.BaseURL,
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
	}
}

// waqiFeed mirrors the WAQI feed response envelope.
type waqiFeed struct {
	Status string `json:"status"`
	Data   struct {
		AQI json.Number `json:"aqi"`
	} `json:"data"`
}

// Lookup fetches the AQI reading for a city. Every failure path returns an
// unavailable reading; the cause is logged, never propagated.
func (c *WAQIClient) Lookup(ctx context.Context, city string) models.AQIReading {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/feed/%s/?token=%s", c.baseURL, url.PathEscape(city), url.QueryEscape(c.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		slog.Error("WAQI request build failed", "error", err, "city", city)
		return models.AQIReading{}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("WAQI lookup failed, treating as unavailable", "error", err, "city", city)
		return models.AQIReading{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("WAQI lookup returned non-OK status, treating as unavailable", "status", resp.StatusCode, "city", city)
		return models.AQIReading{}
	}

	var feed waqiFeed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		slog.Warn("WAQI response decode failed, treating as unavailable", "error", err, "city", city)
		return models.AQIReading{}
	}
	if feed.Status != "ok" {
		slog.Warn("WAQI provider reported error status, treating as unavailable", "provider_status", feed.Status, "city", city)
		return models.AQIReading{}
	}

	// Some stations report the AQI as a string such as "-"; only a clean
	// integer counts as an available reading.
	value, err := feed.Data.AQI.Int64()
	if err != nil {
		slog.Warn("WAQI reading is not numeric, treating as unavailable", "raw", feed.Data.AQI.String(), "city", city)
		return models.AQIReading{}
	}

	slog.Debug("WAQI lookup succeeded", "city", city, "aqi", value)
	return models.AQIReading{Value: int(value), Available: true}
}

// StaticClient returns a fixed reading for every city. It backs tests and
// deployments without a WAQI token.
type StaticClient struct {
	Reading models.AQIReading
}

// Lookup returns the configured reading regardless of city.
func (s *StaticClient) Lookup(ctx context.Context, city string) models.AQIReading {
	return s.Reading
}

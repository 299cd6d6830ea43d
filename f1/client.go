package f1

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/shaharia-lab/f1mcp/fetch"
	"github.com/shaharia-lab/f1mcp/observability"
)

const (
	defaultErgastBaseURL = "https://ergast.com/api/f1"
	defaultOpenF1BaseURL = "https://api.openf1.org/v1"

	defaultHTTPTimeout       = 15 * time.Second
	defaultRequestsPerSecond = 4.0
	defaultBurst             = 2
)

// Provider is the capability the data service depends on: fetch one query
// descriptor from upstream. The backoff client wraps calls to it.
type Provider interface {
	Fetch(ctx context.Context, q Query) (json.RawMessage, error)
}

// ClientConfig holds the HTTP provider configuration.
type ClientConfig struct {
	ErgastBaseURL     string
	OpenF1BaseURL     string
	HTTPTimeout       time.Duration
	RequestsPerSecond float64
	Burst             int
}

// DefaultClientConfig returns the provider endpoints and rate limits used
// when no configuration is given.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ErgastBaseURL:     defaultErgastBaseURL,
		OpenF1BaseURL:     defaultOpenF1BaseURL,
		HTTPTimeout:       defaultHTTPTimeout,
		RequestsPerSecond: defaultRequestsPerSecond,
		Burst:             defaultBurst,
	}
}

// Client fetches F1 data over HTTP from the Ergast archive API (schedule,
// results, standings, laps) and the OpenF1 live-data API (sessions,
// telemetry, weather, race control). Both providers rate-limit aggressively,
// so every request first passes a shared limiter.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  observability.Logger
}

// NewClient creates a Client. Zero values in cfg fall back to the defaults.
func NewClient(cfg ClientConfig, logger observability.Logger) *Client {
	if cfg.ErgastBaseURL == "" {
		cfg.ErgastBaseURL = defaultErgastBaseURL
	}
	if cfg.OpenF1BaseURL == "" {
		cfg.OpenF1BaseURL = defaultOpenF1BaseURL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if logger == nil {
		logger = observability.NewNullLogger()
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
	}
}

// Fetch implements Provider.
func (c *Client) Fetch(ctx context.Context, q Query) (json.RawMessage, error) {
	endpoint, err := c.endpoint(q)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait cancelled: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.WithFields(map[string]interface{}{
		"kind": string(q.Kind),
		"url":  endpoint,
	}).Debug("Fetching upstream data")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &fetch.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        endpoint,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("upstream returned malformed JSON from %s", endpoint)
	}

	return body, nil
}

// endpoint maps a query descriptor onto a concrete provider URL.
func (c *Client) endpoint(q Query) (string, error) {
	switch q.Kind {
	case QuerySchedule:
		return fmt.Sprintf("%s/%d.json", c.cfg.ErgastBaseURL, q.Season), nil

	case QueryRaceResults:
		if q.Round != "" {
			return fmt.Sprintf("%s/%d/%s/results.json", c.cfg.ErgastBaseURL, q.Season, url.PathEscape(q.Round)), nil
		}
		return fmt.Sprintf("%s/%d/results.json", c.cfg.ErgastBaseURL, q.Season), nil

	case QueryDriverStandings:
		if q.Round != "" {
			return fmt.Sprintf("%s/%d/%s/driverStandings.json", c.cfg.ErgastBaseURL, q.Season, url.PathEscape(q.Round)), nil
		}
		return fmt.Sprintf("%s/%d/driverStandings.json", c.cfg.ErgastBaseURL, q.Season), nil

	case QueryConstructorStandings:
		if q.Round != "" {
			return fmt.Sprintf("%s/%d/%s/constructorStandings.json", c.cfg.ErgastBaseURL, q.Season, url.PathEscape(q.Round)), nil
		}
		return fmt.Sprintf("%s/%d/constructorStandings.json", c.cfg.ErgastBaseURL, q.Season), nil

	case QueryDrivers:
		return fmt.Sprintf("%s/%d/drivers.json", c.cfg.ErgastBaseURL, q.Season), nil

	case QueryConstructors:
		return fmt.Sprintf("%s/%d/constructors.json", c.cfg.ErgastBaseURL, q.Season), nil

	case QueryDriverResults:
		return fmt.Sprintf("%s/%d/drivers/%s/results.json", c.cfg.ErgastBaseURL, q.Season, url.PathEscape(q.Driver)), nil

	case QueryCircuit:
		return fmt.Sprintf("%s/circuits/%s/results/1/fastest/1.json", c.cfg.ErgastBaseURL, url.PathEscape(q.Circuit)), nil

	case QueryLaps:
		if q.Driver != "" {
			return fmt.Sprintf("%s/%d/%s/drivers/%s/laps.json", c.cfg.ErgastBaseURL, q.Season, url.PathEscape(q.Round), url.PathEscape(q.Driver)), nil
		}
		return fmt.Sprintf("%s/%d/%s/laps.json", c.cfg.ErgastBaseURL, q.Season, url.PathEscape(q.Round)), nil

	case QuerySessions, QueryCarTelemetry, QueryWeather, QueryRaceControl:
		return c.openF1Endpoint(q), nil

	default:
		return "", fmt.Errorf("unknown query kind: %s", q.Kind)
	}
}

func (c *Client) openF1Endpoint(q Query) string {
	values := url.Values{}
	if q.Season > 0 {
		values.Set("year", strconv.Itoa(q.Season))
	}
	if q.Round != "" {
		values.Set("country_name", q.Round)
	}
	if q.Session != "" {
		values.Set("session_name", q.Session)
	}
	if q.Driver != "" {
		values.Set("driver_number", q.Driver)
	}
	if q.Lap > 0 {
		values.Set("lap_number", strconv.Itoa(q.Lap))
	}

	endpoint := fmt.Sprintf("%s/%s", c.cfg.OpenF1BaseURL, string(q.Kind))
	if encoded := values.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	return endpoint
}

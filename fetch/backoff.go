package fetch

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"time"

	"github.com/shaharia-lab/f1mcp/observability"
)

const (
	defaultMaxAttempts = 4
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMultiplier  = 2.0
	defaultCallTimeout = 30 * time.Second
)

// Operation is a single outbound call against an upstream provider.
type Operation func(ctx context.Context) (json.RawMessage, error)

// Config holds the retry policy for a Client.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	Jitter      bool
	// Timeout bounds the whole call including every retry attempt.
	Timeout time.Duration
}

// DefaultConfig returns the retry policy used when no configuration is given.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		Multiplier:  defaultMultiplier,
		Jitter:      true,
		Timeout:     defaultCallTimeout,
	}
}

// Client wraps outbound calls with bounded retries and exponential delays.
// It knows nothing about caching or the protocol layer.
type Client struct {
	cfg    Config
	logger observability.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client with the given retry policy. Zero values in cfg
// fall back to the defaults.
func NewClient(cfg Config, logger observability.Logger) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = defaultMultiplier
	}
	if logger == nil {
		logger = observability.NewNullLogger()
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Call runs op until it succeeds, fails permanently, or the retry budget or
// the overall deadline runs out. Transient failures are retried with delays
// of BaseDelay * Multiplier^(n-2) before attempt n.
func (c *Client) Call(ctx context.Context, op Operation) (json.RawMessage, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.delay(attempt)
			c.logger.WithFields(map[string]interface{}{
				"attempt": attempt,
				"delay":   delay.String(),
			}).Debug("Retrying upstream call")

			if err := c.sleep(ctx, delay); err != nil {
				return nil, &Error{Kind: KindTimeout, Attempts: attempt - 1, Err: lastErr}
			}
		}

		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, &Error{Kind: KindTimeout, Attempts: attempt, Err: err}
		}
		if !Transient(err) {
			return nil, &Error{Kind: KindPermanent, Attempts: attempt, Err: err}
		}

		c.logger.WithErr(err).WithFields(map[string]interface{}{
			"attempt": attempt,
		}).Warn("Transient upstream failure")
	}

	return nil, &Error{Kind: KindExhausted, Attempts: c.cfg.MaxAttempts, Err: lastErr}
}

// delay computes the pause before attempt n (n >= 2). Jitter adds up to 25%.
func (c *Client) delay(attempt int) time.Duration {
	d := float64(c.cfg.BaseDelay) * math.Pow(c.cfg.Multiplier, float64(attempt-2))
	if c.cfg.Jitter {
		d += d * 0.25 * rand.Float64()
	}
	return time.Duration(d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

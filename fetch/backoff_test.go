package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient returns a Client whose sleeps are recorded instead of slept.
func newTestClient(cfg Config) (*Client, *[]time.Duration) {
	client := NewClient(cfg, nil)
	recorded := &[]time.Duration{}
	client.sleep = func(ctx context.Context, d time.Duration) error {
		*recorded = append(*recorded, d)
		return nil
	}
	return client, recorded
}

func transientErr() error {
	return &HTTPError{StatusCode: http.StatusServiceUnavailable, Status: "503 Service Unavailable", URL: "http://example.test"}
}

func TestCallSucceedsFirstAttempt(t *testing.T) {
	client, sleeps := newTestClient(Config{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, Multiplier: 2, Timeout: time.Minute})

	attempts := 0
	value, err := client.Call(context.Background(), func(ctx context.Context) (json.RawMessage, error) {
		attempts++
		return json.RawMessage(`"ok"`), nil
	})

	require.NoError(t, err)
	assert.Equal(t, `"ok"`, string(value))
	assert.Equal(t, 1, attempts)
	assert.Empty(t, *sleeps)
}

func TestCallRetriesTransientFailures(t *testing.T) {
	client, sleeps := newTestClient(Config{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, Multiplier: 2, Timeout: time.Minute})

	attempts := 0
	value, err := client.Call(context.Background(), func(ctx context.Context) (json.RawMessage, error) {
		attempts++
		if attempts < 3 {
			return nil, transientErr()
		}
		return json.RawMessage(`"recovered"`), nil
	})

	require.NoError(t, err)
	assert.Equal(t, `"recovered"`, string(value))
	assert.Equal(t, 3, attempts)

	// One sleep before each retry, exponentially growing.
	require.Len(t, *sleeps, 2)
	assert.Equal(t, 100*time.Millisecond, (*sleeps)[0])
	assert.Equal(t, 200*time.Millisecond, (*sleeps)[1])
}

func TestCallDelaysNeverDecrease(t *testing.T) {
	client, sleeps := newTestClient(Config{MaxAttempts: 6, BaseDelay: 50 * time.Millisecond, Multiplier: 2, Jitter: true, Timeout: time.Minute})

	_, err := client.Call(context.Background(), func(ctx context.Context) (json.RawMessage, error) {
		return nil, transientErr()
	})
	require.Error(t, err)

	require.Len(t, *sleeps, 5)
	for i := 1; i < len(*sleeps); i++ {
		assert.GreaterOrEqual(t, (*sleeps)[i], (*sleeps)[i-1])
	}
}

func TestCallPermanentFailureNoRetry(t *testing.T) {
	client, sleeps := newTestClient(Config{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, Multiplier: 2, Timeout: time.Minute})

	attempts := 0
	_, err := client.Call(context.Background(), func(ctx context.Context) (json.RawMessage, error) {
		attempts++
		return nil, &HTTPError{StatusCode: http.StatusNotFound, Status: "404 Not Found", URL: "http://example.test"}
	})

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindPermanent, fetchErr.Kind)
	assert.Equal(t, 1, fetchErr.Attempts)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, *sleeps)
}

func TestCallExhaustsRetryBudget(t *testing.T) {
	client, _ := newTestClient(Config{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, Multiplier: 2, Timeout: time.Minute})

	attempts := 0
	_, err := client.Call(context.Background(), func(ctx context.Context) (json.RawMessage, error) {
		attempts++
		return nil, transientErr()
	})

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindExhausted, fetchErr.Kind)
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.Equal(t, 3, attempts)

	var httpErr *HTTPError
	assert.ErrorAs(t, err, &httpErr, "the last upstream error must stay unwrappable")
}

func TestCallTimeout(t *testing.T) {
	client := NewClient(Config{MaxAttempts: 10, BaseDelay: 10 * time.Millisecond, Multiplier: 2, Timeout: 25 * time.Millisecond}, nil)

	_, err := client.Call(context.Background(), func(ctx context.Context) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindTimeout, fetchErr.Kind)
}

func TestCallCancelledContext(t *testing.T) {
	client, _ := newTestClient(Config{MaxAttempts: 4, BaseDelay: 10 * time.Millisecond, Multiplier: 2, Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := client.Call(ctx, func(ctx context.Context) (json.RawMessage, error) {
		cancel()
		return nil, transientErr()
	})

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindTimeout, fetchErr.Kind)
}

func TestTransientClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"connection reset", syscall.ECONNRESET, true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"unexpected EOF", io.ErrUnexpectedEOF, true},
		{"http 429", &HTTPError{StatusCode: http.StatusTooManyRequests}, true},
		{"http 500", &HTTPError{StatusCode: http.StatusInternalServerError}, true},
		{"http 503", &HTTPError{StatusCode: http.StatusServiceUnavailable}, true},
		{"http 400", &HTTPError{StatusCode: http.StatusBadRequest}, false},
		{"http 404", &HTTPError{StatusCode: http.StatusNotFound}, false},
		{"plain error", errors.New("malformed payload"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, Transient(tt.err))
		})
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	inner := transientErr()
	err := &Error{Kind: KindExhausted, Attempts: 4, Err: inner}

	assert.Contains(t, err.Error(), "4")
	assert.ErrorIs(t, err, inner)
}

// Package fetch downloads individual tiles from a slippy tile server and
// persists them into the on-disk cache, retrying transient failures with
// exponential backoff behind a circuit breaker.
package fetch

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Predefined errors for tile fetch operations.
var (
	// ErrCircuitOpen is returned when the tile server circuit breaker is
	// open and requests are being shed.
	ErrCircuitOpen = errors.New("fetch: circuit breaker is open")

	// ErrMalformedTile is returned when the server responds 2xx but the
	// payload is not an image.
	ErrMalformedTile = errors.New("fetch: response payload is not an image")
)

// StatusError reports a non-2xx response from the tile server.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: tile server returned %d %s", e.Code, http.StatusText(e.Code))
}

// Transient reports whether the status is worth retrying. Server errors
// and rate-limit responses are transient; other client errors are not.
func (e *StatusError) Transient() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// ClientConfig holds configuration for the tile server client.
type ClientConfig struct {
	// Name identifies the client for circuit breaker state.
	Name string

	// Timeout bounds each individual HTTP attempt. Default: 10s.
	Timeout time.Duration

	// UserAgent sent with every request, as tile server usage policies
	// require. Default: "slippyfetch".
	UserAgent string

	// ReadyToTrip overrides when the circuit breaker opens. If nil, the
	// breaker trips at 5+ requests with a 50% failure rate.
	ReadyToTrip func(counts gobreaker.Counts) bool
}

// Client performs single tile GET attempts through a circuit breaker.
// Retry policy lives in the Worker; the breaker counts every attempt so
// that a misbehaving server is backed away from across all workers.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	userAgent  string
}

// NewClient creates a tile server client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "slippyfetch"
	}
	readyToTrip := cfg.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		}
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: 1,
			Timeout:     60 * time.Second,
			ReadyToTrip: readyToTrip,
			// Client errors (404 and friends) say nothing about server
			// health; only transient failures count against the breaker.
			IsSuccessful: func(err error) bool {
				return err == nil || !transient(err)
			},
		}),
		userAgent: cfg.UserAgent,
	}
}

// Get performs one GET attempt for url and returns the image bytes.
// Failures come back as *StatusError, ErrMalformedTile, ErrCircuitOpen,
// or the underlying transport error.
func (c *Client) Get(req *http.Request) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		resp, err := c.do(req)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode}
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("%w: content type %q", ErrMalformedTile, ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tile body: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedTile)
	}
	return body, nil
}

// transient reports whether an attempt error should be retried.
func transient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	if errors.Is(err, ErrMalformedTile) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	// Anything else is a transport-level failure (timeout, refused
	// connection, reset) and worth another attempt.
	return true
}

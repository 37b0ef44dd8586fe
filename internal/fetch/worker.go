package fetch

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/slippyfetch/slippyfetch/internal/metrics"
	"github.com/slippyfetch/slippyfetch/internal/slippy"
)

// WriteError reports a failure persisting a downloaded tile to the cache
// directory. It is permanent for the attempt; the tile is not marked
// cached.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("fetch: write tile %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// WorkerConfig holds configuration for the download worker.
type WorkerConfig struct {
	// Endpoint is the tile server base URL.
	Endpoint string

	// CacheRoot is the directory tiles are persisted under.
	CacheRoot string

	// MaxRetries is the number of additional attempts after the first
	// for transient failures.
	MaxRetries uint64

	// InitialInterval is the first retry backoff delay. Default: 100ms.
	InitialInterval time.Duration

	// MaxInterval caps the retry backoff delay. Default: 5s.
	MaxInterval time.Duration

	// Client performs the HTTP attempts. If nil, a default client named
	// after the endpoint is created.
	Client *Client

	Logger zerolog.Logger
}

// Worker downloads a single tile: it builds the request URL, fetches the
// image bytes, and writes them to the cache path atomically. Transient
// failures are retried with jittered exponential backoff; permanent
// failures stop immediately.
type Worker struct {
	endpoint        string
	cacheRoot       string
	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
	client          *Client
	logger          zerolog.Logger
	tracer          trace.Tracer
}

// NewWorker creates a download worker.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = NewClient(ClientConfig{Name: cfg.Endpoint})
	}

	return &Worker{
		endpoint:        cfg.Endpoint,
		cacheRoot:       cfg.CacheRoot,
		maxRetries:      cfg.MaxRetries,
		initialInterval: cfg.InitialInterval,
		maxInterval:     cfg.MaxInterval,
		client:          cfg.Client,
		logger:          cfg.Logger,
		tracer:          otel.Tracer("slippyfetch/fetch"),
	}
}

// Fetch downloads the tile and persists it, returning the cache path and
// the number of attempts made. After MaxRetries+1 transient failures, or
// one permanent failure, the last error is returned.
func (w *Worker) Fetch(ctx context.Context, key slippy.Key) (string, int, error) {
	ctx, span := w.tracer.Start(ctx, "tile.fetch", trace.WithAttributes(
		attribute.Int64("tile.x", int64(key.X)),
		attribute.Int64("tile.y", int64(key.Y)),
		attribute.Int("tile.zoom", int(key.Zoom)),
		attribute.String("tile.size", key.Size.String()),
	))
	defer span.End()

	url := key.URL(w.endpoint)
	path := key.Path(w.cacheRoot)
	attempts := 0

	operation := func() error {
		attempts++
		start := time.Now()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build tile request: %w", err))
		}

		metrics.UpstreamRequests.Inc()
		body, err := w.client.Get(req)
		metrics.UpstreamLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			w.logger.Warn().
				Str("url", url).
				Int("attempt", attempts).
				Err(err).
				Msg("tile fetch attempt failed")
			if !transient(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		if err := w.persist(path, body); err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.initialInterval
	bo.MaxInterval = w.maxInterval
	bo.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, w.maxRetries), ctx))
	if err != nil {
		span.RecordError(err)
		return "", attempts, err
	}

	w.logger.Debug().
		Str("path", path).
		Int("attempts", attempts).
		Msg("tile downloaded")
	return path, attempts, nil
}

// persist writes the tile bytes under a temporary name and renames into
// place, so a crashed write can never be mistaken for a cached tile.
func (w *Worker) persist(path string, body []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp")
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &WriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

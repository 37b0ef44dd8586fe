// Package dispatch turns download requests into scheduled tile fetches:
// it expands a request into the tile set, filters duplicates through the
// cache ledger, runs eligible tiles through the rate-limited download
// pipeline, and delivers one completion notification per terminal tile.
package dispatch

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/slippyfetch/slippyfetch/internal/cache"
	"github.com/slippyfetch/slippyfetch/internal/config"
	"github.com/slippyfetch/slippyfetch/internal/fetch"
	"github.com/slippyfetch/slippyfetch/internal/limiter"
	"github.com/slippyfetch/slippyfetch/internal/metrics"
	"github.com/slippyfetch/slippyfetch/internal/slippy"
)

// Request asks for the tiles around a center coordinate at one zoom
// level. Radius is a Chebyshev distance: radius n covers a (2n+1)^2
// square, clipped to the grid. With UseCache set, tiles already on disk
// are served from the cache; without it every tile is re-downloaded.
type Request struct {
	Size     slippy.TileSize
	Zoom     slippy.ZoomLevel
	Center   slippy.Coordinates
	Radius   uint8
	UseCache bool
}

// Notification reports one tile reaching a terminal state. Err is nil on
// success, in which case Path points at the cached tile image. Attempts
// is zero for tiles served from the cache without a download.
type Notification struct {
	RequestID uuid.UUID
	Tile      slippy.Key
	Path      string
	Attempts  int
	Err       error
}

// Failed reports whether the tile reached terminal failure.
func (n Notification) Failed() bool {
	return n.Err != nil
}

// Dispatcher schedules tile downloads. Submit is synchronous up to
// validation and deduplication; actual downloads run in per-tile
// goroutines and report through the notification channel.
type Dispatcher struct {
	settings *config.Settings
	logger   zerolog.Logger
	ledger   *cache.Ledger
	limiter  *limiter.Limiter
	worker   *fetch.Worker
	tracer   trace.Tracer

	notifications chan Notification
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

// New creates a dispatcher over the given settings. The settings are
// validated here; a validation error is the only construction failure.
func New(settings *config.Settings, logger zerolog.Logger) (*Dispatcher, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	lim, err := limiter.New(
		int64(settings.MaxConcurrentDownloads),
		settings.RateLimitRequests,
		settings.RateLimitWindow,
	)
	if err != nil {
		return nil, err
	}

	worker := fetch.NewWorker(fetch.WorkerConfig{
		Endpoint:        settings.Endpoint,
		CacheRoot:       settings.TilesDirectory,
		MaxRetries:      uint64(settings.MaxRetries),
		InitialInterval: settings.RetryInitialInterval,
		MaxInterval:     settings.RetryMaxInterval,
		Client: fetch.NewClient(fetch.ClientConfig{
			Name:      settings.Endpoint,
			Timeout:   settings.HTTPTimeout,
			UserAgent: settings.UserAgent,
		}),
		Logger: logger,
	})

	return &Dispatcher{
		settings:      settings,
		logger:        logger,
		ledger:        cache.NewLedger(settings.TilesDirectory),
		limiter:       lim,
		worker:        worker,
		tracer:        otel.Tracer("slippyfetch/dispatch"),
		notifications: make(chan Notification, settings.NotificationBuffer),
	}, nil
}

// Notifications returns the channel terminal tile states are delivered
// on. Consumers must drain it; delivery blocks once the buffer fills.
func (d *Dispatcher) Notifications() <-chan Notification {
	return d.notifications
}

// Submit validates and expands a request and schedules its tiles.
// It returns the number of notifications the request will produce:
// scheduled downloads plus cache hits. Tiles already being downloaded by
// an earlier request are absorbed silently — the earlier task's
// notification serves any duplicate requester.
//
// Validation failures (bad coordinate or zoom) reject the whole request
// before any task is created.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (int, error) {
	ctx, span := d.tracer.Start(ctx, "tiles.submit", trace.WithAttributes(
		attribute.Int("tiles.zoom", int(req.Zoom)),
		attribute.Int("tiles.radius", int(req.Radius)),
	))
	defer span.End()

	if err := req.Zoom.Validate(); err != nil {
		return 0, err
	}
	center, err := req.Center.Resolve(req.Zoom)
	if err != nil {
		return 0, err
	}

	id := uuid.New()
	tiles := slippy.Expand(center, req.Radius, req.Zoom)
	pending := 0

	for _, tc := range tiles {
		key := slippy.Key{X: tc.X, Y: tc.Y, Zoom: req.Zoom, Size: req.Size}

		if !d.ledger.TryReserve(key, req.UseCache) {
			if req.UseCache && d.ledger.IsCached(key) {
				// Already on disk: report the existing file, no download.
				metrics.CacheHits.Inc()
				pending++
				d.wg.Add(1)
				go func(key slippy.Key) {
					defer d.wg.Done()
					d.notifications <- Notification{RequestID: id, Tile: key, Path: d.ledger.Path(key)}
				}(key)
				continue
			}
			metrics.DuplicatesAbsorbed.Inc()
			d.logger.Debug().Stringer("tile", key).Msg("duplicate tile request absorbed")
			continue
		}

		metrics.CacheMisses.Inc()
		pending++
		d.wg.Add(1)
		go d.download(ctx, id, key)
	}

	d.logger.Info().
		Str("request_id", id.String()).
		Int("expanded", len(tiles)).
		Int("pending", pending).
		Msg("download request scheduled")
	return pending, nil
}

// download runs one tile task to its terminal state: acquire a permit,
// fetch, release the ledger reservation, notify.
func (d *Dispatcher) download(ctx context.Context, id uuid.UUID, key slippy.Key) {
	defer d.wg.Done()

	permit, err := d.limiter.Acquire(ctx)
	if err != nil {
		d.terminal(id, key, "", 0, err)
		return
	}
	defer permit.Release()

	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	path, attempts, err := d.worker.Fetch(ctx, key)
	d.terminal(id, key, path, attempts, err)
}

// terminal releases the ledger entry and emits the tile's one
// notification.
func (d *Dispatcher) terminal(id uuid.UUID, key slippy.Key, path string, attempts int, err error) {
	d.ledger.Release(key, err == nil)

	if err != nil {
		metrics.DownloadsFailed.Inc()
		d.logger.Warn().
			Str("request_id", id.String()).
			Stringer("tile", key).
			Int("attempts", attempts).
			Err(err).
			Msg("tile download failed")
		d.notifications <- Notification{RequestID: id, Tile: key, Attempts: attempts, Err: err}
		return
	}

	metrics.DownloadsSucceeded.Inc()
	d.notifications <- Notification{RequestID: id, Tile: key, Path: path, Attempts: attempts}
}

// Close waits for all in-flight tiles and closes the notification
// channel. No Submit may run concurrently with or after Close.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.wg.Wait()
		close(d.notifications)
	})
}

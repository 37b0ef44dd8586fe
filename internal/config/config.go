// Package config holds the process-wide settings for the tile download
// pipeline. Settings are immutable after construction and shared by the
// dispatcher, limiter, and workers.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrInvalidSettings is wrapped by every validation failure.
var ErrInvalidSettings = errors.New("config: invalid settings")

// Settings configures the tile download pipeline. Construct via Load or
// a struct literal, then call Validate before use; validation failure is
// the only startup-fatal condition.
type Settings struct {
	// Endpoint is the slippy tile server base URL, queried as
	// <endpoint>/<zoom>/<x>/<y>.png.
	Endpoint string `env:"SLIPPYFETCH_ENDPOINT" envDefault:"https://tile.openstreetmap.org"`

	// TilesDirectory is the cache root; tiles land at
	// <dir>/<size>/<zoom>/<x>/<y>.png.
	TilesDirectory string `env:"SLIPPYFETCH_TILES_DIRECTORY" envDefault:"tiles"`

	// MaxConcurrentDownloads bounds simultaneous downloads.
	MaxConcurrentDownloads int `env:"SLIPPYFETCH_MAX_CONCURRENT_DOWNLOADS" envDefault:"4"`

	// MaxRetries is the number of extra attempts after the first for
	// transient download failures.
	MaxRetries int `env:"SLIPPYFETCH_MAX_RETRIES" envDefault:"3"`

	// RateLimitRequests admissions are allowed per RateLimitWindow.
	RateLimitRequests int           `env:"SLIPPYFETCH_RATE_LIMIT_REQUESTS" envDefault:"10"`
	RateLimitWindow   time.Duration `env:"SLIPPYFETCH_RATE_LIMIT_WINDOW" envDefault:"1s"`

	// HTTPTimeout bounds each individual tile server attempt.
	HTTPTimeout time.Duration `env:"SLIPPYFETCH_HTTP_TIMEOUT" envDefault:"10s"`

	// RetryInitialInterval and RetryMaxInterval shape the exponential
	// backoff between attempts.
	RetryInitialInterval time.Duration `env:"SLIPPYFETCH_RETRY_INITIAL_INTERVAL" envDefault:"100ms"`
	RetryMaxInterval     time.Duration `env:"SLIPPYFETCH_RETRY_MAX_INTERVAL" envDefault:"5s"`

	// UserAgent is sent with every tile request, as server usage
	// policies require.
	UserAgent string `env:"SLIPPYFETCH_USER_AGENT" envDefault:"slippyfetch"`

	// NotificationBuffer sizes the completion notification channel.
	NotificationBuffer int `env:"SLIPPYFETCH_NOTIFICATION_BUFFER" envDefault:"256"`

	// ReferenceLat/ReferenceLon and LayerZ are consumed by the host
	// application's rendering layer when placing tiles; the download
	// pipeline only validates and carries them.
	ReferenceLat float64 `env:"SLIPPYFETCH_REFERENCE_LAT" envDefault:"0"`
	ReferenceLon float64 `env:"SLIPPYFETCH_REFERENCE_LON" envDefault:"0"`
	LayerZ       float64 `env:"SLIPPYFETCH_LAYER_Z" envDefault:"0"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `env:"SLIPPYFETCH_LOG_LEVEL" envDefault:"info"`

	// OTLPEndpoint and TracingEnabled configure OpenTelemetry export.
	OTLPEndpoint   string `env:"SLIPPYFETCH_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	TracingEnabled bool   `env:"SLIPPYFETCH_TRACING_ENABLED" envDefault:"false"`
}

// Load reads settings from the environment, with an optional .env file,
// and validates them.
func Load() (*Settings, error) {
	// A missing .env file is fine; the environment alone may be complete.
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Settings]()
	if err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the constraints the pipeline depends on.
func (s *Settings) Validate() error {
	if s.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidSettings)
	}
	if u, err := url.Parse(s.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: endpoint %q is not an absolute URL", ErrInvalidSettings, s.Endpoint)
	}
	if s.TilesDirectory == "" {
		return fmt.Errorf("%w: tiles directory is required", ErrInvalidSettings)
	}
	if s.MaxConcurrentDownloads <= 0 {
		return fmt.Errorf("%w: max concurrent downloads must be positive, got %d", ErrInvalidSettings, s.MaxConcurrentDownloads)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative, got %d", ErrInvalidSettings, s.MaxRetries)
	}
	if s.RateLimitRequests <= 0 {
		return fmt.Errorf("%w: rate limit requests must be positive, got %d", ErrInvalidSettings, s.RateLimitRequests)
	}
	if s.RateLimitWindow <= 0 {
		return fmt.Errorf("%w: rate limit window must be positive, got %s", ErrInvalidSettings, s.RateLimitWindow)
	}
	if s.RetryInitialInterval <= 0 || s.RetryMaxInterval < s.RetryInitialInterval {
		return fmt.Errorf("%w: retry intervals must be positive and ordered", ErrInvalidSettings)
	}
	if s.NotificationBuffer < 0 {
		return fmt.Errorf("%w: notification buffer must not be negative, got %d", ErrInvalidSettings, s.NotificationBuffer)
	}
	return nil
}

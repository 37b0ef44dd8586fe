// Package main provides the slippyfetch command line tool: it downloads
// the map tiles around a coordinate into the local tile cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/slippyfetch/slippyfetch/internal/config"
	"github.com/slippyfetch/slippyfetch/internal/dispatch"
	"github.com/slippyfetch/slippyfetch/internal/slippy"
	"github.com/slippyfetch/slippyfetch/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	const serviceName = "slippyfetch"

	fs := flag.NewFlagSet(serviceName, flag.ExitOnError)
	lat := fs.Float64("lat", 0, "Latitude of the area center (required unless -x/-y given)")
	lon := fs.Float64("lon", 0, "Longitude of the area center")
	tileX := fs.Int("x", -1, "Tile X coordinate of the area center (alternative to -lat/-lon)")
	tileY := fs.Int("y", -1, "Tile Y coordinate of the area center")
	zoom := fs.Uint("zoom", 15, "Zoom level (0-19)")
	radius := fs.Uint("radius", 2, "Tiles to fetch around the center in each direction")
	large := fs.Bool("large", false, "Request 512px (@2x) tiles")
	noCache := fs.Bool("no-cache", false, "Re-download tiles even when already cached")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: slippyfetch [options]

Download the slippy-map tiles around a coordinate into the tile cache.
Server endpoint, cache directory, rate limits, and retries are set via
SLIPPYFETCH_* environment variables or a .env file.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	logLevel, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).
		Level(logLevel).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Debug().
		Str("build_time", BuildTime).
		Str("endpoint", cfg.Endpoint).
		Str("tiles_directory", cfg.TilesDirectory).
		Msg("starting slippyfetch")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize telemetry")
		return 1
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	var center slippy.Coordinates
	if *tileX >= 0 || *tileY >= 0 {
		if *tileX < 0 || *tileY < 0 {
			fmt.Fprintln(os.Stderr, "Error: -x and -y must be given together")
			fs.Usage()
			return 2
		}
		center = slippy.FromTileXY(uint32(*tileX), uint32(*tileY))
	} else {
		center = slippy.FromLatLon(*lat, *lon)
	}
	if *zoom > slippy.MaxZoomLevel {
		fmt.Fprintf(os.Stderr, "Error: -zoom must be at most %d\n", slippy.MaxZoomLevel)
		return 2
	}
	if *radius > 255 {
		fmt.Fprintln(os.Stderr, "Error: -radius must be at most 255")
		return 2
	}

	size := slippy.TileSizeNormal
	if *large {
		size = slippy.TileSizeLarge
	}

	dispatcher, err := dispatch.New(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to create dispatcher")
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn().Msg("interrupt received, cancelling downloads")
		cancel()
	}()

	pending, err := dispatcher.Submit(ctx, dispatch.Request{
		Size:     size,
		Zoom:     slippy.ZoomLevel(*zoom),
		Center:   center,
		Radius:   uint8(*radius),
		UseCache: !*noCache,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	go dispatcher.Close()

	bar := progressbar.NewOptions(pending,
		progressbar.OptionSetDescription("fetching tiles"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	failed := 0
	for notif := range dispatcher.Notifications() {
		_ = bar.Add(1)
		if notif.Failed() {
			failed++
			log.Error().
				Stringer("tile", notif.Tile).
				Int("attempts", notif.Attempts).
				Err(notif.Err).
				Msg("tile failed")
			continue
		}
		log.Debug().
			Stringer("tile", notif.Tile).
			Str("path", notif.Path).
			Int("attempts", notif.Attempts).
			Msg("tile ready")
	}
	_ = bar.Finish()

	if failed > 0 {
		log.Error().Int("failed", failed).Int("total", pending).Msg("some tiles failed")
		return 1
	}
	log.Info().Int("tiles", pending).Str("directory", cfg.TilesDirectory).Msg("all tiles ready")
	return 0
}

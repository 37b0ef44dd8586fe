// Package slippy provides the slippy-map tile domain model: tile
// coordinates, zoom levels, tile sizes, and the Web-Mercator conversions
// between geographic coordinates and the tile grid.
//
// Tile naming follows the OpenStreetMap convention:
// https://wiki.openstreetmap.org/wiki/Slippy_map_tilenames
package slippy

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// MaxZoomLevel is the highest zoom level supported by the standard tile
// servers this module targets.
const MaxZoomLevel = 19

// ZoomLevel is the resolution level of the tile pyramid.
// Level 0 covers the whole world with a single tile.
type ZoomLevel uint8

// Validate reports whether the zoom level is within the supported range.
func (z ZoomLevel) Validate() error {
	if z > MaxZoomLevel {
		return fmt.Errorf("%w: zoom level %d exceeds maximum %d", ErrInvalidZoomLevel, z, MaxZoomLevel)
	}
	return nil
}

// Tiles returns the number of tiles in one dimension of the grid at this
// zoom level.
func (z ZoomLevel) Tiles() uint32 {
	return 1 << z
}

// TileSize is the pixel edge length of the requested tiles.
// Not every tile server supports Large tiles.
type TileSize uint8

const (
	// TileSizeNormal requests standard 256px tiles.
	TileSizeNormal TileSize = iota
	// TileSizeLarge requests 512px ("@2x") tiles.
	TileSizeLarge
)

// Pixels returns the tile edge length in pixels.
func (s TileSize) Pixels() uint32 {
	if s == TileSizeLarge {
		return 512
	}
	return 256
}

// String returns the tag used as the size segment of cache paths.
func (s TileSize) String() string {
	if s == TileSizeLarge {
		return "Large"
	}
	return "Normal"
}

// URLSuffix returns the filename suffix tile servers use to select the
// tile size ("@2x" for 512px tiles).
func (s TileSize) URLSuffix() string {
	if s == TileSizeLarge {
		return "@2x"
	}
	return ""
}

// GeoCoordinates is a geographic position in degrees.
type GeoCoordinates struct {
	Lat float64
	Lon float64
}

// TileCoordinates identifies a tile within the grid at a given zoom
// level. Valid range is 0 <= x,y < 2^zoom.
type TileCoordinates struct {
	X uint32
	Y uint32
}

// Coordinates is a request center expressed either geographically or as
// an explicit grid tile. The zero value is not valid; use FromLatLon or
// FromTileXY.
type Coordinates struct {
	geo  *GeoCoordinates
	tile *TileCoordinates
}

// FromLatLon builds a geographic center.
func FromLatLon(lat, lon float64) Coordinates {
	return Coordinates{geo: &GeoCoordinates{Lat: lat, Lon: lon}}
}

// FromTileXY builds a center addressed directly on the tile grid.
func FromTileXY(x, y uint32) Coordinates {
	return Coordinates{tile: &TileCoordinates{X: x, Y: y}}
}

// Resolve converts the center to tile coordinates at the given zoom.
// Geographic centers go through ToTile and inherit its validation; grid
// centers are returned as-is.
func (c Coordinates) Resolve(zoom ZoomLevel) (TileCoordinates, error) {
	if c.tile != nil {
		return *c.tile, nil
	}
	if c.geo != nil {
		return ToTile(*c.geo, zoom)
	}
	return TileCoordinates{}, fmt.Errorf("%w: empty coordinates", ErrInvalidCoordinate)
}

// Key is the cache identity of a tile: grid position, zoom, and size.
type Key struct {
	X    uint32
	Y    uint32
	Zoom ZoomLevel
	Size TileSize
}

// Path derives the cache file location for the tile under root:
// <root>/<size>/<zoom>/<x>/<y>.png.
func (k Key) Path(root string) string {
	return filepath.Join(root,
		k.Size.String(),
		strconv.FormatUint(uint64(k.Zoom), 10),
		strconv.FormatUint(uint64(k.X), 10),
		strconv.FormatUint(uint64(k.Y), 10)+".png",
	)
}

// URL derives the download location for the tile from the server
// endpoint: <endpoint>/<zoom>/<x>/<y><suffix>.png.
func (k Key) URL(endpoint string) string {
	return fmt.Sprintf("%s/%d/%d/%d%s.png", endpoint, k.Zoom, k.X, k.Y, k.Size.URLSuffix())
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%d(%s)", k.Zoom, k.X, k.Y, k.Size)
}

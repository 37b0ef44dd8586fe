package slippy

import (
	"errors"
	"fmt"
	"math"
)

// MercatorMaxLat is the highest latitude representable in the Web-Mercator
// projection. Requests beyond it are rejected rather than clamped.
const MercatorMaxLat = 85.0511287798066

// Validation errors surfaced synchronously at request-expansion time.
var (
	ErrInvalidCoordinate = errors.New("slippy: invalid coordinate")
	ErrInvalidZoomLevel  = errors.New("slippy: invalid zoom level")
)

// ToTile converts a geographic position to tile-grid coordinates using
// the standard slippy-tile formulas.
func ToTile(geo GeoCoordinates, zoom ZoomLevel) (TileCoordinates, error) {
	if err := zoom.Validate(); err != nil {
		return TileCoordinates{}, err
	}
	if math.IsNaN(geo.Lat) || math.IsNaN(geo.Lon) {
		return TileCoordinates{}, fmt.Errorf("%w: NaN latitude or longitude", ErrInvalidCoordinate)
	}
	if geo.Lat < -MercatorMaxLat || geo.Lat > MercatorMaxLat {
		return TileCoordinates{}, fmt.Errorf("%w: latitude %v outside Mercator bounds ±%v", ErrInvalidCoordinate, geo.Lat, MercatorMaxLat)
	}
	if geo.Lon < -180 || geo.Lon > 180 {
		return TileCoordinates{}, fmt.Errorf("%w: longitude %v outside ±180", ErrInvalidCoordinate, geo.Lon)
	}

	n := float64(zoom.Tiles())
	latRad := geo.Lat * math.Pi / 180
	x := math.Floor((geo.Lon + 180) / 360 * n)
	y := math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n)

	// Longitude 180 and the extreme latitudes land exactly on the grid
	// edge; keep them on the last tile.
	max := n - 1
	x = math.Min(math.Max(x, 0), max)
	y = math.Min(math.Max(y, 0), max)

	return TileCoordinates{X: uint32(x), Y: uint32(y)}, nil
}

// ToGeo converts tile-grid coordinates back to the geographic position of
// the tile's north-west corner.
func ToGeo(tile TileCoordinates, zoom ZoomLevel) GeoCoordinates {
	n := float64(zoom.Tiles())
	lon := float64(tile.X)/n*360 - 180
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(tile.Y)/n)))
	return GeoCoordinates{Lat: latRad * 180 / math.Pi, Lon: lon}
}

// Expand returns every tile within Chebyshev distance radius of center,
// clipped to the grid bounds at the given zoom. Tiles that would fall
// outside the grid near the poles or the date line are silently dropped.
// Radius 0 yields exactly the center tile.
func Expand(center TileCoordinates, radius uint8, zoom ZoomLevel) []TileCoordinates {
	max := int64(zoom.Tiles()) - 1
	r := int64(radius)
	cx, cy := int64(center.X), int64(center.Y)

	tiles := make([]TileCoordinates, 0, (2*r+1)*(2*r+1))
	for x := cx - r; x <= cx+r; x++ {
		if x < 0 || x > max {
			continue
		}
		for y := cy - r; y <= cy+r; y++ {
			if y < 0 || y > max {
				continue
			}
			tiles = append(tiles, TileCoordinates{X: uint32(x), Y: uint32(y)})
		}
	}
	return tiles
}

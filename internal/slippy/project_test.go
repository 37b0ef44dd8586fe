package slippy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slippyfetch/slippyfetch/internal/slippy"
)

func TestToTile_KnownProjections(t *testing.T) {
	tests := []struct {
		name string
		lat  float64
		lon  float64
		zoom slippy.ZoomLevel
		want slippy.TileCoordinates
	}{
		{
			name: "origin at zoom 0",
			lat:  0, lon: 0, zoom: 0,
			want: slippy.TileCoordinates{X: 0, Y: 0},
		},
		{
			name: "origin at zoom 10",
			lat:  0, lon: 0, zoom: 10,
			want: slippy.TileCoordinates{X: 512, Y: 512},
		},
		{
			name: "paris at zoom 17",
			lat:  48.81590713080016, lon: 2.2686767578125, zoom: 17,
			want: slippy.TileCoordinates{X: 66362, Y: 45115},
		},
		{
			name: "near origin at zoom 19",
			lat:  0.004806518549043551, lon: 0.004119873046875, zoom: 19,
			want: slippy.TileCoordinates{X: 262150, Y: 262137},
		},
		{
			name: "jodhpur at zoom 19",
			lat:  26.850416392948524, lon: 72.57980346679688, zoom: 19,
			want: slippy.TileCoordinates{X: 367846, Y: 221525},
		},
		{
			name: "eastern date line stays on grid",
			lat:  0, lon: 180, zoom: 3,
			want: slippy.TileCoordinates{X: 7, Y: 4},
		},
		{
			name: "mercator north bound maps to first row",
			lat:  slippy.MercatorMaxLat, lon: 0, zoom: 5,
			want: slippy.TileCoordinates{X: 16, Y: 0},
		},
		{
			name: "mercator south bound maps to last row",
			lat:  -slippy.MercatorMaxLat, lon: 0, zoom: 5,
			want: slippy.TileCoordinates{X: 16, Y: 31},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := slippy.ToTile(slippy.GeoCoordinates{Lat: tt.lat, Lon: tt.lon}, tt.zoom)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToTile_Deterministic(t *testing.T) {
	geo := slippy.GeoCoordinates{Lat: 45.4111, Lon: -75.6980}

	first, err := slippy.ToTile(geo, 18)
	require.NoError(t, err)
	second, err := slippy.ToTile(geo, 18)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestToTile_InvalidInputs(t *testing.T) {
	tests := []struct {
		name string
		lat  float64
		lon  float64
		zoom slippy.ZoomLevel
		want error
	}{
		{name: "north pole", lat: 90, lon: 0, zoom: 18, want: slippy.ErrInvalidCoordinate},
		{name: "south of mercator bound", lat: -86, lon: 0, zoom: 18, want: slippy.ErrInvalidCoordinate},
		{name: "longitude out of range", lat: 0, lon: 181, zoom: 18, want: slippy.ErrInvalidCoordinate},
		{name: "zoom out of range", lat: 0, lon: 0, zoom: 20, want: slippy.ErrInvalidZoomLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := slippy.ToTile(slippy.GeoCoordinates{Lat: tt.lat, Lon: tt.lon}, tt.zoom)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestToGeo_Inverse(t *testing.T) {
	geo := slippy.ToGeo(slippy.TileCoordinates{X: 1, Y: 1}, 0)
	assert.InDelta(t, -85.0511287798066, geo.Lat, 1e-12)
	assert.InDelta(t, 180.0, geo.Lon, 1e-12)

	geo = slippy.ToGeo(slippy.TileCoordinates{X: 1, Y: 1}, 1)
	assert.InDelta(t, 0.0, geo.Lat, 1e-12)
	assert.InDelta(t, 0.0, geo.Lon, 1e-12)
}

func TestToGeo_RoundTrip(t *testing.T) {
	const zoom = slippy.ZoomLevel(17)

	tile, err := slippy.ToTile(slippy.GeoCoordinates{Lat: 48.81590713080016, Lon: 2.2686767578125}, zoom)
	require.NoError(t, err)

	// The north-west corner of the resolved tile must resolve back to the
	// same tile.
	back, err := slippy.ToTile(slippy.ToGeo(tile, zoom), zoom)
	require.NoError(t, err)
	assert.Equal(t, tile, back)
}

func TestExpand_RadiusZero(t *testing.T) {
	center := slippy.TileCoordinates{X: 100, Y: 50}
	tiles := slippy.Expand(center, 0, 10)

	assert.Equal(t, []slippy.TileCoordinates{center}, tiles)
}

func TestExpand_FullSquare(t *testing.T) {
	tiles := slippy.Expand(slippy.TileCoordinates{X: 512, Y: 512}, 2, 10)

	assert.Len(t, tiles, 25)
	assert.Contains(t, tiles, slippy.TileCoordinates{X: 510, Y: 510})
	assert.Contains(t, tiles, slippy.TileCoordinates{X: 514, Y: 514})
	assert.NotContains(t, tiles, slippy.TileCoordinates{X: 515, Y: 512})
}

func TestExpand_ClippedAtGridEdges(t *testing.T) {
	// Center in the grid corner at zoom 1 (2x2 grid): only the four valid
	// tiles survive.
	tiles := slippy.Expand(slippy.TileCoordinates{X: 0, Y: 0}, 1, 1)

	assert.ElementsMatch(t, []slippy.TileCoordinates{
		{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 0}, {X: 1, Y: 1},
	}, tiles)
}

func TestExpand_NoDuplicates(t *testing.T) {
	tiles := slippy.Expand(slippy.TileCoordinates{X: 1, Y: 1}, 3, 2)

	seen := make(map[slippy.TileCoordinates]bool, len(tiles))
	for _, tc := range tiles {
		assert.False(t, seen[tc], "duplicate tile %v", tc)
		seen[tc] = true
	}
	// 4x4 grid at zoom 2, radius 3 around (1,1) covers the whole grid.
	assert.Len(t, tiles, 16)
}

package slippy_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slippyfetch/slippyfetch/internal/slippy"
)

func TestZoomLevel_Validate(t *testing.T) {
	assert.NoError(t, slippy.ZoomLevel(0).Validate())
	assert.NoError(t, slippy.ZoomLevel(19).Validate())
	assert.ErrorIs(t, slippy.ZoomLevel(20).Validate(), slippy.ErrInvalidZoomLevel)
}

func TestTileSize(t *testing.T) {
	assert.Equal(t, uint32(256), slippy.TileSizeNormal.Pixels())
	assert.Equal(t, uint32(512), slippy.TileSizeLarge.Pixels())
	assert.Equal(t, "Normal", slippy.TileSizeNormal.String())
	assert.Equal(t, "Large", slippy.TileSizeLarge.String())
	assert.Equal(t, "", slippy.TileSizeNormal.URLSuffix())
	assert.Equal(t, "@2x", slippy.TileSizeLarge.URLSuffix())
}

func TestKey_Path(t *testing.T) {
	k := slippy.Key{X: 75950, Y: 93874, Zoom: 18, Size: slippy.TileSizeNormal}

	want := filepath.Join("cache", "Normal", "18", "75950", "93874.png")
	assert.Equal(t, want, k.Path("cache"))
}

func TestKey_URL(t *testing.T) {
	k := slippy.Key{X: 66362, Y: 45115, Zoom: 17, Size: slippy.TileSizeNormal}
	assert.Equal(t, "https://tile.example.org/17/66362/45115.png", k.URL("https://tile.example.org"))

	k.Size = slippy.TileSizeLarge
	assert.Equal(t, "https://tile.example.org/17/66362/45115@2x.png", k.URL("https://tile.example.org"))
}

func TestCoordinates_Resolve(t *testing.T) {
	tile, err := slippy.FromTileXY(12, 34).Resolve(10)
	require.NoError(t, err)
	assert.Equal(t, slippy.TileCoordinates{X: 12, Y: 34}, tile)

	tile, err = slippy.FromLatLon(0, 0).Resolve(10)
	require.NoError(t, err)
	assert.Equal(t, slippy.TileCoordinates{X: 512, Y: 512}, tile)

	_, err = slippy.FromLatLon(90, 0).Resolve(10)
	assert.ErrorIs(t, err, slippy.ErrInvalidCoordinate)

	_, err = slippy.Coordinates{}.Resolve(10)
	assert.ErrorIs(t, err, slippy.ErrInvalidCoordinate)
}

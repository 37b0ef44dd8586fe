package cache_test

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slippyfetch/slippyfetch/internal/cache"
	"github.com/slippyfetch/slippyfetch/internal/slippy"
)

func writeTile(t *testing.T, root string, key slippy.Key) {
	t.Helper()
	path := key.Path(root)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))
}

func TestLedger_TryReserveBlocksDuplicates(t *testing.T) {
	ledger := cache.NewLedger(t.TempDir())
	key := slippy.Key{X: 1, Y: 2, Zoom: 10, Size: slippy.TileSizeNormal}

	assert.True(t, ledger.TryReserve(key, true))
	assert.False(t, ledger.TryReserve(key, true), "in-flight tile must not be reserved twice")
	assert.False(t, ledger.TryReserve(key, false), "force refresh must still respect in-flight downloads")

	// A different size is a different tile.
	large := key
	large.Size = slippy.TileSizeLarge
	assert.True(t, ledger.TryReserve(large, true))
}

func TestLedger_ReleaseSuccessMarksOnDisk(t *testing.T) {
	ledger := cache.NewLedger(t.TempDir())
	key := slippy.Key{X: 1, Y: 2, Zoom: 10, Size: slippy.TileSizeNormal}

	require.True(t, ledger.TryReserve(key, true))
	ledger.Release(key, true)

	assert.False(t, ledger.TryReserve(key, true), "cached tile must not be re-downloaded")
	assert.True(t, ledger.TryReserve(key, false), "use_cache=false forces a refresh of cached tiles")
}

func TestLedger_ReleaseFailureAllowsRetry(t *testing.T) {
	ledger := cache.NewLedger(t.TempDir())
	key := slippy.Key{X: 5, Y: 6, Zoom: 12, Size: slippy.TileSizeNormal}

	require.True(t, ledger.TryReserve(key, true))
	ledger.Release(key, false)

	assert.False(t, ledger.IsCached(key))
	assert.True(t, ledger.TryReserve(key, true), "failed tile must be eligible for a new request")
}

func TestLedger_DiscoversTilesFromPreviousRun(t *testing.T) {
	root := t.TempDir()
	key := slippy.Key{X: 7, Y: 8, Zoom: 14, Size: slippy.TileSizeNormal}
	writeTile(t, root, key)

	ledger := cache.NewLedger(root)

	assert.True(t, ledger.IsCached(key))
	assert.False(t, ledger.TryReserve(key, true), "on-disk tile from a previous run is a cache hit")
	assert.True(t, ledger.TryReserve(key, false))
}

func TestLedger_TryReserveAtomicUnderConcurrency(t *testing.T) {
	ledger := cache.NewLedger(t.TempDir())
	key := slippy.Key{X: 3, Y: 3, Zoom: 16, Size: slippy.TileSizeNormal}

	const goroutines = 64
	var reserved atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if ledger.TryReserve(key, true) {
				reserved.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), reserved.Load(), "exactly one caller may win the reservation")

	// After release the key is reservable again, still exactly once.
	ledger.Release(key, false)
	assert.True(t, ledger.TryReserve(key, true))
	assert.False(t, ledger.TryReserve(key, true))
}

func TestLedger_Path(t *testing.T) {
	ledger := cache.NewLedger("root")
	key := slippy.Key{X: 10, Y: 20, Zoom: 5, Size: slippy.TileSizeLarge}

	assert.Equal(t, filepath.Join("root", "Large", "5", "10", "20.png"), ledger.Path(key))
}

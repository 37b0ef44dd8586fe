// Package cache tracks which tiles are already on disk and which are
// currently being downloaded, so that no tile is fetched twice.
package cache

import (
	"os"
	"sync"

	"github.com/slippyfetch/slippyfetch/internal/slippy"
)

// state of a ledger entry.
type state uint8

const (
	stateInFlight state = iota
	stateOnDisk
)

// Ledger maps tile keys to their download state. On-disk entries mirror
// the filesystem and persist for the process lifetime; in-flight entries
// exist only between TryReserve and Release.
//
// TryReserve is the single atomic check-and-set the download pipeline
// relies on: at most one worker ever owns a given tile key.
type Ledger struct {
	root string

	mu      sync.Mutex
	entries map[slippy.Key]state
}

// NewLedger creates a ledger over the given cache root directory.
func NewLedger(root string) *Ledger {
	return &Ledger{
		root:    root,
		entries: make(map[slippy.Key]state),
	}
}

// Path returns the cache file location for the tile.
func (l *Ledger) Path(key slippy.Key) string {
	return key.Path(l.root)
}

// IsCached reports whether the tile is available on disk. The filesystem
// is consulted for keys the ledger has not seen yet, so tiles cached by a
// previous run are recognized.
func (l *Ledger) IsCached(key slippy.Key) bool {
	l.mu.Lock()
	st, ok := l.entries[key]
	l.mu.Unlock()
	if ok {
		return st == stateOnDisk
	}
	return l.onDisk(key)
}

// TryReserve atomically marks the tile as in-flight and returns true, or
// returns false if another download already owns it. When useCache is
// set, tiles already on disk are also refused; with useCache false an
// on-disk tile is re-reserved for a forced refresh.
func (l *Ledger) TryReserve(key slippy.Key, useCache bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch st, ok := l.entries[key]; {
	case ok && st == stateInFlight:
		return false
	case ok && st == stateOnDisk && useCache:
		return false
	case !ok && useCache && l.onDisk(key):
		l.entries[key] = stateOnDisk
		return false
	}

	l.entries[key] = stateInFlight
	return true
}

// Release clears the in-flight marker. Successful downloads move to
// on-disk; failures leave the tile absent so a later request may retry.
func (l *Ledger) Release(key slippy.Key, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ok {
		l.entries[key] = stateOnDisk
		return
	}
	delete(l.entries, key)
}

func (l *Ledger) onDisk(key slippy.Key) bool {
	info, err := os.Stat(key.Path(l.root))
	return err == nil && info.Mode().IsRegular()
}

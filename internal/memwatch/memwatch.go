// Package memwatch is the memory-usage watchdog (§9 supplemented feature):
// a periodic runtime.MemStats snapshot written to _mem_reports/, the Go
// analogue of original_source's mem.py pympler/tracemalloc reports. Go has
// no ecosystem equivalent of pympler's live object census, so this is one
// of the few places the implementation is stdlib runtime introspection
// rather than a third-party library.
package memwatch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"listing-sniper/internal/corelog"
)

// Snapshot is one memory report, close enough to ru_maxrss/MemStats parity
// to spot a leak trend across restarts.
type Snapshot struct {
	Timestamp    time.Time `json:"timestamp"`
	Alloc        uint64    `json:"alloc_bytes"`
	TotalAlloc   uint64    `json:"total_alloc_bytes"`
	Sys          uint64    `json:"sys_bytes"`
	HeapObjects  uint64    `json:"heap_objects"`
	NumGoroutine int       `json:"num_goroutine"`
	NumGC        uint32    `json:"num_gc"`
}

// Watcher periodically snapshots memory usage to disk.
type Watcher struct {
	dir      string
	interval time.Duration
	log      *corelog.Logger
}

// New builds a Watcher that writes reports under dir every interval.
func New(dir string, interval time.Duration) *Watcher {
	return &Watcher{dir: dir, interval: interval, log: corelog.New("memwatch")}
}

// Run writes one snapshot per tick until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		w.log.Errorf("creating report directory %s: %v", w.dir, err)
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := w.write(now); err != nil {
				w.log.Errorf("writing memory report: %v", err)
			}
		}
	}
}

func (w *Watcher) write(now time.Time) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	snap := Snapshot{
		Timestamp:    now,
		Alloc:        m.Alloc,
		TotalAlloc:   m.TotalAlloc,
		Sys:          m.Sys,
		HeapObjects:  m.HeapObjects,
		NumGoroutine: runtime.NumGoroutine(),
		NumGC:        m.NumGC,
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(w.dir, now.Format("20060102T150405")+".json")
	return os.WriteFile(path, data, 0o644)
}

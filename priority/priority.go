// Package priority coordinates long-running background work with
// higher-priority interactive operations.
//
// A Coordinator tracks outstanding priority requests across any number of
// goroutines. Background loops consult ShouldYield or run under RunInChunks
// so that a page turn or a book open is never stalled behind a scan, and
// every wait is bounded so the host scheduler's watchdog is never starved.
//
// All shared state is updated with atomic operations; a Coordinator may be
// used concurrently without additional locking.
package priority

import (
	"sync"
	"sync/atomic"
	"time"
)

// Level is an operation priority. Higher values preempt lower ones.
type Level int32

const (
	// Idle is background indexing when nothing else is running.
	Idle Level = iota
	// Low is metrics calculation and library scanning.
	Low
	// Normal is pre-rendering of adjacent pages.
	Normal
	// High is active user interaction.
	High
	// Critical is book opening and anything needing immediate response.
	Critical

	numLevels = int(Critical) + 1
)

// String returns the level's name.
func (l Level) String() string {
	switch l {
	case Idle:
		return "idle"
	case Low:
		return "low"
	case Normal:
		return "normal"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

const (
	yieldStep         = 10 * time.Millisecond
	defaultMaxWait    = 100 * time.Millisecond
	chunkAbortWait    = 500 * time.Millisecond
	interChunkBreathe = time.Millisecond
)

// Coordinator tracks outstanding priority requests. The zero value is ready
// to use; NewCoordinator is provided for symmetry with the rest of the
// module. One Coordinator is typically shared by every component of a
// process.
type Coordinator struct {
	pending  [numLevels]atomic.Int32
	watchdog atomic.Value // func()
}

// NewCoordinator returns an empty Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// SetWatchdog installs the host scheduler's liveness signal. The function is
// invoked before each processed item and during bounded waits; it must be
// cheap and safe for concurrent use.
func (c *Coordinator) SetWatchdog(fn func()) {
	c.watchdog.Store(fn)
}

func (c *Coordinator) resetWatchdog() {
	if fn, ok := c.watchdog.Load().(func()); ok && fn != nil {
		fn()
	}
}

func clampLevel(l Level) Level {
	if l < Idle {
		return Idle
	}
	if l > Critical {
		return Critical
	}
	return l
}

// Request registers an outstanding operation at level l. Lower-priority work
// observes it through ShouldYield until the matching Release.
func (c *Coordinator) Request(l Level) {
	c.pending[clampLevel(l)].Add(1)
}

// Release withdraws a request previously registered at level l.
func (c *Coordinator) Release(l Level) {
	c.pending[clampLevel(l)].Add(-1)
}

// Acquire registers a request at level l and returns its release function.
// Callers defer the release so it runs on every exit path; calling it more
// than once is harmless.
func (c *Coordinator) Acquire(l Level) (release func()) {
	c.Request(l)
	var once sync.Once
	return func() {
		once.Do(func() { c.Release(l) })
	}
}

// ShouldYield reports whether any outstanding request exceeds my.
func (c *Coordinator) ShouldYield(my Level) bool {
	for l := clampLevel(my) + 1; l <= Critical; l++ {
		if c.pending[l].Load() > 0 {
			return true
		}
	}
	return false
}

// HighPending reports whether any high-or-above request is outstanding.
func (c *Coordinator) HighPending() bool {
	return c.pending[High].Load() > 0 || c.pending[Critical].Load() > 0
}

// CriticalPending reports whether any critical request is outstanding.
func (c *Coordinator) CriticalPending() bool {
	return c.pending[Critical].Load() > 0
}

// YieldIfNeeded pauses the caller while a higher-priority request is
// outstanding, sleeping in short steps with a watchdog reset after each,
// until the condition clears or maxWait elapses. It reports whether it
// yielded at all, so the caller can decide to checkpoint or abort.
func (c *Coordinator) YieldIfNeeded(my Level, maxWait time.Duration) bool {
	if !c.ShouldYield(my) {
		return false
	}
	for waited := time.Duration(0); c.ShouldYield(my) && waited < maxWait; waited += yieldStep {
		time.Sleep(yieldStep)
		c.resetWatchdog()
	}
	return true
}

// Checkpoint resets the watchdog and, if a higher-priority request is
// outstanding, waits briefly for it to clear. Long loops call this every few
// kilobytes of work.
func (c *Coordinator) Checkpoint(my Level) {
	c.resetWatchdog()
	c.YieldIfNeeded(my, defaultMaxWait)
}

// RunInChunks processes total items in chunks of chunkSize, yielding between
// chunks and aborting when higher-priority work keeps the pressure up. It is
// the standard shape for long background work.
//
// Before each chunk the coordinator is consulted: under pressure the optional
// onYield checkpoint hook runs, the caller waits (bounded), and if the
// pressure persists the operation aborts, returning the number of items
// already processed. process returning false also halts immediately. Items
// are never half-applied; the returned count is exact.
func (c *Coordinator) RunInChunks(my Level, total, chunkSize int, process func(i int) bool, onYield func()) int {
	if total <= 0 || process == nil {
		return 0
	}
	if chunkSize <= 0 {
		chunkSize = 1
	}

	processed := 0
	for processed < total {
		if c.ShouldYield(my) {
			if onYield != nil {
				onYield()
			}
			c.YieldIfNeeded(my, chunkAbortWait)
			if c.ShouldYield(my) {
				return processed
			}
		}

		end := processed + chunkSize
		if end > total {
			end = total
		}
		for processed < end {
			c.resetWatchdog()
			if !process(processed) {
				return processed
			}
			processed++
		}

		// Brief unconditional yield between chunks keeps the host
		// scheduler responsive even with no pressure.
		time.Sleep(interChunkBreathe)
	}
	return processed
}

package pipeline

import (
	"sync/atomic"
	"time"
)

// filterCounters accumulates per-filter scheduling metrics. Written by the
// filter's worker goroutine, read by Snapshot.
type filterCounters struct {
	role     string
	cycles   atomic.Int64
	produced atomic.Int64
	wakeups  atomic.Int64
}

// FilterStats is a point-in-time view of one filter's activity, JSON-ready
// for the debug surface.
type FilterStats struct {
	ID          int         `json:"id"`
	Role        string      `json:"role"`
	Cycles      int64       `json:"cycles"`
	Produced    int64       `json:"produced"`
	Wakeups     int64         `json:"wakeups"`
	QueueDepths map[int]int   `json:"queueDepths,omitempty"`
	Discards    map[int]int64 `json:"discards,omitempty"`
}

// Snapshot is a point-in-time view of the whole graph.
type Snapshot struct {
	Timestamp int64         `json:"timestamp"`
	Filters   []FilterStats `json:"filters"`
}

// queueDepther is implemented by filters that can report the occupancy of
// their incoming edges (filter.Node does).
type queueDepther interface {
	QueueDepths() map[int]int
}

// queueDiscarder is implemented by filters that can report forced evictions
// on their outgoing edges (filter.Node does).
type queueDiscarder interface {
	QueueDiscards() map[int]int64
}

// Snapshot returns current counters and queue depths for every filter.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{Timestamp: time.Now().UnixMilli()}
	for id, f := range r.filters {
		c := r.stats[id]
		fs := FilterStats{
			ID:       id,
			Role:     c.role,
			Cycles:   c.cycles.Load(),
			Produced: c.produced.Load(),
			Wakeups:  c.wakeups.Load(),
		}
		if qd, ok := f.(queueDepther); ok {
			fs.QueueDepths = qd.QueueDepths()
		}
		if d, ok := f.(queueDiscarder); ok {
			if m := d.QueueDiscards(); len(m) > 0 {
				fs.Discards = m
			}
		}
		snap.Filters = append(snap.Filters, fs)
	}
	return snap
}

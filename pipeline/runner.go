// Package pipeline schedules a filter graph. Every filter runs on its own
// goroutine: MASTER filters tick on their frame interval and drive timing
// for their segment, SLAVE filters sleep until a queue commit names them in
// a wake list. The wake mechanism is the cross-thread realization of the
// peer IDs returned by queue Add/Remove.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/loom/filter"
)

// ErrDuplicateFilter is returned when two filters share an ID.
var ErrDuplicateFilter = errors.New("pipeline: duplicate filter id")

// Runner owns the goroutines executing a wired filter graph.
type Runner struct {
	log *slog.Logger

	mu      sync.Mutex
	filters map[int]filter.Filter
	wake    map[int]chan struct{}
	stats   map[int]*filterCounters
}

// NewRunner creates an empty Runner. If log is nil, slog.Default() is used.
func NewRunner(log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		log:     log.With("component", "pipeline"),
		filters: make(map[int]filter.Filter),
		wake:    make(map[int]chan struct{}),
		stats:   make(map[int]*filterCounters),
	}
}

// Add registers a filter with the runner. All filters must be added before
// Run is called.
func (r *Runner) Add(f filter.Filter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.filters[f.ID()]; ok {
		return fmt.Errorf("filter %d: %w", f.ID(), ErrDuplicateFilter)
	}
	r.filters[f.ID()] = f
	// Capacity 1: a wake is a level signal, not a count. Coalescing
	// repeated wake-ups is fine because a woken filter drains everything
	// available before sleeping again.
	r.wake[f.ID()] = make(chan struct{}, 1)
	r.stats[f.ID()] = &filterCounters{role: f.Role().String()}
	return nil
}

// Wake nudges a filter's worker. External producers call it after injecting
// into a Head so the head's cycle runs promptly even between master ticks.
func (r *Runner) Wake(id int) {
	r.mu.Lock()
	ch := r.wake[id]
	r.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Run executes the graph until ctx is cancelled, then tears down every
// filter and releases the queue slabs.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	filters := make([]filter.Filter, 0, len(r.filters))
	for _, f := range r.filters {
		filters = append(filters, f)
	}
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, f := range filters {
		f := f
		g.Go(func() error {
			if f.Role() == filter.Master {
				r.runMaster(ctx, f)
			} else {
				r.runSlave(ctx, f)
			}
			return nil
		})
	}

	err := g.Wait()

	// All workers have exited; now it is safe to release the slabs.
	for _, f := range filters {
		f.Close()
	}
	r.log.Info("pipeline stopped", "filters", len(filters))
	return err
}

// runMaster paces one processing cycle per frame interval and additionally
// reacts to wake-ups (an injected frame should not wait out a full tick).
func (r *Runner) runMaster(ctx context.Context, f filter.Filter) {
	ticker := time.NewTicker(f.FrameInterval())
	defer ticker.Stop()

	wake := r.wakeCh(f.ID())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cycle(f)
		case <-wake:
			r.cycle(f)
		}
	}
}

// runSlave processes only when woken, draining every available frame
// before sleeping again.
func (r *Runner) runSlave(ctx context.Context, f filter.Filter) {
	wake := r.wakeCh(f.ID())
	for {
		select {
		case <-ctx.Done():
			return
		case <-wake:
			for r.cycle(f) {
			}
		}
	}
}

func (r *Runner) cycle(f filter.Filter) bool {
	res := f.Process()

	c := r.counters(f.ID())
	c.cycles.Add(1)
	if res.Produced {
		c.produced.Add(1)
	}

	for _, id := range res.Wake {
		if id == f.ID() {
			continue
		}
		r.Wake(id)
		c.wakeups.Add(1)
	}
	return res.Produced
}

func (r *Runner) wakeCh(id int) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wake[id]
}

func (r *Runner) counters(id int) *filterCounters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats[id]
}

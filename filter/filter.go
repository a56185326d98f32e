// Package filter implements the processing-stage nodes of the loom graph.
// A filter owns zero or more reader edges (incoming frame queues) and zero
// or more writer edges (outgoing frame queues), runs a per-stage transform,
// and reports which peer filters should be woken after each cycle. Graphs
// compose Head (pure source), OneToOne, OneToMany, and Tail (pure sink)
// nodes; the pipeline package schedules them.
package filter

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zsiec/loom/media"
	"github.com/zsiec/loom/queue"
)

// Role designates which node drives timing for a pipeline segment. One
// MASTER per segment paces frame processing on its frame interval; SLAVE
// nodes run only when a frame is available.
type Role int

// Filter roles.
const (
	Master Role = iota
	Slave
)

func (r Role) String() string {
	if r == Master {
		return "master"
	}
	return "slave"
}

// DefaultFrameInterval is the master pacing interval when none is set:
// one frame at 25fps.
const DefaultFrameInterval = 40 * time.Millisecond

// Wiring errors. These are programmer faults surfaced while building the
// graph, never during steady-state processing.
var (
	ErrConnectionExists = errors.New("filter: connection id already in use")
	ErrWriterLimit      = errors.New("filter: writer limit reached")
	ErrReaderLimit      = errors.New("filter: reader limit reached")
	ErrNotConnected     = errors.New("filter: no such connection")
)

// QueueAllocator builds the typed queue for a new outgoing edge. Each
// concrete filter supplies one so its edges carry correctly sized slabs.
type QueueAllocator func(conn queue.ConnectionData) (queue.FrameQueue, error)

// Result reports the outcome of one processing cycle. Wake carries the
// filter IDs returned by the queue commit operations: downstream readers
// that received a frame and upstream writers whose slot freed up. The
// scheduler maps those IDs to actual wake-ups.
type Result struct {
	Produced bool
	Wake     []int
}

// Filter is one schedulable node of the graph.
type Filter interface {
	ID() int
	Role() Role
	FrameInterval() time.Duration
	// Process runs one frame-processing cycle. It never blocks: missing
	// input or full output is reported as Produced=false.
	Process() Result
	// Close tears down the node's outgoing edges and releases their slabs.
	Close()
}

// Node carries the connection bookkeeping shared by every filter type.
// Concrete filters embed it and provide the processing step.
type Node struct {
	id       int
	role     Role
	interval time.Duration
	alloc    QueueAllocator

	maxReaders int
	maxWriters int

	mu      sync.RWMutex
	readers map[int]queue.FrameQueue
	writers map[int]queue.FrameQueue
	peers   map[int]*Node // reader node per writer connection id

	seq uint64
}

func newNode(id int, role Role, maxReaders, maxWriters int, alloc QueueAllocator) Node {
	return Node{
		id:         id,
		role:       role,
		interval:   DefaultFrameInterval,
		alloc:      alloc,
		maxReaders: maxReaders,
		maxWriters: maxWriters,
		readers:    make(map[int]queue.FrameQueue),
		writers:    make(map[int]queue.FrameQueue),
		peers:      make(map[int]*Node),
	}
}

// ID returns the filter's graph-wide identifier.
func (n *Node) ID() int { return n.id }

// Role returns the node's scheduling role.
func (n *Node) Role() Role { return n.role }

// FrameInterval is the pacing interval a MASTER node runs on.
func (n *Node) FrameInterval() time.Duration { return n.interval }

// SetFrameInterval overrides the pacing interval.
func (n *Node) SetFrameInterval(d time.Duration) {
	if d > 0 {
		n.interval = d
	}
}

// Connect wires an edge from this node to dst under connID. The writer side
// allocates the queue, so the edge's slab is typed for this node's output.
func (n *Node) Connect(dst *Node, connID int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.maxWriters >= 0 && len(n.writers) >= n.maxWriters {
		return fmt.Errorf("filter %d: %w", n.id, ErrWriterLimit)
	}
	if _, ok := n.writers[connID]; ok {
		return fmt.Errorf("filter %d conn %d: %w", n.id, connID, ErrConnectionExists)
	}

	q, err := n.alloc(queue.ConnectionData{WriterID: n.id, ReaderID: dst.id})
	if err != nil {
		return fmt.Errorf("filter %d: alloc queue: %w", n.id, err)
	}

	if err := dst.addReader(connID, q); err != nil {
		q.Close()
		return err
	}

	n.writers[connID] = q
	n.peers[connID] = dst
	return nil
}

func (n *Node) addReader(connID int, q queue.FrameQueue) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.maxReaders >= 0 && len(n.readers) >= n.maxReaders {
		return fmt.Errorf("filter %d: %w", n.id, ErrReaderLimit)
	}
	if _, ok := n.readers[connID]; ok {
		return fmt.Errorf("filter %d conn %d: %w", n.id, connID, ErrConnectionExists)
	}
	n.readers[connID] = q
	return nil
}

// Disconnect tears down the outgoing edge registered under connID,
// releasing its slab and removing it from the reader node.
func (n *Node) Disconnect(connID int) error {
	n.mu.Lock()
	q, ok := n.writers[connID]
	peer := n.peers[connID]
	delete(n.writers, connID)
	delete(n.peers, connID)
	n.mu.Unlock()

	if !ok {
		return fmt.Errorf("filter %d conn %d: %w", n.id, connID, ErrNotConnected)
	}
	if peer != nil {
		peer.removeReader(connID)
	}
	q.Close()
	return nil
}

func (n *Node) removeReader(connID int) {
	n.mu.Lock()
	delete(n.readers, connID)
	n.mu.Unlock()
}

// Readers returns the number of incoming edges.
func (n *Node) Readers() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.readers)
}

// Writers returns the number of outgoing edges.
func (n *Node) Writers() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.writers)
}

// WriterQueue returns the outgoing queue registered under connID, or nil.
func (n *Node) WriterQueue(connID int) queue.FrameQueue {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.writers[connID]
}

// QueueDepths reports the occupancy of every incoming edge, keyed by
// connection id. Used by the stats snapshot.
func (n *Node) QueueDepths() map[int]int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	depths := make(map[int]int, len(n.readers))
	for id, q := range n.readers {
		depths[id] = q.Len()
	}
	return depths
}

// QueueDiscards reports the forced-eviction count of every outgoing edge,
// keyed by connection id.
func (n *Node) QueueDiscards() map[int]int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[int]int64, len(n.writers))
	for id, q := range n.writers {
		if d, ok := q.(interface{ Discards() int64 }); ok {
			out[id] = d.Discards()
		}
	}
	return out
}

// Close releases every outgoing edge. Incoming edges are owned by the
// upstream writer and torn down there.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, q := range n.writers {
		if peer := n.peers[id]; peer != nil {
			peer.removeReader(id)
		}
		q.Close()
	}
	n.writers = make(map[int]queue.FrameQueue)
	n.peers = make(map[int]*Node)
}

// nextSeq returns the node's next output sequence number. Called only from
// the node's processing goroutine.
func (n *Node) nextSeq() uint64 {
	n.seq++
	return n.seq
}

// singleReader returns the node's only incoming edge, or nil.
func (n *Node) singleReader() queue.FrameQueue {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, q := range n.readers {
		return q
	}
	return nil
}

// singleWriter returns the node's only outgoing edge, or nil.
func (n *Node) singleWriter() queue.FrameQueue {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, q := range n.writers {
		return q
	}
	return nil
}

// snapshotReaders copies the reader map for iteration outside the lock.
func (n *Node) snapshotReaders() map[int]queue.FrameQueue {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[int]queue.FrameQueue, len(n.readers))
	for id, q := range n.readers {
		out[id] = q
	}
	return out
}

// snapshotWriters copies the writer map for iteration outside the lock.
func (n *Node) snapshotWriters() map[int]queue.FrameQueue {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[int]queue.FrameQueue, len(n.writers))
	for id, q := range n.writers {
		out[id] = q
	}
	return out
}

// copyPayload copies src's content and timing metadata into dst, which must
// have the same layout. Returns false on a layout mismatch or if dst cannot
// hold src's payload. The consumed flag is not copied; the caller sets it
// per its own cycle outcome.
func copyPayload(dst, src media.Frame) bool {
	if dst.Planar() != src.Planar() {
		return false
	}
	if src.Len() > dst.MaxLen() {
		return false
	}

	if src.Planar() {
		sp, dp := src.PlaneData(), dst.PlaneData()
		if len(dp) < len(sp) {
			return false
		}
		for i := range sp {
			copy(dp[i], sp[i][:src.Len()])
		}
	} else {
		copy(dst.Data(), src.Data()[:src.Len()])
	}
	dst.SetLen(src.Len())
	media.CopyMeta(dst, src)

	if sv, ok := src.(*media.InterleavedVideoFrame); ok {
		if dv, ok := dst.(*media.InterleavedVideoFrame); ok {
			dv.SetSize(sv.Size())
			dv.SetPixelFormat(sv.PixelFormat())
		}
	}
	if sa, ok := src.(interface{ Samples() int }); ok {
		if da, ok := dst.(interface{ SetSamples(int) }); ok {
			da.SetSamples(sa.Samples())
		}
	}
	return true
}

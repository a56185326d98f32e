package filter

import (
	"github.com/zsiec/loom/media"
)

// Compile-time interface check.
var _ Filter = (*OneToMany)(nil)

// MultiTransform processes one input frame into the output frames of every
// writer edge that has room this cycle, keyed by connection id. Returning
// false marks every output not-consumed and forwards nothing.
type MultiTransform func(src media.Frame, dst map[int]media.Frame) bool

// OneToMany is a node with one reader edge fanning out to a bounded number
// of writer edges. There is no ordering guarantee among the writer edges of
// a single step.
type OneToMany struct {
	Node
	transform MultiTransform
}

// NewOneToMany creates a fan-out filter with at most maxWriters outgoing
// edges.
func NewOneToMany(id int, role Role, maxWriters int, alloc QueueAllocator, transform MultiTransform) *OneToMany {
	f := &OneToMany{transform: transform}
	f.Node = newNode(id, role, 1, maxWriters, alloc)
	return f
}

// Process reads one input frame and writes into every writer edge with a
// free slot; full edges are skipped for this cycle so one slow consumer
// cannot hold the others back. If every edge is full the input stays
// pending for the next cycle.
func (f *OneToMany) Process() Result {
	r := f.singleReader()
	if r == nil {
		return Result{}
	}
	src := r.Front()
	if src == nil {
		return Result{}
	}

	writers := f.snapshotWriters()
	dsts := make(map[int]media.Frame, len(writers))
	for id, q := range writers {
		if frame := q.Rear(); frame != nil {
			dsts[id] = frame
		}
	}
	if len(dsts) == 0 {
		return Result{}
	}

	ok := f.transform(src, dsts)
	for _, dst := range dsts {
		dst.SetConsumed(ok)
	}

	res := Result{Produced: ok}
	res.Wake = append(res.Wake, r.Remove())
	if ok {
		seq := f.nextSeq()
		for id := range dsts {
			dsts[id].SetSequenceNumber(seq)
			res.Wake = append(res.Wake, writers[id].Add())
		}
	}
	return res
}

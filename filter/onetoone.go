package filter

import (
	"github.com/zsiec/loom/media"
)

// Compile-time interface check.
var _ Filter = (*OneToOne)(nil)

// Transform is a single-input single-output processing step. It reads src,
// writes its result into dst, and returns whether it produced usable output
// this cycle. Returning false is not an error: the frame is marked
// not-consumed and nothing is forwarded downstream.
type Transform func(src, dst media.Frame) bool

// OneToOne is a node with exactly one reader and one writer edge.
type OneToOne struct {
	Node
	transform Transform
}

// NewOneToOne creates a one-input one-output filter. alloc builds the
// outgoing edge's typed queue; transform runs once per available frame.
func NewOneToOne(id int, role Role, alloc QueueAllocator, transform Transform) *OneToOne {
	f := &OneToOne{transform: transform}
	f.Node = newNode(id, role, 1, 1, alloc)
	return f
}

// Process reads one input frame, runs the transform, and commits the
// bookkeeping. The input slot is always released so the edge cannot stall;
// the output slot is committed only when the transform produced output. A
// full downstream edge leaves the input pending for the next cycle.
func (f *OneToOne) Process() Result {
	r := f.singleReader()
	w := f.singleWriter()
	if r == nil || w == nil {
		return Result{}
	}

	src := r.Front()
	if src == nil {
		return Result{}
	}
	dst := w.Rear()
	if dst == nil {
		return Result{}
	}

	ok := f.transform(src, dst)
	dst.SetConsumed(ok)

	res := Result{Produced: ok}
	res.Wake = append(res.Wake, r.Remove())
	if ok {
		dst.SetSequenceNumber(f.nextSeq())
		res.Wake = append(res.Wake, w.Add())
	}
	return res
}

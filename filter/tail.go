package filter

import (
	"sync"

	"github.com/zsiec/loom/media"
	"github.com/zsiec/loom/queue"
)

// Compile-time interface check.
var _ Filter = (*Tail)(nil)

// Tail is a pure sink node: one or more readers, zero writers. Each cycle
// drains one frame from every reader edge. Consumed frames are handed to
// the optional OnFrame callback (the session publisher's path) and copied
// into a single-shot extraction buffer for pull-style consumers.
type Tail struct {
	Node
	onFrame func(connID int, f media.Frame)

	mu    sync.Mutex
	out   media.Frame
	fresh bool
}

// NewTail creates a sink node accepting up to maxReaders incoming edges.
// Pass a negative maxReaders for no limit.
func NewTail(id int, role Role, maxReaders int) *Tail {
	t := &Tail{}
	t.Node = newNode(id, role, maxReaders, 0, func(queue.ConnectionData) (queue.FrameQueue, error) {
		panic("filter: tail allocates no outgoing queues")
	})
	return t
}

// SetOnFrame registers a delivery callback invoked once per consumed frame,
// before the queue slot is released. The callback must copy anything it
// keeps: the frame belongs to the queue slab and will be overwritten.
func (t *Tail) SetOnFrame(fn func(connID int, f media.Frame)) {
	t.onFrame = fn
}

// Process consumes the front frame of every reader edge that has one.
func (t *Tail) Process() Result {
	var res Result
	for connID, q := range t.snapshotReaders() {
		src := q.Front()
		if src == nil {
			continue
		}

		if t.onFrame != nil {
			t.onFrame(connID, src)
		}
		t.stash(src)

		res.Wake = append(res.Wake, q.Remove())
		res.Produced = true
	}
	return res
}

// Extract returns the most recently completed output frame once, then nil
// until a new frame completes. Single-shot hand-off, not a queue.
func (t *Tail) Extract() media.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.fresh {
		return nil
	}
	t.fresh = false
	return t.out
}

// stash copies src into the extraction buffer, allocating it on first use.
// The buffer is the only frame a Tail owns; it is reused for every cycle.
func (t *Tail) stash(src media.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.out == nil {
		t.out = newLike(src)
		if t.out == nil {
			return
		}
	}
	if copyPayload(t.out, src) {
		t.out.SetConsumed(src.Consumed())
		t.fresh = true
	}
}

// newLike allocates a fresh frame with the same layout and capacity as f.
func newLike(f media.Frame) media.Frame {
	switch v := f.(type) {
	case *media.InterleavedVideoFrame:
		if v.Codec() == media.VideoCodecRaw {
			w, h := v.Size()
			return media.NewRawVideoFrame(w, h, v.PixelFormat())
		}
		return media.NewInterleavedVideoFrame(v.Codec(), v.MaxLen())
	case *media.InterleavedAudioFrame:
		bps := v.SampleFormat().BytesPerSample()
		if bps == 0 || v.Channels() == 0 {
			return nil
		}
		return media.NewInterleavedAudioFrame(v.Channels(), v.SampleRate(),
			v.MaxLen()/(v.Channels()*bps), v.Codec(), v.SampleFormat())
	case *media.PlanarAudioFrame:
		bps := v.SampleFormat().BytesPerSample()
		if bps == 0 {
			return nil
		}
		return media.NewPlanarAudioFrame(v.Channels(), v.SampleRate(), v.MaxLen()/bps, v.Codec(), v.SampleFormat())
	default:
		return nil
	}
}

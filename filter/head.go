package filter

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zsiec/loom/media"
	"github.com/zsiec/loom/queue"
)

// Compile-time interface check.
var _ Filter = (*Head)(nil)

// ErrInjectMismatch is returned when an injected frame does not match the
// head's configured codec and format. The node's state is unchanged; the
// caller decides whether to retry or drop.
var ErrInjectMismatch = errors.New("filter: injected frame does not match head parameters")

// Head is a pure source node: zero readers, one or more writers. External
// producers push frames in with Inject; each processing cycle fans the
// pending frame's content out to every writer edge. The head uses ForceRear
// on its edges, so a live source is never blocked by a slow consumer — the
// newest queued frame on the congested edge is evicted instead.
type Head struct {
	Node
	validate func(media.Frame) error

	mu      sync.Mutex
	pending media.Frame
}

// NewVideoHead creates a source node for video frames. Injected frames must
// be interleaved video with the given codec and pixel format; outgoing
// edges carry slabs sized for the codec.
func NewVideoHead(id int, role Role, codec media.VideoCodec, pix media.PixelFormat, maxFrames int) *Head {
	h := &Head{
		validate: func(f media.Frame) error {
			vf, ok := f.(*media.InterleavedVideoFrame)
			if !ok || vf.Codec() != codec || vf.PixelFormat() != pix {
				return fmt.Errorf("want %s video: %w", codec, ErrInjectMismatch)
			}
			return nil
		},
	}
	h.Node = newNode(id, role, 0, -1, func(conn queue.ConnectionData) (queue.FrameQueue, error) {
		return queue.NewVideoQueue(conn, codec, maxFrames, pix)
	})
	return h
}

// NewAudioHead creates a source node for audio frames. Injected frames must
// carry the given channel count, sample rate, and sample format.
func NewAudioHead(id int, role Role, codec media.AudioCodec, sampleRate, channels int, format media.SampleFormat, maxFrames int) *Head {
	h := &Head{
		validate: func(f media.Frame) error {
			af, ok := f.(interface {
				media.Frame
				Channels() int
				SampleRate() int
				SampleFormat() media.SampleFormat
			})
			if !ok || af.Channels() != channels || af.SampleRate() != sampleRate || af.SampleFormat() != format {
				return fmt.Errorf("want %dch %dHz %s audio: %w", channels, sampleRate, format, ErrInjectMismatch)
			}
			return nil
		},
	}
	h.Node = newNode(id, role, 0, -1, func(conn queue.ConnectionData) (queue.FrameQueue, error) {
		return queue.NewAudioQueue(conn, codec, maxFrames, sampleRate, channels, format)
	})
	return h
}

// Inject offers a frame to the head. The frame is validated against the
// head's configured parameters and rejected on mismatch without modifying
// node state. On success it replaces any not-yet-processed pending frame:
// a live source always presents its latest frame.
func (h *Head) Inject(f media.Frame) error {
	if f == nil {
		return ErrInjectMismatch
	}
	if err := h.validate(f); err != nil {
		return err
	}

	h.mu.Lock()
	h.pending = f
	h.mu.Unlock()
	return nil
}

// Process copies the pending injected frame into every writer edge and
// commits the writes. Without a pending frame the cycle is a no-op.
func (h *Head) Process() Result {
	h.mu.Lock()
	src := h.pending
	h.pending = nil
	h.mu.Unlock()

	if src == nil {
		return Result{}
	}

	if src.PTS() == 0 {
		src.SetPTS(time.Now().UnixMicro())
	}
	seq := h.nextSeq()

	var res Result
	for _, q := range h.snapshotWriters() {
		dst := q.ForceRear()
		if !copyPayload(dst, src) {
			continue
		}
		dst.SetSequenceNumber(seq)
		dst.SetConsumed(true)
		res.Wake = append(res.Wake, q.Add())
		res.Produced = true
	}
	return res
}

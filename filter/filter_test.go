package filter

import (
	"bytes"
	"errors"
	"testing"

	"github.com/zsiec/loom/media"
	"github.com/zsiec/loom/queue"
)

// mockAlloc builds small untyped edges for exercising the node mechanics.
func mockAlloc(slots int) QueueAllocator {
	return func(conn queue.ConnectionData) (queue.FrameQueue, error) {
		frames := make([]media.Frame, slots)
		for i := range frames {
			frames[i] = media.NewInterleavedVideoFrame(media.VideoCodecH264, 16)
		}
		return queue.New(conn, frames)
	}
}

// copyTransform forwards the payload unchanged and reports gotFrame.
func copyTransform(gotFrame *bool) Transform {
	return func(src, dst media.Frame) bool {
		if !*gotFrame {
			return false
		}
		return copyPayload(dst, src)
	}
}

func injectVideo(t *testing.T, h *Head, payload []byte, seq uint64) {
	t.Helper()
	f := media.NewInterleavedVideoFrame(media.VideoCodecH264, 16)
	copy(f.Data(), payload)
	f.SetLen(len(payload))
	f.SetPTS(int64(seq) * 40_000)
	f.SetSequenceNumber(seq)
	if err := h.Inject(f); err != nil {
		t.Fatal(err)
	}
}

func TestConnect_Limits(t *testing.T) {
	t.Parallel()
	got := true
	f := NewOneToOne(2, Slave, mockAlloc(4), copyTransform(&got))
	tail1 := NewTail(3, Slave, 1)
	tail2 := NewTail(4, Slave, 1)

	if err := f.Connect(&tail1.Node, 1); err != nil {
		t.Fatal(err)
	}
	if err := f.Connect(&tail2.Node, 2); !errors.Is(err, ErrWriterLimit) {
		t.Errorf("second writer: err = %v, want ErrWriterLimit", err)
	}
	if err := f.Connect(&tail1.Node, 1); !errors.Is(err, ErrWriterLimit) {
		t.Errorf("duplicate conn: err = %v, want ErrWriterLimit", err)
	}

	// tail1 already has its single allowed reader.
	got2 := true
	other := NewOneToOne(5, Slave, mockAlloc(4), copyTransform(&got2))
	if err := other.Connect(&tail1.Node, 9); !errors.Is(err, ErrReaderLimit) {
		t.Errorf("reader over limit: err = %v, want ErrReaderLimit", err)
	}
}

func TestDisconnect(t *testing.T) {
	t.Parallel()
	got := true
	f := NewOneToOne(1, Slave, mockAlloc(4), copyTransform(&got))
	tail := NewTail(2, Slave, 1)

	if err := f.Connect(&tail.Node, 7); err != nil {
		t.Fatal(err)
	}
	if f.Writers() != 1 || tail.Readers() != 1 {
		t.Fatal("edge not registered on both sides")
	}

	if err := f.Disconnect(7); err != nil {
		t.Fatal(err)
	}
	if f.Writers() != 0 || tail.Readers() != 0 {
		t.Error("edge not removed from both sides")
	}
	if err := f.Disconnect(7); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestHead_InjectRejectsMismatch(t *testing.T) {
	t.Parallel()
	h := NewVideoHead(1, Master, media.VideoCodecH264, media.PixelFormatNone, 4)
	tail := NewTail(2, Slave, 1)
	if err := h.Connect(&tail.Node, 1); err != nil {
		t.Fatal(err)
	}

	wrongCodec := media.NewInterleavedVideoFrame(media.VideoCodecH265, 16)
	if err := h.Inject(wrongCodec); !errors.Is(err, ErrInjectMismatch) {
		t.Errorf("h265 into h264 head: err = %v, want ErrInjectMismatch", err)
	}
	wrongKind := media.NewInterleavedAudioFrame(2, 48000, 128, media.AudioCodecAAC, media.SampleFormatS16)
	if err := h.Inject(wrongKind); !errors.Is(err, ErrInjectMismatch) {
		t.Errorf("audio into video head: err = %v, want ErrInjectMismatch", err)
	}
	if err := h.Inject(nil); !errors.Is(err, ErrInjectMismatch) {
		t.Errorf("nil frame: err = %v, want ErrInjectMismatch", err)
	}

	// Rejected injections must not alter node state or the tail's next result.
	if res := h.Process(); res.Produced {
		t.Error("Process produced after rejected injections")
	}
	tail.Process()
	if tail.Extract() != nil {
		t.Error("Extract should return nil, rejected frames must not reach the tail")
	}
}

func TestHead_FanOut(t *testing.T) {
	t.Parallel()
	h := NewVideoHead(1, Master, media.VideoCodecH264, media.PixelFormatNone, 4)
	tailA := NewTail(2, Slave, 1)
	tailB := NewTail(3, Slave, 1)
	if err := h.Connect(&tailA.Node, 1); err != nil {
		t.Fatal(err)
	}
	if err := h.Connect(&tailB.Node, 2); err != nil {
		t.Fatal(err)
	}

	payload := []byte{0x65, 0x88, 0x84, 0x00}
	injectVideo(t, h, payload, 1)

	res := h.Process()
	if !res.Produced {
		t.Fatal("Process should produce with a pending frame")
	}
	if len(res.Wake) != 2 {
		t.Fatalf("Wake = %v, want both reader IDs", res.Wake)
	}
	woke := map[int]bool{}
	for _, id := range res.Wake {
		woke[id] = true
	}
	if !woke[2] || !woke[3] {
		t.Errorf("Wake = %v, want ids 2 and 3", res.Wake)
	}

	for _, q := range []queue.FrameQueue{h.WriterQueue(1), h.WriterQueue(2)} {
		f := q.Front()
		if f == nil {
			t.Fatal("edge should hold the fanned-out frame")
		}
		if !bytes.Equal(f.Data()[:f.Len()], payload) {
			t.Errorf("payload = %x, want %x", f.Data()[:f.Len()], payload)
		}
		if !f.Consumed() {
			t.Error("head output should be marked consumed")
		}
	}
}

func TestHead_LatestInjectionWins(t *testing.T) {
	t.Parallel()
	h := NewVideoHead(1, Master, media.VideoCodecH264, media.PixelFormatNone, 4)
	tail := NewTail(2, Slave, 1)
	if err := h.Connect(&tail.Node, 1); err != nil {
		t.Fatal(err)
	}

	injectVideo(t, h, []byte{0x01}, 1)
	injectVideo(t, h, []byte{0x02}, 2)

	h.Process()
	f := h.WriterQueue(1).Front()
	if f == nil || f.Data()[0] != 0x02 {
		t.Error("a second injection before processing must replace the first")
	}
	if res := h.Process(); res.Produced {
		t.Error("no further frame should be pending")
	}
}

func TestOneToOne_NotConsumedDoesNotStall(t *testing.T) {
	t.Parallel()
	gotFrame := false
	h := NewVideoHead(1, Master, media.VideoCodecH264, media.PixelFormatNone, 4)
	f := NewOneToOne(2, Slave, mockAlloc(4), copyTransform(&gotFrame))
	tail := NewTail(3, Slave, 1)
	if err := h.Connect(&f.Node, 1); err != nil {
		t.Fatal(err)
	}
	if err := f.Connect(&tail.Node, 2); err != nil {
		t.Fatal(err)
	}

	injectVideo(t, h, []byte{0xAA}, 1)
	h.Process()

	// Transform reports no output: the input slot must still be released
	// and nothing committed downstream.
	res := f.Process()
	if res.Produced {
		t.Error("Produced should be false when the transform makes no output")
	}
	if len(res.Wake) != 1 || res.Wake[0] != 1 {
		t.Errorf("Wake = %v, want the upstream writer ID only", res.Wake)
	}
	out := f.WriterQueue(2)
	if out.Front() != nil {
		t.Error("no frame should be committed downstream")
	}
	if out.Rear().Consumed() {
		t.Error("the written slot must be marked not-consumed")
	}

	// The edge is not stalled: the next frame flows through normally.
	gotFrame = true
	injectVideo(t, h, []byte{0xBB}, 2)
	h.Process()
	res = f.Process()
	if !res.Produced {
		t.Fatal("Produced should be true once the transform makes output")
	}
	got := out.Front()
	if got == nil || got.Data()[0] != 0xBB {
		t.Error("second frame should reach the output edge")
	}
	if !got.Consumed() {
		t.Error("output frame should be marked consumed")
	}
}

func TestOneToOne_DownstreamFullLeavesInputPending(t *testing.T) {
	t.Parallel()
	gotFrame := true
	h := NewVideoHead(1, Master, media.VideoCodecH264, media.PixelFormatNone, 8)
	f := NewOneToOne(2, Slave, mockAlloc(2), copyTransform(&gotFrame)) // 1 usable slot
	tail := NewTail(3, Slave, 1)
	if err := h.Connect(&f.Node, 1); err != nil {
		t.Fatal(err)
	}
	if err := f.Connect(&tail.Node, 2); err != nil {
		t.Fatal(err)
	}

	injectVideo(t, h, []byte{0x01}, 1)
	h.Process()
	if res := f.Process(); !res.Produced {
		t.Fatal("first frame should pass")
	}

	// Output edge now full; next frame must stay pending upstream.
	injectVideo(t, h, []byte{0x02}, 2)
	h.Process()
	if res := f.Process(); res.Produced {
		t.Error("Produced should be false while downstream is full")
	}
	in := h.WriterQueue(1)
	if in.Front() == nil {
		t.Error("input frame must remain pending while downstream is full")
	}

	// Tail drains one slot, the pending frame flows.
	tail.Process()
	if res := f.Process(); !res.Produced {
		t.Error("pending frame should pass once downstream drained")
	}
}

func TestOneToMany_SkipsFullEdges(t *testing.T) {
	t.Parallel()
	h := NewVideoHead(1, Master, media.VideoCodecH264, media.PixelFormatNone, 8)
	fan := NewOneToMany(2, Slave, 4, mockAlloc(2), func(src media.Frame, dst map[int]media.Frame) bool {
		for _, d := range dst {
			if !copyPayload(d, src) {
				return false
			}
		}
		return true
	})
	tailA := NewTail(3, Slave, 1)
	tailB := NewTail(4, Slave, 1)
	if err := h.Connect(&fan.Node, 1); err != nil {
		t.Fatal(err)
	}
	if err := fan.Connect(&tailA.Node, 2); err != nil {
		t.Fatal(err)
	}
	if err := fan.Connect(&tailB.Node, 3); err != nil {
		t.Fatal(err)
	}

	// First frame fills both 1-slot edges.
	injectVideo(t, h, []byte{0x01}, 1)
	h.Process()
	if res := fan.Process(); !res.Produced {
		t.Fatal("fan-out should produce on both edges")
	}

	// Drain only edge A; edge B stays full and is skipped next cycle.
	tailA.Process()
	injectVideo(t, h, []byte{0x02}, 2)
	h.Process()
	res := fan.Process()
	if !res.Produced {
		t.Fatal("fan-out should still produce on the free edge")
	}
	a := fan.WriterQueue(2).Front()
	if a == nil || a.Data()[0] != 0x02 {
		t.Error("free edge should carry the new frame")
	}
	b := fan.WriterQueue(3).Front()
	if b == nil || b.Data()[0] != 0x01 {
		t.Error("full edge must keep its old frame, not be overwritten")
	}
}

func TestTail_ExtractSingleShot(t *testing.T) {
	t.Parallel()
	h := NewVideoHead(1, Master, media.VideoCodecH264, media.PixelFormatNone, 4)
	tail := NewTail(2, Slave, 1)
	if err := h.Connect(&tail.Node, 1); err != nil {
		t.Fatal(err)
	}

	payload := []byte{0x09, 0x10}
	injectVideo(t, h, payload, 5)
	h.Process()

	var delivered int
	tail.SetOnFrame(func(connID int, f media.Frame) {
		delivered++
		if connID != 1 {
			t.Errorf("connID = %d, want 1", connID)
		}
	})

	if res := tail.Process(); !res.Produced {
		t.Fatal("tail should consume the queued frame")
	}
	if delivered != 1 {
		t.Errorf("OnFrame calls = %d, want 1", delivered)
	}

	f := tail.Extract()
	if f == nil {
		t.Fatal("Extract should return the completed frame")
	}
	if !bytes.Equal(f.Data()[:f.Len()], payload) {
		t.Errorf("payload = %x, want %x", f.Data()[:f.Len()], payload)
	}
	if tail.Extract() != nil {
		t.Error("second Extract must return nil until a new frame completes")
	}

	injectVideo(t, h, []byte{0x0B}, 6)
	h.Process()
	tail.Process()
	if tail.Extract() == nil {
		t.Error("Extract should return again after a new frame completes")
	}
}

func TestGraph_EndToEndFIFO(t *testing.T) {
	t.Parallel()
	gotFrame := true
	h := NewVideoHead(1, Master, media.VideoCodecH264, media.PixelFormatNone, 8)
	f := NewOneToOne(2, Slave, mockAlloc(8), copyTransform(&gotFrame))
	tail := NewTail(3, Slave, 1)
	if err := h.Connect(&f.Node, 1); err != nil {
		t.Fatal(err)
	}
	if err := f.Connect(&tail.Node, 2); err != nil {
		t.Fatal(err)
	}

	var seen []byte
	tail.SetOnFrame(func(_ int, fr media.Frame) {
		seen = append(seen, fr.Data()[0])
	})

	for i := byte(1); i <= 5; i++ {
		injectVideo(t, h, []byte{i}, uint64(i))
		h.Process()
		f.Process()
		tail.Process()
	}

	if !bytes.Equal(seen, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("delivery order = %v, want 1..5 in order", seen)
	}
}

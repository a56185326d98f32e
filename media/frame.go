// Package media defines the frame types that flow through the loom filter
// graph. Frames are mutable, reusable buffers: a queue allocates its whole
// slab of frames once at construction and rewrites them in place for the
// lifetime of the edge, so the steady state allocates nothing.
package media

// Frame is one media unit (an access unit, an audio frame, or a raw picture)
// plus its timing metadata. Exactly one queue slot owns a Frame at any
// instant; stages forward content between edges by copying bytes into the
// next edge's frame, never by handing the Frame itself across.
type Frame interface {
	// Data returns the interleaved buffer, or nil for planar frames.
	Data() []byte
	// PlaneData returns the per-plane buffers, or nil for interleaved frames.
	PlaneData() [][]byte
	// Len is the number of valid bytes currently stored (per plane for
	// planar frames).
	Len() int
	SetLen(n int)
	// MaxLen is the fixed buffer capacity set at construction.
	MaxLen() int
	Planar() bool

	// PTS is the presentation timestamp in microseconds.
	PTS() int64
	SetPTS(pts int64)
	// OriginTime is the capture/arrival timestamp in microseconds, carried
	// end to end for latency measurement.
	OriginTime() int64
	SetOriginTime(t int64)
	SequenceNumber() uint64
	SetSequenceNumber(n uint64)

	// Consumed reports whether the stage that last wrote this frame
	// actually produced usable output. A false value means "no output this
	// cycle" and is not an error.
	Consumed() bool
	SetConsumed(ok bool)
}

// frameMeta carries the timing metadata shared by every concrete frame type.
type frameMeta struct {
	pts      int64
	origin   int64
	seq      uint64
	consumed bool
}

func (m *frameMeta) PTS() int64                 { return m.pts }
func (m *frameMeta) SetPTS(pts int64)           { m.pts = pts }
func (m *frameMeta) OriginTime() int64          { return m.origin }
func (m *frameMeta) SetOriginTime(t int64)      { m.origin = t }
func (m *frameMeta) SequenceNumber() uint64     { return m.seq }
func (m *frameMeta) SetSequenceNumber(n uint64) { m.seq = n }
func (m *frameMeta) Consumed() bool             { return m.consumed }
func (m *frameMeta) SetConsumed(ok bool)        { m.consumed = ok }

// CopyMeta copies the timing metadata from src to dst. Stages use it when
// forwarding content across edges.
func CopyMeta(dst, src Frame) {
	dst.SetPTS(src.PTS())
	dst.SetOriginTime(src.OriginTime())
	dst.SetSequenceNumber(src.SequenceNumber())
}

// InterleavedVideoFrame holds one encoded video unit (NAL units for
// H264/H265, one frame for VP8) or one uncompressed picture in a single
// contiguous buffer.
type InterleavedVideoFrame struct {
	frameMeta
	codec  VideoCodec
	pix    PixelFormat
	width  int
	height int
	buf    []byte
	n      int
}

// NewInterleavedVideoFrame allocates a compressed video frame buffer of
// maxLen bytes.
func NewInterleavedVideoFrame(codec VideoCodec, maxLen int) *InterleavedVideoFrame {
	return &InterleavedVideoFrame{
		codec: codec,
		buf:   make([]byte, maxLen),
	}
}

// NewRawVideoFrame allocates an uncompressed picture buffer sized for the
// given dimensions and pixel format.
func NewRawVideoFrame(width, height int, pix PixelFormat) *InterleavedVideoFrame {
	return &InterleavedVideoFrame{
		codec:  VideoCodecRaw,
		pix:    pix,
		width:  width,
		height: height,
		buf:    make([]byte, pix.FrameSize(width, height)),
	}
}

func (f *InterleavedVideoFrame) Data() []byte        { return f.buf }
func (f *InterleavedVideoFrame) PlaneData() [][]byte { return nil }
func (f *InterleavedVideoFrame) Len() int            { return f.n }
func (f *InterleavedVideoFrame) MaxLen() int         { return len(f.buf) }
func (f *InterleavedVideoFrame) Planar() bool        { return false }

func (f *InterleavedVideoFrame) SetLen(n int) {
	if n > len(f.buf) {
		n = len(f.buf)
	}
	f.n = n
}

func (f *InterleavedVideoFrame) Codec() VideoCodec { return f.codec }

func (f *InterleavedVideoFrame) PixelFormat() PixelFormat     { return f.pix }
func (f *InterleavedVideoFrame) SetPixelFormat(p PixelFormat) { f.pix = p }

func (f *InterleavedVideoFrame) Size() (width, height int) { return f.width, f.height }
func (f *InterleavedVideoFrame) SetSize(width, height int) {
	f.width = width
	f.height = height
}

// MaxSamples returns the per-frame sample budget for a sample rate: room
// for 125ms of audio, enough for the largest frame any supported codec
// produces at that rate.
func MaxSamples(sampleRate int) int {
	return sampleRate / 8
}

// InterleavedAudioFrame holds one audio frame with all channels interleaved
// in a single buffer.
type InterleavedAudioFrame struct {
	frameMeta
	codec      AudioCodec
	format     SampleFormat
	channels   int
	sampleRate int
	samples    int
	buf        []byte
	n          int
}

// NewInterleavedAudioFrame allocates an interleaved audio frame sized for
// maxSamples samples across all channels.
func NewInterleavedAudioFrame(channels, sampleRate, maxSamples int, codec AudioCodec, format SampleFormat) *InterleavedAudioFrame {
	return &InterleavedAudioFrame{
		codec:      codec,
		format:     format,
		channels:   channels,
		sampleRate: sampleRate,
		buf:        make([]byte, channels*maxSamples*format.BytesPerSample()),
	}
}

func (f *InterleavedAudioFrame) Data() []byte        { return f.buf }
func (f *InterleavedAudioFrame) PlaneData() [][]byte { return nil }
func (f *InterleavedAudioFrame) Len() int            { return f.n }
func (f *InterleavedAudioFrame) MaxLen() int         { return len(f.buf) }
func (f *InterleavedAudioFrame) Planar() bool        { return false }

func (f *InterleavedAudioFrame) SetLen(n int) {
	if n > len(f.buf) {
		n = len(f.buf)
	}
	f.n = n
}

func (f *InterleavedAudioFrame) Codec() AudioCodec          { return f.codec }
func (f *InterleavedAudioFrame) SampleFormat() SampleFormat { return f.format }
func (f *InterleavedAudioFrame) Channels() int              { return f.channels }
func (f *InterleavedAudioFrame) SampleRate() int            { return f.sampleRate }
func (f *InterleavedAudioFrame) Samples() int               { return f.samples }
func (f *InterleavedAudioFrame) SetSamples(n int)           { f.samples = n }

// PlanarAudioFrame holds one audio frame with a separate buffer per channel.
type PlanarAudioFrame struct {
	frameMeta
	codec      AudioCodec
	format     SampleFormat
	channels   int
	sampleRate int
	samples    int
	planes     [][]byte
	n          int
}

// NewPlanarAudioFrame allocates one buffer of maxSamples samples per channel.
func NewPlanarAudioFrame(channels, sampleRate, maxSamples int, codec AudioCodec, format SampleFormat) *PlanarAudioFrame {
	planes := make([][]byte, channels)
	for i := range planes {
		planes[i] = make([]byte, maxSamples*format.BytesPerSample())
	}
	return &PlanarAudioFrame{
		codec:      codec,
		format:     format,
		channels:   channels,
		sampleRate: sampleRate,
		planes:     planes,
	}
}

func (f *PlanarAudioFrame) Data() []byte        { return nil }
func (f *PlanarAudioFrame) PlaneData() [][]byte { return f.planes }
func (f *PlanarAudioFrame) Len() int            { return f.n }
func (f *PlanarAudioFrame) Planar() bool        { return true }

// MaxLen is the capacity of a single plane; every plane is the same size.
func (f *PlanarAudioFrame) MaxLen() int {
	if len(f.planes) == 0 {
		return 0
	}
	return len(f.planes[0])
}

func (f *PlanarAudioFrame) SetLen(n int) {
	if max := f.MaxLen(); n > max {
		n = max
	}
	f.n = n
}

func (f *PlanarAudioFrame) Codec() AudioCodec          { return f.codec }
func (f *PlanarAudioFrame) SampleFormat() SampleFormat { return f.format }
func (f *PlanarAudioFrame) Channels() int              { return f.channels }
func (f *PlanarAudioFrame) SampleRate() int            { return f.sampleRate }
func (f *PlanarAudioFrame) Samples() int               { return f.samples }
func (f *PlanarAudioFrame) SetSamples(n int)           { f.samples = n }

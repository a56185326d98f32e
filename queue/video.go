package queue

import (
	"errors"
	"fmt"

	"github.com/zsiec/loom/media"
)

// Sentinel errors for typed queue setup. Setup failures are configuration
// errors: they surface once at construction and are never retried.
var (
	ErrUnsupportedCodec        = errors.New("queue: codec not supported")
	ErrNoPixelFormat           = errors.New("queue: raw video requires a pixel format")
	ErrUnsupportedSampleFormat = errors.New("queue: sample format not supported")
)

// Frame sizing constants for the video slab.
const (
	// maxNALSize bounds a single H264/H265 NAL unit. 2 MiB covers 4K
	// keyframes at high bitrates.
	maxNALSize = 2 << 20
	// maxVP8FrameSize bounds one compressed VP8 frame.
	maxVP8FrameSize = 1 << 20
	// Raw frames are sized for 1080p; larger sources must scale upstream.
	defaultWidth  = 1920
	defaultHeight = 1080
)

// DefaultVideoFrames is the slab size used when a filter has no reason to
// choose otherwise: ~1 second of video at 30fps.
const DefaultVideoFrames = 32

// VideoQueue is a FramedQueue whose slab is sized and typed for one video
// codec. The optional extradata blob (e.g. codec config) is attached after
// construction and consumed by session description generation.
type VideoQueue struct {
	*FramedQueue
	codec     media.VideoCodec
	pix       media.PixelFormat
	extradata []byte
}

// NewVideoQueue builds a video edge with maxFrames slots, each preallocated
// per codec: H264/H265 slots hold the largest supported NAL unit, VP8 slots
// one compressed frame, and raw slots one default-size picture in the given
// pixel format (which must be specified). Unsupported codecs fail; no
// partially built queue is ever returned.
func NewVideoQueue(conn ConnectionData, codec media.VideoCodec, maxFrames int, pix media.PixelFormat) (*VideoQueue, error) {
	if maxFrames < 2 {
		return nil, ErrCapacity
	}

	frames := make([]media.Frame, maxFrames)
	switch codec {
	case media.VideoCodecH264, media.VideoCodecH265:
		for i := range frames {
			frames[i] = media.NewInterleavedVideoFrame(codec, maxNALSize)
		}
	case media.VideoCodecVP8:
		for i := range frames {
			frames[i] = media.NewInterleavedVideoFrame(codec, maxVP8FrameSize)
		}
	case media.VideoCodecRaw:
		if pix == media.PixelFormatNone {
			return nil, ErrNoPixelFormat
		}
		for i := range frames {
			frames[i] = media.NewRawVideoFrame(defaultWidth, defaultHeight, pix)
		}
	default:
		return nil, fmt.Errorf("video codec %s: %w", codec, ErrUnsupportedCodec)
	}

	fq, err := New(conn, frames)
	if err != nil {
		return nil, err
	}
	return &VideoQueue{FramedQueue: fq, codec: codec, pix: pix}, nil
}

// Codec returns the codec the slab was sized for.
func (q *VideoQueue) Codec() media.VideoCodec { return q.codec }

// PixelFormat returns the pixel format for raw queues, PixelFormatNone
// otherwise.
func (q *VideoQueue) PixelFormat() media.PixelFormat { return q.pix }

// SetExtradata attaches the out-of-band codec configuration blob.
func (q *VideoQueue) SetExtradata(b []byte) { q.extradata = b }

// Extradata returns the attached codec configuration blob, or nil.
func (q *VideoQueue) Extradata() []byte { return q.extradata }

package queue

import (
	"fmt"

	"github.com/zsiec/loom/media"
)

// DefaultAudioFrames is the default audio slab size: audio frames are small
// and frequent, so the slab is deeper than the video one.
const DefaultAudioFrames = 64

// G711 is narrowband telephony audio; its parameters are fixed by the
// standard regardless of what the caller asks for.
const (
	g711Channels     = 1
	g711SampleRate   = 8000
	g711SampleFormat = media.SampleFormatU8
)

// AudioQueue is a FramedQueue whose slab is sized and typed for one audio
// codec. The effective channel count, sample rate, and sample format may
// differ from the requested ones where the codec forces them.
type AudioQueue struct {
	*FramedQueue
	codec      media.AudioCodec
	format     media.SampleFormat
	sampleRate int
	channels   int
	extradata  []byte
}

// NewAudioQueue builds an audio edge with maxFrames slots preallocated per
// codec. Compressed codecs (Opus, AAC, MP3) force 16-bit signed interleaved
// samples; PCM/PCMU accept any supported interleaved or planar format and
// allocate the matching layout; G711 forces mono 8kHz unsigned 8-bit.
// Unsupported codec/format combinations fail without returning a queue.
func NewAudioQueue(conn ConnectionData, codec media.AudioCodec, maxFrames, sampleRate, channels int, format media.SampleFormat) (*AudioQueue, error) {
	if maxFrames < 2 {
		return nil, ErrCapacity
	}

	frames := make([]media.Frame, maxFrames)
	switch codec {
	case media.AudioCodecOpus, media.AudioCodecAAC, media.AudioCodecMP3:
		format = media.SampleFormatS16
		for i := range frames {
			frames[i] = media.NewInterleavedAudioFrame(channels, sampleRate, media.MaxSamples(sampleRate), codec, format)
		}

	case media.AudioCodecPCM, media.AudioCodecPCMU:
		switch format {
		case media.SampleFormatU8, media.SampleFormatS16, media.SampleFormatFlt:
			for i := range frames {
				frames[i] = media.NewInterleavedAudioFrame(channels, sampleRate, media.MaxSamples(sampleRate), codec, format)
			}
		case media.SampleFormatU8P, media.SampleFormatS16P, media.SampleFormatFltP:
			for i := range frames {
				frames[i] = media.NewPlanarAudioFrame(channels, sampleRate, media.MaxSamples(sampleRate), codec, format)
			}
		default:
			return nil, fmt.Errorf("sample format %s: %w", format, ErrUnsupportedSampleFormat)
		}

	case media.AudioCodecG711:
		channels = g711Channels
		sampleRate = g711SampleRate
		format = g711SampleFormat
		for i := range frames {
			frames[i] = media.NewInterleavedAudioFrame(channels, sampleRate, media.MaxSamples(sampleRate), codec, format)
		}

	default:
		return nil, fmt.Errorf("audio codec %s: %w", codec, ErrUnsupportedCodec)
	}

	fq, err := New(conn, frames)
	if err != nil {
		return nil, err
	}
	return &AudioQueue{
		FramedQueue: fq,
		codec:       codec,
		format:      format,
		sampleRate:  sampleRate,
		channels:    channels,
	}, nil
}

// Codec returns the codec the slab was sized for.
func (q *AudioQueue) Codec() media.AudioCodec { return q.codec }

// SampleFormat returns the effective sample format after codec forcing.
func (q *AudioQueue) SampleFormat() media.SampleFormat { return q.format }

// SampleRate returns the effective sample rate after codec forcing.
func (q *AudioQueue) SampleRate() int { return q.sampleRate }

// Channels returns the effective channel count after codec forcing.
func (q *AudioQueue) Channels() int { return q.channels }

// SetExtradata attaches the out-of-band codec configuration blob.
func (q *AudioQueue) SetExtradata(b []byte) { q.extradata = b }

// Extradata returns the attached codec configuration blob, or nil.
func (q *AudioQueue) Extradata() []byte { return q.extradata }

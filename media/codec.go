package media

// VideoCodec identifies the video codec carried by a frame or queue.
type VideoCodec int

// Supported video codecs.
const (
	VideoCodecUnknown VideoCodec = iota
	VideoCodecH264
	VideoCodecH265
	VideoCodecVP8
	VideoCodecRaw
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecH264:
		return "h264"
	case VideoCodecH265:
		return "h265"
	case VideoCodecVP8:
		return "vp8"
	case VideoCodecRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// AudioCodec identifies the audio codec carried by a frame or queue.
type AudioCodec int

// Supported audio codecs.
const (
	AudioCodecUnknown AudioCodec = iota
	AudioCodecOpus
	AudioCodecAAC
	AudioCodecMP3
	AudioCodecPCM
	AudioCodecPCMU
	AudioCodecG711
)

func (c AudioCodec) String() string {
	switch c {
	case AudioCodecOpus:
		return "opus"
	case AudioCodecAAC:
		return "aac"
	case AudioCodecMP3:
		return "mp3"
	case AudioCodecPCM:
		return "pcm"
	case AudioCodecPCMU:
		return "pcmu"
	case AudioCodecG711:
		return "g711"
	default:
		return "unknown"
	}
}

// PixelFormat identifies the memory layout of an uncompressed video frame.
type PixelFormat int

// Supported pixel formats. PixelFormatNone means "not specified"; raw video
// queues reject it at setup.
const (
	PixelFormatNone PixelFormat = iota
	PixelFormatYUV420P
	PixelFormatYUV422P
	PixelFormatYUV444P
	PixelFormatRGB24
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatYUV420P:
		return "yuv420p"
	case PixelFormatYUV422P:
		return "yuv422p"
	case PixelFormatYUV444P:
		return "yuv444p"
	case PixelFormatRGB24:
		return "rgb24"
	default:
		return "none"
	}
}

// FrameSize returns the byte size of one width×height picture in this
// pixel format, or 0 for PixelFormatNone.
func (p PixelFormat) FrameSize(width, height int) int {
	pixels := width * height
	switch p {
	case PixelFormatYUV420P:
		return pixels * 3 / 2
	case PixelFormatYUV422P:
		return pixels * 2
	case PixelFormatYUV444P, PixelFormatRGB24:
		return pixels * 3
	default:
		return 0
	}
}

// SampleFormat identifies the numeric format and layout of audio samples.
type SampleFormat int

// Supported sample formats. The P suffix marks planar layouts (one buffer
// per channel); the others are interleaved.
const (
	SampleFormatNone SampleFormat = iota
	SampleFormatU8
	SampleFormatS16
	SampleFormatFlt
	SampleFormatU8P
	SampleFormatS16P
	SampleFormatFltP
)

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatU8:
		return "u8"
	case SampleFormatS16:
		return "s16"
	case SampleFormatFlt:
		return "flt"
	case SampleFormatU8P:
		return "u8p"
	case SampleFormatS16P:
		return "s16p"
	case SampleFormatFltP:
		return "fltp"
	default:
		return "none"
	}
}

// Planar reports whether the format stores each channel in its own buffer.
func (f SampleFormat) Planar() bool {
	switch f {
	case SampleFormatU8P, SampleFormatS16P, SampleFormatFltP:
		return true
	default:
		return false
	}
}

// BytesPerSample returns the storage size of a single sample, or 0 for
// SampleFormatNone.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatU8, SampleFormatU8P:
		return 1
	case SampleFormatS16, SampleFormatS16P:
		return 2
	case SampleFormatFlt, SampleFormatFltP:
		return 4
	default:
		return 0
	}
}

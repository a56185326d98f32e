package queue

import (
	"errors"
	"testing"

	"github.com/zsiec/loom/media"
)

func TestNewAudioQueue_G711ForcesParameters(t *testing.T) {
	t.Parallel()
	// Request stereo 48kHz float; G711 must force mono 8kHz u8.
	q, err := NewAudioQueue(ConnectionData{WriterID: 1, ReaderID: 2},
		media.AudioCodecG711, 4, 48000, 2, media.SampleFormatFlt)
	if err != nil {
		t.Fatal(err)
	}
	defer q.Close()

	if q.Channels() != 1 {
		t.Errorf("Channels = %d, want 1", q.Channels())
	}
	if q.SampleRate() != 8000 {
		t.Errorf("SampleRate = %d, want 8000", q.SampleRate())
	}
	if q.SampleFormat() != media.SampleFormatU8 {
		t.Errorf("SampleFormat = %v, want u8", q.SampleFormat())
	}

	f := q.Rear().(*media.InterleavedAudioFrame)
	if f.Channels() != 1 || f.SampleRate() != 8000 || f.SampleFormat() != media.SampleFormatU8 {
		t.Error("slab frames must carry the forced G711 parameters")
	}
}

func TestNewAudioQueue_CompressedForcesS16(t *testing.T) {
	t.Parallel()
	for _, codec := range []media.AudioCodec{media.AudioCodecOpus, media.AudioCodecAAC, media.AudioCodecMP3} {
		q, err := NewAudioQueue(ConnectionData{}, codec, 4, 48000, 2, media.SampleFormatFltP)
		if err != nil {
			t.Fatalf("%v: %v", codec, err)
		}
		if q.SampleFormat() != media.SampleFormatS16 {
			t.Errorf("%v: SampleFormat = %v, want s16", codec, q.SampleFormat())
		}
		if q.Rear().Planar() {
			t.Errorf("%v: slab frames must be interleaved", codec)
		}
		q.Close()
	}
}

func TestNewAudioQueue_PCMLayouts(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		format  media.SampleFormat
		planar  bool
		wantErr bool
	}{
		{"u8_interleaved", media.SampleFormatU8, false, false},
		{"s16_interleaved", media.SampleFormatS16, false, false},
		{"flt_interleaved", media.SampleFormatFlt, false, false},
		{"u8_planar", media.SampleFormatU8P, true, false},
		{"s16_planar", media.SampleFormatS16P, true, false},
		{"flt_planar", media.SampleFormatFltP, true, false},
		{"none_rejected", media.SampleFormatNone, false, true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			q, err := NewAudioQueue(ConnectionData{}, media.AudioCodecPCM, 4, 44100, 2, tc.format)
			if tc.wantErr {
				if !errors.Is(err, ErrUnsupportedSampleFormat) {
					t.Errorf("err = %v, want ErrUnsupportedSampleFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			defer q.Close()
			if got := q.Rear().Planar(); got != tc.planar {
				t.Errorf("Planar = %v, want %v", got, tc.planar)
			}
		})
	}
}

func TestNewAudioQueue_UnsupportedCodec(t *testing.T) {
	t.Parallel()
	_, err := NewAudioQueue(ConnectionData{}, media.AudioCodecUnknown, 4, 48000, 2, media.SampleFormatS16)
	if !errors.Is(err, ErrUnsupportedCodec) {
		t.Errorf("err = %v, want ErrUnsupportedCodec", err)
	}
}

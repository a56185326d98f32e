package demux

import (
	"bytes"
	"errors"
	"testing"
)

// adtsBytes builds one ADTS frame: 7-byte header (no CRC) + payload.
func adtsBytes(rateIdx, channels int, payload []byte) []byte {
	frameLen := 7 + len(payload)
	header := []byte{
		0xFF, 0xF1, // syncword, MPEG-4, no CRC
		byte(1<<6) | byte(rateIdx<<2) | byte(channels>>2&0x01),
		byte(channels&0x03)<<6 | byte(frameLen>>11&0x03),
		byte(frameLen >> 3),
		byte(frameLen&0x07)<<5 | 0x1F,
		0xFC,
	}
	return append(header, payload...)
}

func TestSplitADTS(t *testing.T) {
	t.Parallel()

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	data := adtsBytes(3, 2, payload) // 48kHz stereo
	data = append(data, adtsBytes(3, 2, payload)...)

	frames, err := splitADTS(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	for i, f := range frames {
		if f.sampleRate != 48000 {
			t.Errorf("frame %d sample rate = %d, want 48000", i, f.sampleRate)
		}
		if f.channels != 2 {
			t.Errorf("frame %d channels = %d, want 2", i, f.channels)
		}
		if !bytes.Equal(f.data[7:], payload) {
			t.Errorf("frame %d payload = %x, want %x", i, f.data[7:], payload)
		}
	}
}

func TestSplitADTS_Resync(t *testing.T) {
	t.Parallel()
	data := []byte{0x12, 0x34, 0x56} // garbage before the first syncword
	data = append(data, adtsBytes(4, 2, []byte{0x01, 0x02})...)

	frames, err := splitADTS(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].sampleRate != 44100 {
		t.Errorf("sample rate = %d, want 44100", frames[0].sampleRate)
	}
}

func TestSplitADTS_Truncated(t *testing.T) {
	t.Parallel()

	frames, err := splitADTS(nil)
	if err != nil || len(frames) != 0 {
		t.Errorf("nil input: frames=%d err=%v", len(frames), err)
	}

	// Header promises more bytes than the buffer holds.
	full := adtsBytes(3, 2, []byte{0x01, 0x02, 0x03, 0x04})
	frames, err = splitADTS(full[:8])
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 0 {
		t.Errorf("truncated frame should be dropped, got %d frames", len(frames))
	}
}

func TestSplitADTS_BadSampleRateIndex(t *testing.T) {
	t.Parallel()
	data := adtsBytes(15, 2, []byte{0x01}) // reserved index
	if _, err := splitADTS(data); !errors.Is(err, ErrInvalidADTS) {
		t.Errorf("err = %v, want ErrInvalidADTS", err)
	}
}

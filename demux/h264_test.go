package demux

import (
	"bytes"
	"testing"
)

func TestSplitAnnexB(t *testing.T) {
	t.Parallel()

	// Mixed 3- and 4-byte start codes.
	var data []byte
	data = append(data, 0x00, 0x00, 0x00, 0x01, 0x67, 0x42)
	data = append(data, 0x00, 0x00, 0x01, 0x68, 0xCE)
	data = append(data, 0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x80)

	nalus := splitAnnexB(data)
	if len(nalus) != 3 {
		t.Fatalf("got %d NALUs, want 3", len(nalus))
	}
	want := [][]byte{{0x67, 0x42}, {0x68, 0xCE}, {0x65, 0x88, 0x80}}
	for i, nalu := range nalus {
		if !bytes.Equal(nalu, want[i]) {
			t.Errorf("NALU %d = %x, want %x", i, nalu, want[i])
		}
	}
}

func TestSplitAnnexB_Empty(t *testing.T) {
	t.Parallel()
	if got := splitAnnexB(nil); got != nil {
		t.Errorf("nil input produced %d NALUs", len(got))
	}
	if got := splitAnnexB([]byte{0x65, 0x88}); got != nil {
		t.Error("data with no start code should produce no NALUs")
	}
}

func TestSplitAnnexB_TrailingZeroTrim(t *testing.T) {
	t.Parallel()
	// The leading zero of a following 4-byte start code must not leak into
	// the previous NALU.
	data := []byte{
		0x00, 0x00, 0x01, 0x41, 0x9A,
		0x00, 0x00, 0x00, 0x01, 0x41, 0x9B,
	}
	nalus := splitAnnexB(data)
	if len(nalus) != 2 {
		t.Fatalf("got %d NALUs, want 2", len(nalus))
	}
	if !bytes.Equal(nalus[0], []byte{0x41, 0x9A}) {
		t.Errorf("NALU 0 = %x, want 419a", nalus[0])
	}
	if !bytes.Equal(nalus[1], []byte{0x41, 0x9B}) {
		t.Errorf("NALU 1 = %x, want 419b", nalus[1])
	}
}

func TestParseAccessUnit(t *testing.T) {
	t.Parallel()

	var data []byte
	appendNALU := func(nalu ...byte) {
		data = append(data, 0x00, 0x00, 0x00, 0x01)
		data = append(data, nalu...)
	}
	appendNALU(0x09, 0xF0)       // AUD, dropped
	appendNALU(0x67, 0x42, 0x1E) // SPS
	appendNALU(0x68, 0xCE)       // PPS
	appendNALU(0x06, 0x04, 0x01) // SEI
	appendNALU(0x65, 0x88)       // IDR slice

	au := parseAccessUnit(data)
	if !au.keyframe {
		t.Error("IDR slice should mark the access unit as a keyframe")
	}
	if len(au.nalus) != 4 {
		t.Errorf("got %d NALUs, want 4 (AUD dropped)", len(au.nalus))
	}
	if !bytes.Equal(au.sps, []byte{0x67, 0x42, 0x1E}) {
		t.Errorf("sps = %x", au.sps)
	}
	if !bytes.Equal(au.pps, []byte{0x68, 0xCE}) {
		t.Errorf("pps = %x", au.pps)
	}
	if len(au.sei) != 1 || !bytes.Equal(au.sei[0], []byte{0x06, 0x04, 0x01}) {
		t.Errorf("sei = %x", au.sei)
	}
}

func TestParseAccessUnit_SPSTrailingZeroTrimmed(t *testing.T) {
	t.Parallel()
	// A parameter set ending in 0x00 followed by another start code: the
	// zero is indistinguishable from the next start-code prefix and a valid
	// NAL cannot end in 0x00 (rbsp stop bit), so it is trimmed.
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0x00,
		0x00, 0x00, 0x00, 0x01, 0x65, 0x88,
	}
	au := parseAccessUnit(data)
	if !bytes.Equal(au.sps, []byte{0x67, 0x42}) {
		t.Errorf("sps = %x, want 6742 with trailing zero trimmed", au.sps)
	}
	if !au.keyframe {
		t.Error("IDR slice should still mark the keyframe")
	}
}

func TestParseAccessUnit_NonIDR(t *testing.T) {
	t.Parallel()
	au := parseAccessUnit([]byte{0x00, 0x00, 0x01, 0x41, 0x9A})
	if au.keyframe {
		t.Error("non-IDR slice should not mark a keyframe")
	}
	if len(au.nalus) != 1 {
		t.Errorf("got %d NALUs, want 1", len(au.nalus))
	}
}

func TestAppendAnnexB(t *testing.T) {
	t.Parallel()
	nalus := [][]byte{{0x67, 0x42}, {0x65}}

	if got := annexBSize(nalus); got != 11 {
		t.Errorf("annexBSize = %d, want 11", got)
	}
	out := appendAnnexB(make([]byte, 0, annexBSize(nalus)), nalus)
	want := []byte{0, 0, 0, 1, 0x67, 0x42, 0, 0, 0, 1, 0x65}
	if !bytes.Equal(out, want) {
		t.Errorf("appendAnnexB = %x, want %x", out, want)
	}
}

package publish

import (
	"bytes"
	"errors"
	"testing"
)

func TestGroupWriterRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	gw := groupWriter{trackAlias: 3, priority: PriorityVideo}

	if err := gw.startGroup(&buf); err != nil {
		t.Fatal(err)
	}
	objs := []*Object{
		{PTS: 1_000_000, Keyframe: true, Payload: []byte{0x65, 0x88}},
		{PTS: 1_040_000, Payload: []byte{0x41, 0x9A, 0x00}},
	}
	for _, obj := range objs {
		if err := gw.writeObject(&buf, obj); err != nil {
			t.Fatal(err)
		}
	}

	hdr, err := readGroupHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if hdr.trackAlias != 3 {
		t.Errorf("track alias = %d, want 3", hdr.trackAlias)
	}
	if hdr.groupID != 0 {
		t.Errorf("group ID = %d, want 0", hdr.groupID)
	}
	if hdr.priority != PriorityVideo {
		t.Errorf("priority = %d, want %d", hdr.priority, PriorityVideo)
	}

	for i, want := range objs {
		got, err := readObject(&buf)
		if err != nil {
			t.Fatalf("object %d: %v", i, err)
		}
		if got.objectID != uint64(i) {
			t.Errorf("object %d ID = %d", i, got.objectID)
		}
		if got.pts != want.PTS {
			t.Errorf("object %d PTS = %d, want %d", i, got.pts, want.PTS)
		}
		if got.keyframe != want.Keyframe {
			t.Errorf("object %d keyframe = %v, want %v", i, got.keyframe, want.Keyframe)
		}
		if !bytes.Equal(got.payload, want.Payload) {
			t.Errorf("object %d payload = %x, want %x", i, got.payload, want.Payload)
		}
	}
}

func TestGroupWriterGroupSequence(t *testing.T) {
	t.Parallel()

	gw := groupWriter{trackAlias: 1, priority: PriorityAudio}
	for want := uint64(0); want < 3; want++ {
		var buf bytes.Buffer
		if err := gw.startGroup(&buf); err != nil {
			t.Fatal(err)
		}
		hdr, err := readGroupHeader(&buf)
		if err != nil {
			t.Fatal(err)
		}
		if hdr.groupID != want {
			t.Errorf("group ID = %d, want %d", hdr.groupID, want)
		}
	}
}

func TestReadGroupHeaderBadStreamType(t *testing.T) {
	t.Parallel()

	buf := bytes.NewBuffer([]byte{0x01, 0x00, 0x00, 0x00})
	if _, err := readGroupHeader(buf); !errors.Is(err, ErrBadFraming) {
		t.Errorf("err = %v, want ErrBadFraming", err)
	}
}

func TestSubscribeRequestRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	writeString := func(s string) {
		buf.WriteByte(byte(len(s)))
		buf.WriteString(s)
	}
	writeString("camera1")
	writeString("video")

	session, track, err := readSubscribeRequest(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if session != "camera1" || track != "video" {
		t.Errorf("got %q/%q, want camera1/video", session, track)
	}
}

func TestReadStringTooLong(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	buf.Write([]byte{0x41, 0x01}) // 2-byte varint: 257
	if _, err := readString(&buf); !errors.Is(err, ErrBadFraming) {
		t.Errorf("err = %v, want ErrBadFraming", err)
	}
}

package publish

import (
	"errors"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// Wire framing. Each unidirectional QUIC stream carries one group of
// objects for one track:
//
//	group header:  varint stream type | varint track alias |
//	               varint group ID    | priority byte
//	object:        varint object ID   | varint PTS (µs) | flags byte |
//	               varint payload len | payload bytes
//
// Video groups are keyframe-aligned: a keyframe object always starts a new
// group so late joiners can decode from any group boundary. Audio and
// caption groups roll over after a fixed object count.
const (
	streamTypeGroup uint64 = 0x10

	objFlagKeyframe byte = 0x01
)

// ErrBadFraming is returned when a group or object header cannot be parsed.
var ErrBadFraming = errors.New("publish: bad wire framing")

// Object is one media payload queued for delivery: a video access unit, an
// audio frame, or an encoded caption line. PTS is microseconds.
type Object struct {
	PTS      int64
	Keyframe bool
	Payload  []byte
}

// groupWriter frames one track's groups and objects onto QUIC streams.
// Object IDs restart at zero in each group.
type groupWriter struct {
	trackAlias uint64
	priority   byte
	groupID    uint64
	objectID   uint64
}

// startGroup writes a group header for the next group ID and resets the
// object counter.
func (g *groupWriter) startGroup(w io.Writer) error {
	g.objectID = 0

	var buf []byte
	buf = quicvarint.Append(buf, streamTypeGroup)
	buf = quicvarint.Append(buf, g.trackAlias)
	buf = quicvarint.Append(buf, g.groupID)
	buf = append(buf, g.priority)
	g.groupID++

	_, err := w.Write(buf)
	return err
}

// writeObject appends one object to the current group.
func (g *groupWriter) writeObject(w io.Writer, obj *Object) error {
	var flags byte
	if obj.Keyframe {
		flags |= objFlagKeyframe
	}

	var hdr []byte
	hdr = quicvarint.Append(hdr, g.objectID)
	hdr = quicvarint.Append(hdr, uint64(obj.PTS))
	hdr = append(hdr, flags)
	hdr = quicvarint.Append(hdr, uint64(len(obj.Payload)))
	g.objectID++

	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(obj.Payload)
	return err
}

// groupHeader is the parsed form of a group stream header.
type groupHeader struct {
	trackAlias uint64
	groupID    uint64
	priority   byte
}

// wireObject is the parsed form of one framed object.
type wireObject struct {
	objectID uint64
	pts      int64
	keyframe bool
	payload  []byte
}

func readGroupHeader(r quicvarint.Reader) (groupHeader, error) {
	var h groupHeader
	st, err := quicvarint.Read(r)
	if err != nil {
		return h, err
	}
	if st != streamTypeGroup {
		return h, fmt.Errorf("stream type 0x%x: %w", st, ErrBadFraming)
	}
	if h.trackAlias, err = quicvarint.Read(r); err != nil {
		return h, err
	}
	if h.groupID, err = quicvarint.Read(r); err != nil {
		return h, err
	}
	if h.priority, err = r.ReadByte(); err != nil {
		return h, err
	}
	return h, nil
}

func readObject(r quicvarint.Reader) (wireObject, error) {
	var o wireObject
	id, err := quicvarint.Read(r)
	if err != nil {
		return o, err
	}
	o.objectID = id

	pts, err := quicvarint.Read(r)
	if err != nil {
		return o, err
	}
	o.pts = int64(pts)

	flags, err := r.ReadByte()
	if err != nil {
		return o, err
	}
	o.keyframe = flags&objFlagKeyframe != 0

	size, err := quicvarint.Read(r)
	if err != nil {
		return o, err
	}
	o.payload = make([]byte, size)
	if _, err := io.ReadFull(r, o.payload); err != nil {
		return o, err
	}
	return o, nil
}

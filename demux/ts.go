package demux

import (
	"errors"
	"fmt"
)

const (
	packetSize = 188
	syncByte   = 0x47

	pidPAT = 0x0000

	streamTypeH264 = 0x1B
	streamTypeH265 = 0x24
	streamTypeAAC  = 0x0F
)

// ErrBadSync is returned when a TS packet does not start with 0x47.
var ErrBadSync = errors.New("demux: bad TS sync byte")

// tsPacket is one parsed 188-byte transport packet.
type tsPacket struct {
	pid     uint16
	pusi    bool
	payload []byte
}

// parseTSPacket extracts the PID, payload-unit-start indicator, and payload
// from one 188-byte packet, skipping the adaptation field if present.
func parseTSPacket(buf []byte) (tsPacket, error) {
	var p tsPacket
	if len(buf) != packetSize {
		return p, fmt.Errorf("demux: packet length %d, want %d", len(buf), packetSize)
	}
	if buf[0] != syncByte {
		return p, fmt.Errorf("demux: got 0x%x: %w", buf[0], ErrBadSync)
	}

	p.pusi = buf[1]&0x40 != 0
	p.pid = uint16(buf[1]&0x1F)<<8 | uint16(buf[2])

	hasAF := buf[3]&0x20 != 0
	hasPayload := buf[3]&0x10 != 0
	if !hasPayload {
		return p, nil
	}

	offset := 4
	if hasAF {
		afLen := int(buf[4])
		offset += 1 + afLen
		if offset > packetSize {
			return p, fmt.Errorf("demux: adaptation field length %d overruns packet", afLen)
		}
	}
	if offset < packetSize {
		p.payload = buf[offset:]
	}
	return p, nil
}

// parsePAT returns the PMT PID of the first program in a PAT section.
func parsePAT(payload []byte) (uint16, bool) {
	section, ok := sectionBody(payload, 0x00)
	if !ok {
		return 0, false
	}
	// Program loop starts after the 8-byte section header; each entry is
	// program_number(2) + PID(2). Skip the NIT (program 0). The last 4
	// bytes are the CRC32.
	for off := 8; off+4 <= len(section)-4; off += 4 {
		programNumber := uint16(section[off])<<8 | uint16(section[off+1])
		pid := uint16(section[off+2]&0x1F)<<8 | uint16(section[off+3])
		if programNumber != 0 {
			return pid, true
		}
	}
	return 0, false
}

// elementaryStream is one PMT entry.
type elementaryStream struct {
	pid        uint16
	streamType byte
}

// parsePMT returns the elementary streams listed in a PMT section.
func parsePMT(payload []byte) ([]elementaryStream, bool) {
	section, ok := sectionBody(payload, 0x02)
	if !ok {
		return nil, false
	}
	if len(section) < 12 {
		return nil, false
	}

	// Header: table_id(1) + section_length(2) + program_number(2) +
	// version(1) + section_number(1) + last_section_number(1) +
	// PCR PID(2) + program_info_length(2).
	programInfoLen := int(section[10]&0x0F)<<8 | int(section[11])
	off := 12 + programInfoLen

	var streams []elementaryStream
	for off+5 <= len(section)-4 { // stop before the trailing CRC32
		st := section[off]
		pid := uint16(section[off+1]&0x1F)<<8 | uint16(section[off+2])
		esInfoLen := int(section[off+3]&0x0F)<<8 | int(section[off+4])
		streams = append(streams, elementaryStream{pid: pid, streamType: st})
		off += 5 + esInfoLen
	}
	return streams, true
}

// sectionBody skips the pointer field and validates the table id, returning
// the section bytes from table_id through the CRC.
func sectionBody(payload []byte, tableID byte) ([]byte, bool) {
	if len(payload) < 1 {
		return nil, false
	}
	off := 1 + int(payload[0])
	if off+3 > len(payload) {
		return nil, false
	}
	if payload[off] != tableID {
		return nil, false
	}
	sectionLen := int(payload[off+1]&0x0F)<<8 | int(payload[off+2])
	end := off + 3 + sectionLen
	if end > len(payload) {
		return nil, false
	}
	return payload[off:end], true
}

// pesAssembler accumulates TS payloads for one PID until the next
// payload-unit start, then yields the complete PES packet.
type pesAssembler struct {
	buf     []byte
	started bool
}

// push feeds one TS packet's payload. It returns a completed PES packet
// when pusi marks the start of the next one, or nil.
func (a *pesAssembler) push(p tsPacket) []byte {
	if !p.pusi {
		if a.started {
			a.buf = append(a.buf, p.payload...)
		}
		return nil
	}

	var done []byte
	if a.started && len(a.buf) > 0 {
		done = a.buf
	}
	a.buf = append([]byte(nil), p.payload...)
	a.started = true
	return done
}

// flush returns any partially accumulated PES packet at end of stream.
func (a *pesAssembler) flush() []byte {
	if !a.started || len(a.buf) == 0 {
		return nil
	}
	buf := a.buf
	a.buf = nil
	a.started = false
	return buf
}

// pesPayload is a parsed PES packet: timestamps in 90kHz units and the
// elementary-stream bytes.
type pesPayload struct {
	pts  int64
	dts  int64
	data []byte
}

// parsePES extracts PTS/DTS and the payload from a PES packet.
func parsePES(pkt []byte) (pesPayload, error) {
	var p pesPayload
	if len(pkt) < 9 {
		return p, fmt.Errorf("demux: PES packet too short (%d bytes)", len(pkt))
	}
	if pkt[0] != 0x00 || pkt[1] != 0x00 || pkt[2] != 0x01 {
		return p, errors.New("demux: invalid PES start code")
	}

	flags := pkt[7] >> 6
	headerLen := int(pkt[8])
	dataStart := 9 + headerLen
	if dataStart > len(pkt) {
		return p, errors.New("demux: PES header length overruns packet")
	}

	switch flags {
	case 2:
		if len(pkt) < 14 {
			return p, errors.New("demux: truncated PTS")
		}
		p.pts = parseTimestamp(pkt[9:14])
		p.dts = p.pts
	case 3:
		if len(pkt) < 19 {
			return p, errors.New("demux: truncated PTS/DTS")
		}
		p.pts = parseTimestamp(pkt[9:14])
		p.dts = parseTimestamp(pkt[14:19])
	}

	p.data = pkt[dataStart:]
	return p, nil
}

// parseTimestamp decodes the 33-bit 90kHz timestamp packed into 5 bytes.
func parseTimestamp(b []byte) int64 {
	return int64(b[0]>>1&0x07)<<30 |
		int64(b[1])<<22 |
		int64(b[2]>>1)<<15 |
		int64(b[3])<<7 |
		int64(b[4]>>1)
}

// ticksToMicros converts a 90kHz tick count to microseconds.
func ticksToMicros(ticks int64) int64 {
	return ticks * 100 / 9
}

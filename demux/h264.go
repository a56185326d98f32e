package demux

import "github.com/zsiec/loom/media"

// H264 NAL unit types used by the demuxer.
const (
	nalTypeIDR = 5
	nalTypeSEI = 6
	nalTypeSPS = 7
	nalTypePPS = 8
	nalTypeAUD = 9
)

// splitAnnexB slices an Annex B elementary stream into NAL units, accepting
// both 3- and 4-byte start codes. The returned slices alias data.
func splitAnnexB(data []byte) [][]byte {
	var nalus [][]byte
	start := -1

	i := 0
	for i+3 <= len(data) {
		if data[i] == 0 && data[i+1] == 0 && (data[i+2] == 1 || (i+4 <= len(data) && data[i+2] == 0 && data[i+3] == 1)) {
			codeLen := 3
			if data[i+2] == 0 {
				codeLen = 4
			}
			if start >= 0 {
				nalus = append(nalus, trimTrailingZeros(data[start:i]))
			}
			start = i + codeLen
			i += codeLen
			continue
		}
		i++
	}
	if start >= 0 && start < len(data) {
		nalus = append(nalus, data[start:])
	}
	return nalus
}

// trimTrailingZeros drops the zero bytes that belong to the next start code.
func trimTrailingZeros(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}

func nalType(nalu []byte) byte {
	if len(nalu) == 0 {
		return 0
	}
	return nalu[0] & 0x1F
}

// accessUnit collects the NAL units of one H264 picture along with the
// parameter sets seen so far.
type accessUnit struct {
	nalus    [][]byte
	keyframe bool
	sei      [][]byte
	vps      []byte // HEVC only
	sps      []byte
	pps      []byte
}

func parseAccessUnit(data []byte) accessUnit {
	var au accessUnit
	for _, nalu := range splitAnnexB(data) {
		switch nalType(nalu) {
		case nalTypeIDR:
			au.keyframe = true
			au.nalus = append(au.nalus, nalu)
		case nalTypeSEI:
			au.sei = append(au.sei, nalu)
			au.nalus = append(au.nalus, nalu)
		case nalTypeSPS:
			au.sps = nalu
			au.nalus = append(au.nalus, nalu)
		case nalTypePPS:
			au.pps = nalu
			au.nalus = append(au.nalus, nalu)
		case nalTypeAUD:
			// Delimiters carry no payload; drop them.
		default:
			au.nalus = append(au.nalus, nalu)
		}
	}
	return au
}

// IsKeyframe reports whether an Annex B access unit contains a random
// access point for the given codec.
func IsKeyframe(codec media.VideoCodec, data []byte) bool {
	if codec == media.VideoCodecH265 {
		return parseHEVCAccessUnit(data).keyframe
	}
	return parseAccessUnit(data).keyframe
}

// annexBSize returns the byte size of the NAL units re-serialized with
// 4-byte start codes.
func annexBSize(nalus [][]byte) int {
	n := 0
	for _, nalu := range nalus {
		n += 4 + len(nalu)
	}
	return n
}

// appendAnnexB re-serializes NAL units with 4-byte start codes into dst.
func appendAnnexB(dst []byte, nalus [][]byte) []byte {
	for _, nalu := range nalus {
		dst = append(dst, 0, 0, 0, 1)
		dst = append(dst, nalu...)
	}
	return dst
}

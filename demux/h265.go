package demux

// HEVC NAL unit types used by the demuxer (ITU-T H.265 Table 7-1).
const (
	hevcNALBlaWLP    = 16
	hevcNALCraNut    = 21
	hevcNALVPS       = 32
	hevcNALSPS       = 33
	hevcNALPPS       = 34
	hevcNALAUD       = 35
	hevcNALSEIPrefix = 39
)

// hevcNALType reads the type field of the 2-byte HEVC NAL header:
// forbidden(1) | type(6) | layer_id_high(1).
func hevcNALType(nalu []byte) byte {
	if len(nalu) == 0 {
		return 0xFF
	}
	return nalu[0] >> 1 & 0x3F
}

// hevcKeyframe reports whether the NAL type is an HEVC random access point
// (BLA, IDR, or CRA).
func hevcKeyframe(t byte) bool {
	return t >= hevcNALBlaWLP && t <= hevcNALCraNut
}

// parseHEVCAccessUnit classifies the NAL units of one HEVC picture. Start
// codes are shared with H264, only the NAL header layout differs. Caption
// SEI extraction is H264-only, so prefix SEI NALs are carried but not
// collected for decoding.
func parseHEVCAccessUnit(data []byte) accessUnit {
	var au accessUnit
	for _, nalu := range splitAnnexB(data) {
		switch t := hevcNALType(nalu); t {
		case hevcNALVPS:
			au.vps = nalu
			au.nalus = append(au.nalus, nalu)
		case hevcNALSPS:
			au.sps = nalu
			au.nalus = append(au.nalus, nalu)
		case hevcNALPPS:
			au.pps = nalu
			au.nalus = append(au.nalus, nalu)
		case hevcNALAUD:
			// Delimiters carry no payload; drop them.
		default:
			if hevcKeyframe(t) {
				au.keyframe = true
			}
			au.nalus = append(au.nalus, nalu)
		}
	}
	return au
}

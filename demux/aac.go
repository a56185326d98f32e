package demux

import "errors"

// ErrInvalidADTS is returned when an ADTS header is malformed.
var ErrInvalidADTS = errors.New("demux: invalid ADTS header")

// aacSamplesPerFrame is fixed at 1024 for AAC-LC.
const aacSamplesPerFrame = 1024

// ADTS sample rate index table (ISO 14496-3).
var aacSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

// adtsFrame is one AAC frame cut from an ADTS stream, header included.
type adtsFrame struct {
	data       []byte
	sampleRate int
	channels   int
}

// splitADTS cuts an ADTS byte stream into individual AAC frames, resyncing
// past garbage between frames.
func splitADTS(data []byte) ([]adtsFrame, error) {
	var frames []adtsFrame
	offset := 0

	for offset < len(data) {
		if len(data)-offset < 7 {
			break
		}
		if data[offset] != 0xFF || data[offset+1]&0xF0 != 0xF0 {
			offset++
			continue
		}

		headerSize := 7
		if data[offset+1]&0x01 == 0 { // protection_absent clear → CRC present
			headerSize = 9
		}

		rateIdx := data[offset+2] >> 2 & 0x0F
		if int(rateIdx) >= len(aacSampleRates) {
			return frames, ErrInvalidADTS
		}
		channels := int(data[offset+2]&0x01)<<2 | int(data[offset+3]>>6&0x03)

		frameLen := int(data[offset+3]&0x03)<<11 |
			int(data[offset+4])<<3 |
			int(data[offset+5]>>5)
		if frameLen < headerSize || offset+frameLen > len(data) {
			break // truncated
		}

		frames = append(frames, adtsFrame{
			data:       data[offset : offset+frameLen],
			sampleRate: aacSampleRates[rateIdx],
			channels:   channels,
		})
		offset += frameLen
	}

	return frames, nil
}

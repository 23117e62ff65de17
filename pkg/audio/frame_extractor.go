package audio

// FrameExtractor turns a byte stream of concatenated compressed-audio
// frames into whole decodable frames, preserving a tail of partial data
// across calls. It targets MPEG audio elementary streams: each frame
// starts with an 11-bit sync word (0xFFE) followed by a header whose
// bits determine the frame's byte length.
//
// Feed is the only mutating operation; it never allocates proportional
// to the total stream seen, only to the pending tail.
type FrameExtractor struct {
	tail []byte
}

// NewFrameExtractor returns an extractor with an empty tail.
func NewFrameExtractor() *FrameExtractor {
	return &FrameExtractor{}
}

// Feed appends chunk to the pending tail, scans for complete frames, and
// returns them in order. Any data that does not yet form a whole frame
// remains in the extractor for the next Feed call.
func (f *FrameExtractor) Feed(chunk []byte) [][]byte {
	if len(chunk) > 0 {
		f.tail = append(f.tail, chunk...)
	}

	var frames [][]byte
	buf := f.tail
	pos := 0

	for pos < len(buf) {
		if pos+2 > len(buf) {
			break
		}
		if !isSyncWord(buf[pos], buf[pos+1]) {
			pos++
			continue
		}
		if pos+4 > len(buf) {
			// Not enough bytes yet to read the full header; wait for more.
			break
		}
		frameLen, ok := mpegFrameLength(buf[pos : pos+4])
		if !ok {
			// Invalid header bits despite a matching sync word; resync.
			pos++
			continue
		}
		if pos+frameLen > len(buf) {
			// Valid header, but the frame body hasn't fully arrived.
			break
		}
		frame := make([]byte, frameLen)
		copy(frame, buf[pos:pos+frameLen])
		frames = append(frames, frame)
		pos += frameLen
	}

	if pos > 0 {
		remaining := make([]byte, len(buf)-pos)
		copy(remaining, buf[pos:])
		f.tail = remaining
	}

	return frames
}

// RemainingTail reports the bytes not yet resolved into a complete frame.
func (f *FrameExtractor) RemainingTail() []byte {
	out := make([]byte, len(f.tail))
	copy(out, f.tail)
	return out
}

// Reset clears the pending tail.
func (f *FrameExtractor) Reset() {
	f.tail = nil
}

func isSyncWord(b0, b1 byte) bool {
	return b0 == 0xFF && b1&0xE0 == 0xE0
}

var mpegBitrates = [2][3][16]int{
	{ // MPEG1
		{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, -1}, // layer I
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, -1},    // layer II
		{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, -1},     // layer III
	},
	{ // MPEG2/2.5
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, -1}, // layer I
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, -1},      // layer II
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, -1},      // layer III
	},
}

var mpegSampleRates = [3][4]int{
	{44100, 48000, 32000, -1}, // MPEG1
	{22050, 24000, 16000, -1}, // MPEG2
	{11025, 12000, 8000, -1},  // MPEG2.5
}

// mpegFrameLength decodes an MPEG audio frame header (the first 4 bytes
// starting at a confirmed sync word) and returns the total frame length
// in bytes including the header, or ok=false if the header bits are
// internally inconsistent (free bitrate, reserved values).
func mpegFrameLength(header []byte) (int, bool) {
	versionBits := (header[1] >> 3) & 0x03
	layerBits := (header[1] >> 1) & 0x03
	protectionAbsent := header[1] & 0x01
	bitrateIndex := (header[2] >> 4) & 0x0F
	sampleRateIndex := (header[2] >> 2) & 0x03
	padding := (header[2] >> 1) & 0x01

	if versionBits == 0x01 || layerBits == 0x00 {
		return 0, false
	}
	if bitrateIndex == 0 || bitrateIndex == 0x0F {
		return 0, false
	}
	if sampleRateIndex == 0x03 {
		return 0, false
	}

	var versionRow int
	if versionBits == 0x03 {
		versionRow = 0 // MPEG1
	} else {
		versionRow = 1 // MPEG2 / MPEG2.5 share bitrate/sample tables for our purposes
	}

	var layerRow int
	switch layerBits {
	case 0x03:
		layerRow = 0 // layer I
	case 0x02:
		layerRow = 1 // layer II
	case 0x01:
		layerRow = 2 // layer III
	default:
		return 0, false
	}

	bitrate := mpegBitrates[versionRow][layerRow][bitrateIndex]
	if bitrate <= 0 {
		return 0, false
	}

	var sampleRateRow int
	switch versionBits {
	case 0x03:
		sampleRateRow = 0
	case 0x02:
		sampleRateRow = 1
	case 0x00:
		sampleRateRow = 2
	default:
		return 0, false
	}
	sampleRate := mpegSampleRates[sampleRateRow][sampleRateIndex]
	if sampleRate <= 0 {
		return 0, false
	}

	_ = protectionAbsent

	var length int
	if layerRow == 0 {
		length = (12*bitrate*1000/sampleRate + int(padding)) * 4
	} else {
		length = 144*bitrate*1000/sampleRate + int(padding)
	}
	if length <= 4 {
		return 0, false
	}
	return length, true
}

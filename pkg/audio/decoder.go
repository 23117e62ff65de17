package audio

import (
	"fmt"

	opus "gopkg.in/hraban/opus.v2"
)

// PCMBuffer is a decoded block of interleaved 16-bit PCM samples ready
// for scheduling on a PlaybackClock.
type PCMBuffer struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Duration returns the buffer's playback length in seconds.
func (b PCMBuffer) Duration() float64 {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Samples) / b.Channels
	return float64(frames) / float64(b.SampleRate)
}

// FrameCount returns the number of sample frames (one frame = one sample
// per channel).
func (b PCMBuffer) FrameCount() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// PCMDecoder decodes a batch of concatenated compressed-audio frames
// into PCM. This is the concrete "platform audio decoder" the player
// treats as a capability: the wire's audio/mpeg stream in spec.md is
// decoded with an Opus decoder here because no MP3 decoder exists
// anywhere in the example corpus and 48kHz is Opus's native rate; see
// DESIGN.md for the full rationale.
type PCMDecoder interface {
	// Decode consumes one or more whole frames (as produced by
	// FrameExtractor) and returns the resulting PCM. It must not retain
	// frames after returning.
	Decode(frames []byte) (PCMBuffer, error)
}

// opusDecoder adapts gopkg.in/hraban/opus.v2 to PCMDecoder.
type opusDecoder struct {
	dec        *opus.Decoder
	sampleRate int
	channels   int
}

// NewOpusDecoder returns a PCMDecoder for the given sample rate and
// channel count (the wire default is 48000/mono).
func NewOpusDecoder(sampleRate, channels int) (PCMDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec, sampleRate: sampleRate, channels: channels}, nil
}

func (d *opusDecoder) Decode(frames []byte) (PCMBuffer, error) {
	if len(frames) == 0 {
		return PCMBuffer{}, fmt.Errorf("decode error: empty frame batch")
	}
	// 120ms is the largest Opus frame at 48kHz; allocate generously and
	// let the decoder report the actual sample count.
	out := make([]int16, d.sampleRate*d.channels)
	n, err := d.dec.Decode(frames, out)
	if err != nil {
		return PCMBuffer{}, fmt.Errorf("decode error: %w", err)
	}
	return PCMBuffer{
		Samples:    out[:n*d.channels],
		SampleRate: d.sampleRate,
		Channels:   d.channels,
	}, nil
}

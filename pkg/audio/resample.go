package audio

import (
	resampler "github.com/tphakala/go-audio-resampler"
)

// Resampler converts PCM between the capture device's native rate and
// the wire's fixed 48kHz, so a capture device running at, say, 44100Hz
// (the teacher's default) can still satisfy spec.md's fixed
// sampling_rate:48000 audio_config.
type Resampler struct {
	r        *resampler.Resampler
	inRate   int
	outRate  int
	channels int
}

// NewResampler builds a resampler for the given rate conversion. Returns
// a nil *Resampler (not an error) when inRate == outRate, since callers
// can then skip resampling entirely; Resample on a nil receiver is a
// passthrough.
func NewResampler(inRate, outRate, channels int) (*Resampler, error) {
	if inRate == outRate {
		return nil, nil
	}
	r, err := resampler.New(inRate, outRate, channels)
	if err != nil {
		return nil, err
	}
	return &Resampler{r: r, inRate: inRate, outRate: outRate, channels: channels}, nil
}

// Resample converts a block of interleaved 16-bit PCM samples at inRate
// to outRate. A nil receiver returns in unchanged.
func (rs *Resampler) Resample(in []int16) ([]int16, error) {
	if rs == nil {
		return in, nil
	}
	return rs.r.ResampleInt16(in)
}

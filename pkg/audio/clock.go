package audio

import "sync/atomic"

// PlaybackClock exposes a monotonic media time in seconds, advanced by
// the audio device's playback callback as frames are actually written to
// the speaker. Backed by an atomic frame counter rather than a mutex:
// the device callback runs on its own thread and must never block.
type PlaybackClock struct {
	sampleRate   int
	framesPlayed uint64
}

// NewPlaybackClock returns a clock for a device running at sampleRate.
func NewPlaybackClock(sampleRate int) *PlaybackClock {
	return &PlaybackClock{sampleRate: sampleRate}
}

// Advance is called by the device callback with the number of frames it
// just consumed, silence padding included.
func (c *PlaybackClock) Advance(frames uint64) {
	atomic.AddUint64(&c.framesPlayed, frames)
}

// CurrentTime returns the monotonic media time in seconds.
func (c *PlaybackClock) CurrentTime() float64 {
	if c.sampleRate <= 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&c.framesPlayed)) / float64(c.sampleRate)
}

// Reset zeroes the clock. The player's Stop/Reset leave the clock running.
func (c *PlaybackClock) Reset() {
	atomic.StoreUint64(&c.framesPlayed, 0)
}

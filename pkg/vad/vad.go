// Package vad implements the voice-activity-driven boundary detector
// that the input pipeline consumes: it does not contain an acoustic
// model (that is explicitly out of scope), only the hysteresis and
// debounce logic layered on top of a confidence score.
package vad

import (
	"math"
	"sync"
	"time"
)

// Config holds the detector's tunables, matching spec.md's stated
// defaults.
type Config struct {
	SilenceTimeout  time.Duration
	PositiveThreshold float64
	NegativeThreshold float64
	MinSpeechFrames int
}

// DefaultConfig returns {silenceTimeoutMs:300, positiveThreshold:0.5,
// negativeThreshold:0.35, minSpeechFrames:3}.
func DefaultConfig() Config {
	return Config{
		SilenceTimeout:    300 * time.Millisecond,
		PositiveThreshold: 0.5,
		NegativeThreshold: 0.35,
		MinSpeechFrames:   3,
	}
}

// Detector consumes fixed-size PCM frames from the same microphone
// stream AudioCapture reads and emits speech-start/speech-end
// transitions plus a debounced, single-shot silence signal.
type Detector struct {
	cfg Config

	mu               sync.Mutex
	consecutiveAbove int
	speaking         bool
	silenceTimer     *time.Timer
	guard            EchoGuard

	onVoiceActivity func(isSpeaking bool)
	onSilence       func()
}

// EchoGuard lets a detector suppress false speech-start events caused by
// the assistant's own audio leaking back through the microphone during
// playback. Optional: a nil guard treats everything as non-echo.
type EchoGuard interface {
	IsLikelyEcho(chunk []byte) bool
}

// New builds a detector. onVoiceActivity fires on every speech-start and
// speech-end transition; onSilence fires at most once per speech-end,
// silenceTimeout after it, unless another speech-start intervenes.
func New(cfg Config, onVoiceActivity func(isSpeaking bool), onSilence func()) *Detector {
	if onVoiceActivity == nil {
		onVoiceActivity = func(bool) {}
	}
	if onSilence == nil {
		onSilence = func() {}
	}
	return &Detector{cfg: cfg, onVoiceActivity: onVoiceActivity, onSilence: onSilence}
}

// SetEchoGuard installs an EchoGuard consulted before a speech-start is
// confirmed.
func (d *Detector) SetEchoGuard(g EchoGuard) {
	d.mu.Lock()
	d.guard = g
	d.mu.Unlock()
}

// Process scores one captured frame and advances the hysteresis state
// machine. Safe for the same goroutine that feeds AudioCapture output;
// internally synchronized against the silence timer's own goroutine.
func (d *Detector) Process(chunk []byte) {
	confidence := rmsConfidence(chunk)

	d.mu.Lock()
	switch {
	case confidence >= d.cfg.PositiveThreshold:
		d.consecutiveAbove++
		d.cancelSilenceTimerLocked()
		if !d.speaking && d.consecutiveAbove >= d.cfg.MinSpeechFrames {
			if d.guard != nil && d.guard.IsLikelyEcho(chunk) {
				// Treat as non-speech; don't confirm start, don't reset
				// the hysteresis counter either so real speech arriving
				// right after echo still confirms quickly.
				d.mu.Unlock()
				return
			}
			d.speaking = true
			d.mu.Unlock()
			d.onVoiceActivity(true)
			return
		}
	case confidence <= d.cfg.NegativeThreshold:
		d.consecutiveAbove = 0
		if d.speaking {
			d.speaking = false
			d.armSilenceTimerLocked()
			d.mu.Unlock()
			d.onVoiceActivity(false)
			return
		}
	default:
		// Hysteresis band: neither confirms nor cancels anything.
	}
	d.mu.Unlock()
}

// armSilenceTimerLocked starts the debounced silence timer if one is not
// already pending. Caller must hold d.mu.
func (d *Detector) armSilenceTimerLocked() {
	if d.silenceTimer != nil {
		return
	}
	d.silenceTimer = time.AfterFunc(d.cfg.SilenceTimeout, d.fireSilence)
}

// cancelSilenceTimerLocked clears any pending timer; a subsequent
// speech-end re-arms a fresh one. Caller must hold d.mu.
func (d *Detector) cancelSilenceTimerLocked() {
	if d.silenceTimer != nil {
		d.silenceTimer.Stop()
		d.silenceTimer = nil
	}
}

func (d *Detector) fireSilence() {
	d.mu.Lock()
	d.silenceTimer = nil
	d.mu.Unlock()
	d.onSilence()
}

// IsSpeaking reports the detector's current hysteresis state.
func (d *Detector) IsSpeaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speaking
}

// Reset clears all transient state, used at the start of a new turn.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.speaking = false
	d.consecutiveAbove = 0
	d.cancelSilenceTimerLocked()
	d.mu.Unlock()
}

// rmsConfidence maps 16-bit little-endian PCM to a 0..1 confidence score.
func rmsConfidence(chunk []byte) float64 {
	if len(chunk) < 2 {
		return 0
	}
	var sum float64
	n := 0
	for i := 0; i+1 < len(chunk); i += 2 {
		sample := int16(chunk[i]) | int16(chunk[i+1])<<8
		f := float64(sample) / 32768.0
		sum += f * f
		n++
	}
	if n == 0 {
		return 0
	}
	// Scale RMS (typically a small fraction for speech-level signals)
	// into a 0..1-ish confidence band comparable to the stated
	// thresholds; clamp to 1 for very hot input.
	rms := math.Sqrt(sum / float64(n))
	confidence := rms * 6
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

package vad

import (
	"bytes"
	"math"
	"sync"
	"time"
)

// CorrelationEchoGuard implements EchoGuard by cross-correlating captured
// audio against a rolling buffer of recently played-out audio, so the
// detector doesn't confirm a speech-start from the assistant's own voice
// leaking back through the microphone during playback.
type CorrelationEchoGuard struct {
	mu         sync.Mutex
	played     *bytes.Buffer
	maxBufSize int
	threshold  float64
	windowMS   int
	lastPlayed time.Time
	enabled    bool
}

// NewCorrelationEchoGuard returns a guard tuned for 48kHz mono PCM, the
// wire's fixed output rate.
func NewCorrelationEchoGuard() *CorrelationEchoGuard {
	return &CorrelationEchoGuard{
		played:     new(bytes.Buffer),
		maxBufSize: 192000, // ~2s at 48kHz, 16-bit mono
		threshold:  0.55,
		windowMS:   1200,
		enabled:    true,
	}
}

// RecordPlayedAudio should be called with every PCM block the player sends
// to the output device, so the guard has a reference to correlate against.
func (g *CorrelationEchoGuard) RecordPlayedAudio(pcm []byte) {
	if !g.enabled || len(pcm) == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.played.Write(pcm)
	g.lastPlayed = time.Now()

	if g.played.Len() > g.maxBufSize {
		data := g.played.Bytes()
		trim := data[len(data)-g.maxBufSize:]
		g.played.Reset()
		g.played.Write(trim)
	}
}

// IsLikelyEcho reports whether chunk correlates highly with recently played
// audio. Satisfies vad.EchoGuard.
func (g *CorrelationEchoGuard) IsLikelyEcho(chunk []byte) bool {
	if !g.enabled || len(chunk) == 0 {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if time.Since(g.lastPlayed) > time.Duration(g.windowMS)*time.Millisecond {
		return false
	}
	ref := g.played.Bytes()
	if len(ref) == 0 {
		return false
	}
	return correlate(chunk, ref) > g.threshold
}

// ClearPlayedAudio discards the reference buffer, called on interrupt
// so stale playback doesn't mask speech in the next turn.
func (g *CorrelationEchoGuard) ClearPlayedAudio() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.played.Reset()
}

// SetEnabled toggles echo suppression.
func (g *CorrelationEchoGuard) SetEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = enabled
}

// correlate computes the normalized cross-correlation between input and the
// most recent len(input)-worth of reference, accounting for playback-to-mic
// latency by comparing against reference's tail.
func correlate(input, reference []byte) float64 {
	in := bytesToFloat(input)
	ref := bytesToFloat(reference)
	if len(in) == 0 || len(ref) == 0 {
		return 0
	}

	compareLen := len(in)
	if compareLen > len(ref) {
		compareLen = len(ref)
	}
	refTail := ref[len(ref)-compareLen:]

	inEnergy := energy(in)
	refEnergy := energy(refTail)
	if inEnergy == 0 || refEnergy == 0 {
		return 0
	}

	dot := 0.0
	for i := 0; i < compareLen; i++ {
		dot += in[i] * refTail[i]
	}

	norm := math.Sqrt(inEnergy * refEnergy)
	if norm == 0 {
		return 0
	}
	corr := dot / norm
	if corr < 0 {
		return 0
	}
	if corr > 1 {
		return 1
	}
	return corr
}

func bytesToFloat(data []byte) []float64 {
	out := make([]float64, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(data[i]) | int16(data[i+1])<<8
		out = append(out, float64(sample)/32768.0)
	}
	return out
}

func energy(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return sum
}

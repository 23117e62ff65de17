package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// CaptureConstraints mirrors the browser getUserMedia constraint bag:
// AutoGainControl/EchoCancellation/NoiseSuppression are accepted for
// interface parity with spec.md but are not independently controllable
// on a raw malgo capture device; they document caller intent for the
// benefit of EchoGuard (see pkg/vad) rather than being passed to the OS.
type CaptureConstraints struct {
	SampleRate       int
	Channels         int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultCaptureConstraints matches the wire's fixed audio config.
func DefaultCaptureConstraints() CaptureConstraints {
	return CaptureConstraints{
		SampleRate:       48000,
		Channels:         1,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

const captureFrameSamples = 4096

// Capture acquires a microphone stream and produces fixed-size, 16-bit
// little-endian PCM frames. It supports a buffering mode that diverts
// frames into an in-memory queue instead of emitting them immediately,
// used by the orchestrator to pre-arm the recorder ahead of a barge-in.
type Capture struct {
	mctx        *malgo.AllocatedContext
	device      *malgo.Device
	constraints CaptureConstraints

	mu        sync.Mutex
	recording bool
	buffering bool
	buffered  [][]byte
	pending   []byte // partial frame accumulated between device callbacks

	onAudioData func([]byte)
	onFrame     func([]byte) // fires for every frame, live or buffered; VAD hangs off this
}

// NewCapture initializes a capture device against mctx (an already
// initialized malgo context, owned by the caller so it can be shared
// with a playback device in a duplex setup). onFrame, if non-nil, sees
// every captured frame regardless of buffering mode so a voice-activity
// detector downstream can still observe speech while frames are being
// diverted for barge-in pre-buffering; onAudioData only sees frames that
// should go out on the wire right now.
func NewCapture(mctx *malgo.AllocatedContext, constraints CaptureConstraints, onAudioData func([]byte), onFrame func([]byte)) (*Capture, error) {
	if onAudioData == nil {
		onAudioData = func([]byte) {}
	}
	if onFrame == nil {
		onFrame = func([]byte) {}
	}
	c := &Capture{
		mctx:        mctx,
		constraints: constraints,
		onAudioData: onAudioData,
		onFrame:     onFrame,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(constraints.Channels)
	deviceConfig.SampleRate = uint32(constraints.SampleRate)

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: c.onSamples,
	})
	if err != nil {
		return nil, fmt.Errorf("mic_denied: %w", err)
	}
	c.device = device
	return c, nil
}

func (c *Capture) onSamples(_, pInput []byte, _ uint32) {
	if len(pInput) == 0 {
		return
	}
	c.mu.Lock()
	c.pending = append(c.pending, pInput...)
	var frames [][]byte
	for len(c.pending) >= captureFrameSamples*2 {
		frame := trimLeadingZeros(c.pending[:captureFrameSamples*2])
		if len(frame) > 0 {
			frames = append(frames, frame)
		}
		c.pending = c.pending[captureFrameSamples*2:]
	}
	buffering := c.buffering
	if buffering {
		c.buffered = append(c.buffered, frames...)
	}
	c.mu.Unlock()

	for _, f := range frames {
		if len(f) == 0 {
			continue
		}
		c.onFrame(f)
		if !buffering {
			c.onAudioData(f)
		}
	}
}

// trimLeadingZeros drops leading all-zero bytes from a chunk, avoiding
// decoder start-of-stream artifacts. An all-zero chunk collapses to
// empty and is dropped entirely by the caller.
func trimLeadingZeros(chunk []byte) []byte {
	i := 0
	for i < len(chunk) && chunk[i] == 0 {
		i++
	}
	if i == len(chunk) {
		return nil
	}
	out := make([]byte, len(chunk)-i)
	copy(out, chunk[i:])
	return out
}

// Start begins capture.
func (c *Capture) Start() error {
	c.mu.Lock()
	c.recording = true
	c.mu.Unlock()
	return c.device.Start()
}

// Stop halts capture.
func (c *Capture) Stop() error {
	c.mu.Lock()
	c.recording = false
	c.mu.Unlock()
	return c.device.Stop()
}

// IsRecording reports whether Start has been called without a matching Stop.
func (c *Capture) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// EnableBufferingMode diverts subsequently captured frames into an
// internal queue instead of emitting them via onAudioData.
func (c *Capture) EnableBufferingMode() {
	c.mu.Lock()
	c.buffering = true
	c.mu.Unlock()
}

// DisableBufferingMode stops diverting frames into the queue. Does not
// clear anything already buffered; call GetBufferedAudio/ClearBuffer
// explicitly.
func (c *Capture) DisableBufferingMode() {
	c.mu.Lock()
	c.buffering = false
	c.mu.Unlock()
}

// GetBufferedAudio returns a copy of the frames accumulated while
// buffering mode was enabled, in capture order.
func (c *Capture) GetBufferedAudio() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.buffered))
	copy(out, c.buffered)
	return out
}

// ClearBuffer discards any buffered frames.
func (c *Capture) ClearBuffer() {
	c.mu.Lock()
	c.buffered = nil
	c.mu.Unlock()
}

// Uninit releases the underlying device. Safe to call once.
func (c *Capture) Uninit() {
	if c.device != nil {
		c.device.Uninit()
	}
}

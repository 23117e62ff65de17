package orchestrator

import (
	"encoding/base64"
	"sync"

	"github.com/lokutor-ai/lokutor-client/pkg/audio"
	"github.com/lokutor-ai/lokutor-client/pkg/vad"
)

// AudioSender is the narrow capability InputPipeline needs from
// SessionTransport to put captured audio on the wire.
type AudioSender interface {
	SendAudioChunk(base64Audio string) error
}

// StateSink is the narrow capability InputPipeline needs from the state
// machine to report VAD-derived turn-taking events.
type StateSink interface {
	HandleSpeechStart()
	HandleSpeechEnd()
	HandleVADSilence()
}

// InputPipeline routes microphone audio through VAD, base64-encodes live
// frames for the wire, and diverts frames into a capture-side buffer
// during barge-in pre-arming. It implements the orchestrator.InputController
// capability the state machine drives transitions through.
type InputPipeline struct {
	mu sync.Mutex

	capture  *audio.Capture
	detector *vad.Detector
	sender   AudioSender
	stateSink StateSink

	caps              InputCapabilities
	started           bool
	inputCompleteSent bool
}

// NewInputPipeline wires capture and detector together: every captured
// frame feeds the detector (regardless of buffering mode, so VAD keeps
// working during barge-in pre-arming), and live (non-buffered) frames are
// sent on the wire when audio input is enabled.
func NewInputPipeline(capture *audio.Capture, detector *vad.Detector, sender AudioSender, stateSink StateSink, caps InputCapabilities) *InputPipeline {
	p := &InputPipeline{
		capture:   capture,
		detector:  detector,
		sender:    sender,
		stateSink: stateSink,
		caps:      caps,
	}
	return p
}

// OnFrame must be wired as the capture device's always-fires callback; it
// feeds the voice-activity detector.
func (p *InputPipeline) OnFrame(frame []byte) {
	p.detector.Process(frame)
}

// OnAudioData must be wired as the capture device's live-frame callback;
// it forwards the frame to the transport when audio input is enabled.
func (p *InputPipeline) OnAudioData(frame []byte) {
	p.mu.Lock()
	audioEnabled := p.caps.Audio
	p.mu.Unlock()
	if !audioEnabled || p.sender == nil {
		return
	}
	p.sendFrame(frame)
}

func (p *InputPipeline) sendFrame(frame []byte) {
	encoded := base64.StdEncoding.EncodeToString(frame)
	p.sender.SendAudioChunk(encoded)
}

// OnSpeechStart/OnSpeechEnd/OnSilence are the detector's event callbacks,
// wired at pipeline construction time by the caller that also builds the
// vad.Detector (so the detector can be constructed before the pipeline
// that references it, avoiding an import cycle between the two).
func (p *InputPipeline) OnSpeechStart() {
	p.stateSink.HandleSpeechStart()
}

func (p *InputPipeline) OnSpeechEnd() {
	p.stateSink.HandleSpeechEnd()
}

func (p *InputPipeline) OnSilence() {
	p.mu.Lock()
	if p.inputCompleteSent {
		p.mu.Unlock()
		return
	}
	p.inputCompleteSent = true
	p.mu.Unlock()
	p.stateSink.HandleVADSilence()
}

// Start begins capture for a new turn; idempotent.
func (p *InputPipeline) Start() {
	p.mu.Lock()
	already := p.started
	p.started = true
	p.mu.Unlock()
	if already {
		return
	}
	p.detector.Reset()
	p.capture.Start()
}

// Stop halts capture; idempotent.
func (p *InputPipeline) Stop() {
	p.mu.Lock()
	already := !p.started
	p.started = false
	p.mu.Unlock()
	if already {
		return
	}
	p.capture.Stop()
}

// EnableBuffering diverts subsequently captured frames into the capture's
// internal buffer instead of the wire, used for barge-in pre-arming.
func (p *InputPipeline) EnableBuffering() {
	p.capture.EnableBufferingMode()
}

// FlushBuffered disables buffering mode and sends every buffered frame to
// the wire in capture order, then clears the buffer.
func (p *InputPipeline) FlushBuffered() {
	frames := p.capture.GetBufferedAudio()
	p.capture.ClearBuffer()
	p.capture.DisableBufferingMode()

	p.mu.Lock()
	audioEnabled := p.caps.Audio
	p.mu.Unlock()
	if !audioEnabled {
		return
	}
	for _, f := range frames {
		p.sendFrame(f)
	}
}

// ResetOneShot clears the per-turn input_complete latch, called once a
// turn has fully settled (player Finished or interaction_complete
// cleanup).
func (p *InputPipeline) ResetOneShot() {
	p.mu.Lock()
	p.inputCompleteSent = false
	p.mu.Unlock()
}

// UpdateCapabilities toggles which input modalities are active, used by
// toggleTextOnlyInput.
func (p *InputPipeline) UpdateCapabilities(caps InputCapabilities) {
	p.mu.Lock()
	p.caps = caps
	p.mu.Unlock()
}

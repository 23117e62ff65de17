package orchestrator

import (
	"encoding/base64"
	"sync"
	"testing"

	"github.com/lokutor-ai/lokutor-client/pkg/vad"
)

type fakeSender struct {
	mu     sync.Mutex
	chunks []string
}

func (s *fakeSender) SendAudioChunk(b64 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, b64)
	return nil
}

func (s *fakeSender) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.chunks))
	copy(out, s.chunks)
	return out
}

type fakeStateSink struct {
	mu                         sync.Mutex
	speechStarts, speechEnds, silences int
}

func (s *fakeStateSink) HandleSpeechStart() { s.mu.Lock(); s.speechStarts++; s.mu.Unlock() }
func (s *fakeStateSink) HandleSpeechEnd()   { s.mu.Lock(); s.speechEnds++; s.mu.Unlock() }
func (s *fakeStateSink) HandleVADSilence()  { s.mu.Lock(); s.silences++; s.mu.Unlock() }

func loudPCMFrame() []byte {
	buf := make([]byte, 200)
	for i := 0; i+1 < len(buf); i += 2 {
		buf[i] = 0
		buf[i+1] = 0x7f // large 16-bit sample, little-endian high byte
	}
	return buf
}

func TestInputPipelineSendsLiveFramesAsBase64(t *testing.T) {
	sender := &fakeSender{}
	sink := &fakeStateSink{}
	detector := vad.New(vad.DefaultConfig(), func(bool) {}, func() {})

	p := NewInputPipeline(nil, detector, sender, sink, InputCapabilities{Audio: true})

	frame := []byte{1, 2, 3, 4}
	p.OnAudioData(frame)

	got := sender.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected exactly one sent chunk, got %d", len(got))
	}
	decoded, err := base64.StdEncoding.DecodeString(got[0])
	if err != nil || string(decoded) != string(frame) {
		t.Fatalf("expected round-trip base64 of frame, got err=%v decoded=%v", err, decoded)
	}
}

func TestInputPipelineSkipsSendWhenAudioDisabled(t *testing.T) {
	sender := &fakeSender{}
	sink := &fakeStateSink{}
	detector := vad.New(vad.DefaultConfig(), func(bool) {}, func() {})

	p := NewInputPipeline(nil, detector, sender, sink, InputCapabilities{Audio: false})
	p.OnAudioData([]byte{1, 2, 3})

	if len(sender.snapshot()) != 0 {
		t.Fatalf("expected no chunks sent with audio capability disabled")
	}
}

func TestInputPipelineOnSilenceFiresAtMostOncePerTurn(t *testing.T) {
	sender := &fakeSender{}
	sink := &fakeStateSink{}
	detector := vad.New(vad.DefaultConfig(), func(bool) {}, func() {})

	p := NewInputPipeline(nil, detector, sender, sink, InputCapabilities{Audio: true})

	p.OnSilence()
	p.OnSilence()
	p.OnSilence()

	sink.mu.Lock()
	silences := sink.silences
	sink.mu.Unlock()
	if silences != 1 {
		t.Fatalf("expected exactly one HandleVADSilence before ResetOneShot, got %d", silences)
	}

	p.ResetOneShot()
	p.OnSilence()
	sink.mu.Lock()
	silences = sink.silences
	sink.mu.Unlock()
	if silences != 2 {
		t.Fatalf("expected a new silence signal to be accepted after ResetOneShot, got %d", silences)
	}
}

func TestInputPipelineVoiceActivityRoutesToStateSink(t *testing.T) {
	sender := &fakeSender{}
	sink := &fakeStateSink{}

	var pipeline *InputPipeline
	cfg := vad.DefaultConfig()
	detector := vad.New(cfg, func(isSpeaking bool) {
		if isSpeaking {
			pipeline.OnSpeechStart()
		} else {
			pipeline.OnSpeechEnd()
		}
	}, func() {
		pipeline.OnSilence()
	})
	pipeline = NewInputPipeline(nil, detector, sender, sink, InputCapabilities{Audio: true})

	for i := 0; i < cfg.MinSpeechFrames; i++ {
		detector.Process(loudPCMFrame())
	}

	sink.mu.Lock()
	starts := sink.speechStarts
	sink.mu.Unlock()
	if starts != 1 {
		t.Fatalf("expected exactly one speech-start routed to state sink, got %d", starts)
	}
}

func TestInputPipelineOnFrameFeedsDetectorWithoutACaptureDevice(t *testing.T) {
	sender := &fakeSender{}
	sink := &fakeStateSink{}
	cfg := vad.DefaultConfig()
	detector := vad.New(cfg, func(bool) {}, func() {})

	p := NewInputPipeline(nil, detector, sender, sink, InputCapabilities{Audio: true})
	for i := 0; i < cfg.MinSpeechFrames; i++ {
		p.OnFrame(loudPCMFrame())
	}

	if !detector.IsSpeaking() {
		t.Fatalf("expected detector to confirm speech after minSpeechFrames loud frames")
	}
}

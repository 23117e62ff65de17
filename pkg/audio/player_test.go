package audio

import (
	"encoding/base64"
	"sync"
	"testing"
	"time"
)

// stubDecoder turns any non-empty frame batch into a fixed-size PCM
// buffer, regardless of content, so tests can exercise player timing
// logic without a real codec.
type stubDecoder struct {
	samplesPerBatch int
	sampleRate      int
}

func (d *stubDecoder) Decode(frames []byte) (PCMBuffer, error) {
	return PCMBuffer{
		Samples:    make([]int16, d.samplesPerBatch),
		SampleRate: d.sampleRate,
		Channels:   1,
	}, nil
}

// fakeFrame is a minimal valid MPEG1 layer III header (see
// frame_extractor_test.go's buildMP3Frame) so Enqueue's FrameExtractor
// pass actually emits something for the stub decoder to consume.
func fakeFrame() []byte {
	return buildMP3Frame(128, 44100, false)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []PlayerEvent
}

func (r *eventRecorder) record(e PlayerEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) snapshot() []PlayerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PlayerEvent, len(r.events))
	copy(out, r.events)
	return out
}

func TestPlayerReadyPrecedesPlaying(t *testing.T) {
	rec := &eventRecorder{}
	decoder := &stubDecoder{samplesPerBatch: 4800, sampleRate: 48000}
	p := NewStreamingAudioPlayer(decoder, 48000, rec.record)

	chunk1 := base64.StdEncoding.EncodeToString(fakeFrame())
	chunk2 := base64.StdEncoding.EncodeToString(fakeFrame())
	if err := p.Enqueue(chunk1); err != nil {
		t.Fatal(err)
	}
	if err := p.Enqueue(chunk2); err != nil {
		t.Fatal(err)
	}

	p.Play()

	events := rec.snapshot()
	if len(events) < 2 || events[0] != EventReady || events[1] != EventPlaying {
		t.Fatalf("expected [Ready, Playing, ...], got %v", events)
	}
}

func TestPlayerFinishedOnlyAfterMarkCompleteAndDrain(t *testing.T) {
	rec := &eventRecorder{}
	decoder := &stubDecoder{samplesPerBatch: 480, sampleRate: 48000} // 10ms
	p := NewStreamingAudioPlayer(decoder, 48000, rec.record)

	chunk1 := base64.StdEncoding.EncodeToString(fakeFrame())
	chunk2 := base64.StdEncoding.EncodeToString(fakeFrame())
	_ = p.Enqueue(chunk1)
	_ = p.Enqueue(chunk2)
	p.Play()

	// Drain less than the full queue; Finished must not fire yet even
	// though markComplete hasn't been called.
	p.PullFrames(240, 1)
	for _, e := range rec.snapshot() {
		if e == EventFinished {
			t.Fatalf("Finished fired before markComplete")
		}
	}

	p.MarkComplete()
	// The queued buffer still has 240 of its 480 frames left; draining
	// them should now trigger Finished exactly once.
	p.PullFrames(240, 1)

	finishedCount := 0
	for _, e := range rec.snapshot() {
		if e == EventFinished {
			finishedCount++
		}
	}
	if finishedCount != 1 {
		t.Fatalf("expected exactly 1 Finished event, got %d", finishedCount)
	}

	// Further pulls must not emit Finished again.
	p.PullFrames(480, 1)
	p.PullFrames(480, 1)
	finishedCount = 0
	for _, e := range rec.snapshot() {
		if e == EventFinished {
			finishedCount++
		}
	}
	if finishedCount != 1 {
		t.Fatalf("Finished emitted more than once across repeated drains: %d", finishedCount)
	}
}

func TestPlayerMarkCompleteRaceEmitsFinishedImmediately(t *testing.T) {
	rec := &eventRecorder{}
	decoder := &stubDecoder{samplesPerBatch: 480, sampleRate: 48000}
	p := NewStreamingAudioPlayer(decoder, 48000, rec.record)

	_ = p.Enqueue(base64.StdEncoding.EncodeToString(fakeFrame()))
	_ = p.Enqueue(base64.StdEncoding.EncodeToString(fakeFrame()))
	p.Play()

	// Drain everything before markComplete is ever called (the race
	// case: last "onended" fires before markComplete).
	p.PullFrames(480, 1)

	p.MarkComplete()

	events := rec.snapshot()
	found := false
	for _, e := range events {
		if e == EventFinished {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Finished to be emitted immediately on MarkComplete when queue already drained")
	}
}

func TestPlayerAboutToCompleteFiresBeforeFinishedAndAtMostOnce(t *testing.T) {
	rec := &eventRecorder{}
	// Large per-batch sample count so the remaining time at MarkComplete
	// is a full second and AboutToComplete fires via its threshold check.
	decoder := &stubDecoder{samplesPerBatch: 48000, sampleRate: 48000} // 1s buffer
	p := NewStreamingAudioPlayer(decoder, 48000, rec.record)

	_ = p.Enqueue(base64.StdEncoding.EncodeToString(fakeFrame()))
	_ = p.Enqueue(base64.StdEncoding.EncodeToString(fakeFrame()))
	p.Play()

	p.MarkComplete() // remaining == 1s <= 1000ms threshold: fires immediately

	time.Sleep(5 * time.Millisecond)

	p.PullFrames(48000, 1) // drain the full remaining second

	events := rec.snapshot()
	var aboutIdx, finIdx = -1, -1
	aboutCount := 0
	for i, e := range events {
		if e == EventAboutToComplete {
			if aboutIdx == -1 {
				aboutIdx = i
			}
			aboutCount++
		}
		if e == EventFinished && finIdx == -1 {
			finIdx = i
		}
	}
	if aboutCount != 1 {
		t.Fatalf("expected exactly 1 AboutToComplete, got %d: %v", aboutCount, events)
	}
	if aboutIdx == -1 || finIdx == -1 || aboutIdx >= finIdx {
		t.Fatalf("expected AboutToComplete before Finished, got %v", events)
	}
}

func TestPlayerStopResetsLatchesForNextCycle(t *testing.T) {
	rec := &eventRecorder{}
	decoder := &stubDecoder{samplesPerBatch: 480, sampleRate: 48000}
	p := NewStreamingAudioPlayer(decoder, 48000, rec.record)

	_ = p.Enqueue(base64.StdEncoding.EncodeToString(fakeFrame()))
	_ = p.Enqueue(base64.StdEncoding.EncodeToString(fakeFrame()))
	p.Play()
	p.MarkComplete()
	p.PullFrames(960, 1)

	p.Stop()

	// Second cycle: Ready should fire again since started was reset.
	_ = p.Enqueue(base64.StdEncoding.EncodeToString(fakeFrame()))
	_ = p.Enqueue(base64.StdEncoding.EncodeToString(fakeFrame()))
	p.Play()

	events := rec.snapshot()
	readyCount := 0
	for _, e := range events {
		if e == EventReady {
			readyCount++
		}
	}
	if readyCount != 2 {
		t.Fatalf("expected Ready to fire once per cycle (2 total), got %d", readyCount)
	}
}

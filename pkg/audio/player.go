package audio

import (
	"encoding/base64"
	"sync"
	"time"
)

// PlayerEvent mirrors the player lifecycle signals a StreamingAudioPlayer
// emits: Ready once the first buffer is queued, Playing once playback of
// the queue has begun, AboutToComplete ~1s before the last queued buffer
// drains (the barge-in pre-arm signal), and Finished once markComplete
// has been called and every scheduled buffer has actually played.
type PlayerEvent int

const (
	EventReady PlayerEvent = iota
	EventPlaying
	EventAboutToComplete
	EventFinished
)

const (
	minBatchChunks       = 2
	idleFlushInterval    = 450 * time.Millisecond
	aboutToCompleteLead  = 1000 * time.Millisecond
)

// StreamingAudioPlayer accepts base64-encoded compressed audio chunks,
// batches and decodes them into PCM, and exposes the result to a pull-
// based output driver via PullFrames. There is no browser AudioContext
// here: the "hardware clock" is realized by the driver calling PullFrames
// at the device's actual sample rate, which is exactly equivalent to the
// audio thread advancing currentTime in the original design.
type StreamingAudioPlayer struct {
	mu sync.Mutex

	decoder   PCMDecoder
	extractor *FrameExtractor
	clock     *PlaybackClock
	onEvent   func(PlayerEvent)

	staging      [][]byte
	stagingBytes int
	idleTimer    *time.Timer

	queue       []PCMBuffer
	queueOffset int // samples already consumed from queue[0], in frames

	started            bool // Ready has fired for this cycle
	playing            bool
	paused             bool
	markCompleteCalled bool
	allPlayedLatch     bool
	finishedLatch      bool
	aboutToCompleteSet bool
	aboutToCompleteT   *time.Timer

	scheduledPlayTime float64
}

// NewStreamingAudioPlayer constructs a player around decoder, whose
// Decode results feed a pull-based output at the given sample rate.
func NewStreamingAudioPlayer(decoder PCMDecoder, sampleRate int, onEvent func(PlayerEvent)) *StreamingAudioPlayer {
	if onEvent == nil {
		onEvent = func(PlayerEvent) {}
	}
	return &StreamingAudioPlayer{
		decoder:   decoder,
		extractor: NewFrameExtractor(),
		clock:     NewPlaybackClock(sampleRate),
		onEvent:   onEvent,
	}
}

// Clock exposes the player's playback clock.
func (p *StreamingAudioPlayer) Clock() *PlaybackClock {
	return p.clock
}

// Enqueue base64-decodes chunk and stages it for batch decoding. The
// batch flushes once at least two chunks are staged, or after an idle
// period with at least one chunk pending.
func (p *StreamingAudioPlayer) Enqueue(base64Chunk string) error {
	raw, err := base64.StdEncoding.DecodeString(base64Chunk)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.staging = append(p.staging, raw)
	p.stagingBytes += len(raw)
	shouldFlush := len(p.staging) >= minBatchChunks
	if !shouldFlush {
		p.armIdleTimerLocked()
	}
	p.mu.Unlock()

	if shouldFlush {
		p.flushStaging()
	}
	return nil
}

func (p *StreamingAudioPlayer) armIdleTimerLocked() {
	if p.idleTimer != nil {
		p.idleTimer.Stop()
	}
	p.idleTimer = time.AfterFunc(idleFlushInterval, p.flushStaging)
}

// flushStaging decodes whatever is currently staged, regardless of batch
// size. Safe to call with nothing staged (a no-op).
func (p *StreamingAudioPlayer) flushStaging() {
	p.mu.Lock()
	if p.idleTimer != nil {
		p.idleTimer.Stop()
		p.idleTimer = nil
	}
	if len(p.staging) == 0 {
		p.mu.Unlock()
		return
	}
	batch := make([]byte, 0, p.stagingBytes)
	for _, chunk := range p.staging {
		batch = append(batch, chunk...)
	}
	p.staging = nil
	p.stagingBytes = 0
	p.mu.Unlock()

	frames := p.extractor.Feed(batch)
	if len(frames) == 0 {
		return
	}
	var blob []byte
	for _, f := range frames {
		blob = append(blob, f...)
	}

	buf, err := p.decoder.Decode(blob)
	if err != nil {
		// Frames occasionally arrive malformed; this is expected and
		// non-fatal. Drop the batch and keep going.
		return
	}
	p.appendBuffer(buf)
}

func (p *StreamingAudioPlayer) appendBuffer(buf PCMBuffer) {
	p.mu.Lock()
	wasEmpty := len(p.queue) == 0 && p.queueOffset == 0
	p.queue = append(p.queue, buf)

	now := p.clock.CurrentTime()
	if p.scheduledPlayTime < now {
		p.scheduledPlayTime = now
	}
	p.scheduledPlayTime += buf.Duration()

	emitReady := wasEmpty && !p.started
	if emitReady {
		p.started = true
	}
	afterMarkComplete := p.markCompleteCalled
	p.mu.Unlock()

	if emitReady {
		p.onEvent(EventReady)
	}
	if afterMarkComplete {
		p.checkAboutToComplete()
	}
}

// Play begins draining the queue to the output driver. Idempotent.
func (p *StreamingAudioPlayer) Play() {
	p.mu.Lock()
	already := p.playing
	p.playing = true
	p.paused = false
	p.mu.Unlock()
	if !already {
		p.onEvent(EventPlaying)
	}
}

// Pause suspends consumption; PullFrames returns silence without
// advancing the clock or draining the queue while paused.
func (p *StreamingAudioPlayer) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

// Resume un-suspends a paused player.
func (p *StreamingAudioPlayer) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

// MarkComplete records that no more audio will arrive for this cycle,
// flushes any partially-staged batch, and checks whether Finished should
// fire immediately (the queue already drained before this call arrived).
func (p *StreamingAudioPlayer) MarkComplete() {
	p.flushStaging()

	p.mu.Lock()
	p.markCompleteCalled = true
	queueEmpty := len(p.queue) == 0
	alreadyAllPlayed := p.allPlayedLatch
	p.mu.Unlock()

	p.checkAboutToComplete()

	if queueEmpty || alreadyAllPlayed {
		p.emitFinishedOnce()
	}
}

// remainingSecondsLocked sums the unplayed duration of every buffer
// still in the queue. Caller must hold p.mu.
func (p *StreamingAudioPlayer) remainingSecondsLocked() float64 {
	if len(p.queue) == 0 {
		return 0
	}
	var remaining float64
	first := p.queue[0]
	if first.SampleRate > 0 {
		consumedSecs := float64(p.queueOffset) / float64(first.SampleRate)
		remaining += first.Duration() - consumedSecs
	}
	for _, buf := range p.queue[1:] {
		remaining += buf.Duration()
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (p *StreamingAudioPlayer) checkAboutToComplete() {
	p.mu.Lock()
	if p.aboutToCompleteSet || p.finishedLatch {
		p.mu.Unlock()
		return
	}
	remaining := p.remainingSecondsLocked()
	if remaining <= aboutToCompleteLead.Seconds() {
		p.aboutToCompleteSet = true
		p.mu.Unlock()
		p.onEvent(EventAboutToComplete)
		return
	}
	wait := time.Duration((remaining-aboutToCompleteLead.Seconds())*float64(time.Second)) + time.Millisecond
	if p.aboutToCompleteT != nil {
		p.aboutToCompleteT.Stop()
	}
	p.aboutToCompleteT = time.AfterFunc(wait, p.fireAboutToCompleteTimer)
	p.mu.Unlock()
}

func (p *StreamingAudioPlayer) fireAboutToCompleteTimer() {
	p.mu.Lock()
	if p.aboutToCompleteSet || p.finishedLatch {
		// Either already latched, or Finished already fired because the
		// queue drained early (underrun) before this timer caught up.
		// Suppressing here is required: AboutToComplete must never
		// follow Finished.
		p.mu.Unlock()
		return
	}
	p.aboutToCompleteSet = true
	p.mu.Unlock()
	p.onEvent(EventAboutToComplete)
}

func (p *StreamingAudioPlayer) emitFinishedOnce() {
	p.mu.Lock()
	if p.finishedLatch {
		p.mu.Unlock()
		return
	}
	p.finishedLatch = true
	p.mu.Unlock()
	p.onEvent(EventFinished)
}

// PullFrames is called by the output driver with the number of frames it
// needs this tick. It always returns exactly n*channels samples (padded
// with silence as needed) and advances the clock by n frames regardless
// of data availability, matching a hardware-clocked audio context that
// keeps ticking through underruns.
func (p *StreamingAudioPlayer) PullFrames(n int, channels int) []int16 {
	out := make([]int16, n*channels)

	p.mu.Lock()
	if !p.playing || p.paused {
		p.mu.Unlock()
		return out
	}

	pos := 0
	for pos < n && len(p.queue) > 0 {
		buf := p.queue[0]
		bufFrames := buf.FrameCount()
		avail := bufFrames - p.queueOffset
		take := n - pos
		if take > avail {
			take = avail
		}
		srcStart := p.queueOffset * channels
		srcEnd := (p.queueOffset + take) * channels
		if srcEnd > len(buf.Samples) {
			srcEnd = len(buf.Samples)
		}
		copy(out[pos*channels:], buf.Samples[srcStart:srcEnd])
		pos += take
		p.queueOffset += take
		if p.queueOffset >= bufFrames {
			p.queue = p.queue[1:]
			p.queueOffset = 0
		}
	}

	p.clock.Advance(uint64(n))

	queueNowEmpty := len(p.queue) == 0
	markDone := p.markCompleteCalled
	if queueNowEmpty {
		if markDone {
			p.mu.Unlock()
			p.emitFinishedOnce()
			return out
		}
		p.allPlayedLatch = true
	}
	p.mu.Unlock()
	return out
}

// Stop clears the queue and resets all latches and timers for a new
// cycle. Does not reset the clock (the caller owns device lifetime).
func (p *StreamingAudioPlayer) Stop() {
	p.mu.Lock()
	p.queue = nil
	p.queueOffset = 0
	p.playing = false
	p.paused = false
	p.started = false
	p.markCompleteCalled = false
	p.allPlayedLatch = false
	p.finishedLatch = false
	p.aboutToCompleteSet = false
	p.scheduledPlayTime = 0
	if p.idleTimer != nil {
		p.idleTimer.Stop()
		p.idleTimer = nil
	}
	if p.aboutToCompleteT != nil {
		p.aboutToCompleteT.Stop()
		p.aboutToCompleteT = nil
	}
	p.staging = nil
	p.stagingBytes = 0
	p.mu.Unlock()
	p.extractor.Reset()
}

// Reset is an alias for Stop kept for readability at call sites that
// mean "prepare for the next turn" rather than "halt playback".
func (p *StreamingAudioPlayer) Reset() {
	p.Stop()
}

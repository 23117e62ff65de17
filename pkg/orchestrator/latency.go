package orchestrator

import (
	"sync"
	"time"
)

// LatencyBreakdown holds per-stage timings (all in milliseconds) for one
// conversational turn, measured entirely client-side: the server doesn't
// report its internal STT/LLM/TTS split to this client, so the stages
// here are the ones observable from the wire and the player.
type LatencyBreakdown struct {
	UserStopToInteractSent int64 // VAD silence -> interact request written
	UserStopToFirstAudio   int64 // VAD silence -> player Ready (first chunk)
	UserStopToAboutToComplete int64
	UserStopToFinished     int64
	PlaybackDuration       int64 // Ready -> Finished
}

// LatencyTracker records the timestamps needed to compute LatencyBreakdown
// for the turn currently in flight. Reset at the start of every turn.
type LatencyTracker struct {
	mu sync.Mutex

	userStoppedAt      time.Time
	interactSentAt     time.Time
	firstAudioAt       time.Time
	aboutToCompleteAt  time.Time
	finishedAt         time.Time
}

func NewLatencyTracker() *LatencyTracker {
	return &LatencyTracker{}
}

// StartTurn marks the moment the user's turn ended (VAD silence fired).
func (t *LatencyTracker) StartTurn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.userStoppedAt = time.Now()
	t.interactSentAt = time.Time{}
	t.firstAudioAt = time.Time{}
	t.aboutToCompleteAt = time.Time{}
	t.finishedAt = time.Time{}
}

func (t *LatencyTracker) MarkInteractSent() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.interactSentAt.IsZero() {
		t.interactSentAt = time.Now()
	}
}

func (t *LatencyTracker) MarkFirstAudio() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.firstAudioAt.IsZero() {
		t.firstAudioAt = time.Now()
	}
}

func (t *LatencyTracker) MarkAboutToComplete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.aboutToCompleteAt.IsZero() {
		t.aboutToCompleteAt = time.Now()
	}
}

func (t *LatencyTracker) MarkFinished() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finishedAt.IsZero() {
		t.finishedAt = time.Now()
	}
}

// Breakdown computes every timing observable so far; fields stay zero
// until their corresponding mark has happened.
func (t *LatencyTracker) Breakdown() LatencyBreakdown {
	t.mu.Lock()
	defer t.mu.Unlock()

	var bd LatencyBreakdown
	if t.userStoppedAt.IsZero() {
		return bd
	}
	if !t.interactSentAt.IsZero() {
		bd.UserStopToInteractSent = t.interactSentAt.Sub(t.userStoppedAt).Milliseconds()
	}
	if !t.firstAudioAt.IsZero() {
		bd.UserStopToFirstAudio = t.firstAudioAt.Sub(t.userStoppedAt).Milliseconds()
	}
	if !t.aboutToCompleteAt.IsZero() {
		bd.UserStopToAboutToComplete = t.aboutToCompleteAt.Sub(t.userStoppedAt).Milliseconds()
	}
	if !t.finishedAt.IsZero() {
		bd.UserStopToFinished = t.finishedAt.Sub(t.userStoppedAt).Milliseconds()
	}
	if !t.firstAudioAt.IsZero() && !t.finishedAt.IsZero() {
		bd.PlaybackDuration = t.finishedAt.Sub(t.firstAudioAt).Milliseconds()
	}
	return bd
}

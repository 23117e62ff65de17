package orchestrator

import (
	"fmt"
	"sync"
)

// InputController is the capability the state machine uses to drive the
// input pipeline without depending on its concrete type.
type InputController interface {
	Start()
	Stop()
	EnableBuffering()
	FlushBuffered()
	ResetOneShot()
}

// PlaybackController is the capability the state machine uses to drive
// the streaming audio player.
type PlaybackController interface {
	Play()
	Pause()
	Resume()
}

// TurnSignaler lets the state machine issue the transport-level turn
// protocol (input_complete, check_turn, interact) without depending on
// SessionTransport directly.
type TurnSignaler interface {
	SendInputComplete() error
	SendCheckTurn() error
	SendAccumulatedInteract() error
}

// TransportController disconnects the channel on stop().
type TransportController interface {
	Disconnect() error
}

// StateMachine owns the conversation state variable and serializes every
// transition through setState. Any transition not covered by a handler
// method below is invalid and is silently refused (a warning is the
// caller's responsibility via its own logger, since this type has no
// logging dependency of its own).
type StateMachine struct {
	mu    sync.Mutex
	state ConversationState

	deferredInteractionComplete bool
	interactionCompletePending  bool

	sinks     *ExternalSinks
	input     InputController
	playback  PlaybackController
	turns     TurnSignaler
	transport TransportController
}

// NewStateMachine starts in the uninitialized state.
func NewStateMachine(sinks *ExternalSinks) *StateMachine {
	return &StateMachine{state: StateUninitialized, sinks: sinks}
}

// Wire injects the collaborators the state machine drives side effects
// through. Called once by the client during construction.
func (sm *StateMachine) Wire(input InputController, playback PlaybackController, turns TurnSignaler, transport TransportController) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.input = input
	sm.playback = playback
	sm.turns = turns
	sm.transport = transport
}

// State reports the current state.
func (sm *StateMachine) State() ConversationState {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// setState guards equality, updates state under lock, then notifies
// observers outside the lock so a hook calling back into the state
// machine can't deadlock on sm.mu.
func (sm *StateMachine) setState(next ConversationState) bool {
	sm.mu.Lock()
	old := sm.state
	if old == next {
		sm.mu.Unlock()
		return false
	}
	sm.state = next
	sm.mu.Unlock()

	sm.sinks.StateChanged(StateChange{OldState: old, NewState: next})
	return true
}

func (sm *StateMachine) in(states ...ConversationState) bool {
	sm.mu.Lock()
	cur := sm.state
	sm.mu.Unlock()
	for _, s := range states {
		if cur == s {
			return true
		}
	}
	return false
}

// HandleInitializeSucceeded is fired once the transport connects and the
// handshake completes.
func (sm *StateMachine) HandleInitializeSucceeded() {
	if !sm.in(StateUninitialized, StateInitializing) {
		return
	}
	sm.setState(StateWaiting)
}

// HandleFatalError transitions to error from any state and fires the
// error hook.
func (sm *StateMachine) HandleFatalError(err *ClientError) {
	sm.setState(StateError)
	sm.sinks.Error(err)
}

// StartListening begins capturing the user's turn. Valid only from idle.
func (sm *StateMachine) StartListening() error {
	if !sm.in(StateIdle) {
		return fmt.Errorf("startListening: invalid from state %s", sm.State())
	}
	if sm.input != nil {
		sm.input.Start()
	}
	sm.setState(StateListening)
	return nil
}

// StopListening halts the input pipeline without a state transition of
// its own; used by Client.StopListening.
func (sm *StateMachine) StopListening() {
	if sm.input != nil {
		sm.input.Stop()
	}
}

// HandleSpeechStart is the VAD speech-start event.
func (sm *StateMachine) HandleSpeechStart() {
	if sm.in(StateListening) {
		sm.setState(StateUserSpeaking)
	}
}

// HandleSpeechEnd is the VAD speech-end event.
func (sm *StateMachine) HandleSpeechEnd() {
	if sm.in(StateUserSpeaking) {
		sm.setState(StateListening)
	}
}

// HandleVADSilence is the debounced VAD silence signal that ends the
// user's turn.
func (sm *StateMachine) HandleVADSilence() {
	if !sm.in(StateListening) {
		return
	}
	sm.setState(StateWaiting)
	if sm.turns != nil {
		sm.turns.SendInputComplete()
		sm.turns.SendCheckTurn()
	}
}

// HandleCheckTurnResponse is the server's reply to check_turn. Per spec,
// this must be ignored while playing/paused so an accidental pickup
// doesn't interrupt the assistant mid-delivery.
func (sm *StateMachine) HandleCheckTurnResponse(isUserStillSpeaking bool) {
	if !sm.in(StateWaiting) {
		return
	}
	if isUserStillSpeaking {
		return
	}
	if sm.input != nil {
		sm.input.Stop()
	}
	if sm.turns != nil {
		sm.turns.SendAccumulatedInteract()
	}
}

// HandlePlayerReady fires when the player's first buffer arrives; it
// begins playback and transitions waiting -> playing.
func (sm *StateMachine) HandlePlayerReady() {
	if !sm.in(StateWaiting) {
		return
	}
	if sm.playback != nil {
		sm.playback.Play()
	}
	sm.setState(StatePlaying)
}

// Pause suspends playback. Valid only from playing.
func (sm *StateMachine) Pause() error {
	if !sm.in(StatePlaying) {
		return fmt.Errorf("pause: invalid from state %s", sm.State())
	}
	if sm.playback != nil {
		sm.playback.Pause()
	}
	sm.setState(StatePaused)
	return nil
}

// Resume resumes playback. Valid only from paused.
func (sm *StateMachine) Resume() error {
	if !sm.in(StatePaused) {
		return fmt.Errorf("resume: invalid from state %s", sm.State())
	}
	if sm.playback != nil {
		sm.playback.Resume()
	}
	sm.setState(StatePlaying)
	return nil
}

// HandlePlayerAboutToComplete arms barge-in pre-buffering ~1s before the
// assistant finishes speaking.
func (sm *StateMachine) HandlePlayerAboutToComplete() {
	if !sm.in(StatePlaying) {
		return
	}
	if sm.input != nil {
		sm.input.EnableBuffering()
		sm.input.Start()
	}
}

// HandlePlayerFinished fires once the player has drained every scheduled
// buffer after markComplete. Transitions to idle and, if an
// interaction_complete arrived earlier and was deferred, runs its
// cleanup now.
func (sm *StateMachine) HandlePlayerFinished() {
	if !sm.in(StatePlaying) {
		return
	}

	sm.mu.Lock()
	deferred := sm.deferredInteractionComplete
	sm.mu.Unlock()

	if sm.input != nil {
		sm.input.ResetOneShot()
	}
	sm.setState(StateIdle)

	if deferred {
		sm.runHandleInteractionComplete()
	}
}

// HandleInteractionComplete is the server's interaction_complete event.
// While playing, it only sets a deferred flag; HandlePlayerFinished runs
// the actual cleanup once playback catches up. Arriving in any other
// state, it runs immediately — this also covers the out-of-order race
// where interaction_complete arrives after Finished already fired: the
// deferred flag is false by then, so the cleanup still runs directly.
func (sm *StateMachine) HandleInteractionComplete() {
	sm.mu.Lock()
	if sm.state == StatePlaying {
		sm.deferredInteractionComplete = true
		sm.mu.Unlock()
		return
	}
	sm.mu.Unlock()
	sm.runHandleInteractionComplete()
}

// runHandleInteractionComplete is the single idempotent cleanup named in
// the transition table: cancel the about-to-complete latch (implicit,
// since the player's own Stop/Reset owns that), reset the input one-shot,
// flush buffered audio in capture order, and settle state to idle.
// interactionCompletePending guards against two concurrent callers
// (e.g. a deferred Finished-triggered call racing a direct call)
// double-running the cleanup; it is not needed for sequential idempotence
// since every step it performs is itself a no-op when repeated.
func (sm *StateMachine) runHandleInteractionComplete() {
	sm.mu.Lock()
	if sm.interactionCompletePending {
		sm.mu.Unlock()
		return
	}
	sm.interactionCompletePending = true
	sm.mu.Unlock()

	if sm.input != nil {
		sm.input.FlushBuffered()
		sm.input.ResetOneShot()
	}
	sm.setState(StateIdle)

	sm.mu.Lock()
	sm.deferredInteractionComplete = false
	sm.interactionCompletePending = false
	sm.mu.Unlock()
}

// Interrupt pauses playback and moves to interrupted from any state.
func (sm *StateMachine) Interrupt() {
	if sm.playback != nil {
		sm.playback.Pause()
	}
	sm.setState(StateInterrupted)
}

// Stop tears the session down: input pipeline stopped, playback paused,
// transport disconnected, state settles to idle. Valid from any state.
func (sm *StateMachine) Stop() {
	if sm.input != nil {
		sm.input.Stop()
	}
	if sm.playback != nil {
		sm.playback.Pause()
	}
	if sm.transport != nil {
		sm.transport.Disconnect()
	}
	sm.setState(StateIdle)
}

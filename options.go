// Package lokutorclient is the public entry point: a conversation
// orchestration core that mediates full-duplex voice/text conversation
// between the hosting program and a remote conversational assistant.
package lokutorclient

import (
	"github.com/lokutor-ai/lokutor-client/pkg/orchestrator"
)

// Re-exported so callers only need this one import for construction.
type (
	Options           = orchestrator.Options
	Hooks             = orchestrator.Hooks
	VoiceProfile      = orchestrator.VoiceProfile
	Capabilities      = orchestrator.Capabilities
	InputCapabilities = orchestrator.InputCapabilities
	RecordingConfig   = orchestrator.RecordingConfig
	StateChange       = orchestrator.StateChange
	ConversationState = orchestrator.ConversationState
	ClientError       = orchestrator.ClientError
	ErrorKind         = orchestrator.ErrorKind
	LatencyBreakdown  = orchestrator.LatencyBreakdown
)

// Conversation states, re-exported for callers matching on StateChange.
const (
	StateUninitialized = orchestrator.StateUninitialized
	StateInitializing  = orchestrator.StateInitializing
	StateIdle          = orchestrator.StateIdle
	StatePaused        = orchestrator.StatePaused
	StateListening     = orchestrator.StateListening
	StateUserSpeaking  = orchestrator.StateUserSpeaking
	StateWaiting       = orchestrator.StateWaiting
	StatePlaying       = orchestrator.StatePlaying
	StateCompleted     = orchestrator.StateCompleted
	StateInterrupted   = orchestrator.StateInterrupted
	StateError         = orchestrator.StateError
)

// Error kinds, re-exported for callers inspecting ClientError.Kind.
const (
	ErrorMicDenied      = orchestrator.ErrorMicDenied
	ErrorNetworkTimeout = orchestrator.ErrorNetworkTimeout
	ErrorNetworkError   = orchestrator.ErrorNetworkError
	ErrorServerError    = orchestrator.ErrorServerError
	ErrorDecodeError    = orchestrator.ErrorDecodeError
)

// DefaultOptions fills in the capability and recording defaults a caller
// would otherwise have to repeat.
func DefaultOptions() Options {
	return orchestrator.DefaultOptions()
}

// InteractRequest is the payload for Client.Interact.
type InteractRequest struct {
	Text               string
	Speakers           []string
	Context            []string
	OnInput            string
	OnInputNonBlocking string
	OnOutput           string
	AudioOutput        *bool
	LanguageCode       string
}

// Event names used with Client.On.
const (
	EventStateChange      = "stateChange"
	EventText             = "text"
	EventMessage          = "message"
	EventSubtitleChange   = "subtitleChange"
	EventSubtitleHighlight = "subtitleHighlight"
	EventImageChange      = "imageChange"
	EventNetworkReady     = "networkReady"
	EventAvatarAnimation  = "avatarAnimation"
	EventError            = "error"
)

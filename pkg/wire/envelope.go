// Package wire defines the JSON envelope exchanged with the remote
// conversational assistant service and the discriminated request/event
// kinds carried inside it.
package wire

import (
	"github.com/google/uuid"
)

// EnvelopeType distinguishes a client-initiated request from a
// server-initiated stream message.
type EnvelopeType string

const (
	TypeRequest EnvelopeType = "request"
	TypeStream  EnvelopeType = "stream"
)

// Kind discriminates the envelope's payload. Request kinds are chosen by
// the client; response kinds echo the originating request's kind, plus
// "close" and "error" which terminate a pending record.
type Kind string

const (
	KindAuthenticate      Kind = "authenticate"
	KindSetConfiguration  Kind = "set_configuration"
	KindMergeConfiguration Kind = "merge_configuration"
	KindGetConfiguration  Kind = "get_configuration"
	KindRenderPrompt      Kind = "render_prompt"
	KindAddAudio          Kind = "add_audio"
	KindClearAudio        Kind = "clear_audio"
	KindCheckTurn         Kind = "check_turn"
	KindTranscribe        Kind = "transcribe"
	KindAddKeywords       Kind = "add_keywords"
	KindRemoveKeywords    Kind = "remove_keywords"
	KindDetectKeywords    Kind = "detect_keywords"
	KindAddSpeaker        Kind = "add_speaker"
	KindRemoveSpeakers    Kind = "remove_speakers"
	KindDetectSpeakers    Kind = "detect_speakers"
	KindInteract          Kind = "interact"
	KindInterrupt         Kind = "interrupt"
	KindRun               Kind = "run"
	KindPing              Kind = "ping"

	KindClose Kind = "close"
	KindError Kind = "error"
)

// Event discriminates a message carried within an interact stream.
type Event string

const (
	EventInteractionStarted  Event = "interaction_started"
	EventText                Event = "text"
	EventTextComplete        Event = "text_complete"
	EventAudio               Event = "audio"
	EventAudioComplete       Event = "audio_complete"
	EventData                Event = "data"
	EventImage               Event = "image"
	EventSubtitles           Event = "subtitles"
	EventViseme              Event = "viseme"
	EventInteractionError    Event = "interaction_error"
	EventInteractionComplete Event = "interaction_complete"
)

// Mode is the response arity a request expects: a single reply, or a
// stream of messages terminated by a close envelope.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeStream Mode = "stream"
)

// AudioConfig accompanies any base64 audio payload.
type AudioConfig struct {
	SamplingRate int    `json:"sampling_rate"`
	MimeType     string `json:"mime_type"`
}

// DefaultAudioConfig is the fixed wire default unless a caller overrides it.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{SamplingRate: 48000, MimeType: "audio/mpeg"}
}

// VoiceProfile carries TTS voice tuning. Field ranges (speed 0.7-1.2,
// stability/similarity_boost 0.0-1.0) are not validated here; the server
// is the source of truth.
type VoiceProfile struct {
	VoiceID         string   `json:"voice_id,omitempty"`
	Speed           *float64 `json:"speed,omitempty"`
	Stability       *float64 `json:"stability,omitempty"`
	SimilarityBoost *float64 `json:"similarity_boost,omitempty"`
}

// SessionConfig is the payload of set_configuration / merge_configuration.
type SessionConfig struct {
	Prompt       string        `json:"prompt,omitempty"`
	Temperature  *float64      `json:"temperature,omitempty"`
	Utilities    []string      `json:"utilities,omitempty"`
	VoiceProfile *VoiceProfile `json:"voice_profile,omitempty"`
}

// Envelope is the full wire message, a superset of all request/response
// shapes. Only the fields relevant to a given Kind/Event are populated;
// everything else is the zero value and omitted from JSON.
type Envelope struct {
	Type EnvelopeType `json:"type,omitempty"`
	Kind Kind         `json:"kind"`
	UID  string       `json:"uid"`

	ClientStartTime string `json:"client_start_time,omitempty"`
	ServerStartTime string `json:"server_start_time,omitempty"`
	ServerEndTime   string `json:"server_end_time,omitempty"`

	// authenticate
	AccessToken string `json:"access_token,omitempty"`

	// set_configuration / merge_configuration
	Config     *SessionConfig `json:"config,omitempty"`
	References []string       `json:"references,omitempty"`

	// render_prompt
	Context []string `json:"context,omitempty"`

	// add_audio
	Audio       string       `json:"audio,omitempty"`
	AudioConfig *AudioConfig `json:"audio_config,omitempty"`

	// check_turn (response)
	IsUserStillSpeaking *bool `json:"is_user_still_speaking,omitempty"`

	// transcribe
	LanguageCode string `json:"language_code,omitempty"`

	// add_keywords / remove_keywords
	Keywords []string `json:"keywords,omitempty"`

	// add_speaker
	Speaker string `json:"speaker,omitempty"`

	// interact
	Text               string `json:"text,omitempty"`
	Speakers           []string `json:"speakers,omitempty"`
	OnInput            string `json:"on_input,omitempty"`
	OnInputNonBlocking string `json:"on_input_non_blocking,omitempty"`
	OnOutput           string `json:"on_output,omitempty"`
	AudioOutput        *bool  `json:"audio_output,omitempty"`

	// interact stream event
	Event Event  `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`

	// interrupt
	TargetUID  string `json:"target_uid,omitempty"`
	AtCharacter *int  `json:"at_character,omitempty"`

	// run
	Bindings map[string]any `json:"bindings,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// NewUID returns a fresh UUID v4 correlation identifier.
func NewUID() string {
	return uuid.NewString()
}

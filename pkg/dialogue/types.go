package dialogue

import "context"

// Voice selects which of the ten synthetic voices a turn is spoken with.
type Voice string

const (
	VoiceF1 Voice = "F1"
	VoiceF2 Voice = "F2"
	VoiceF3 Voice = "F3"
	VoiceF4 Voice = "F4"
	VoiceF5 Voice = "F5"
	VoiceM1 Voice = "M1"
	VoiceM2 Voice = "M2"
	VoiceM3 Voice = "M3"
	VoiceM4 Voice = "M4"
	VoiceM5 Voice = "M5"
)

// Language is the tag the provider set understands for transcription,
// completion and synthesis.
type Language string

const (
	LanguageEn Language = "en"
	LanguageEs Language = "es"
	LanguageFr Language = "fr"
	LanguageDe Language = "de"
	LanguageIt Language = "it"
	LanguagePt Language = "pt"
	LanguageJa Language = "ja"
	LanguageZh Language = "zh"
)

// Message is one turn of conversational context, shaped like an OpenAI
// chat message since every LLMProvider under pkg/providers/llm speaks
// that wire format natively.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config bounds how much history a Conversation keeps and its starting
// voice/language.
type Config struct {
	MaxContextMessages int
	VoiceStyle         Voice
	Language           Language
}

// DefaultConfig matches what a fresh Conversation uses absent any
// caller override.
func DefaultConfig() Config {
	return Config{
		MaxContextMessages: 20,
		VoiceStyle:         VoiceF1,
		Language:           LanguageEn,
	}
}

// STTProvider transcribes a completed utterance. Implementations live
// under pkg/providers/stt.
type STTProvider interface {
	Transcribe(ctx context.Context, audio []byte, lang Language) (string, error)
	Name() string
}

// LLMProvider completes a chat turn given the accumulated context.
// Implementations live under pkg/providers/llm.
type LLMProvider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Name() string
}

// TTSProvider synthesizes speech, either as one buffer or as a stream of
// chunks handed to onChunk as they're produced. Implementations live
// under pkg/providers/tts.
type TTSProvider interface {
	Synthesize(ctx context.Context, text string, voice Voice, lang Language) ([]byte, error)
	StreamSynthesize(ctx context.Context, text string, voice Voice, lang Language, onChunk func([]byte) error) error
	Name() string
}

// Logger is the narrow key/value logging surface Conversation accepts:
// each call takes a message followed by alternating keys and values.
// pkg/logging.NewDialogueAdapter bridges a zap sugared logger to it.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}

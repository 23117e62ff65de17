package dialogue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Conversation is a single user's turn-taking state plus the provider set
// that drives it: transcribe what the user said, ask the LLM for a
// reply, speak the reply back. internal/testserver owns one per
// websocket connection.
//
// Unlike the client-side orchestration core (pkg/orchestrator), a
// Conversation has no notion of barge-in, partial input, or mid-turn
// interruption: by the time audio reaches here, the client's own VAD and
// check_turn handshake have already decided the user is done talking, so
// there is exactly one STT -> LLM -> TTS pass per turn and nothing to
// manage across turns beyond chat history.
type Conversation struct {
	stt    STTProvider
	llm    LLMProvider
	tts    TTSProvider
	logger Logger

	mu            sync.RWMutex
	id            string
	maxMessages   int
	context       []Message
	lastUser      string
	lastAssistant string
	voice         Voice
	language      Language
}

// NewConversation builds a Conversation with DefaultConfig and no
// logging.
func NewConversation(stt STTProvider, llm LLMProvider, tts TTSProvider) *Conversation {
	return NewConversationWithConfig(stt, llm, tts, DefaultConfig())
}

// NewConversationWithConfig builds a Conversation with an explicit
// Config.
func NewConversationWithConfig(stt STTProvider, llm LLMProvider, tts TTSProvider, cfg Config) *Conversation {
	return &Conversation{
		stt:         stt,
		llm:         llm,
		tts:         tts,
		logger:      noopLogger{},
		id:          fmt.Sprintf("conv_%d", time.Now().UnixNano()),
		maxMessages: cfg.MaxContextMessages,
		voice:       cfg.VoiceStyle,
		language:    cfg.Language,
	}
}

// WithLogger attaches a Logger and returns c, so it can chain off a
// constructor call. cmd/devserver wires pkg/logging.NewDialogueAdapter
// through this so turn-level tracing lands in the same zap output as
// everything else in the process.
func (c *Conversation) WithLogger(logger Logger) *Conversation {
	if logger != nil {
		c.logger = logger
	}
	return c
}

func (c *Conversation) addMessage(role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.context = append(c.context, Message{Role: role, Content: content})
	if len(c.context) > c.maxMessages {
		c.context = c.context[len(c.context)-c.maxMessages:]
	}
	switch role {
	case "user":
		c.lastUser = content
	case "assistant":
		c.lastAssistant = content
	}
}

func (c *Conversation) contextCopy() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := make([]Message, len(c.context))
	copy(cp, c.context)
	return cp
}

func (c *Conversation) voiceAndLanguage() (Voice, Language) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.voice, c.language
}

// respond asks the LLM for a reply to whatever is already in context,
// records it, and streams its synthesized speech to onAudioChunk.
func (c *Conversation) respond(ctx context.Context, onAudioChunk func([]byte) error) (string, error) {
	response, err := c.llm.Complete(ctx, c.contextCopy())
	if err != nil {
		c.logger.Error("llm completion failed", "sessionID", c.id, "error", err)
		return "", fmt.Errorf("%w: %v", ErrLLMFailed, err)
	}
	c.addMessage("assistant", response)

	voice, lang := c.voiceAndLanguage()
	if err := c.tts.StreamSynthesize(ctx, response, voice, lang, onAudioChunk); err != nil {
		c.logger.Error("tts synthesis failed", "sessionID", c.id, "error", err)
		return "", fmt.Errorf("%w: %v", ErrTTSFailed, err)
	}
	return response, nil
}

// ProcessAudio transcribes audioBytes, generates the assistant's reply,
// and streams its synthesized speech to onAudioChunk as it's produced.
func (c *Conversation) ProcessAudio(ctx context.Context, audioBytes []byte, onAudioChunk func([]byte) error) (transcript, response string, err error) {
	_, lang := c.voiceAndLanguage()
	transcript, err = c.stt.Transcribe(ctx, audioBytes, lang)
	if err != nil {
		return "", "", fmt.Errorf("transcription failed: %w", err)
	}
	if strings.TrimSpace(transcript) == "" {
		c.logger.Warn("empty transcription", "sessionID", c.id)
		return "", "", ErrEmptyTranscription
	}
	c.logger.Info("transcribed", "sessionID", c.id, "length", len(transcript))
	c.addMessage("user", transcript)

	response, err = c.respond(ctx, onAudioChunk)
	if err != nil {
		return transcript, "", err
	}
	return transcript, response, nil
}

// Chat drives a text turn the same way ProcessAudio drives an audio one,
// skipping transcription.
func (c *Conversation) Chat(ctx context.Context, text string, onAudioChunk func([]byte) error) (string, error) {
	c.addMessage("user", text)
	return c.respond(ctx, onAudioChunk)
}

// TextOnly generates a reply without synthesizing audio for it.
func (c *Conversation) TextOnly(ctx context.Context, text string) (string, error) {
	c.addMessage("user", text)
	response, err := c.llm.Complete(ctx, c.contextCopy())
	if err != nil {
		c.logger.Error("llm completion failed", "sessionID", c.id, "error", err)
		return "", fmt.Errorf("%w: %v", ErrLLMFailed, err)
	}
	c.addMessage("assistant", response)
	return response, nil
}

func (c *Conversation) SetVoice(voice Voice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voice = voice
}

var validVoices = map[Voice]bool{
	VoiceF1: true, VoiceF2: true, VoiceF3: true, VoiceF4: true, VoiceF5: true,
	VoiceM1: true, VoiceM2: true, VoiceM3: true, VoiceM4: true, VoiceM5: true,
}

func (c *Conversation) SetVoiceByString(voice string) error {
	v := Voice(voice)
	if !validVoices[v] {
		return fmt.Errorf("invalid voice: %s (must be F1-F5 or M1-M5)", voice)
	}
	c.SetVoice(v)
	return nil
}

func (c *Conversation) SetLanguage(language Language) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.language = language
}

var validLanguages = map[Language]bool{
	LanguageEn: true, LanguageEs: true, LanguageFr: true, LanguageDe: true,
	LanguageIt: true, LanguagePt: true, LanguageJa: true, LanguageZh: true,
}

func (c *Conversation) SetLanguageByString(language string) error {
	l := Language(language)
	if !validLanguages[l] {
		return fmt.Errorf("invalid language: %s", language)
	}
	c.SetLanguage(l)
	return nil
}

func (c *Conversation) SetSystemPrompt(prompt string) {
	c.addMessage("system", prompt)
}

func (c *Conversation) GetContext() []Message {
	return c.contextCopy()
}

func (c *Conversation) GetLastUserMessage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUser
}

func (c *Conversation) GetLastAssistantMessage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastAssistant
}

// ClearContext drops conversational history but keeps any system
// prompt.
func (c *Conversation) ClearContext() {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.context[:0:0]
	for _, m := range c.context {
		if m.Role == "system" {
			kept = append(kept, m)
		}
	}
	c.context = kept
	c.lastUser = ""
	c.lastAssistant = ""
}

// Reset clears everything, including any system prompt, and restores
// default voice/language.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.context = nil
	c.lastUser = ""
	c.lastAssistant = ""
	c.voice = VoiceF1
	c.language = LanguageEn
}

func (c *Conversation) GetSessionID() string {
	return c.id
}

func (c *Conversation) GetProviders() map[string]string {
	return map[string]string{
		"stt": c.stt.Name(),
		"llm": c.llm.Name(),
		"tts": c.tts.Name(),
	}
}

func (c *Conversation) GetConfig() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Config{
		MaxContextMessages: c.maxMessages,
		VoiceStyle:         c.voice,
		Language:           c.language,
	}
}

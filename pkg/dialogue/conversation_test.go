package dialogue

import (
	"context"
	"testing"
)

type mockSTT struct {
	result string
	err    error
}

func (m *mockSTT) Transcribe(ctx context.Context, audio []byte, lang Language) (string, error) {
	return m.result, m.err
}

func (m *mockSTT) Name() string { return "mock-stt" }

type mockLLM struct {
	result string
	err    error
}

func (m *mockLLM) Complete(ctx context.Context, messages []Message) (string, error) {
	return m.result, m.err
}

func (m *mockLLM) Name() string { return "mock-llm" }

type mockTTS struct {
	chunk     []byte
	streamErr error
}

func (m *mockTTS) Synthesize(ctx context.Context, text string, voice Voice, lang Language) ([]byte, error) {
	return m.chunk, nil
}

func (m *mockTTS) StreamSynthesize(ctx context.Context, text string, voice Voice, lang Language, onChunk func([]byte) error) error {
	if m.streamErr != nil {
		return m.streamErr
	}
	return onChunk(m.chunk)
}

func (m *mockTTS) Name() string { return "mock-tts" }

func newTestConversation(sttResult, llmResult string) (*Conversation, *mockSTT, *mockLLM, *mockTTS) {
	stt := &mockSTT{result: sttResult}
	llm := &mockLLM{result: llmResult}
	tts := &mockTTS{chunk: []byte{0x01, 0x02, 0x03}}
	return NewConversation(stt, llm, tts), stt, llm, tts
}

func TestNewConversationWithConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxContextMessages = 5
	conv := NewConversationWithConfig(&mockSTT{}, &mockLLM{}, &mockTTS{}, cfg)
	if conv.GetConfig().MaxContextMessages != 5 {
		t.Errorf("expected 5, got %d", conv.GetConfig().MaxContextMessages)
	}
}

func TestSetVoice(t *testing.T) {
	conv, _, _, _ := newTestConversation("", "")
	conv.SetVoice(VoiceM1)
	if conv.GetConfig().VoiceStyle != VoiceM1 {
		t.Errorf("expected VoiceM1, got %v", conv.GetConfig().VoiceStyle)
	}
}

func TestSetVoiceByString(t *testing.T) {
	conv, _, _, _ := newTestConversation("", "")
	if err := conv.SetVoiceByString("F2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.GetConfig().VoiceStyle != VoiceF2 {
		t.Errorf("expected VoiceF2, got %v", conv.GetConfig().VoiceStyle)
	}
	if err := conv.SetVoiceByString("invalid"); err == nil {
		t.Error("expected error for invalid voice")
	}
}

func TestSetLanguageByString(t *testing.T) {
	conv, _, _, _ := newTestConversation("", "")
	if err := conv.SetLanguageByString("fr"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.GetConfig().Language != LanguageFr {
		t.Errorf("expected LanguageFr, got %v", conv.GetConfig().Language)
	}
	if err := conv.SetLanguageByString("invalid"); err == nil {
		t.Error("expected error for invalid language")
	}
}

func TestSetSystemPrompt(t *testing.T) {
	conv, _, _, _ := newTestConversation("", "")
	conv.SetSystemPrompt("be concise")
	found := false
	for _, m := range conv.GetContext() {
		if m.Role == "system" && m.Content == "be concise" {
			found = true
		}
	}
	if !found {
		t.Error("expected system prompt in context")
	}
}

func TestChat(t *testing.T) {
	conv, _, _, _ := newTestConversation("", "hi there")
	resp, err := conv.Chat(context.Background(), "hello", func([]byte) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "hi there" {
		t.Errorf("expected 'hi there', got %q", resp)
	}
	ctx := conv.GetContext()
	if len(ctx) != 2 || ctx[0].Role != "user" || ctx[1].Role != "assistant" {
		t.Errorf("unexpected context shape: %+v", ctx)
	}
}

func TestProcessAudio(t *testing.T) {
	conv, _, _, _ := newTestConversation("hello there", "general kenobi")
	transcript, response, err := conv.ProcessAudio(context.Background(), []byte{0xff, 0xfe}, func([]byte) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transcript != "hello there" {
		t.Errorf("expected transcript 'hello there', got %q", transcript)
	}
	if response != "general kenobi" {
		t.Errorf("expected response 'general kenobi', got %q", response)
	}
}

func TestProcessAudioEmptyTranscription(t *testing.T) {
	conv, _, _, _ := newTestConversation("   ", "")
	_, _, err := conv.ProcessAudio(context.Background(), []byte{0xff}, func([]byte) error { return nil })
	if err != ErrEmptyTranscription {
		t.Fatalf("expected ErrEmptyTranscription, got %v", err)
	}
}

func TestProcessAudioLLMFailure(t *testing.T) {
	stt := &mockSTT{result: "hi"}
	llm := &mockLLM{err: context.DeadlineExceeded}
	tts := &mockTTS{}
	conv := NewConversation(stt, llm, tts)

	_, _, err := conv.ProcessAudio(context.Background(), []byte{0x00}, func([]byte) error { return nil })
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestTextOnly(t *testing.T) {
	conv, _, _, _ := newTestConversation("", "sure thing")
	resp, err := conv.TextOnly(context.Background(), "can you help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "sure thing" {
		t.Errorf("expected 'sure thing', got %q", resp)
	}
}

func TestClearContextKeepsSystemPrompt(t *testing.T) {
	conv, _, _, _ := newTestConversation("", "reply")
	conv.SetSystemPrompt("system rule")
	conv.Chat(context.Background(), "hi", func([]byte) error { return nil })
	conv.ClearContext()

	ctx := conv.GetContext()
	if len(ctx) != 1 || ctx[0].Role != "system" {
		t.Errorf("expected only the system prompt to survive, got %+v", ctx)
	}
	if conv.GetLastUserMessage() != "" {
		t.Error("expected last user message cleared")
	}
}

func TestReset(t *testing.T) {
	conv, _, _, _ := newTestConversation("", "reply")
	conv.SetSystemPrompt("system rule")
	conv.Chat(context.Background(), "hi", func([]byte) error { return nil })
	conv.SetVoice(VoiceM3)
	conv.Reset()

	if len(conv.GetContext()) != 0 {
		t.Error("expected empty context after reset")
	}
	if conv.GetConfig().VoiceStyle != VoiceF1 {
		t.Error("expected voice reset to default")
	}
}

func TestGetters(t *testing.T) {
	conv, _, _, _ := newTestConversation("", "reply")
	conv.Chat(context.Background(), "hello", func([]byte) error { return nil })

	if conv.GetSessionID() == "" {
		t.Error("expected non-empty session ID")
	}
	if conv.GetLastUserMessage() != "hello" {
		t.Error("expected last user message 'hello'")
	}
	if conv.GetLastAssistantMessage() != "reply" {
		t.Error("expected last assistant message 'reply'")
	}
	providers := conv.GetProviders()
	if providers["llm"] != "mock-llm" || providers["stt"] != "mock-stt" || providers["tts"] != "mock-tts" {
		t.Errorf("unexpected providers: %+v", providers)
	}
}

func TestWithLoggerChains(t *testing.T) {
	conv := NewConversation(&mockSTT{}, &mockLLM{}, &mockTTS{}).WithLogger(nil)
	if conv == nil {
		t.Fatal("expected WithLogger to return the conversation")
	}
	if _, ok := conv.logger.(noopLogger); !ok {
		t.Error("expected a nil logger to leave the default noop logger in place")
	}
}

func TestConcurrentChat(t *testing.T) {
	conv, _, _, _ := newTestConversation("", "reply")

	done := make(chan struct{}, 10)
	for i := 0; i < 10; i++ {
		go func() {
			conv.Chat(context.Background(), "hi", func([]byte) error { return nil })
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	if len(conv.GetContext()) == 0 {
		t.Fatal("expected context to be populated after concurrent chats")
	}
}

// Command devserver runs a reference backend implementing the wire
// protocol, so the orchestration core can be exercised against a real
// (if locally hosted) conversation loop instead of a production service.
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/lokutor-ai/lokutor-client/internal/testserver"
	"github.com/lokutor-ai/lokutor-client/pkg/dialogue"
	"github.com/lokutor-ai/lokutor-client/pkg/logging"
	"github.com/lokutor-ai/lokutor-client/pkg/providers/llm"
	"github.com/lokutor-ai/lokutor-client/pkg/providers/stt"
	"github.com/lokutor-ai/lokutor-client/pkg/providers/tts"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found, reading provider keys from process environment")
	}

	zapLogger, err := logging.New(os.Getenv("DEBUG") != "")
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer zapLogger.Sync()
	dialogueLogger := logging.NewDialogueAdapter(zapLogger)

	sttProvider := selectSTT()
	llmProvider := selectLLM()
	ttsProvider := selectTTS()

	zapLogger.Infow("devserver providers", "stt", sttProvider.Name(), "llm", llmProvider.Name(), "tts", ttsProvider.Name())

	newConv := func() *dialogue.Conversation {
		conv := dialogue.NewConversation(sttProvider, llmProvider, ttsProvider).WithLogger(dialogueLogger)
		if prompt := os.Getenv("AGENT_SYSTEM_PROMPT"); prompt != "" {
			conv.SetSystemPrompt(prompt)
		}
		return conv
	}

	addr := ":" + envOrDefault("PORT", "8787")
	srv := testserver.New(newConv, log.Default())
	if dumpDir := os.Getenv("DEVSERVER_AUDIO_DUMP_DIR"); dumpDir != "" {
		srv = srv.WithAudioDump(dumpDir)
	}
	if err := srv.ListenAndServe(addr); err != nil {
		log.Fatalf("devserver stopped: %v", err)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func selectSTT() dialogue.STTProvider {
	switch os.Getenv("STT_PROVIDER") {
	case "deepgram":
		return stt.NewDeepgramSTT(os.Getenv("DEEPGRAM_API_KEY"))
	case "assemblyai":
		return stt.NewAssemblyAISTT(os.Getenv("ASSEMBLYAI_API_KEY"))
	case "groq":
		return stt.NewGroqSTT(os.Getenv("GROQ_API_KEY"), os.Getenv("STT_MODEL"))
	default:
		return stt.NewOpenAISTT(os.Getenv("OPENAI_API_KEY"), os.Getenv("STT_MODEL"))
	}
}

func selectLLM() dialogue.LLMProvider {
	switch os.Getenv("LLM_PROVIDER") {
	case "anthropic":
		return llm.NewAnthropicLLM(os.Getenv("ANTHROPIC_API_KEY"), os.Getenv("LLM_MODEL"))
	case "google":
		return llm.NewGoogleLLM(os.Getenv("GOOGLE_API_KEY"), os.Getenv("LLM_MODEL"))
	case "groq":
		return llm.NewGroqLLM(os.Getenv("GROQ_API_KEY"), os.Getenv("LLM_MODEL"))
	default:
		return llm.NewOpenAILLM(os.Getenv("OPENAI_API_KEY"), os.Getenv("LLM_MODEL"))
	}
}

func selectTTS() dialogue.TTSProvider {
	return tts.NewLokutorTTS(os.Getenv("LOKUTOR_API_KEY"))
}

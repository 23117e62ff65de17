// Command client is a terminal demo of the conversation orchestration
// core: it opens a microphone, talks to a remote assistant over the wire
// protocol, and plays the response back through the speakers.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	lokutorclient "github.com/lokutor-ai/lokutor-client"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: no .env file found, using system environment variables")
	}

	apiURL := os.Getenv("LOKUTOR_API_URL")
	if apiURL == "" {
		apiURL = "https://api.lokutor.com"
	}
	apiKey := os.Getenv("LOKUTOR_API_KEY")
	if apiKey == "" {
		log.Fatal("Error: LOKUTOR_API_KEY must be set.")
	}
	prompt := os.Getenv("AGENT_SYSTEM_PROMPT")
	if prompt == "" {
		prompt = "You are a helpful and concise voice assistant. Use short sentences suitable for speech."
	}

	opts := lokutorclient.DefaultOptions()
	opts.APIURL = apiURL
	opts.APIKey = apiKey
	opts.Prompt = prompt
	opts.Hooks = lokutorclient.Hooks{
		OnStateChange: func(sc lokutorclient.StateChange) {
			fmt.Printf("\r\033[K[state] %s -> %s\n", sc.OldState, sc.NewState)
		},
		OnText: func(text string, final bool) {
			if final {
				fmt.Printf("\r\033[K[assistant] %s\n", text)
			}
		},
		OnError: func(err *lokutorclient.ClientError) {
			fmt.Printf("\r\033[K[error] %s: %v\n", err.Kind, err.Err)
		},
		OnNetworkReady: func(ready bool) {
			fmt.Printf("\r\033[K[network] ready=%v\n", ready)
		},
	}

	client := lokutorclient.New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Initialize(ctx); err != nil {
		log.Fatalf("initialize failed: %v", err)
	}

	if err := client.StartListening(); err != nil {
		log.Fatalf("start listening failed: %v", err)
	}

	fmt.Println("Voice client started. Listening to microphone...")
	fmt.Println("Press Ctrl+C to exit")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Println("\nShutting down...")
	if err := client.Stop(); err != nil {
		log.Printf("stop error: %v", err)
	}
}

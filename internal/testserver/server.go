// Package testserver is a reference backend implementing the wire
// protocol the orchestration core speaks, so the client can be exercised
// end to end without a real conversational assistant service. It drives
// each connection through a pkg/dialogue.Conversation backed by whatever
// STT/LLM/TTS providers the caller wired in.
package testserver

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lokutor-ai/lokutor-client/pkg/dialogue"
)

// ConversationFactory builds a fresh conversation per connected session.
type ConversationFactory func() *dialogue.Conversation

// Server upgrades HTTP connections on /ws to the wire protocol.
type Server struct {
	upgrader  websocket.Upgrader
	newConv   ConversationFactory
	logger    *log.Logger
	audioDump string
}

// New builds a Server. newConv is called once per websocket connection.
func New(newConv ConversationFactory, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		newConv: newConv,
		logger:  logger,
	}
}

// WithAudioDump enables writing each audio-driven turn's captured
// microphone audio to dir as a WAV file, named by the turn's correlation
// uid, for offline inspection.
func (s *Server) WithAudioDump(dir string) *Server {
	s.audioDump = dir
	return s
}

// Handler returns the http.Handler serving the websocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// ListenAndServe starts the HTTP server on addr and blocks.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  0,
		WriteTimeout: 0,
	}
	s.logger.Printf("testserver listening on %s/ws", addr)
	return srv.ListenAndServe()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("upgrade error: %v", err)
		return
	}

	sess := newSession(conn, s.newConv(), s.logger, s.audioDump)
	defer sess.close()

	s.logger.Printf("session connected: %s", r.RemoteAddr)
	sess.run(context.Background())
	s.logger.Printf("session disconnected: %s", r.RemoteAddr)
}

// idleAuthWindow is how long a connection may sit unauthenticated before
// the server drops it; mirrors the client's connectPollBudget order of
// magnitude without sharing a constant across module boundaries.
const idleAuthWindow = 10 * time.Second

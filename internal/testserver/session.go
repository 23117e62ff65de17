package testserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lokutor-ai/lokutor-client/pkg/audio"
	"github.com/lokutor-ai/lokutor-client/pkg/dialogue"
	"github.com/lokutor-ai/lokutor-client/pkg/wire"
)

// voiceIDs is the fixed roster pkg/dialogue accepts; an unrecognized
// voice_profile.voice_id from a request falls back to the first entry.
var voiceIDs = []dialogue.Voice{
	dialogue.VoiceF1, dialogue.VoiceF2, dialogue.VoiceF3, dialogue.VoiceF4, dialogue.VoiceF5,
	dialogue.VoiceM1, dialogue.VoiceM2, dialogue.VoiceM3, dialogue.VoiceM4, dialogue.VoiceM5,
}

func pickVoice(voiceID string) dialogue.Voice {
	for _, v := range voiceIDs {
		if string(v) == voiceID {
			return v
		}
	}
	return dialogue.VoiceF1
}

// speechIdleWindow bounds how long after the last add_audio a check_turn
// may still report the user as speaking; grounded on the client's own
// vad.DefaultConfig SilenceTimeout.
const speechIdleWindow = 300 * time.Millisecond

// session drives the wire protocol for a single websocket connection,
// forwarding interact requests to a dialogue.Conversation and replaying
// its LLM/TTS output as interact-stream events.
type session struct {
	conn      *websocket.Conn
	conv      *dialogue.Conversation
	logger    *log.Logger
	audioDump string // dir to dump captured turn audio as WAV for inspection; empty disables it

	writeMu sync.Mutex

	mu            sync.Mutex
	authenticated bool
	config        wire.SessionConfig
	audioBuf      []byte
	lastAudioAt   time.Time

	activeMu sync.Mutex
	active   map[string]context.CancelFunc
}

func newSession(conn *websocket.Conn, conv *dialogue.Conversation, logger *log.Logger, audioDump string) *session {
	return &session{
		conn:      conn,
		conv:      conv,
		logger:    logger,
		audioDump: audioDump,
		active:    make(map[string]context.CancelFunc),
	}
}

func (s *session) close() { s.conn.Close() }

// run reads envelopes until the connection closes, dropping it if
// authenticate never arrives within idleAuthWindow.
func (s *session) run(ctx context.Context) {
	authDeadline := time.AfterFunc(idleAuthWindow, func() {
		s.mu.Lock()
		ok := s.authenticated
		s.mu.Unlock()
		if !ok {
			s.logger.Printf("closing unauthenticated session")
			s.conn.Close()
		}
	})
	defer authDeadline.Stop()

	for {
		var env wire.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			return
		}
		s.dispatch(ctx, env)
	}
}

func (s *session) send(env wire.Envelope) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(env)
}

func (s *session) dispatch(ctx context.Context, env wire.Envelope) {
	switch env.Kind {
	case wire.KindAuthenticate:
		s.handleAuthenticate(env)
	case wire.KindSetConfiguration, wire.KindMergeConfiguration:
		s.handleConfiguration(env)
	case wire.KindGetConfiguration:
		s.handleGetConfiguration(env)
	case wire.KindAddAudio:
		s.handleAddAudio(env)
	case wire.KindClearAudio:
		s.handleClearAudio(env)
	case wire.KindCheckTurn:
		s.handleCheckTurn(env)
	case wire.KindInteract:
		s.handleInteract(ctx, env)
	case wire.KindInterrupt:
		s.handleInterrupt(env)
	case wire.KindPing:
		s.send(wire.Envelope{Kind: wire.KindPing, UID: env.UID})
	default:
		s.send(wire.Envelope{Kind: wire.KindError, UID: env.UID, Error: "unsupported kind: " + string(env.Kind)})
	}
}

func (s *session) handleAuthenticate(env wire.Envelope) {
	s.mu.Lock()
	s.authenticated = env.AccessToken != ""
	s.mu.Unlock()

	if !s.authenticated {
		s.send(wire.Envelope{Kind: wire.KindError, UID: env.UID, Error: "missing access_token"})
		return
	}
	s.send(wire.Envelope{Kind: wire.KindAuthenticate, UID: env.UID})
}

func (s *session) handleConfiguration(env wire.Envelope) {
	if env.Config != nil {
		if env.Config.VoiceProfile != nil {
			s.conv.SetVoice(pickVoice(env.Config.VoiceProfile.VoiceID))
		}
		if env.Config.Prompt != "" {
			s.conv.SetSystemPrompt(env.Config.Prompt)
		}
		s.mu.Lock()
		s.config = *env.Config
		s.mu.Unlock()
	}
	s.send(wire.Envelope{Kind: env.Kind, UID: env.UID})
}

func (s *session) handleGetConfiguration(env wire.Envelope) {
	s.mu.Lock()
	cfg := s.config
	s.mu.Unlock()
	s.send(wire.Envelope{Kind: env.Kind, UID: env.UID, Config: &cfg})
}

func (s *session) handleAddAudio(env wire.Envelope) {
	if env.Audio != "" {
		chunk, err := base64.StdEncoding.DecodeString(env.Audio)
		if err != nil {
			s.send(wire.Envelope{Kind: wire.KindError, UID: env.UID, Error: "bad base64 audio"})
			return
		}
		s.mu.Lock()
		s.audioBuf = append(s.audioBuf, chunk...)
		s.lastAudioAt = time.Now()
		s.mu.Unlock()
	}
	s.send(wire.Envelope{Kind: wire.KindAddAudio, UID: env.UID})
}

func (s *session) handleClearAudio(env wire.Envelope) {
	s.mu.Lock()
	s.audioBuf = nil
	s.mu.Unlock()
	s.send(wire.Envelope{Kind: wire.KindClearAudio, UID: env.UID})
}

func (s *session) handleCheckTurn(env wire.Envelope) {
	s.mu.Lock()
	lastAudioAt := s.lastAudioAt
	s.mu.Unlock()

	stillSpeaking := isStillSpeaking(lastAudioAt, time.Now())
	s.send(wire.Envelope{
		Kind:                wire.KindCheckTurn,
		UID:                 env.UID,
		IsUserStillSpeaking: &stillSpeaking,
	})
}

// isStillSpeaking reports whether audio arrived recently enough that the
// user is presumed to still be talking.
func isStillSpeaking(lastAudioAt, now time.Time) bool {
	return !lastAudioAt.IsZero() && now.Sub(lastAudioAt) < speechIdleWindow
}

func (s *session) handleInterrupt(env wire.Envelope) {
	s.activeMu.Lock()
	cancel, ok := s.active[env.TargetUID]
	s.activeMu.Unlock()
	if ok {
		cancel()
	}
	s.send(wire.Envelope{Kind: wire.KindInterrupt, UID: env.UID})
}

// handleInteract runs the conversation turn to completion (LLM + TTS),
// then replays the result as an interact event stream: interaction
// started, text, text_complete, a paced sequence of audio chunks,
// audio_complete, interaction_complete, and finally a close envelope that
// ends the client's SendStream wait.
//
// The dialogue.Conversation facade only returns the final response text
// once synthesis has already streamed every chunk, so text events land
// after the audio chunks are collected rather than ahead of them as a
// production backend would order them; acceptable for a reference server
// exercising the client, not faithful to real turn latency.
func (s *session) handleInteract(ctx context.Context, env wire.Envelope) {
	uid := env.UID
	turnCtx, cancel := context.WithCancel(ctx)

	s.activeMu.Lock()
	s.active[uid] = cancel
	s.activeMu.Unlock()
	defer func() {
		s.activeMu.Lock()
		delete(s.active, uid)
		s.activeMu.Unlock()
		cancel()
	}()

	s.send(wire.Envelope{Type: wire.TypeStream, Kind: wire.KindInteract, UID: uid, Event: wire.EventInteractionStarted})

	text := env.Text
	var chunks [][]byte
	var response string
	var err error

	if text != "" {
		response, err = s.conv.Chat(turnCtx, text, func(chunk []byte) error {
			chunks = append(chunks, append([]byte(nil), chunk...))
			return nil
		})
	} else {
		s.mu.Lock()
		capturedAudio := append([]byte(nil), s.audioBuf...)
		s.audioBuf = nil
		s.mu.Unlock()

		s.dumpCapturedAudio(uid, capturedAudio)

		_, response, err = s.conv.ProcessAudio(turnCtx, capturedAudio, func(chunk []byte) error {
			chunks = append(chunks, append([]byte(nil), chunk...))
			return nil
		})
	}

	if err != nil {
		if turnCtx.Err() != nil {
			s.finishInteract(uid)
			return
		}
		s.send(wire.Envelope{Type: wire.TypeStream, Kind: wire.KindInteract, UID: uid, Event: wire.EventInteractionError, Error: err.Error()})
		s.finishInteract(uid)
		return
	}

	s.send(wire.Envelope{Type: wire.TypeStream, Kind: wire.KindInteract, UID: uid, Event: wire.EventText, Text: response})
	s.send(wire.Envelope{Type: wire.TypeStream, Kind: wire.KindInteract, UID: uid, Event: wire.EventTextComplete})

	if err := streamAudioChunks(turnCtx, chunks, func(b64 string) error {
		cfg := wire.DefaultAudioConfig()
		return s.send(wire.Envelope{
			Type: wire.TypeStream, Kind: wire.KindInteract, UID: uid,
			Event: wire.EventAudio, Audio: b64, AudioConfig: &cfg,
		})
	}); err != nil {
		s.logger.Printf("interact %s: audio send stopped: %v", uid, err)
	}

	s.send(wire.Envelope{Type: wire.TypeStream, Kind: wire.KindInteract, UID: uid, Event: wire.EventAudioComplete})
	s.send(wire.Envelope{Type: wire.TypeStream, Kind: wire.KindInteract, UID: uid, Event: wire.EventInteractionComplete})
	s.finishInteract(uid)
}

func (s *session) finishInteract(uid string) {
	s.send(wire.Envelope{Kind: wire.KindClose, UID: uid})
}

// dumpCapturedAudio writes the PCM16/48kHz mono audio a turn was built
// from to a WAV file under audioDump, for listening back to what the VAD
// and capture pipeline actually sent upstream. No-op unless audioDump is
// set and there is audio to write.
func (s *session) dumpCapturedAudio(uid string, pcm []byte) {
	if s.audioDump == "" || len(pcm) == 0 {
		return
	}
	path := filepath.Join(s.audioDump, uid+".wav")
	if err := os.WriteFile(path, audio.NewWavBuffer(pcm, 48000), 0o644); err != nil {
		s.logger.Printf("audio dump for %s failed: %v", uid, err)
	}
}

var errInterrupted = fmt.Errorf("interact stream interrupted")

package testserver

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/lokutor-ai/lokutor-client/pkg/dialogue"
)

func TestPickVoiceMatchesKnownID(t *testing.T) {
	if got := pickVoice("M3"); got != dialogue.VoiceM3 {
		t.Fatalf("pickVoice(M3) = %s, want M3", got)
	}
}

func TestPickVoiceFallsBackToF1(t *testing.T) {
	if got := pickVoice("not-a-voice"); got != dialogue.VoiceF1 {
		t.Fatalf("pickVoice(unknown) = %s, want fallback F1", got)
	}
}

func TestIsStillSpeakingWithinWindow(t *testing.T) {
	now := time.Now()
	if !isStillSpeaking(now.Add(-100*time.Millisecond), now) {
		t.Fatalf("expected still speaking within speechIdleWindow")
	}
}

func TestIsStillSpeakingPastWindow(t *testing.T) {
	now := time.Now()
	if isStillSpeaking(now.Add(-time.Second), now) {
		t.Fatalf("expected not still speaking past speechIdleWindow")
	}
}

func TestIsStillSpeakingZeroValueIsFalse(t *testing.T) {
	if isStillSpeaking(time.Time{}, time.Now()) {
		t.Fatalf("expected zero-value lastAudioAt to report not speaking")
	}
}

func TestStreamAudioChunksRechunksAndPaces(t *testing.T) {
	chunks := [][]byte{make([]byte, sendChunkBytes+10)}
	var got []string
	err := streamAudioChunks(context.Background(), chunks, func(b64 string) error {
		got = append(got, b64)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 pieces from a chunk 10 bytes over the boundary, got %d", len(got))
	}
}

func TestStreamAudioChunksInterruptedByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chunks := [][]byte{make([]byte, sendChunkBytes*3)}
	err := streamAudioChunks(ctx, chunks, func(string) error { return nil })
	if err != errInterrupted {
		t.Fatalf("expected errInterrupted, got %v", err)
	}
}

func TestStreamAudioChunksPropagatesSendError(t *testing.T) {
	boom := &sendError{"boom"}
	chunks := [][]byte{make([]byte, 10)}
	err := streamAudioChunks(context.Background(), chunks, func(string) error { return boom })
	if err != boom {
		t.Fatalf("expected send error to propagate, got %v", err)
	}
}

type sendError struct{ msg string }

func (e *sendError) Error() string { return e.msg }

func TestDumpCapturedAudioNoopWithoutDir(t *testing.T) {
	s := &session{logger: log.Default()}
	s.dumpCapturedAudio("turn-1", []byte{1, 2, 3})
}

func TestDumpCapturedAudioNoopWithEmptyAudio(t *testing.T) {
	s := &session{logger: log.Default(), audioDump: t.TempDir()}
	s.dumpCapturedAudio("turn-1", nil)
}

func TestDumpCapturedAudioWritesWavFile(t *testing.T) {
	dir := t.TempDir()
	s := &session{logger: log.Default(), audioDump: dir}
	s.dumpCapturedAudio("turn-1", []byte{1, 2, 3, 4})

	data, err := os.ReadFile(dir + "/turn-1.wav")
	if err != nil {
		t.Fatalf("expected wav file to be written: %v", err)
	}
	if string(data[0:4]) != "RIFF" {
		t.Fatalf("expected RIFF header, got %q", data[0:4])
	}
}

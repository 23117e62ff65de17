package testserver

import (
	"context"
	"encoding/base64"
	"time"
)

// sendChunkBytes and sendIntervalMS set the pacing of replayed audio
// chunks. Real TTS backends pace by decoded sample duration; this server
// forwards whatever opaque bytes the TTS provider returned (see
// pkg/providers/tts/lokutor.go, which streams raw binary frames off its
// own websocket), so pacing here is a fixed approximation of real-time
// playback rather than a sample-accurate one.
const (
	sendChunkBytes = 4096
	sendIntervalMS = 20 * time.Millisecond
)

// streamAudioChunks rechunks the collected TTS output into
// sendChunkBytes-sized, base64-encoded pieces and hands each to send at a
// fixed pace, the way a rate-limited websocket sender avoids bursting a
// slow client. Returns errInterrupted if ctx is cancelled mid-stream.
func streamAudioChunks(ctx context.Context, chunks [][]byte, send func(string) error) error {
	var buf []byte
	for _, c := range chunks {
		buf = append(buf, c...)
	}

	next := time.Now()
	for len(buf) > 0 {
		select {
		case <-ctx.Done():
			return errInterrupted
		default:
		}

		n := sendChunkBytes
		if n > len(buf) {
			n = len(buf)
		}
		piece := buf[:n]
		buf = buf[n:]

		if sleep := time.Until(next); sleep > 0 {
			timer := time.NewTimer(sleep)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return errInterrupted
			}
		}
		next = next.Add(sendIntervalMS)

		if err := send(base64.StdEncoding.EncodeToString(piece)); err != nil {
			return err
		}
	}
	return nil
}

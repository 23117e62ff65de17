package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lokutor-ai/lokutor-client/pkg/wire"
)

// startEchoServer runs a minimal websocket server that echoes every
// envelope it receives back with the same uid, optionally rewriting kind,
// used to drive SessionTransport's single/stream dispatch paths without a
// real backend.
func startEchoServer(t *testing.T, handle func(conn *websocket.Conn, env wire.Envelope)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := context.Background()
		for {
			var env wire.Envelope
			if err := wsjson.Read(ctx, conn, &env); err != nil {
				return
			}
			handle(conn, env)
		}
	}))
	return srv
}

func wsURL(httpURL string) string {
	if len(httpURL) > 4 && httpURL[:4] == "http" {
		return "ws" + httpURL[4:]
	}
	return httpURL
}

func TestSessionTransportSingleRequestResolves(t *testing.T) {
	srv := startEchoServer(t, func(conn *websocket.Conn, env wire.Envelope) {
		env.Type = wire.TypeRequest
		_ = wsjson.Write(context.Background(), conn, env)
	})
	defer srv.Close()

	tr := New(wsURL(srv.URL), nil, nil, nil)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Close()

	resp, err := tr.Send(context.Background(), wire.Envelope{Kind: wire.KindPing})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Kind != wire.KindPing {
		t.Fatalf("expected echoed kind=ping, got %q", resp.Kind)
	}
}

func TestSessionTransportSingleRequestRejectsOnError(t *testing.T) {
	srv := startEchoServer(t, func(conn *websocket.Conn, env wire.Envelope) {
		resp := wire.Envelope{UID: env.UID, Kind: wire.KindError, Error: "bad token"}
		_ = wsjson.Write(context.Background(), conn, resp)
	})
	defer srv.Close()

	tr := New(wsURL(srv.URL), nil, nil, nil)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Close()

	_, err := tr.Send(context.Background(), wire.Envelope{Kind: wire.KindAuthenticate})
	if err == nil {
		t.Fatalf("expected error response to reject the request")
	}
}

func TestSessionTransportEveryUIDUnique(t *testing.T) {
	srv := startEchoServer(t, func(conn *websocket.Conn, env wire.Envelope) {
		_ = wsjson.Write(context.Background(), conn, env)
	})
	defer srv.Close()

	tr := New(wsURL(srv.URL), nil, nil, nil)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Close()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		resp, err := tr.Send(context.Background(), wire.Envelope{Kind: wire.KindPing})
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		if seen[resp.UID] {
			t.Fatalf("uid %s reused", resp.UID)
		}
		seen[resp.UID] = true
	}
}

func TestSessionTransportStreamClosesOnKindClose(t *testing.T) {
	srv := startEchoServer(t, func(conn *websocket.Conn, env wire.Envelope) {
		ctx := context.Background()
		_ = wsjson.Write(ctx, conn, wire.Envelope{UID: env.UID, Kind: wire.KindInteract, Event: wire.EventText, Text: "hi"})
		_ = wsjson.Write(ctx, conn, wire.Envelope{UID: env.UID, Kind: wire.KindClose})
	})
	defer srv.Close()

	var messages []wire.Envelope
	tr := New(wsURL(srv.URL), nil, func(e wire.Envelope) { messages = append(messages, e) }, nil)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Close()

	streamCh, err := tr.SendStream(context.Background(), wire.Envelope{Kind: wire.KindInteract, Text: "."})
	if err != nil {
		t.Fatalf("send stream: %v", err)
	}

	select {
	case _, ok := <-streamCh:
		if ok {
			t.Fatalf("expected stream channel to be closed with no pending value after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for stream to close")
	}
}

func TestSessionTransportUnansweredRequestRejectsOnContextCancel(t *testing.T) {
	srv := startEchoServer(t, func(conn *websocket.Conn, env wire.Envelope) {
		// Never respond; exercises the caller-side cancellation path
		// rather than the (much slower) 50s pending-record timer.
	})
	defer srv.Close()

	tr := New(wsURL(srv.URL), nil, nil, nil)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := make(chan error, 1)
	go func() {
		_, err := tr.Send(ctx, wire.Envelope{Kind: wire.KindPing})
		resultCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-resultCh:
		if err == nil {
			t.Fatalf("expected an error once the context was cancelled")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for send to return")
	}
}

// Package transport implements the bidirectional, correlation-ID
// multiplexed channel the orchestrator speaks to the server over.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lokutor-ai/lokutor-client/pkg/wire"
)

// Mode selects how a sent request's responses resolve its pending record.
type Mode int

const (
	ModeSingle Mode = iota
	ModeStream
)

const (
	defaultRequestTimeout = 50 * time.Second
	connectPollBudget     = 10 * time.Second
	connectPollInterval   = 100 * time.Millisecond
)

// pendingRequest is the continuation record SessionTransport keeps per
// in-flight request, keyed by uid.
type pendingRequest struct {
	mode     Mode
	resolve  func(wire.Envelope)
	reject   func(error)
	timer    *time.Timer
	resolved bool
}

// Logger is the minimal structured-logging surface the transport needs;
// satisfied by *zap.SugaredLogger among others.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugw(string, ...interface{}) {}
func (noopLogger) Warnw(string, ...interface{})  {}
func (noopLogger) Errorw(string, ...interface{}) {}

// SessionTransport multiplexes request/response and streaming exchanges
// over a single websocket connection using envelope uid correlation.
type SessionTransport struct {
	url    string
	logger Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]*pendingRequest
	closed  bool

	onMessage func(wire.Envelope)
	onError   func(error)

	readCtx    context.Context
	readCancel context.CancelFunc
	readDone   chan struct{}
}

// New builds a SessionTransport pointed at url (a ws:// or wss:// URL).
// onMessage receives every envelope surfaced as a message event (matching
// uid replies, interact-stream events, and uid-less kind=interact pushes).
// onError receives transport-level errors (stream kind=error, read
// failures after connection).
func New(url string, logger Logger, onMessage func(wire.Envelope), onError func(error)) *SessionTransport {
	if logger == nil {
		logger = noopLogger{}
	}
	if onMessage == nil {
		onMessage = func(wire.Envelope) {}
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &SessionTransport{
		url:       url,
		logger:    logger,
		pending:   make(map[string]*pendingRequest),
		onMessage: onMessage,
		onError:   onError,
	}
}

// Connect dials the server, giving the dial a fixed time budget, then
// starts the read loop. It does not perform the
// authenticate/set_configuration handshake; that is the orchestrator's
// responsibility, issued as ordinary requests once Connect returns.
func (t *SessionTransport) Connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, connectPollBudget)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, t.url, nil)
	if err != nil {
		return fmt.Errorf("network_error: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.closed = false
	t.mu.Unlock()

	t.readCtx, t.readCancel = context.WithCancel(context.Background())
	t.readDone = make(chan struct{})
	go t.readLoop()
	return nil
}

func (t *SessionTransport) readLoop() {
	defer close(t.readDone)
	for {
		var env wire.Envelope
		err := wsjson.Read(t.readCtx, t.conn, &env)
		if err != nil {
			if t.readCtx.Err() != nil {
				return // closed deliberately
			}
			t.logger.Errorw("transport read failed", "error", err)
			t.onError(fmt.Errorf("network_error: %w", err))
			return
		}
		t.dispatch(env)
	}
}

func (t *SessionTransport) dispatch(env wire.Envelope) {
	if env.UID == "" {
		if env.Kind == wire.KindInteract {
			t.onMessage(env)
			return
		}
		t.logger.Warnw("unmatched message with no uid", "kind", env.Kind)
		return
	}

	t.mu.Lock()
	pr, ok := t.pending[env.UID]
	if !ok {
		t.mu.Unlock()
		// Matches an already-resolved/expired request; still worth
		// surfacing as a message for interact-stream consumers that
		// track uid themselves.
		t.onMessage(env)
		return
	}

	switch pr.mode {
	case ModeSingle:
		delete(t.pending, env.UID)
		if pr.timer != nil {
			pr.timer.Stop()
		}
		t.mu.Unlock()

		if env.Kind == wire.KindError {
			pr.reject(fmt.Errorf("server_error: %s", env.Error))
		} else {
			pr.resolve(env)
		}
		t.onMessage(env)

	case ModeStream:
		if env.Kind == wire.KindClose {
			delete(t.pending, env.UID)
			if pr.timer != nil {
				pr.timer.Stop()
			}
			t.mu.Unlock()
			pr.resolve(env)
			return
		}
		t.mu.Unlock()

		if env.Kind == wire.KindError {
			t.logger.Errorw("stream error", "uid", env.UID, "error", env.Error)
			t.onError(fmt.Errorf("server_error: %s", env.Error))
		}
		t.onMessage(env)
	}
}

// Send transmits env (stamping uid and client_start_time if unset) in
// single-response mode and waits for the one matching reply. It returns
// a "server_error:" error when the reply is kind=error, a
// "network_timeout:" error when no reply arrives in time, and ctx.Err()
// when ctx is cancelled first.
func (t *SessionTransport) Send(ctx context.Context, env wire.Envelope) (wire.Envelope, error) {
	resultCh := make(chan wire.Envelope, 1)
	errCh := make(chan error, 1)

	uid := t.register(env, ModeSingle,
		func(e wire.Envelope) { resultCh <- e },
		func(e error) { errCh <- e },
	)
	env.UID = uid
	if env.ClientStartTime == "" {
		env.ClientStartTime = time.Now().UTC().Format(time.RFC3339)
	}

	if err := t.write(ctx, env); err != nil {
		t.removePending(uid)
		return wire.Envelope{}, err
	}

	select {
	case e := <-resultCh:
		return e, nil
	case err := <-errCh:
		return wire.Envelope{}, err
	case <-ctx.Done():
		t.removePending(uid)
		return wire.Envelope{}, ctx.Err()
	}
}

// SendStream transmits env in stream mode; the returned channel is
// closed, with no value sent, when a kind=close with the matching uid
// arrives. Stream events and kind=error replies go to onMessage and
// onError, not to the channel; a stream that times out leaves the channel
// open.
func (t *SessionTransport) SendStream(ctx context.Context, env wire.Envelope) (<-chan wire.Envelope, error) {
	resultCh := make(chan wire.Envelope, 16)

	uid := t.register(env, ModeStream,
		func(e wire.Envelope) {
			if e.Kind != wire.KindClose {
				resultCh <- e
			}
			close(resultCh)
		},
		func(error) {},
	)
	env.UID = uid
	if env.ClientStartTime == "" {
		env.ClientStartTime = time.Now().UTC().Format(time.RFC3339)
	}

	// Stream events also flow through onMessage via dispatch; resultCh
	// only signals stream-close completion to the caller of SendStream.
	if err := t.write(ctx, env); err != nil {
		t.removePending(uid)
		return nil, err
	}
	return resultCh, nil
}

func (t *SessionTransport) register(env wire.Envelope, mode Mode, resolve func(wire.Envelope), reject func(error)) string {
	uid := env.UID
	if uid == "" {
		uid = wire.NewUID()
	}

	pr := &pendingRequest{mode: mode, resolve: resolve, reject: reject}
	pr.timer = time.AfterFunc(defaultRequestTimeout, func() {
		t.mu.Lock()
		cur, ok := t.pending[uid]
		if ok && cur == pr {
			delete(t.pending, uid)
		}
		t.mu.Unlock()
		if ok {
			reject(fmt.Errorf("network_timeout: request %s timed out", uid))
		}
	})

	t.mu.Lock()
	t.pending[uid] = pr
	t.mu.Unlock()
	return uid
}

func (t *SessionTransport) removePending(uid string) {
	t.mu.Lock()
	if pr, ok := t.pending[uid]; ok {
		if pr.timer != nil {
			pr.timer.Stop()
		}
		delete(t.pending, uid)
	}
	t.mu.Unlock()
}

func (t *SessionTransport) write(ctx context.Context, env wire.Envelope) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("network_error: transport not connected")
	}
	if err := wsjson.Write(ctx, conn, env); err != nil {
		return fmt.Errorf("network_error: %w", err)
	}
	return nil
}

// Close tears down the connection and rejects every outstanding request.
func (t *SessionTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	pending := t.pending
	t.pending = make(map[string]*pendingRequest)
	t.mu.Unlock()

	for uid, pr := range pending {
		if pr.timer != nil {
			pr.timer.Stop()
		}
		pr.reject(fmt.Errorf("network_error: transport closed while request %s was pending", uid))
	}

	if t.readCancel != nil {
		t.readCancel()
	}
	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "")
	}
	if t.readDone != nil {
		<-t.readDone
	}
	return err
}

// rawURL is a small helper behind RawURL that builds ws(s):// URLs from
// an http(s) API base without pulling in a second dependency.
func rawURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	return u.String(), nil
}

// RawURL exports rawURL for callers building the dial target from an
// http(s) base URL plus a path.
func RawURL(apiURL, path string) (string, error) {
	base, err := rawURL(apiURL)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = path
	return u.String(), nil
}

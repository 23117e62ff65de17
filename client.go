package lokutorclient

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/lokutor-ai/lokutor-client/pkg/audio"
	"github.com/lokutor-ai/lokutor-client/pkg/logging"
	"github.com/lokutor-ai/lokutor-client/pkg/orchestrator"
	"github.com/lokutor-ai/lokutor-client/pkg/transport"
	"github.com/lokutor-ai/lokutor-client/pkg/vad"
	"github.com/lokutor-ai/lokutor-client/pkg/wire"
)

const requestTimeout = 20 * time.Second

// eventHub fans out named events to listeners registered through On, in
// addition to whatever the caller wired into Options.Hooks.
type eventHub struct {
	mu        sync.Mutex
	listeners map[string][]func(any)
}

func newEventHub() *eventHub {
	return &eventHub{listeners: make(map[string][]func(any))}
}

func (h *eventHub) on(event string, fn func(any)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.listeners[event] = append(h.listeners[event], fn)
	h.mu.Unlock()
}

func (h *eventHub) emit(event string, payload any) {
	h.mu.Lock()
	fns := append([]func(any){}, h.listeners[event]...)
	h.mu.Unlock()
	for _, fn := range fns {
		func() {
			defer func() { recover() }()
			fn(payload)
		}()
	}
}

// Client is the conversation orchestration core: it owns the session
// transport, the streaming player and capture devices, voice-activity
// detection and the turn-taking state machine, and exposes the small
// public surface a host program drives.
type Client struct {
	opts  Options
	sugar interface {
		Debugw(string, ...interface{})
		Warnw(string, ...interface{})
		Errorw(string, ...interface{})
	}
	hub     *eventHub
	sinks   *orchestrator.ExternalSinks
	tokens  orchestrator.TokenStore
	latency *orchestrator.LatencyTracker

	mu        sync.Mutex
	textOnly  bool
	initOnce  sync.Once
	closeOnce sync.Once

	transport *transport.SessionTransport
	player    *audio.StreamingAudioPlayer
	mctx      *malgo.AllocatedContext
	capture   *audio.Capture
	playback  *malgo.Device
	detector  *vad.Detector
	echoGuard *vad.CorrelationEchoGuard
	resampler *audio.Resampler
	pipeline  *orchestrator.InputPipeline
	sm        *orchestrator.StateMachine
}

// New constructs a Client from opts. It performs no I/O and acquires no
// hardware; call Initialize to connect and start the audio engine.
func New(opts Options) *Client {
	hub := newEventHub()
	c := &Client{
		opts:   opts,
		hub:    hub,
		tokens: &orchestrator.MemoryTokenStore{},
		latency: orchestrator.NewLatencyTracker(),
	}
	c.sinks = orchestrator.NewExternalSinks(mergeHooks(opts.Hooks, hub))

	logger, err := logging.New(false)
	if err == nil {
		c.sugar = logger
	}
	return c
}

// mergeHooks wraps each caller-supplied hook so it fires alongside the
// matching named event on the hub, so On and Options.Hooks are two views
// of the same signal.
func mergeHooks(h Hooks, hub *eventHub) Hooks {
	return Hooks{
		OnStateChange: func(sc orchestrator.StateChange) {
			if h.OnStateChange != nil {
				h.OnStateChange(sc)
			}
			hub.emit(EventStateChange, sc)
		},
		OnText: func(text string, final bool) {
			if h.OnText != nil {
				h.OnText(text, final)
			}
			hub.emit(EventText, struct {
				Text  string
				Final bool
			}{text, final})
		},
		OnMessage: func(data string) {
			if h.OnMessage != nil {
				h.OnMessage(data)
			}
			hub.emit(EventMessage, data)
		},
		OnSubtitleChange: func(s string) {
			if h.OnSubtitleChange != nil {
				h.OnSubtitleChange(s)
			}
			hub.emit(EventSubtitleChange, s)
		},
		OnSubtitleHighlight: func(i int) {
			if h.OnSubtitleHighlight != nil {
				h.OnSubtitleHighlight(i)
			}
			hub.emit(EventSubtitleHighlight, i)
		},
		OnImageChange: func(s string) {
			if h.OnImageChange != nil {
				h.OnImageChange(s)
			}
			hub.emit(EventImageChange, s)
		},
		OnNetworkReady: func(ready bool) {
			if h.OnNetworkReady != nil {
				h.OnNetworkReady(ready)
			}
			hub.emit(EventNetworkReady, ready)
		},
		OnAvatarAnimation: func(s string) {
			if h.OnAvatarAnimation != nil {
				h.OnAvatarAnimation(s)
			}
			hub.emit(EventAvatarAnimation, s)
		},
		OnError: func(ce *ClientError) {
			if h.OnError != nil {
				h.OnError(ce)
			}
			hub.emit(EventError, ce)
		},
	}
}

// On registers fn to be called whenever event fires. See the Event*
// constants for the recognized names.
func (c *Client) On(event string, fn func(any)) {
	c.hub.on(event, fn)
}

// Latency reports the current turn's observable timing breakdown.
func (c *Client) Latency() LatencyBreakdown {
	return c.latency.Breakdown()
}

// Initialize dials the transport, runs the authenticate/set_configuration
// handshake, starts the audio engine, and arms the state machine.
func (c *Client) Initialize(ctx context.Context) error {
	var initErr error
	c.initOnce.Do(func() {
		initErr = c.initialize(ctx)
	})
	return initErr
}

func (c *Client) initialize(ctx context.Context) error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return orchestrator.NewClientError(orchestrator.ErrorMicDenied, err)
	}
	c.mctx = mctx

	rc := c.opts.RecordingConfig
	decoder, err := audio.NewOpusDecoder(48000, 1)
	if err != nil {
		return orchestrator.NewClientError(orchestrator.ErrorDecodeError, err)
	}
	c.player = audio.NewStreamingAudioPlayer(decoder, 48000, c.onPlayerEvent)

	c.echoGuard = vad.NewCorrelationEchoGuard()

	var pipeline *orchestrator.InputPipeline
	c.detector = vad.New(vad.DefaultConfig(), func(speaking bool) {
		if speaking {
			pipeline.OnSpeechStart()
		} else {
			pipeline.OnSpeechEnd()
		}
	}, func() {
		pipeline.OnSilence()
	})
	c.detector.SetEchoGuard(c.echoGuard)

	constraints := audio.CaptureConstraints{
		SampleRate:       rc.SampleRate,
		Channels:         rc.Channels,
		EchoCancellation: rc.EchoCancellation,
		NoiseSuppression: rc.NoiseSuppression,
		AutoGainControl:  rc.AutoGainControl,
	}
	if constraints.SampleRate == 0 {
		constraints = audio.DefaultCaptureConstraints()
	}

	channels := constraints.Channels
	if channels == 0 {
		channels = 1
	}
	resampler, err := audio.NewResampler(constraints.SampleRate, 48000, channels)
	if err != nil {
		return orchestrator.NewClientError(orchestrator.ErrorMicDenied, err)
	}
	c.resampler = resampler

	capture, err := audio.NewCapture(mctx, constraints,
		func(frame []byte) { pipeline.OnAudioData(frame) },
		func(frame []byte) { pipeline.OnFrame(frame) },
	)
	if err != nil {
		return orchestrator.NewClientError(orchestrator.ErrorMicDenied, err)
	}
	c.capture = capture

	pipeline = orchestrator.NewInputPipeline(capture, c.detector, audioSenderAdapter{c}, stateSinkAdapter{c}, c.opts.InputCapabilities)
	c.pipeline = pipeline

	c.sm = orchestrator.NewStateMachine(c.sinks)
	c.sm.Wire(pipeline, playbackAdapter{c}, turnAdapter{c}, transportAdapter{c})

	wsURL, err := transport.RawURL(c.opts.APIURL, "/ws")
	if err != nil {
		return orchestrator.NewClientError(orchestrator.ErrorNetworkError, err)
	}
	c.transport = transport.New(wsURL, c.sugar, c.onTransportMessage, c.onTransportError)
	if err := c.transport.Connect(ctx); err != nil {
		return c.wrapTransportErr(err)
	}

	if err := c.ensureAuthenticated(ctx); err != nil {
		return err
	}
	if err := c.sendConfiguration(ctx); err != nil {
		return err
	}

	if err := c.startPlaybackDevice(); err != nil {
		return orchestrator.NewClientError(orchestrator.ErrorMicDenied, err)
	}

	c.sm.HandleInitializeSucceeded()
	c.sinks.NetworkReady(true)

	return c.startInteract(ctx, InteractRequest{Text: "."})
}

func (c *Client) startPlaybackDevice() error {
	rc := c.opts.RecordingConfig
	channels := rc.Channels
	if channels == 0 {
		channels = 1
	}
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = 48000

	device, err := malgo.InitDevice(c.mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			samples := c.player.PullFrames(int(frameCount), channels)
			for i, s := range samples {
				binary.LittleEndian.PutUint16(pOutput[i*2:], uint16(s))
			}
			c.echoGuard.RecordPlayedAudio(pOutput)
		},
	})
	if err != nil {
		return err
	}
	c.playback = device
	return device.Start()
}

func (c *Client) ensureAuthenticated(ctx context.Context) error {
	if rec, ok := c.tokens.Get(); ok && !rec.Expired(time.Now()) {
		return nil
	}

	env := wire.Envelope{Type: wire.TypeRequest, Kind: wire.KindAuthenticate, AccessToken: c.opts.APIKey}
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if _, err := c.transport.Send(reqCtx, env); err != nil {
		return c.wrapTransportErr(err)
	}
	c.tokens.Set(orchestrator.TokenRecord{Value: c.opts.APIKey, Expiry: time.Now().Add(orchestrator.AccessTokenTTL)})
	return nil
}

func (c *Client) sendConfiguration(ctx context.Context) error {
	cfg := &wire.SessionConfig{
		Prompt:       c.opts.Prompt,
		VoiceProfile: toWireVoiceProfile(c.opts.VoiceProfile),
	}
	env := wire.Envelope{Type: wire.TypeRequest, Kind: wire.KindSetConfiguration, Config: cfg, References: c.opts.Context}
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if _, err := c.transport.Send(reqCtx, env); err != nil {
		return c.wrapTransportErr(err)
	}
	return nil
}

func toWireVoiceProfile(v *VoiceProfile) *wire.VoiceProfile {
	if v == nil {
		return nil
	}
	return &wire.VoiceProfile{
		VoiceID:         v.VoiceID,
		Speed:           v.Speed,
		Stability:       v.Stability,
		SimilarityBoost: v.SimilarityBoost,
	}
}

// StartListening arms the microphone for a new user turn.
func (c *Client) StartListening() error {
	return c.sm.StartListening()
}

// StopListening halts capture without changing the turn-taking state.
func (c *Client) StopListening() {
	c.sm.StopListening()
}

// Interact sends a request to the assistant directly (bypassing the
// listening/VAD path), e.g. for a text-only prompt.
func (c *Client) Interact(req InteractRequest) error {
	return c.startInteract(context.Background(), req)
}

func (c *Client) startInteract(ctx context.Context, req InteractRequest) error {
	audioOutput := req.AudioOutput
	if audioOutput == nil {
		enabled := c.opts.Capabilities.Audio
		audioOutput = &enabled
	}
	env := wire.Envelope{
		Type:               wire.TypeRequest,
		Kind:               wire.KindInteract,
		Text:               req.Text,
		Speakers:           req.Speakers,
		Context:            req.Context,
		OnInput:            req.OnInput,
		OnInputNonBlocking: req.OnInputNonBlocking,
		OnOutput:           req.OnOutput,
		AudioOutput:        audioOutput,
		LanguageCode:       req.LanguageCode,
	}
	ch, err := c.transport.SendStream(ctx, env)
	if err != nil {
		return c.wrapTransportErr(err)
	}
	c.latency.MarkInteractSent()
	go func() {
		for range ch {
			// content delivery happens via onTransportMessage; this drains
			// the stream-close signal so the channel doesn't leak.
		}
	}()
	return nil
}

// Interrupt cuts the current assistant turn short.
func (c *Client) Interrupt() error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if _, err := c.transport.Send(ctx, wire.Envelope{Type: wire.TypeRequest, Kind: wire.KindInterrupt}); err != nil {
		c.sugarErrorw("interrupt request failed", "error", err)
	}
	c.sm.Interrupt()
	c.echoGuard.ClearPlayedAudio()
	return nil
}

// Pause suspends playback.
func (c *Client) Pause() error {
	return c.sm.Pause()
}

// Resume continues playback after Pause.
func (c *Client) Resume() error {
	return c.sm.Resume()
}

// ForceInputComplete is the external entrypoint for the one-shot
// input_complete latch: it behaves exactly as VAD silence would, without
// waiting for the debounce timer.
func (c *Client) ForceInputComplete() {
	c.pipeline.OnSilence()
}

// ToggleTextOnlyInput switches the input pipeline between audio+text and
// text-only capture, stopping the recorder cleanly when audio is disabled.
func (c *Client) ToggleTextOnlyInput(textOnly bool) {
	c.mu.Lock()
	c.textOnly = textOnly
	c.mu.Unlock()

	c.pipeline.UpdateCapabilities(orchestrator.InputCapabilities{Audio: !textOnly, Text: true})
	if textOnly {
		c.pipeline.Stop()
	}
}

// Stop tears the client down: input, playback, and the transport
// connection. Safe to call once; later calls are no-ops.
func (c *Client) Stop() error {
	var err error
	c.closeOnce.Do(func() {
		c.sm.Stop()
		if c.playback != nil {
			c.playback.Uninit()
		}
		if c.capture != nil {
			c.capture.Uninit()
		}
		if c.mctx != nil {
			err = c.mctx.Uninit()
		}
		c.sinks.Close()
	})
	return err
}

func (c *Client) onPlayerEvent(ev audio.PlayerEvent) {
	switch ev {
	case audio.EventReady:
		c.sm.HandlePlayerReady()
		c.latency.MarkFirstAudio()
	case audio.EventAboutToComplete:
		c.sm.HandlePlayerAboutToComplete()
		c.latency.MarkAboutToComplete()
	case audio.EventFinished:
		c.sm.HandlePlayerFinished()
		c.latency.MarkFinished()
		c.player.Reset()
	case audio.EventPlaying:
	}
}

func (c *Client) onTransportMessage(env wire.Envelope) {
	if env.Kind != wire.KindInteract {
		return
	}
	switch env.Event {
	case wire.EventInteractionStarted:
		c.sinks.Message("interaction_started")
	case wire.EventText:
		c.sinks.Text(env.Text, false)
	case wire.EventTextComplete:
		c.sinks.Text(env.Text, true)
	case wire.EventAudio:
		if c.opts.Capabilities.Audio {
			if err := c.player.Enqueue(env.Audio); err != nil {
				c.sinks.Error(orchestrator.NewClientError(orchestrator.ErrorDecodeError, err))
			}
		}
	case wire.EventAudioComplete:
		c.player.MarkComplete()
	case wire.EventData:
		c.sinks.Message(fmt.Sprint(env.Data))
	case wire.EventImage:
		c.sinks.ImageChanged(fmt.Sprint(env.Data))
	case wire.EventSubtitles:
		c.sinks.SubtitleChanged(fmt.Sprint(env.Data))
	case wire.EventViseme:
		c.sinks.AvatarAnimation(fmt.Sprint(env.Data))
	case wire.EventInteractionError:
		c.sm.HandleFatalError(orchestrator.NewClientError(orchestrator.ErrorServerError, errors.New(env.Error)))
	case wire.EventInteractionComplete:
		c.sm.HandleInteractionComplete()
	}
}

func (c *Client) onTransportError(err error) {
	c.sm.HandleFatalError(c.wrapTransportErr(err))
}

func (c *Client) wrapTransportErr(err error) *ClientError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "network_timeout"):
		return orchestrator.NewClientError(orchestrator.ErrorNetworkTimeout, err)
	case strings.HasPrefix(msg, "server_error"):
		return orchestrator.NewClientError(orchestrator.ErrorServerError, err)
	default:
		return orchestrator.NewClientError(orchestrator.ErrorNetworkError, err)
	}
}

func (c *Client) sugarErrorw(msg string, kv ...interface{}) {
	if c.sugar != nil {
		c.sugar.Errorw(msg, kv...)
	}
}

// audioSenderAdapter satisfies orchestrator.AudioSender on top of the
// session transport's add_audio request.
type audioSenderAdapter struct{ c *Client }

func (a audioSenderAdapter) SendAudioChunk(b64 string) error {
	if a.c.resampler != nil {
		resampled, err := a.c.resampleBase64(b64)
		if err != nil {
			return err
		}
		b64 = resampled
	}
	cfg := wire.DefaultAudioConfig()
	env := wire.Envelope{Type: wire.TypeRequest, Kind: wire.KindAddAudio, Audio: b64, AudioConfig: &cfg}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	_, err := a.c.transport.Send(ctx, env)
	return err
}

// resampleBase64 decodes a base64-encoded PCM16 chunk captured at the
// device's native rate and re-encodes it after converting to the wire's
// fixed 48kHz, so RecordingConfig.SampleRate need not match AudioConfig.
func (c *Client) resampleBase64(b64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", err
	}
	out, err := c.resampler.Resample(bytesToInt16LE(raw))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(int16LEToBytes(out)), nil
}

func bytesToInt16LE(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func int16LEToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// stateSinkAdapter satisfies orchestrator.StateSink, routing VAD edges to
// the state machine.
type stateSinkAdapter struct{ c *Client }

func (a stateSinkAdapter) HandleSpeechStart() { a.c.sm.HandleSpeechStart() }
func (a stateSinkAdapter) HandleSpeechEnd()   { a.c.sm.HandleSpeechEnd() }
func (a stateSinkAdapter) HandleVADSilence()  { a.c.sm.HandleVADSilence() }

// turnAdapter satisfies orchestrator.TurnSignaler. input_complete is not
// a wire request kind (only check_turn and interact are); it is an
// internal one-shot signal, so SendInputComplete does no network I/O.
type turnAdapter struct{ c *Client }

func (a turnAdapter) SendInputComplete() error {
	a.c.latency.StartTurn()
	return nil
}

func (a turnAdapter) SendCheckTurn() error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	resp, err := a.c.transport.Send(ctx, wire.Envelope{Type: wire.TypeRequest, Kind: wire.KindCheckTurn})
	if err != nil {
		a.c.sm.HandleFatalError(a.c.wrapTransportErr(err))
		return err
	}
	stillSpeaking := resp.IsUserStillSpeaking != nil && *resp.IsUserStillSpeaking
	a.c.sm.HandleCheckTurnResponse(stillSpeaking)
	return nil
}

func (a turnAdapter) SendAccumulatedInteract() error {
	return a.c.startInteract(context.Background(), InteractRequest{})
}

// playbackAdapter satisfies orchestrator.PlaybackController.
type playbackAdapter struct{ c *Client }

func (a playbackAdapter) Play()   { a.c.player.Play() }
func (a playbackAdapter) Pause()  { a.c.player.Pause() }
func (a playbackAdapter) Resume() { a.c.player.Resume() }

// transportAdapter satisfies orchestrator.TransportController.
type transportAdapter struct{ c *Client }

func (a transportAdapter) Disconnect() error { return a.c.transport.Close() }

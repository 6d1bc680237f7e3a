// Package bridge couples one Twilio media-stream connection to one
// ElevenLabs conversation for the lifetime of a phone call, translating
// between the two protocols and propagating closure from either side to
// the other.
package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/CaptainTK1/elevenlabs-websocket/internal/audio"
	"github.com/CaptainTK1/elevenlabs-websocket/internal/elevenlabs"
	"github.com/CaptainTK1/elevenlabs-websocket/internal/observability"
	"github.com/CaptainTK1/elevenlabs-websocket/internal/twilio"
)

// Conn is the subset of *websocket.Conn the bridge needs from either peer.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// State tracks a session through its lifecycle.
type State string

const (
	StateAuthenticating  State = "authenticating"
	StateConnectingAgent State = "connecting_agent"
	StateActive          State = "active"
	StateClosing         State = "closing"
	StateClosed          State = "closed"
	StateFailed          State = "failed"
)

type peer string

const (
	peerTelephony peer = "telephony"
	peerAgent     peer = "agent"
)

// Config wires one session's collaborators.
type Config struct {
	// SignedURL exchanges credentials for the agent conversation URL.
	SignedURL func(ctx context.Context) (string, error)
	// Dial opens the agent websocket at a signed URL.
	Dial func(ctx context.Context, signedURL string) (Conn, error)
	// Transcoder converts agent audio to telephony mu-law. Nil means the
	// agent already emits ulaw_8000 and payloads pass through verbatim.
	Transcoder audio.Transcoder

	Initiation               elevenlabs.InitiationConfig
	OptimizeStreamingLatency int

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

type rawEvent struct {
	src  peer
	data []byte
	err  error
}

type dialResult struct {
	conn Conn
	err  error
}

// Bridge owns exactly one telephony connection and at most one agent
// connection. All session state is confined to the Run loop's goroutine;
// the two reader goroutines only feed raw frames into the events channel.
type Bridge struct {
	cfg    Config
	logger *slog.Logger

	telephony Conn
	agent     Conn

	streamSid           string
	agentReady          bool
	conversationStarted bool
	startSeen           bool

	telephonyClosed  bool
	agentClosed      bool
	agentStoppedByUs bool

	mu    sync.Mutex
	state State

	events chan rawEvent
	done   chan struct{}
}

// New builds a bridge for one accepted telephony connection.
func New(cfg Config, telephonyConn Conn) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		cfg:       cfg,
		logger:    logger,
		telephony: telephonyConn,
		state:     StateAuthenticating,
		events:    make(chan rawEvent, 32),
		done:      make(chan struct{}),
	}
}

// State reports the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// Run drives the session until both connections are finished. It returns
// a non-nil error only for setup failures (authentication or agent dial);
// peer-initiated closure is a normal outcome.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer close(b.done)

	b.incActive(1)
	defer b.incActive(-1)
	b.countCall("accepted")
	accepted := time.Now()

	// Twilio expects the server's greeting before anything else.
	b.writeTelephony("connected", twilio.ConnectedAck())

	// Start reading the telephony stream right away: media arriving while
	// the agent side is still being set up must be observed and dropped,
	// not left queued.
	go b.readLoop(b.telephony, peerTelephony)

	signedURL, err := b.cfg.SignedURL(ctx)
	if err != nil {
		b.fail("auth_failed", "authenticate agent session", err)
		return err
	}

	b.setState(StateConnectingAgent)
	dialCh := make(chan dialResult, 1)
	go func() {
		conn, err := b.cfg.Dial(ctx, signedURL)
		dialCh <- dialResult{conn: conn, err: err}
	}()

	defer func() {
		// A dial still in flight is cancelled above; reap its result so a
		// late-established connection is not leaked.
		if dialCh != nil {
			select {
			case res := <-dialCh:
				if res.conn != nil {
					_ = res.conn.Close()
				}
			default:
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			b.setState(StateClosing)
			b.closeAgent()
			b.closeTelephony()
			b.setState(StateClosed)
			b.countCall("cancelled")
			return nil

		case res := <-dialCh:
			dialCh = nil
			if res.err != nil {
				b.fail("agent_dial_failed", "open agent websocket", res.err)
				return res.err
			}
			b.agent = res.conn
			b.observeConnect(time.Since(accepted))
			b.writeAgent("initiation", elevenlabs.InitiationMessage(b.cfg.Initiation))
			b.agentReady = true
			b.setState(StateActive)
			go b.readLoop(b.agent, peerAgent)
			// The stream may have started while the agent socket was still
			// opening; deliver the pending conversation-start signal now.
			if b.startSeen && !b.conversationStarted {
				b.writeAgent("user_activity", elevenlabs.UserActivity())
				b.conversationStarted = true
			}

		case ev := <-b.events:
			if ev.err != nil {
				if ev.src == peerAgent && b.agentStoppedByUs {
					// Expected fallout of the deliberate close on a stop
					// event; the telephony side stays up.
					b.agentStoppedByUs = false
					continue
				}
				b.logger.Info("peer connection finished",
					"peer", string(ev.src),
					"cause", ev.err.Error(),
				)
				b.setState(StateClosing)
				b.closeAgent()
				b.closeTelephony()
				b.setState(StateClosed)
				b.countCall("completed")
				return nil
			}

			switch ev.src {
			case peerTelephony:
				b.handleTelephonyMessage(ev.data)
			case peerAgent:
				b.handleAgentMessage(ctx, ev.data)
			}
		}
	}
}

func (b *Bridge) readLoop(c Conn, src peer) {
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			select {
			case b.events <- rawEvent{src: src, err: err}:
			case <-b.done:
			}
			return
		}
		select {
		case b.events <- rawEvent{src: src, data: data}:
		case <-b.done:
			return
		}
	}
}

func (b *Bridge) handleTelephonyMessage(data []byte) {
	ev, err := twilio.ParseEvent(data)
	if err != nil {
		b.logger.Warn("dropping malformed telephony message", "error", err)
		b.countCall("telephony_decode_error")
		return
	}

	switch e := ev.(type) {
	case twilio.Start:
		b.countMessage(peerTelephony, "in", "start")
		if b.streamSid == "" {
			b.streamSid = e.SID()
		}
		b.startSeen = true
		b.writeTelephony("mark", twilio.MarkFor(b.streamSid, uuid.NewString()))
		if b.agentReady && !b.conversationStarted {
			b.writeAgent("user_activity", elevenlabs.UserActivity())
			b.conversationStarted = true
		}

	case twilio.Media:
		b.countMessage(peerTelephony, "in", "media")
		if !b.agentReady {
			// Audio before the agent socket is open is lost by design of
			// the protocol: there is nobody to play it to yet.
			b.countDropped("agent_not_ready")
			return
		}
		b.writeAgent("user_audio_chunk",
			elevenlabs.UserAudioChunk(e.Media.Payload, b.cfg.OptimizeStreamingLatency))

	case twilio.Stop:
		b.countMessage(peerTelephony, "in", "stop")
		if b.agent != nil && !b.agentClosed {
			b.writeAgent("conversation_end", elevenlabs.ConversationEnd())
			b.agentStoppedByUs = true
			b.closeAgent()
		}
		b.agentReady = false
		b.conversationStarted = false

	case twilio.DTMF:
		b.countMessage(peerTelephony, "in", "dtmf")
		b.logger.Debug("caller pressed key", "digit", e.DTMF.Digit)

	case twilio.Connected, twilio.Mark:
		// Echoes and greetings need no reaction.

	case twilio.Unhandled:
		b.logger.Debug("ignoring telephony event", "event", string(e.Event))
	}
}

func (b *Bridge) handleAgentMessage(ctx context.Context, data []byte) {
	ev, err := elevenlabs.ParseEvent(data)
	if err != nil {
		b.logger.Warn("dropping malformed agent message", "error", err)
		b.countCall("agent_decode_error")
		return
	}

	switch e := ev.(type) {
	case elevenlabs.Audio:
		b.countMessage(peerAgent, "in", "audio")
		payload := e.Base64
		if b.cfg.Transcoder != nil {
			raw, err := base64.StdEncoding.DecodeString(e.Base64)
			if err != nil {
				b.logger.Warn("agent audio payload is not base64", "error", err)
				b.countDropped("payload_decode_error")
				return
			}
			out, err := b.cfg.Transcoder.Transcode(ctx, raw)
			if err != nil {
				// Dropping the chunk beats playing corrupt audio into a
				// live call.
				b.logger.Error("transcode failed, dropping chunk",
					"bytes", len(raw),
					"error", err,
				)
				b.countDropped("transcode_error")
				return
			}
			payload = base64.StdEncoding.EncodeToString(out)
		}
		b.writeTelephony("media", twilio.MediaFor(b.streamSid, payload))

	case elevenlabs.Ping:
		b.writeAgent("pong", elevenlabs.Pong(e.EventID))

	case elevenlabs.Interruption:
		b.countMessage(peerAgent, "in", "interruption")
		b.writeTelephony("clear", twilio.ClearFor(b.streamSid))

	case elevenlabs.ErrorEvent:
		// The agent platform may recover or close on its own; an error
		// report alone does not end the session.
		b.logger.Error("agent platform error",
			"code", e.Code,
			"message", e.Message,
		)
		b.countCall("agent_error")

	case elevenlabs.InitiationMetadata:
		b.logger.Info("conversation initiated",
			"conversation_id", e.ConversationID,
			"agent_output_format", e.AgentOutputAudioFormat,
		)

	case elevenlabs.AgentResponse:
		b.logger.Debug("agent response", "text", e.Text)

	case elevenlabs.UserTranscript:
		b.logger.Debug("caller transcript", "text", e.Text)

	case elevenlabs.Unhandled:
		b.logger.Debug("ignoring agent event", "type", e.Type)
	}
}

func (b *Bridge) writeTelephony(msgType string, msg any) {
	if b.telephonyClosed {
		return
	}
	b.send(b.telephony, peerTelephony, msgType, msg)
}

func (b *Bridge) writeAgent(msgType string, msg any) {
	if b.agent == nil || b.agentClosed {
		return
	}
	b.send(b.agent, peerAgent, msgType, msg)
}

func (b *Bridge) send(c Conn, p peer, msgType string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("marshal outbound message", "peer", string(p), "type", msgType, "error", err)
		return
	}
	if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
		// The reader will surface the closure; a failed write only costs
		// this one message.
		b.logger.Warn("write failed", "peer", string(p), "type", msgType, "error", err)
		return
	}
	b.countMessage(p, "out", msgType)
}

func (b *Bridge) fail(event, action string, err error) {
	b.setState(StateFailed)
	b.logger.Error("session failed", "action", action, "error", err)
	b.countCall(event)
	b.closeAgent()
	b.closeTelephony()
}

func (b *Bridge) closeAgent() {
	if b.agent == nil || b.agentClosed {
		return
	}
	b.agentClosed = true
	b.agentReady = false
	_ = b.agent.Close()
}

func (b *Bridge) closeTelephony() {
	if b.telephonyClosed {
		return
	}
	b.telephonyClosed = true
	_ = b.telephony.Close()
}

func (b *Bridge) incActive(delta float64) {
	if b.cfg.Metrics != nil {
		b.cfg.Metrics.ActiveCalls.Add(delta)
	}
}

func (b *Bridge) countCall(event string) {
	if b.cfg.Metrics != nil {
		b.cfg.Metrics.CallEvents.WithLabelValues(event).Inc()
	}
}

func (b *Bridge) countMessage(p peer, direction, msgType string) {
	if b.cfg.Metrics != nil {
		b.cfg.Metrics.Messages.WithLabelValues(string(p), direction, msgType).Inc()
	}
}

func (b *Bridge) countDropped(reason string) {
	if b.cfg.Metrics != nil {
		b.cfg.Metrics.DroppedAudio.WithLabelValues(reason).Inc()
	}
}

func (b *Bridge) observeConnect(d time.Duration) {
	if b.cfg.Metrics != nil {
		b.cfg.Metrics.ObserveConnectLatency(d)
	}
}

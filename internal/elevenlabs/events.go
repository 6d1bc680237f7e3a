// Package elevenlabs speaks the ElevenLabs Conversational AI websocket
// protocol: decoding agent events and building the client messages the
// bridge sends upstream.
package elevenlabs

import (
	"encoding/json"
	"fmt"
)

type incoming struct {
	Type string `json:"type"`

	// Flat fields used by some agent event revisions.
	Audio   string `json:"audio,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	AudioEvent         *audioEvent         `json:"audio_event,omitempty"`
	PingEvent          *pingEvent          `json:"ping_event,omitempty"`
	AgentResponse      *agentResponseEvent `json:"agent_response_event,omitempty"`
	UserTranscript     *userTranscriptEvent `json:"user_transcription_event,omitempty"`
	InitiationMetadata *initiationMetadata `json:"conversation_initiation_metadata_event,omitempty"`
}

type audioEvent struct {
	EventID     int    `json:"event_id"`
	AudioBase64 string `json:"audio_base_64"`
}

type pingEvent struct {
	EventID int `json:"event_id"`
	PingMs  int `json:"ping_ms,omitempty"`
}

type agentResponseEvent struct {
	AgentResponse string `json:"agent_response"`
}

type userTranscriptEvent struct {
	UserTranscript string `json:"user_transcript"`
}

type initiationMetadata struct {
	ConversationID         string `json:"conversation_id"`
	AgentOutputAudioFormat string `json:"agent_output_audio_format"`
}

// Audio is one base64 chunk of synthesized agent speech.
type Audio struct {
	EventID int
	Base64  string
}

// Ping must be answered with a pong echoing the event id, or the agent
// side eventually drops the conversation.
type Ping struct {
	EventID int
}

// AgentResponse is the agent's reply transcript.
type AgentResponse struct {
	Text string
}

// UserTranscript is the recognized caller speech.
type UserTranscript struct {
	Text string
}

// Interruption reports that the caller barged in over agent speech.
type Interruption struct{}

// ErrorEvent is a non-fatal error report from the agent platform.
type ErrorEvent struct {
	Code    string
	Message string
}

// InitiationMetadata acknowledges the conversation configuration.
type InitiationMetadata struct {
	ConversationID         string
	AgentOutputAudioFormat string
}

// Unhandled covers agent event types this bridge does not act on.
type Unhandled struct {
	Type string
}

// ParseEvent decodes one raw agent message. Invalid JSON is an error for
// the caller to log and discard; unknown types decode to Unhandled.
func ParseEvent(raw []byte) (any, error) {
	var msg incoming
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid agent message: %w", err)
	}

	switch msg.Type {
	case "audio":
		// Nested audio_event is the documented shape; the flat "audio"
		// field shows up in older agent revisions.
		if msg.AudioEvent != nil {
			return Audio{EventID: msg.AudioEvent.EventID, Base64: msg.AudioEvent.AudioBase64}, nil
		}
		return Audio{Base64: msg.Audio}, nil
	case "ping":
		var id int
		if msg.PingEvent != nil {
			id = msg.PingEvent.EventID
		}
		return Ping{EventID: id}, nil
	case "agent_response":
		var text string
		if msg.AgentResponse != nil {
			text = msg.AgentResponse.AgentResponse
		}
		return AgentResponse{Text: text}, nil
	case "user_transcript":
		var text string
		if msg.UserTranscript != nil {
			text = msg.UserTranscript.UserTranscript
		}
		return UserTranscript{Text: text}, nil
	case "interruption":
		return Interruption{}, nil
	case "error":
		return ErrorEvent{Code: msg.Code, Message: msg.Message}, nil
	case "conversation_initiation_metadata":
		meta := InitiationMetadata{}
		if msg.InitiationMetadata != nil {
			meta.ConversationID = msg.InitiationMetadata.ConversationID
			meta.AgentOutputAudioFormat = msg.InitiationMetadata.AgentOutputAudioFormat
		}
		return meta, nil
	default:
		return Unhandled{Type: msg.Type}, nil
	}
}

// InitiationConfig carries the per-call agent overrides sent with the
// conversation initiation message.
type InitiationConfig struct {
	Prompt       string
	FirstMessage string
}

type initiationMessage struct {
	Type                       string          `json:"type"`
	ConversationConfigOverride *configOverride `json:"conversation_config_override,omitempty"`
}

type configOverride struct {
	Agent *agentOverride `json:"agent,omitempty"`
}

type agentOverride struct {
	Prompt       *promptOverride `json:"prompt,omitempty"`
	FirstMessage string          `json:"first_message,omitempty"`
}

type promptOverride struct {
	Prompt string `json:"prompt"`
}

// InitiationMessage builds the conversation_initiation_client_data message
// sent once, immediately after the websocket opens.
func InitiationMessage(cfg InitiationConfig) any {
	msg := initiationMessage{Type: "conversation_initiation_client_data"}
	if cfg.Prompt == "" && cfg.FirstMessage == "" {
		return msg
	}
	agent := &agentOverride{FirstMessage: cfg.FirstMessage}
	if cfg.Prompt != "" {
		agent.Prompt = &promptOverride{Prompt: cfg.Prompt}
	}
	msg.ConversationConfigOverride = &configOverride{Agent: agent}
	return msg
}

type userAudioChunk struct {
	UserAudioChunk           string `json:"user_audio_chunk"`
	OptimizeStreamingLatency int    `json:"optimize_streaming_latency,omitempty"`
}

// UserAudioChunk wraps caller audio for the agent.
func UserAudioChunk(payloadBase64 string, optimizeStreamingLatency int) any {
	return userAudioChunk{
		UserAudioChunk:           payloadBase64,
		OptimizeStreamingLatency: optimizeStreamingLatency,
	}
}

type typedMessage struct {
	Type string `json:"type"`
}

type pongMessage struct {
	Type    string `json:"type"`
	EventID int    `json:"event_id"`
}

// Pong answers a ping, echoing its event id.
func Pong(eventID int) any {
	return pongMessage{Type: "pong", EventID: eventID}
}

// UserActivity signals that the caller's stream has started. Sent at most
// once per session, on the first telephony start event.
func UserActivity() any {
	return typedMessage{Type: "user_activity"}
}

// ConversationEnd is the end-of-conversation signal sent before closing
// the agent connection on a telephony stop.
func ConversationEnd() any {
	return typedMessage{Type: "conversation_end"}
}

// Package twilio parses and serializes the Twilio media-stream websocket
// protocol: the inbound event stream for one phone call and the outbound
// messages the bridge is allowed to send back.
package twilio

import (
	"encoding/json"
	"fmt"
)

// EventType identifies media-stream payload variants.
type EventType string

const (
	TypeConnected EventType = "connected"
	TypeStart     EventType = "start"
	TypeMedia     EventType = "media"
	TypeMark      EventType = "mark"
	TypeStop      EventType = "stop"
	TypeDTMF      EventType = "dtmf"
	TypeClear     EventType = "clear"
)

type envelope struct {
	Event EventType `json:"event"`
}

// Start announces a new media stream and carries its identifier.
// Twilio nests stream metadata under "start"; some gateways flatten it.
type Start struct {
	Event     EventType  `json:"event"`
	StreamSid string     `json:"streamSid"`
	Start     StartBlock `json:"start"`
}

type StartBlock struct {
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters"`
}

// SID returns the stream identifier, whichever nesting carried it.
func (s Start) SID() string {
	if s.StreamSid != "" {
		return s.StreamSid
	}
	return s.Start.StreamSid
}

// Media carries one base64 chunk of caller audio.
type Media struct {
	Event     EventType  `json:"event"`
	StreamSid string     `json:"streamSid"`
	Media     MediaBlock `json:"media"`
}

type MediaBlock struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// Stop signals the end of the media stream.
type Stop struct {
	Event     EventType `json:"event"`
	StreamSid string    `json:"streamSid"`
}

// Mark is echoed back by Twilio once buffered audio up to a named
// checkpoint has been played into the call.
type Mark struct {
	Event     EventType `json:"event"`
	StreamSid string    `json:"streamSid"`
	Mark      MarkBlock `json:"mark"`
}

type MarkBlock struct {
	Name string `json:"name"`
}

// DTMF reports a keypad press on the call.
type DTMF struct {
	Event     EventType `json:"event"`
	StreamSid string    `json:"streamSid"`
	DTMF      DTMFBlock `json:"dtmf"`
}

type DTMFBlock struct {
	Track string `json:"track,omitempty"`
	Digit string `json:"digit"`
}

// Connected is Twilio's greeting after the websocket upgrade. The same
// shape is sent by the bridge as its own acknowledgment.
type Connected struct {
	Event    EventType `json:"event"`
	Protocol string    `json:"protocol,omitempty"`
	Version  string    `json:"version,omitempty"`
}

// Unhandled is returned for event types this bridge does not know about,
// so that new protocol additions pass through without killing the call.
type Unhandled struct {
	Event EventType
}

// ParseEvent decodes a raw media-stream message into one of the typed
// events above. Structurally invalid JSON is an error for the caller to
// log and discard; unknown event names decode to Unhandled.
func ParseEvent(raw []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid media-stream envelope: %w", err)
	}

	switch env.Event {
	case TypeConnected:
		var msg Connected
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeStart:
		var msg Start
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeMedia:
		var msg Media
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeMark:
		var msg Mark
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeStop:
		var msg Stop
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeDTMF:
		var msg DTMF
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return Unhandled{Event: env.Event}, nil
	}
}

// Outbound message constructors. StreamSid may be empty when audio arrives
// from the agent before Twilio's start event; Twilio tolerates that.

func ConnectedAck() Connected {
	return Connected{Event: TypeConnected}
}

func MarkFor(streamSid, name string) Mark {
	return Mark{Event: TypeMark, StreamSid: streamSid, Mark: MarkBlock{Name: name}}
}

func MediaFor(streamSid, payloadBase64 string) Media {
	return Media{Event: TypeMedia, StreamSid: streamSid, Media: MediaBlock{Payload: payloadBase64}}
}

// Clear tells Twilio to flush audio it has buffered but not yet played.
// Sent when the caller interrupts the agent mid-utterance.
type ClearMessage struct {
	Event     EventType `json:"event"`
	StreamSid string    `json:"streamSid"`
}

func ClearFor(streamSid string) ClearMessage {
	return ClearMessage{Event: TypeClear, StreamSid: streamSid}
}

package elevenlabs

import (
	"encoding/json"
	"testing"
)

func TestParseEventAudioNested(t *testing.T) {
	raw := []byte(`{"type":"audio","audio_event":{"event_id":7,"audio_base_64":"XYZ="}}`)
	msg, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}
	audio, ok := msg.(Audio)
	if !ok {
		t.Fatalf("event type = %T, want Audio", msg)
	}
	if audio.Base64 != "XYZ=" || audio.EventID != 7 {
		t.Fatalf("unexpected audio event: %+v", audio)
	}
}

func TestParseEventAudioFlat(t *testing.T) {
	msg, err := ParseEvent([]byte(`{"type":"audio","audio":"QUJD"}`))
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}
	audio, ok := msg.(Audio)
	if !ok {
		t.Fatalf("event type = %T, want Audio", msg)
	}
	if audio.Base64 != "QUJD" {
		t.Fatalf("Base64 = %q, want %q", audio.Base64, "QUJD")
	}
}

func TestParseEventPing(t *testing.T) {
	msg, err := ParseEvent([]byte(`{"type":"ping","ping_event":{"event_id":42,"ping_ms":20}}`))
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}
	ping, ok := msg.(Ping)
	if !ok {
		t.Fatalf("event type = %T, want Ping", msg)
	}
	if ping.EventID != 42 {
		t.Fatalf("EventID = %d, want 42", ping.EventID)
	}
}

func TestParseEventErrorAndMetadata(t *testing.T) {
	msg, err := ParseEvent([]byte(`{"type":"error","code":"rate_limited","message":"slow down"}`))
	if err != nil {
		t.Fatalf("ParseEvent(error) error = %v", err)
	}
	errEvent, ok := msg.(ErrorEvent)
	if !ok {
		t.Fatalf("event type = %T, want ErrorEvent", msg)
	}
	if errEvent.Code != "rate_limited" || errEvent.Message != "slow down" {
		t.Fatalf("unexpected error event: %+v", errEvent)
	}

	msg, err = ParseEvent([]byte(`{"type":"conversation_initiation_metadata","conversation_initiation_metadata_event":{"conversation_id":"conv1","agent_output_audio_format":"ulaw_8000"}}`))
	if err != nil {
		t.Fatalf("ParseEvent(metadata) error = %v", err)
	}
	meta, ok := msg.(InitiationMetadata)
	if !ok {
		t.Fatalf("event type = %T, want InitiationMetadata", msg)
	}
	if meta.ConversationID != "conv1" || meta.AgentOutputAudioFormat != "ulaw_8000" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestParseEventUnknownTypeIsUnhandled(t *testing.T) {
	msg, err := ParseEvent([]byte(`{"type":"internal_tentative_agent_response"}`))
	if err != nil {
		t.Fatalf("ParseEvent() error = %v, unknown types must not fail", err)
	}
	u, ok := msg.(Unhandled)
	if !ok {
		t.Fatalf("event type = %T, want Unhandled", msg)
	}
	if u.Type != "internal_tentative_agent_response" {
		t.Fatalf("Type = %q", u.Type)
	}
}

func TestParseEventMalformedJSON(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"type":`)); err == nil {
		t.Fatalf("ParseEvent() with truncated JSON succeeded, want error")
	}
}

func TestInitiationMessageShapes(t *testing.T) {
	b, err := json.Marshal(InitiationMessage(InitiationConfig{}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"type":"conversation_initiation_client_data"}` {
		t.Fatalf("bare initiation = %s", b)
	}

	b, err = json.Marshal(InitiationMessage(InitiationConfig{Prompt: "be brief", FirstMessage: "hello"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"conversation_initiation_client_data","conversation_config_override":{"agent":{"prompt":{"prompt":"be brief"},"first_message":"hello"}}}`
	if string(b) != want {
		t.Fatalf("initiation = %s, want %s", b, want)
	}
}

func TestUserAudioChunkShape(t *testing.T) {
	b, err := json.Marshal(UserAudioChunk("AAA=", 3))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"user_audio_chunk":"AAA=","optimize_streaming_latency":3}`
	if string(b) != want {
		t.Fatalf("user audio chunk = %s, want %s", b, want)
	}
}

func TestControlMessageShapes(t *testing.T) {
	b, _ := json.Marshal(Pong(42))
	if string(b) != `{"type":"pong","event_id":42}` {
		t.Fatalf("pong = %s", b)
	}
	b, _ = json.Marshal(UserActivity())
	if string(b) != `{"type":"user_activity"}` {
		t.Fatalf("user activity = %s", b)
	}
	b, _ = json.Marshal(ConversationEnd())
	if string(b) != `{"type":"conversation_end"}` {
		t.Fatalf("conversation end = %s", b)
	}
}

package chat

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"event":"send_message","data":{"to_email":"b@x.com","message":"hi"}}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	if env.Name != EventSendMessage {
		t.Fatalf("unexpected event name: %q", env.Name)
	}

	p, err := DecodeSendMessage(env.Data)
	if err != nil {
		t.Fatalf("DecodeSendMessage failed: %v", err)
	}
	if p.ToEmail != "b@x.com" || p.Message != "hi" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"data":{}}`),
		[]byte(`{"event":""}`),
	}
	for _, raw := range cases {
		if _, err := DecodeEnvelope(raw); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestDecodeSendMessage_RequiredFields(t *testing.T) {
	if _, err := DecodeSendMessage(json.RawMessage(`{"to_email":"b@x.com"}`)); err == nil {
		t.Fatal("expected error for missing message body")
	}
	if _, err := DecodeSendMessage(json.RawMessage(`{"message":"hi"}`)); err == nil {
		t.Fatal("expected error for missing recipient")
	}
	if _, err := DecodeSendMessage(json.RawMessage(`[1,2]`)); err == nil {
		t.Fatal("expected error for wrong payload shape")
	}
}

func TestDecodeConversationRef(t *testing.T) {
	p, err := DecodeConversationRef(json.RawMessage(`{"conversation_id":"c1"}`))
	if err != nil {
		t.Fatalf("DecodeConversationRef failed: %v", err)
	}
	if p.ConversationID != "c1" {
		t.Fatalf("unexpected id: %q", p.ConversationID)
	}

	if _, err := DecodeConversationRef(json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for missing conversation id")
	}
}

func TestEventMarshalShape(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ev := Event{Name: EventNewMessage, Data: MessageView{
		ID:             "m1",
		ConversationID: "c1",
		SenderEmail:    "a@x.com",
		SenderName:     "Alice",
		Body:           "hi",
		Timestamp:      ts,
		Kind:           "text",
	}}

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["event"] != EventNewMessage {
		t.Fatalf("unexpected envelope: %v", decoded)
	}
	payload := decoded["data"].(map[string]any)
	if payload["message"] != "hi" || payload["sender_email"] != "a@x.com" {
		t.Fatalf("unexpected payload keys: %v", payload)
	}
	if payload["timestamp"] != "2024-05-01T12:00:00Z" {
		t.Fatalf("timestamp not RFC3339 UTC: %v", payload["timestamp"])
	}
}

package revolt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDecodeEvent_Message(t *testing.T) {
	raw := `{"type":"Message","_id":"m1","channel":"c1","author":"u1","content":"hi <@bot>",
		"attachments":[{"_id":"a1","filename":"cat.png","content_type":"image/png","metadata":{"type":"Image"}}],
		"replies":["r1"]}`
	evt, err := DecodeEvent([]byte(raw))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	msg, ok := evt.(*MessageEvent)
	if !ok {
		t.Fatalf("Expected *MessageEvent, got %T", evt)
	}
	if msg.ID != "m1" || msg.Channel != "c1" || msg.Author != "u1" || msg.Content != "hi <@bot>" {
		t.Errorf("Unexpected message fields %+v", msg.Message)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].ContentType != "image/png" {
		t.Errorf("Unexpected attachments %+v", msg.Attachments)
	}
	if len(msg.Replies) != 1 || msg.Replies[0] != "r1" {
		t.Errorf("Unexpected replies %v", msg.Replies)
	}
	if evt.Type() != EventMessage {
		t.Errorf("Unexpected type %q", evt.Type())
	}
}

func TestDecodeEvent_React(t *testing.T) {
	evt, err := DecodeEvent([]byte(`{"type":"MessageReact","id":"m1","channel_id":"c1","user_id":"u1","emoji_id":"🐱"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	react, ok := evt.(*ReactEvent)
	if !ok {
		t.Fatalf("Expected *ReactEvent, got %T", evt)
	}
	if react.MessageID != "m1" || react.ChannelID != "c1" || react.UserID != "u1" || react.Emoji != "🐱" {
		t.Errorf("Unexpected react fields %+v", react)
	}
}

func TestDecodeEvent_PingKeepsRawPayload(t *testing.T) {
	evt, err := DecodeEvent([]byte(`{"type":"Ping","data":1712345678901}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	ping, ok := evt.(*PingEvent)
	if !ok {
		t.Fatalf("Expected *PingEvent, got %T", evt)
	}
	pong, _ := json.Marshal(NewPongFrame(ping.Data))
	if string(pong) != `{"type":"Pong","data":1712345678901}` {
		t.Errorf("Unexpected pong frame %s", pong)
	}
}

func TestDecodeEvent_SimpleTypes(t *testing.T) {
	cases := map[string]EventType{
		`{"type":"Ready","users":[]}`:          EventReady,
		`{"type":"Authenticated"}`:             EventAuthenticated,
		`{"type":"Pong","data":1}`:             EventPong,
		`{"type":"Error","error":"NotFound"}`:  EventError,
		`{"type":"ChannelStartTyping","id":1}`: "ChannelStartTyping",
	}
	for raw, want := range cases {
		evt, err := DecodeEvent([]byte(raw))
		if err != nil {
			t.Errorf("Unexpected error for %s: %v", raw, err)
			continue
		}
		if evt.Type() != want {
			t.Errorf("Expected %q for %s, got %q", want, raw, evt.Type())
		}
	}
}

func TestDecodeEvent_Unknown(t *testing.T) {
	evt, err := DecodeEvent([]byte(`{"type":"UserUpdate"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := evt.(*UnknownEvent); !ok {
		t.Errorf("Expected *UnknownEvent, got %T", evt)
	}
}

func TestDecodeEvent_Malformed(t *testing.T) {
	for _, raw := range []string{`not json`, `{}`, `{"type":"Message","content":5}`} {
		if _, err := DecodeEvent([]byte(raw)); !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("Expected ErrMalformedFrame for %s, got %v", raw, err)
		}
	}
}

func TestFrames_Encode(t *testing.T) {
	auth, _ := json.Marshal(NewAuthenticateFrame("tok"))
	if string(auth) != `{"type":"Authenticate","token":"tok"}` {
		t.Errorf("Unexpected authenticate frame %s", auth)
	}
	ping, _ := json.Marshal(NewPingFrame(time.UnixMilli(42)))
	if string(ping) != `{"type":"Ping","data":42}` {
		t.Errorf("Unexpected ping frame %s", ping)
	}
	pong, _ := json.Marshal(NewPongFrame(nil))
	if string(pong) != `{"type":"Pong","data":0}` {
		t.Errorf("Unexpected empty pong frame %s", pong)
	}
}

func TestUser_Tag(t *testing.T) {
	if tag := (&User{Username: "alice"}).Tag(); tag != "alice#0000" {
		t.Errorf("Expected default discriminator, got %q", tag)
	}
	if tag := (&User{Username: "bob", Discriminator: "1234"}).Tag(); tag != "bob#1234" {
		t.Errorf("Unexpected tag %q", tag)
	}
	if tag := (&User{}).Tag(); tag != "" {
		t.Errorf("Expected empty tag without username, got %q", tag)
	}
}

package revolt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// EventType is the discriminant of a realtime frame.
type EventType string

const (
	EventAuthenticate  EventType = "Authenticate"
	EventAuthenticated EventType = "Authenticated"
	EventReady         EventType = "Ready"
	EventPing          EventType = "Ping"
	EventPong          EventType = "Pong"
	EventMessage       EventType = "Message"
	EventMessageReact  EventType = "MessageReact"
	EventError         EventType = "Error"
)

// ErrMalformedFrame is returned by DecodeEvent for frames that are not valid JSON objects with a type.
var ErrMalformedFrame = errors.New("malformed realtime frame")

// Event is a decoded inbound realtime frame. The concrete type is one of
// *ReadyEvent, *PingEvent, *PongEvent, *MessageEvent, *ReactEvent,
// *ErrorEvent, *AuthenticatedEvent or *UnknownEvent.
type Event interface {
	Type() EventType
}

type AuthenticatedEvent struct{}

type ReadyEvent struct{}

// PingEvent is a liveness probe from the server. Data must be echoed back in a pong.
type PingEvent struct {
	Data json.RawMessage `json:"data"`
}

// PongEvent answers one of our pings.
type PongEvent struct {
	Data json.RawMessage `json:"data"`
}

// MessageEvent announces a newly created message.
type MessageEvent struct {
	Message
}

// ReactEvent announces a reaction added to a message.
type ReactEvent struct {
	MessageID string `json:"id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji_id"`
}

// ErrorEvent is sent by the server before it drops the connection, e.g. for an invalid token.
type ErrorEvent struct {
	Error string `json:"error"`
}

// UnknownEvent is any frame type the bridge does not handle.
type UnknownEvent struct {
	RawType EventType
}

func (*AuthenticatedEvent) Type() EventType { return EventAuthenticated }
func (*ReadyEvent) Type() EventType         { return EventReady }
func (*PingEvent) Type() EventType          { return EventPing }
func (*PongEvent) Type() EventType          { return EventPong }
func (*MessageEvent) Type() EventType       { return EventMessage }
func (*ReactEvent) Type() EventType         { return EventMessageReact }
func (*ErrorEvent) Type() EventType         { return EventError }
func (e *UnknownEvent) Type() EventType     { return e.RawType }

// DecodeEvent parses one realtime frame into its typed event.
func DecodeEvent(data []byte) (Event, error) {
	var envelope struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if envelope.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	var evt Event
	switch envelope.Type {
	case EventAuthenticated:
		return &AuthenticatedEvent{}, nil
	case EventReady:
		return &ReadyEvent{}, nil
	case EventPing:
		evt = &PingEvent{}
	case EventPong:
		evt = &PongEvent{}
	case EventMessage:
		evt = &MessageEvent{}
	case EventMessageReact:
		evt = &ReactEvent{}
	case EventError:
		evt = &ErrorEvent{}
	default:
		return &UnknownEvent{RawType: envelope.Type}, nil
	}
	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrMalformedFrame, envelope.Type, err)
	}
	return evt, nil
}

// AuthenticateFrame is sent immediately after the stream opens.
type AuthenticateFrame struct {
	Type  EventType `json:"type"`
	Token string    `json:"token"`
}

// PingFrame is our liveness probe.
type PingFrame struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// PongFrame answers a server ping.
type PongFrame struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewAuthenticateFrame builds the authentication frame.
func NewAuthenticateFrame(token string) AuthenticateFrame {
	return AuthenticateFrame{Type: EventAuthenticate, Token: token}
}

// NewPingFrame builds a ping carrying the current time in unix milliseconds.
func NewPingFrame(now time.Time) PingFrame {
	return PingFrame{Type: EventPing, Data: json.RawMessage(strconv.FormatInt(now.UnixMilli(), 10))}
}

// NewPongFrame builds a pong echoing the payload of a ping.
func NewPongFrame(data json.RawMessage) PongFrame {
	if len(data) == 0 {
		data = json.RawMessage("0")
	}
	return PongFrame{Type: EventPong, Data: data}
}

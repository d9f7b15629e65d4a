package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a decoded packet. Engine.IO control packets and the
// Socket.IO packets carried inside Engine.IO "message" frames share one space.
type Kind int

const (
	KindOpen Kind = iota
	KindClose
	KindPing
	KindPong
	KindNoop
	KindConnect
	KindDisconnect
	KindEvent
	KindAck
	KindConnectError
)

func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindClose:
		return "close"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindNoop:
		return "noop"
	case KindConnect:
		return "connect"
	case KindDisconnect:
		return "disconnect"
	case KindEvent:
		return "event"
	case KindAck:
		return "ack"
	case KindConnectError:
		return "connect_error"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Packet is one text frame on the websocket.
// ID is -1 when the packet carries no ack id.
type Packet struct {
	Kind      Kind
	Namespace string
	ID        int64
	Data      json.RawMessage
}

// ErrEmptyPacket is returned for a zero-length frame.
var ErrEmptyPacket = errors.New("socketio: empty packet")

var engineKinds = map[byte]Kind{'0': KindOpen, '1': KindClose, '2': KindPing, '3': KindPong, '6': KindNoop}

var socketKinds = map[byte]Kind{'0': KindConnect, '1': KindDisconnect, '2': KindEvent, '3': KindAck, '4': KindConnectError}

var socketCodes = map[Kind]byte{KindConnect: '0', KindDisconnect: '1', KindEvent: '2', KindAck: '3', KindConnectError: '4'}

// DecodePacket parses a text frame. Binary events are not supported.
func DecodePacket(frame string) (Packet, error) {
	p := Packet{Namespace: "/", ID: -1}
	if frame == "" {
		return p, ErrEmptyPacket
	}
	if frame[0] != '4' {
		k, ok := engineKinds[frame[0]]
		if !ok {
			return p, fmt.Errorf("socketio: unknown engine packet type %q", frame[0])
		}
		p.Kind = k
		if len(frame) > 1 {
			p.Data = json.RawMessage(frame[1:])
		}
		return p, nil
	}
	rest := frame[1:]
	if rest == "" {
		return p, fmt.Errorf("socketio: message frame without socket packet")
	}
	k, ok := socketKinds[rest[0]]
	if !ok {
		return p, fmt.Errorf("socketio: unsupported socket packet type %q", rest[0])
	}
	p.Kind = k
	rest = rest[1:]

	if strings.HasPrefix(rest, "/") {
		end := strings.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = rest
			return p, nil
		}
		p.Namespace = rest[:end]
		rest = rest[end+1:]
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.ParseInt(rest[:digits], 10, 64)
		if err != nil {
			return p, fmt.Errorf("socketio: bad ack id: %w", err)
		}
		p.ID = id
		rest = rest[digits:]
	}
	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return p, fmt.Errorf("socketio: invalid %s payload", p.Kind)
		}
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// EncodePacket renders p as a text frame.
func EncodePacket(p Packet) string {
	var b strings.Builder
	switch p.Kind {
	case KindOpen:
		b.WriteByte('0')
	case KindClose:
		b.WriteByte('1')
	case KindPing:
		b.WriteByte('2')
	case KindPong:
		b.WriteByte('3')
	case KindNoop:
		b.WriteByte('6')
	default:
		b.WriteByte('4')
		b.WriteByte(socketCodes[p.Kind])
		if p.Namespace != "" && p.Namespace != "/" {
			b.WriteString(p.Namespace)
			b.WriteByte(',')
		}
		if p.ID >= 0 && (p.Kind == KindEvent || p.Kind == KindAck) {
			b.WriteString(strconv.FormatInt(p.ID, 10))
		}
	}
	b.Write(p.Data)
	return b.String()
}

// Event is a decoded "42" packet: the event name and its first argument.
type Event struct {
	Name string
	Data json.RawMessage
}

// DecodeEvent splits an event payload ["name", arg, ...].
// Extra arguments are ignored; a missing argument yields nil Data.
func DecodeEvent(data json.RawMessage) (Event, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return Event{}, fmt.Errorf("socketio: event payload is not an array: %w", err)
	}
	if len(parts) == 0 {
		return Event{}, errors.New("socketio: event payload has no name")
	}
	var ev Event
	if err := json.Unmarshal(parts[0], &ev.Name); err != nil {
		return Event{}, fmt.Errorf("socketio: event name: %w", err)
	}
	if len(parts) > 1 {
		ev.Data = parts[1]
	}
	return ev, nil
}

// EncodeEvent builds the payload for an event packet.
func EncodeEvent(name string, arg any) (json.RawMessage, error) {
	b, err := json.Marshal([]any{name, arg})
	if err != nil {
		return nil, fmt.Errorf("socketio: encode event %s: %w", name, err)
	}
	return b, nil
}

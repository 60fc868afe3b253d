// Package protocol implements the wire framing exchanged with realtime
// clients: engine.io style byte-prefixed control packets plus socket.io
// style event packets carrying a JSON `["event", payload]` array.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// PacketType is the engine.io level packet type, encoded as a single
// leading ASCII digit.
type PacketType byte

const (
	PacketTypeOpen PacketType = iota
	PacketTypeClose
	PacketTypePing
	PacketTypePong
	PacketTypeMessage
	PacketTypeUpgrade
	PacketTypeNoop
)

// MessageType is the socket.io sub-type carried as a second digit on
// MESSAGE packets.
type MessageType byte

const (
	MessageTypeConnect MessageType = iota
	MessageTypeDisconnect
	MessageTypeEvent
	MessageTypeAck
	MessageTypeConnectError
)

// Packet is one engine.io frame: a type tag plus an opaque body.
type Packet struct {
	Type PacketType
	Data []byte
}

// Encode renders the packet as wire bytes.
func (p *Packet) Encode() []byte {
	out := make([]byte, 0, len(p.Data)+1)
	out = append(out, byte('0'+p.Type))
	out = append(out, p.Data...)
	return out
}

// Decode parses wire bytes into a packet. The body is aliased, not copied.
func Decode(data []byte) (*Packet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty packet")
	}
	if data[0] < '0' || data[0] > '6' {
		return nil, fmt.Errorf("invalid packet type: %c", data[0])
	}

	p := &Packet{Type: PacketType(data[0] - '0')}
	if len(data) > 1 {
		p.Data = data[1:]
	}
	return p, nil
}

// IsType reports whether the raw frame carries the given engine.io type.
func IsType(data []byte, t PacketType) bool {
	return len(data) > 0 && data[0] == byte('0'+t)
}

// EncodeEvent renders an outbound event push as a MESSAGE/EVENT packet:
// 42["event",<json payload>].
func EncodeEvent(event string, data interface{}) ([]byte, error) {
	body, err := json.Marshal([]interface{}{event, data})
	if err != nil {
		return nil, fmt.Errorf("encode event %q: %w", event, err)
	}

	out := make([]byte, 0, len(body)+2)
	out = append(out, byte('0'+PacketTypeMessage), byte('0'+MessageTypeEvent))
	out = append(out, body...)
	return out, nil
}

// DecodeEvent extracts the event name and payload from a MESSAGE/EVENT
// frame. ok is false for anything else, including malformed JSON; the
// caller treats that as a no-op dispatch rather than an error.
func DecodeEvent(data []byte) (event string, payload interface{}, ok bool) {
	if len(data) < 2 ||
		data[0] != byte('0'+PacketTypeMessage) ||
		data[1] != byte('0'+MessageTypeEvent) {
		return "", nil, false
	}

	var args []interface{}
	if err := json.Unmarshal(data[2:], &args); err != nil || len(args) == 0 {
		return "", nil, false
	}

	event, isString := args[0].(string)
	if !isString || event == "" {
		return "", nil, false
	}
	if len(args) > 1 {
		payload = args[1]
	}
	return event, payload, true
}

// Handshake is the body of the OPEN packet sent when a connection is
// established without a prior session id.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
}

// EncodeOpen renders the OPEN control packet carrying handshake parameters.
func EncodeOpen(h Handshake) ([]byte, error) {
	if h.Upgrades == nil {
		h.Upgrades = []string{}
	}
	body, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	p := &Packet{Type: PacketTypeOpen, Data: body}
	return p.Encode(), nil
}

// ConnectAck is the MESSAGE/CONNECT packet acknowledging a completed
// handshake ("40").
func ConnectAck() []byte {
	return []byte{byte('0' + PacketTypeMessage), byte('0' + MessageTypeConnect)}
}

// String returns the packet type name, mostly for logging.
func (pt PacketType) String() string {
	switch pt {
	case PacketTypeOpen:
		return "open"
	case PacketTypeClose:
		return "close"
	case PacketTypePing:
		return "ping"
	case PacketTypePong:
		return "pong"
	case PacketTypeMessage:
		return "message"
	case PacketTypeUpgrade:
		return "upgrade"
	case PacketTypeNoop:
		return "noop"
	default:
		return "unknown(" + strconv.Itoa(int(pt)) + ")"
	}
}

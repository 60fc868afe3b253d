package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEvent(t *testing.T) {
	out, err := EncodeEvent("chat", "hello")
	require.NoError(t, err)
	assert.Equal(t, `42["chat","hello"]`, string(out))

	out, err = EncodeEvent("update", map[string]interface{}{"id": 7})
	require.NoError(t, err)
	assert.Equal(t, `42["update",{"id":7}]`, string(out))
}

func TestEventRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		event   string
		payload interface{}
	}{
		{"string payload", "chat", "hello world"},
		{"object payload", "state", map[string]interface{}{"x": 1.5, "y": "z"}},
		{"array payload", "batch", []interface{}{"a", 2.0}},
		{"nil payload", "ping-me", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := EncodeEvent(tc.event, tc.payload)
			require.NoError(t, err)

			event, payload, ok := DecodeEvent(encoded)
			require.True(t, ok)
			assert.Equal(t, tc.event, event)

			// Compare through JSON to erase number-type differences.
			want, _ := json.Marshal(tc.payload)
			got, _ := json.Marshal(payload)
			assert.JSONEq(t, string(want), string(got))
		})
	}
}

func TestDecodeEventRejectsNonEvents(t *testing.T) {
	for _, frame := range []string{
		"",               // empty
		"2",              // ping
		"2abc",           // ping with payload
		"40",             // connect ack
		"41",             // disconnect
		"42",             // event with no body
		"42[]",           // empty args
		"42[123]",        // event name not a string
		`42["",1]`,       // empty event name
		"42not-json",     // malformed body
		`4{"event":"x"}`, // message without event sub-type
	} {
		_, _, ok := DecodeEvent([]byte(frame))
		assert.False(t, ok, "frame %q should not decode", frame)
	}
}

func TestPacketEncodeDecode(t *testing.T) {
	p := &Packet{Type: PacketTypeMessage, Data: []byte("hi")}
	assert.Equal(t, "4hi", string(p.Encode()))

	decoded, err := Decode([]byte("4hi"))
	require.NoError(t, err)
	assert.Equal(t, PacketTypeMessage, decoded.Type)
	assert.Equal(t, "hi", string(decoded.Data))

	_, err = Decode(nil)
	assert.Error(t, err)

	_, err = Decode([]byte("x"))
	assert.Error(t, err)
}

func TestIsType(t *testing.T) {
	assert.True(t, IsType([]byte("2probe"), PacketTypePing))
	assert.True(t, IsType([]byte("3"), PacketTypePong))
	assert.False(t, IsType([]byte("3"), PacketTypePing))
	assert.False(t, IsType(nil, PacketTypePing))
}

func TestEncodeOpen(t *testing.T) {
	out, err := EncodeOpen(Handshake{
		SID:          "abc",
		PingInterval: 25000,
		PingTimeout:  60000,
	})
	require.NoError(t, err)
	require.True(t, IsType(out, PacketTypeOpen))

	var h Handshake
	require.NoError(t, json.Unmarshal(out[1:], &h))
	assert.Equal(t, "abc", h.SID)
	assert.Equal(t, 25000, h.PingInterval)
	assert.Equal(t, 60000, h.PingTimeout)
	assert.NotNil(t, h.Upgrades)
}

func TestConnectAck(t *testing.T) {
	assert.Equal(t, "40", string(ConnectAck()))
}

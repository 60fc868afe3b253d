package ember

import (
	"go.uber.org/zap"

	"github.com/embercore/ember/protocol"
)

// Strategy inspects an inbound frame before the generic decode step.
// Returning true short-circuits the pipeline: the frame is considered
// handled and never reaches user code. Strategies run in registration
// order until one reports handled.
type Strategy interface {
	Handle(c *Conn, frame []byte) bool
}

// HeartbeatStrategy answers PING control packets with a PONG echoing any
// trailing bytes, and swallows every other non-event frame so control
// traffic never reaches user callbacks.
type HeartbeatStrategy struct {
	Logger *zap.Logger
}

// Handle implements Strategy.
func (h HeartbeatStrategy) Handle(c *Conn, frame []byte) bool {
	if _, _, ok := protocol.DecodeEvent(frame); ok {
		return false
	}

	if protocol.IsType(frame, protocol.PacketTypePing) {
		pong := make([]byte, 0, len(frame))
		pong = append(pong, byte('0'+protocol.PacketTypePong))
		if len(frame) > 1 {
			pong = append(pong, frame[1:]...)
		}
		if err := c.push(pong); err != nil && h.Logger != nil {
			h.Logger.Debug("pong dropped", zap.Int("fd", c.fd), zap.Error(err))
		}
	}

	return true
}

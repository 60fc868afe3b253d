package ember

import (
	"context"

	"go.uber.org/zap"

	"github.com/embercore/ember/internal/metrics"
	"github.com/embercore/ember/protocol"
	"github.com/embercore/ember/queue"
)

// handlePush is the deliver phase of the realtime dispatcher, executed
// inside every subscribed worker. The envelope arrives with targets
// already resolved to fds; this worker encodes once and pushes to the
// fds it owns, skipping the rest silently.
func (s *Server) handlePush(ctx context.Context, p queue.Payload) {
	if p.Action != queue.ActionPush {
		return
	}
	d := p.Data

	msg, err := protocol.EncodeEvent(d.Event, d.Message)
	if err != nil {
		s.logger.Warn("encode push failed", zap.String("event", d.Event), zap.Error(err))
		return
	}

	fds := d.FDs

	// A directed message also reaches its sender unless broadcasting.
	if !d.Broadcast && d.Sender != 0 && !containsFD(fds, d.Sender) {
		fds = append(fds, d.Sender)
	}

	// A bare broadcast fans out to every open connection on this worker.
	// When targets were assigned but resolved empty, the set stays empty.
	if d.Broadcast && len(fds) == 0 && !d.Assigned {
		s.mu.RLock()
		for fd := range s.conns {
			fds = append(fds, fd)
		}
		s.mu.RUnlock()
	}

	for _, fd := range fds {
		if d.Broadcast && fd == d.Sender {
			continue
		}

		c, ok := s.Conn(fd)
		if !ok || c.State() != StateOpen {
			// The fd belongs to another worker or closed meanwhile.
			s.countPush(metrics.OutcomeSkipped)
			continue
		}
		if err := c.push(msg); err != nil {
			s.countPush(metrics.OutcomeSkipped)
			continue
		}
		s.countPush(metrics.OutcomeDelivered)
	}
}

func (s *Server) countPush(outcome string) {
	if s.metrics != nil {
		s.metrics.PushesTotal.WithLabelValues(outcome).Inc()
	}
}

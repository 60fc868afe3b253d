package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject push payloads travel on when none is
// configured.
const DefaultSubject = "ember.push"

// NATS is the multi-process Queue: payloads are published as JSON on one
// subject and every worker process holds a plain (non queue-group)
// subscription, so each worker sees every resolved envelope and delivers
// only to the fds it owns.
type NATS struct {
	conn    *nats.Conn
	subject string
	subs    []*nats.Subscription
}

// NewNATS connects to the given server URL.
func NewNATS(url, subject string) (*NATS, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	conn, err := nats.Connect(url,
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("queue: nats connect: %w", err)
	}
	return &NATS{conn: conn, subject: subject}, nil
}

// Enqueue publishes the payload. Publishing is fire-and-forget; NATS
// flushes asynchronously.
func (n *NATS) Enqueue(ctx context.Context, p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("queue: marshal payload: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("queue: nats publish: %w", err)
	}
	return nil
}

// Subscribe registers a handler for every payload on the subject.
// Payloads that fail to decode are dropped.
func (n *NATS) Subscribe(h Handler) error {
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		var p Payload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return
		}
		h(context.Background(), p)
	})
	if err != nil {
		return fmt.Errorf("queue: nats subscribe: %w", err)
	}
	n.subs = append(n.subs, sub)
	return nil
}

// Close drains the subscriptions and closes the connection.
func (n *NATS) Close() error {
	for _, sub := range n.subs {
		_ = sub.Unsubscribe()
	}
	n.conn.Close()
	return nil
}

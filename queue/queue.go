// Package queue is the asynchronous hand-off between the emit phase of the
// realtime dispatcher and the deliver phase running in whichever worker
// owns each target connection. Delivery is at-least-once and FIFO per
// executor; no ordering is guaranteed across executors.
package queue

import "context"

// ActionPush is the only action the realtime layer enqueues.
const ActionPush = "push"

// PushData is the resolved envelope handed to owning workers. Sender 0
// means no sender; connection fds are allocated from 1.
type PushData struct {
	Sender    int         `json:"sender"`
	FDs       []int       `json:"fds"`
	Broadcast bool        `json:"broadcast"`
	Assigned  bool        `json:"assigned"`
	Event     string      `json:"event"`
	Message   interface{} `json:"message"`
}

// Payload is one queued task.
type Payload struct {
	Action string   `json:"action"`
	Data   PushData `json:"data"`
}

// Handler consumes one payload inside an executor.
type Handler func(ctx context.Context, p Payload)

// Queue moves payloads from emitting workers to every subscribed worker.
// Each worker subscribes once and delivers only to the fds it owns, so a
// payload must reach all subscribers.
type Queue interface {
	// Enqueue hands off a payload without blocking on delivery.
	Enqueue(ctx context.Context, p Payload) error

	// Subscribe registers a handler for every future payload.
	Subscribe(h Handler) error

	// Close stops the executors. Pending payloads may be dropped.
	Close() error
}

package ember

import (
	"context"
	"strconv"

	"github.com/embercore/ember/internal/metrics"
	"github.com/embercore/ember/queue"
	"github.com/embercore/ember/room"
)

// Emitter describes one outbound realtime message and resolves it against
// the room store. Targets may be connection fds, room names, or the whole
// server via Broadcast. Emit hands the resolved envelope to the task
// queue; actual delivery runs later inside whichever worker owns each fd.
//
// An Emitter is transient: acquire one per callback (Server.Sender) or
// per push (Server.Emitter), chain the builders, call Emit.
type Emitter struct {
	store   room.Store
	queue   queue.Queue
	metrics *metrics.Metrics

	sender    int
	broadcast bool
	toFDs     []int
	toRooms   []string
}

// NewEmitter builds a standalone emitter, mainly for code that pushes
// without holding a Server, such as task executors or HTTP controllers.
func NewEmitter(store room.Store, q queue.Queue) *Emitter {
	return &Emitter{store: store, queue: q}
}

// Sender returns the sending connection's fd, 0 when unbound.
func (e *Emitter) Sender() int {
	return e.sender
}

// Broadcast marks the message for delivery to every open connection,
// excluding the sender.
func (e *Emitter) Broadcast() *Emitter {
	e.broadcast = true
	return e
}

// To adds explicit target connections.
func (e *Emitter) To(fds ...int) *Emitter {
	for _, fd := range fds {
		if !containsFD(e.toFDs, fd) {
			e.toFDs = append(e.toFDs, fd)
		}
	}
	return e
}

// ToRooms adds target rooms, expanded to their members at emit time.
func (e *Emitter) ToRooms(rooms ...string) *Emitter {
	for _, r := range rooms {
		if !containsRoom(e.toRooms, r) {
			e.toRooms = append(e.toRooms, r)
		}
	}
	return e
}

// Join adds the sender to a room.
func (e *Emitter) Join(ctx context.Context, room string) error {
	return e.store.Add(ctx, e.sender, room)
}

// JoinAll adds the sender to several rooms.
func (e *Emitter) JoinAll(ctx context.Context, rooms []string) error {
	return e.store.AddAll(ctx, e.sender, rooms)
}

// Leave removes the sender from a room.
func (e *Emitter) Leave(ctx context.Context, room string) error {
	return e.store.Delete(ctx, e.sender, room)
}

// LeaveAll removes the sender from the given rooms, or from every room
// when none are named.
func (e *Emitter) LeaveAll(ctx context.Context, rooms ...string) error {
	return e.store.DeleteAll(ctx, e.sender, rooms)
}

// Rooms lists the rooms the sender currently belongs to.
func (e *Emitter) Rooms(ctx context.Context) ([]string, error) {
	return e.store.Rooms(ctx, e.sender)
}

// Emit resolves the targets to a concrete fd set and enqueues the push.
// Explicit targets that resolve to nothing reject the emit locally
// (accepted=false) without any queue traffic; this is the normal result
// of addressing an empty room, not an error. Builder state resets either
// way.
func (e *Emitter) Emit(ctx context.Context, event string, message interface{}) (accepted bool, err error) {
	fds := make([]int, 0, len(e.toFDs))
	fds = append(fds, e.toFDs...)

	for _, r := range e.toRooms {
		clients, cerr := e.store.Clients(ctx, r)
		if cerr != nil {
			e.reset()
			return false, cerr
		}
		for _, fd := range clients {
			if !containsFD(fds, fd) {
				fds = append(fds, fd)
			}
		}
	}

	assigned := len(e.toFDs) > 0 || len(e.toRooms) > 0
	broadcast := e.broadcast
	sender := e.sender
	e.reset()

	if assigned && len(fds) == 0 {
		e.countEmit(false)
		return false, nil
	}

	err = e.queue.Enqueue(ctx, queue.Payload{
		Action: queue.ActionPush,
		Data: queue.PushData{
			Sender:    sender,
			FDs:       fds,
			Broadcast: broadcast,
			Assigned:  assigned,
			Event:     event,
			Message:   message,
		},
	})
	if err != nil {
		return false, err
	}
	e.countEmit(true)
	return true, nil
}

func (e *Emitter) countEmit(accepted bool) {
	if e.metrics != nil {
		e.metrics.EmitsTotal.WithLabelValues(strconv.FormatBool(accepted)).Inc()
	}
}

func (e *Emitter) reset() {
	e.broadcast = false
	e.toFDs = nil
	e.toRooms = nil
}

func containsFD(fds []int, fd int) bool {
	for _, v := range fds {
		if v == fd {
			return true
		}
	}
	return false
}

func containsRoom(rooms []string, room string) bool {
	for _, v := range rooms {
		if v == room {
			return true
		}
	}
	return false
}

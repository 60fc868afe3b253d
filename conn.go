package ember

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrConnClosed is returned when pushing to a closed connection.
	ErrConnClosed = errors.New("ember: connection closed")

	// ErrSlowClient is returned when a connection's outbound buffer is
	// full.
	ErrSlowClient = errors.New("ember: slow client")
)

// ConnState is the lifecycle state of one connection. Transitions are
// Opening -> Open -> Closed; Closed is terminal.
type ConnState int32

const (
	StateOpening ConnState = iota
	StateOpen
	StateClosed
)

// sink is the writable side of the transport. *websocket.Conn satisfies
// it; tests substitute an in-memory recorder.
type sink interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// textMessage mirrors websocket.TextMessage without importing gorilla
// here; all frames on the wire are text.
const textMessage = 1

// Conn is one live socket. Its fd carries the owning worker's id in the
// high bits and is unique across the worker pool, but only actionable
// inside the worker that accepted the socket.
type Conn struct {
	fd int
	ws sink

	outgoing  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	state     atomic.Int32
	tornDown  atomic.Bool
}

func newConn(fd int, ws sink) *Conn {
	return &Conn{
		fd:       fd,
		ws:       ws,
		outgoing: make(chan []byte, 256),
		closed:   make(chan struct{}),
	}
}

// FD returns the worker-local connection handle.
func (c *Conn) FD() int {
	return c.fd
}

// State returns the connection lifecycle state.
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Conn) setState(s ConnState) {
	c.state.Store(int32(s))
}

// push queues encoded bytes for the write loop. It never blocks: a full
// buffer means a slow client and the frame is dropped with an error.
func (c *Conn) push(data []byte) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	select {
	case c.outgoing <- data:
		return nil
	case <-c.closed:
		return ErrConnClosed
	default:
		return ErrSlowClient
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case data := <-c.outgoing:
			if err := c.ws.WriteMessage(textMessage, data); err != nil {
				c.close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		close(c.closed)
		c.ws.Close()
	})
}

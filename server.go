package ember

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/embercore/ember/internal/metrics"
	"github.com/embercore/ember/protocol"
	"github.com/embercore/ember/queue"
	"github.com/embercore/ember/room"
)

// ConnectHandler fires after the open handshake completes.
type ConnectHandler func(e *Emitter, r *http.Request)

// EventHandler fires for a decoded event matching its registered name.
type EventHandler func(e *Emitter, data interface{})

// DisconnectHandler fires when a connection closes, after it has left all
// rooms.
type DisconnectHandler func(e *Emitter)

// RawHandler is the fallback for decoded frames whose event name has no
// registered handler.
type RawHandler func(e *Emitter, frame []byte)

// CloseHandler is the generic close fallback used when no disconnect
// handler is registered.
type CloseHandler func(fd int)

// Config tunes one worker's realtime server.
type Config struct {
	// WorkerID identifies this worker. It is composed into every fd the
	// worker allocates, so it must be unique across the worker pool.
	WorkerID int

	// PingInterval and PingTimeout are advertised to clients in the open
	// handshake, in milliseconds.
	PingInterval int
	PingTimeout  int

	// MaxPayload caps inbound frame size in bytes.
	MaxPayload int64

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// DefaultConfig mirrors the stock heartbeat settings.
func DefaultConfig() *Config {
	return &Config{
		PingInterval: 25000,
		PingTimeout:  60000,
		MaxPayload:   1 << 20,
	}
}

// Server reacts to open, message and close events on the connections this
// worker owns, drives the packet codec and room store, and runs the
// deliver phase for push payloads arriving from the task queue.
type Server struct {
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	store    room.Store
	queue    queue.Queue
	upgrader websocket.Upgrader

	nextFD atomic.Int64

	mu    sync.RWMutex
	conns map[int]*Conn

	strategies []Strategy

	handlersMu   sync.RWMutex
	handlers     map[string]EventHandler
	onConnect    ConnectHandler
	onDisconnect DisconnectHandler
	onMessage    RawHandler
	onClose      CloseHandler
}

// NewServer wires a worker: it subscribes to the task queue so resolved
// push envelopes are delivered to the connections this worker owns.
func NewServer(cfg *Config, store room.Store, q queue.Queue) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25000
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 60000
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = 1 << 20
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:     *cfg,
		logger:  logger.With(zap.Int("worker", cfg.WorkerID)),
		metrics: cfg.Metrics,
		store:   store,
		queue:   q,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns:      make(map[int]*Conn),
		strategies: []Strategy{HeartbeatStrategy{Logger: logger}},
		handlers:   make(map[string]EventHandler),
	}

	if err := q.Subscribe(s.handlePush); err != nil {
		return nil, err
	}
	return s, nil
}

// On registers an event callback.
func (s *Server) On(event string, h EventHandler) {
	s.handlersMu.Lock()
	s.handlers[event] = h
	s.handlersMu.Unlock()
}

// OnConnect registers the connect callback.
func (s *Server) OnConnect(h ConnectHandler) {
	s.handlersMu.Lock()
	s.onConnect = h
	s.handlersMu.Unlock()
}

// OnDisconnect registers the disconnect callback.
func (s *Server) OnDisconnect(h DisconnectHandler) {
	s.handlersMu.Lock()
	s.onDisconnect = h
	s.handlersMu.Unlock()
}

// OnMessage registers the raw-message fallback.
func (s *Server) OnMessage(h RawHandler) {
	s.handlersMu.Lock()
	s.onMessage = h
	s.handlersMu.Unlock()
}

// OnClose registers the generic close fallback.
func (s *Server) OnClose(h CloseHandler) {
	s.handlersMu.Lock()
	s.onClose = h
	s.handlersMu.Unlock()
}

// SetStrategies replaces the pre-decode strategy chain. Call before
// serving connections.
func (s *Server) SetStrategies(strategies ...Strategy) {
	s.strategies = strategies
}

// Sender returns an emitter bound to fd as the sending connection.
func (s *Server) Sender(fd int) *Emitter {
	return &Emitter{store: s.store, queue: s.queue, metrics: s.metrics, sender: fd}
}

// Emitter returns an unbound emitter for pushes originating outside any
// connection, e.g. from an HTTP controller.
func (s *Server) Emitter() *Emitter {
	return &Emitter{store: s.store, queue: s.queue, metrics: s.metrics}
}

// fds carry the owning worker id in their high bits, so connections on
// different workers never collide in a shared room store or in queue
// payloads.
const fdWorkerShift = 32

func (s *Server) allocFD() int {
	return s.cfg.WorkerID<<fdWorkerShift | int(s.nextFD.Add(1))
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	fd := s.allocFD()
	c := newConn(fd, ws)

	s.mu.Lock()
	s.conns[fd] = c
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ConnectionsOpen.Inc()
	}

	go c.writeLoop()

	if err := s.open(c, r); err != nil {
		s.logger.Error("open handshake failed", zap.Int("fd", fd), zap.Error(err))
		s.closeConn(c)
		return
	}

	ws.SetReadLimit(s.cfg.MaxPayload)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		s.handleFrame(c, data)
	}

	s.closeConn(c)
}

// open performs the framed-protocol handshake: an OPEN control packet
// carrying session parameters followed by a CONNECT acknowledgement, then
// the user connect callback. Reconnects presenting an existing sid skip
// the handshake and the callback.
func (s *Server) open(c *Conn, r *http.Request) error {
	if r.URL.Query().Get("sid") != "" {
		c.setState(StateOpen)
		return nil
	}

	openPacket, err := protocol.EncodeOpen(protocol.Handshake{
		SID:          uuid.NewString(),
		PingInterval: s.cfg.PingInterval,
		PingTimeout:  s.cfg.PingTimeout,
	})
	if err != nil {
		return err
	}
	if err := c.push(openPacket); err != nil {
		return err
	}
	if err := c.push(protocol.ConnectAck()); err != nil {
		return err
	}
	c.setState(StateOpen)

	s.handlersMu.RLock()
	onConnect := s.onConnect
	s.handlersMu.RUnlock()
	if onConnect != nil {
		s.safely("connect", c.fd, func() {
			onConnect(s.Sender(c.fd), r)
		})
	}
	return nil
}

// handleFrame runs one inbound frame through the strategy chain, then the
// decode-and-dispatch step. Frames on one connection are processed in
// arrival order; a callback runs to completion before the next frame is
// read.
func (s *Server) handleFrame(c *Conn, data []byte) {
	for _, strat := range s.strategies {
		if strat.Handle(c, data) {
			s.countFrame(metrics.OutcomeHandled)
			return
		}
	}

	event, payload, ok := protocol.DecodeEvent(data)
	if !ok {
		// Malformed frame: a no-op dispatch, never fatal.
		s.countFrame(metrics.OutcomeMalformed)
		return
	}

	s.handlersMu.RLock()
	handler := s.handlers[event]
	fallback := s.onMessage
	s.handlersMu.RUnlock()

	if handler != nil {
		s.countFrame(metrics.OutcomeDispatch)
		s.safely(event, c.fd, func() {
			handler(s.Sender(c.fd), payload)
		})
		return
	}

	s.countFrame(metrics.OutcomeFallback)
	if fallback != nil {
		s.safely("message", c.fd, func() {
			fallback(s.Sender(c.fd), data)
		})
	}
}

// closeConn removes the connection from every room, fires the disconnect
// callback (or the generic close fallback) and unregisters the fd.
func (s *Server) closeConn(c *Conn) {
	if !c.tornDown.CompareAndSwap(false, true) {
		return
	}
	c.close()

	if err := s.store.DeleteAll(context.Background(), c.fd, nil); err != nil {
		s.logger.Warn("leave all rooms failed", zap.Int("fd", c.fd), zap.Error(err))
	}

	s.handlersMu.RLock()
	onDisconnect := s.onDisconnect
	onClose := s.onClose
	s.handlersMu.RUnlock()

	if onDisconnect != nil {
		s.safely("disconnect", c.fd, func() {
			onDisconnect(s.Sender(c.fd))
		})
	} else if onClose != nil {
		s.safely("close", c.fd, func() {
			onClose(c.fd)
		})
	}

	s.mu.Lock()
	delete(s.conns, c.fd)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ConnectionsOpen.Dec()
	}
}

// Conn returns the live connection for fd on this worker.
func (s *Server) Conn(fd int) (*Conn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[fd]
	return c, ok
}

// Close shuts down every connection on this worker.
func (s *Server) Close() error {
	s.mu.RLock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		s.closeConn(c)
	}
	return nil
}

// safely confines callback failures to the connection that triggered
// them; a panicking callback never takes down the worker.
func (s *Server) safely(event string, fd int, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("callback panicked",
				zap.String("event", event),
				zap.Int("fd", fd),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}

func (s *Server) countFrame(outcome string) {
	if s.metrics != nil {
		s.metrics.FramesTotal.WithLabelValues(outcome).Inc()
	}
}

package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("queue: closed")

// Local is the single-process Queue: a buffered channel drained by a pool
// of executor goroutines, each running one payload at a time. Every
// payload is fanned out to all subscribers in order.
type Local struct {
	tasks chan Payload

	mu       sync.RWMutex
	handlers []Handler
	closed   bool

	wg   sync.WaitGroup
	stop chan struct{}
}

// NewLocal starts an in-process queue with the given executor pool size
// and buffer depth.
func NewLocal(executors, buffer int) *Local {
	if executors <= 0 {
		executors = 4
	}
	if buffer <= 0 {
		buffer = 1024
	}

	l := &Local{
		tasks: make(chan Payload, buffer),
		stop:  make(chan struct{}),
	}
	for i := 0; i < executors; i++ {
		l.wg.Add(1)
		go l.run()
	}
	return l
}

func (l *Local) run() {
	defer l.wg.Done()
	for {
		select {
		case p := <-l.tasks:
			l.dispatch(p)
		case <-l.stop:
			return
		}
	}
}

func (l *Local) dispatch(p Payload) {
	l.mu.RLock()
	handlers := l.handlers
	l.mu.RUnlock()

	for _, h := range handlers {
		h(context.Background(), p)
	}
}

// Enqueue hands off the payload, blocking only when the buffer is full.
func (l *Local) Enqueue(ctx context.Context, p Payload) error {
	l.mu.RLock()
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	select {
	case l.tasks <- p:
		return nil
	case <-l.stop:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a handler for every future payload.
func (l *Local) Subscribe(h Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.handlers = append(l.handlers, h)
	return nil
}

// Close stops the executors and waits for them to finish the task in
// flight. Buffered payloads are dropped.
func (l *Local) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.stop)
	l.wg.Wait()
	return nil
}

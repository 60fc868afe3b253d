// Package ember is a long-running application server that keeps a warm
// application context across requests and runs a realtime messaging layer
// with rooms, broadcast and targeted push across a pool of workers.
//
// Two subsystems make up the core. The sandbox package snapshots the
// shared application context per request so no state leaks between
// requests on a warm worker. The root package plus room, protocol and
// queue implement the realtime layer: room membership is tracked in a
// store any worker can reach, while delivery happens inside whichever
// worker owns each connection, decoupled through a task queue.
//
// # Quick Start
//
//	store := room.NewTableStore(room.DefaultSettings())
//	q := queue.NewLocal(4, 1024)
//
//	server, err := ember.NewServer(nil, store, q)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	server.OnConnect(func(e *ember.Emitter, r *http.Request) {
//	    log.Printf("connected: fd=%d", e.Sender())
//	})
//
//	server.On("join", func(e *ember.Emitter, data interface{}) {
//	    if room, ok := data.(string); ok {
//	        e.Join(context.Background(), room)
//	    }
//	})
//
//	http.Handle("/socket.io/", server)
//	http.ListenAndServe(":1215", nil)
//
// # Rooms and Emitting
//
// An Emitter describes one outbound message. Targets may be fds, room
// names or everyone:
//
//	e.ToRooms("lobby").Emit(ctx, "news", "hello lobby")
//	e.To(7).Emit(ctx, "whisper", "hi")
//	e.Broadcast().Emit(ctx, "announce", "hello everyone")
//
// Emit resolves room names against the store and hands the resolved fd
// set to the task queue; each subscribed worker pushes to the fds it
// owns. Addressing an empty room without broadcast is rejected locally
// and produces no queue traffic.
//
// # Request Isolation
//
// The sandbox package wraps a warm application context. With isolation
// enabled every request runs against a structural snapshot; either way
// request-scoped singletons, queued cookies and resolved caches are
// scrubbed at request end:
//
//	app, _ := sandbox.NewApp(sandbox.WithService("db", pool))
//	sb := sandbox.New(app, true, logger)
//	handler := sb.Middleware(mux)
package ember

// Package sandbox keeps one warm application context per worker and hands
// each request an isolated view of it, so no request-scoped state survives
// into the next request. The context is a plain value container: volatile
// singletons are cloned per request, long-lived services are shared and
// rewired through an explicit interface, never via reflection.
package sandbox

import (
	"fmt"
	"sync"
)

// Cloner lets a volatile singleton control its own structural copy when a
// snapshot is taken. Values that do not implement Cloner are copied by
// reference (shallow for plain string-keyed maps).
type Cloner interface {
	CloneFor(app *App) interface{}
}

// Rebindable is the explicit rewiring step for long-lived services that
// captured a back-reference to the context at bootstrap (router, view
// renderer). Rebind returns a handle bound to the new context; the
// original service keeps pointing at the base.
type Rebindable interface {
	Rebind(app *App) interface{}
}

// Provider is a user-supplied service registration hook, re-run during
// request teardown so swapped-out bindings are restored.
type Provider interface {
	Register(app *App) error
}

// Session is the slice of the session subsystem the teardown needs.
type Session interface {
	Flush()
}

// CookieJar is the slice of the cookie subsystem the teardown needs:
// cookies queued during the request must not leak into the next one.
type CookieJar interface {
	Queued() []string
	Unqueue(name string)
}

// App is the application context: named volatile singletons plus shared
// long-lived services. A worker owns exactly one base App; snapshots of
// it are owned by single requests.
type App struct {
	mu sync.RWMutex

	instances map[string]interface{} // volatile, reset or cloned per request
	services  map[string]interface{} // long-lived, shared across requests
	resolved  map[string]interface{} // facade-style resolved cache

	providers      []Provider
	resetInstances []string
	resetFacades   []string

	configure func(*App) error // configuration-loading phase, replayed on clone
}

// Option configures an App at construction.
type Option func(*App)

// WithService registers a long-lived service (database pool, renderer,
// router) that persists across requests.
func WithService(name string, svc interface{}) Option {
	return func(a *App) { a.services[name] = svc }
}

// WithProvider adds a user provider re-registered on every teardown.
func WithProvider(p Provider) Option {
	return func(a *App) { a.providers = append(a.providers, p) }
}

// WithResetInstances names the volatile singletons to unregister at the
// end of each request.
func WithResetInstances(names ...string) Option {
	return func(a *App) { a.resetInstances = append(a.resetInstances, names...) }
}

// WithResetFacades names the resolved-cache entries cleared at the end of
// each request.
func WithResetFacades(names ...string) Option {
	return func(a *App) { a.resetFacades = append(a.resetFacades, names...) }
}

// WithConfigure sets the deterministic configuration-loading phase. It
// runs once at construction and again on every snapshot, so wiring that
// points back at the context lands on the clone rather than the base.
func WithConfigure(fn func(*App) error) Option {
	return func(a *App) { a.configure = fn }
}

// NewApp builds the base context and runs its configuration phase.
func NewApp(opts ...Option) (*App, error) {
	a := &App{
		instances: make(map[string]interface{}),
		services:  make(map[string]interface{}),
		resolved:  make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.configure != nil {
		if err := a.configure(a); err != nil {
			return nil, fmt.Errorf("sandbox: configure: %w", err)
		}
	}
	for _, p := range a.providers {
		if err := p.Register(a); err != nil {
			return nil, fmt.Errorf("sandbox: register provider: %w", err)
		}
	}
	return a, nil
}

// Instance registers a volatile singleton.
func (a *App) Instance(name string, value interface{}) {
	a.mu.Lock()
	a.instances[name] = value
	a.mu.Unlock()
}

// Get looks up a volatile singleton, falling back to long-lived services.
func (a *App) Get(name string) (interface{}, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if v, ok := a.instances[name]; ok {
		return v, true
	}
	v, ok := a.services[name]
	return v, ok
}

// Forget unregisters a volatile singleton.
func (a *App) Forget(name string) {
	a.mu.Lock()
	delete(a.instances, name)
	a.mu.Unlock()
}

// Resolve returns the cached facade-style binding for name, building it
// on first use.
func (a *App) Resolve(name string, build func(*App) interface{}) interface{} {
	a.mu.RLock()
	v, ok := a.resolved[name]
	a.mu.RUnlock()
	if ok {
		return v
	}

	v = build(a)
	a.mu.Lock()
	a.resolved[name] = v
	a.mu.Unlock()
	return v
}

// ClearResolved drops the whole resolved cache.
func (a *App) ClearResolved() {
	a.mu.Lock()
	a.resolved = make(map[string]interface{})
	a.mu.Unlock()
}

func (a *App) clearResolvedNamed(names []string) {
	a.mu.Lock()
	for _, name := range names {
		delete(a.resolved, name)
	}
	a.mu.Unlock()
}

// session returns the active session, if one is registered under
// "session" and exposes Flush.
func (a *App) session() (Session, bool) {
	v, ok := a.Get("session")
	if !ok {
		return nil, false
	}
	s, ok := v.(Session)
	return s, ok
}

// cookies returns the cookie jar, if one is registered under "cookies".
func (a *App) cookies() (CookieJar, bool) {
	v, ok := a.Get("cookies")
	if !ok {
		return nil, false
	}
	c, ok := v.(CookieJar)
	return c, ok
}

// clone takes a structural snapshot: volatile singletons are copied
// (CloneFor when implemented, one-level copy for plain maps), long-lived
// services are shared unless they rebind, and the configuration phase is
// replayed against the clone.
func (a *App) clone() (*App, error) {
	a.mu.RLock()

	c := &App{
		instances:      make(map[string]interface{}, len(a.instances)),
		services:       make(map[string]interface{}, len(a.services)),
		resolved:       make(map[string]interface{}),
		providers:      a.providers,
		resetInstances: a.resetInstances,
		resetFacades:   a.resetFacades,
		configure:      a.configure,
	}

	for name, v := range a.instances {
		c.instances[name] = cloneValue(c, v)
	}
	for name, svc := range a.services {
		c.services[name] = svc
	}
	a.mu.RUnlock()

	if c.configure != nil {
		if err := c.configure(c); err != nil {
			return nil, fmt.Errorf("sandbox: snapshot configure: %w", err)
		}
	}

	// Rewire services that captured the base context at bootstrap.
	for name, svc := range c.services {
		if r, ok := svc.(Rebindable); ok {
			c.services[name] = r.Rebind(c)
		}
	}

	return c, nil
}

func cloneValue(dst *App, v interface{}) interface{} {
	switch val := v.(type) {
	case Cloner:
		return val.CloneFor(dst)
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, e := range val {
			m[k] = e
		}
		return m
	default:
		return v
	}
}

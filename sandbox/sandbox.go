package sandbox

import (
	"fmt"

	"go.uber.org/zap"
)

// Sandbox owns a worker's base context and produces per-request views of
// it. With isolation enabled each request gets a structural snapshot;
// disabled, requests share the base and rely on End to scrub state.
type Sandbox struct {
	base    *App
	enabled bool
	logger  *zap.Logger
}

// New wraps the worker's base context.
func New(base *App, enabled bool, logger *zap.Logger) *Sandbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sandbox{base: base, enabled: enabled, logger: logger}
}

// Enabled reports whether isolation mode is on.
func (s *Sandbox) Enabled() bool {
	return s.enabled
}

// Base returns the worker's baseline context.
func (s *Sandbox) Base() *App {
	return s.base
}

// Begin returns the context a request should run against: a fresh
// snapshot in isolation mode, the base otherwise. A failed snapshot
// aborts only this request; the worker keeps serving.
func (s *Sandbox) Begin() (*App, error) {
	if !s.enabled {
		return s.base, nil
	}
	snapshot, err := s.base.clone()
	if err != nil {
		return nil, fmt.Errorf("sandbox: begin request: %w", err)
	}
	return snapshot, nil
}

// End performs framework teardown on the request's context: flush the
// session, drain queued cookies, unregister request-scoped singletons,
// re-register user providers and clear per-request resolved caches. Every
// step is best-effort; failures are logged and never fatal to the worker.
func (s *Sandbox) End(app *App) {
	if app == nil {
		return
	}

	s.guard("flush session", func() {
		if sess, ok := app.session(); ok {
			sess.Flush()
		}
	})

	s.guard("drain cookies", func() {
		if jar, ok := app.cookies(); ok {
			for _, name := range jar.Queued() {
				jar.Unqueue(name)
			}
		}
	})

	s.guard("forget instances", func() {
		for _, name := range app.resetInstances {
			app.Forget(name)
		}
	})

	s.guard("reset providers", func() {
		for _, p := range app.providers {
			if err := p.Register(app); err != nil {
				s.logger.Warn("sandbox: provider reset failed", zap.Error(err))
			}
		}
	})

	s.guard("clear facades", func() {
		if len(app.resetFacades) > 0 {
			app.clearResolvedNamed(app.resetFacades)
		} else {
			app.ClearResolved()
		}
	})
}

func (s *Sandbox) guard(step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sandbox: teardown step panicked",
				zap.String("step", step),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}

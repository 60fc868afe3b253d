package sandbox

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

type ctxKey struct{}

// Middleware runs each inbound HTTP request against its own context view:
// Begin before the handler, End afterwards even when the handler panics.
// A snapshot failure is a framework error (500), not a transport error,
// and the worker continues serving.
func (s *Sandbox) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app, err := s.Begin()
		if err != nil {
			s.logger.Error("sandbox: request aborted", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		defer s.End(app)

		app.Instance("request", r)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, app)))
	})
}

// FromContext returns the request's context view installed by Middleware.
func FromContext(ctx context.Context) (*App, bool) {
	app, ok := ctx.Value(ctxKey{}).(*App)
	return app, ok
}

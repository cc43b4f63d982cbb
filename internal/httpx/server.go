package httpx

import (
	"github.com/ariefcatur/foodstore-orders/internal/events"
	"github.com/ariefcatur/foodstore-orders/internal/logx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"net/http"
	"time"
)

// Routes is implemented by every handler group.
type Routes interface {
	Register(r chi.Router)
}

// NewRouter mounts api routes behind a request timeout and stream routes
// without one, since event streams stay open for minutes.
func NewRouter(log logrus.FieldLogger, timeout time.Duration, api []Routes, streams []Routes) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logx.Middleware(log), middleware.Recoverer, trace)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Group(func(r chi.Router) {
		if timeout > 0 {
			r.Use(middleware.Timeout(timeout))
		}
		for _, h := range api {
			h.Register(r)
		}
	})
	for _, h := range streams {
		h.Register(r)
	}
	return r
}

// trace carries the request id into published events.
func trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(events.WithTrace(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

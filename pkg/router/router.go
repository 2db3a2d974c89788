package router

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"visitor-forecast/internal/logging"
)

type HandlerFunc = http.HandlerFunc

// Router is a chi mux with request logging and panic recovery
type Router struct {
	mux    *chi.Mux
	routes map[string]bool // key = METHOD:PATH
}

func New() *Router {
	r := &Router{
		mux:    chi.NewRouter(),
		routes: make(map[string]bool),
	}
	r.mux.Use(chimiddleware.RequestID)
	r.mux.Use(chimiddleware.RealIP)
	r.mux.Use(requestLogger)
	r.mux.Use(chimiddleware.Recoverer)
	return r
}

// --- Register paths ---
func (r *Router) register(method, path string, handler HandlerFunc) {
	r.routes[method+":"+path] = true
	r.mux.MethodFunc(method, path, handler)
}

func (r *Router) GET(path string, handler HandlerFunc)    { r.register(http.MethodGet, path, handler) }
func (r *Router) POST(path string, handler HandlerFunc)   { r.register(http.MethodPost, path, handler) }
func (r *Router) PUT(path string, handler HandlerFunc)    { r.register(http.MethodPut, path, handler) }
func (r *Router) DELETE(path string, handler HandlerFunc) { r.register(http.MethodDelete, path, handler) }

// Handle mounts a handler for every method on path
func (r *Router) Handle(path string, h http.Handler) {
	r.routes["*:"+path] = true
	r.mux.Handle(path, h)
}

// Routes lists the registered METHOD:PATH keys, sorted
func (r *Router) Routes() []string {
	keys := make([]string, 0, len(r.routes))
	for k := range r.routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Param returns a URL parameter of the matched route
func Param(req *http.Request, name string) string {
	return chi.URLParam(req, name)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// --- Start server ---

// Start serves until ctx is cancelled, then shuts down gracefully
func (r *Router) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("Server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logging.Info().Msg("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

// requestLogger logs one line per request with its status and duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		event := logging.Info()
		switch {
		case status >= 500:
			event = logging.Error()
		case status >= 400:
			event = logging.Warn()
		}
		event.
			Str("request_id", chimiddleware.GetReqID(req.Context())).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

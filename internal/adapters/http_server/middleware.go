package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"newsletter/internal/adapters/observability"
)

// RequestIDHeader carries the correlation id back to the client.
const RequestIDHeader = "X-Request-ID"

// Timeout puts a deadline of d on the request context and answers 504 once
// the handler returns past it. The handler stays on the serving goroutine,
// so it must give up on ctx.Done itself. d <= 0 disables it.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return chimw.Timeout(d)
}

// ---- status-recording ResponseWriter ----

type srw struct {
	http.ResponseWriter
	status int
	bytes  int
	wrote  bool
}

func (w *srw) WriteHeader(code int) {
	if !w.wrote {
		w.status = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *srw) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *srw) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *srw) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func routeOf(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// ---- Correlation id ----

// RequestID assigns every request a fresh UUID. Inbound X-Request-ID values
// are ignored so the id is unique per request served here.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), chimw.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFrom returns the id assigned by RequestID, or "".
func RequestIDFrom(ctx context.Context) string { return chimw.GetReqID(ctx) }

// ---- Structured logging middleware ----

// Logger emits one "request started" and one "request completed" entry per
// request, both tagged with request_id. The tagged logger is stored in the
// context so handlers log through zerolog.Ctx(r.Context()).
func Logger(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rl := l.With().Str("request_id", RequestIDFrom(r.Context())).Logger()
			r = r.WithContext(rl.WithContext(r.Context()))

			rl.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", remoteIP(r)).
				Str("ua", r.UserAgent()).
				Msg("request started")

			sw := &srw{ResponseWriter: w}
			defer func() {
				// Only http.ErrAbortHandler gets past Recoverer; log it and let
				// net/http drop the connection.
				rec := recover()

				status := sw.Status()
				res := outcome(status)
				var ev *zerolog.Event
				switch {
				case rec != nil:
					res = "aborted"
					ev = rl.Warn()
				case status >= 500:
					ev = rl.Error()
				case status >= 400:
					ev = rl.Warn()
				default:
					ev = rl.Info()
				}
				ev.
					Str("method", r.Method).
					Str("route", routeOf(r)).
					Int("status", status).
					Str("outcome", res).
					Dur("duration", time.Since(start)).
					Int("bytes", sw.bytes).
					Msg("request completed")

				if rec != nil {
					panic(rec)
				}
			}()
			next.ServeHTTP(sw, r)
		})
	}
}

func outcome(status int) string {
	switch {
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	default:
		return "success"
	}
}

// Recoverer turns a handler panic into a 500. It must sit inside Logger so
// the completion entry still records the failed request. If the handler had
// already started the response, the status stands and only the panic is
// logged.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &srw{ResponseWriter: w}
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			zerolog.Ctx(r.Context()).Error().
				Str("panic", fmt.Sprint(rec)).
				Str("stack", string(debug.Stack())).
				Msg("handler panicked")
			if !sw.wrote {
				writeProblem(sw, http.StatusInternalServerError, "Internal Server Error", "")
			}
		}()
		next.ServeHTTP(sw, r)
	})
}

// ---- Metrics middleware ----

func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		observability.HTTPInFlight.Inc()
		defer observability.HTTPInFlight.Dec()

		sw := &srw{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		observability.ObserveHTTP(routeOf(r), r.Method, sw.Status(), time.Since(start))
	})
}

// ---- Rate limiting ----

// RateLimit sheds requests above rps with 429. rps <= 0 disables limiting.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rps <= 0 {
			return next
		}
		if burst <= 0 {
			burst = int(rps) + 1
		}
		lim := rate.NewLimiter(rate.Limit(rps), burst)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !lim.Allow() {
				w.Header().Set("Retry-After", "1")
				writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "subscription rate exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Picks first X-Forwarded-For IP, else X-Real-IP, else RemoteAddr host.
func remoteIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

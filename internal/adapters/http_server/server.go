package httpserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"newsletter/internal/app"
	"newsletter/internal/domain"
	mysqlrepo "newsletter/internal/storage/mysql"
)

var (
	// ErrConfiguration matches every *ConfigError returned by New.
	ErrConfiguration  = errors.New("server configuration error")
	ErrAlreadyRunning = errors.New("server already running")
	ErrStopped        = errors.New("server stopped; build a new one to restart")
)

// ConfigError reports why New could not produce a handle.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string        { return fmt.Sprintf("%s: %s: %v", ErrConfiguration, e.Op, e.Err) }
func (e *ConfigError) Unwrap() error        { return e.Err }
func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

type State int32

const (
	StateConfigured State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type Options struct {
	// Logger is the base for per-request loggers. Nil means zerolog.Nop().
	Logger *zerolog.Logger

	// Cache backs subscriber de-duplication; nil disables it.
	Cache     domain.Cache
	DedupeTTL time.Duration

	// RequestTimeout is the deadline on each request context (504 on
	// expiry). Zero disables it.
	RequestTimeout time.Duration

	// SubscribeRPS limits POST /subscriptions; zero disables it.
	SubscribeRPS   float64
	SubscribeBurst int
}

// Server is a configured API server. It does not accept connections until
// Start is called and cannot be restarted once stopped.
type Server struct {
	ln  net.Listener
	srv *http.Server
	log zerolog.Logger

	mu       sync.Mutex
	state    State
	serveErr error
	done     chan struct{}

	drainOnce sync.Once
	drained   chan struct{}
}

// New adopts ln and builds the request pipeline around pool. It neither
// accepts nor blocks. Failures are *ConfigError and leave ln untouched.
func New(ln net.Listener, pool Pool, opts Options) (*Server, error) {
	if err := checkListener(ln); err != nil {
		return nil, &ConfigError{Op: "adopt listener", Err: err}
	}
	if isNilPool(pool) {
		return nil, &ConfigError{Op: "inject pool", Err: errors.New("connection pool is nil")}
	}

	l := zerolog.Nop()
	if opts.Logger != nil {
		l = *opts.Logger
	}

	m := chi.NewRouter()

	// All middlewares go here (before any routes are added)
	m.Use(RequestID)
	m.Use(Logger(l))
	m.Use(Metrics)
	m.Use(Recoverer)
	m.Use(Timeout(opts.RequestTimeout))
	m.Use(WithPool(pool))

	h := &Handlers{
		Subscriptions:  app.NewSubscriptionService(mysqlrepo.New(requestPool{}), opts.Cache, opts.DedupeTTL),
		SubscribeRPS:   opts.SubscribeRPS,
		SubscribeBurst: opts.SubscribeBurst,
	}
	if err := mountRoutes(m, routeTable(h)); err != nil {
		return nil, &ConfigError{Op: "register routes", Err: err}
	}

	srvLog := l.With().Str("component", "http_server").Logger()
	hs := &http.Server{
		Handler:           m,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
		ErrorLog:          stdlog.New(srvLog, "", 0),
	}
	return &Server{
		ln:      ln,
		srv:     hs,
		log:     srvLog,
		state:   StateConfigured,
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}, nil
}

func checkListener(ln net.Listener) error {
	if ln == nil {
		return errors.New("listener is nil")
	}
	addr := ln.Addr()
	if addr == nil {
		return errors.New("listener is not bound")
	}
	switch n := addr.Network(); n {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		return fmt.Errorf("unsupported listener network %q", n)
	}
	// A closed socket still reports its address; probing the fd does not.
	if sc, ok := ln.(syscall.Conn); ok {
		rc, err := sc.SyscallConn()
		if err != nil {
			return fmt.Errorf("listener unusable: %w", err)
		}
		if err := rc.Control(func(uintptr) {}); err != nil {
			return fmt.Errorf("listener closed: %w", err)
		}
	}
	return nil
}

func isNilPool(p Pool) bool {
	if p == nil {
		return true
	}
	db, ok := p.(*sql.DB)
	return ok && db == nil
}

func (s *Server) Addr() net.Addr { return s.ln.Addr() }

func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins accepting on the adopted listener and returns immediately.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateRunning:
		return ErrAlreadyRunning
	case StateStopped:
		return ErrStopped
	}
	s.state = StateRunning
	go s.serve()
	s.log.Info().Str("addr", s.ln.Addr().String()).Msg("API listening")
	return nil
}

func (s *Server) serve() {
	err := s.srv.Serve(s.ln)
	if errors.Is(err, http.ErrServerClosed) {
		// Shutdown owns the drain; Stopped waits for it.
		<-s.drained
		s.markStopped(nil)
		return
	}

	s.log.Error().Err(err).Msg("accept loop failed; draining")
	if derr := s.srv.Shutdown(context.Background()); derr != nil {
		s.log.Warn().Err(derr).Msg("drain after accept failure")
	}
	s.markStopped(err)
}

func (s *Server) markStopped(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return
	}
	s.serveErr = err
	s.state = StateStopped
	close(s.done)
}

// Shutdown stops accepting and waits for in-flight requests. If ctx ends
// first the remaining connections are closed and ctx's error returned; the
// server is Stopped either way. On a server that never started it only
// releases the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateStopped:
		s.mu.Unlock()
		return nil
	case StateConfigured:
		s.state = StateStopped
		close(s.done)
		s.mu.Unlock()
		if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	}
	s.mu.Unlock()

	s.log.Info().Msg("shutting down; draining in-flight requests")
	err := s.srv.Shutdown(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("grace period expired; closing remaining connections")
		_ = s.srv.Close()
	}
	s.drainOnce.Do(func() { close(s.drained) })

	// After a listener failure the accept loop runs its own unbounded drain;
	// ctx still decides how long this call waits for it.
	select {
	case <-s.done:
	case <-ctx.Done():
		_ = s.srv.Close()
		<-s.done
		if err == nil {
			err = ctx.Err()
		}
	}
	s.log.Info().Msg("server stopped")
	return err
}

// Wait blocks until the server is Stopped. It returns the accept loop's
// error if the listener failed, nil after a requested shutdown.
func (s *Server) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serveErr
}

// Run starts the server, blocks until ctx is done or the accept loop fails,
// then shuts down allowing grace for in-flight requests (grace <= 0 waits
// for all of them).
func (s *Server) Run(ctx context.Context, grace time.Duration) error {
	if err := s.Start(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-s.done:
		return s.Wait()
	}

	sctx := context.Background()
	if grace > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(sctx, grace)
		defer cancel()
	}
	return s.Shutdown(sctx)
}

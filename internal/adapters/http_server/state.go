package httpserver

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
)

// Pool is the slice of *sql.DB that request handlers depend on. The value
// handed to New is the only instance: it is stored once and every request
// receives that same reference through its context.
type Pool interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type poolKey struct{}

// WithPool makes p available to every downstream handler via PoolFrom.
func WithPool(p Pool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), poolKey{}, p)))
		})
	}
}

// PoolFrom returns the pool injected by WithPool.
func PoolFrom(ctx context.Context) (Pool, bool) {
	p, ok := ctx.Value(poolKey{}).(Pool)
	return p, ok && p != nil
}

var errNoPool = errors.New("connection pool missing from request context")

// requestPool runs each statement on the pool found in the statement's
// context. Services built once in New use it, so their queries still go
// through the instance WithPool injected.
type requestPool struct{}

func (requestPool) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	p, ok := PoolFrom(ctx)
	if !ok {
		return nil, errNoPool
	}
	return p.ExecContext(ctx, query, args...)
}

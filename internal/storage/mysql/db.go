package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// PoolOptions bound the shared connection pool. Zero values keep the
// database/sql defaults.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open parses dsn, enables parseTime/UTC so DATETIME columns scan into
// time.Time, applies the pool bounds and pings once.
func Open(ctx context.Context, dsn string, po PoolOptions) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if po.MaxOpenConns > 0 {
		db.SetMaxOpenConns(po.MaxOpenConns)
	}
	if po.MaxIdleConns > 0 {
		db.SetMaxIdleConns(po.MaxIdleConns)
	}
	if po.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(po.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

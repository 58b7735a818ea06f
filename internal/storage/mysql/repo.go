package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"newsletter/internal/domain"
)

// Execer is the part of *sql.DB the repository writes through. Taking the
// interface lets a request-scoped repo wrap the process-wide pool without
// owning it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Repo struct{ db Execer }

func New(db Execer) *Repo { return &Repo{db: db} }

func (r *Repo) Insert(ctx context.Context, s domain.Subscriber) error {
	_, err := r.db.ExecContext(ctx, insertSubscriptionSQL,
		s.ID.String(),
		s.Email,
		s.Name,
		s.SubscribedAt,
	)
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == errDupEntry {
		return domain.ErrDuplicate
	}
	return fmt.Errorf("insert subscription: %w", err)
}

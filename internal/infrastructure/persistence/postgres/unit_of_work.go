package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/satriyop/enteraksi/internal/domain/course"
	"github.com/satriyop/enteraksi/internal/domain/enrollment"
	"github.com/satriyop/enteraksi/internal/domain/learningpath"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/uow"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// UnitOfWorkFactory opens one pgx transaction per unit of work.
type UnitOfWorkFactory struct {
	conn *Connection
	opts TxOptions
}

// NewUnitOfWorkFactory creates a factory using DefaultTxOptions.
func NewUnitOfWorkFactory(conn *Connection) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{conn: conn, opts: DefaultTxOptions()}
}

// Begin implements uow.Factory.
func (f *UnitOfWorkFactory) Begin(ctx context.Context) (uow.UnitOfWork, error) {
	tx, err := f.conn.BeginTx(ctx, f.opts)
	if err != nil {
		return nil, err
	}
	return &unitOfWork{tx: tx, repos: repos{q: tx}}, nil
}

// Repositories returns pool-backed repositories for reads outside a unit of work.
func (c *Connection) Repositories() uow.Repositories {
	return repos{q: c.Pool()}
}

type unitOfWork struct {
	uow.Recorder
	repos
	tx   pgx.Tx
	once sync.Once
	done error
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	u.once.Do(func() {
		if err := u.tx.Commit(ctx); err != nil {
			u.done = mapError("uow", "Commit", err)
		}
	})
	return u.done
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	u.once.Do(func() {
		if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			u.done = fmt.Errorf("rollback: %w", err)
		}
	})
	return u.done
}

type repos struct{ q Querier }

func (r repos) Courses() course.Repository                            { return &CatalogRepository{q: r.q} }
func (r repos) Enrollments() enrollment.Repository                    { return &EnrollmentRepository{q: r.q} }
func (r repos) LessonProgress() enrollment.LessonProgressRepository   { return &LessonProgressRepository{q: r.q} }
func (r repos) Paths() learningpath.Repository                        { return &PathRepository{q: r.q} }
func (r repos) PathEnrollments() learningpath.EnrollmentRepository    { return &PathEnrollmentRepository{q: r.q} }
func (r repos) CourseProgress() learningpath.CourseProgressRepository { return &CourseProgressRepository{q: r.q} }

// nullable maps an empty id to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// requireRow turns a zero-row UPDATE into a not-found error.
func requireRow(rowsAffected int64, domain, entity, id string) error {
	if rowsAffected == 0 {
		return shared.NotFound(domain, entity, id)
	}
	return nil
}

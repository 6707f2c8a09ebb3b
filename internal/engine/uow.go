package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"db-sync/internal/database"
	"db-sync/internal/retry"

	"github.com/gookit/slog"
)

const savepointName = "db_sync_row"

// Statement is one row-level write. Key identifies the row in error reports.
type Statement struct {
	SQL  string
	Args []any
	Key  string
}

type RowError struct {
	Key string
	Err error
}

func (e RowError) String() string {
	return fmt.Sprintf("%s: %v", e.Key, e.Err)
}

// Outcome is what a committed batch achieved.
type Outcome struct {
	Applied  int
	Affected int64
	Failures []RowError
}

// UnitOfWork applies a batch of statements in one transaction on one
// connection. Statement errors that are not transient are contained to
// their row. A transient error rolls the whole transaction back and the
// batch is replayed from its first statement under the endpoint's retry
// policy, since deadlocks and serialization failures leave the server-side
// transaction aborted or already rolled back.
type UnitOfWork struct {
	db       Database
	throttle time.Duration
}

func NewUnitOfWork(db Database, throttle time.Duration) *UnitOfWork {
	return &UnitOfWork{db: db, throttle: throttle}
}

// unrecoverable errors abort the attempt instead of being recorded per row
func unrecoverable(ctx context.Context, err error) bool {
	var exhausted *retry.ExhaustedError
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &exhausted) ||
		database.IsTransient(err)
}

func (u *UnitOfWork) Apply(ctx context.Context, stmts []Statement) (*Outcome, error) {
	out, err := retry.Do(ctx, u.db.RetryPolicy(), database.IsTransient, u.db.Name()+" batch", func(ctx context.Context) (*Outcome, error) {
		return u.attempt(ctx, stmts)
	})
	if err != nil {
		return nil, newError(classify(err), "apply batch", err)
	}
	return out, nil
}

// attempt runs the batch once. Any error it returns has already rolled the
// transaction back.
func (u *UnitOfWork) attempt(ctx context.Context, stmts []Statement) (*Outcome, error) {
	tx, err := u.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	abort := func(op string, err error) (*Outcome, error) {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Errorf("%s: rollback failed: %v", u.db.Name(), rbErr)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	save, rollbackTo, release := u.db.Dialect().SavepointQueries(savepointName)
	out := &Outcome{}

	for i, st := range stmts {
		if i > 0 && u.throttle > 0 {
			select {
			case <-ctx.Done():
				return abort("throttle", ctx.Err())
			case <-time.After(u.throttle):
			}
		}

		if save != "" {
			if _, err := tx.Exec(ctx, save); err != nil {
				return abort("savepoint", err)
			}
		}

		n, err := tx.Exec(ctx, st.SQL, st.Args...)
		if err != nil {
			if unrecoverable(ctx, err) {
				return abort(fmt.Sprintf("apply row %s", st.Key), err)
			}
			out.Failures = append(out.Failures, RowError{Key: st.Key, Err: err})
			if rollbackTo != "" {
				if _, err := tx.Exec(ctx, rollbackTo); err != nil {
					return abort("rollback to savepoint", err)
				}
			}
			continue
		}

		if release != "" {
			if _, err := tx.Exec(ctx, release); err != nil {
				return abort("release savepoint", err)
			}
		}
		out.Applied++
		out.Affected += n
	}

	if err := tx.Commit(); err != nil {
		// a failed commit leaves the transaction finished; Rollback only releases the connection
		_ = tx.Rollback()
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

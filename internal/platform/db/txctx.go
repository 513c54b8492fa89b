package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type contextKey string

const txKey contextKey = "db_tx"

// ErrTimeout is returned when a storage call exceeds its deadline. It is
// retryable by the caller; the underlying operation may or may not have
// taken effect and must be idempotent at the next layer up.
var ErrTimeout = errors.New("db: storage call exceeded deadline")

// WithTx returns a context carrying an open transaction. Repositories that
// support transactional composition pick it up via TxFromContext so a
// service-level unit of work (allocate counter + insert record) shares one
// transaction.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// TxFromContext retrieves the transaction from context, or nil when the
// call is not running inside a unit of work.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505), used to detect an insert racing a prior
// existence check.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// WithTimeout derives a deadline-bound context for a single storage call.
// The returned translate function maps context.DeadlineExceeded onto
// ErrTimeout so callers can distinguish a retryable timeout from other
// storage failures with errors.Is.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc, func(error) error) {
	tctx, cancel := context.WithTimeout(ctx, d)
	translate := func(err error) error {
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return err
	}
	return tctx, cancel, translate
}

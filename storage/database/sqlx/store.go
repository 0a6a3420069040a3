// Package sqlxrepos implements the repositories on postgres with sqlx.
// A unit of work is a database transaction; rows read for update are locked with SELECT ... FOR UPDATE.
package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/masomo/feeledger/core"
	"github.com/masomo/feeledger/core/fee"
)

// querier is what repositories need from either *sqlx.DB or *sqlx.Tx.
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

var (
	_ querier = (*sqlx.DB)(nil)
	_ querier = (*sqlx.Tx)(nil)

	_ fee.Store = (*feeStore)(nil)
)

// postgres error codes
const (
	pqUniqueViolation    = "23505"
	pqInvalidTextRepr    = "22P02" // eg. a malformed uuid
	pqForeignKeyViolated = "23503"
)

// mapErr translates driver errors to domain ones: no rows (or a malformed id) to `notFound`,
// unique violations to `conflict`.
func mapErr(err error, notFound, conflict error) error {
	if err == nil {
		return nil
	}
	if errors.Cause(err) == sql.ErrNoRows && notFound != nil {
		return notFound
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch {
	case pqErr.Code == pqUniqueViolation && conflict != nil:
		return conflict
	case pqErr.Code == pqInvalidTextRepr && notFound != nil:
		return notFound
	case pqErr.Code == pqForeignKeyViolated:
		return core.NewConflictError(pqErr.Message)
	}
	return err
}

// checkAffected returns `notFound` when a write matched no row.
func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reading affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// inTx reports whether `q` runs inside a unit of work.
func inTx(q querier) bool {
	_, ok := q.(*sqlx.Tx)
	return ok
}

// Savepoint wraps fn in a SAVEPOINT when running inside a transaction: after a failed statement
// postgres rejects every other one until the transaction is rolled back to a savepoint.
func (repo *feeRepository) Savepoint(ctx context.Context, fn func() error) error {
	if !inTx(repo.q) {
		return fn()
	}
	if _, err := repo.q.ExecContext(ctx, `SAVEPOINT fee_row`); err != nil {
		return errors.Wrapf(fee.ErrUnitOfWorkAborted, "creating savepoint: %v", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := repo.q.ExecContext(ctx, `ROLLBACK TO SAVEPOINT fee_row`); rbErr != nil {
			return errors.Wrapf(fee.ErrUnitOfWorkAborted, "rolling back to savepoint: %v (after: %v)", rbErr, err)
		}
		if _, relErr := repo.q.ExecContext(ctx, `RELEASE SAVEPOINT fee_row`); relErr != nil {
			return errors.Wrapf(fee.ErrUnitOfWorkAborted, "releasing savepoint: %v (after: %v)", relErr, err)
		}
		return err
	}
	if _, err := repo.q.ExecContext(ctx, `RELEASE SAVEPOINT fee_row`); err != nil {
		return errors.Wrapf(fee.ErrUnitOfWorkAborted, "releasing savepoint: %v", err)
	}
	return nil
}

type feeStore struct {
	*feeRepository
	db *sqlx.DB
}

func NewFeeStore(db *sqlx.DB) fee.Store {
	return &feeStore{feeRepository: &feeRepository{q: db}, db: db}
}

func (s *feeStore) Atomic(ctx context.Context, fn func(tx fee.Repository) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if err = tx.Commit(); err != nil {
			err = errors.Wrap(err, "committing transaction")
		}
	}()
	return fn(&feeRepository{q: tx})
}

func (s *feeStore) Wallet() fee.WalletLedger {
	return &storeWallet{s: s}
}

package inmemdb

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/masomo/feeledger/core/fee"
)

// feeStore reads the committed tables and writes through units of work.
type feeStore struct {
	db *DB
}

func NewFeeStore(db *DB) fee.Store {
	return &feeStore{db: db}
}

func (s *feeStore) read() *feeRepository {
	return &feeRepository{t: s.db.view()}
}

func (s *feeStore) Atomic(_ context.Context, fn func(tx fee.Repository) error) error {
	return s.db.update(func(t *tables) error {
		return fn(&feeRepository{t: t})
	})
}

func (s *feeStore) Wallet() fee.WalletLedger {
	return &storeWallet{s: s}
}

// Savepoint runs fn as is: outside of a unit of work every write commits on its own.
func (s *feeStore) Savepoint(_ context.Context, fn func() error) error {
	return fn()
}

func (s *feeStore) GetClass(ctx context.Context, id string) (fee.Class, error) {
	return s.read().GetClass(ctx, id)
}

func (s *feeStore) GetStudent(ctx context.Context, id string) (fee.Student, error) {
	return s.read().GetStudent(ctx, id)
}

func (s *feeStore) ListStudentsInClass(ctx context.Context, classID string) ([]fee.Student, error) {
	return s.read().ListStudentsInClass(ctx, classID)
}

func (s *feeStore) CreateCategory(ctx context.Context, cat fee.Category) (res fee.Category, err error) {
	err = s.Atomic(ctx, func(tx fee.Repository) error {
		res, err = tx.CreateCategory(ctx, cat)
		return err
	})
	return res, err
}

func (s *feeStore) GetCategory(ctx context.Context, id string) (fee.Category, error) {
	return s.read().GetCategory(ctx, id)
}

func (s *feeStore) QueryCategories(ctx context.Context) ([]fee.Category, error) {
	return s.read().QueryCategories(ctx)
}

func (s *feeStore) UpdateCategory(ctx context.Context, cat fee.Category) (res fee.Category, err error) {
	err = s.Atomic(ctx, func(tx fee.Repository) error {
		res, err = tx.UpdateCategory(ctx, cat)
		return err
	})
	return res, err
}

func (s *feeStore) DeleteCategory(ctx context.Context, id string) error {
	return s.Atomic(ctx, func(tx fee.Repository) error {
		return tx.DeleteCategory(ctx, id)
	})
}

func (s *feeStore) CountStructuresByCategory(ctx context.Context, categoryID string) (int, error) {
	return s.read().CountStructuresByCategory(ctx, categoryID)
}

func (s *feeStore) CreateStructure(ctx context.Context, st fee.Structure) (res fee.Structure, err error) {
	err = s.Atomic(ctx, func(tx fee.Repository) error {
		res, err = tx.CreateStructure(ctx, st)
		return err
	})
	return res, err
}

func (s *feeStore) GetStructure(ctx context.Context, id string) (fee.Structure, error) {
	return s.read().GetStructure(ctx, id)
}

func (s *feeStore) QueryStructuresByClass(ctx context.Context, classID string) ([]fee.Structure, error) {
	return s.read().QueryStructuresByClass(ctx, classID)
}

func (s *feeStore) UpdateStructure(ctx context.Context, st fee.Structure) (res fee.Structure, err error) {
	err = s.Atomic(ctx, func(tx fee.Repository) error {
		res, err = tx.UpdateStructure(ctx, st)
		return err
	})
	return res, err
}

func (s *feeStore) DeleteStructure(ctx context.Context, id string) error {
	return s.Atomic(ctx, func(tx fee.Repository) error {
		return tx.DeleteStructure(ctx, id)
	})
}

func (s *feeStore) CreateLedger(ctx context.Context, l fee.Ledger) (res fee.Ledger, err error) {
	err = s.Atomic(ctx, func(tx fee.Repository) error {
		res, err = tx.CreateLedger(ctx, l)
		return err
	})
	return res, err
}

func (s *feeStore) GetLedger(ctx context.Context, id string, forUpdate bool) (fee.Ledger, error) {
	return s.read().GetLedger(ctx, id, forUpdate)
}

func (s *feeStore) QueryLedgers(ctx context.Context, filter fee.LedgerFilter) ([]fee.Ledger, error) {
	return s.read().QueryLedgers(ctx, filter)
}

func (s *feeStore) UpdateLedger(ctx context.Context, l fee.Ledger) (res fee.Ledger, err error) {
	err = s.Atomic(ctx, func(tx fee.Repository) error {
		res, err = tx.UpdateLedger(ctx, l)
		return err
	})
	return res, err
}

func (s *feeStore) DeleteLedger(ctx context.Context, id string) error {
	return s.Atomic(ctx, func(tx fee.Repository) error {
		return tx.DeleteLedger(ctx, id)
	})
}

func (s *feeStore) CreateTransaction(ctx context.Context, txn fee.Transaction) (res fee.Transaction, err error) {
	err = s.Atomic(ctx, func(tx fee.Repository) error {
		res, err = tx.CreateTransaction(ctx, txn)
		return err
	})
	return res, err
}

func (s *feeStore) GetTransaction(ctx context.Context, transactionID string) (fee.Transaction, error) {
	return s.read().GetTransaction(ctx, transactionID)
}

func (s *feeStore) GetTransactionByIdempotencyKey(ctx context.Context, key string) (fee.Transaction, error) {
	return s.read().GetTransactionByIdempotencyKey(ctx, key)
}

func (s *feeStore) QueryTransactions(ctx context.Context, filter fee.TransactionFilter) ([]fee.Transaction, error) {
	return s.read().QueryTransactions(ctx, filter)
}

func (s *feeStore) UnlinkTransactions(ctx context.Context, ledgerIDs []string, remark string) (count int, err error) {
	err = s.Atomic(ctx, func(tx fee.Repository) error {
		count, err = tx.UnlinkTransactions(ctx, ledgerIDs, remark)
		return err
	})
	return count, err
}

// storeWallet runs each wallet mutation in its own unit of work.
type storeWallet struct {
	s *feeStore
}

func (w *storeWallet) Balance(ctx context.Context, studentID string) (decimal.Decimal, error) {
	return w.s.read().Wallet().Balance(ctx, studentID)
}

func (w *storeWallet) Credit(
	ctx context.Context, studentID string, amount decimal.Decimal, reason fee.WalletReason, ref string,
) (balance decimal.Decimal, err error) {
	err = w.s.Atomic(ctx, func(tx fee.Repository) error {
		balance, err = tx.Wallet().Credit(ctx, studentID, amount, reason, ref)
		return err
	})
	return balance, err
}

func (w *storeWallet) Debit(
	ctx context.Context, studentID string, amount decimal.Decimal, reason fee.WalletReason, ref string,
) (balance decimal.Decimal, err error) {
	err = w.s.Atomic(ctx, func(tx fee.Repository) error {
		balance, err = tx.Wallet().Debit(ctx, studentID, amount, reason, ref)
		return err
	})
	return balance, err
}

func (w *storeWallet) Entries(ctx context.Context, studentID string) ([]fee.WalletEntry, error) {
	return w.s.read().Wallet().Entries(ctx, studentID)
}

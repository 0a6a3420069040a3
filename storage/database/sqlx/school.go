package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/masomo/feeledger/core"
	"github.com/masomo/feeledger/core/fee"
)

var _ fee.WalletLedger = (*walletLedger)(nil)

const (
	classColumns   = `id, name, year, is_active`
	studentColumns = `id, class_id, user_id, parent_id, name, wallet_balance`
)

func (repo *feeRepository) GetClass(ctx context.Context, id string) (fee.Class, error) {
	var class fee.Class
	if err := repo.q.GetContext(ctx, &class, `SELECT `+classColumns+` FROM class WHERE id = $1`, id); err != nil {
		return fee.Class{}, mapErr(err, fee.ErrClassNotFound, nil)
	}
	return class, nil
}

func (repo *feeRepository) GetStudent(ctx context.Context, id string) (fee.Student, error) {
	var std fee.Student
	if err := repo.q.GetContext(ctx, &std, `SELECT `+studentColumns+` FROM student WHERE id = $1`, id); err != nil {
		return fee.Student{}, mapErr(err, fee.ErrStudentNotFound, nil)
	}
	return std, nil
}

func (repo *feeRepository) ListStudentsInClass(ctx context.Context, classID string) ([]fee.Student, error) {
	stds := make([]fee.Student, 0)
	q := `SELECT ` + studentColumns + ` FROM student WHERE class_id = $1 ORDER BY id`
	if err := repo.q.SelectContext(ctx, &stds, q, classID); err != nil {
		return nil, mapErr(err, fee.ErrClassNotFound, nil)
	}
	return stds, nil
}

type walletLedger struct {
	q querier
}

// balanceQuery locks the student row when `forUpdate` is set, so concurrent units of work
// cannot plan to spend the same balance.
func balanceQuery(forUpdate bool) string {
	q := `SELECT wallet_balance FROM student WHERE id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	return q
}

func (w *walletLedger) Balance(ctx context.Context, studentID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	if err := w.q.GetContext(ctx, &balance, balanceQuery(inTx(w.q)), studentID); err != nil {
		return decimal.Zero, mapErr(err, fee.ErrStudentNotFound, nil)
	}
	return balance, nil
}

func (w *walletLedger) Credit(
	ctx context.Context, studentID string, amount decimal.Decimal, reason fee.WalletReason, ref string,
) (decimal.Decimal, error) {
	if amount = core.RoundMoney(amount); !amount.IsPositive() {
		return decimal.Zero, fee.ErrInvalidWalletAmount
	}
	var balance decimal.Decimal
	q := `UPDATE student SET wallet_balance = wallet_balance + $2 WHERE id = $1 RETURNING wallet_balance`
	if err := w.q.GetContext(ctx, &balance, q, studentID, amount); err != nil {
		return decimal.Zero, mapErr(err, fee.ErrStudentNotFound, nil)
	}
	return balance, w.record(ctx, studentID, amount, reason, ref)
}

// Debit only matches the student row while the balance covers `amount`.
func (w *walletLedger) Debit(
	ctx context.Context, studentID string, amount decimal.Decimal, reason fee.WalletReason, ref string,
) (decimal.Decimal, error) {
	if amount = core.RoundMoney(amount); !amount.IsPositive() {
		return decimal.Zero, fee.ErrInvalidWalletAmount
	}
	var balance decimal.Decimal
	q := `UPDATE student SET wallet_balance = wallet_balance - $2
		WHERE id = $1 AND wallet_balance >= $2 RETURNING wallet_balance`
	if err := w.q.GetContext(ctx, &balance, q, studentID, amount); err != nil {
		err = mapErr(err, fee.ErrInsufficientWallet, nil)
		if err == fee.ErrInsufficientWallet {
			if _, err := w.Balance(ctx, studentID); err != nil {
				return decimal.Zero, err
			}
		}
		return decimal.Zero, err
	}
	return balance, w.record(ctx, studentID, amount.Neg(), reason, ref)
}

func (w *walletLedger) record(ctx context.Context, studentID string, amount decimal.Decimal, reason fee.WalletReason, ref string) error {
	entry := fee.WalletEntry{
		ID:        uuid.New().String(),
		StudentID: studentID,
		Amount:    amount,
		Reason:    reason,
		Reference: ref,
		CreatedAt: time.Now().UTC(),
	}
	q := `INSERT INTO wallet_entry (id, student_id, amount, reason, reference, created_at)
		VALUES (:id, :student_id, :amount, :reason, :reference, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, w.q, q, entry); err != nil {
		return errors.Wrap(err, "recording wallet entry")
	}
	return nil
}

func (w *walletLedger) Entries(ctx context.Context, studentID string) ([]fee.WalletEntry, error) {
	entries := make([]fee.WalletEntry, 0)
	q := `SELECT id, student_id, amount, reason, reference, created_at FROM wallet_entry
		WHERE student_id = $1 ORDER BY created_at, id`
	if err := w.q.SelectContext(ctx, &entries, q, studentID); err != nil {
		return nil, mapErr(err, fee.ErrStudentNotFound, nil)
	}
	return entries, nil
}

// storeWallet runs every wallet mutation in its own unit of work, so the balance and its
// entry are written together.
type storeWallet struct {
	s *feeStore
}

func (w *storeWallet) Balance(ctx context.Context, studentID string) (decimal.Decimal, error) {
	return w.s.feeRepository.Wallet().Balance(ctx, studentID)
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
	return w.s.feeRepository.Wallet().Entries(ctx, studentID)
}

// SchoolRepository seeds the class & student directory (owned by the school administration).
type SchoolRepository struct {
	db *sqlx.DB
}

func NewSchoolRepository(db *sqlx.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

func (repo *SchoolRepository) AddClass(ctx context.Context, class fee.Class) (fee.Class, error) {
	if class.ID == "" {
		class.ID = uuid.New().String()
	}
	q := `INSERT INTO class (` + classColumns + `) VALUES (:id, :name, :year, :is_active)`
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, class); err != nil {
		return fee.Class{}, errors.Wrap(err, "inserting class")
	}
	return class, nil
}

func (repo *SchoolRepository) AddStudent(ctx context.Context, std fee.Student) (fee.Student, error) {
	if std.ID == "" {
		std.ID = uuid.New().String()
	}
	std.WalletBalance = core.RoundMoney(std.WalletBalance)
	q := `INSERT INTO student (` + studentColumns + `)
		VALUES (:id, :class_id, :user_id, :parent_id, :name, :wallet_balance)`
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, std); err != nil {
		return fee.Student{}, mapErr(err, nil, nil)
	}
	return std, nil
}

package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/masomo/feeledger/core"
	"github.com/masomo/feeledger/core/fee"
)

var _ fee.WalletLedger = (*walletLedger)(nil)

// classes & students are owned by the school administration; these seed them.

func (db *DB) AddClass(class fee.Class) (fee.Class, error) {
	if class.ID == "" {
		class.ID = uuid.New().String()
	}
	err := db.update(func(t *tables) error {
		t.classes[class.ID] = class
		return nil
	})
	return class, err
}

func (db *DB) AddStudent(std fee.Student) (fee.Student, error) {
	if std.ID == "" {
		std.ID = uuid.New().String()
	}
	std.WalletBalance = core.RoundMoney(std.WalletBalance)
	err := db.update(func(t *tables) error {
		if _, ok := t.classes[std.ClassID]; !ok {
			return fee.ErrClassNotFound
		}
		t.students[std.ID] = std
		return nil
	})
	return std, err
}

func (repo *feeRepository) GetClass(_ context.Context, id string) (fee.Class, error) {
	if class, ok := repo.t.classes[id]; ok {
		return class, nil
	}
	return fee.Class{}, fee.ErrClassNotFound
}

func (repo *feeRepository) GetStudent(_ context.Context, id string) (fee.Student, error) {
	if std, ok := repo.t.students[id]; ok {
		return std, nil
	}
	return fee.Student{}, fee.ErrStudentNotFound
}

func (repo *feeRepository) ListStudentsInClass(_ context.Context, classID string) ([]fee.Student, error) {
	stds := make([]fee.Student, 0)
	for _, std := range repo.t.students {
		if std.ClassID == classID {
			stds = append(stds, std)
		}
	}
	sort.Slice(stds, func(i, j int) bool { return stds[i].ID < stds[j].ID })
	return stds, nil
}

type walletLedger struct {
	t *tables
}

func (w *walletLedger) Balance(_ context.Context, studentID string) (decimal.Decimal, error) {
	std, ok := w.t.students[studentID]
	if !ok {
		return decimal.Zero, fee.ErrStudentNotFound
	}
	return std.WalletBalance, nil
}

func (w *walletLedger) Credit(
	_ context.Context, studentID string, amount decimal.Decimal, reason fee.WalletReason, ref string,
) (decimal.Decimal, error) {
	if amount = core.RoundMoney(amount); !amount.IsPositive() {
		return decimal.Zero, fee.ErrInvalidWalletAmount
	}
	return w.move(studentID, amount, reason, ref)
}

func (w *walletLedger) Debit(
	_ context.Context, studentID string, amount decimal.Decimal, reason fee.WalletReason, ref string,
) (decimal.Decimal, error) {
	if amount = core.RoundMoney(amount); !amount.IsPositive() {
		return decimal.Zero, fee.ErrInvalidWalletAmount
	}
	return w.move(studentID, amount.Neg(), reason, ref)
}

// move applies a signed amount to the balance and records the entry.
func (w *walletLedger) move(studentID string, amount decimal.Decimal, reason fee.WalletReason, ref string) (decimal.Decimal, error) {
	std, ok := w.t.students[studentID]
	if !ok {
		return decimal.Zero, fee.ErrStudentNotFound
	}
	balance := std.WalletBalance.Add(amount)
	if balance.IsNegative() {
		return decimal.Zero, fee.ErrInsufficientWallet
	}

	std.WalletBalance = balance
	w.t.students[studentID] = std
	w.t.wallet = append(w.t.wallet, fee.WalletEntry{
		ID:        uuid.New().String(),
		StudentID: studentID,
		Amount:    amount,
		Reason:    reason,
		Reference: ref,
		CreatedAt: time.Now().UTC(),
	})
	return balance, nil
}

func (w *walletLedger) Entries(_ context.Context, studentID string) ([]fee.WalletEntry, error) {
	entries := make([]fee.WalletEntry, 0)
	for _, e := range w.t.wallet {
		if e.StudentID == studentID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

package fee

import (
	"context"

	"github.com/shopspring/decimal"
)

type (
	// ClassDirectory looks up class cohorts.
	ClassDirectory interface {
		GetClass(ctx context.Context, id string) (Class, error)
	}

	// StudentDirectory looks up students; wallet balances move only through WalletLedger.
	StudentDirectory interface {
		GetStudent(ctx context.Context, id string) (Student, error)
		ListStudentsInClass(ctx context.Context, classID string) ([]Student, error)
	}

	// WalletLedger is the only way to change a student's wallet balance.
	// Every call records a WalletEntry and returns the new balance.
	WalletLedger interface {
		// Balance reads the balance; within a unit of work the wallet stays locked until it ends.
		Balance(ctx context.Context, studentID string) (decimal.Decimal, error)
		Credit(ctx context.Context, studentID string, amount decimal.Decimal, reason WalletReason, ref string) (decimal.Decimal, error)
		// Debit fails with ErrInsufficientWallet if the balance would go negative.
		Debit(ctx context.Context, studentID string, amount decimal.Decimal, reason WalletReason, ref string) (decimal.Decimal, error)
		Entries(ctx context.Context, studentID string) ([]WalletEntry, error)
	}

	CategoryRepository interface {
		CreateCategory(ctx context.Context, cat Category) (Category, error)
		GetCategory(ctx context.Context, id string) (Category, error)
		QueryCategories(ctx context.Context) ([]Category, error)
		UpdateCategory(ctx context.Context, cat Category) (Category, error)
		DeleteCategory(ctx context.Context, id string) error
		CountStructuresByCategory(ctx context.Context, categoryID string) (int, error)
	}

	StructureRepository interface {
		CreateStructure(ctx context.Context, st Structure) (Structure, error)
		GetStructure(ctx context.Context, id string) (Structure, error)
		QueryStructuresByClass(ctx context.Context, classID string) ([]Structure, error)
		UpdateStructure(ctx context.Context, st Structure) (Structure, error)
		DeleteStructure(ctx context.Context, id string) error
	}

	LedgerRepository interface {
		CreateLedger(ctx context.Context, l Ledger) (Ledger, error)
		// GetLedger returns the row, locked until the unit of work ends when `forUpdate` is set.
		GetLedger(ctx context.Context, id string, forUpdate bool) (Ledger, error)
		QueryLedgers(ctx context.Context, filter LedgerFilter) ([]Ledger, error)
		// UpdateLedger saves `l` if its Version is still current (else ErrVersionConflict)
		// and returns it with the Version bumped.
		UpdateLedger(ctx context.Context, l Ledger) (Ledger, error)
		DeleteLedger(ctx context.Context, id string) error
	}

	TransactionRepository interface {
		CreateTransaction(ctx context.Context, txn Transaction) (Transaction, error)
		GetTransaction(ctx context.Context, transactionID string) (Transaction, error)
		GetTransactionByIdempotencyKey(ctx context.Context, key string) (Transaction, error)
		// QueryTransactions returns the matching transactions, newest first.
		QueryTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
		// UnlinkTransactions clears the ledger reference of every transaction of `ledgerIDs`,
		// appending `remark` to their remarks. It returns the number of unlinked transactions.
		UnlinkTransactions(ctx context.Context, ledgerIDs []string, remark string) (int, error)
	}

	// Repository is everything the fee service reads and writes.
	Repository interface {
		ClassDirectory
		StudentDirectory
		CategoryRepository
		StructureRepository
		LedgerRepository
		TransactionRepository
		Wallet() WalletLedger
		// Savepoint runs fn so that, if it fails, its changes are undone and the unit of work
		// can go on. When the undo itself fails, the error's cause is ErrUnitOfWorkAborted.
		Savepoint(ctx context.Context, fn func() error) error
	}

	// Store is a Repository able to run units of work.
	Store interface {
		Repository
		// Atomic runs fn inside a unit of work: every change made through `tx` is applied
		// if fn returns nil, none of them otherwise.
		Atomic(ctx context.Context, fn func(tx Repository) error) error
	}
)

package inmemdb

import (
	"context"
	"sort"

	"github.com/masomo/feeledger/core"
	"github.com/masomo/feeledger/core/fee"
)

var (
	_ fee.Repository = (*feeRepository)(nil)
	_ fee.Store      = (*feeStore)(nil)
)

// feeRepository works on one set of tables: the committed ones (reads) or a unit of work's copy.
type feeRepository struct {
	t *tables
}

func (repo *feeRepository) Wallet() fee.WalletLedger {
	return &walletLedger{t: repo.t}
}

// Savepoint restores the tables as they were before fn when it fails.
func (repo *feeRepository) Savepoint(_ context.Context, fn func() error) error {
	snapshot := repo.t.clone()
	if err := fn(); err != nil {
		*repo.t = *snapshot
		return err
	}
	return nil
}

// categories

func (repo *feeRepository) CreateCategory(_ context.Context, cat fee.Category) (fee.Category, error) {
	for _, c := range repo.t.categories {
		if c.Name == cat.Name {
			return fee.Category{}, fee.ErrCategoryExists
		}
	}
	repo.t.categories[cat.ID] = cat
	return cat, nil
}

func (repo *feeRepository) GetCategory(_ context.Context, id string) (fee.Category, error) {
	if cat, ok := repo.t.categories[id]; ok {
		return cat, nil
	}
	return fee.Category{}, fee.ErrCategoryNotFound
}

func (repo *feeRepository) QueryCategories(_ context.Context) ([]fee.Category, error) {
	cats := make([]fee.Category, 0, len(repo.t.categories))
	for _, cat := range repo.t.categories {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
	return cats, nil
}

func (repo *feeRepository) UpdateCategory(_ context.Context, cat fee.Category) (fee.Category, error) {
	if _, ok := repo.t.categories[cat.ID]; !ok {
		return fee.Category{}, fee.ErrCategoryNotFound
	}
	for _, c := range repo.t.categories {
		if c.Name == cat.Name && c.ID != cat.ID {
			return fee.Category{}, fee.ErrCategoryExists
		}
	}
	repo.t.categories[cat.ID] = cat
	return cat, nil
}

func (repo *feeRepository) DeleteCategory(_ context.Context, id string) error {
	if _, ok := repo.t.categories[id]; !ok {
		return fee.ErrCategoryNotFound
	}
	delete(repo.t.categories, id)
	return nil
}

func (repo *feeRepository) CountStructuresByCategory(_ context.Context, categoryID string) (int, error) {
	var count int
	for _, st := range repo.t.structures {
		if st.CategoryID == categoryID {
			count++
		}
	}
	return count, nil
}

// structures

func (repo *feeRepository) checkStructureUniqueness(st fee.Structure) error {
	for _, s := range repo.t.structures {
		if s.ID != st.ID && s.ClassID == st.ClassID && s.CategoryID == st.CategoryID && s.Title == st.Title {
			return fee.ErrStructureExists
		}
	}
	return nil
}

func (repo *feeRepository) CreateStructure(_ context.Context, st fee.Structure) (fee.Structure, error) {
	if _, ok := repo.t.classes[st.ClassID]; !ok {
		return fee.Structure{}, fee.ErrClassNotFound
	}
	if _, ok := repo.t.categories[st.CategoryID]; !ok {
		return fee.Structure{}, fee.ErrCategoryNotFound
	}
	if err := repo.checkStructureUniqueness(st); err != nil {
		return fee.Structure{}, err
	}
	repo.t.structures[st.ID] = st
	return st, nil
}

func (repo *feeRepository) GetStructure(_ context.Context, id string) (fee.Structure, error) {
	if st, ok := repo.t.structures[id]; ok {
		return st, nil
	}
	return fee.Structure{}, fee.ErrStructureNotFound
}

func (repo *feeRepository) QueryStructuresByClass(_ context.Context, classID string) ([]fee.Structure, error) {
	sts := make([]fee.Structure, 0)
	for _, st := range repo.t.structures {
		if st.ClassID == classID {
			sts = append(sts, st)
		}
	}
	sort.Slice(sts, func(i, j int) bool {
		if sts[i].DueDate.Equal(sts[j].DueDate) {
			return sts[i].Title < sts[j].Title
		}
		return sts[i].DueDate.Before(sts[j].DueDate)
	})
	return sts, nil
}

func (repo *feeRepository) UpdateStructure(_ context.Context, st fee.Structure) (fee.Structure, error) {
	if _, ok := repo.t.structures[st.ID]; !ok {
		return fee.Structure{}, fee.ErrStructureNotFound
	}
	if err := repo.checkStructureUniqueness(st); err != nil {
		return fee.Structure{}, err
	}
	repo.t.structures[st.ID] = st
	return st, nil
}

func (repo *feeRepository) DeleteStructure(_ context.Context, id string) error {
	if _, ok := repo.t.structures[id]; !ok {
		return fee.ErrStructureNotFound
	}
	for _, l := range repo.t.ledgers {
		if l.StructureID == id {
			return core.NewConflictError("fee structure still has ledger rows")
		}
	}
	delete(repo.t.structures, id)
	return nil
}

// ledgers

func (repo *feeRepository) CreateLedger(_ context.Context, l fee.Ledger) (fee.Ledger, error) {
	if _, ok := repo.t.students[l.StudentID]; !ok {
		return fee.Ledger{}, fee.ErrStudentNotFound
	}
	if _, ok := repo.t.structures[l.StructureID]; !ok {
		return fee.Ledger{}, fee.ErrStructureNotFound
	}
	for _, other := range repo.t.ledgers {
		if other.StudentID == l.StudentID && other.StructureID == l.StructureID {
			return fee.Ledger{}, fee.ErrLedgerExists
		}
	}
	l.Version = 1
	repo.t.ledgers[l.ID] = l
	return l, nil
}

// GetLedger ignores `forUpdate`: units of work are serialized.
func (repo *feeRepository) GetLedger(_ context.Context, id string, _ bool) (fee.Ledger, error) {
	if l, ok := repo.t.ledgers[id]; ok {
		return l, nil
	}
	return fee.Ledger{}, fee.ErrLedgerNotFound
}

func (repo *feeRepository) QueryLedgers(_ context.Context, filter fee.LedgerFilter) ([]fee.Ledger, error) {
	statuses := make(map[fee.Status]bool, len(filter.Statuses))
	for _, s := range filter.Statuses {
		statuses[s] = true
	}

	ledgers := make([]fee.Ledger, 0)
	for _, l := range repo.t.ledgers {
		switch {
		case filter.StudentID != "" && l.StudentID != filter.StudentID:
			continue
		case filter.ClassID != "" && l.ClassID != filter.ClassID:
			continue
		case filter.StructureID != "" && l.StructureID != filter.StructureID:
			continue
		case len(statuses) > 0 && !statuses[l.Status]:
			continue
		}
		ledgers = append(ledgers, l)
	}
	sort.Slice(ledgers, func(i, j int) bool {
		if !ledgers[i].DueDate.Equal(ledgers[j].DueDate) {
			return ledgers[i].DueDate.Before(ledgers[j].DueDate)
		}
		if ledgers[i].StudentID != ledgers[j].StudentID {
			return ledgers[i].StudentID < ledgers[j].StudentID
		}
		return ledgers[i].ID < ledgers[j].ID
	})
	return ledgers, nil
}

func (repo *feeRepository) UpdateLedger(_ context.Context, l fee.Ledger) (fee.Ledger, error) {
	stored, ok := repo.t.ledgers[l.ID]
	if !ok {
		return fee.Ledger{}, fee.ErrLedgerNotFound
	}
	if stored.Version != l.Version {
		return fee.Ledger{}, fee.ErrVersionConflict
	}
	l.Version++
	repo.t.ledgers[l.ID] = l
	return l, nil
}

func (repo *feeRepository) DeleteLedger(_ context.Context, id string) error {
	if _, ok := repo.t.ledgers[id]; !ok {
		return fee.ErrLedgerNotFound
	}
	delete(repo.t.ledgers, id)
	return nil
}

// transactions

func (repo *feeRepository) CreateTransaction(_ context.Context, txn fee.Transaction) (fee.Transaction, error) {
	for _, other := range repo.t.txns {
		if other.TransactionID == txn.TransactionID {
			return fee.Transaction{}, fee.ErrTransactionExists
		}
		if txn.IdempotencyKey.Valid && other.IdempotencyKey == txn.IdempotencyKey {
			return fee.Transaction{}, fee.ErrTransactionExists
		}
	}
	repo.t.txns[txn.ID] = txn
	return txn, nil
}

func (repo *feeRepository) GetTransaction(_ context.Context, transactionID string) (fee.Transaction, error) {
	for _, txn := range repo.t.txns {
		if txn.TransactionID == transactionID {
			return txn, nil
		}
	}
	return fee.Transaction{}, fee.ErrTransactionNotFound
}

func (repo *feeRepository) GetTransactionByIdempotencyKey(_ context.Context, key string) (fee.Transaction, error) {
	for _, txn := range repo.t.txns {
		if txn.IdempotencyKey.Valid && txn.IdempotencyKey.String == key {
			return txn, nil
		}
	}
	return fee.Transaction{}, fee.ErrTransactionNotFound
}

func (repo *feeRepository) QueryTransactions(_ context.Context, filter fee.TransactionFilter) ([]fee.Transaction, error) {
	ledgerIDs := make(map[string]bool, len(filter.LedgerIDs))
	for _, id := range filter.LedgerIDs {
		ledgerIDs[id] = true
	}

	txns := make([]fee.Transaction, 0)
	for _, txn := range repo.t.txns {
		switch {
		case filter.StudentID != "" && txn.StudentID != filter.StudentID:
			continue
		case len(ledgerIDs) > 0 && !ledgerIDs[txn.LedgerID.String]:
			continue
		case filter.Status != "" && txn.Status != filter.Status:
			continue
		case !filter.From.IsZero() && txn.PaidAt.Before(filter.From):
			continue
		case !filter.To.IsZero() && !txn.PaidAt.Before(filter.To):
			continue
		}
		txns = append(txns, txn)
	}
	sort.Slice(txns, func(i, j int) bool {
		if !txns[i].PaidAt.Equal(txns[j].PaidAt) {
			return txns[i].PaidAt.After(txns[j].PaidAt)
		}
		return txns[i].TransactionID > txns[j].TransactionID
	})
	return txns, nil
}

func (repo *feeRepository) UnlinkTransactions(_ context.Context, ledgerIDs []string, remark string) (int, error) {
	ids := make(map[string]bool, len(ledgerIDs))
	for _, id := range ledgerIDs {
		ids[id] = true
	}
	var count int
	for id, txn := range repo.t.txns {
		if !txn.LedgerID.Valid || !ids[txn.LedgerID.String] {
			continue
		}
		txn.LedgerID.String, txn.LedgerID.Valid = "", false
		txn.Remarks = core.AppendRemark(txn.Remarks, remark)
		repo.t.txns[id] = txn
		count++
	}
	return count, nil
}

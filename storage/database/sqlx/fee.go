package sqlxrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/masomo/feeledger/core"
	"github.com/masomo/feeledger/core/fee"
)

var _ fee.Repository = (*feeRepository)(nil)

const (
	categoryColumns    = `id, name, description, is_active, created_at, updated_at`
	structureColumns   = `id, class_id, category_id, title, description, amount, due_date, is_active, created_at, updated_at`
	ledgerColumns      = `id, student_id, class_id, structure_id, base_amount, discount_amount, fine_amount, total_payable, paid_amount, due_amount, status, due_date, academic_year, remarks, version, created_at, updated_at`
	transactionColumns = `id, transaction_id, ledger_id, student_id, amount, wallet_amount, method, status, collected_by, idempotency_key, remarks, paid_at, created_at`
)

// feeRepository runs on the database or, within a unit of work, on its transaction.
type feeRepository struct {
	q querier
}

func (repo *feeRepository) Wallet() fee.WalletLedger {
	return &walletLedger{q: repo.q}
}

// categories

func (repo *feeRepository) CreateCategory(ctx context.Context, cat fee.Category) (fee.Category, error) {
	q := `INSERT INTO fee_category (` + categoryColumns + `)
		VALUES (:id, :name, :description, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.q, q, cat); err != nil {
		return fee.Category{}, mapErr(err, nil, fee.ErrCategoryExists)
	}
	return cat, nil
}

func (repo *feeRepository) GetCategory(ctx context.Context, id string) (fee.Category, error) {
	var cat fee.Category
	q := `SELECT ` + categoryColumns + ` FROM fee_category WHERE id = $1`
	if err := repo.q.GetContext(ctx, &cat, q, id); err != nil {
		return fee.Category{}, mapErr(err, fee.ErrCategoryNotFound, nil)
	}
	return cat, nil
}

func (repo *feeRepository) QueryCategories(ctx context.Context) ([]fee.Category, error) {
	cats := make([]fee.Category, 0)
	q := `SELECT ` + categoryColumns + ` FROM fee_category ORDER BY name`
	if err := repo.q.SelectContext(ctx, &cats, q); err != nil {
		return nil, errors.Wrap(err, "selecting fee categories")
	}
	return cats, nil
}

func (repo *feeRepository) UpdateCategory(ctx context.Context, cat fee.Category) (fee.Category, error) {
	q := `UPDATE fee_category
		SET name = :name, description = :description, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.q, q, cat)
	if err != nil {
		return fee.Category{}, mapErr(err, fee.ErrCategoryNotFound, fee.ErrCategoryExists)
	}
	if err = checkAffected(res, fee.ErrCategoryNotFound); err != nil {
		return fee.Category{}, err
	}
	return cat, nil
}

func (repo *feeRepository) DeleteCategory(ctx context.Context, id string) error {
	res, err := repo.q.ExecContext(ctx, `DELETE FROM fee_category WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, fee.ErrCategoryNotFound, nil)
	}
	return checkAffected(res, fee.ErrCategoryNotFound)
}

func (repo *feeRepository) CountStructuresByCategory(ctx context.Context, categoryID string) (int, error) {
	var count int
	if err := repo.q.GetContext(ctx, &count, `SELECT COUNT(*) FROM fee_structure WHERE category_id = $1`, categoryID); err != nil {
		return 0, mapErr(err, fee.ErrCategoryNotFound, nil)
	}
	return count, nil
}

// structures

func (repo *feeRepository) CreateStructure(ctx context.Context, st fee.Structure) (fee.Structure, error) {
	q := `INSERT INTO fee_structure (` + structureColumns + `)
		VALUES (:id, :class_id, :category_id, :title, :description, :amount, :due_date, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.q, q, st); err != nil {
		return fee.Structure{}, mapErr(err, nil, fee.ErrStructureExists)
	}
	return st, nil
}

func (repo *feeRepository) GetStructure(ctx context.Context, id string) (fee.Structure, error) {
	var st fee.Structure
	q := `SELECT ` + structureColumns + ` FROM fee_structure WHERE id = $1`
	if err := repo.q.GetContext(ctx, &st, q, id); err != nil {
		return fee.Structure{}, mapErr(err, fee.ErrStructureNotFound, nil)
	}
	return st, nil
}

func (repo *feeRepository) QueryStructuresByClass(ctx context.Context, classID string) ([]fee.Structure, error) {
	sts := make([]fee.Structure, 0)
	q := `SELECT ` + structureColumns + ` FROM fee_structure WHERE class_id = $1 ORDER BY due_date, title`
	if err := repo.q.SelectContext(ctx, &sts, q, classID); err != nil {
		return nil, mapErr(err, fee.ErrClassNotFound, nil)
	}
	return sts, nil
}

func (repo *feeRepository) UpdateStructure(ctx context.Context, st fee.Structure) (fee.Structure, error) {
	q := `UPDATE fee_structure
		SET title = :title, description = :description, amount = :amount, due_date = :due_date,
			is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.q, q, st)
	if err != nil {
		return fee.Structure{}, mapErr(err, fee.ErrStructureNotFound, fee.ErrStructureExists)
	}
	if err = checkAffected(res, fee.ErrStructureNotFound); err != nil {
		return fee.Structure{}, err
	}
	return st, nil
}

func (repo *feeRepository) DeleteStructure(ctx context.Context, id string) error {
	res, err := repo.q.ExecContext(ctx, `DELETE FROM fee_structure WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, fee.ErrStructureNotFound, nil)
	}
	return checkAffected(res, fee.ErrStructureNotFound)
}

// ledgers

func (repo *feeRepository) CreateLedger(ctx context.Context, l fee.Ledger) (fee.Ledger, error) {
	l.Version = 1
	q := `INSERT INTO student_fee (` + ledgerColumns + `)
		VALUES (:id, :student_id, :class_id, :structure_id, :base_amount, :discount_amount, :fine_amount,
			:total_payable, :paid_amount, :due_amount, :status, :due_date, :academic_year, :remarks, :version,
			:created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.q, q, l); err != nil {
		return fee.Ledger{}, mapErr(err, nil, fee.ErrLedgerExists)
	}
	return l, nil
}

func (repo *feeRepository) GetLedger(ctx context.Context, id string, forUpdate bool) (fee.Ledger, error) {
	var l fee.Ledger
	q := `SELECT ` + ledgerColumns + ` FROM student_fee WHERE id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	if err := repo.q.GetContext(ctx, &l, q, id); err != nil {
		return fee.Ledger{}, mapErr(err, fee.ErrLedgerNotFound, nil)
	}
	return l, nil
}

// whereClause accumulates `AND`-ed conditions with their positional args.
type whereClause struct {
	conds []string
	args  []interface{}
}

func (w *whereClause) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (repo *feeRepository) QueryLedgers(ctx context.Context, filter fee.LedgerFilter) ([]fee.Ledger, error) {
	var where whereClause
	if filter.StudentID != "" {
		where.add("student_id = $%d", filter.StudentID)
	}
	if filter.ClassID != "" {
		where.add("class_id = $%d", filter.ClassID)
	}
	if filter.StructureID != "" {
		where.add("structure_id = $%d", filter.StructureID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		where.add("status = ANY($%d)", pq.Array(statuses))
	}

	q := `SELECT ` + ledgerColumns + ` FROM student_fee` + where.String() + ` ORDER BY due_date, student_id, id`
	if filter.ForUpdate {
		q += ` FOR UPDATE`
	}
	ledgers := make([]fee.Ledger, 0)
	if err := repo.q.SelectContext(ctx, &ledgers, q, where.args...); err != nil {
		if err = mapErr(err, errMalformedID, nil); err == errMalformedID {
			return ledgers, nil
		}
		return nil, errors.Wrap(err, "selecting ledger rows")
	}
	return ledgers, nil
}

// errMalformedID marks a filter on an id that cannot exist: such queries match nothing.
var errMalformedID = core.NewNotFoundError("malformed id")

func (repo *feeRepository) UpdateLedger(ctx context.Context, l fee.Ledger) (fee.Ledger, error) {
	q := `UPDATE student_fee
		SET base_amount = :base_amount, discount_amount = :discount_amount, fine_amount = :fine_amount,
			total_payable = :total_payable, paid_amount = :paid_amount, due_amount = :due_amount,
			status = :status, due_date = :due_date, remarks = :remarks, updated_at = :updated_at,
			version = version + 1
		WHERE id = :id AND version = :version`
	res, err := sqlx.NamedExecContext(ctx, repo.q, q, l)
	if err != nil {
		return fee.Ledger{}, mapErr(err, fee.ErrLedgerNotFound, nil)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fee.Ledger{}, errors.Wrap(err, "reading affected rows")
	}
	if n == 0 {
		var exists bool
		if err = repo.q.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM student_fee WHERE id = $1)`, l.ID); err != nil {
			return fee.Ledger{}, errors.Wrap(err, "checking ledger row")
		}
		if !exists {
			return fee.Ledger{}, fee.ErrLedgerNotFound
		}
		return fee.Ledger{}, fee.ErrVersionConflict
	}
	l.Version++
	return l, nil
}

func (repo *feeRepository) DeleteLedger(ctx context.Context, id string) error {
	res, err := repo.q.ExecContext(ctx, `DELETE FROM student_fee WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, fee.ErrLedgerNotFound, nil)
	}
	return checkAffected(res, fee.ErrLedgerNotFound)
}

// transactions

func (repo *feeRepository) CreateTransaction(ctx context.Context, txn fee.Transaction) (fee.Transaction, error) {
	q := `INSERT INTO fee_transaction (` + transactionColumns + `)
		VALUES (:id, :transaction_id, :ledger_id, :student_id, :amount, :wallet_amount, :method, :status,
			:collected_by, :idempotency_key, :remarks, :paid_at, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.q, q, txn); err != nil {
		return fee.Transaction{}, mapErr(err, nil, fee.ErrTransactionExists)
	}
	return txn, nil
}

func (repo *feeRepository) GetTransaction(ctx context.Context, transactionID string) (fee.Transaction, error) {
	var txn fee.Transaction
	q := `SELECT ` + transactionColumns + ` FROM fee_transaction WHERE transaction_id = $1`
	if err := repo.q.GetContext(ctx, &txn, q, transactionID); err != nil {
		return fee.Transaction{}, mapErr(err, fee.ErrTransactionNotFound, nil)
	}
	return txn, nil
}

func (repo *feeRepository) GetTransactionByIdempotencyKey(ctx context.Context, key string) (fee.Transaction, error) {
	var txn fee.Transaction
	q := `SELECT ` + transactionColumns + ` FROM fee_transaction WHERE idempotency_key = $1`
	if err := repo.q.GetContext(ctx, &txn, q, key); err != nil {
		return fee.Transaction{}, mapErr(err, fee.ErrTransactionNotFound, nil)
	}
	return txn, nil
}

func (repo *feeRepository) QueryTransactions(ctx context.Context, filter fee.TransactionFilter) ([]fee.Transaction, error) {
	var where whereClause
	if filter.StudentID != "" {
		where.add("student_id = $%d", filter.StudentID)
	}
	if len(filter.LedgerIDs) > 0 {
		where.add("ledger_id = ANY($%d::uuid[])", pq.Array(filter.LedgerIDs))
	}
	if filter.Status != "" {
		where.add("status = $%d", string(filter.Status))
	}
	if !filter.From.IsZero() {
		where.add("paid_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		where.add("paid_at < $%d", filter.To)
	}

	q := `SELECT ` + transactionColumns + ` FROM fee_transaction` + where.String() + ` ORDER BY paid_at DESC, transaction_id DESC`
	txns := make([]fee.Transaction, 0)
	if err := repo.q.SelectContext(ctx, &txns, q, where.args...); err != nil {
		if err = mapErr(err, errMalformedID, nil); err == errMalformedID {
			return txns, nil
		}
		return nil, errors.Wrap(err, "selecting transactions")
	}
	return txns, nil
}

func (repo *feeRepository) UnlinkTransactions(ctx context.Context, ledgerIDs []string, remark string) (int, error) {
	if len(ledgerIDs) == 0 {
		return 0, nil
	}
	q := `UPDATE fee_transaction
		SET ledger_id = NULL,
			remarks = CASE WHEN btrim(remarks) = '' THEN $2 ELSE btrim(remarks) || ' | ' || $2 END
		WHERE ledger_id = ANY($1::uuid[])`
	res, err := repo.q.ExecContext(ctx, q, pq.Array(ledgerIDs), remark)
	if err != nil {
		return 0, errors.Wrap(err, "unlinking transactions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "reading affected rows")
	}
	return int(n), nil
}

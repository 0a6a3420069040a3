package fee

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/masomo/feeledger/core"
)

type (
	AssignSummary struct {
		StructureID    string          `json:"structure_id"`
		Created        int             `json:"created"`
		SurplusApplied int             `json:"surplus_applied"`
		Skipped        int             `json:"skipped"`
		WalletApplied  decimal.Decimal `json:"wallet_applied"`
		Ledgers        []Ledger        `json:"ledgers"`
	}

	UnassignSummary struct {
		Ledger               Ledger          `json:"ledger"`
		RefundedToWallet     decimal.Decimal `json:"refunded_to_wallet"`
		RelinkedTransactions int             `json:"relinked_transactions"`
	}

	structureChange struct {
		structure Structure
		amount    decimal.Decimal
		dueDate   time.Time
	}
)

func (c structureChange) amountChanged() bool {
	return !c.amount.Equal(c.structure.Amount)
}

func (c structureChange) dueDateChanged() bool {
	return !c.dueDate.Equal(c.structure.DueDate)
}

// adjustmentRemark records a base amount change on the ledger remarks.
func adjustmentRemark(remarks string, from, to decimal.Decimal) string {
	if remarks == "" {
		return fmt.Sprintf("Fee Adjusted: %s->%s", from, to)
	}
	return core.AppendRemark(remarks, fmt.Sprintf("Fee Adj: %s->%s", from, to))
}

// isolateRow runs fn, which processes one ledger row, under a savepoint. A failure is
// recorded on batch against the row fn returned. aborted reports that the unit of work
// cannot run further statements, so the batch must stop.
func isolateRow(ctx context.Context, tx Repository, batch *BatchError, fn func() (Ledger, error)) (ok, aborted bool) {
	var row Ledger
	err := tx.Savepoint(ctx, func() error {
		var err error
		row, err = fn()
		return err
	})
	if err == nil {
		return true, false
	}
	batch.add(row, err)
	return false, errors.Cause(err) == ErrUnitOfWorkAborted
}

// propagateChange brings every ledger row of the structure to the new amount/due date.
// Rows that had paid more than their new total get the difference credited to the wallet
// and are capped (hence Paid).
func (svc *Service) propagateChange(ctx context.Context, tx Repository, change structureChange) (ChangeSummary, error) {
	st := change.structure
	summary := ChangeSummary{
		StructureID:    st.ID,
		OldAmount:      st.Amount,
		NewAmount:      change.amount,
		WalletCredited: decimal.Zero,
	}
	ledgers, err := tx.QueryLedgers(ctx, LedgerFilter{StructureID: st.ID, ForUpdate: true})
	if err != nil {
		return summary, errors.Wrap(err, "querying ledger rows")
	}

	now := svc.now()
	batch := &BatchError{Op: "amount change", StructureID: st.ID}
	for _, l := range ledgers {
		l := l
		var surplus decimal.Decimal
		ok, aborted := isolateRow(ctx, tx, batch, func() (Ledger, error) {
			if change.amountChanged() {
				l.Remarks = adjustmentRemark(l.Remarks, st.Amount, change.amount)
				l.BaseAmount = change.amount
			}
			l.DueDate = change.dueDate
			l.UpdatedAt = now
			Derive(&l, now)

			surplus = l.PaidAmount.Sub(l.TotalPayable)
			if surplus.IsPositive() {
				l.PaidAmount = l.TotalPayable
				Derive(&l, now)
				if _, err := tx.Wallet().Credit(ctx, l.StudentID, surplus, ReasonStructureReduced, l.ID); err != nil {
					return l, err
				}
			}
			_, err := tx.UpdateLedger(ctx, l)
			return l, err
		})
		if aborted {
			break
		}
		if !ok {
			continue
		}

		summary.RowsUpdated++
		if surplus.IsPositive() {
			summary.StudentsCredited++
			summary.WalletCredited = summary.WalletCredited.Add(surplus)
		}
	}
	if err := batch.errOrNil(); err != nil {
		return summary, svc.batchFailed(batch)
	}
	return summary, nil
}

// propagateDelete refunds and removes every ledger row of the structure.
func (svc *Service) propagateDelete(ctx context.Context, tx Repository, st Structure) (DeleteSummary, error) {
	summary := DeleteSummary{StructureID: st.ID, WalletCredited: decimal.Zero}
	ledgers, err := tx.QueryLedgers(ctx, LedgerFilter{StructureID: st.ID, ForUpdate: true})
	if err != nil {
		return summary, errors.Wrap(err, "querying ledger rows")
	}

	batch := &BatchError{Op: "delete", StructureID: st.ID}
	ids := make([]string, 0, len(ledgers))
	for _, l := range ledgers {
		l := l
		ids = append(ids, l.ID)
		if !l.PaidAmount.IsPositive() {
			continue
		}
		ok, aborted := isolateRow(ctx, tx, batch, func() (Ledger, error) {
			_, err := tx.Wallet().Credit(ctx, l.StudentID, l.PaidAmount, ReasonStructureDeleted, l.ID)
			return l, err
		})
		if aborted {
			return summary, svc.batchFailed(batch)
		}
		if !ok {
			continue
		}
		summary.StudentsCredited++
		summary.WalletCredited = summary.WalletCredited.Add(l.PaidAmount)
	}

	if len(ids) > 0 {
		if summary.TransactionsUnlinked, err = tx.UnlinkTransactions(ctx, ids, remarkStructureDeleted); err != nil {
			batch.Cause = errors.Wrap(err, "unlinking transactions")
			return summary, svc.batchFailed(batch)
		}
	}
	for _, l := range ledgers {
		l := l
		ok, aborted := isolateRow(ctx, tx, batch, func() (Ledger, error) {
			return l, tx.DeleteLedger(ctx, l.ID)
		})
		if aborted {
			break
		}
		if ok {
			summary.LedgersDeleted++
		}
	}
	if err := batch.errOrNil(); err != nil {
		return summary, svc.batchFailed(batch)
	}
	return summary, nil
}

func (svc *Service) batchFailed(batch *BatchError) error {
	svc.logger.Error("fee "+batch.Op+" failed", batch)
	return batch
}

// AssignToClass creates a ledger row for every student of the class missing one.
// A positive wallet balance is auto-applied to the new row, recorded as a Wallet transaction.
// Calling it again only creates the rows still missing.
func (svc *Service) AssignToClass(ctx context.Context, a Assignment, actor Actor) (AssignSummary, error) {
	summary := AssignSummary{StructureID: a.StructureID, WalletApplied: decimal.Zero}
	err := svc.store.Atomic(ctx, func(tx Repository) error {
		st, err := tx.GetStructure(ctx, a.StructureID)
		if err != nil {
			return err
		}
		if st.ClassID != a.ClassID {
			return ErrClassMismatch
		}
		if !st.IsActive {
			return ErrStructureInactive
		}
		class, err := tx.GetClass(ctx, st.ClassID)
		if err != nil {
			return err
		}
		students, err := tx.ListStudentsInClass(ctx, class.ID)
		if err != nil {
			return errors.Wrap(err, "listing students")
		}
		if len(students) == 0 {
			return ErrNoStudents
		}

		existing, err := tx.QueryLedgers(ctx, LedgerFilter{StructureID: st.ID})
		if err != nil {
			return errors.Wrap(err, "querying ledger rows")
		}
		assigned := make(map[string]bool, len(existing))
		for _, l := range existing {
			assigned[l.StudentID] = true
		}

		now := svc.now()
		batch := &BatchError{Op: "assign", StructureID: st.ID}
		for _, std := range students {
			if assigned[std.ID] {
				summary.Skipped++
				continue
			}
			std := std
			var (
				l       Ledger
				applied decimal.Decimal
			)
			ok, aborted := isolateRow(ctx, tx, batch, func() (Ledger, error) {
				var err error
				l, applied, err = svc.assignOne(ctx, tx, st, class, std, actor, now)
				return l, err
			})
			if aborted {
				break
			}
			if !ok {
				continue
			}
			summary.Created++
			summary.Ledgers = append(summary.Ledgers, l)
			if applied.IsPositive() {
				summary.SurplusApplied++
				summary.WalletApplied = summary.WalletApplied.Add(applied)
			}
		}
		if err := batch.errOrNil(); err != nil {
			return svc.batchFailed(batch)
		}
		return nil
	})
	if err != nil {
		return AssignSummary{}, err
	}

	svc.logger.Info(fmt.Sprintf("fee structure %s assigned: %d created, %d skipped, %s auto-applied from %d wallets",
		summary.StructureID, summary.Created, summary.Skipped, summary.WalletApplied, summary.SurplusApplied))
	return summary, nil
}

func (svc *Service) assignOne(
	ctx context.Context, tx Repository, st Structure, class Class, std Student, actor Actor, now time.Time,
) (Ledger, decimal.Decimal, error) {
	l := Ledger{
		ID:             newID(),
		StudentID:      std.ID,
		ClassID:        class.ID,
		StructureID:    st.ID,
		BaseAmount:     st.Amount,
		DiscountAmount: decimal.Zero,
		FineAmount:     decimal.Zero,
		PaidAmount:     decimal.Zero,
		DueDate:        st.DueDate,
		AcademicYear:   class.Year,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	balance, err := tx.Wallet().Balance(ctx, std.ID)
	if err != nil {
		return l, decimal.Zero, errors.Wrap(err, "reading wallet balance")
	}
	applied := decimal.Zero
	if balance.IsPositive() {
		applied = core.MinMoney(balance, l.BaseAmount)
		l.PaidAmount = applied
		l.Remarks = fmt.Sprintf("Auto-paid %s from Surplus", applied)
	}
	Derive(&l, now)

	created, err := tx.CreateLedger(ctx, l)
	if err != nil {
		return l, decimal.Zero, errors.Wrap(err, "creating ledger row")
	}
	l = created
	if !applied.IsPositive() {
		return l, applied, nil
	}

	txnID := newTransactionID(now, true)
	if _, err = tx.Wallet().Debit(ctx, std.ID, applied, ReasonAutoApplied, txnID); err != nil {
		return l, decimal.Zero, errors.Wrap(err, "debiting wallet")
	}
	_, err = tx.CreateTransaction(ctx, Transaction{
		ID:            newID(),
		TransactionID: txnID,
		LedgerID:      null.StringFrom(l.ID),
		StudentID:     std.ID,
		Amount:        applied,
		WalletAmount:  decimal.Zero,
		Method:        MethodWallet,
		Status:        TxnSuccess,
		CollectedBy:   actor.ID,
		Remarks:       remarkAutoApplied,
		PaidAt:        now,
		CreatedAt:     now,
	})
	if err != nil {
		return l, decimal.Zero, errors.Wrap(err, "recording auto-applied transaction")
	}
	return l, applied, nil
}

// ApplyAdjustment sets the discount and/or fine of a ledger row. No money moves.
func (svc *Service) ApplyAdjustment(ctx context.Context, ledgerID string, adj Adjustment) (Ledger, error) {
	if adj.Discount == nil && adj.Fine == nil && core.CleanString(adj.Remarks) == "" {
		return Ledger{}, ErrNothingToUpdate
	}
	for _, amount := range []*decimal.Decimal{adj.Discount, adj.Fine} {
		if amount == nil {
			continue
		}
		if amount.IsNegative() {
			return Ledger{}, ErrNegativeAdjustment
		}
		if max := svc.conf.MaxPaymentAmount; max.IsPositive() && amount.GreaterThan(max) {
			return Ledger{}, amountTooLargeError(max)
		}
	}

	var ledger Ledger
	err := svc.store.Atomic(ctx, func(tx Repository) error {
		l, err := tx.GetLedger(ctx, ledgerID, true)
		if err != nil {
			return err
		}
		if adj.Discount != nil {
			l.DiscountAmount = *adj.Discount
		}
		if adj.Fine != nil {
			l.FineAmount = *adj.Fine
		}
		if remarks := core.CleanString(adj.Remarks); remarks != "" {
			l.Remarks = core.AppendRemark(l.Remarks, remarks)
		}
		now := svc.now()
		l.UpdatedAt = now
		Derive(&l, now)

		if ledger, err = tx.UpdateLedger(ctx, l); err != nil {
			return errors.Wrap(err, "updating ledger row")
		}
		return nil
	})
	if err != nil {
		return Ledger{}, err
	}
	return ledger, nil
}

// Unassign deletes a ledger row, crediting what was paid against it to the student's wallet.
func (svc *Service) Unassign(ctx context.Context, ledgerID string) (UnassignSummary, error) {
	var summary UnassignSummary
	err := svc.store.Atomic(ctx, func(tx Repository) error {
		l, err := tx.GetLedger(ctx, ledgerID, true)
		if err != nil {
			return err
		}
		summary = UnassignSummary{Ledger: l, RefundedToWallet: decimal.Zero}

		if l.PaidAmount.IsPositive() {
			if _, err = tx.Wallet().Credit(ctx, l.StudentID, l.PaidAmount, ReasonUnassigned, l.ID); err != nil {
				return errors.Wrap(err, "crediting wallet")
			}
			summary.RefundedToWallet = l.PaidAmount
		}
		if summary.RelinkedTransactions, err = tx.UnlinkTransactions(ctx, []string{l.ID}, remarkUnassigned); err != nil {
			return errors.Wrap(err, "unlinking transactions")
		}
		return tx.DeleteLedger(ctx, l.ID)
	})
	if err != nil {
		return UnassignSummary{}, err
	}
	return summary, nil
}

// RefreshStatuses re-derives every unsettled row (eg. Unpaid -> Overdue once its due date passed)
// and returns the number of rows whose status changed.
func (svc *Service) RefreshStatuses(ctx context.Context) (int, error) {
	var changed int
	err := svc.store.Atomic(ctx, func(tx Repository) error {
		ledgers, err := tx.QueryLedgers(ctx, LedgerFilter{Statuses: OutstandingStatuses, ForUpdate: true})
		if err != nil {
			return errors.Wrap(err, "querying ledger rows")
		}
		now := svc.now()
		batch := &BatchError{Op: "status refresh"}
		for _, l := range ledgers {
			l := l
			status := l.Status
			Derive(&l, now)
			if l.Status == status {
				continue
			}
			l.UpdatedAt = now
			ok, aborted := isolateRow(ctx, tx, batch, func() (Ledger, error) {
				_, err := tx.UpdateLedger(ctx, l)
				return l, err
			})
			if aborted {
				break
			}
			if ok {
				changed++
			}
		}
		if err := batch.errOrNil(); err != nil {
			return svc.batchFailed(batch)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// StudentLedgers returns the bill of a student, ordered by due date, each row titled after its structure.
func (svc *Service) StudentLedgers(ctx context.Context, studentID string) ([]Ledger, error) {
	std, err := svc.store.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	ledgers, err := svc.store.QueryLedgers(ctx, LedgerFilter{StudentID: studentID})
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string)
	for i := range ledgers {
		id := ledgers[i].StructureID
		if _, ok := titles[id]; !ok {
			st, err := svc.store.GetStructure(ctx, id)
			if err != nil {
				return nil, errors.Wrap(err, "getting structure")
			}
			titles[id] = st.Title
		}
		ledgers[i].Title = titles[id]
		ledgers[i].StudentName = std.Name
	}
	return ledgers, nil
}

// ClassLedgers returns every ledger row of a class, with its structure title and student name.
func (svc *Service) ClassLedgers(ctx context.Context, classID string) ([]Ledger, error) {
	if _, err := svc.store.GetClass(ctx, classID); err != nil {
		return nil, err
	}
	ledgers, err := svc.store.QueryLedgers(ctx, LedgerFilter{ClassID: classID})
	if err != nil {
		return nil, err
	}

	structures, err := svc.store.QueryStructuresByClass(ctx, classID)
	if err != nil {
		return nil, errors.Wrap(err, "querying structures")
	}
	titles := make(map[string]string, len(structures))
	for _, st := range structures {
		titles[st.ID] = st.Title
	}
	students, err := svc.store.ListStudentsInClass(ctx, classID)
	if err != nil {
		return nil, errors.Wrap(err, "listing students")
	}
	names := make(map[string]string, len(students))
	for _, std := range students {
		names[std.ID] = std.Name
	}

	for i := range ledgers {
		l := &ledgers[i]
		l.Title = titles[l.StructureID]
		name, ok := names[l.StudentID]
		if !ok {
			// moved to another class since
			std, err := svc.store.GetStudent(ctx, l.StudentID)
			if err != nil {
				return nil, errors.Wrap(err, "getting student")
			}
			name = std.Name
			names[l.StudentID] = name
		}
		l.StudentName = name
	}
	return ledgers, nil
}

func (svc *Service) GetLedger(ctx context.Context, id string) (Ledger, error) {
	return svc.store.GetLedger(ctx, id, false)
}

// GetStudent exposes the student directory to outer layers (eg. ownership checks).
func (svc *Service) GetStudent(ctx context.Context, id string) (Student, error) {
	return svc.store.GetStudent(ctx, id)
}

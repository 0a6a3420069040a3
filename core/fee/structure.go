package fee

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/masomo/feeledger/core"
)

type (
	// ChangeSummary describes how a structure change reached its ledger rows.
	ChangeSummary struct {
		StructureID      string          `json:"structure_id"`
		OldAmount        decimal.Decimal `json:"old_amount"`
		NewAmount        decimal.Decimal `json:"new_amount"`
		RowsUpdated      int             `json:"rows_updated"`
		StudentsCredited int             `json:"students_credited"`
		WalletCredited   decimal.Decimal `json:"wallet_credited"`
	}

	StructureUpdate struct {
		Structure   Structure      `json:"structure"`
		Propagation *ChangeSummary `json:"propagation,omitempty"`
	}

	DeleteSummary struct {
		StructureID          string          `json:"structure_id"`
		LedgersDeleted       int             `json:"ledgers_deleted"`
		StudentsCredited     int             `json:"students_credited"`
		WalletCredited       decimal.Decimal `json:"wallet_credited"`
		TransactionsUnlinked int             `json:"transactions_unlinked"`
	}
)

// StructureTitle formats the title given to new structures, eg. `TUITION - Grade 5 (2024)`.
func StructureTitle(cat Category, class Class) string {
	return fmt.Sprintf("%s - %s (%s)", cat.Name, class.Name, class.Year)
}

func (svc *Service) CreateStructure(ctx context.Context, ns NewStructure) (Structure, error) {
	amount, err := svc.checkAmount(ns.Amount)
	if err != nil {
		return Structure{}, err
	}
	if err = svc.checkDueDate(ns.DueDate); err != nil {
		return Structure{}, err
	}

	class, err := svc.store.GetClass(ctx, ns.ClassID)
	if err != nil {
		return Structure{}, err
	}
	if !class.IsActive {
		return Structure{}, ErrClassInactive
	}
	cat, err := svc.store.GetCategory(ctx, ns.CategoryID)
	if err != nil {
		return Structure{}, err
	}
	if !cat.IsActive {
		return Structure{}, ErrCategoryInactive
	}

	now := svc.now()
	desc := core.CleanString(ns.Description)
	st := Structure{
		ID:          newID(),
		ClassID:     class.ID,
		CategoryID:  cat.ID,
		Title:       StructureTitle(cat, class),
		Description: null.NewString(desc, desc != ""),
		Amount:      amount,
		DueDate:     ns.DueDate.Time,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	st, err = svc.store.CreateStructure(ctx, st)
	if err != nil {
		return Structure{}, errors.Wrap(err, "creating fee structure")
	}
	return st, nil
}

func (svc *Service) GetStructure(ctx context.Context, id string) (Structure, error) {
	return svc.store.GetStructure(ctx, id)
}

// QueryStructuresByClass returns the class structures ordered by due date.
func (svc *Service) QueryStructuresByClass(ctx context.Context, classID string) ([]Structure, error) {
	if _, err := svc.store.GetClass(ctx, classID); err != nil {
		return nil, err
	}
	return svc.store.QueryStructuresByClass(ctx, classID)
}

// UpdateStructure applies `us` to the structure. Amount and due date changes are propagated
// to every ledger row of the structure within the same unit of work.
func (svc *Service) UpdateStructure(ctx context.Context, id string, us UpdateStructure) (StructureUpdate, error) {
	if us.empty() {
		return StructureUpdate{}, ErrNothingToUpdate
	}
	var (
		newAmount decimal.Decimal
		err       error
	)
	if us.Amount != nil {
		if newAmount, err = svc.checkAmount(*us.Amount); err != nil {
			return StructureUpdate{}, err
		}
	}
	if us.DueDate != nil {
		if err = svc.checkDueDate(*us.DueDate); err != nil {
			return StructureUpdate{}, err
		}
	}
	if us.Title != nil && core.CleanString(*us.Title) == "" {
		return StructureUpdate{}, core.NewInvalidInputError("title cannot be blank")
	}

	var res StructureUpdate
	err = svc.store.Atomic(ctx, func(tx Repository) error {
		st, err := tx.GetStructure(ctx, id)
		if err != nil {
			return err
		}

		change := structureChange{structure: st, amount: st.Amount, dueDate: st.DueDate}
		if us.Amount != nil {
			change.amount = newAmount
		}
		if us.DueDate != nil {
			change.dueDate = us.DueDate.Time
		}
		if change.amountChanged() || change.dueDateChanged() {
			summary, err := svc.propagateChange(ctx, tx, change)
			if err != nil {
				return err
			}
			res.Propagation = &summary
		}

		st.Amount = change.amount
		st.DueDate = change.dueDate
		if us.Title != nil {
			st.Title = core.CleanString(*us.Title)
		}
		if us.Description != nil {
			desc := core.CleanString(*us.Description)
			st.Description = null.NewString(desc, desc != "")
		}
		if us.IsActive != nil {
			st.IsActive = *us.IsActive
		}
		st.UpdatedAt = svc.now()

		if res.Structure, err = tx.UpdateStructure(ctx, st); err != nil {
			return errors.Wrap(err, "updating fee structure")
		}
		return nil
	})
	if err != nil {
		return StructureUpdate{}, err
	}

	if p := res.Propagation; p != nil {
		svc.logger.Info(fmt.Sprintf("fee structure %s updated: %d ledger rows, %s credited to %d wallets",
			p.StructureID, p.RowsUpdated, p.WalletCredited, p.StudentsCredited))
	}
	return res, nil
}

// DeleteStructure deletes the structure and its ledger rows. Money paid against the rows is
// credited to the students' wallets; their transactions are kept, unlinked.
func (svc *Service) DeleteStructure(ctx context.Context, id string) (DeleteSummary, error) {
	var summary DeleteSummary
	err := svc.store.Atomic(ctx, func(tx Repository) error {
		st, err := tx.GetStructure(ctx, id)
		if err != nil {
			return err
		}
		if summary, err = svc.propagateDelete(ctx, tx, st); err != nil {
			return err
		}
		return tx.DeleteStructure(ctx, st.ID)
	})
	if err != nil {
		return DeleteSummary{}, err
	}

	svc.logger.Info(fmt.Sprintf("fee structure %s deleted: %d ledger rows, %s credited to %d wallets, %d transactions unlinked",
		summary.StructureID, summary.LedgersDeleted, summary.WalletCredited, summary.StudentsCredited, summary.TransactionsUnlinked))
	return summary, nil
}

package fee

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/masomo/feeledger/core"
)

var (
	// not found
	ErrClassNotFound       = core.NewNotFoundError("class not found")
	ErrStudentNotFound     = core.NewNotFoundError("student not found")
	ErrNoStudents          = core.NewNotFoundError("no students found")
	ErrCategoryNotFound    = core.NewNotFoundError("fee category not found")
	ErrStructureNotFound   = core.NewNotFoundError("fee structure not found")
	ErrLedgerNotFound      = core.NewNotFoundError("student fee record not found")
	ErrTransactionNotFound = core.NewNotFoundError("transaction not found")

	// conflicts
	ErrCategoryExists       = core.NewConflictError("a fee category with this name already exists")
	ErrStructureExists      = core.NewConflictError("a fee structure with this class, category and title already exists")
	ErrLedgerExists         = core.NewConflictError("this fee is already assigned to the student")
	ErrTransactionExists    = core.NewConflictError("a transaction with this id or idempotency key already exists")
	ErrVersionConflict      = core.NewConflictError("student fee record was modified concurrently")
	ErrIdempotencyKeyReused = core.NewConflictError("idempotency key already used for another fee record")

	// invalid input
	ErrInvalidAmount       = core.NewInvalidInputError("amount must be greater than zero")
	ErrNegativeAdjustment  = core.NewInvalidInputError("discount and fine cannot be negative")
	ErrInvalidMethod       = core.NewInvalidInputError("invalid payment method")
	ErrDueDateRequired     = core.NewInvalidInputError("due date is required")
	ErrPastDueDate         = core.NewInvalidInputError("due date cannot be in the past")
	ErrNothingToUpdate     = core.NewInvalidInputError("provide at least one field")
	ErrClassInactive       = core.NewInvalidInputError("class is not active")
	ErrCategoryInactive    = core.NewInvalidInputError("fee category is not active")
	ErrStructureInactive   = core.NewInvalidInputError("fee structure is not active")
	ErrCategoryInUse       = core.NewInvalidInputError("fee category is used in fee structures")
	ErrClassMismatch       = core.NewInvalidInputError("class mismatch")
	ErrInsufficientWallet  = core.NewInvalidInputError("insufficient wallet balance")
	ErrInvalidWalletAmount = core.NewInvalidInputError("wallet amount must be greater than zero")

	// settled
	ErrAlreadyPaid = core.NewAlreadySettledError("fee is already fully paid")

	// ErrUnitOfWorkAborted is the cause of errors after which a unit of work cannot run
	// any further statement (it will be rolled back).
	ErrUnitOfWorkAborted = errors.New("unit of work aborted")
)

func amountTooLargeError(max fmt.Stringer) error {
	return core.NewInvalidInputError(fmt.Sprintf("amount cannot exceed %s", max))
}

// RowFailure is a ledger row a batch could not bring to its new state.
type RowFailure struct {
	LedgerID  string `json:"ledger_id"`
	StudentID string `json:"student_id"`
	Err       error  `json:"-"`
}

// BatchError reports the ledger rows that failed during a propagation.
// The unit of work is rolled back: none of the batch is applied.
type BatchError struct {
	Op          string
	StructureID string
	Rows        []RowFailure
	// Cause is set when a step covering the whole batch failed after the rows were processed.
	Cause error
}

func (err *BatchError) Error() string {
	msgs := make([]string, 0, len(err.Rows)+1)
	for _, row := range err.Rows {
		msgs = append(msgs, fmt.Sprintf("%s: %v", row.LedgerID, row.Err))
	}
	if err.Cause != nil {
		msgs = append(msgs, err.Cause.Error())
	}
	return fmt.Sprintf("%s of fee structure %s failed for %d ledger row(s): %s",
		err.Op, err.StructureID, len(err.Rows), strings.Join(msgs, "; "))
}

// LedgerIDs lists the rows needing reconciliation.
func (err *BatchError) LedgerIDs() []string {
	ids := make([]string, 0, len(err.Rows))
	for _, row := range err.Rows {
		ids = append(ids, row.LedgerID)
	}
	return ids
}

func (err *BatchError) add(l Ledger, cause error) {
	err.Rows = append(err.Rows, RowFailure{LedgerID: l.ID, StudentID: l.StudentID, Err: cause})
}

// errOrNil returns err only when something was recorded.
func (err *BatchError) errOrNil() error {
	if len(err.Rows) == 0 && err.Cause == nil {
		return nil
	}
	return err
}

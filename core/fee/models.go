package fee

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/masomo/feeledger/core"
)

// Status is the derived state of a Ledger row.
type Status string

const (
	StatusUnpaid  Status = "Unpaid"
	StatusPartial Status = "Partial"
	StatusPaid    Status = "Paid"
	StatusOverdue Status = "Overdue"
)

// OutstandingStatuses are the statuses of rows that still owe money.
var OutstandingStatuses = []Status{StatusUnpaid, StatusPartial, StatusOverdue}

// Method is the payment method of a Transaction.
type Method string

const (
	MethodCash         Method = "Cash"
	MethodCard         Method = "Card"
	MethodUPI          Method = "UPI"
	MethodBankTransfer Method = "Bank Transfer"
	MethodCheque       Method = "Cheque"
	MethodWallet       Method = "Wallet" // surplus auto-applied on assignment
)

// CollectableMethods are the methods accepted by Collect.
var CollectableMethods = []Method{MethodCash, MethodCard, MethodUPI, MethodBankTransfer, MethodCheque}

func (m Method) Collectable() bool {
	for _, cm := range CollectableMethods {
		if m == cm {
			return true
		}
	}
	return false
}

// Online reports whether money came in through a non-cash channel.
func (m Method) Online() bool {
	return m != MethodCash && m != MethodWallet
}

type TxnStatus string

const (
	TxnSuccess TxnStatus = "Success"
	TxnFailed  TxnStatus = "Failed"
	TxnPending TxnStatus = "Pending"
)

// WalletReason tags every wallet mutation with the event that caused it.
type WalletReason string

const (
	ReasonOverpayment      WalletReason = "overpayment"
	ReasonStructureReduced WalletReason = "structure_reduced"
	ReasonStructureDeleted WalletReason = "structure_deleted"
	ReasonUnassigned       WalletReason = "unassigned"
	ReasonAutoApplied      WalletReason = "auto_applied"
)

// remarks
const (
	remarkStructureDeleted = "Structure Deleted. Amount credited to Surplus."
	remarkUnassigned       = "Fee Structure Unassigned. Amount credited to Student Surplus."
	remarkAutoApplied      = "Auto-deducted from Student Surplus (Wallet)"
)

type (
	Category struct {
		ID          string    `json:"id" db:"id"`
		Name        string    `json:"name" db:"name"`
		Description string    `json:"description" db:"description"`
		IsActive    bool      `json:"is_active" db:"is_active"`
		CreatedAt   time.Time `json:"created_at" db:"created_at"`
		UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
	}

	Structure struct {
		ID          string          `json:"id" db:"id"`
		ClassID     string          `json:"class_id" db:"class_id"`
		CategoryID  string          `json:"category_id" db:"category_id"`
		Title       string          `json:"title" db:"title"`
		Description null.String     `json:"description" db:"description"`
		Amount      decimal.Decimal `json:"amount" db:"amount"`
		DueDate     time.Time       `json:"due_date" db:"due_date"`
		IsActive    bool            `json:"is_active" db:"is_active"`
		CreatedAt   time.Time       `json:"created_at" db:"created_at"`
		UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	}

	// Ledger is one student's bill for one Structure.
	// TotalPayable, DueAmount and Status are only ever set by Derive.
	Ledger struct {
		ID             string          `json:"id" db:"id"`
		StudentID      string          `json:"student_id" db:"student_id"`
		ClassID        string          `json:"class_id" db:"class_id"`
		StructureID    string          `json:"structure_id" db:"structure_id"`
		BaseAmount     decimal.Decimal `json:"base_amount" db:"base_amount"`
		DiscountAmount decimal.Decimal `json:"discount_amount" db:"discount_amount"`
		FineAmount     decimal.Decimal `json:"fine_amount" db:"fine_amount"`
		TotalPayable   decimal.Decimal `json:"total_payable" db:"total_payable"`
		PaidAmount     decimal.Decimal `json:"paid_amount" db:"paid_amount"`
		DueAmount      decimal.Decimal `json:"due_amount" db:"due_amount"`
		Status         Status          `json:"status" db:"status"`
		DueDate        time.Time       `json:"due_date" db:"due_date"`
		AcademicYear   string          `json:"academic_year" db:"academic_year"`
		Remarks        string          `json:"remarks" db:"remarks"`
		Version        int             `json:"version" db:"version"`
		CreatedAt      time.Time       `json:"created_at" db:"created_at"`
		UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`

		// set by the bill reads only
		Title       string `json:"title,omitempty" db:"-"`
		StudentName string `json:"student_name,omitempty" db:"-"`
	}

	// Transaction records money received. Amount is always the full amount;
	// WalletAmount is the part of it that was routed to the wallet.
	Transaction struct {
		ID             string          `json:"id" db:"id"`
		TransactionID  string          `json:"transaction_id" db:"transaction_id"`
		LedgerID       null.String     `json:"ledger_id" db:"ledger_id"`
		StudentID      string          `json:"student_id" db:"student_id"`
		Amount         decimal.Decimal `json:"amount" db:"amount"`
		WalletAmount   decimal.Decimal `json:"wallet_amount" db:"wallet_amount"`
		Method         Method          `json:"method" db:"method"`
		Status         TxnStatus       `json:"status" db:"status"`
		CollectedBy    string          `json:"collected_by" db:"collected_by"`
		IdempotencyKey null.String     `json:"-" db:"idempotency_key"`
		Remarks        string          `json:"remarks" db:"remarks"`
		PaidAt         time.Time       `json:"paid_at" db:"paid_at"`
		CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	}

	// WalletEntry is the audit row of a wallet credit (positive) or debit (negative).
	WalletEntry struct {
		ID        string          `json:"id" db:"id"`
		StudentID string          `json:"student_id" db:"student_id"`
		Amount    decimal.Decimal `json:"amount" db:"amount"`
		Reason    WalletReason    `json:"reason" db:"reason"`
		Reference string          `json:"reference" db:"reference"`
		CreatedAt time.Time       `json:"created_at" db:"created_at"`
	}

	Class struct {
		ID       string `json:"id" db:"id"`
		Name     string `json:"name" db:"name"`
		Year     string `json:"year" db:"year"`
		IsActive bool   `json:"is_active" db:"is_active"`
	}

	Student struct {
		ID            string          `json:"id" db:"id"`
		ClassID       string          `json:"class_id" db:"class_id"`
		UserID        null.String     `json:"user_id" db:"user_id"`
		ParentID      null.String     `json:"parent_id" db:"parent_id"`
		Name          string          `json:"name" db:"name"`
		WalletBalance decimal.Decimal `json:"wallet_balance" db:"wallet_balance"`
	}
)

// NewCategory contains information needed to create a new Category.
type NewCategory struct {
	Name        string `json:"name" validate:"required,notblank,max=100"`
	Description string `json:"description" validate:"max=500"`
}

func (nc *NewCategory) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Description = core.CleanString(nc.Description)
	return validate.Struct(nc)
}

// UpdateCategory changes the non-nil fields of a Category.
type UpdateCategory struct {
	Name        *string `json:"name" validate:"omitempty,notblank,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	IsActive    *bool   `json:"is_active"`
}

func (uc *UpdateCategory) Validate(validate *validator.Validate) error {
	return validate.Struct(uc)
}

// NewStructure contains information needed to create a new Structure.
type NewStructure struct {
	ClassID     string          `json:"class_id" validate:"required"`
	CategoryID  string          `json:"category_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	DueDate     Date            `json:"due_date" validate:"required"`
	Description string          `json:"description" validate:"max=500"`
}

func (ns *NewStructure) Validate(validate *validator.Validate) error {
	ns.ClassID = core.CleanString(ns.ClassID)
	ns.CategoryID = core.CleanString(ns.CategoryID)
	ns.Description = core.CleanString(ns.Description)
	return validate.Struct(ns)
}

// UpdateStructure changes the non-nil fields of a Structure.
type UpdateStructure struct {
	Amount      *decimal.Decimal `json:"amount"`
	DueDate     *Date            `json:"due_date"`
	Title       *string          `json:"title" validate:"omitempty,notblank,max=255"`
	Description *string          `json:"description" validate:"omitempty,max=500"`
	IsActive    *bool            `json:"is_active"`
}

func (us *UpdateStructure) Validate(validate *validator.Validate) error {
	return validate.Struct(us)
}

func (us UpdateStructure) empty() bool {
	return us.Amount == nil && us.DueDate == nil && us.Title == nil && us.Description == nil && us.IsActive == nil
}

// Assignment asks for a structure to be billed to every student of a class.
type Assignment struct {
	ClassID     string `json:"class_id" validate:"required"`
	StructureID string `json:"structure_id" validate:"required"`
}

func (a *Assignment) Validate(validate *validator.Validate) error {
	return validate.Struct(a)
}

// Adjustment sets the non-nil discount/fine of a Ledger row.
type Adjustment struct {
	Discount *decimal.Decimal `json:"discount_amount"`
	Fine     *decimal.Decimal `json:"fine_amount"`
	Remarks  string           `json:"remarks" validate:"max=500"`
}

func (a *Adjustment) Validate(validate *validator.Validate) error {
	a.Remarks = core.CleanString(a.Remarks)
	return validate.Struct(a)
}

// Payment is a request to collect money against a Ledger row.
type Payment struct {
	LedgerID       string          `json:"ledger_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount" validate:"gt=0"`
	Method         Method          `json:"method" validate:"required,paymethod"`
	Remarks        string          `json:"remarks" validate:"max=500"`
	IdempotencyKey string          `json:"-" validate:"max=100"`
}

func (p *Payment) Validate(validate *validator.Validate) error {
	p.LedgerID = core.CleanString(p.LedgerID)
	p.Remarks = core.CleanString(p.Remarks)
	p.IdempotencyKey = core.CleanString(p.IdempotencyKey)
	return validate.Struct(p)
}

// Date is a calendar date, (un)marshalled as `YYYY-MM-DD`.
type Date struct {
	time.Time
}

const DateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a `YYYY-MM-DD` string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, core.NewInvalidInputError("invalid date, expected YYYY-MM-DD")
	}
	return Date{t}, nil
}

// DateOf returns the calendar date of `t` in its own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Date())
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type (
	// LedgerFilter selects Ledger rows; empty fields match everything.
	LedgerFilter struct {
		StudentID   string
		ClassID     string
		StructureID string
		Statuses    []Status
		ForUpdate   bool // lock the selected rows until the unit of work ends
	}

	// TransactionFilter selects Transactions paid in [From, To); zero bounds are open.
	TransactionFilter struct {
		StudentID string
		LedgerIDs []string
		Status    TxnStatus
		From      time.Time
		To        time.Time
	}
)

// Actor is the opaque reference of whoever triggers a money movement.
type Actor struct {
	ID   string
	Name string
}

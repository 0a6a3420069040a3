package fee

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/masomo/feeledger/core"
)

// Derive recomputes the derived fields of `l` (TotalPayable, DueAmount, Status).
// It must run after every change to BaseAmount, DiscountAmount, FineAmount or PaidAmount.
func Derive(l *Ledger, now time.Time) {
	l.BaseAmount = core.RoundMoney(l.BaseAmount)
	l.DiscountAmount = core.RoundMoney(l.DiscountAmount)
	l.FineAmount = core.RoundMoney(l.FineAmount)
	l.PaidAmount = core.RoundMoney(l.PaidAmount)

	l.TotalPayable = core.MaxZero(l.BaseAmount.Add(l.FineAmount).Sub(l.DiscountAmount))
	l.DueAmount = core.MaxZero(l.TotalPayable.Sub(l.PaidAmount))
	l.Status = DeriveStatus(l.TotalPayable, l.PaidAmount, l.DueDate, now)
}

// DeriveStatus is the ledger state function:
//  Paid    if nothing is due
//  Overdue else if the due date has passed
//  Partial else if something was paid
//  Unpaid  otherwise
// A due date is a calendar date: it passes at the end of that day in now's location
// (the configured fees timezone).
func DeriveStatus(totalPayable, paidAmount decimal.Decimal, dueDate, now time.Time) Status {
	switch {
	case !totalPayable.Sub(paidAmount).IsPositive():
		return StatusPaid
	case !dueDate.IsZero() && !now.Before(dueCutoff(dueDate, now.Location())):
		return StatusOverdue
	case paidAmount.IsPositive():
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

// dueCutoff is the first instant, in `loc`, of the day following the calendar date of `dueDate`.
func dueCutoff(dueDate time.Time, loc *time.Location) time.Time {
	y, m, d := dueDate.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// Outstanding reports whether the row still owes money.
func (l Ledger) Outstanding() bool {
	return l.DueAmount.IsPositive()
}

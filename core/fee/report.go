package fee

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type (
	DailyCollection struct {
		Date         Date                       `json:"date"`
		From         time.Time                  `json:"from"`
		To           time.Time                  `json:"to"`
		Total        decimal.Decimal            `json:"total"`
		CashTotal    decimal.Decimal            `json:"cash_total"`
		OnlineTotal  decimal.Decimal            `json:"online_total"`
		ByMethod     map[Method]decimal.Decimal `json:"by_method"`
		Count        int                        `json:"count"`
		Transactions []Transaction              `json:"transactions"`
	}

	ClassDues struct {
		ClassID     string          `json:"class_id"`
		ClassName   string          `json:"class_name"`
		Outstanding decimal.Decimal `json:"outstanding"`
		Count       int             `json:"count"`
		Ledgers     []Ledger        `json:"ledgers"`
	}

	PendingDues struct {
		TotalOutstanding decimal.Decimal `json:"total_outstanding"`
		Count            int             `json:"count"`
		Classes          []ClassDues     `json:"classes"`
	}
)

// DailyCollection sums the successful transactions paid on `date` (a calendar day in the
// configured location; today when zero), per method and overall.
func (svc *Service) DailyCollection(ctx context.Context, date Date) (DailyCollection, error) {
	if date.IsZero() {
		date = svc.today()
	}
	from := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, svc.conf.Location)
	report := DailyCollection{
		Date:        date,
		From:        from,
		To:          from.AddDate(0, 0, 1),
		Total:       decimal.Zero,
		CashTotal:   decimal.Zero,
		OnlineTotal: decimal.Zero,
		ByMethod:    make(map[Method]decimal.Decimal),
	}

	txns, err := svc.store.QueryTransactions(ctx, TransactionFilter{Status: TxnSuccess, From: report.From, To: report.To})
	if err != nil {
		return DailyCollection{}, errors.Wrap(err, "querying transactions")
	}
	for _, txn := range txns {
		report.Total = report.Total.Add(txn.Amount)
		report.ByMethod[txn.Method] = report.ByMethod[txn.Method].Add(txn.Amount)
		switch {
		case txn.Method == MethodCash:
			report.CashTotal = report.CashTotal.Add(txn.Amount)
		case txn.Method.Online():
			report.OnlineTotal = report.OnlineTotal.Add(txn.Amount)
		}
	}
	report.Count = len(txns)
	report.Transactions = txns
	return report, nil
}

// PendingDues sums the due amount of every unsettled ledger row, grouped by class
// (sorted by class name).
func (svc *Service) PendingDues(ctx context.Context) (PendingDues, error) {
	ledgers, err := svc.store.QueryLedgers(ctx, LedgerFilter{Statuses: OutstandingStatuses})
	if err != nil {
		return PendingDues{}, errors.Wrap(err, "querying ledger rows")
	}

	report := PendingDues{TotalOutstanding: decimal.Zero, Classes: []ClassDues{}}
	byClass := make(map[string]*ClassDues)
	for _, l := range ledgers {
		dues, ok := byClass[l.ClassID]
		if !ok {
			dues = &ClassDues{ClassID: l.ClassID, Outstanding: decimal.Zero}
			class, err := svc.store.GetClass(ctx, l.ClassID)
			switch {
			case err == nil:
				dues.ClassName = class.Name
			case errors.Cause(err) != ErrClassNotFound:
				return PendingDues{}, errors.Wrap(err, "fetching class")
			}
			byClass[l.ClassID] = dues
		}
		dues.Outstanding = dues.Outstanding.Add(l.DueAmount)
		dues.Count++
		dues.Ledgers = append(dues.Ledgers, l)

		report.TotalOutstanding = report.TotalOutstanding.Add(l.DueAmount)
		report.Count++
	}

	for _, dues := range byClass {
		report.Classes = append(report.Classes, *dues)
	}
	sort.Slice(report.Classes, func(i, j int) bool {
		if report.Classes[i].ClassName == report.Classes[j].ClassName {
			return report.Classes[i].ClassID < report.Classes[j].ClassID
		}
		return report.Classes[i].ClassName < report.Classes[j].ClassName
	})
	return report, nil
}

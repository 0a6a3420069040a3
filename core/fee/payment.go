package fee

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/masomo/feeledger/core"
)

const receiptTemplate = "payment_receipt"

// Receipt is the outcome of a payment. Ledger is nil once the ledger row was deleted.
type Receipt struct {
	Transaction   Transaction     `json:"transaction"`
	Ledger        *Ledger         `json:"ledger,omitempty"`
	AddedToWallet decimal.Decimal `json:"added_to_wallet"`
	Replayed      bool            `json:"replayed,omitempty"`
}

// splitRemarks discloses how a payment was split between the ledger and the wallet.
func splitRemarks(remarks string, toLedger, toWallet decimal.Decimal) string {
	if !toWallet.IsPositive() {
		return remarks
	}
	if remarks != "" {
		return fmt.Sprintf("%s (Paid: %s, To Wallet: %s)", remarks, toLedger, toWallet)
	}
	return fmt.Sprintf("Split Payment: %s to Fee, %s to Surplus", toLedger, toWallet)
}

// Collect records a payment against a ledger row. One transaction holds the full amount;
// only the due part is applied to the row, the overflow is credited to the wallet.
// Replaying a known idempotency key returns the original receipt without moving money.
func (svc *Service) Collect(ctx context.Context, p Payment, actor Actor) (Receipt, error) {
	amount, err := svc.checkAmount(p.Amount)
	if err != nil {
		return Receipt{}, err
	}
	if !p.Method.Collectable() {
		return Receipt{}, ErrInvalidMethod
	}
	key := core.CleanString(p.IdempotencyKey)

	var rcpt Receipt
	err = svc.store.Atomic(ctx, func(tx Repository) error {
		ledger, err := tx.GetLedger(ctx, p.LedgerID, true)
		if err != nil {
			return err
		}

		if key != "" {
			prev, err := tx.GetTransactionByIdempotencyKey(ctx, key)
			switch {
			case err == nil:
				if prev.LedgerID.String != ledger.ID {
					return ErrIdempotencyKeyReused
				}
				rcpt = Receipt{Transaction: prev, Ledger: &ledger, AddedToWallet: prev.WalletAmount, Replayed: true}
				return nil
			case errors.Cause(err) != ErrTransactionNotFound:
				return errors.Wrap(err, "looking up idempotency key")
			}
		}

		now := svc.now()
		Derive(&ledger, now)
		if ledger.Status == StatusPaid {
			return ErrAlreadyPaid
		}
		toLedger := core.MinMoney(amount, ledger.DueAmount)
		toWallet := amount.Sub(toLedger)

		txn, err := tx.CreateTransaction(ctx, Transaction{
			ID:             newID(),
			TransactionID:  newTransactionID(now, false),
			LedgerID:       null.StringFrom(ledger.ID),
			StudentID:      ledger.StudentID,
			Amount:         amount,
			WalletAmount:   toWallet,
			Method:         p.Method,
			Status:         TxnSuccess,
			CollectedBy:    actor.ID,
			IdempotencyKey: null.NewString(key, key != ""),
			Remarks:        splitRemarks(core.CleanString(p.Remarks), toLedger, toWallet),
			PaidAt:         now,
			CreatedAt:      now,
		})
		if err != nil {
			return errors.Wrap(err, "recording transaction")
		}

		ledger.PaidAmount = ledger.PaidAmount.Add(toLedger)
		ledger.UpdatedAt = now
		Derive(&ledger, now)
		if ledger, err = tx.UpdateLedger(ctx, ledger); err != nil {
			return errors.Wrap(err, "updating ledger row")
		}

		if toWallet.IsPositive() {
			if _, err = tx.Wallet().Credit(ctx, ledger.StudentID, toWallet, ReasonOverpayment, txn.TransactionID); err != nil {
				return errors.Wrap(err, "crediting wallet")
			}
		}
		rcpt = Receipt{Transaction: txn, Ledger: &ledger, AddedToWallet: toWallet}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	if !rcpt.Replayed {
		svc.mailReceipt(ctx, rcpt)
	}
	return rcpt, nil
}

// PaymentHistory returns the transactions of a student, newest first.
func (svc *Service) PaymentHistory(ctx context.Context, studentID string) ([]Transaction, error) {
	if _, err := svc.store.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return svc.store.QueryTransactions(ctx, TransactionFilter{StudentID: studentID})
}

// GetReceipt looks a transaction up by its caller-visible id.
func (svc *Service) GetReceipt(ctx context.Context, transactionID string) (Receipt, error) {
	txn, err := svc.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return Receipt{}, err
	}
	rcpt := Receipt{Transaction: txn, AddedToWallet: txn.WalletAmount}
	if txn.LedgerID.Valid {
		ledger, err := svc.store.GetLedger(ctx, txn.LedgerID.String, false)
		switch {
		case err == nil:
			rcpt.Ledger = &ledger
		case errors.Cause(err) != ErrLedgerNotFound:
			return Receipt{}, errors.Wrap(err, "fetching ledger row")
		}
	}
	return rcpt, nil
}

type receiptMailData struct {
	TransactionID string
	PaidAt        time.Time
	Amount        decimal.Decimal
	Method        Method
	Title         string
	DueAmount     decimal.Decimal
	Status        Status
	AddedToWallet decimal.Decimal
}

// mailReceipt emails the receipt to the student's account, if it has an email, copying the parent.
// Failures are logged, never returned: the payment is already committed.
func (svc *Service) mailReceipt(ctx context.Context, rcpt Receipt) {
	std, err := svc.store.GetStudent(ctx, rcpt.Transaction.StudentID)
	if err != nil {
		svc.logger.Warn("receipt mail: fetching student", err)
		return
	}
	if !std.UserID.Valid {
		return
	}
	usr, err := svc.users.GetByID(ctx, std.UserID.String)
	if err != nil {
		svc.logger.Warn("receipt mail: fetching user", err)
		return
	}
	if usr.Email == "" {
		return
	}

	data := receiptMailData{
		TransactionID: rcpt.Transaction.TransactionID,
		PaidAt:        rcpt.Transaction.PaidAt,
		Amount:        rcpt.Transaction.Amount,
		Method:        rcpt.Transaction.Method,
		AddedToWallet: rcpt.AddedToWallet,
	}
	if l := rcpt.Ledger; l != nil {
		data.DueAmount = l.DueAmount
		data.Status = l.Status
		if st, err := svc.store.GetStructure(ctx, l.StructureID); err == nil {
			data.Title = st.Title
		}
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Payment receipt " + rcpt.Transaction.TransactionID,
		Reference:    rcpt.Transaction.TransactionID,
		TemplateName: receiptTemplate,
		TemplateData: data,
	}
	if std.ParentID.Valid {
		if parent, err := svc.users.GetByID(ctx, std.ParentID.String); err == nil && parent.Email != "" {
			msg.Cc = append(msg.Cc, mail.Address{Name: parent.Name, Address: parent.Email})
		}
	}
	svc.mailer.SendMessages(msg)
}

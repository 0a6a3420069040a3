package fee

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// WalletStatement is a student's surplus balance and the entries that produced it.
type WalletStatement struct {
	StudentID string          `json:"student_id"`
	Balance   decimal.Decimal `json:"balance"`
	Entries   []WalletEntry   `json:"entries"`
}

func (svc *Service) StudentWallet(ctx context.Context, studentID string) (WalletStatement, error) {
	wallet := svc.store.Wallet()
	balance, err := wallet.Balance(ctx, studentID)
	if err != nil {
		return WalletStatement{}, err
	}
	entries, err := wallet.Entries(ctx, studentID)
	if err != nil {
		return WalletStatement{}, errors.Wrap(err, "listing wallet entries")
	}
	return WalletStatement{StudentID: studentID, Balance: balance, Entries: entries}, nil
}

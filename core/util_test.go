package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCleanString(t *testing.T) {
	assert.Equal(t, "Jane Doe", CleanString("  Jane Doe \n"))
	assert.Equal(t, "jane@test.cd", CleanString(" JANE@test.cd ", true))
	assert.Equal(t, "", CleanString("   ", true))
}

func TestAppendRemark(t *testing.T) {
	tests := []struct {
		name    string
		remarks string
		note    string
		want    string
	}{
		{"empty trail", "", "Fee Adj: 300->250", "Fee Adj: 300->250"},
		{"blank trail", "  ", "Wallet", "Wallet"},
		{"existing trail", "first installment", "Fee Adj: 300->250", "first installment | Fee Adj: 300->250"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AppendRemark(tt.remarks, tt.note))
		})
	}
}

func TestMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10", "10"},
		{"10.005", "10.01"},
		{"10.004", "10"},
		{"-0.125", "-0.13"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Money(tt.in).String())
		})
	}

	assert.True(t, MaxZero(Money("-5")).IsZero())
	assert.Equal(t, "5", MaxZero(Money("5")).String())
	assert.Equal(t, "2.5", MinMoney(Money("2.5"), decimal.NewFromInt(3)).String())
	assert.Equal(t, "3", MinMoney(decimal.NewFromInt(3), Money("3.5")).String())
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, KindNotFound, ErrorKind(NewNotFoundError("ledger not found")))
	assert.Equal(t, KindAlreadySettled, ErrorKind(NewAlreadySettledError("already paid")))
	assert.Equal(t, KindUnknown, ErrorKind(NewShutdownError("integrity")))
	assert.True(t, IsShutdown(NewShutdownError("integrity")))
	assert.Equal(t, "Conflict", KindConflict.String())
}

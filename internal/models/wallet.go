package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates ledger entry kinds. Each carries a fixed
// sign convention: DEPOSIT and BONUS credit the account, WITHDRAW debits it.
type TransactionType string

const (
	TransactionTypeDeposit  TransactionType = "DEPOSIT"
	TransactionTypeWithdraw TransactionType = "WITHDRAW"
	TransactionTypeBonus    TransactionType = "BONUS"
)

// ParseTransactionType validates a raw transaction type value.
func ParseTransactionType(raw string) (TransactionType, error) {
	t := TransactionType(raw)
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdraw, TransactionTypeBonus:
		return t, nil
	}
	return "", fmt.Errorf("unknown transaction type: %q", raw)
}

// WalletTransaction is one append-only ledger entry. Amount is an
// unsigned magnitude; the sign comes from Type.
type WalletTransaction struct {
	ID          string          `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"user_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Type        TransactionType `db:"type" json:"type"`
	Description *string         `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// SignedAmount applies the type's sign convention to the magnitude.
func (t *WalletTransaction) SignedAmount() decimal.Decimal {
	if t.Type == TransactionTypeWithdraw {
		return t.Amount.Neg()
	}
	return t.Amount
}

// WalletAccount holds the current balance for one user. Invariant: the
// balance equals the sum of the signed amounts of the account's
// transactions, including under concurrent writers.
type WalletAccount struct {
	UserID    string          `db:"user_id" json:"user_id"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// TransactionFilter constrains statement queries.
type TransactionFilter struct {
	Type   TransactionType
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

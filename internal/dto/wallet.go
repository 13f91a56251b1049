package dto

import (
	"github.com/shopspring/decimal"

	"github.com/driveline/lessons-api/internal/models"
)

// ApplyTransactionRequest payload for manual ledger entries (admin only).
type ApplyTransactionRequest struct {
	UserID      string          `json:"userId" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Type        string          `json:"type" binding:"required"`
	Description string          `json:"description"`
}

// TransactionQuery mirrors supported statement filters.
type TransactionQuery struct {
	Type   models.TransactionType
	Limit  int
	Offset int
}

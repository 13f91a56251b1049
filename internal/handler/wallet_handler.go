package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/driveline/lessons-api/internal/dto"
	"github.com/driveline/lessons-api/internal/models"
	appErrors "github.com/driveline/lessons-api/pkg/errors"
	"github.com/driveline/lessons-api/pkg/response"
)

type walletService interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, userID string, query dto.TransactionQuery) ([]models.WalletTransaction, error)
	ApplyTransaction(ctx context.Context, req dto.ApplyTransactionRequest) (*models.WalletTransaction, decimal.Decimal, error)
}

type statementService interface {
	WalletStatementCSV(ctx context.Context, actor *models.JWTClaims) ([]byte, error)
}

// WalletHandler exposes REST endpoints for the wallet ledger.
type WalletHandler struct {
	service    walletService
	statements statementService
}

// NewWalletHandler constructs the handler.
func NewWalletHandler(service walletService, statements statementService) *WalletHandler {
	return &WalletHandler{service: service, statements: statements}
}

// Balance godoc
// @Summary Current wallet balance for the caller
// @Tags Wallet
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /wallet/balance [get]
func (h *WalletHandler) Balance(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "wallet service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	balance, err := h.service.GetBalance(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"userId":  claims.UserID,
		"balance": balance,
	}, nil)
}

// Transactions godoc
// @Summary List wallet transactions for the caller
// @Tags Wallet
// @Produce json
// @Param type query string false "Transaction type"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} response.Envelope
// @Router /wallet/transactions [get]
func (h *WalletHandler) Transactions(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "wallet service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.TransactionQuery{}
	if raw := c.Query("type"); raw != "" {
		parsed, err := models.ParseTransactionType(strings.ToUpper(strings.TrimSpace(raw)))
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown transaction type %q", raw)))
			return
		}
		query.Type = parsed
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			query.Limit = limit
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil {
			query.Offset = offset
		}
	}
	transactions, err := h.service.ListTransactions(c.Request.Context(), claims.UserID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transactions, nil)
}

// Apply godoc
// @Summary Apply a manual ledger entry
// @Tags Wallet
// @Accept json
// @Produce json
// @Param payload body dto.ApplyTransactionRequest true "Transaction payload"
// @Success 201 {object} response.Envelope
// @Router /wallet/transactions [post]
func (h *WalletHandler) Apply(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "wallet service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ApplyTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid transaction payload"))
		return
	}
	txn, balance, err := h.service.ApplyTransaction(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, gin.H{
		"transaction": txn,
		"balance":     balance,
	}, nil)
}

// Statement godoc
// @Summary Download the caller's wallet statement as CSV
// @Tags Wallet
// @Produce octet-stream
// @Success 200 {file} binary
// @Router /wallet/statement.csv [get]
func (h *WalletHandler) Statement(c *gin.Context) {
	if h.statements == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "statement service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	data, err := h.statements.WalletStatementCSV(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("wallet-statement-%s.csv", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/csv", data)
}

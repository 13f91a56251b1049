package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/driveline/lessons-api/internal/dto"
	"github.com/driveline/lessons-api/internal/models"
	"github.com/driveline/lessons-api/internal/repository"
	appErrors "github.com/driveline/lessons-api/pkg/errors"
)

type settlementMetrics interface {
	ObserveSettlement(outcome string, duration time.Duration)
}

type walletStore interface {
	CreateAccount(ctx context.Context, userID string) error
	GetAccount(ctx context.Context, userID string) (*models.WalletAccount, error)
	ApplyTransaction(ctx context.Context, txn *models.WalletTransaction) (decimal.Decimal, error)
	SettleLesson(ctx context.Context, params repository.SettleLessonParams) error
	ListTransactions(ctx context.Context, userID string, filter models.TransactionFilter) ([]models.WalletTransaction, error)
}

// PaymentGateway moves external funds for non-cash settlements. The
// returned confirmation token is recorded on the ledger entry.
type PaymentGateway interface {
	Charge(ctx context.Context, studentID, lessonID string, amount decimal.Decimal) (string, error)
}

// NoopGateway satisfies PaymentGateway for deployments without an
// external processor.
type NoopGateway struct{}

// Charge implements PaymentGateway.
func (NoopGateway) Charge(context.Context, string, string, decimal.Decimal) (string, error) {
	return "", nil
}

// WalletService is the wallet ledger: it appends transactions, keeps the
// balance equal to the signed sum of the log, and settles completed
// lessons as one atomic unit.
type WalletService struct {
	store    walletStore
	gateway  PaymentGateway
	audit    auditLogger
	metrics  settlementMetrics
	logger   *zap.Logger
	sharePct decimal.Decimal
}

// WalletServiceOption configures the service.
type WalletServiceOption func(*WalletService)

// WithWalletMetrics attaches settlement instrumentation.
func WithWalletMetrics(metrics settlementMetrics) WalletServiceOption {
	return func(s *WalletService) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// NewWalletService constructs the ledger. sharePct is the instructor's
// percentage of the lesson price; the remainder stays with the platform.
func NewWalletService(store walletStore, gateway PaymentGateway, audit auditLogger, sharePct int64, logger *zap.Logger, opts ...WalletServiceOption) *WalletService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gateway == nil {
		gateway = NoopGateway{}
	}
	if sharePct <= 0 || sharePct > 100 {
		sharePct = 85
	}
	svc := &WalletService{
		store:    store,
		gateway:  gateway,
		audit:    audit,
		logger:   logger,
		sharePct: decimal.NewFromInt(sharePct),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreateAccount provisions a zero-balance account for a user. Idempotent.
func (s *WalletService) CreateAccount(ctx context.Context, userID string) error {
	if userID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "userId is required")
	}
	if err := s.store.CreateAccount(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create wallet account")
	}
	return nil
}

// ApplyTransaction appends one ledger entry and returns it together with
// the resulting balance.
func (s *WalletService) ApplyTransaction(ctx context.Context, req dto.ApplyTransactionRequest) (*models.WalletTransaction, decimal.Decimal, error) {
	txType, err := models.ParseTransactionType(req.Type)
	if err != nil {
		return nil, decimal.Zero, appErrors.Clone(appErrors.ErrValidation, "type must be DEPOSIT, WITHDRAW or BONUS")
	}
	if !req.Amount.IsPositive() {
		return nil, decimal.Zero, appErrors.Clone(appErrors.ErrValidation, "amount must be a positive magnitude")
	}
	txn := &models.WalletTransaction{
		UserID: req.UserID,
		Amount: req.Amount.RoundBank(2),
		Type:   txType,
	}
	if req.Description != "" {
		txn.Description = &req.Description
	}
	balance, err := s.store.ApplyTransaction(ctx, txn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, decimal.Zero, appErrors.WithDetails(appErrors.ErrAccountNotFound, map[string]interface{}{
				"userId": req.UserID,
			})
		}
		return nil, decimal.Zero, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply wallet transaction")
	}
	s.emitWalletAudit(ctx, models.AuditActionWalletApply, txn)
	return txn, balance, nil
}

// GetBalance reads the account balance from the same store the writes
// commit to; every previously committed transaction is reflected.
func (s *WalletService) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	account, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, appErrors.WithDetails(appErrors.ErrAccountNotFound, map[string]interface{}{
				"userId": userID,
			})
		}
		return decimal.Zero, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read wallet balance")
	}
	return account.Balance, nil
}

// ListTransactions returns the user's statement, newest first.
func (s *WalletService) ListTransactions(ctx context.Context, userID string, query dto.TransactionQuery) ([]models.WalletTransaction, error) {
	filter := models.TransactionFilter{
		Type:   query.Type,
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	transactions, err := s.store.ListTransactions(ctx, userID, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list wallet transactions")
	}
	return transactions, nil
}

// InstructorShare computes the instructor's cut of a lesson price,
// banker's-rounded to the smallest currency unit.
func (s *WalletService) InstructorShare(price decimal.Decimal) decimal.Decimal {
	return price.Mul(s.sharePct).Div(decimal.NewFromInt(100)).RoundBank(2)
}

// SettleLesson settles a completed lesson: it charges the gateway for
// non-cash methods, debits the student wallet where the method requires
// it, credits the instructor's share, and stamps the lesson's payment
// reference, all in one atomic unit. Returns "" when another settlement
// already committed for this lesson.
func (s *WalletService) SettleLesson(ctx context.Context, lesson *models.Lesson) (string, error) {
	started := time.Now()
	instructorShare := s.InstructorShare(lesson.Price)
	paymentID := uuid.NewString()

	params := repository.SettleLessonParams{
		LessonID:         lesson.ID,
		PaymentID:        paymentID,
		StudentID:        lesson.StudentID,
		InstructorID:     lesson.InstructorID,
		InstructorCredit: instructorShare,
		InstructorDesc:   fmt.Sprintf("lesson earnings %s", lesson.ID),
	}

	if lesson.PaymentMethod == models.PaymentMethodWallet {
		token, err := s.gateway.Charge(ctx, lesson.StudentID, lesson.ID, lesson.Price)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrSettlementFailure.Code, appErrors.ErrSettlementFailure.Status, "payment gateway charge failed")
		}
		params.StudentDebit = lesson.Price.RoundBank(2)
		params.StudentDesc = fmt.Sprintf("lesson payment %s", lesson.ID)
		if token != "" {
			params.StudentDesc = fmt.Sprintf("lesson payment %s (gateway %s)", lesson.ID, token)
		}
	}

	if err := s.store.SettleLesson(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// payment_id already stamped: a concurrent retry won
			s.observeSettlement("duplicate", started)
			return "", nil
		}
		s.observeSettlement("failure", started)
		return "", appErrors.Wrap(err, appErrors.ErrSettlementFailure.Code, appErrors.ErrSettlementFailure.Status, appErrors.ErrSettlementFailure.Message)
	}

	s.observeSettlement("success", started)
	s.emitSettleAudit(ctx, lesson, paymentID, instructorShare)
	return paymentID, nil
}

func (s *WalletService) observeSettlement(outcome string, started time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveSettlement(outcome, time.Since(started))
	}
}

func (s *WalletService) emitWalletAudit(ctx context.Context, action string, txn *models.WalletTransaction) {
	if s.audit == nil {
		return
	}
	raw, err := json.Marshal(map[string]interface{}{
		"amount": txn.Amount,
		"type":   txn.Type,
	})
	if err != nil {
		raw = []byte("{}")
	}
	log := &models.AuditLog{
		UserID:     &txn.UserID,
		Action:     action,
		Resource:   "wallet_transaction",
		ResourceID: &txn.ID,
		NewValues:  raw,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func (s *WalletService) emitSettleAudit(ctx context.Context, lesson *models.Lesson, paymentID string, instructorShare decimal.Decimal) {
	if s.audit == nil {
		return
	}
	raw, err := json.Marshal(map[string]interface{}{
		"paymentId":       paymentID,
		"instructorShare": instructorShare,
		"price":           lesson.Price,
		"method":          lesson.PaymentMethod,
	})
	if err != nil {
		raw = []byte("{}")
	}
	log := &models.AuditLog{
		Action:     models.AuditActionWalletSettle,
		Resource:   "lesson",
		ResourceID: &lesson.ID,
		NewValues:  raw,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

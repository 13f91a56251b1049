package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/driveline/lessons-api/internal/dto"
	"github.com/driveline/lessons-api/internal/models"
	appErrors "github.com/driveline/lessons-api/pkg/errors"
	"github.com/driveline/lessons-api/pkg/export"
)

type lessonReader interface {
	Get(ctx context.Context, lessonID string, actor *models.JWTClaims) (*models.Lesson, error)
}

type walletReader interface {
	ListTransactions(ctx context.Context, userID string, query dto.TransactionQuery) ([]models.WalletTransaction, error)
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	InstructorShare(price decimal.Decimal) decimal.Decimal
}

// StatementService renders wallet statements and settlement receipts
// for download.
type StatementService struct {
	lessons lessonReader
	wallet  walletReader
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
}

// NewStatementService constructs the exporter facade.
func NewStatementService(lessons lessonReader, wallet walletReader) *StatementService {
	return &StatementService{
		lessons: lessons,
		wallet:  wallet,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
	}
}

// WalletStatementCSV renders the actor's transaction log as CSV.
func (s *StatementService) WalletStatementCSV(ctx context.Context, actor *models.JWTClaims) ([]byte, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	transactions, err := s.wallet.ListTransactions(ctx, actor.UserID, dto.TransactionQuery{Limit: 500})
	if err != nil {
		return nil, err
	}
	headers := []string{"created_at", "type", "amount", "signed_amount", "description"}
	rows := make([]map[string]string, 0, len(transactions))
	for i := range transactions {
		txn := &transactions[i]
		description := ""
		if txn.Description != nil {
			description = *txn.Description
		}
		rows = append(rows, map[string]string{
			"created_at":    txn.CreatedAt.Format(time.RFC3339),
			"type":          string(txn.Type),
			"amount":        txn.Amount.StringFixedBank(2),
			"signed_amount": txn.SignedAmount().StringFixedBank(2),
			"description":   description,
		})
	}
	data, err := s.csv.Render(export.Dataset{Headers: headers, Rows: rows})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render statement")
	}
	return data, nil
}

// LessonReceiptPDF renders the settlement receipt for a completed,
// settled lesson.
func (s *StatementService) LessonReceiptPDF(ctx context.Context, lessonID string, actor *models.JWTClaims) ([]byte, error) {
	lesson, err := s.lessons.Get(ctx, lessonID, actor)
	if err != nil {
		return nil, err
	}
	if lesson.Status != models.LessonStatusCompleted || !lesson.IsSettled() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "receipt is available once the lesson is completed and settled")
	}

	instructorShare := s.wallet.InstructorShare(lesson.Price)
	platformFee := lesson.Price.Sub(instructorShare)

	receipt := export.Receipt{
		Title:     "Lesson Settlement Receipt",
		Reference: *lesson.PaymentID,
		Lines: []export.ReceiptLine{
			{Label: "Lesson", Value: lesson.ID},
			{Label: "Date", Value: lesson.ScheduledAt.Format("2006-01-02 15:04 MST")},
			{Label: "Payment method", Value: string(lesson.PaymentMethod)},
			{Label: "Instructor share", Value: instructorShare.StringFixedBank(2)},
			{Label: "Platform fee", Value: platformFee.StringFixedBank(2)},
		},
		Total:    lesson.Price.StringFixedBank(2),
		Footnote: fmt.Sprintf("Generated %s. Amounts are settled against the wallet ledger; this document is informational.", time.Now().UTC().Format(time.RFC3339)),
	}
	data, err := s.pdf.Render(receipt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return data, nil
}

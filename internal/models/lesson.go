package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LessonStatus is the closed set of lifecycle states. Any other value is
// rejected at the storage boundary.
type LessonStatus string

const (
	LessonStatusRequested  LessonStatus = "REQUESTED"
	LessonStatusConfirmed  LessonStatus = "CONFIRMED"
	LessonStatusInProgress LessonStatus = "IN_PROGRESS"
	LessonStatusCompleted  LessonStatus = "COMPLETED"
	LessonStatusRejected   LessonStatus = "REJECTED"
	LessonStatusExpired    LessonStatus = "EXPIRED"
	LessonStatusCancelled  LessonStatus = "CANCELLED"
)

// ParseLessonStatus validates a raw status value.
func ParseLessonStatus(raw string) (LessonStatus, error) {
	status := LessonStatus(raw)
	switch status {
	case LessonStatusRequested, LessonStatusConfirmed, LessonStatusInProgress,
		LessonStatusCompleted, LessonStatusRejected, LessonStatusExpired, LessonStatusCancelled:
		return status, nil
	}
	return "", fmt.Errorf("unknown lesson status: %q", raw)
}

// IsTerminal reports whether the status admits no further transitions.
func (s LessonStatus) IsTerminal() bool {
	switch s {
	case LessonStatusCompleted, LessonStatusRejected, LessonStatusExpired, LessonStatusCancelled:
		return true
	}
	return false
}

// PaymentMethod decides whether settlement debits the student wallet.
type PaymentMethod string

const (
	PaymentMethodWallet PaymentMethod = "WALLET"
	PaymentMethodCash   PaymentMethod = "CASH"
)

// ParsePaymentMethod validates a raw payment method value.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	method := PaymentMethod(raw)
	switch method {
	case PaymentMethodWallet, PaymentMethodCash:
		return method, nil
	}
	return "", fmt.Errorf("unknown payment method: %q", raw)
}

// Lesson is one scheduled driving session between a student and an
// instructor. Student, instructor, price, requestedAt and responseDeadline
// never change after creation; scheduledAt changes only via reschedule.
type Lesson struct {
	ID               string          `db:"id" json:"id"`
	StudentID        string          `db:"student_id" json:"student_id"`
	InstructorID     string          `db:"instructor_id" json:"instructor_id"`
	ScheduledAt      time.Time       `db:"scheduled_at" json:"scheduled_at"`
	RequestedAt      time.Time       `db:"requested_at" json:"requested_at"`
	ResponseDeadline time.Time       `db:"response_deadline" json:"response_deadline"`
	Status           LessonStatus    `db:"status" json:"status"`
	Price            decimal.Decimal `db:"price" json:"price"`
	PaymentMethod    PaymentMethod   `db:"payment_method" json:"payment_method"`
	PaymentID        *string         `db:"payment_id" json:"payment_id,omitempty"`
	RejectReason     *string         `db:"reject_reason" json:"reject_reason,omitempty"`
	CancelledBy      *string         `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// IsOverdue reports whether a REQUESTED lesson's response window has
// closed at the given instant. Pure function; the server clock is the
// only authority, client countdowns are advisory.
func (l *Lesson) IsOverdue(now time.Time) bool {
	return l.Status == LessonStatusRequested && now.After(l.ResponseDeadline)
}

// IsSettled reports whether settlement already ran for this lesson.
func (l *Lesson) IsSettled() bool {
	return l.PaymentID != nil && *l.PaymentID != ""
}

// LessonFilter constrains listing queries.
type LessonFilter struct {
	StudentID    string
	InstructorID string
	Status       []LessonStatus
	Limit        int
	Offset       int
}

package dto

import (
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/driveline/lessons-api/internal/models"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("paymentmethod", func(fl validator.FieldLevel) bool {
			_, err := models.ParsePaymentMethod(fl.Field().String())
			return err == nil
		})
	}
}

// RequestLessonRequest payload for creating a lesson request.
type RequestLessonRequest struct {
	InstructorID  string          `json:"instructorId" binding:"required"`
	ScheduledAt   time.Time       `json:"scheduledAt" binding:"required"`
	Price         decimal.Decimal `json:"price" binding:"required"`
	PaymentMethod string          `json:"paymentMethod" binding:"omitempty,paymentmethod"`
}

// RejectLessonRequest carries the instructor's rejection reason.
type RejectLessonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RescheduleLessonRequest carries the replacement time slot.
type RescheduleLessonRequest struct {
	ScheduledAt time.Time `json:"scheduledAt" binding:"required"`
}

// LessonQuery mirrors supported listing filters.
type LessonQuery struct {
	Status []models.LessonStatus
	Limit  int
	Offset int
}

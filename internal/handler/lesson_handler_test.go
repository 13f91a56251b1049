package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveline/lessons-api/internal/dto"
	"github.com/driveline/lessons-api/internal/middleware"
	"github.com/driveline/lessons-api/internal/models"
	appErrors "github.com/driveline/lessons-api/pkg/errors"
)

type lessonServiceMock struct {
	lesson     *models.Lesson
	lessons    []models.Lesson
	err        error
	lastQuery  dto.LessonQuery
	lastReason string
	lastSlot   time.Time
	called     string
}

func (m *lessonServiceMock) Request(ctx context.Context, studentID string, req dto.RequestLessonRequest) (*models.Lesson, error) {
	m.called = "request"
	return m.lesson, m.err
}

func (m *lessonServiceMock) Get(ctx context.Context, lessonID string, actor *models.JWTClaims) (*models.Lesson, error) {
	m.called = "get"
	return m.lesson, m.err
}

func (m *lessonServiceMock) List(ctx context.Context, query dto.LessonQuery, actor *models.JWTClaims) ([]models.Lesson, error) {
	m.called = "list"
	m.lastQuery = query
	return m.lessons, m.err
}

func (m *lessonServiceMock) Accept(ctx context.Context, lessonID, instructorID string) (*models.Lesson, error) {
	m.called = "accept"
	return m.lesson, m.err
}

func (m *lessonServiceMock) Reject(ctx context.Context, lessonID, instructorID, reason string) (*models.Lesson, error) {
	m.called = "reject"
	m.lastReason = reason
	return m.lesson, m.err
}

func (m *lessonServiceMock) Reschedule(ctx context.Context, lessonID, instructorID string, newScheduledAt time.Time) (*models.Lesson, error) {
	m.called = "reschedule"
	m.lastSlot = newScheduledAt
	return m.lesson, m.err
}

func (m *lessonServiceMock) Start(ctx context.Context, lessonID, instructorID string) (*models.Lesson, error) {
	m.called = "start"
	return m.lesson, m.err
}

func (m *lessonServiceMock) Complete(ctx context.Context, lessonID, instructorID string) (*models.Lesson, error) {
	m.called = "complete"
	return m.lesson, m.err
}

func (m *lessonServiceMock) Cancel(ctx context.Context, lessonID, actorID string) (*models.Lesson, error) {
	m.called = "cancel"
	return m.lesson, m.err
}

type receiptServiceMock struct {
	pdf []byte
	err error
}

func (m *receiptServiceMock) LessonReceiptPDF(ctx context.Context, lessonID string, actor *models.JWTClaims) ([]byte, error) {
	return m.pdf, m.err
}

func sampleLesson() *models.Lesson {
	return &models.Lesson{
		ID:           "lesson-1",
		StudentID:    "student-1",
		InstructorID: "instructor-1",
		Status:       models.LessonStatusRequested,
		Price:        decimal.RequireFromString("50.00"),
	}
}

func studentContext(w *httptest.ResponseRecorder, method, target string, body []byte) *gin.Context {
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != nil {
		req, _ = http.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, target, nil)
	}
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
	return c
}

func TestLessonHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &lessonServiceMock{lesson: sampleLesson()}
	handler := NewLessonHandler(mockSvc, nil)

	payload, _ := json.Marshal(dto.RequestLessonRequest{
		InstructorID: "instructor-1",
		ScheduledAt:  time.Now().Add(3 * time.Hour),
		Price:        decimal.RequireFromString("50.00"),
	})
	w := httptest.NewRecorder()
	c := studentContext(w, http.MethodPost, "/lessons", payload)

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "request", mockSvc.called)
}

func TestLessonHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLessonHandler(&lessonServiceMock{}, nil)

	w := httptest.NewRecorder()
	c := studentContext(w, http.MethodPost, "/lessons", []byte(`{"instructorId":`))

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLessonHandlerCreateConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &lessonServiceMock{err: appErrors.ErrConflictingRequest}
	handler := NewLessonHandler(mockSvc, nil)

	payload, _ := json.Marshal(dto.RequestLessonRequest{
		InstructorID: "instructor-1",
		ScheduledAt:  time.Now().Add(3 * time.Hour),
		Price:        decimal.RequireFromString("50.00"),
	})
	w := httptest.NewRecorder()
	c := studentContext(w, http.MethodPost, "/lessons", payload)

	handler.Create(c)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "CONFLICTING_REQUEST", envelope.Error.Code)
}

func TestLessonHandlerListParsesStatuses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &lessonServiceMock{lessons: []models.Lesson{*sampleLesson()}}
	handler := NewLessonHandler(mockSvc, nil)

	w := httptest.NewRecorder()
	c := studentContext(w, http.MethodGet, "/lessons?status=requested,confirmed&limit=10", nil)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []models.LessonStatus{models.LessonStatusRequested, models.LessonStatusConfirmed}, mockSvc.lastQuery.Status)
	assert.Equal(t, 10, mockSvc.lastQuery.Limit)
}

func TestLessonHandlerListUnknownStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLessonHandler(&lessonServiceMock{}, nil)

	w := httptest.NewRecorder()
	c := studentContext(w, http.MethodGet, "/lessons?status=LIMBO", nil)

	handler.List(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLessonHandlerAcceptDeadlineExceeded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &lessonServiceMock{err: appErrors.ErrDeadlineExceeded}
	handler := NewLessonHandler(mockSvc, nil)

	w := httptest.NewRecorder()
	c := studentContext(w, http.MethodPost, "/lessons/lesson-1/accept", nil)
	c.Params = gin.Params{{Key: "id", Value: "lesson-1"}}

	handler.Accept(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "accept", mockSvc.called)
}

func TestLessonHandlerRejectRequiresReason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &lessonServiceMock{lesson: sampleLesson()}
	handler := NewLessonHandler(mockSvc, nil)

	w := httptest.NewRecorder()
	c := studentContext(w, http.MethodPost, "/lessons/lesson-1/reject", []byte(`{}`))
	c.Params = gin.Params{{Key: "id", Value: "lesson-1"}}

	handler.Reject(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, mockSvc.called)

	w = httptest.NewRecorder()
	c = studentContext(w, http.MethodPost, "/lessons/lesson-1/reject", []byte(`{"reason":"fully booked"}`))
	c.Params = gin.Params{{Key: "id", Value: "lesson-1"}}

	handler.Reject(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fully booked", mockSvc.lastReason)
}

func TestLessonHandlerCompleteSettlementFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &lessonServiceMock{err: appErrors.ErrSettlementFailure}
	handler := NewLessonHandler(mockSvc, nil)

	w := httptest.NewRecorder()
	c := studentContext(w, http.MethodPost, "/lessons/lesson-1/complete", nil)
	c.Params = gin.Params{{Key: "id", Value: "lesson-1"}}

	handler.Complete(c)
	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestLessonHandlerMissingClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLessonHandler(&lessonServiceMock{}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/lessons", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLessonHandlerReceipt(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLessonHandler(&lessonServiceMock{}, &receiptServiceMock{pdf: []byte("%PDF-1.4")})

	w := httptest.NewRecorder()
	c := studentContext(w, http.MethodGet, "/lessons/lesson-1/receipt.pdf", nil)
	c.Params = gin.Params{{Key: "id", Value: "lesson-1"}}

	handler.Receipt(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "lesson-1")
}

func TestLessonHandlerReceiptNotSettled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLessonHandler(&lessonServiceMock{}, &receiptServiceMock{err: appErrors.ErrInvalidState})

	w := httptest.NewRecorder()
	c := studentContext(w, http.MethodGet, "/lessons/lesson-1/receipt.pdf", nil)
	c.Params = gin.Params{{Key: "id", Value: "lesson-1"}}

	handler.Receipt(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

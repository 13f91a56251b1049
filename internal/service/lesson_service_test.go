package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/driveline/lessons-api/internal/dto"
	"github.com/driveline/lessons-api/internal/models"
	"github.com/driveline/lessons-api/internal/repository"
	"github.com/driveline/lessons-api/pkg/config"
	appErrors "github.com/driveline/lessons-api/pkg/errors"
)

type lessonStoreStub struct {
	lessons map[string]*models.Lesson
	filter  models.LessonFilter
	open    bool
}

func newLessonStoreStub() *lessonStoreStub {
	return &lessonStoreStub{lessons: make(map[string]*models.Lesson)}
}

func (s *lessonStoreStub) Create(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = "lesson-1"
	}
	copy := *lesson
	s.lessons[lesson.ID] = &copy
	return nil
}

func (s *lessonStoreStub) GetByID(ctx context.Context, id string) (*models.Lesson, error) {
	if lesson, ok := s.lessons[id]; ok {
		copy := *lesson
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *lessonStoreStub) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error) {
	s.filter = filter
	result := make([]models.Lesson, 0, len(s.lessons))
	for _, lesson := range s.lessons {
		result = append(result, *lesson)
	}
	return result, nil
}

func (s *lessonStoreStub) UpdateStatus(ctx context.Context, params repository.UpdateLessonStatusParams) error {
	lesson, ok := s.lessons[params.ID]
	if !ok || lesson.Status != params.From {
		return sql.ErrNoRows
	}
	lesson.Status = params.To
	if params.RejectReason != nil {
		lesson.RejectReason = params.RejectReason
	}
	if params.CancelledBy != nil {
		lesson.CancelledBy = params.CancelledBy
	}
	return nil
}

func (s *lessonStoreStub) UpdateSchedule(ctx context.Context, id string, scheduledAt time.Time) error {
	lesson, ok := s.lessons[id]
	if !ok || lesson.Status != models.LessonStatusConfirmed {
		return sql.ErrNoRows
	}
	lesson.ScheduledAt = scheduledAt
	return nil
}

func (s *lessonStoreStub) ExistsOpenWithInstructor(ctx context.Context, studentID, instructorID string, now time.Time) (bool, error) {
	return s.open, nil
}

func (s *lessonStoreStub) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	for _, lesson := range s.lessons {
		if lesson.IsOverdue(now) {
			lesson.Status = models.LessonStatusExpired
			count++
		}
	}
	return count, nil
}

type settlerStub struct {
	paymentID string
	err       error
	calls     int
}

func (s *settlerStub) SettleLesson(ctx context.Context, lesson *models.Lesson) (string, error) {
	s.calls++
	return s.paymentID, s.err
}

type notifierStub struct {
	events []models.LessonStatus
}

func (n *notifierStub) Notify(lessonID string, status models.LessonStatus) {
	n.events = append(n.events, status)
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

var testBase = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

func newTestLessonService(store *lessonStoreStub, settler *settlerStub, notifier *notifierStub, audit *auditStub, now *time.Time) *LessonService {
	cfg := config.LessonsConfig{
		ResponseWindow: 120 * time.Second,
		MinLeadTime:    2 * time.Hour,
	}
	return NewLessonService(store, settler, notifier, audit, cfg, nil,
		WithLessonClock(func() time.Time { return *now }))
}

func seedLesson(store *lessonStoreStub, status models.LessonStatus) *models.Lesson {
	lesson := &models.Lesson{
		ID:               "lesson-1",
		StudentID:        "student-1",
		InstructorID:     "instructor-1",
		ScheduledAt:      testBase.Add(3 * time.Hour),
		RequestedAt:      testBase,
		ResponseDeadline: testBase.Add(120 * time.Second),
		Status:           status,
		Price:            decimal.RequireFromString("50.00"),
		PaymentMethod:    models.PaymentMethodWallet,
	}
	store.lessons[lesson.ID] = lesson
	return lesson
}

func TestLessonServiceRequest(t *testing.T) {
	store := newLessonStoreStub()
	audit := &auditStub{}
	now := testBase
	svc := newTestLessonService(store, &settlerStub{}, &notifierStub{}, audit, &now)

	lesson, err := svc.Request(context.Background(), "student-1", dto.RequestLessonRequest{
		InstructorID: "instructor-1",
		ScheduledAt:  testBase.Add(3 * time.Hour),
		Price:        decimal.RequireFromString("50.00"),
	})
	require.NoError(t, err)
	require.Equal(t, models.LessonStatusRequested, lesson.Status)
	require.Equal(t, testBase.Add(120*time.Second), lesson.ResponseDeadline)
	require.Equal(t, models.PaymentMethodWallet, lesson.PaymentMethod)
	require.Len(t, audit.logs, 1)
}

func TestLessonServiceRequestLeadTimeTooShort(t *testing.T) {
	store := newLessonStoreStub()
	now := testBase
	svc := newTestLessonService(store, &settlerStub{}, &notifierStub{}, &auditStub{}, &now)

	_, err := svc.Request(context.Background(), "student-1", dto.RequestLessonRequest{
		InstructorID: "instructor-1",
		ScheduledAt:  testBase.Add(1 * time.Hour),
		Price:        decimal.RequireFromString("50.00"),
	})
	require.ErrorIs(t, err, appErrors.ErrInvalidSchedule)
}

func TestLessonServiceRequestConflict(t *testing.T) {
	store := newLessonStoreStub()
	store.open = true
	now := testBase
	svc := newTestLessonService(store, &settlerStub{}, &notifierStub{}, &auditStub{}, &now)

	_, err := svc.Request(context.Background(), "student-1", dto.RequestLessonRequest{
		InstructorID: "instructor-1",
		ScheduledAt:  testBase.Add(3 * time.Hour),
		Price:        decimal.RequireFromString("50.00"),
	})
	require.ErrorIs(t, err, appErrors.ErrConflictingRequest)
}

func TestLessonServiceAcceptWithinWindow(t *testing.T) {
	store := newLessonStoreStub()
	notifier := &notifierStub{}
	now := testBase
	svc := newTestLessonService(store, &settlerStub{}, notifier, &auditStub{}, &now)
	seedLesson(store, models.LessonStatusRequested)

	now = testBase.Add(119 * time.Second)
	lesson, err := svc.Accept(context.Background(), "lesson-1", "instructor-1")
	require.NoError(t, err)
	require.Equal(t, models.LessonStatusConfirmed, lesson.Status)
	require.Equal(t, []models.LessonStatus{models.LessonStatusConfirmed}, notifier.events)
}

func TestLessonServiceAcceptAfterDeadline(t *testing.T) {
	store := newLessonStoreStub()
	now := testBase
	svc := newTestLessonService(store, &settlerStub{}, &notifierStub{}, &auditStub{}, &now)
	seedLesson(store, models.LessonStatusRequested)

	now = testBase.Add(121 * time.Second)
	_, err := svc.Accept(context.Background(), "lesson-1", "instructor-1")
	require.ErrorIs(t, err, appErrors.ErrDeadlineExceeded)
	require.Equal(t, models.LessonStatusExpired, store.lessons["lesson-1"].Status)
}

func TestLessonServiceAcceptWrongInstructor(t *testing.T) {
	store := newLessonStoreStub()
	now := testBase
	svc := newTestLessonService(store, &settlerStub{}, &notifierStub{}, &auditStub{}, &now)
	seedLesson(store, models.LessonStatusRequested)

	_, err := svc.Accept(context.Background(), "lesson-1", "instructor-2")
	require.ErrorIs(t, err, appErrors.ErrNotAuthorized)
	require.Equal(t, models.LessonStatusRequested, store.lessons["lesson-1"].Status)
}

func TestLessonServiceAcceptLosesRace(t *testing.T) {
	store := newLessonStoreStub()
	now := testBase
	svc := newTestLessonService(store, &settlerStub{}, &notifierStub{}, &auditStub{}, &now)
	lesson := seedLesson(store, models.LessonStatusRequested)

	// another transition commits between the read and the guarded update
	loaded, err := svc.load(context.Background(), lesson.ID)
	require.NoError(t, err)
	store.lessons[lesson.ID].Status = models.LessonStatusCancelled

	err = svc.transition(context.Background(), loaded, models.LessonStatusConfirmed, repository.UpdateLessonStatusParams{})
	require.ErrorIs(t, err, appErrors.ErrInvalidState)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, models.LessonStatusCancelled, appErr.Details["actualStatus"])
}

func TestLessonServiceReject(t *testing.T) {
	store := newLessonStoreStub()
	now := testBase
	svc := newTestLessonService(store, &settlerStub{}, &notifierStub{}, &auditStub{}, &now)
	seedLesson(store, models.LessonStatusRequested)

	lesson, err := svc.Reject(context.Background(), "lesson-1", "instructor-1", "fully booked")
	require.NoError(t, err)
	require.Equal(t, models.LessonStatusRejected, lesson.Status)
	require.NotNil(t, lesson.RejectReason)
	require.Equal(t, "fully booked", *lesson.RejectReason)
}

func TestLessonServiceGetLazyExpiry(t *testing.T) {
	store := newLessonStoreStub()
	notifier := &notifierStub{}
	now := testBase
	svc := newTestLessonService(store, &settlerStub{}, notifier, &auditStub{}, &now)
	seedLesson(store, models.LessonStatusRequested)

	now = testBase.Add(10 * time.Minute)
	actor := &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}
	lesson, err := svc.Get(context.Background(), "lesson-1", actor)
	require.NoError(t, err)
	require.Equal(t, models.LessonStatusExpired, lesson.Status)
	require.Equal(t, []models.LessonStatus{models.LessonStatusExpired}, notifier.events)

	// second read is a no-op
	lesson, err = svc.Get(context.Background(), "lesson-1", actor)
	require.NoError(t, err)
	require.Equal(t, models.LessonStatusExpired, lesson.Status)
	require.Len(t, notifier.events, 1)
}

func TestLessonServiceGetForbidden(t *testing.T) {
	store := newLessonStoreStub()
	now := testBase
	svc := newTestLessonService(store, &settlerStub{}, &notifierStub{}, &auditStub{}, &now)
	seedLesson(store, models.LessonStatusConfirmed)

	_, err := svc.Get(context.Background(), "lesson-1", &models.JWTClaims{UserID: "student-2", Role: models.RoleStudent})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestLessonServiceListScopesToRole(t *testing.T) {
	store := newLessonStoreStub()
	now := testBase
	svc := newTestLessonService(store, &settlerStub{}, &notifierStub{}, &auditStub{}, &now)

	_, err := svc.List(context.Background(), dto.LessonQuery{}, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
	require.NoError(t, err)
	require.Equal(t, "student-1", store.filter.StudentID)

	_, err = svc.List(context.Background(), dto.LessonQuery{}, &models.JWTClaims{UserID: "instructor-1", Role: models.RoleInstructor})
	require.NoError(t, err)
	require.Equal(t, "instructor-1", store.filter.InstructorID)
}

func TestLessonServiceReschedule(t *testing.T) {
	store := newLessonStoreStub()
	now := testBase
	svc := newTestLessonService(store, &settlerStub{}, &notifierStub{}, &auditStub{}, &now)
	seedLesson(store, models.LessonStatusConfirmed)

	newSlot := testBase.Add(5 * time.Hour)
	lesson, err := svc.Reschedule(context.Background(), "lesson-1", "instructor-1", newSlot)
	require.NoError(t, err)
	require.Equal(t, newSlot, lesson.ScheduledAt)

	_, err = svc.Reschedule(context.Background(), "lesson-1", "instructor-1", testBase.Add(1*time.Hour))
	require.ErrorIs(t, err, appErrors.ErrInvalidSchedule)
}

func TestLessonServiceStart(t *testing.T) {
	store := newLessonStoreStub()
	now := testBase
	svc := newTestLessonService(store, &settlerStub{}, &notifierStub{}, &auditStub{}, &now)
	seedLesson(store, models.LessonStatusConfirmed)

	_, err := svc.Start(context.Background(), "lesson-1", "instructor-1")
	require.ErrorIs(t, err, appErrors.ErrInvalidSchedule)

	now = testBase.Add(3 * time.Hour)
	lesson, err := svc.Start(context.Background(), "lesson-1", "instructor-1")
	require.NoError(t, err)
	require.Equal(t, models.LessonStatusInProgress, lesson.Status)
}

func TestLessonServiceComplete(t *testing.T) {
	store := newLessonStoreStub()
	settler := &settlerStub{paymentID: "pay-1"}
	now := testBase.Add(4 * time.Hour)
	svc := newTestLessonService(store, settler, &notifierStub{}, &auditStub{}, &now)
	seedLesson(store, models.LessonStatusInProgress)

	lesson, err := svc.Complete(context.Background(), "lesson-1", "instructor-1")
	require.NoError(t, err)
	require.Equal(t, models.LessonStatusCompleted, lesson.Status)
	require.NotNil(t, lesson.PaymentID)
	require.Equal(t, "pay-1", *lesson.PaymentID)
	require.Equal(t, 1, settler.calls)
}

func TestLessonServiceCompleteIdempotent(t *testing.T) {
	store := newLessonStoreStub()
	settler := &settlerStub{paymentID: "pay-1"}
	now := testBase.Add(4 * time.Hour)
	svc := newTestLessonService(store, settler, &notifierStub{}, &auditStub{}, &now)
	lesson := seedLesson(store, models.LessonStatusCompleted)
	paymentID := "pay-1"
	lesson.PaymentID = &paymentID

	result, err := svc.Complete(context.Background(), "lesson-1", "instructor-1")
	require.NoError(t, err)
	require.Equal(t, "pay-1", *result.PaymentID)
	require.Zero(t, settler.calls)
}

func TestLessonServiceCompleteRetriesUnsettled(t *testing.T) {
	store := newLessonStoreStub()
	settler := &settlerStub{paymentID: "pay-2"}
	now := testBase.Add(4 * time.Hour)
	svc := newTestLessonService(store, settler, &notifierStub{}, &auditStub{}, &now)
	seedLesson(store, models.LessonStatusCompleted)

	result, err := svc.Complete(context.Background(), "lesson-1", "instructor-1")
	require.NoError(t, err)
	require.Equal(t, "pay-2", *result.PaymentID)
	require.Equal(t, 1, settler.calls)
}

func TestLessonServiceCompleteConcurrentSettlement(t *testing.T) {
	store := newLessonStoreStub()
	settler := &settlerStub{paymentID: ""}
	now := testBase.Add(4 * time.Hour)
	svc := newTestLessonService(store, settler, &notifierStub{}, &auditStub{}, &now)
	seedLesson(store, models.LessonStatusInProgress)
	// the concurrent winner's stamp is visible on reload
	winner := "pay-other"
	store.lessons["lesson-1"].PaymentID = &winner

	result, err := svc.Complete(context.Background(), "lesson-1", "instructor-1")
	require.NoError(t, err)
	require.Equal(t, "pay-other", *result.PaymentID)
}

func TestLessonServiceCompleteSettlementFailure(t *testing.T) {
	store := newLessonStoreStub()
	settler := &settlerStub{err: appErrors.ErrSettlementFailure}
	now := testBase.Add(4 * time.Hour)
	svc := newTestLessonService(store, settler, &notifierStub{}, &auditStub{}, &now)
	seedLesson(store, models.LessonStatusInProgress)

	_, err := svc.Complete(context.Background(), "lesson-1", "instructor-1")
	require.ErrorIs(t, err, appErrors.ErrSettlementFailure)
	// lesson stays COMPLETED and unsettled, ready for a retry
	require.Equal(t, models.LessonStatusCompleted, store.lessons["lesson-1"].Status)
	require.Nil(t, store.lessons["lesson-1"].PaymentID)
}

func TestLessonServiceCancel(t *testing.T) {
	store := newLessonStoreStub()
	now := testBase
	svc := newTestLessonService(store, &settlerStub{}, &notifierStub{}, &auditStub{}, &now)
	seedLesson(store, models.LessonStatusConfirmed)

	lesson, err := svc.Cancel(context.Background(), "lesson-1", "student-1")
	require.NoError(t, err)
	require.Equal(t, models.LessonStatusCancelled, lesson.Status)
	require.NotNil(t, lesson.CancelledBy)
	require.Equal(t, "student-1", *lesson.CancelledBy)
}

func TestLessonServiceCancelInvalidStates(t *testing.T) {
	store := newLessonStoreStub()
	now := testBase
	svc := newTestLessonService(store, &settlerStub{}, &notifierStub{}, &auditStub{}, &now)

	for _, status := range []models.LessonStatus{models.LessonStatusInProgress, models.LessonStatusCompleted, models.LessonStatusRejected} {
		store.lessons = map[string]*models.Lesson{}
		seedLesson(store, status)
		_, err := svc.Cancel(context.Background(), "lesson-1", "student-1")
		require.ErrorIs(t, err, appErrors.ErrInvalidState, "status %s", status)
	}
}

func TestLessonServiceCancelByOutsider(t *testing.T) {
	store := newLessonStoreStub()
	now := testBase
	svc := newTestLessonService(store, &settlerStub{}, &notifierStub{}, &auditStub{}, &now)
	seedLesson(store, models.LessonStatusConfirmed)

	_, err := svc.Cancel(context.Background(), "lesson-1", "someone-else")
	require.ErrorIs(t, err, appErrors.ErrNotAuthorized)
}

func TestLessonServiceSweepOverdue(t *testing.T) {
	store := newLessonStoreStub()
	now := testBase.Add(10 * time.Minute)
	svc := newTestLessonService(store, &settlerStub{}, &notifierStub{}, &auditStub{}, &now)
	seedLesson(store, models.LessonStatusRequested)

	count, err := svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	require.Equal(t, models.LessonStatusExpired, store.lessons["lesson-1"].Status)
}

func TestLessonServiceNotFound(t *testing.T) {
	store := newLessonStoreStub()
	now := testBase
	svc := newTestLessonService(store, &settlerStub{}, &notifierStub{}, &auditStub{}, &now)

	_, err := svc.Accept(context.Background(), "missing", "instructor-1")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
	require.False(t, errors.Is(err, appErrors.ErrInvalidState))
}

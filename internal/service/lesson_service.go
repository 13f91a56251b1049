package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/driveline/lessons-api/internal/dto"
	"github.com/driveline/lessons-api/internal/models"
	"github.com/driveline/lessons-api/internal/repository"
	"github.com/driveline/lessons-api/pkg/config"
	appErrors "github.com/driveline/lessons-api/pkg/errors"
)

type lessonStore interface {
	Create(ctx context.Context, lesson *models.Lesson) error
	GetByID(ctx context.Context, id string) (*models.Lesson, error)
	List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error)
	UpdateStatus(ctx context.Context, params repository.UpdateLessonStatusParams) error
	UpdateSchedule(ctx context.Context, id string, scheduledAt time.Time) error
	ExistsOpenWithInstructor(ctx context.Context, studentID, instructorID string, now time.Time) (bool, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// lessonSettler is the wallet ledger side of completion. It returns the
// payment reference stamped on the lesson, or "" when a concurrent
// settlement already committed.
type lessonSettler interface {
	SettleLesson(ctx context.Context, lesson *models.Lesson) (string, error)
}

// transitionNotifier delivers best-effort lifecycle events. Failures are
// the notifier's problem; they never roll back a transition.
type transitionNotifier interface {
	Notify(lessonID string, status models.LessonStatus)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type transitionMetrics interface {
	ObserveTransition(to models.LessonStatus)
}

// LessonService is the lesson lifecycle coordinator: it validates
// commands against the current lesson state, applies transitions through
// the store's conditional update, and triggers settlement on completion.
type LessonService struct {
	store    lessonStore
	settler  lessonSettler
	notifier transitionNotifier
	audit    auditLogger
	metrics  transitionMetrics
	logger   *zap.Logger

	responseWindow time.Duration
	minLeadTime    time.Duration
	now            func() time.Time
}

// LessonServiceOption configures the service.
type LessonServiceOption func(*LessonService)

// WithLessonClock overrides the time source (used by tests).
func WithLessonClock(now func() time.Time) LessonServiceOption {
	return func(s *LessonService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLessonMetrics attaches transition instrumentation.
func WithLessonMetrics(metrics transitionMetrics) LessonServiceOption {
	return func(s *LessonService) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// NewLessonService constructs the coordinator.
func NewLessonService(store lessonStore, settler lessonSettler, notifier transitionNotifier, audit auditLogger, cfg config.LessonsConfig, logger *zap.Logger, opts ...LessonServiceOption) *LessonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	window := cfg.ResponseWindow
	if window <= 0 {
		window = 120 * time.Second
	}
	lead := cfg.MinLeadTime
	if lead <= 0 {
		lead = 2 * time.Hour
	}
	svc := &LessonService{
		store:          store,
		settler:        settler,
		notifier:       notifier,
		audit:          audit,
		logger:         logger,
		responseWindow: window,
		minLeadTime:    lead,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Request creates a new lesson in REQUESTED state with the response
// deadline fixed at creation time.
func (s *LessonService) Request(ctx context.Context, studentID string, req dto.RequestLessonRequest) (*models.Lesson, error) {
	now := s.now()
	if req.InstructorID == "" || req.InstructorID == studentID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a lesson needs a distinct instructor")
	}
	if !req.Price.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "price must be positive")
	}
	method := models.PaymentMethodWallet
	if req.PaymentMethod != "" {
		parsed, err := models.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "payment method must be WALLET or CASH")
		}
		method = parsed
	}
	if err := s.checkLeadTime(req.ScheduledAt, now); err != nil {
		return nil, err
	}

	open, err := s.store.ExistsOpenWithInstructor(ctx, studentID, req.InstructorID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check outstanding requests")
	}
	if open {
		return nil, appErrors.WithDetails(appErrors.ErrConflictingRequest, map[string]interface{}{
			"instructorId": req.InstructorID,
		})
	}

	lesson := &models.Lesson{
		StudentID:        studentID,
		InstructorID:     req.InstructorID,
		ScheduledAt:      req.ScheduledAt.UTC(),
		RequestedAt:      now,
		ResponseDeadline: now.Add(s.responseWindow),
		Status:           models.LessonStatusRequested,
		Price:            req.Price,
		PaymentMethod:    method,
	}
	if err := s.store.Create(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson request")
	}
	s.emitAudit(ctx, studentID, models.AuditActionLessonRequest, lesson, nil)
	return lesson, nil
}

// Accept confirms a pending request. Only the addressed instructor may
// accept, and only while the response window is open.
func (s *LessonService) Accept(ctx context.Context, lessonID, instructorID string) (*models.Lesson, error) {
	lesson, err := s.load(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.Status != models.LessonStatusRequested {
		return nil, s.invalidState(lesson, models.LessonStatusRequested)
	}
	if lesson.InstructorID != instructorID {
		return nil, s.notAuthorized(lesson)
	}
	now := s.now()
	if lesson.IsOverdue(now) {
		s.lazyExpire(ctx, lesson)
		return nil, appErrors.WithDetails(appErrors.ErrDeadlineExceeded, map[string]interface{}{
			"lessonId": lesson.ID,
			"deadline": lesson.ResponseDeadline,
		})
	}
	if err := s.transition(ctx, lesson, models.LessonStatusConfirmed, repository.UpdateLessonStatusParams{}); err != nil {
		return nil, err
	}
	return lesson, nil
}

// Reject declines a pending request, recording the instructor's reason.
func (s *LessonService) Reject(ctx context.Context, lessonID, instructorID, reason string) (*models.Lesson, error) {
	lesson, err := s.load(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.Status != models.LessonStatusRequested {
		return nil, s.invalidState(lesson, models.LessonStatusRequested)
	}
	if lesson.InstructorID != instructorID {
		return nil, s.notAuthorized(lesson)
	}
	now := s.now()
	if lesson.IsOverdue(now) {
		s.lazyExpire(ctx, lesson)
		return nil, appErrors.WithDetails(appErrors.ErrDeadlineExceeded, map[string]interface{}{
			"lessonId": lesson.ID,
			"deadline": lesson.ResponseDeadline,
		})
	}
	params := repository.UpdateLessonStatusParams{RejectReason: &reason}
	if err := s.transition(ctx, lesson, models.LessonStatusRejected, params); err != nil {
		return nil, err
	}
	lesson.RejectReason = &reason
	return lesson, nil
}

// ExpireIfOverdue is the idempotent lazy expiry check: a REQUESTED lesson
// past its deadline moves to EXPIRED, anything else is a no-op. Every
// read of a REQUESTED lesson funnels through here so stale requests never
// look actionable.
func (s *LessonService) ExpireIfOverdue(ctx context.Context, lessonID string) (*models.Lesson, error) {
	lesson, err := s.load(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.IsOverdue(s.now()) {
		s.lazyExpire(ctx, lesson)
	}
	return lesson, nil
}

// Get returns a lesson, lazily expiring an overdue request first.
func (s *LessonService) Get(ctx context.Context, lessonID string, actor *models.JWTClaims) (*models.Lesson, error) {
	lesson, err := s.ExpireIfOverdue(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if !s.mayView(lesson, actor) {
		return nil, appErrors.ErrForbidden
	}
	return lesson, nil
}

// List returns lessons scoped to the actor. Overdue requests in the page
// are lazily expired before they are surfaced.
func (s *LessonService) List(ctx context.Context, query dto.LessonQuery, actor *models.JWTClaims) ([]models.Lesson, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.LessonFilter{
		Status: query.Status,
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	switch actor.Role {
	case models.RoleAdmin:
		// full access
	case models.RoleStudent:
		filter.StudentID = actor.UserID
	case models.RoleInstructor:
		filter.InstructorID = actor.UserID
	default:
		return nil, appErrors.ErrForbidden
	}
	lessons, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	now := s.now()
	for i := range lessons {
		if lessons[i].IsOverdue(now) {
			s.lazyExpire(ctx, &lessons[i])
		}
	}
	return lessons, nil
}

// Reschedule moves a confirmed lesson to a new slot, re-checking the
// minimum lead time at the instant of the call.
func (s *LessonService) Reschedule(ctx context.Context, lessonID, instructorID string, newScheduledAt time.Time) (*models.Lesson, error) {
	lesson, err := s.load(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.Status != models.LessonStatusConfirmed {
		return nil, s.invalidState(lesson, models.LessonStatusConfirmed)
	}
	if lesson.InstructorID != instructorID {
		return nil, s.notAuthorized(lesson)
	}
	if err := s.checkLeadTime(newScheduledAt, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateSchedule(ctx, lesson.ID, newScheduledAt.UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.reloadInvalidState(ctx, lesson, models.LessonStatusConfirmed)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reschedule lesson")
	}
	previous := lesson.ScheduledAt
	lesson.ScheduledAt = newScheduledAt.UTC()
	s.emitAudit(ctx, instructorID, models.AuditActionLessonReschedule, lesson, map[string]interface{}{
		"previousScheduledAt": previous,
	})
	return lesson, nil
}

// Start moves a confirmed lesson into progress once its slot has arrived.
func (s *LessonService) Start(ctx context.Context, lessonID, instructorID string) (*models.Lesson, error) {
	lesson, err := s.load(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.Status != models.LessonStatusConfirmed {
		return nil, s.invalidState(lesson, models.LessonStatusConfirmed)
	}
	if lesson.InstructorID != instructorID {
		return nil, s.notAuthorized(lesson)
	}
	now := s.now()
	if now.Before(lesson.ScheduledAt) {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvalidSchedule, "lesson has not reached its scheduled time"), map[string]interface{}{
			"lessonId":    lesson.ID,
			"scheduledAt": lesson.ScheduledAt,
		})
	}
	if err := s.transition(ctx, lesson, models.LessonStatusInProgress, repository.UpdateLessonStatusParams{}); err != nil {
		return nil, err
	}
	return lesson, nil
}

// Complete finishes a lesson and settles funds. The settlement is keyed
// by the lesson, so retried calls observe the payment reference and write
// nothing further to the ledger.
func (s *LessonService) Complete(ctx context.Context, lessonID, instructorID string) (*models.Lesson, error) {
	lesson, err := s.load(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.InstructorID != instructorID {
		return nil, s.notAuthorized(lesson)
	}

	switch lesson.Status {
	case models.LessonStatusInProgress:
		if err := s.transition(ctx, lesson, models.LessonStatusCompleted, repository.UpdateLessonStatusParams{}); err != nil {
			return nil, err
		}
	case models.LessonStatusCompleted:
		if lesson.IsSettled() {
			return lesson, nil
		}
		// completed but unsettled: a previous settlement rolled back,
		// retry it without another transition
	default:
		return nil, s.invalidState(lesson, models.LessonStatusInProgress)
	}

	paymentID, err := s.settler.SettleLesson(ctx, lesson)
	if err != nil {
		return nil, err
	}
	if paymentID == "" {
		// another caller settled concurrently; pick up its reference
		return s.load(ctx, lesson.ID)
	}
	lesson.PaymentID = &paymentID
	return lesson, nil
}

// Cancel withdraws a lesson before it starts. Either party may cancel.
func (s *LessonService) Cancel(ctx context.Context, lessonID, actorID string) (*models.Lesson, error) {
	lesson, err := s.load(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if actorID != lesson.StudentID && actorID != lesson.InstructorID {
		return nil, s.notAuthorized(lesson)
	}
	if lesson.IsOverdue(s.now()) {
		s.lazyExpire(ctx, lesson)
		return nil, s.invalidState(lesson, models.LessonStatusRequested)
	}
	if lesson.Status != models.LessonStatusRequested && lesson.Status != models.LessonStatusConfirmed {
		return nil, appErrors.WithDetails(appErrors.ErrInvalidState, map[string]interface{}{
			"lessonId":       lesson.ID,
			"expectedStatus": []models.LessonStatus{models.LessonStatusRequested, models.LessonStatusConfirmed},
			"actualStatus":   lesson.Status,
		})
	}
	params := repository.UpdateLessonStatusParams{CancelledBy: &actorID}
	if err := s.transition(ctx, lesson, models.LessonStatusCancelled, params); err != nil {
		return nil, err
	}
	lesson.CancelledBy = &actorID
	return lesson, nil
}

// SweepOverdue bulk-expires overdue requests. Freshness optimization
// only; lazy per-read expiry keeps correctness without it.
func (s *LessonService) SweepOverdue(ctx context.Context) (int64, error) {
	count, err := s.store.ExpireOverdue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info("expired overdue lesson requests", zap.Int64("count", count))
	}
	return count, nil
}

// transition applies one guarded state change and emits the side effects
// shared by every edge: notification and audit. The store update is the
// single serialization point; when it reports zero rows the caller lost
// the race and observes InvalidState, never a retry-overwrite.
func (s *LessonService) transition(ctx context.Context, lesson *models.Lesson, to models.LessonStatus, params repository.UpdateLessonStatusParams) error {
	from := lesson.Status
	params.ID = lesson.ID
	params.From = from
	params.To = to
	if err := s.store.UpdateStatus(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.reloadInvalidState(ctx, lesson, from)
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson status")
	}
	lesson.Status = to
	if s.notifier != nil {
		s.notifier.Notify(lesson.ID, to)
	}
	if s.metrics != nil {
		s.metrics.ObserveTransition(to)
	}
	s.emitAudit(ctx, "", models.AuditActionLessonTransition, lesson, map[string]interface{}{
		"from": from,
		"to":   to,
	})
	return nil
}

// lazyExpire attempts the REQUESTED→EXPIRED edge in place. Losing the
// race to a concurrent accept or sweep is fine; whatever transition
// committed is reflected on the lesson afterwards.
func (s *LessonService) lazyExpire(ctx context.Context, lesson *models.Lesson) {
	err := s.store.UpdateStatus(ctx, repository.UpdateLessonStatusParams{
		ID:   lesson.ID,
		From: models.LessonStatusRequested,
		To:   models.LessonStatusExpired,
	})
	switch {
	case err == nil:
		lesson.Status = models.LessonStatusExpired
		if s.notifier != nil {
			s.notifier.Notify(lesson.ID, models.LessonStatusExpired)
		}
		if s.metrics != nil {
			s.metrics.ObserveTransition(models.LessonStatusExpired)
		}
	case errors.Is(err, sql.ErrNoRows):
		if fresh, loadErr := s.store.GetByID(ctx, lesson.ID); loadErr == nil {
			*lesson = *fresh
		}
	default:
		s.logger.Warn("lazy expiry failed", zap.String("lesson_id", lesson.ID), zap.Error(err))
	}
}

func (s *LessonService) load(ctx context.Context, lessonID string) (*models.Lesson, error) {
	lesson, err := s.store.GetByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	return lesson, nil
}

func (s *LessonService) checkLeadTime(scheduledAt, now time.Time) error {
	earliest := now.Add(s.minLeadTime)
	if scheduledAt.Before(earliest) {
		return appErrors.WithDetails(appErrors.ErrInvalidSchedule, map[string]interface{}{
			"requiredLeadTime": s.minLeadTime.String(),
			"earliestAllowed":  earliest,
		})
	}
	return nil
}

func (s *LessonService) invalidState(lesson *models.Lesson, expected models.LessonStatus) error {
	return appErrors.WithDetails(appErrors.ErrInvalidState, map[string]interface{}{
		"lessonId":       lesson.ID,
		"expectedStatus": expected,
		"actualStatus":   lesson.Status,
	})
}

// reloadInvalidState refreshes the lesson after a lost conditional update
// so the error reports what actually won.
func (s *LessonService) reloadInvalidState(ctx context.Context, lesson *models.Lesson, expected models.LessonStatus) error {
	if fresh, err := s.store.GetByID(ctx, lesson.ID); err == nil {
		*lesson = *fresh
	}
	return s.invalidState(lesson, expected)
}

func (s *LessonService) notAuthorized(lesson *models.Lesson) error {
	return appErrors.WithDetails(appErrors.ErrNotAuthorized, map[string]interface{}{
		"lessonId":             lesson.ID,
		"requiredInstructorId": lesson.InstructorID,
	})
}

func (s *LessonService) mayView(lesson *models.Lesson, actor *models.JWTClaims) bool {
	if actor == nil {
		return false
	}
	if actor.Role == models.RoleAdmin {
		return true
	}
	return actor.UserID == lesson.StudentID || actor.UserID == lesson.InstructorID
}

func (s *LessonService) emitAudit(ctx context.Context, actorID, action string, lesson *models.Lesson, extra map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload := map[string]interface{}{
		"status":      lesson.Status,
		"scheduledAt": lesson.ScheduledAt,
	}
	for k, v := range extra {
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   "lesson",
		ResourceID: &lesson.ID,
		NewValues:  raw,
	}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

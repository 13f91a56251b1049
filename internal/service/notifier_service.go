package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/driveline/lessons-api/internal/models"
	"github.com/driveline/lessons-api/pkg/config"
	"github.com/driveline/lessons-api/pkg/jobs"
)

// LessonEvent is the payload published for every successful transition.
type LessonEvent struct {
	LessonID   string              `json:"lessonId"`
	Status     models.LessonStatus `json:"status"`
	OccurredAt time.Time           `json:"occurredAt"`
}

// NotifierService publishes lifecycle events to the notification/chat
// collaborator over a Redis channel. Delivery is best-effort: handlers
// enqueue and move on, publish failures are logged and dropped after the
// queue's retries.
type NotifierService struct {
	client  *redis.Client
	channel string
	queue   *jobs.Queue
	logger  *zap.Logger
}

// NewNotifierService constructs the notifier with its worker queue.
func NewNotifierService(client *redis.Client, cfg config.NotificationsConfig, logger *zap.Logger) *NotifierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "lesson-events"
	}
	svc := &NotifierService{
		client:  client,
		channel: channel,
		logger:  logger,
	}
	svc.queue = jobs.NewQueue("lesson-events", svc.publish, jobs.QueueConfig{
		Workers: cfg.Workers,
		Logger:  logger,
	})
	return svc
}

// Start launches the publish workers.
func (s *NotifierService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotifierService) Stop() {
	s.queue.Stop()
}

// Notify enqueues a transition event. Never blocks the transition that
// triggered it and never reports failure to the caller.
func (s *NotifierService) Notify(lessonID string, status models.LessonStatus) {
	event := LessonEvent{
		LessonID:   lessonID,
		Status:     status,
		OccurredAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to encode lesson event", zap.String("lesson_id", lessonID), zap.Error(err))
		return
	}
	job := jobs.Job{
		ID:      fmt.Sprintf("%s:%s", lessonID, status),
		Type:    "lesson_transition",
		Payload: payload,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue lesson event", zap.String("lesson_id", lessonID), zap.Error(err))
	}
}

func (s *NotifierService) publish(ctx context.Context, job jobs.Job) error {
	if s.client == nil {
		return nil
	}
	payload, ok := job.Payload.([]byte)
	if !ok {
		return fmt.Errorf("unexpected payload type for job %s", job.ID)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish lesson event %s: %w", job.ID, err)
	}
	return nil
}

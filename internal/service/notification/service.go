package notification

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aslakhin/notify-service/internal/config"
	"github.com/aslakhin/notify-service/internal/model"
)

var (
	// ErrInvalidInput is returned for malformed creation input.
	ErrInvalidInput = errors.New("invalid notification input")
	// ErrInvalidStatus is returned for an unknown target status.
	ErrInvalidStatus = errors.New("invalid notification status")
)

//go:generate mockgen -source=service.go -destination=../../mocks/service/notification/mock.go -package=mocks

type notificationRepository interface {
	Create(ctx context.Context, n model.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (model.Notification, error)
	ListByUser(ctx context.Context, userID string, limit, skip int64, status string) ([]model.Notification, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, retryCount int) error
}

type queuePublisher interface {
	Publish(ctx context.Context, v any) error
}

// Sender delivers a notification over one channel (email, sms, in-app).
type Sender interface {
	Send(userID, title, message string) error
}

type cache interface {
	SetWithRetry(ctx context.Context, strategy retry.Strategy, key string, value interface{}) error
	GetWithRetry(ctx context.Context, strategy retry.Strategy, key string) (string, error)
}

// CreateInput carries the caller-supplied fields of a new notification.
type CreateInput struct {
	UserID   string
	Type     string
	Title    string
	Message  string
	Metadata map[string]any
}

// DependencyHealth describes the probe result for one dependency.
type DependencyHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health aggregates dependency probes; the service is healthy only when
// every dependency is.
type Health struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	MongoDB   DependencyHealth `json:"mongodb"`
	RabbitMQ  DependencyHealth `json:"rabbitmq"`
}

// Service orchestrates notification persistence, queueing and the
// delivery retry state machine.
type Service struct {
	repo    notificationRepository
	queue   queuePublisher
	senders map[string]Sender
	cache   cache
	cfg     config.Delivery

	storeProbe func(context.Context) error
	queueProbe func(context.Context) error
}

// NewService creates a Service.
func NewService(
	repo notificationRepository,
	queue queuePublisher,
	senders map[string]Sender,
	cache cache,
	cfg config.Delivery,
	storeProbe func(context.Context) error,
	queueProbe func(context.Context) error,
) *Service {
	return &Service{
		repo:       repo,
		queue:      queue,
		senders:    senders,
		cache:      cache,
		cfg:        cfg,
		storeProbe: storeProbe,
		queueProbe: queueProbe,
	}
}

// Create validates the input, durably records the notification as
// pending and hands it to the batch publisher. A publisher hiccup is
// logged but does not fail the call: the record is already durable and
// acceptance never implied delivery.
func (s *Service) Create(ctx context.Context, strategy retry.Strategy, in CreateInput) (model.Notification, error) {
	if err := validateInput(&in); err != nil {
		return model.Notification{}, err
	}

	n := model.Notification{
		ID:         uuid.New(),
		UserID:     in.UserID,
		Type:       in.Type,
		Title:      in.Title,
		Message:    in.Message,
		Status:     model.StatusPending,
		CreatedAt:  time.Now().UTC(),
		RetryCount: 0,
		MaxRetries: s.maxRetries(),
		Metadata:   in.Metadata,
	}
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return model.Notification{}, fmt.Errorf("create notification: %w", err)
	}

	s.cacheStatus(ctx, strategy, n.ID, n.Status)

	if err := s.queue.Publish(ctx, model.MessageOf(n)); err != nil {
		zlog.Logger.Error().Err(err).Str("id", n.ID.String()).Msg("failed to enqueue notification")
	}

	return n, nil
}

// Get retrieves a notification by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (model.Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return model.Notification{}, err
	}

	return n, nil
}

// GetStatus returns the status of a notification, served from the cache
// when possible.
func (s *Service) GetStatus(ctx context.Context, strategy retry.Strategy, id uuid.UUID) (string, error) {
	status, err := s.cache.GetWithRetry(ctx, strategy, id.String())
	if err != nil && !errors.Is(err, redis.Nil) {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to get notification status from cache")
	}

	if err != nil {
		n, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return "", err
		}
		status = n.Status

		s.cacheStatus(ctx, strategy, id, status)
	}

	return status, nil
}

// ListByUser returns a user's notifications, newest first. The limit is
// clamped to [1,100] and negative skips are treated as zero.
func (s *Service) ListByUser(ctx context.Context, userID string, limit, skip int, status string) ([]model.Notification, error) {
	if status != "" && !model.ValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}

	notifications, err := s.repo.ListByUser(ctx, userID, int64(limit), int64(skip), status)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	return notifications, nil
}

// UpdateStatus is the administrative status override; it does not run
// the delivery state machine.
func (s *Service) UpdateStatus(ctx context.Context, strategy retry.Strategy, id uuid.UUID, status string) (model.Notification, error) {
	if !model.ValidStatus(status) {
		return model.Notification{}, ErrInvalidStatus
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return model.Notification{}, err
	}

	s.cacheStatus(ctx, strategy, id, status)

	return s.repo.GetByID(ctx, id)
}

// Process runs the retry state machine for one queued notification and
// reports whether it was delivered.
//
// Exhausted retries fail the notification terminally. A failed attempt
// increments the retry count, keeps the notification pending and
// resubmits it to the publisher immediately; the exponential backoff
// delay is computed and logged but does not defer the resubmission, as
// no delayed-delivery mechanism exists yet.
func (s *Service) Process(ctx context.Context, strategy retry.Strategy, msg model.Message) bool {
	maxRetries := msg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.maxRetries()
	}

	if msg.RetryCount >= maxRetries {
		zlog.Logger.Warn().
			Str("id", msg.ID.String()).
			Int("retry_count", msg.RetryCount).
			Msg("notification exhausted its retries, marking failed")

		s.markFailed(ctx, strategy, msg.ID, "max retries exceeded")
		return false
	}

	if err := s.deliver(msg); err != nil {
		retryCount := msg.RetryCount + 1
		delay := RetryDelay(s.cfg.RetryDelayBase, s.cfg.RetryDelayMax, retryCount)

		zlog.Logger.Warn().Err(err).
			Str("id", msg.ID.String()).
			Int("retry_count", retryCount).
			Dur("backoff", delay).
			Msg("delivery failed, requeueing notification")

		if err := s.repo.ScheduleRetry(ctx, msg.ID, retryCount); err != nil {
			zlog.Logger.Error().Err(err).Str("id", msg.ID.String()).Msg("failed to persist retry")
		}

		msg.RetryCount = retryCount
		msg.Status = model.StatusPending
		if err := s.queue.Publish(ctx, msg); err != nil {
			zlog.Logger.Error().Err(err).Str("id", msg.ID.String()).Msg("failed to requeue notification")
		}

		return false
	}

	if err := s.repo.MarkSent(ctx, msg.ID); err != nil {
		zlog.Logger.Error().Err(err).Str("id", msg.ID.String()).Msg("failed to mark notification sent")
	}
	s.cacheStatus(ctx, strategy, msg.ID, model.StatusSent)

	zlog.Logger.Info().Str("id", msg.ID.String()).Str("type", msg.Type).Msg("notification sent")
	return true
}

// HealthCheck probes every dependency independently and aggregates the
// results.
func (s *Service) HealthCheck(ctx context.Context) Health {
	h := Health{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		MongoDB:   DependencyHealth{Status: "healthy"},
		RabbitMQ:  DependencyHealth{Status: "healthy"},
	}

	if err := s.storeProbe(ctx); err != nil {
		h.MongoDB = DependencyHealth{Status: "unhealthy", Message: err.Error()}
		h.Status = "unhealthy"
	}

	if err := s.queueProbe(ctx); err != nil {
		h.RabbitMQ = DependencyHealth{Status: "unhealthy", Message: err.Error()}
		h.Status = "unhealthy"
	}

	return h
}

// deliver dispatches through the channel-specific sender. A panicking
// sender is treated exactly like an explicit failure so a broken
// integration counts as an attempt instead of crashing the worker.
func (s *Service) deliver(msg model.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()

	sender, ok := s.senders[msg.Type]
	if !ok {
		return fmt.Errorf("unknown channel %s", msg.Type)
	}

	if err := sender.Send(msg.UserID, msg.Title, msg.Message); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	return nil
}

func (s *Service) markFailed(ctx context.Context, strategy retry.Strategy, id uuid.UUID, reason string) {
	if err := s.repo.MarkFailed(ctx, id, reason); err != nil {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to mark notification failed")
		return
	}

	s.cacheStatus(ctx, strategy, id, model.StatusFailed)
}

func (s *Service) cacheStatus(ctx context.Context, strategy retry.Strategy, id uuid.UUID, status string) {
	if err := s.cache.SetWithRetry(ctx, strategy, id.String(), status); err != nil {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to cache notification status")
	}
}

func (s *Service) maxRetries() int {
	if s.cfg.MaxRetries > 0 {
		return s.cfg.MaxRetries
	}
	return model.DefaultMaxRetries
}

// RetryDelay computes the exponential backoff after the k-th failed
// attempt: base * 2^k, capped at max.
func RetryDelay(base, max time.Duration, k int) time.Duration {
	delay := base
	for i := 0; i < k; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}

	if max > 0 && delay > max {
		return max
	}
	return delay
}

func validateInput(in *CreateInput) error {
	if in.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if in.Title == "" || utf8.RuneCountInString(in.Title) > 200 {
		return fmt.Errorf("%w: title must be 1-200 characters", ErrInvalidInput)
	}
	if in.Message == "" || utf8.RuneCountInString(in.Message) > 1000 {
		return fmt.Errorf("%w: message must be 1-1000 characters", ErrInvalidInput)
	}

	if in.Type == "" {
		in.Type = model.TypeInApp
	}
	if !model.ValidType(in.Type) {
		return fmt.Errorf("%w: unknown type %s", ErrInvalidInput, in.Type)
	}

	return nil
}

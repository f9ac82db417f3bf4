package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/aslakhin/notify-service/internal/model"
)

// ErrNotificationNotFound is returned when no notification matches the
// given id.
var ErrNotificationNotFound = errors.New("notification not found")

// Repository provides access to the notifications collection.
type Repository struct {
	coll *mongo.Collection
}

// NewRepository creates a new notification repository on top of db.
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{coll: db.Collection("notifications")}
}

// Create inserts a new notification document.
func (r *Repository) Create(ctx context.Context, n model.Notification) error {
	if _, err := r.coll.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// GetByID retrieves a notification by its id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (model.Notification, error) {
	var n model.Notification

	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&n)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Notification{}, ErrNotificationNotFound
		}

		return model.Notification{}, fmt.Errorf("failed to get notification: %w", err)
	}

	return n, nil
}

// ListByUser retrieves notifications for a user, newest first, with
// skip/limit pagination and an optional status filter.
func (r *Repository) ListByUser(ctx context.Context, userID string, limit, skip int64, status string) ([]model.Notification, error) {
	filter := bson.M{"user_id": userID}
	if status != "" {
		filter["status"] = status
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	var notifications []model.Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}

	return notifications, nil
}

// UpdateStatus overrides the status of a notification. Terminal
// statuses stamp their timestamp and clear the opposite one so that
// sent_at and failed_at stay mutually exclusive.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	set := bson.M{"status": status}
	unset := bson.M{}

	switch status {
	case model.StatusSent:
		set["sent_at"] = time.Now().UTC()
		unset["failed_at"] = ""
	case model.StatusFailed:
		set["failed_at"] = time.Now().UTC()
		unset["sent_at"] = ""
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}

	if res.MatchedCount == 0 {
		return ErrNotificationNotFound
	}

	return nil
}

// MarkSent records the successful terminal transition.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"id": id}, bson.M{
		"$set": bson.M{
			"status":  model.StatusSent,
			"sent_at": time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}

	if res.MatchedCount == 0 {
		return ErrNotificationNotFound
	}

	return nil
}

// MarkFailed records the failed terminal transition.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	set := bson.M{
		"status":    model.StatusFailed,
		"failed_at": time.Now().UTC(),
	}
	if reason != "" {
		set["error"] = reason
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}

	if res.MatchedCount == 0 {
		return ErrNotificationNotFound
	}

	return nil
}

// ScheduleRetry persists an incremented retry count and the attempt
// timestamp while keeping the notification pending.
func (r *Repository) ScheduleRetry(ctx context.Context, id uuid.UUID, retryCount int) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"id": id}, bson.M{
		"$set": bson.M{
			"status":      model.StatusPending,
			"retry_count": retryCount,
			"last_retry":  time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to schedule notification retry: %w", err)
	}

	if res.MatchedCount == 0 {
		return ErrNotificationNotFound
	}

	return nil
}

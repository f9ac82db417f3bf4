// Package mongodb bootstraps the document store connection and the
// indexes the notification queries rely on.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wb-go/wbf/zlog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/aslakhin/notify-service/internal/config"
)

// ErrFailedToConnect is returned when the store is unreachable after
// all connection attempts.
var ErrFailedToConnect = errors.New("failed to connect to mongodb")

// Connect creates a mongo client and verifies it with a ping, retrying
// a bounded number of times before giving up.
func Connect(ctx context.Context, cfg config.Mongo) (*mongo.Client, error) {
	var lastErr error

	for attempt := 0; attempt < cfg.Retries; attempt++ {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(cfg.URL).
				SetConnectTimeout(cfg.ConnectTimeout).
				SetServerSelectionTimeout(cfg.ConnectTimeout),
		)
		if err == nil {
			if err = client.Ping(ctx, nil); err == nil {
				return client, nil
			}
			_ = client.Disconnect(ctx)
		}

		lastErr = err
		zlog.Logger.Warn().Err(err).Int("attempt", attempt+1).Msg("mongodb connection attempt failed")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.Pause):
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrFailedToConnect, lastErr)
}

// EnsureIndexes creates the secondary access paths used by the service:
// user timelines, status/type/priority/category filters on notifications,
// and the unique email plus phone lookups on users.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	notifications := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "metadata.priority", Value: 1}}},
		{Keys: bson.D{{Key: "metadata.category", Value: 1}}},
		{Keys: bson.D{{Key: "type", Value: 1}}},
	}

	if _, err := db.Collection("notifications").Indexes().CreateMany(ctx, notifications); err != nil {
		return fmt.Errorf("create notification indexes: %w", err)
	}

	users := db.Collection("users")

	_, err := users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		// Existing duplicate emails make the unique index impossible;
		// the service still works without it.
		zlog.Logger.Warn().Err(err).Msg("could not create unique email index")
	}

	if _, err := users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "phone", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create phone index: %w", err)
	}

	return nil
}

// Healthcheck returns a probe that verifies the store answers a ping.
func Healthcheck(client *mongo.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx, nil); err != nil {
			return fmt.Errorf("mongodb healthcheck: %w", err)
		}
		return nil
	}
}

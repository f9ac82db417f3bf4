package rabbitmq

import (
	"context"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aslakhin/notify-service/internal/config"
)

func TestNextDelay(t *testing.T) {
	max := 30 * time.Second

	assert.Equal(t, 2*time.Second, nextDelay(time.Second, max))
	assert.Equal(t, 4*time.Second, nextDelay(2*time.Second, max))
	assert.Equal(t, 8*time.Second, nextDelay(4*time.Second, max))
	assert.Equal(t, 16*time.Second, nextDelay(8*time.Second, max))

	// Doubling past the cap sticks to the cap.
	assert.Equal(t, max, nextDelay(16*time.Second, max))
	assert.Equal(t, max, nextDelay(max, max))
}

func TestClient_NotConnected(t *testing.T) {
	c := NewClient(config.RabbitMQ{
		Queue:          "notifications",
		AcquireTimeout: 10 * time.Millisecond,
	})

	_, err := c.acquire(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)

	err = c.publish(context.Background(), []byte("{}"))
	assert.ErrorIs(t, err, ErrNotConnected)

	err = c.HealthCheck(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, c.Close())
}

func TestClient_AcquireTimesOutOnExhaustedPool(t *testing.T) {
	c := NewClient(config.RabbitMQ{
		Queue:          "notifications",
		AcquireTimeout: 20 * time.Millisecond,
	})
	c.pool = make(chan *amqp.Channel, 1) // capacity but no tokens

	start := time.Now()
	_, err := c.acquire(context.Background())
	assert.ErrorIs(t, err, ErrAcquireTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestClient_AcquireHonorsContextCancellation(t *testing.T) {
	c := NewClient(config.RabbitMQ{
		Queue:          "notifications",
		AcquireTimeout: time.Hour,
	})
	c.pool = make(chan *amqp.Channel, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_AcquireRestoresTokenOnOpenFailure(t *testing.T) {
	c := NewClient(config.RabbitMQ{
		Queue:          "notifications",
		AcquireTimeout: 20 * time.Millisecond,
	})

	// One empty token and no connection: opening the channel fails, but
	// the token must be returned so the pool keeps its capacity.
	c.pool = make(chan *amqp.Channel, 1)
	c.pool <- nil

	_, err := c.acquire(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Len(t, c.pool, 1, "failed acquire must not leak the token")
}

func TestClient_ReleaseWithoutPoolIsSafe(t *testing.T) {
	c := NewClient(config.RabbitMQ{Queue: "notifications"})

	assert.NotPanics(t, func() {
		c.release(nil)
	})
}

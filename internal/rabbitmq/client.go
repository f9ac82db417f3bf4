// Package rabbitmq owns the broker connection: a bounded channel pool,
// a background monitor that re-establishes lost connections, and a
// batching publisher on top of them.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wb-go/wbf/zlog"

	"github.com/aslakhin/notify-service/internal/config"
)

var (
	// ErrNotConnected is returned when an operation needs the broker
	// and no live connection is available.
	ErrNotConnected = errors.New("rabbitmq: not connected")
	// ErrConnectExhausted is returned when the connect procedure runs
	// out of attempts.
	ErrConnectExhausted = errors.New("rabbitmq: connection attempts exhausted")
	// ErrAcquireTimeout is returned when no pooled channel becomes
	// available within the configured acquisition timeout.
	ErrAcquireTimeout = errors.New("rabbitmq: channel acquire timeout")
)

// Client manages the broker connection and channel pool. It is
// constructed once at startup and shared by reference; Start and Close
// bracket its lifetime explicitly.
type Client struct {
	cfg config.RabbitMQ

	mu   sync.RWMutex
	conn *amqp.Connection
	// pool holds channel tokens. A token may carry a previously opened
	// channel for reuse or be nil, in which case the holder opens a
	// fresh channel. The pool is replaced wholesale on reconnect, so
	// channels leased from a stale pool fail on use and are discarded
	// on release.
	pool chan *amqp.Channel

	wg sync.WaitGroup
}

// NewClient creates an unconnected Client. Call Start to connect.
func NewClient(cfg config.RabbitMQ) *Client {
	return &Client{cfg: cfg}
}

// Start connects to the broker and launches the connection monitor.
// Exhausting the connection attempts here is fatal and returned to the
// caller; once the monitor is running, exhaustion is only logged and
// retried on the next cycle.
func (c *Client) Start(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}

	c.wg.Add(1)
	go c.monitor(ctx)

	return nil
}

// Close waits for the background monitor to observe cancellation, then
// closes the connection. The caller must cancel the Start context first.
func (c *Client) Close() error {
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}

	return c.conn.Close()
}

// connect runs the bounded connection procedure: dial, declare the
// durable queue, set QoS and rebuild the channel pool. Delay between
// attempts doubles from the initial value up to the configured cap.
func (c *Client) connect(ctx context.Context) error {
	delay := c.cfg.Connect.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= c.cfg.Connect.MaxAttempts; attempt++ {
		conn, err := c.dial()
		if err == nil {
			c.install(conn)
			zlog.Logger.Info().Str("queue", c.cfg.Queue).Msg("connected to rabbitmq")
			return nil
		}

		lastErr = err
		zlog.Logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", c.cfg.Connect.MaxAttempts).
			Dur("retry_in", delay).
			Msg("failed to connect to rabbitmq")

		if attempt == c.cfg.Connect.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = nextDelay(delay, c.cfg.Connect.MaxDelay)
	}

	return fmt.Errorf("%w: %v", ErrConnectExhausted, lastErr)
}

// dial opens a connection and prepares it: declares the durable target
// queue and applies the prefetch limit on a setup channel.
func (c *Client) dial() (*amqp.Connection, error) {
	conn, err := amqp.Dial(c.cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open setup channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", c.cfg.Queue, err)
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return conn, nil
}

// install swaps in the new connection and a fresh pool, closing the
// previous connection if one is still around.
func (c *Client) install(conn *amqp.Connection) {
	pool := make(chan *amqp.Channel, c.cfg.PoolSize)
	for i := 0; i < c.cfg.PoolSize; i++ {
		pool <- nil // lazily opened on first acquire
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.pool = pool
	c.mu.Unlock()

	if old != nil && !old.IsClosed() {
		_ = old.Close()
	}
}

// monitor periodically checks the connection and drives reconnection.
// It never terminates on failure; a broker that stays down is retried
// on every cycle until the context is cancelled.
func (c *Client) monitor(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.MonitorPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.connected() {
				continue
			}

			zlog.Logger.Warn().Msg("rabbitmq connection lost, reconnecting")
			if err := c.connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zlog.Logger.Error().Err(err).Msg("rabbitmq reconnect failed")
			}
		}
	}
}

func (c *Client) connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// acquire leases a channel from the pool, opening one lazily when the
// token is empty or the carried channel died with a previous
// connection. It blocks until a token is available, bounded by the
// configured acquisition timeout.
func (c *Client) acquire(ctx context.Context) (*amqp.Channel, error) {
	c.mu.RLock()
	pool := c.pool
	c.mu.RUnlock()

	if pool == nil {
		return nil, ErrNotConnected
	}

	timeout := time.NewTimer(c.cfg.AcquireTimeout)
	defer timeout.Stop()

	var ch *amqp.Channel
	select {
	case ch = <-pool:
	case <-timeout.C:
		return nil, ErrAcquireTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if ch != nil && !ch.IsClosed() {
		return ch, nil
	}

	ch, err := c.channel()
	if err != nil {
		c.putBack(pool, nil) // keep pool capacity intact
		return nil, err
	}

	return ch, nil
}

// release returns a leased channel to the current pool. Channels from a
// stale pool generation, or dead channels, are closed and replaced by
// an empty token.
func (c *Client) release(ch *amqp.Channel) {
	c.mu.RLock()
	pool := c.pool
	c.mu.RUnlock()

	if pool == nil {
		if ch != nil {
			_ = ch.Close()
		}
		return
	}

	if ch != nil && ch.IsClosed() {
		ch = nil
	}

	c.putBack(pool, ch)
}

// putBack pushes a token without ever blocking: when the pool was
// rebuilt underneath us it is already at capacity, and the stale
// channel is simply dropped.
func (c *Client) putBack(pool chan *amqp.Channel, ch *amqp.Channel) {
	select {
	case pool <- ch:
	default:
		if ch != nil {
			_ = ch.Close()
		}
	}
}

// channel opens a fresh channel on the current connection.
func (c *Client) channel() (*amqp.Channel, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, ErrNotConnected
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	return ch, nil
}

// publish sends one message to the durable queue through a pooled
// channel. Messages are persistent JSON with a publish timestamp.
func (c *Client) publish(ctx context.Context, body []byte) error {
	ch, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer c.release(ch)

	return ch.PublishWithContext(ctx, "", c.cfg.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

// HealthCheck verifies the connection is usable for real operations,
// not merely open at the TCP level, by declaring a throwaway
// auto-deleting queue.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.connected() {
		return ErrNotConnected
	}

	ch, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer c.release(ch)

	if _, err := ch.QueueDeclare("health_check", false, true, false, false, nil); err != nil {
		return fmt.Errorf("health probe: %w", err)
	}

	return nil
}

// Consume delivers queue messages to handle until the context is
// cancelled, reacquiring a consumer channel whenever the current one
// dies. Messages are acked after handle returns nil and dropped
// (nacked without requeue) otherwise; redelivery of failed sends is the
// state machine's job, not the broker's.
func (c *Client) Consume(ctx context.Context, handle func(context.Context, []byte) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ch, err := c.channel()
		if err != nil {
			c.waitRetry(ctx)
			continue
		}

		if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to set consumer qos")
			_ = ch.Close()
			c.waitRetry(ctx)
			continue
		}

		deliveries, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
		if err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to start consumer")
			_ = ch.Close()
			c.waitRetry(ctx)
			continue
		}

		c.drain(ctx, ch, deliveries, handle)
	}
}

func (c *Client) drain(ctx context.Context, ch *amqp.Channel, deliveries <-chan amqp.Delivery, handle func(context.Context, []byte) error) {
	defer ch.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				// Channel died; the caller reacquires.
				return
			}

			if err := handle(ctx, d.Body); err != nil {
				zlog.Logger.Error().Err(err).Msg("dropping unprocessable message")
				_ = d.Nack(false, false)
				continue
			}

			_ = d.Ack(false)
		}
	}
}

func (c *Client) waitRetry(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(c.cfg.MonitorPeriod):
	}
}

// nextDelay doubles the reconnect delay up to the cap.
func nextDelay(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

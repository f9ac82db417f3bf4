package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aslakhin/notify-service/internal/config"
)

// publisher is the broker operation the Batcher needs; *Client
// satisfies it.
type publisher interface {
	publish(ctx context.Context, body []byte) error
}

// Batcher buffers outbound messages and flushes them to the broker when
// the buffer reaches the configured size or the flush timer fires,
// whichever comes first.
//
// Acceptance by Publish is not a durability guarantee: a message that
// exhausts its publish attempts during a flush is logged and dropped,
// and the producer that enqueued it is never notified.
type Batcher struct {
	cfg config.BatchPolicy
	pub publisher

	mu  sync.Mutex
	buf [][]byte

	wg sync.WaitGroup
}

// NewBatcher creates a Batcher publishing through pub. Call Start to
// launch the flush timer.
func NewBatcher(cfg config.BatchPolicy, pub publisher) *Batcher {
	return &Batcher{cfg: cfg, pub: pub}
}

// Start launches the background flush loop. Wait blocks until it has
// observed cancellation and finished its final flush.
func (b *Batcher) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.flushLoop(ctx)
}

// Wait blocks until the flush loop has fully stopped.
func (b *Batcher) Wait() {
	b.wg.Wait()
}

// Publish serializes v and appends it to the buffer. Reaching the batch
// size triggers an immediate flush of the drained batch; the buffer
// lock is never held across broker I/O, so concurrent producers are not
// stalled by a slow publish.
//
// The only error returned is a serialization failure, which drops the
// message immediately; broker failures are absorbed by the flush retry
// loop and never surface here.
func (b *Batcher) Publish(ctx context.Context, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("dropping unserializable message")
		return fmt.Errorf("marshal message: %w", err)
	}

	var batch [][]byte

	b.mu.Lock()
	b.buf = append(b.buf, body)
	if len(b.buf) >= b.cfg.Size {
		batch = b.buf
		b.buf = nil
	}
	b.mu.Unlock()

	if batch != nil {
		b.flush(ctx, batch)
	}

	return nil
}

// flushLoop flushes the buffer on every timeout tick so no message
// waits longer than the batch timeout. On shutdown it drains whatever
// is left with a short grace period.
func (b *Batcher) flushLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.Timeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			graceCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			b.flush(graceCtx, b.drain())
			cancel()
			return
		case <-ticker.C:
			b.flush(ctx, b.drain())
		}
	}
}

// drain atomically takes ownership of the buffered messages.
func (b *Batcher) drain() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.buf
	b.buf = nil
	return batch
}

// flush publishes every message of the batch individually, each with a
// bounded number of attempts and a fixed inter-attempt delay. A message
// that exhausts its attempts is dropped; it is not returned to the
// buffer.
func (b *Batcher) flush(ctx context.Context, batch [][]byte) {
	if len(batch) == 0 {
		return
	}

	strategy := retry.Strategy{
		Attempts: b.cfg.PublishAttempts,
		Delay:    b.cfg.PublishDelay,
		Backoff:  1,
	}

	dropped := 0
	for _, body := range batch {
		err := retry.Do(func() error {
			return b.pub.publish(ctx, body)
		}, strategy)
		if err != nil {
			dropped++
			zlog.Logger.Error().Err(err).
				Int("attempts", b.cfg.PublishAttempts).
				Msg("dropping message after exhausted publish attempts")
		}
	}

	zlog.Logger.Debug().
		Int("size", len(batch)).
		Int("dropped", dropped).
		Msg("flushed message batch")
}

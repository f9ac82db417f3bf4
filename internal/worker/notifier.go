package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aslakhin/notify-service/internal/model"
)

//go:generate mockgen -source=notifier.go -destination=../mocks/worker/mock.go -package=mocks

type queueConsumer interface {
	Consume(ctx context.Context, handle func(context.Context, []byte) error)
}

type notificationProcessor interface {
	Process(ctx context.Context, strategy retry.Strategy, msg model.Message) bool
}

// Notifier pulls queued notifications and feeds them through the
// delivery state machine with a pool of worker goroutines.
type Notifier struct {
	queue     queueConsumer
	processor notificationProcessor

	wg sync.WaitGroup
}

// NewNotifier creates a Notifier.
func NewNotifier(q queueConsumer, p notificationProcessor) *Notifier {
	return &Notifier{queue: q, processor: p}
}

// Run consumes messages until the context is cancelled, then waits for
// every worker to finish its in-flight message before returning, so
// callers may close the store and broker connections once Run is done.
// Each worker is isolated: a panic while processing one message is
// logged and the worker keeps going.
func (n *Notifier) Run(ctx context.Context, strategy retry.Strategy, workerCount int) {
	msgChan := make(chan model.Message)

	go n.queue.Consume(ctx, func(ctx context.Context, body []byte) error {
		var msg model.Message
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("unmarshal message: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case msgChan <- msg:
			return nil
		}
	})

	for i := 0; i < workerCount; i++ {
		n.wg.Add(1)
		go func(id int) {
			defer n.wg.Done()
			zlog.Logger.Info().Int("worker", id).Msg("delivery worker started")

			for {
				select {
				case <-ctx.Done():
					zlog.Logger.Info().Int("worker", id).Msg("delivery worker shutting down")
					return
				case msg := <-msgChan:
					n.process(ctx, strategy, msg)
				}
			}
		}(i)
	}

	<-ctx.Done()
	n.wg.Wait()
	zlog.Logger.Info().Msg("notifier stopped")
}

func (n *Notifier) process(ctx context.Context, strategy retry.Strategy, msg model.Message) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Logger.Error().
				Interface("panic", r).
				Str("id", msg.ID.String()).
				Msg("recovered from panic while processing notification")
		}
	}()

	n.processor.Process(ctx, strategy, msg)
}

package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	mocks "github.com/aslakhin/notify-service/internal/mocks/worker"
	"github.com/aslakhin/notify-service/internal/model"
)

func TestNotifier_DispatchesMessagesToProcessor(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	queue := mocks.NewMockqueueConsumer(ctrl)
	processor := mocks.NewMocknotificationProcessor(ctrl)

	strategy := retry.Strategy{Attempts: 1, Delay: time.Millisecond, Backoff: 1}

	msg := model.Message{
		ID:         uuid.New(),
		UserID:     "u1",
		Type:       model.TypeEmail,
		Title:      "Hi",
		Message:    "there",
		Status:     model.StatusPending,
		MaxRetries: 3,
	}
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	queue.EXPECT().Consume(gomock.Any(), gomock.Any()).Do(
		func(ctx context.Context, handle func(context.Context, []byte) error) {
			assert.NoError(t, handle(ctx, body))
			<-ctx.Done()
		},
	)

	var processed atomic.Int32
	processor.EXPECT().Process(gomock.Any(), strategy, msg).DoAndReturn(
		func(context.Context, retry.Strategy, model.Message) bool {
			processed.Add(1)
			return true
		},
	)

	ctx, cancel := context.WithCancel(context.Background())

	n := NewNotifier(queue, processor)
	go n.Run(ctx, strategy, 2)

	require.Eventually(t, func() bool {
		return processed.Load() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(50 * time.Millisecond)
}

func TestNotifier_RejectsMalformedBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	queue := mocks.NewMockqueueConsumer(ctrl)
	processor := mocks.NewMocknotificationProcessor(ctrl)

	strategy := retry.Strategy{Attempts: 1, Delay: time.Millisecond, Backoff: 1}

	handled := make(chan error, 1)
	queue.EXPECT().Consume(gomock.Any(), gomock.Any()).Do(
		func(ctx context.Context, handle func(context.Context, []byte) error) {
			handled <- handle(ctx, []byte("{not json"))
			<-ctx.Done()
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := NewNotifier(queue, processor)
	go n.Run(ctx, strategy, 1)

	select {
	case err := <-handled:
		assert.Error(t, err, "a malformed body must be rejected so the broker drops it")
	case <-time.After(time.Second):
		t.Fatal("consumer handler was never invoked")
	}
}

func TestNotifier_RunWaitsForInFlightMessage(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	queue := mocks.NewMockqueueConsumer(ctrl)
	processor := mocks.NewMocknotificationProcessor(ctrl)

	strategy := retry.Strategy{Attempts: 1, Delay: time.Millisecond, Backoff: 1}

	body, err := json.Marshal(model.Message{ID: uuid.New(), Type: model.TypeEmail})
	require.NoError(t, err)

	queue.EXPECT().Consume(gomock.Any(), gomock.Any()).Do(
		func(ctx context.Context, handle func(context.Context, []byte) error) {
			assert.NoError(t, handle(ctx, body))
			<-ctx.Done()
		},
	)

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	processor.EXPECT().Process(gomock.Any(), strategy, gomock.Any()).DoAndReturn(
		func(context.Context, retry.Strategy, model.Message) bool {
			close(started)
			<-release
			finished.Store(true)
			return true
		},
	)

	ctx, cancel := context.WithCancel(context.Background())

	runDone := make(chan struct{})
	n := NewNotifier(queue, processor)
	go func() {
		n.Run(ctx, strategy, 1)
		close(runDone)
	}()

	<-started
	cancel()

	// The worker is still inside Process; Run must not return yet.
	select {
	case <-runDone:
		t.Fatal("Run returned while a message was still being processed")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the worker finished")
	}
	assert.True(t, finished.Load())
}

func TestNotifier_SurvivesProcessorPanic(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	queue := mocks.NewMockqueueConsumer(ctrl)
	processor := mocks.NewMocknotificationProcessor(ctrl)

	strategy := retry.Strategy{Attempts: 1, Delay: time.Millisecond, Backoff: 1}

	first, _ := json.Marshal(model.Message{ID: uuid.New(), Type: model.TypeEmail})
	second, _ := json.Marshal(model.Message{ID: uuid.New(), Type: model.TypeSMS})

	queue.EXPECT().Consume(gomock.Any(), gomock.Any()).Do(
		func(ctx context.Context, handle func(context.Context, []byte) error) {
			assert.NoError(t, handle(ctx, first))
			assert.NoError(t, handle(ctx, second))
			<-ctx.Done()
		},
	)

	var processed atomic.Int32
	gomock.InOrder(
		processor.EXPECT().Process(gomock.Any(), strategy, gomock.Any()).DoAndReturn(
			func(context.Context, retry.Strategy, model.Message) bool {
				processed.Add(1)
				panic("processor bug")
			},
		),
		processor.EXPECT().Process(gomock.Any(), strategy, gomock.Any()).DoAndReturn(
			func(context.Context, retry.Strategy, model.Message) bool {
				processed.Add(1)
				return true
			},
		),
	)

	ctx, cancel := context.WithCancel(context.Background())

	// A single worker must survive the panic and take the next message.
	n := NewNotifier(queue, processor)
	go n.Run(ctx, strategy, 1)

	require.Eventually(t, func() bool {
		return processed.Load() == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(50 * time.Millisecond)
}

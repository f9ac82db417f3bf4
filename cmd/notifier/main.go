package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wb-go/wbf/redis"
	"github.com/wb-go/wbf/zlog"

	notifhandler "github.com/aslakhin/notify-service/internal/api/handlers/notification"
	"github.com/aslakhin/notify-service/internal/api/router"
	"github.com/aslakhin/notify-service/internal/api/server"
	"github.com/aslakhin/notify-service/internal/config"
	"github.com/aslakhin/notify-service/internal/mongodb"
	"github.com/aslakhin/notify-service/internal/rabbitmq"
	notifrepo "github.com/aslakhin/notify-service/internal/repository/notification"
	notifsvc "github.com/aslakhin/notify-service/internal/service/notification"
	"github.com/aslakhin/notify-service/internal/worker"
	"github.com/aslakhin/notify-service/pkg/email"
	"github.com/aslakhin/notify-service/pkg/inapp"
	"github.com/aslakhin/notify-service/pkg/sms"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()
	cfg := config.Must()
	val := validator.New()

	mongoClient, err := mongodb.Connect(ctx, cfg.Mongo)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to mongodb")
	}

	db := mongoClient.Database(cfg.Mongo.Database)
	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to create mongodb indexes")
	}

	rmq := rabbitmq.NewClient(cfg.RabbitMQ)
	if err := rmq.Start(ctx); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}

	batcher := rabbitmq.NewBatcher(cfg.RabbitMQ.Batch, rmq)
	batcher.Start(ctx)

	dbNum, err := strconv.Atoi(cfg.Redis.Database)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to parse redis database")
	}

	rdb := redis.New(cfg.Redis.Address, cfg.Redis.Password, dbNum)
	if err = rdb.Ping(ctx).Err(); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	smtpPort, err := strconv.Atoi(cfg.Email.SMTPPort)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to parse email smtp port")
	}

	senders := map[string]notifsvc.Sender{
		"email": email.NewClient(
			cfg.Email.SMTPHost,
			smtpPort,
			cfg.Email.Username,
			cfg.Email.Password,
			cfg.Email.From,
		),
		"sms":    sms.NewClient(cfg.SMS.GatewayURL, cfg.SMS.APIKey, cfg.SMS.From),
		"in_app": inapp.NewClient(),
	}

	repo := notifrepo.NewRepository(db)
	service := notifsvc.NewService(
		repo,
		batcher,
		senders,
		rdb,
		cfg.Delivery,
		mongodb.Healthcheck(mongoClient),
		rmq.HealthCheck,
	)

	notifier := worker.NewNotifier(rmq, service)
	notifierDone := make(chan struct{})
	go func() {
		notifier.Run(ctx, cfg.Retry, cfg.Workers.Count)
		close(notifierDone)
	}()

	notifHandler := notifhandler.NewHandler(service, val, cfg)
	r := router.New(notifHandler, cfg.Server.AllowedOrigins)
	s := server.New(":"+cfg.Server.HTTPPort, r)

	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	zlog.Logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}

	// Background loops observe the cancelled context; wait for them
	// before touching the connections they use.
	<-notifierDone
	batcher.Wait()

	if err := rmq.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close rabbitmq connection")
	}

	if err := mongoClient.Disconnect(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close mongodb connection")
	}
}

// @title       market-chat API
// @version     1.0
// @description 商品维度的买卖双方实时聊天服务
// @BasePath    /
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/market-chat/config"
	"github.com/d60-Lab/market-chat/internal/api"
	"github.com/d60-Lab/market-chat/internal/event"
	"github.com/d60-Lab/market-chat/internal/model"
	"github.com/d60-Lab/market-chat/internal/realtime"
	"github.com/d60-Lab/market-chat/internal/repository"
	"github.com/d60-Lab/market-chat/internal/service"
	"github.com/d60-Lab/market-chat/pkg/database"
	"github.com/d60-Lab/market-chat/pkg/jwt"
	"github.com/d60-Lab/market-chat/pkg/logger"
	"github.com/d60-Lab/market-chat/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		logger.Error("server exited", zap.Error(err))
		logger.Sync()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			SampleRate:       cfg.Sentry.SampleRate,
			AttachStacktrace: true,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(&model.User{}, &model.Product{}, &model.Message{}); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	messages := repository.NewMessageRepository(db)
	if cfg.Database.MessageStore == "mongo" {
		client, err := database.InitMongo(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		mdb := client.Database(cfg.Database.MongoDB)
		if err := repository.EnsureMessageIndexes(ctx, mdb); err != nil {
			return fmt.Errorf("mongo indexes: %w", err)
		}
		messages = repository.NewMongoMessageRepository(mdb)
	}

	users := repository.NewUserRepository(db)
	products := repository.NewProductRepository(db)

	hub := realtime.NewHub()
	var relay *realtime.RedisRelay
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		cache := repository.NewDirectoryCache(rdb, cfg.Redis.Prefix, cfg.Redis.CacheTTL)
		users = repository.NewCachedUserRepository(users, cache)
		products = repository.NewCachedProductRepository(products, cache)

		if cfg.WS.RelayEnabled {
			relay = realtime.NewRedisRelay(rdb, cfg.Redis.Prefix, hub)
			stopRelay, err := relay.Start(ctx)
			if err != nil {
				return fmt.Errorf("start relay: %w", err)
			}
			defer func() { _ = stopRelay() }()
			logger.Info("redis relay started", zap.String("instance", relay.Instance()))
		}
	}

	var events *service.EventDispatcher
	if cfg.Kafka.Enabled {
		publisher := event.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() { _ = publisher.Close() }()
		events = service.NewEventDispatcher(publisher, cfg.Kafka.QueueSize)
		stopEvents := events.Start(cfg.Kafka.Workers)
		defer func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := stopEvents(drainCtx); err != nil {
				logger.Warn("event dispatcher drain", zap.Error(err))
			}
		}()
	}

	tokens := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Expiration)
	authSvc := service.NewAuthService(users, tokens)
	chatSvc := service.NewChatService(messages, users, products, realtime.NewBroadcaster(hub, relay, 0), events,
		service.WithStoreTimeout(cfg.Database.StoreTimeout))
	inboxSvc := service.NewInboxService(messages, users, products)

	router := api.NewRouter(api.Deps{
		Config: cfg,
		Auth:   authSvc,
		Chat:   chatSvc,
		Inbox:  inboxSvc,
		WS:     realtime.NewHandler(hub, authSvc, chatSvc, cfg.WS, cfg.JWT.CookieName),
		Ready: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	// 被劫持的 websocket 连接不受 Shutdown 管理，单独关闭
	hub.Close()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	return nil
}

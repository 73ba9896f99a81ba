package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/armyboard/connection-service/internal/config"
	"github.com/armyboard/connection-service/internal/connection"
	"github.com/armyboard/connection-service/internal/database"
	"github.com/armyboard/connection-service/internal/handler"
	"github.com/armyboard/connection-service/internal/middleware"
	"github.com/armyboard/connection-service/internal/notify"
	"github.com/armyboard/connection-service/internal/queue"
	"github.com/armyboard/connection-service/internal/repository"
	"github.com/armyboard/connection-service/internal/router"
	"github.com/armyboard/connection-service/internal/service"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger := newLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(database.Config{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.Migrate(context.Background(), db); err != nil {
			logger.Fatal("migrate database", zap.Error(err))
		}
	}

	rdb := config.NewRedisClient(logger)

	opts := []service.Option{service.WithLogger(logger.Named("connection"))}
	if cfg.RabbitURL != "" {
		pub := notify.NewPublisher(cfg.RabbitURL, logger.Named("notify")).WithDialTimeout(cfg.RabbitDialTimeout)
		opts = append(opts, service.WithPublisher(pub))
	} else {
		logger.Warn("RABBITMQ_URL not set, notifications disabled")
	}
	svc := service.NewConnectionService(repository.NewStore(db), connection.NewEngine(nil), opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var lease service.Leaser
	if rdb != nil {
		lease = rdb
	}
	sweeper := service.NewSweeper(svc, lease, service.SweeperConfig{
		Interval: cfg.SweepInterval,
		Batch:    cfg.SweepBatch,
	}, logger.Named("sweeper"))
	go sweeper.Run(ctx)

	if cfg.NotifyConsumer && cfg.RabbitURL != "" {
		consumer := queue.NewConsumer(cfg.RabbitURL, cfg.NotifyLogDir, logger.Named("consumer"))
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("notification consumer stopped", zap.Error(err))
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(requestLogger(logger.Named("http")))

	router.RegisterRoutes(e, db)
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger.Named("ratelimit"))
	v1 := router.RegisterConnections(e, handler.NewConnectionHandler(svc), cfg.JWTSecret, limit)
	router.RegisterAdmin(v1, handler.NewAdminHandler(svc, cfg.SweepBatch))

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdown)
	}()

	addr := ":" + cfg.Port
	logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if env == "prod" {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	return l
}

func requestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				log.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			log.Info("request", fields...)
			return nil
		},
	})
}

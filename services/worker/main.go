package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petchat/internal/config"
	"github.com/petchat/internal/logger"
	"github.com/petchat/internal/notify"
	"github.com/petchat/internal/queue"
	"github.com/petchat/internal/repository"
	"github.com/petchat/internal/service"
	"github.com/petchat/internal/startup"
	"github.com/petchat/internal/ws"
)

// worker выполняет фоновые задачи: рассылку уведомлений о сообщениях, отложенные доставки,
// повторы, очистку старых уведомлений и отметок прочтения.
func main() {
	logger.SetPrefix("worker")
	migrate := flag.Bool("migrate", false, "run database migrations before start")
	flag.Parse()

	logger.Info("starting worker")
	cfg := config.Load()

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "worker: ")
	defer pool.Close()
	if *migrate {
		if err := startup.RunMigrations(context.Background(), pool); err != nil {
			logger.Errorf("migrations: %v", err)
			os.Exit(1)
		}
	}

	redisClient := startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, "worker: ")
	defer redisClient.Close()

	auditLog := startup.AuditLogger(cfg, redisClient.Redis())
	defer auditLog.Close()

	qClient, err := queue.NewAsynqClient(cfg.Redis.URL)
	if err != nil {
		logger.Errorf("queue client: %v", err)
		os.Exit(1)
	}
	defer qClient.Close()

	store := repository.NewStore(pool)
	userRepo := repository.NewUserRepository(pool)
	router := notify.NewRouter(notify.Deps{
		Store:     repository.NewNotificationRepository(pool),
		Users:     userRepo,
		Prefs:     userRepo,
		Tokens:    redisClient,
		Senders:   startup.Channels(context.Background(), cfg, redisClient, startup.PushOptions(cfg)),
		InApp:     ws.NewRedisRelay(redisClient.Redis()),
		Scheduler: notify.NewPublisher(qClient),
		Audit:     auditLog,
	}, notify.Config{
		QuietHours:      notify.QuietHoursPolicy(cfg.Notifications.QuietHoursPolicy),
		RetentionDays:   cfg.Notifications.RetentionDays,
		DeliveryTimeout: cfg.Notifications.DeliveryTimeout,
	})

	tasks := notify.Handlers{
		Router:          router,
		FanOut:          notify.NewFanOut(router, store.Messages(), store.Chats(), userRepo),
		Reads:           service.NewReadTracker(service.NewPgStore(store), auditLog),
		ReadHorizonDays: cfg.Notifications.ReadHorizonDays,
		SweepInterval:   cfg.Notifications.SweepInterval,
	}
	srv, err := queue.NewAsynqServer(cfg.Redis.URL, cfg.Queue.Concurrency, tasks.Periodic())
	if err != nil {
		logger.Errorf("queue server: %v", err)
		os.Exit(1)
	}
	tasks.Register(srv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger.Infof("worker running, concurrency=%d", cfg.Queue.Concurrency)
	if err := srv.Run(ctx); err != nil {
		logger.Errorf("worker: %v", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

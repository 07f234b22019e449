package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petchat/internal/audit"
	"github.com/petchat/internal/config"
	"github.com/petchat/internal/handler"
	"github.com/petchat/internal/logger"
	"github.com/petchat/internal/middleware"
	"github.com/petchat/internal/notify"
	"github.com/petchat/internal/queue"
	"github.com/petchat/internal/repository"
	"github.com/petchat/internal/service"
	"github.com/petchat/internal/startup"
	"github.com/petchat/internal/storage"
	memstorage "github.com/petchat/internal/storage/memory"
	"github.com/petchat/internal/ws"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL and in-process queue (no external DB or Redis required)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
	defer pool.Close()

	if err := startup.RunMigrations(context.Background(), pool); err != nil {
		logger.Errorf("migrations: %v", err)
		os.Exit(1)
	}
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	store := repository.NewStore(pool)
	userRepo := repository.NewUserRepository(pool)
	notifRepo := repository.NewNotificationRepository(pool)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	actions := &handler.WSActions{}
	hub := ws.NewHub(actions, cfg.MaxWSConnections)

	var (
		subs     storage.SubscriptionStore
		qClient  queue.Client
		inApp    notify.InAppPublisher
		auditLog *audit.Async
		memQueue *queue.Memory
		bgWg     sync.WaitGroup
	)
	if *dev {
		subs = memstorage.New()
		memQueue = queue.NewMemory()
		qClient = memQueue
		inApp = ws.NewLocalRelay(hub)
		auditLog = startup.AuditLogger(cfg, nil)
	} else {
		redisClient := startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, "")
		subs = redisClient
		relay := ws.NewRedisRelay(redisClient.Redis())
		inApp = relay
		bgWg.Add(1)
		go func() {
			defer bgWg.Done()
			relay.Run(hubCtx, hub)
		}()
		asynqClient, err := queue.NewAsynqClient(cfg.Redis.URL)
		if err != nil {
			logger.Errorf("queue client: %v", err)
			os.Exit(1)
		}
		qClient = asynqClient
		auditLog = startup.AuditLogger(cfg, redisClient.Redis())
	}
	defer subs.Close()
	defer auditLog.Close()
	defer qClient.Close()

	publisher := notify.NewPublisher(qClient)
	svcStore := service.NewPgStore(store)
	messaging := service.NewMessaging(svcStore, publisher, auditLog, service.MessagingConfig{
		RateLimitCount:   cfg.Messaging.RateLimitCount,
		RateLimitWindow:  cfg.Messaging.RateLimitWindow,
		MaxContentLength: cfg.Messaging.MaxContentLength,
	})
	reads := service.NewReadTracker(svcStore, auditLog)

	pushOpts := startup.PushOptions(cfg)
	deps := notify.Deps{
		Store:     notifRepo,
		Users:     userRepo,
		Prefs:     userRepo,
		Tokens:    subs,
		InApp:     inApp,
		Scheduler: publisher,
		Audit:     auditLog,
	}
	if *dev {
		// В -dev воркер работает в этом же процессе.
		deps.Senders = startup.Channels(context.Background(), cfg, subs, pushOpts)
	}
	router := notify.NewRouter(deps, notify.Config{
		QuietHours:      notify.QuietHoursPolicy(cfg.Notifications.QuietHoursPolicy),
		RetentionDays:   cfg.Notifications.RetentionDays,
		DeliveryTimeout: cfg.Notifications.DeliveryTimeout,
	})
	actions.Reads = reads
	actions.Notifications = router

	if *dev {
		tasks := notify.Handlers{
			Router:          router,
			FanOut:          notify.NewFanOut(router, store.Messages(), store.Chats(), userRepo),
			Reads:           reads,
			ReadHorizonDays: cfg.Notifications.ReadHorizonDays,
			SweepInterval:   cfg.Notifications.SweepInterval,
		}
		tasks.Register(memQueue)
		memQueue.Schedule(tasks.Periodic())
	}

	bgWg.Add(1)
	go func() {
		defer bgWg.Done()
		hub.Run(hubCtx)
	}()

	handlers := handler.Handlers{
		Chats:         handler.NewChatHandler(messaging, reads),
		Messages:      handler.NewMessageHandler(messaging, reads),
		Notifications: handler.NewNotificationHandler(router),
		Push:          handler.NewPushHandler(subs),
		Config:        handler.NewConfigHandler(pushOpts.PublicKey),
		WS:            handler.NewWSHandler(hub, cfg.CORSAllowedOrigins),
	}
	internalH := handler.NewInternalHandler(userRepo, router)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSAllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.UserIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", handler.Health)
	r.Group(func(r chi.Router) {
		r.Use(middleware.InternalOnly(cfg.Gateway.InternalSecret))
		r.Route("/internal", internalH.Mount)
		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.Actor)
			r.Use(middleware.RateLimit(cfg.Gateway.RateLimitPerIP, cfg.Gateway.RateLimitPerUser, time.Minute))
			handlers.Mount(r)
		})
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	bgWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "petchat"
		password = "petchat_secret"
		database = "petchat"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}

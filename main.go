package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"furadapt/api/internal/api"
	"furadapt/api/internal/cache"
	"furadapt/api/internal/config"
	"furadapt/api/internal/db"
	"furadapt/api/internal/email"
	"furadapt/api/internal/logger"
	"furadapt/api/internal/monitoring"
	"furadapt/api/internal/realtime"
	"furadapt/api/internal/services"
	"furadapt/api/internal/storage"
	"furadapt/api/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	switch cfg.RunMode {
	case "api", "bg", "all":
	default:
		log.Fatal("invalid run mode", zap.String("mode", cfg.RunMode))
	}

	monitoring.Init()

	// Database
	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			log.Error("error disconnecting from MongoDB", zap.Error(err))
		}
	}()

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureIndexes(indexCtx, mongoDb); err != nil {
		log.Fatal("failed to ensure indexes", zap.Error(err))
	}
	cancelIndexes()

	// Redis backs the task queue, the analytics cache and, optionally, room fan-out.
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.Error("error disconnecting from Redis", zap.Error(err))
		}
	}()

	s3StorageService, err := storage.NewS3Storage(cfg)
	if err != nil {
		log.Fatal("failed to initialize S3 storage", zap.Error(err))
	}

	// Email: SMTP (or log-only) plus optional file and Redis capture.
	compositeSender := email.NewCompositeEmailSender(email.NewSMTPSender(cfg))
	if cfg.EmailLogFile != "" {
		fileSender, err := email.NewFileEmailSender(cfg.EmailLogFile)
		if err != nil {
			log.Warn("file email logger disabled", zap.String("path", cfg.EmailLogFile), zap.Error(err))
		} else {
			compositeSender.AddSender(fileSender)
			defer func() { _ = fileSender.Close() }()
		}
	}
	var mailbox api.MailboxReader
	if cfg.EmailCapture {
		redisSender := email.NewRedisSender(redisClient)
		compositeSender.AddSender(redisSender)
		mailbox = redisSender
		log.Info("capturing sent email in Redis")
	}

	// Services
	userService := services.NewUserService(mongoDb)
	requestStore := services.NewAdoptionRequestStore(mongoDb)
	petService := services.NewPetService(mongoDb, requestStore)

	var tx db.Transactor = db.NoTransaction{}
	if cfg.MongoTransactions {
		tx = db.NewMongoTransactor(mongoClient)
	}
	adoptionService := services.NewAdoptionService(petService, requestStore, tx, cfg.ReconcileGracePeriod)
	chatService := services.NewChatService(mongoDb, userService)
	analyticsService := services.NewAnalyticsService(mongoDb, cache.NewJSONCache(redisClient, "analytics:"), cfg.AnalyticsCacheTTL)

	// Tasks
	redisOpt := tasks.NewRedisClientOpt(cfg)
	taskClient := tasks.NewClient(redisOpt)
	defer func() {
		if err := taskClient.Close(); err != nil {
			log.Error("error closing task client", zap.Error(err))
		}
	}()
	enqueuer := tasks.NewEnqueuer(taskClient, cfg.ReconcileDelay)
	adoptionService.SetLifecycleEvents(enqueuer)

	// Realtime relay
	var broadcaster realtime.Broadcaster
	if cfg.RealtimeBackend == "redis" {
		broadcaster = realtime.NewRedisBroadcaster(redisClient)
	}
	hub := realtime.NewHub(broadcaster)
	hub.SetMessageSender(chatService)
	chatService.SetMessagePublisher(hub)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	var wg sync.WaitGroup
	shutdownChan := make(chan struct{}, 1)

	// Service API (always runs)
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(mailbox, shutdownChan),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("service API listening", zap.String("port", cfg.ServiceApiPort))
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("service API ListenAndServe error", zap.Error(err))
		}
	}()

	var mainApiSrv *http.Server
	var taskSrv *asynq.Server
	var scheduler *asynq.Scheduler

	log.Info("starting application", zap.String("mode", cfg.RunMode))

	apiMode := func() {
		if err := hub.Start(rootCtx); err != nil {
			log.Fatal("failed to start realtime hub", zap.Error(err))
		}
		router := api.SetupRouter(cfg, api.Dependencies{
			Users:     userService,
			Pets:      petService,
			Adoptions: adoptionService,
			Chat:      chatService,
			Analytics: analyticsService,
			Storage:   s3StorageService,
			Images:    enqueuer,
			Hub:       hub,
		})
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: router,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("main API listening", zap.String("port", cfg.ApiPort))
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal("main API ListenAndServe error", zap.Error(err))
			}
		}()
	}

	bgMode := func() {
		processor := tasks.NewTaskProcessor(cfg, compositeSender, s3StorageService, petService, requestStore, userService, adoptionService, enqueuer)
		var mux *asynq.ServeMux
		taskSrv, mux = tasks.NewServer(redisOpt, processor)
		// Start, not Run: Run installs its own signal handling.
		if err := taskSrv.Start(mux); err != nil {
			log.Fatal("failed to start task server", zap.Error(err))
		}

		scheduler, err = tasks.NewScheduler(redisOpt, cfg.ReconcileSweepCron)
		if err != nil {
			log.Fatal("failed to create scheduler", zap.Error(err))
		}
		if err := scheduler.Start(); err != nil {
			log.Fatal("failed to start scheduler", zap.Error(err))
		}
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case <-shutdownChan:
		log.Info("shutdown requested via service API")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Error("service API shutdown error", zap.Error(err))
	}
	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Error("main API shutdown error", zap.Error(err))
		}
		hub.Close()
	}
	if scheduler != nil {
		scheduler.Shutdown()
	}
	if taskSrv != nil {
		taskSrv.Shutdown()
	}
	cancelRoot()

	wg.Wait()
	log.Info("server gracefully stopped")
}

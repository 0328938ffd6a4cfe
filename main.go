package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsgo_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/adith23/parking-automation-app/internal/api"
	"github.com/adith23/parking-automation-app/internal/api/handler"
	"github.com/adith23/parking-automation-app/internal/api/middleware"
	"github.com/adith23/parking-automation-app/internal/config"
	"github.com/adith23/parking-automation-app/internal/events"
	"github.com/adith23/parking-automation-app/internal/lock"
	"github.com/adith23/parking-automation-app/internal/repository/postgresql"
	"github.com/adith23/parking-automation-app/internal/service"
	"github.com/adith23/parking-automation-app/internal/vision"
	"github.com/adith23/parking-automation-app/internal/worker"
)

func main() {
	// 1. Configuration
	cfg := config.Load()
	log.Println("Configuration loaded.")

	// 2. Database
	db, err := postgresql.NewDB(cfg)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connection established.")

	// 3. Redis (slot locks + availability channel). A broken Redis is not
	// fatal: the lock fails open and publications are skipped.
	var redisClient *redis.Client
	if opts, err := redis.ParseURL(cfg.RedisURL); err != nil {
		log.Printf("WARNING: invalid REDIS_URL %q: %v. Locks degrade to fail-open.", cfg.RedisURL, err)
	} else {
		redisClient = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("WARNING: Redis unreachable at startup: %v. Locks degrade to fail-open.", err)
		}
		cancel()
	}

	// 4. AWS clients (SQS vision queue, Rekognition LPR)
	awsSDKCfg, err := awsgo_config.LoadDefaultConfig(context.TODO(), awsgo_config.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatalf("Could not load AWS SDK config: %v", err)
	}
	sqsClient := sqs.NewFromConfig(awsSDKCfg)
	rekognitionClient := rekognition.NewFromConfig(awsSDKCfg)

	// 5. Repositories
	userRepo := postgresql.NewPgUserRepository(db)
	vehicleRepo := postgresql.NewPgVehicleRepository(db)
	parkingLotRepo := postgresql.NewPgParkingLotRepository(db)
	parkingSlotRepo := postgresql.NewPgParkingSlotRepository(db)
	bookingRepo := postgresql.NewPgBookingRepository(db)
	sessionRepo := postgresql.NewPgParkingSessionRepository(db)

	// 6. WebSocket manager for live slot status
	webSocketManager := handler.NewWebSocketManager()
	go webSocketManager.Start()

	// 7. Event fanout: Redis availability channel + websocket broadcast
	publisher := events.Fanout{
		events.NewRedisPublisher(redisClient, cfg.SlotAvailabilityCh),
		webSocketManager,
	}

	// 8. Services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpirationHours)
	lprService := service.NewLPRService(rekognitionClient)
	slotLocker := lock.NewRedisSlotLocker(redisClient, cfg.LockTTL)
	sessionService := service.NewSessionService(sessionRepo, vehicleRepo, bookingRepo, parkingLotRepo)
	occupancyService := service.NewOccupancyService(parkingSlotRepo, sessionService, publisher,
		cfg.OccupiedFrameThreshold, cfg.EmptyFrameThreshold)
	bookingService := service.NewBookingService(bookingRepo, parkingSlotRepo, parkingLotRepo,
		slotLocker, publisher, occupancyService, cfg.LockTTL)
	parkingService := service.NewParkingService(parkingLotRepo, parkingSlotRepo, vehicleRepo,
		publisher, occupancyService)

	authMiddleware := middleware.NewAuthMiddleware(authService)

	// 9. Background workers: vision consumer + expiry sweeper
	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(context.Background())

	if cfg.SQSVisionQueueURL == "" {
		log.Println("WARNING: SQS_VISION_QUEUE_URL is not set. Vision consumer will not run.")
	} else {
		visionConsumer := vision.NewSQSConsumer(sqsClient, cfg.SQSVisionQueueURL, occupancyService)
		wg.Add(1)
		go func() {
			defer wg.Done()
			visionConsumer.Start(workerCtx)
		}()
	}

	sweeper := worker.NewSweeper(bookingService, cfg.SweepInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(workerCtx)
	}()

	// 10. HTTP server
	router := api.SetupRouter(authService, parkingService, bookingService, sessionService,
		lprService, authMiddleware, webSocketManager)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server listening on port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancelWorkers()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shut down: %v", err)
	}

	log.Println("Waiting for background workers to stop (up to 5s)...")
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
		log.Println("Background workers stopped.")
	case <-time.After(5 * time.Second):
		log.Println("Background workers did not stop within the grace period.")
	}

	if redisClient != nil {
		redisClient.Close()
	}
	log.Println("Server stopped.")
}

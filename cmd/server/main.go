package main

import (
	"time"

	"table_waiter/internal/config"
	"table_waiter/internal/database"
	"table_waiter/internal/handlers"
	"table_waiter/internal/logger"
	"table_waiter/internal/migrations"
	"table_waiter/internal/redis"
	"table_waiter/internal/repository"
	"table_waiter/internal/services"
	"table_waiter/pkg/openai"
	"table_waiter/pkg/whatsapp"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	// Initialize database
	db, err := database.Initialize(cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	if err := migrations.RunMigrations(db, log); err != nil {
		log.WithError(err).Fatal("Failed to migrate database")
	}

	// Initialize Redis
	redisClient, err := redis.Initialize(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()
	redisClient.SetHistoryPolicy(cfg.HistoryLimit, time.Duration(cfg.SessionTimeout)*time.Second)

	detection := detectionConfig(cfg)

	// The pattern matcher alone serves when no API key is configured
	var generative services.GenerativeSource
	if cfg.GenerativeEnabled() {
		client := openai.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
		generative = services.NewGenerativeDetector(client, detection, log)
	} else {
		log.Warn("OPENAI_API_KEY not set, running with the pattern matcher only")
	}

	var notifier services.StaffNotifier
	if cfg.StaffAlertsEnabled() {
		client := whatsapp.NewClient(cfg.WhatsAppAPIURL, cfg.WhatsAppUsername, cfg.WhatsAppPassword, cfg.WhatsAppPath)
		notifier = services.NewWhatsAppNotifier(client, cfg.StaffPhone, log)
	}

	// Initialize repositories
	menuRepo := repository.NewMenuRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	// Initialize services
	sessionService := services.NewSessionService(sessionRepo, orderRepo, cfg.RecentOrderWindow, log)
	orderService := services.NewOrderService(orderRepo, menuRepo, sessionService, notifier, log)
	recommender := services.NewMenuRecommender()
	assistantService := services.NewAssistantService(services.AssistantDeps{
		Detector:      services.NewHybridDetector(generative, services.NewPatternMatcher(), detection, log),
		Pending:       services.NewPendingActionService(redisClient, cfg.PendingActionTTL, log),
		Executor:      services.NewActionExecutor(orderService, menuRepo, redisClient, recommender),
		Advisor:       services.NewRecoveryAdvisor(recommender, log),
		Orders:        orderService,
		Sessions:      sessionService,
		MenuRepo:      menuRepo,
		Conversations: redisClient,
		Config:        detection,
		Log:           log,
	})

	// Initialize handlers
	chatHandler := handlers.NewChatHandler(assistantService, log)
	orderHandler := handlers.NewOrderHandler(orderService, sessionService, menuRepo, redisClient, log)

	// Setup routes
	router := gin.Default()
	handlers.RegisterRoutes(router, chatHandler, orderHandler)

	// Start server
	log.WithField("port", cfg.ServerPort).Info("Server starting")
	if err := router.Run(":" + cfg.ServerPort); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}

func detectionConfig(cfg *config.Config) services.DetectionConfig {
	return services.DetectionConfig{
		ConfidenceFloor:          cfg.ConfidenceFloor,
		SafeAutoThreshold:        cfg.SafeAutoThreshold,
		FallbackCeiling:          cfg.FallbackCeiling,
		GenerativeBaseConfidence: cfg.GenerativeBaseConfidence,
		NoActionConfidence:       cfg.NoActionConfidence,
		GenerativeTimeout:        cfg.GenerativeTimeout,
	}
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"chatagent-backend/config"
	"chatagent-backend/database"
	"chatagent-backend/handlers"
	"chatagent-backend/middleware"
	"chatagent-backend/services"
	"chatagent-backend/storage"
	"chatagent-backend/worker"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	// Initialize database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}

	// Media storage
	store, err := storage.NewClient(context.Background(), cfg.Storage)
	if err != nil {
		log.Fatalf("❌ Failed to initialize media storage: %v", err)
	}

	// Services
	resolver := services.NewTenantResolver(db)
	conversations := services.NewConversationService(db)
	relay := services.NewMediaRelay(store)
	telegram := services.NewTelegramFactory()
	sessions := services.NewDBSessionStore(db)
	dispatcher := services.NewDispatcher(services.NewAssistantFactory(), sessions, cfg.Dispatch)

	// Start dispatch worker in background with graceful shutdown support
	dispatchWorker := worker.NewDispatchWorker(db, cfg, conversations, dispatcher, telegram)
	go dispatchWorker.Start()

	// Handlers
	webhookHandler := handlers.NewWebhookHandler(cfg, db, resolver, conversations, relay)
	telegramHandler := handlers.NewTelegramWebhookHandler(db, resolver, conversations, relay, telegram)
	chatHandler := handlers.NewChatHandler(cfg, db, conversations, telegram)
	appHandler := handlers.NewAppHandler(db)
	contactHandler := handlers.NewContactHandler(db)

	// Setup Gin router
	router := gin.Default()

	// CORS for the dashboard frontend
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/", handlers.HomePage)
	router.GET("/health", handlers.HealthCheck)

	// WhatsApp Cloud API webhook: handshake on GET, signed deliveries on POST
	router.GET("/webhook", webhookHandler.Verify)
	router.POST("/webhook", middleware.SignatureRequired(cfg.WhatsApp.AppSecret), webhookHandler.Receive)

	// Telegram Bot API webhook, tenancy via ?app_token=
	router.POST("/telegram/webhook", telegramHandler.Receive)

	// Authenticated dashboard API
	api := router.Group("/api/v1")
	api.Use(middleware.RequireAuth(cfg.JWTSecret, "user", "admin", "super_admin"))
	{
		api.GET("/messages", chatHandler.ListThreads)
		api.GET("/messages/:chat_id", chatHandler.ListMessages)
		api.POST("/messages/:chat_id/send", chatHandler.SendMessage)

		api.POST("/apps", appHandler.Create)
		api.GET("/apps", appHandler.List)
		api.GET("/apps/:app_id", appHandler.Get)
		api.PUT("/apps/:app_id", appHandler.Update)
		api.DELETE("/apps/:app_id", appHandler.Delete)
		api.POST("/apps/:app_id/rotate-token", appHandler.RotateToken)

		api.GET("/contacts", contactHandler.List)
		api.PUT("/contacts/:id", contactHandler.Update)
	}

	// Setup HTTP server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("🚀 Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-quit
	log.Println("🛑 Shutting down server...")

	dispatchWorker.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server exited gracefully")
}

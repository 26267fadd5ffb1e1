package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/docuflow/backend/internal/api/handlers"
	"github.com/docuflow/backend/internal/barcode"
	"github.com/docuflow/backend/internal/classify"
	"github.com/docuflow/backend/internal/crypto"
	"github.com/docuflow/backend/internal/identity"
	"github.com/docuflow/backend/internal/lock"
	"github.com/docuflow/backend/internal/metrics"
	"github.com/docuflow/backend/internal/pdf"
	"github.com/docuflow/backend/internal/scanner"
	"github.com/docuflow/backend/internal/storage/blob"
	"github.com/docuflow/backend/internal/storage/sqlite"
	"github.com/docuflow/backend/pkg/config"
	appLogger "github.com/docuflow/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting DocuFlow API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	cipher, err := crypto.NewCipherFromBase64(cfg.Crypto.Key)
	if err != nil {
		appLogger.Fatal("Failed to initialize content cipher", zap.Error(err))
	}

	blobStore, err := blob.NewStore(cfg.Archive.BlobPath, cipher)
	if err != nil {
		appLogger.Fatal("Failed to create blob store", zap.Error(err))
	}

	lockManager := lock.NewManager(redisClient, appLogger.Named("lock"))
	extractor := barcode.NewExtractor(appLogger.Named("barcode"))
	segmenter := pdf.NewSegmenter(extractor, appLogger.Named("pdf"))
	resolver := identity.NewResolver(sqliteClient, appLogger.Named("identity"))
	ruleEngine := classify.NewEngine(sqliteClient, appLogger.Named("classify"))
	source := scanner.NewFilesystemSource(cfg.Archive.Path, appLogger.Named("scanner"))

	orchestrator := scanner.NewOrchestrator(
		cfg.Scanner,
		source,
		sqliteClient,
		blobStore,
		lockManager,
		extractor,
		segmenter,
		resolver,
		ruleEngine,
		appLogger.Named("scanner"),
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	scanHandler := handlers.NewScanHandler(orchestrator, sqliteClient)
	documentHandler := handlers.NewDocumentHandler(sqliteClient, blobStore)
	wsHandler := handlers.NewWebSocketHandler(sqliteClient)

	api := app.Group("/api/v1")

	api.Post("/scan", scanHandler.TriggerScan)
	api.Get("/scan/jobs", scanHandler.ListScanJobs)
	api.Get("/scan/jobs/:id", scanHandler.GetScanJob)

	api.Get("/documents/review", documentHandler.ListReviewDocuments)
	api.Get("/documents/:id", documentHandler.GetDocument)
	api.Get("/documents/:id/content", documentHandler.DownloadDocument)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws/scan/:id", websocket.New(wsHandler.HandleScanProgress))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"budgetrag/internal/api"
	"budgetrag/internal/config"
	redisdb "budgetrag/internal/database/redis"
	"budgetrag/internal/queue"
	"budgetrag/internal/rag/cache"
	"budgetrag/internal/rag/embeddings"
	"budgetrag/internal/rag/engine"
	"budgetrag/internal/rag/extract"
	"budgetrag/internal/rag/llms"
	"budgetrag/internal/rag/pipeline"
	"budgetrag/internal/rag/textproc"
	"budgetrag/internal/rag/vectorstore"
	"budgetrag/pkg/logger"

	goredis "github.com/go-redis/redis/v8"
)

func main() {
	configPath := os.Getenv("BUDGETRAG_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	serviceLogger := logger.New("BudgetRAG", "")

	if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
		serviceLogger.WithError(err).Fatal("Failed to create upload directory")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis backs the answer cache. Unreachable or unconfigured Redis only
	// disables caching, it never blocks startup.
	var redisClient *goredis.Client
	if cfg.Databases.Redis.Address != "" {
		redisClient, err = redisdb.GetClient(&cfg.Databases.Redis)
		if err != nil {
			serviceLogger.WithError(err).Warn("Redis unavailable, query caching disabled")
			redisClient = nil
		} else {
			serviceLogger.Info("Successfully connected to Redis")
		}
	}

	backend := vectorstore.Select(ctx, &cfg.Databases.Milvus, cfg.Embedding.Dimension, serviceLogger)
	store := vectorstore.NewStore(backend, serviceLogger)

	embedder := embeddings.NewOpenAIEmbedder(cfg.Embedding.OpenAI.APIKey, cfg.Embedding.OpenAI.Model, cfg.Embedding.BatchSize, serviceLogger)
	generator := llms.NewOpenAIGenerator(cfg.LLM.OpenAI.APIKey, cfg.LLM.OpenAI.Model, serviceLogger)

	processor, err := textproc.NewProcessor(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		serviceLogger.WithError(err).Fatal("Failed to initialize text processor")
	}

	answerCache := cache.New(redisClient, time.Duration(cfg.RAG.CacheTTLSeconds)*time.Second, serviceLogger)
	queryEngine := engine.New(embedder, store, generator, answerCache, cfg.RAG.TopK, serviceLogger)

	coordinator := pipeline.NewCoordinator(
		extract.NewPDFExtractor(),
		processor,
		embedder,
		store,
		queryEngine,
		generator,
		serviceLogger,
	)

	// Async ingestion is optional; without brokers every upload is
	// processed inline.
	var taskPublisher *queue.TaskPublisher
	var taskConsumer *queue.TaskConsumer
	if len(cfg.Databases.Kafka.Brokers) > 0 && cfg.Databases.Kafka.Topic != "" {
		taskPublisher = queue.NewTaskPublisher(cfg.Databases.Kafka.Brokers, cfg.Databases.Kafka.Topic, serviceLogger)
		taskConsumer = queue.NewTaskConsumer(cfg.Databases.Kafka.Brokers, cfg.Databases.Kafka.Topic, cfg.Databases.Kafka.GroupID, serviceLogger)
		taskConsumer.Start(ctx, func(taskCtx context.Context, task queue.IngestTask) error {
			result := coordinator.Ingest(taskCtx, task.FilePath, task.Metadata)
			if result.Status != "success" {
				return errors.New(result.Error)
			}
			return nil
		})
		serviceLogger.Info("Ingestion task consumer started")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	apiHandler := api.NewAPI(coordinator, taskPublisher, cfg.Server.UploadDir, backend.Name(), serviceLogger)
	api.RegisterRoutes(router, apiHandler, api.BuildMiddleware(&cfg.Middleware, serviceLogger))

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	go func() {
		serviceLogger.Info("Starting HTTP server on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serviceLogger.WithError(err).Fatal("HTTP server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		serviceLogger.WithError(err).Error("Server forced to shutdown")
	}

	cancel()
	if taskPublisher != nil {
		if err := taskPublisher.Close(); err != nil {
			serviceLogger.WithError(err).Error("Error closing Kafka publisher")
		}
	}
	if taskConsumer != nil {
		if err := taskConsumer.Close(); err != nil {
			serviceLogger.WithError(err).Error("Error closing Kafka consumer")
		}
	}
	if err := backend.Close(); err != nil {
		serviceLogger.WithError(err).Error("Error closing vector backend")
	}
	if redisClient != nil {
		if err := redisdb.Close(); err != nil {
			serviceLogger.WithError(err).Error("Error closing Redis connection")
		}
	}

	serviceLogger.Info("Server gracefully stopped")
}

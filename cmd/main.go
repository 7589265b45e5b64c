package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dawask/rag-backend/internal/db"
	"github.com/dawask/rag-backend/internal/handlers"
	"github.com/dawask/rag-backend/internal/logger"
	"github.com/dawask/rag-backend/internal/parser"
	"github.com/dawask/rag-backend/internal/platform/gcp"
	"github.com/dawask/rag-backend/internal/platform/qdrant"
	"github.com/dawask/rag-backend/internal/repos"
	"github.com/dawask/rag-backend/internal/server"
	"github.com/dawask/rag-backend/internal/services"
	"github.com/dawask/rag-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	documentRepo := repos.NewDocumentRepo(thePG, log)
	chunkRepo := repos.NewChunkRepo(thePG, log)
	entityRepo := repos.NewEntityRepo(thePG, log)

	// Vector store
	log.Info("Setting up Qdrant from main...")
	qdrantCfg, err := qdrant.ResolveConfigFromEnv()
	if err != nil {
		log.Error("Could not resolve Qdrant config", "error", err)
		os.Exit(1)
	}
	vectorStore, err := qdrant.NewVectorStore(log, qdrantCfg)
	if err != nil {
		log.Error("Could not init Qdrant vector store", "error", err)
		os.Exit(1)
	}
	if err := vectorStore.EnsureCollection(ctx); err != nil {
		log.Error("Could not ensure Qdrant collection", "error", err)
		os.Exit(1)
	}

	// Blob store
	bucketService, err := gcp.NewBucketService(log)
	if err != nil {
		log.Error("Could not init BucketService", "error", err)
		os.Exit(1)
	}
	if err := bucketService.EnsureBucket(ctx); err != nil {
		log.Warn("Could not ensure bucket policy", "error", err)
	}

	// PDF parser
	docParser, err := parser.NewDocAIParser(log)
	if err != nil {
		log.Error("Could not init document parser", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up Services from main...")
	openaiClient, err := services.NewOpenAIClient(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}
	embedder, err := services.NewEmbedderFromEnv(log, openaiClient)
	if err != nil {
		log.Error("Could not init embedder", "error", err)
		os.Exit(1)
	}
	reranker := services.NewRerankerFromEnv(log)
	benchConfigs := services.NewBenchConfigs(log)

	chunker := services.NewChunker(log)
	processor := services.NewProcessor(log, bucketService)
	identityService := services.NewIdentityService(log, openaiClient)
	enrichmentService := services.NewEnrichmentService(log, openaiClient)
	ingestionService := services.NewIngestionService(
		log,
		docParser,
		chunker,
		processor,
		identityService,
		enrichmentService,
		embedder,
		vectorStore,
		documentRepo,
		chunkRepo,
		entityRepo,
		benchConfigs,
	)

	rewriter := services.NewQueryRewriter(log, openaiClient)
	retrievalService := services.NewRetrievalService(log, chunkRepo, vectorStore, embedder, reranker)
	answerService := services.NewAnswerService(log, openaiClient)
	sessionStore, err := services.NewSessionStore(log)
	if err != nil {
		log.Error("Could not init session store", "error", err)
		os.Exit(1)
	}

	// Handlers
	log.Info("Setting up handlers from main...")
	ingestHandler := handlers.NewIngestHandler(log, ingestionService)
	queryHandler := handlers.NewQueryHandler(log, rewriter, retrievalService, answerService, sessionStore, benchConfigs)
	documentHandler := handlers.NewDocumentHandler(log, documentRepo)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		IngestHandler:   ingestHandler,
		QueryHandler:    queryHandler,
		DocumentHandler: documentHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}

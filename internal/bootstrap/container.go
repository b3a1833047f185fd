package bootstrap

import (
	"context"
	"log"
	"time"

	"second-brain-be/internal/config"
	"second-brain-be/internal/controller"
	"second-brain-be/internal/model"
	"second-brain-be/internal/pkg/logger"
	"second-brain-be/internal/repository/implementation"
	"second-brain-be/internal/service"
	"second-brain-be/pkg/breaker"
	"second-brain-be/pkg/database"
	"second-brain-be/pkg/embedding"
	"second-brain-be/pkg/llm/factory"
	pktNats "second-brain-be/pkg/nats"
	"second-brain-be/pkg/rag"
	"second-brain-be/pkg/rag/rerank"
	"second-brain-be/pkg/rag/retrieval"
	"second-brain-be/pkg/vectorstore"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	NoteController controller.INoteController
	RagController  controller.IRagController

	// Background services (exposed for main.go to run)
	IndexerService   service.IIndexerService
	AnalyticsService service.IAnalyticsService

	// Metrics registry backing the /metrics endpoint.
	MetricsRegistry *prometheus.Registry
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	metricsRegistry := prometheus.NewRegistry()

	if err := database.Migrate(db, &model.Note{}, &model.RagSettings{}, &model.RagQueryLog{}); err != nil {
		log.Fatalf("[FATAL] Failed to migrate schema: %v", err)
	}

	// 2. Event bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

	// 3. Embedding providers: registry -> breaker -> cache
	var rdb redis.UniversalClient
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if _, err := client.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis, distributed cache tier disabled: %v", err)
		} else {
			rdb = client
		}
	}

	registry := embedding.NewRegistry()
	breakerSettings := breaker.Settings{
		FailureThreshold: cfg.Retrieval.BreakerFailureThreshold,
		OpenTimeout:      time.Duration(cfg.Retrieval.BreakerOpenTimeoutSec) * time.Second,
	}
	cacheMetrics := embedding.NewCacheMetrics(metricsRegistry)

	guard := func(p embedding.Provider) embedding.Provider {
		guarded := embedding.NewBreakerProvider(p, breaker.New(breakerSettings, nil))
		return embedding.NewCachedProvider(guarded, rdb, cacheMetrics, sysLogger)
	}

	if cfg.Keys.GoogleGemini != "" {
		registry.Register(guard(embedding.NewGeminiProvider(cfg.Keys.GoogleGemini)))
	}
	registry.Register(guard(embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaModel)))
	if cfg.Keys.OpenAI != "" {
		registry.Register(guard(embedding.NewOpenAIProvider(cfg.Keys.OpenAI)))
	}
	if err := registry.SetDefault(cfg.Ai.EmbeddingProvider); err != nil {
		log.Printf("[WARN] Embedding provider %q not configured, using first registered", cfg.Ai.EmbeddingProvider)
	}

	defaultProvider, err := registry.Default()
	if err != nil {
		log.Fatalf("[FATAL] No embedding provider configured: %v", err)
	}
	log.Printf("[INFO] Using Embedding Provider: %s", defaultProvider.Name())

	// 4. Vector stores
	mode, err := vectorstore.ParseMode(cfg.Retrieval.VectorStore)
	if err != nil {
		log.Printf("[WARN] %v, defaulting to pgvector", err)
		mode = vectorstore.ModePgVector
	}

	pgStore := vectorstore.NewPgVectorStore(db, sysLogger)
	if err := pgStore.Migrate(); err != nil {
		log.Fatalf("[FATAL] Failed to migrate vector schema: %v", err)
	}

	var qdrantStore vectorstore.Store
	if mode == vectorstore.ModeQdrant || mode == vectorstore.ModeBoth {
		qs, err := vectorstore.NewQdrantStore(context.Background(), &vectorstore.QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
			VectorSize: uint64(cfg.Ai.EmbeddingDimensions),
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
		}, sysLogger)
		if err != nil {
			log.Printf("[WARN] Qdrant unavailable, falling back to pgvector only: %v", err)
			mode = vectorstore.ModePgVector
		} else {
			qdrantStore = qs
		}
	}

	compositeStore := vectorstore.NewCompositeStore(pgStore, qdrantStore, mode, sysLogger)
	log.Printf("[INFO] Using Vector Store: %s", compositeStore.Name())

	// 5. LLM provider (HyDE, query expansion, reranking)
	llmProvider, err := factory.NewLLMProvider(factory.Config{
		Provider: cfg.Ai.LLMProvider,
		Model:    cfg.Ai.LLMModel,
		BaseURL:  llmBaseURL(cfg),
		APIKey:   llmAPIKey(cfg),
	})
	if err != nil {
		log.Printf("[WARN] LLM provider disabled: %v", err)
	} else {
		log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)
	}

	// 6. Repositories
	noteRepo := implementation.NewNoteRepository(db)
	settingsRepo := implementation.NewRagSettingsRepository(db)
	queryLogRepo := implementation.NewRagQueryLogRepository(db)

	// 7. Retrieval pipeline
	defaults := rag.DefaultSettings()
	defaults.TopK = cfg.Retrieval.TopK
	defaults.SimilarityThreshold = cfg.Retrieval.SimilarityThreshold
	defaults.VectorWeight = cfg.Retrieval.VectorWeight
	defaults.KeywordWeight = cfg.Retrieval.KeywordWeight
	defaults.InitialRetrievalCount = cfg.Retrieval.InitialRetrievalCount
	defaults.MaxContextChars = cfg.Retrieval.MaxContextChars
	defaults.EnableHybrid = cfg.Retrieval.EnableHybrid
	defaults.EnableRerank = cfg.Retrieval.EnableRerank
	defaults.EnableHyDE = cfg.Retrieval.EnableHyDE
	defaults.EnableQueryExpansion = cfg.Retrieval.EnableQueryExpansion
	defaults.EnableAnalytics = cfg.Retrieval.EnableAnalytics
	defaults.EmbeddingProvider = cfg.Ai.EmbeddingProvider
	defaults.EmbeddingModel = cfg.Ai.EmbeddingModel

	settingsService := service.NewSettingsService(settingsRepo, defaults, sysLogger)

	var reranker rerank.Reranker = rerank.NoopReranker{}
	if llmProvider != nil {
		reranker = rerank.NewLLMReranker(llmProvider, sysLogger)
	}

	var analyticsPublisher rag.EventPublisher
	if natsPub != nil {
		analyticsPublisher = natsPub
	}

	orchestrator := rag.NewOrchestrator(rag.OrchestratorDeps{
		Registry:  registry,
		Store:     compositeStore,
		Retriever: retrieval.NewRetriever(pgStore, sysLogger),
		Reranker:  reranker,
		LLM:       llmProvider,
		Settings:  settingsService,
		Analytics: rag.NewAnalyticsRecorder(analyticsPublisher, sysLogger, cfg.Retrieval.EnableAnalytics),
		Metrics:   rag.NewMetrics(metricsRegistry),
		Log:       sysLogger,
	})

	// 8. Services
	publisherService := service.NewPublisherService(cfg.Keys.IndexTopic, pubSub)

	var emitter service.EventEmitter
	if natsPub != nil {
		emitter = natsPub
	}

	var embedOpts []embedding.Option
	if cfg.Ai.EmbeddingModel != "" {
		embedOpts = append(embedOpts, embedding.WithModel(cfg.Ai.EmbeddingModel))
	}
	if cfg.Ai.EmbeddingDimensions > 0 {
		embedOpts = append(embedOpts, embedding.WithDimensions(cfg.Ai.EmbeddingDimensions))
	}

	indexerService := service.NewIndexerService(
		pubSub,
		cfg.Keys.IndexTopic,
		noteRepo,
		defaultProvider,
		compositeStore,
		publisherService,
		emitter,
		sysLogger,
		embedOpts...,
	)

	noteService := service.NewNoteService(noteRepo, publisherService, compositeStore, sysLogger)

	analyticsService := service.NewAnalyticsService(queryLogRepo, natsSub, sysLogger)
	if natsSub != nil {
		if err := analyticsService.Start(); err != nil {
			log.Printf("[WARN] Failed to start analytics consumers: %v", err)
		}
	}

	// 9. Controllers
	return &Container{
		NoteController:   controller.NewNoteController(noteService),
		RagController:    controller.NewRagController(orchestrator, indexerService, settingsService, analyticsService),
		IndexerService:   indexerService,
		AnalyticsService: analyticsService,
		MetricsRegistry:  metricsRegistry,
	}
}

func llmBaseURL(cfg *config.Config) string {
	if cfg.Ai.LLMBaseURL != "" {
		return cfg.Ai.LLMBaseURL
	}
	if cfg.Ai.LLMProvider == "ollama" {
		return cfg.Ai.OllamaBaseURL
	}
	return ""
}

func llmAPIKey(cfg *config.Config) string {
	switch cfg.Ai.LLMProvider {
	case "openai":
		return cfg.Keys.OpenAI
	case "huggingface":
		return cfg.Keys.HuggingFace
	default:
		return ""
	}
}

package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Qdrant    QdrantConfig
	Redis     RedisConfig
	Keys      APIKeys
	Ai        AIConfig
	Retrieval RetrievalConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	JWTSecret          string
}

type DatabaseConfig struct {
	Connection string
}

type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Enabled gates the distributed embedding cache tier.
	Enabled bool
}

type APIKeys struct {
	GoogleGemini string
	OpenAI       string
	HuggingFace  string
	IndexTopic   string // embedding queue topic
}

type AIConfig struct {
	EmbeddingProvider   string // "gemini", "ollama" or "openai"
	EmbeddingModel      string
	EmbeddingDimensions int
	OllamaBaseURL       string
	OllamaModel         string
	LLMProvider         string // "ollama", "openai", "huggingface"
	LLMModel            string // e.g. "llama3", "gpt-4o-mini"
	LLMBaseURL          string
}

type RetrievalConfig struct {
	// VectorStore selects the backend routing: "pgvector", "qdrant" or "both".
	VectorStore string

	TopK                  int
	SimilarityThreshold   float64
	VectorWeight          float64
	KeywordWeight         float64
	InitialRetrievalCount int
	MaxContextChars       int
	EnableHybrid          bool
	EnableRerank          bool
	EnableHyDE            bool
	EnableQueryExpansion  bool
	EnableAnalytics       bool

	BreakerFailureThreshold int
	BreakerOpenTimeoutSec   int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log.csv"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			JWTSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Qdrant: QdrantConfig{
			Host:       getEnv("QDRANT_HOST", "localhost"),
			Port:       getEnvAsInt("QDRANT_PORT", 6334),
			APIKey:     getEnv("QDRANT_API_KEY", ""),
			UseTLS:     getEnvAsBool("QDRANT_USE_TLS", false),
			Collection: getEnv("QDRANT_COLLECTION", "note_embeddings"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_CACHE_ENABLED", true),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			OpenAI:       getEnv("OPENAI_API_KEY", ""),
			HuggingFace:  getEnv("HUGGINGFACE_API_KEY", ""),
			IndexTopic:   getEnv("INDEX_NOTE_CONTENT_TOPIC_NAME", "INDEX_NOTE_CONTENT"),
		},
		Ai: AIConfig{
			EmbeddingProvider:   getEnv("EMBEDDING_PROVIDER", "gemini"),
			EmbeddingModel:      getEnv("EMBEDDING_MODEL", ""),
			EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 768),
			OllamaBaseURL:       getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:         getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			LLMProvider:         getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:            getEnv("LLM_MODEL", "llama3"),
			LLMBaseURL:          getEnv("LLM_BASE_URL", ""),
		},
		Retrieval: RetrievalConfig{
			VectorStore:             getEnv("VECTOR_STORE", "pgvector"),
			TopK:                    getEnvAsInt("RAG_TOP_K", 10),
			SimilarityThreshold:     getEnvAsFloat("RAG_SIMILARITY_THRESHOLD", 0.35),
			VectorWeight:            getEnvAsFloat("RAG_VECTOR_WEIGHT", 0.7),
			KeywordWeight:           getEnvAsFloat("RAG_KEYWORD_WEIGHT", 0.3),
			InitialRetrievalCount:   getEnvAsInt("RAG_INITIAL_RETRIEVAL_COUNT", 30),
			MaxContextChars:         getEnvAsInt("RAG_MAX_CONTEXT_CHARS", 12000),
			EnableHybrid:            getEnvAsBool("RAG_ENABLE_HYBRID", true),
			EnableRerank:            getEnvAsBool("RAG_ENABLE_RERANK", false),
			EnableHyDE:              getEnvAsBool("RAG_ENABLE_HYDE", false),
			EnableQueryExpansion:    getEnvAsBool("RAG_ENABLE_QUERY_EXPANSION", false),
			EnableAnalytics:         getEnvAsBool("RAG_ENABLE_ANALYTICS", true),
			BreakerFailureThreshold: getEnvAsInt("EMBEDDING_BREAKER_FAILURES", 5),
			BreakerOpenTimeoutSec:   getEnvAsInt("EMBEDDING_BREAKER_OPEN_TIMEOUT_SEC", 30),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL      string
	DatabaseMaxConns int

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// LLM backend
	LLMProvider           string // "gemini" | "openai"
	GeminiAPIKey          string
	GeminiModel           string
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIModel           string
	LLMConcurrentRequests int

	// Pipeline
	QuizStrictAnswers bool
	ChatChunkSelector string // "sequential" | "lexical"
	ChunkSizeWords    int
	ChunkOverlapWords int

	// Storage
	StoragePath    string
	MaxUploadBytes int64

	// Workers
	WorkerCount int

	// Rate limits, requests per minute
	AuthRateLimit       int
	GenerationRateLimit int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                  getEnvOrDefault("PORT", "8080"),
		Env:                   getEnvOrDefault("ENV", "development"),
		LogLevel:              getEnvOrDefault("LOG_LEVEL", "info"),
		DatabaseURL:           mustGetEnv("DATABASE_URL"),
		DatabaseMaxConns:      getEnvAsIntOrDefault("DATABASE_MAX_CONNS", 25),
		RedisURL:              mustGetEnv("REDIS_URL"),
		JWTSecret:             mustGetEnv("JWT_SECRET"),
		LLMProvider:           strings.ToLower(getEnvOrDefault("LLM_PROVIDER", "gemini")),
		GeminiAPIKey:          getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:           getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash-lite"),
		OpenAIAPIKey:          getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnvOrDefault("OPENAI_BASE_URL", ""),
		OpenAIModel:           getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		LLMConcurrentRequests: getEnvAsIntOrDefault("LLM_CONCURRENT_REQUESTS", 5),
		QuizStrictAnswers:     getEnvAsBoolOrDefault("QUIZ_STRICT_ANSWERS", true),
		ChatChunkSelector:     strings.ToLower(getEnvOrDefault("CHAT_CHUNK_SELECTOR", "sequential")),
		ChunkSizeWords:        getEnvAsIntOrDefault("CHUNK_SIZE_WORDS", 500),
		ChunkOverlapWords:     getEnvAsIntOrDefault("CHUNK_OVERLAP_WORDS", 50),
		StoragePath:           getEnvOrDefault("STORAGE_PATH", "./uploads"),
		MaxUploadBytes:        int64(getEnvAsIntOrDefault("MAX_UPLOAD_BYTES", 10*1024*1024)),
		WorkerCount:           getEnvAsIntOrDefault("WORKER_COUNT", 5),
		AuthRateLimit:         getEnvAsIntOrDefault("AUTH_RATE_LIMIT", 10),
		GenerationRateLimit:   getEnvAsIntOrDefault("GENERATION_RATE_LIMIT", 30),
		FrontendURL:           getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	if err := cfg.validateProvider(); err != nil {
		panic(err.Error())
	}

	return cfg
}

// validateProvider checks that the selected LLM backend has credentials.
func (c *Config) validateProvider() error {
	switch c.LLMProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("required environment variable GEMINI_API_KEY is not set")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("required environment variable OPENAI_API_KEY is not set")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}
	return nil
}

// ModelID returns the default model for the configured provider.
func (c *Config) ModelID() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIModel
	}
	return c.GeminiModel
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

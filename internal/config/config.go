package config

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port    string
	AppName string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// RAG server
	RAGServerURL string
	RAGAPIKey    string

	// PublicBaseURL is the externally reachable URL of this backend,
	// used when asking the RAG server to emit document reference links.
	PublicBaseURL string

	// File storage
	UploadDir    string
	DocumentsDir string
	MaxFileSize  int64

	// Chat
	HistoryWindow int

	// Fixed generation parameters forwarded with every RAG query
	QueryMode             string
	QueryResponseType     string
	QueryTopK             int
	QueryMaxTokenTextUnit int
	QueryMaxTokenGlobal   int
	QueryMaxTokenLocal    int

	// Optional caller identity (bearer token subject becomes user_id)
	JWTSecret string

	CORSOrigins string
}

func Load() *Config {
	// .env is optional; real deployments set env vars directly
	_ = godotenv.Load()

	maxFileSize, _ := strconv.ParseInt(getEnv("MAX_FILE_SIZE", "52428800"), 10, 64) // 50MB
	historyWindow, _ := strconv.Atoi(getEnv("CHAT_HISTORY_WINDOW", "10"))
	topK, _ := strconv.Atoi(getEnv("RAG_QUERY_TOP_K", "20"))
	maxTextUnit, _ := strconv.Atoi(getEnv("RAG_MAX_TOKEN_TEXT_UNIT", "4000"))
	maxGlobal, _ := strconv.Atoi(getEnv("RAG_MAX_TOKEN_GLOBAL_CONTEXT", "4000"))
	maxLocal, _ := strconv.Atoi(getEnv("RAG_MAX_TOKEN_LOCAL_CONTEXT", "4000"))

	cfg := &Config{
		Port:                  getEnv("PORT", "8000"),
		AppName:               getEnv("APP_NAME", "RAG System Backend"),
		DBHost:                getEnv("DB_HOST", "localhost"),
		DBPort:                getEnv("DB_PORT", "5432"),
		DBUser:                getEnv("DB_USER", "postgres"),
		DBPassword:            getEnv("DB_PASSWORD", ""),
		DBName:                getEnv("DB_NAME", "backend_db"),
		DBSSLMode:             getEnv("DB_SSLMODE", "disable"),
		RAGServerURL:          getEnv("RAG_SERVER_URL", "http://localhost:8020"),
		RAGAPIKey:             getEnv("RAG_API_KEY", ""),
		PublicBaseURL:         getEnv("PUBLIC_BASE_URL", "http://localhost:8000"),
		UploadDir:             getEnv("UPLOAD_DIR", "./uploads"),
		DocumentsDir:          getEnv("DOCUMENTS_DIR", "./static/documents"),
		MaxFileSize:           maxFileSize,
		HistoryWindow:         historyWindow,
		QueryMode:             getEnv("RAG_QUERY_MODE", "hybrid"),
		QueryResponseType:     getEnv("RAG_QUERY_RESPONSE_TYPE", "Multiple Paragraphs"),
		QueryTopK:             topK,
		QueryMaxTokenTextUnit: maxTextUnit,
		QueryMaxTokenGlobal:   maxGlobal,
		QueryMaxTokenLocal:    maxLocal,
		JWTSecret:             getEnv("JWT_SECRET", ""),
		CORSOrigins:           getEnv("CORS_ORIGINS", "http://localhost:3000"),
	}

	for _, dir := range []string{cfg.UploadDir, cfg.DocumentsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Warn("Failed to create storage directory", "dir", dir, "error", err)
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey string
	DatabaseURL  string
	HTTPPort     string
	LogLevel     string
	UploadDir    string
	ImagesDir    string
	ChunkSize    int
	ChunkOverlap int
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		DatabaseURL:  getEnv("DATABASE_URL", "data/docchat.db"),
		HTTPPort:     getEnv("HTTP_PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "INFO"),
		UploadDir:    getEnv("UPLOAD_DIR", "data/uploads"),
		ImagesDir:    getEnv("IMAGES_DIR", "data/images"),
		ChunkSize:    getEnvAsInt("CHUNK_SIZE", 500),
		ChunkOverlap: getEnvAsInt("CHUNK_OVERLAP", 50),
	}

	if AppConfig.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	if AppConfig.ChunkOverlap >= AppConfig.ChunkSize {
		log.Fatalf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", AppConfig.ChunkOverlap, AppConfig.ChunkSize)
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/docchat/docchat/internal/api"
	"github.com/docchat/docchat/internal/config"
	"github.com/docchat/docchat/internal/core"
	"github.com/docchat/docchat/internal/extract"
	"github.com/docchat/docchat/internal/store"
	"github.com/docchat/docchat/internal/utils"
	"github.com/docchat/docchat/internal/vectorstore"
)

func main() {
	// Load configuration
	config.LoadConfig()

	logger, err := utils.NewLogger(config.AppConfig.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Data directories for uploads and extracted images
	for _, dir := range []string{
		filepath.Dir(config.AppConfig.DatabaseURL),
		config.AppConfig.UploadDir,
		config.AppConfig.ImagesDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal("failed to create data directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer dbStore.Close()

	// Initialize vector record store on the same database handle
	vecStore, err := vectorstore.NewSQLiteStore(dbStore.DB())
	if err != nil {
		logger.Fatal("failed to initialize vector store", zap.Error(err))
	}

	// Initialize LLM service (embeddings + completions)
	llmService, err := core.NewLLMService(logger)
	if err != nil {
		logger.Fatal("failed to initialize LLM service", zap.Error(err))
	}
	defer llmService.Close()

	// Initialize RAG service
	ragService := core.NewRAGService(dbStore, vecStore, llmService, extract.NewPDFExtractor(logger), core.RAGOptions{
		UploadDir:    config.AppConfig.UploadDir,
		ImagesDir:    config.AppConfig.ImagesDir,
		ChunkSize:    config.AppConfig.ChunkSize,
		ChunkOverlap: config.AppConfig.ChunkOverlap,
	}, logger)

	// Initialize Chat service
	chatService := core.NewChatService(dbStore, ragService, llmService, logger)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(chatService, ragService, config.AppConfig.ImagesDir, logger)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second, // Uploads can be large
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("starting server", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not listen", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting gracefully")
}

package main

import (
	"context"
	"flag"
	"os"

	"embedknn/internal/config"
	"embedknn/internal/embedder"
	"embedknn/internal/knn"
	"embedknn/internal/log"
	"embedknn/internal/service"
)

// main loads configuration from -config (or CONFIG_PATH) plus the
// environment, then serves the search API.
func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.ErrorLogger.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	if err := log.SetLevel(cfg.Logging.Level); err != nil {
		log.ErrorLogger.Fatalf("FATAL: %v", err)
	}

	ctx := context.Background()

	// Create embedder factory and provider
	factory := embedder.NewEmbedderFactory(cfg)
	provider, err := factory.CreateProvider(ctx)
	if err != nil {
		log.ErrorLogger.Fatalf("FATAL: Failed to create embedder: %v", err)
	}
	if err := embedder.ValidateEmbedderConnection(ctx, provider.Embedder()); err != nil {
		log.ErrorLogger.Fatalf("FATAL: Failed to validate embedder connection: %v", err)
	}
	log.InfoLogger.Printf("📏 Using embedding dimensions: %d", provider.GetDimensions())

	engine, err := knn.New(cfg.KNN, cfg.Corpus.Path)
	if err != nil {
		log.ErrorLogger.Fatalf("FATAL: Failed to create KNN engine: %v", err)
	}
	defer engine.Close()

	svc := service.NewSearchService(provider, engine, cfg)
	router := newRouter(svc)

	log.InfoLogger.Printf("🚀 Starting server on %s (corpus %s)", cfg.Server.Addr, cfg.Corpus.Path)
	if err := router.Run(cfg.Server.Addr); err != nil {
		log.ErrorLogger.Fatalf("🔥 Could not start server: %s\n", err)
	}
}

// Command ragmemory is the retrieval engine's HTTP entrypoint: it wires
// config, logging, the extractor/embedder pair, whichever persistence
// backend is selected by DATABASE_URL, and the HTTP surface, then serves
// until signaled to stop. Startup sequencing is load config, construct
// collaborators, register routes, serve, wait for signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ragmemory/internal/config"
	"ragmemory/internal/container"
	"ragmemory/internal/embedding"
	"ragmemory/internal/extractor"
	"ragmemory/internal/httpapi"
	"ragmemory/internal/ingest"
	"ragmemory/internal/logging"
	"ragmemory/internal/persistence/pg"
	"ragmemory/internal/persistence/snapshot"
	"ragmemory/internal/query"
)

const defaultChatModel = "gpt-4o-mini"

func main() {
	yamlPath := flag.String("config", "", "optional YAML config overlay path")
	flag.Parse()

	cfg, err := config.Load(*yamlPath)
	if err != nil {
		logging.Log.Fatalf("ragmemory: failed to load config: %v", err)
	}
	if cfg.OpenAIAPIKey == "" {
		logging.Log.Fatal("ragmemory: OPENAI_API_KEY is required")
	}

	embedder := embedding.NewOpenAI(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.VectorDim)
	ex, err := extractor.New(cfg.OpenAIAPIKey, defaultChatModel, 1024, cfg.ExtractorConcurrency, cfg.RedisURL)
	if err != nil {
		logging.Log.Fatalf("ragmemory: failed to construct extractor: %v", err)
	}
	llm := query.NewOpenAILLM(cfg.OpenAIAPIKey, defaultChatModel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var server *httpapi.Server
	var pgBackend *pg.Backend

	if cfg.DatabaseURL != "" {
		pgBackend, err = pg.New(ctx, cfg.DatabaseURL, cfg.VectorDim)
		if err != nil {
			logging.Log.Fatalf("ragmemory: failed to connect to relational backend: %v", err)
		}
		defer pgBackend.Close()

		orchestrator := ingest.NewRelational(ex, embedder, pgBackend, cfg.ChunkSize, cfg.ChunkOverlap, cfg.ExtractionBatchSize, cfg.ExtractorConcurrency)
		pipeline := query.NewRelationalPipeline(pgBackend, embedder, llm, cfg)
		server = httpapi.NewServer(pipeline, orchestrator, nil, nil, pgBackend)
		logging.Log.Info("ragmemory: using relational (Postgres) backend")
	} else {
		registry := container.NewRegistry(cfg.VectorDim)
		snap := snapshot.New(cfg.CacheDir, cfg.LockDir)

		orchestrator := ingest.New(ex, embedder, registry, snap, cfg.ChunkSize, cfg.ChunkOverlap, cfg.ExtractionBatchSize, cfg.ExtractorConcurrency)
		pipeline := query.NewMemoryPipeline(registry, snap, embedder, llm, cfg)
		server = httpapi.NewServer(pipeline, orchestrator, registry, snap, nil)
		logging.Log.Infof("ragmemory: using in-memory backend, snapshots under %s", cfg.CacheDir)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.Handler(),
	}

	go func() {
		logging.Log.Infof("ragmemory: listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Log.Fatalf("ragmemory: server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logging.Log.Info("ragmemory: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Log.Warnf("ragmemory: graceful shutdown failed: %v", err)
	}
}

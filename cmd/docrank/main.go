package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/finhive/docrank/internal/config"
	"github.com/finhive/docrank/internal/db"
	dbRedis "github.com/finhive/docrank/internal/db/redis"
	"github.com/finhive/docrank/internal/domain"
	logpkg "github.com/finhive/docrank/internal/logger"
	"github.com/finhive/docrank/internal/metrics"
	documentrepo "github.com/finhive/docrank/internal/repository/document"
	searchrepo "github.com/finhive/docrank/internal/repository/search"
	chiTransport "github.com/finhive/docrank/internal/transport/chi"
	openaiTransport "github.com/finhive/docrank/internal/transport/openai"
	documentuc "github.com/finhive/docrank/internal/usecase/document"
	embeddinguc "github.com/finhive/docrank/internal/usecase/embedding"
	expanduc "github.com/finhive/docrank/internal/usecase/expand"
	healthuc "github.com/finhive/docrank/internal/usecase/health"
	rerankuc "github.com/finhive/docrank/internal/usecase/rerank"
	retrievaluc "github.com/finhive/docrank/internal/usecase/retrieval"
	"github.com/finhive/docrank/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting docrank API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	if err := ensureIndex(ctx, store, &cfg); err != nil {
		logger.Fatal("Failed to ensure search index", zap.Error(err))
	}

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	// Embedding provider — optional; without it documents ingest without
	// vectors and retrieval fails with a classified error.
	var embProvider domain.Embedder
	if cfg.Embedding.APIKey != "" {
		embProvider = openaiTransport.NewEmbedder(&openaiTransport.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Provider:   "openai",
			Logger:     logger,
		})
		logger.Info("Embedding provider created",
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", cfg.Embedding.Dimensions),
		)
	} else {
		logger.Warn("No embedding provider configured, semantic retrieval disabled")
	}

	// LLM provider — optional; without it expansion falls back to textual
	// concatenation and re-ranking is skipped.
	var llm domain.TextGenerator
	if cfg.LLM.APIKey != "" {
		llm = openaiTransport.NewLLM(&openaiTransport.LLMConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Logger:  logger,
		})
		logger.Info("LLM provider created", zap.String("model", cfg.LLM.Model))
	}

	// Repositories
	docRepo := documentrepo.New(store)
	searchRepo := searchrepo.New(store)

	// Embedding pipeline
	generator := embeddinguc.New(embProvider, docRepo, embeddinguc.Config{
		ChunkTokens:  cfg.Embedding.ChunkTokens,
		OverlapChars: cfg.Embedding.OverlapChars,
		MaxRetries:   cfg.Embedding.MaxRetries,
		BaseDelay:    time.Duration(cfg.Embedding.BaseDelayMs) * time.Millisecond,
	}, logger)
	queryCache := embeddinguc.NewCache(
		generator,
		time.Duration(cfg.Embedding.CacheTTLSec)*time.Second,
		cfg.Embedding.CacheEntries,
		logger,
	)

	// Use case services
	docSvc := documentuc.New(docRepo, generator, logger)
	expandSvc := expanduc.New(llm, logger)
	rerankSvc := rerankuc.New(llm, logger)
	retrievalSvc := retrievaluc.New(
		queryCache, searchRepo, docRepo, expandSvc, rerankSvc,
		retrievaluc.Config{
			SearchTimeout: time.Duration(cfg.Retrieval.SearchTimeoutSec) * time.Second,
			ExpandTimeout: time.Duration(cfg.Retrieval.ExpandTimeoutSec) * time.Second,
			RerankTimeout: time.Duration(cfg.Retrieval.RerankTimeoutSec) * time.Second,
			SnippetChars:  cfg.Retrieval.SnippetChars,
		},
		logger,
	)
	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(embProvider))

	// HTTP server
	server := chiTransport.NewServer(docSvc, retrievalSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// ensureIndex creates the document FT index if it does not exist yet.
func ensureIndex(ctx context.Context, store db.Store, cfg *config.Config) error {
	exists, err := store.IndexExists(ctx, documentrepo.IndexName)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	builder := db.NewIndex(documentrepo.IndexName).
		Prefix(documentrepo.KeyPrefix).
		Tag("tenant_id").
		Tag("company_id").
		Tag("doc_type").
		Tag("deleted").
		Numeric("created_at").
		Text("content")
	if store.SupportsVectorSearch(ctx) {
		builder = builder.VectorHNSW(
			"embedding", cfg.Embedding.Dimensions, db.DistanceCosine,
			cfg.Index.HNSWM, cfg.Index.HNSWEFConstruct,
		)
	}

	def, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build index definition: %w", err)
	}
	if err := store.CreateIndex(ctx, def); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) healthuc.EmbeddingChecker {
	if embedder == nil {
		return nil
	}
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}

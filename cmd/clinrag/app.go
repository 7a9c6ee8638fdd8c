package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/xxxsen/clinrag/internal/ai"
	"github.com/xxxsen/clinrag/internal/config"
	"github.com/xxxsen/clinrag/internal/db"
	"github.com/xxxsen/clinrag/internal/embedcache"
	"github.com/xxxsen/clinrag/internal/filestore"
	"github.com/xxxsen/clinrag/internal/handler"
	"github.com/xxxsen/clinrag/internal/job"
	"github.com/xxxsen/clinrag/internal/middleware"
	"github.com/xxxsen/clinrag/internal/model"
	"github.com/xxxsen/clinrag/internal/mongostore"
	"github.com/xxxsen/clinrag/internal/ner"
	"github.com/xxxsen/clinrag/internal/repo"
	"github.com/xxxsen/clinrag/internal/schedule"
	"github.com/xxxsen/clinrag/internal/service"
	"github.com/xxxsen/clinrag/internal/vectorindex"
)

const streamPath = "/api/v1/answer/stream"

type patientStore interface {
	service.PatientStore
	Save(ctx context.Context, patient *model.Patient) error
}

// stores holds the backends picked by config. Postgres and Mongo may both
// be open when documents live in Mongo and vectors in pgvector.
type stores struct {
	sqlDB    *sql.DB
	mongo    *mongo.Client
	patients patientStore
	pages    service.PageStore
	states   service.IndexStateStore
	index    vectorindex.Index
	cache    *repo.EmbeddingCacheRepo
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{}
	if cfg.NeedPostgres() {
		sqlDB, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		s.sqlDB = sqlDB
		if cfg.AI.EmbedDBCache {
			s.cache = repo.NewEmbeddingCacheRepo(sqlDB)
		}
	}

	switch cfg.DocumentStore.Type {
	case "mongo":
		client, database, err := mongostore.Open(ctx, cfg.DocumentStore.Mongo)
		if err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		s.mongo = client
		s.patients = mongostore.NewPatientStore(database)
		s.pages = mongostore.NewPageStore(database)
	default:
		s.patients = repo.NewPatientRepo(s.sqlDB)
		s.pages = repo.NewPageRepo(s.sqlDB)
	}

	switch cfg.VectorIndex.Type {
	case "memory":
		s.index = vectorindex.NewMemoryIndex()
		s.states = vectorindex.NewMemoryState()
	default:
		s.index = vectorindex.NewPGVectorIndex(s.sqlDB)
		s.states = repo.NewNoteIndexRepo(s.sqlDB)
	}
	return s, nil
}

func (s *stores) Close(ctx context.Context) {
	if s.sqlDB != nil {
		_ = s.sqlDB.Close()
	}
	if s.mongo != nil {
		_ = s.mongo.Disconnect(ctx)
	}
}

func buildEmbedder(cfg *config.Config, s *stores) (ai.IEmbedder, error) {
	provider, err := ai.NewEmbedProvider(cfg.AI.EmbedProvider, cfg.AI.EmbedData)
	if err != nil {
		return nil, fmt.Errorf("init embed provider: %w", err)
	}
	embedder := ai.NewEmbedder(provider, cfg.AI.EmbedModel, cfg.AI.EmbedDim)
	if s.cache != nil {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, s.cache)
	}
	return embedcache.WrapLruCacheToEmbedder(embedder, cfg.AI.EmbedCacheSize, time.Duration(cfg.AI.EmbedCacheTTLSeconds)*time.Second), nil
}

func buildIndexService(cfg *config.Config, s *stores, embedder ai.IEmbedder) *service.IndexService {
	return service.NewIndexService(s.patients, s.states, s.index, embedder, cfg.Indexing.BatchSize, cfg.Indexing.Parallelism)
}

func runMigrate(ctx context.Context, cfg *config.Config) error {
	s, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close(ctx)
	if s.sqlDB == nil {
		logutil.GetLogger(ctx).Info("no postgres backend configured, nothing to migrate")
		return nil
	}
	if err := db.ApplyMigrations(ctx, s.sqlDB); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

func runLoad(ctx context.Context, cfg *config.Config, key string) error {
	datasets, err := filestore.New(cfg.DatasetStore)
	if err != nil {
		return fmt.Errorf("init dataset store: %w", err)
	}
	var patients []model.Patient
	if err := filestore.ReadJSON(ctx, datasets, key, &patients); err != nil {
		return err
	}
	s, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	logger := logutil.GetLogger(ctx)
	for i := range patients {
		if err := s.patients.Save(ctx, &patients[i]); err != nil {
			return fmt.Errorf("save patient %d: %w", patients[i].PatientID, err)
		}
	}
	logger.Info("patients loaded", zap.Int("count", len(patients)), zap.String("data", key))
	return nil
}

func runIndex(ctx context.Context, cfg *config.Config) error {
	if cfg.VectorIndex.Type == "memory" {
		return fmt.Errorf("index command needs a persistent vector index, memory index is rebuilt by the server")
	}
	s, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close(ctx)
	embedder, err := buildEmbedder(cfg, s)
	if err != nil {
		return err
	}
	stats, err := buildIndexService(cfg, s, embedder).SyncNotes(ctx)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("index sync finished",
		zap.Int64("scanned", stats.Scanned),
		zap.Int64("embedded", stats.Embedded),
		zap.Int64("skipped", stats.Skipped),
	)
	return nil
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger := logutil.GetLogger(ctx)
	logger.Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("document_store", cfg.DocumentStore.Type),
		zap.String("vector_index", cfg.VectorIndex.Type),
	)

	s, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close(context.Background())
	if s.sqlDB != nil {
		if err := db.ApplyMigrations(ctx, s.sqlDB); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}

	provider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	embedder, err := buildEmbedder(cfg, s)
	if err != nil {
		return err
	}
	manager := ai.NewManager(ai.NewGenerator(provider, cfg.AI.Model), ai.ManagerConfig{
		StepsTimeout:  time.Duration(cfg.Reasoning.StepsTimeoutSeconds) * time.Second,
		AnswerTimeout: time.Duration(cfg.Reasoning.AnswerTimeoutSeconds) * time.Second,
	})

	var extractor service.EntityExtractor
	if cfg.NER.URL != "" {
		extractor = ner.NewClient(cfg.NER.URL, time.Duration(cfg.NER.TimeoutSeconds)*time.Second)
	}

	retrievalService := service.NewRetrievalService(embedder, s.index, s.patients, service.RetrievalConfig{
		TopK:                cfg.Retrieval.TopK,
		CohortTopK:          cfg.Retrieval.CohortTopK,
		CohortOverfetch:     cfg.Retrieval.CohortOverfetch,
		PostFilterOverfetch: cfg.Retrieval.PostFilterOverfetch,
		SearchTimeout:       time.Duration(cfg.Retrieval.SearchTimeoutMs) * time.Millisecond,
		RetryBackoff:        time.Duration(cfg.Retrieval.RetryBackoffMs) * time.Millisecond,
		ContextTokenLimit:   cfg.Retrieval.ContextTokenLimit,
	})
	pageService := service.NewPageService(s.pages)
	askService := service.NewAskService(retrievalService, manager, pageService, cfg.Reasoning.MaxInputChars)
	patientService := service.NewPatientService(s.patients, extractor, cfg.Indexing.Parallelism)
	indexService := buildIndexService(cfg, s, embedder)

	deps := handler.RouterDeps{
		Pages:     handler.NewPageHandler(pageService),
		Answers:   handler.NewAnswerHandler(askService),
		Search:    handler.NewSearchHandler(retrievalService),
		Patients:  handler.NewPatientHandler(patientService),
		JWTSecret: []byte(cfg.JWTSecret),
		RateLimit: time.Duration(cfg.RateLimitSeconds) * time.Second,
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{streamPath})),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	embeddingJob := job.NewNoteEmbeddingJob(indexService)
	if cfg.Indexing.Cron != "" {
		if err := scheduler.AddJob(embeddingJob, cfg.Indexing.Cron); err != nil {
			return fmt.Errorf("schedule %s: %w", embeddingJob.Name(), err)
		}
	}
	if s.cache != nil {
		cleanupJob := job.NewEmbeddingCacheCleanupJob(s.cache, cfg.AI.EmbedCacheMaxAgeDays)
		if err := scheduler.AddJob(cleanupJob, cfg.Indexing.CacheCleanupCron); err != nil {
			return fmt.Errorf("schedule %s: %w", cleanupJob.Name(), err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()
	// the memory index starts empty on every boot
	if cfg.VectorIndex.Type == "memory" {
		go func() {
			if err := embeddingJob.Run(ctx); err != nil {
				logger.Error("initial index fill failed", zap.Error(err))
			}
		}()
	}

	go func() {
		if err := engine.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}()
	logger.Info("http server listening", zap.String("addr", addr))

	<-ctx.Done()
	logger.Info("server stopping...")
	return nil
}

package main

import (
	"Jarvis_RAG/backend/go/internal/config"
	"Jarvis_RAG/backend/go/internal/database/kafka"
	"Jarvis_RAG/backend/go/internal/database/milvus"
	minioconn "Jarvis_RAG/backend/go/internal/database/minio"
	"Jarvis_RAG/backend/go/internal/database/mysql"
	redisconn "Jarvis_RAG/backend/go/internal/database/redis"
	"Jarvis_RAG/backend/go/internal/discovery/etcd"
	"Jarvis_RAG/backend/go/internal/embedding"
	"Jarvis_RAG/backend/go/internal/llm"
	"Jarvis_RAG/backend/go/internal/observability"
	"Jarvis_RAG/backend/go/internal/rag_service/api"
	"Jarvis_RAG/backend/go/internal/rag_service/history"
	"Jarvis_RAG/backend/go/internal/rag_service/links"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/dal"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/permissions"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/pipeline"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/search"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/splitters"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/storages"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/storages/docstore"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/storages/lexical"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/storages/vectorstore"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/stream"
	"Jarvis_RAG/backend/go/internal/rag_service/service"
	"Jarvis_RAG/backend/go/pkg/circuitbreaker"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// indexTarget is what the indexer writes to and the searcher reads from.
type indexTarget interface {
	interfaces.SearchBackend
	interfaces.DocumentIndexer
}

// app holds everything built from one config.
type app struct {
	cfg      *config.AppConfig
	log      *logger.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics

	embedder interfaces.EmbeddingModel // used for indexing, uncached
	query    interfaces.EmbeddingModel // used for queries, cached and guarded
	index    indexTarget
	backend  interfaces.SearchBackend
	chunkers *splitters.Factory

	checks  map[string]api.HealthCheck
	closers []func()
}

// loadConfig reads path; offline runs fall back to defaults when the file is missing.
func loadConfig(path string, offline bool) (*config.AppConfig, error) {
	cfg, err := config.LoadConfig(path)
	if err == nil {
		return cfg, nil
	}
	if offline && errors.Is(err, fs.ErrNotExist) {
		cfg = &config.AppConfig{}
		cfg.Search.Backend = "memory"
		cfg.ApplyDefaults()
		return cfg, nil
	}
	return nil, err
}

func newApp(cfg *config.AppConfig, log *logger.Logger) *app {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &app{
		cfg:      cfg,
		log:      log,
		registry: reg,
		metrics:  observability.NewMetrics(reg),
		checks:   make(map[string]api.HealthCheck),
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// closeLater releases model clients that hold connections, such as gemini.
func (a *app) closeLater(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, func() { _ = c.Close() })
	}
}

// breaker guards one dependency; caller cancellation never trips it.
func (a *app) breaker(name string) circuitbreaker.CircuitBreaker {
	cb := a.cfg.Middleware.CircuitBreaker
	return circuitbreaker.NewWithSettings(circuitbreaker.Settings{
		Name:             name,
		FailureThreshold: cb.FailureThreshold,
		SuccessThreshold: cb.SuccessThreshold,
		Timeout:          config.Duration(cb.Timeout, 30*time.Second),
		OnStateChange:    a.metrics.BreakerStateChanged,
		IsSuccessful:     storages.IgnoreCancellation,
	})
}

// buildIndex sets up embedding, chunking and the search backend.
func (a *app) buildIndex(ctx context.Context) error {
	base, err := embedding.NewEmdModel(ctx, a.cfg.Embedding)
	if err != nil {
		return fmt.Errorf("create embedding model: %w", err)
	}
	a.closeLater(base)
	a.embedder = base
	a.query = embedding.NewBreakerModel(
		embedding.NewCachedModel(base, a.cfg.Embedding.CacheCapacity, config.Duration(a.cfg.Embedding.CacheTTL, 0)),
		a.breaker("embedding"),
	)

	a.chunkers, err = splitters.NewFactory(a.cfg.Chunking, base)
	if err != nil {
		return fmt.Errorf("create chunkers: %w", err)
	}

	if a.cfg.Search.Backend == "memory" {
		a.log.Warn("using the in-memory search backend; indexed chunks are lost on exit")
		a.index = docstore.NewInMemoryDocStore()
		a.backend = a.index
		return nil
	}

	meili := lexical.NewMeiliIndex(a.cfg.Databases.Meilisearch, a.log.WithField("component", "meilisearch"))
	if err := meili.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("prepare meilisearch index: %w", err)
	}
	a.checks["meilisearch"] = meili.HealthCheck

	mc, err := milvus.GetClient(ctx, &a.cfg.Databases.Milvus, a.log.WithField("component", "milvus"))
	if err != nil {
		return err
	}
	a.closers = append(a.closers, mc.Close)
	a.checks["milvus"] = mc.HealthCheck
	if err := mc.EnsureCollections(ctx, config.SearchFields); err != nil {
		return fmt.Errorf("prepare milvus collections: %w", err)
	}
	vectors, err := vectorstore.NewMilvusStore(mc, a.log.WithField("component", "milvus"))
	if err != nil {
		return err
	}

	hybrid := storages.NewHybrid(meili, vectors)
	a.index = hybrid
	a.backend = storages.NewBreakerBackend(hybrid, a.breaker("search"))
	return nil
}

// buildService wires the chat pipeline and its optional collaborators.
func (a *app) buildService(ctx context.Context, offline bool) (*service.Service, error) {
	if err := a.buildIndex(ctx); err != nil {
		return nil, err
	}

	model, err := llm.NewClient(ctx, a.cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	a.closeLater(model)

	policy, err := stream.ParsePolicy(a.cfg.Stream.Backpressure)
	if err != nil {
		return nil, err
	}
	opts := service.Options{
		BufferSize:   a.cfg.Stream.BufferSize,
		Policy:       policy,
		HistoryTurns: a.cfg.Pipeline.HistoryTurns,
	}
	extra := []service.Option{service.WithMetrics(a.metrics)}

	var (
		grants   permissions.GrantSource
		resolver interfaces.LinkResolver = links.None{}
	)
	if offline {
		a.log.Warn("offline mode: every user may read every knowledge base")
		grants = permissions.StaticSource{"*": {{KnowledgeBaseID: "*"}}}
	} else {
		grants, err = a.buildGrants(ctx, &extra)
		if err != nil {
			return nil, err
		}
		if resolver, err = a.buildLinks(ctx); err != nil {
			return nil, err
		}
		if err := a.buildAudit(ctx, &extra); err != nil {
			return nil, err
		}
	}

	filter := permissions.NewFilter(grants, a.log.WithField("component", "permissions"))
	p, err := service.BuildPipeline(a.log, a.cfg, a.query, a.backend, filter, resolver, a.metrics)
	if err != nil {
		return nil, err
	}
	paths := search.NewPathEnumerator(a.backend, a.log.WithField("component", "paths"), a.cfg.Search.PageSize)
	indexer := pipeline.NewIndexingPipeline(a.chunkers, a.embedder, a.index, a.log.WithField("component", "indexer"))
	return service.NewService(a.log, p, model, filter, paths, indexer, opts, extra...), nil
}

// buildGrants reads grants from MySQL behind a Redis cache; Redis also keeps session history.
func (a *app) buildGrants(ctx context.Context, extra *[]service.Option) (permissions.GrantSource, error) {
	db, err := mysql.GetDB(ctx, &a.cfg.Databases.MySQL, a.log.WithField("component", "mysql"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = mysql.Close() })
	a.checks["mysql"] = mysql.HealthCheck
	grantDAL := dal.NewGrantDAL(db)
	if err := grantDAL.AutoMigrate(ctx); err != nil {
		return nil, err
	}

	rdb, err := redisconn.GetClient(ctx, &a.cfg.Databases.Redis, a.log.WithField("component", "redis"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = redisconn.Close() })
	a.checks["redis"] = redisconn.HealthCheck

	*extra = append(*extra, service.WithHistory(history.NewRedisHistory(rdb,
		a.cfg.Pipeline.HistoryTurns,
		config.Duration(a.cfg.Pipeline.HistoryTTL, 24*time.Hour),
		a.log.WithField("component", "history"),
	)))
	return permissions.NewCachedSource(permissions.NewStoreSource(grantDAL), rdb,
		config.Duration(a.cfg.Pipeline.ScopeCacheTTL, 5*time.Minute),
		a.log.WithField("component", "permissions"),
	), nil
}

// buildLinks presigns download links when object storage is configured.
func (a *app) buildLinks(ctx context.Context) (interfaces.LinkResolver, error) {
	mc := a.cfg.Databases.MinIO
	if mc.Endpoint == "" {
		return links.None{}, nil
	}
	client, err := minioconn.GetClient(ctx, &mc, a.log.WithField("component", "minio"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, minioconn.Close)
	a.checks["minio"] = minioconn.HealthCheck
	return links.NewMinioLinker(client, mc.Bucket, config.Duration(mc.PresignTTL, 15*time.Minute)), nil
}

// buildAudit publishes one event per chat run when Kafka is configured.
func (a *app) buildAudit(ctx context.Context, extra *[]service.Option) error {
	if len(a.cfg.Databases.Kafka.Brokers) == 0 {
		return nil
	}
	kc, err := kafka.GetClient(ctx, &a.cfg.Databases.Kafka, a.log.WithField("component", "kafka"))
	if err != nil {
		return err
	}
	publisher := kafka.NewAuditPublisher(kc)
	a.closers = append(a.closers, func() {
		_ = publisher.Close()
		_ = kc.Close()
	})
	a.checks["kafka"] = kc.HealthCheck
	*extra = append(*extra, service.WithAudit(publisher))
	return nil
}

// register announces this instance in etcd until stop is called.
func (a *app) register(ctx context.Context) (stop func(), err error) {
	sd, err := etcd.NewServiceDiscovery(a.cfg.Databases.Etcd, a.log.WithField("component", "discovery"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = sd.Close() })
	a.checks["etcd"] = sd.HealthCheck

	stop, err = sd.Register(ctx, a.cfg.App.Name, a.cfg.App.AdvertiseAddress, a.cfg.Databases.Etcd.LeaseTTL)
	if err != nil {
		return nil, err
	}
	a.log.Info(fmt.Sprintf("服务 '%s' 已注册到 etcd: %s", a.cfg.App.Name, a.cfg.App.AdvertiseAddress))
	return stop, nil
}

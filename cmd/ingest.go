package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gpubsub "cloud.google.com/go/pubsub/v2"
	gstorage "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jaehyun-p/notion-ingest/internal/api"
	"github.com/jaehyun-p/notion-ingest/internal/assets"
	"github.com/jaehyun-p/notion-ingest/internal/blocks"
	cachemem "github.com/jaehyun-p/notion-ingest/internal/cache/memory"
	cachepg "github.com/jaehyun-p/notion-ingest/internal/cache/postgres"
	"github.com/jaehyun-p/notion-ingest/internal/clock/system"
	"github.com/jaehyun-p/notion-ingest/internal/config"
	graphmem "github.com/jaehyun-p/notion-ingest/internal/graph/memory"
	"github.com/jaehyun-p/notion-ingest/internal/hash/md5"
	"github.com/jaehyun-p/notion-ingest/internal/id/uuid"
	"github.com/jaehyun-p/notion-ingest/internal/ingest"
	"github.com/jaehyun-p/notion-ingest/internal/logging"
	"github.com/jaehyun-p/notion-ingest/internal/notion"
	pubmem "github.com/jaehyun-p/notion-ingest/internal/publisher/memory"
	pubgcp "github.com/jaehyun-p/notion-ingest/internal/publisher/pubsub"
	"github.com/jaehyun-p/notion-ingest/internal/related"
	"github.com/jaehyun-p/notion-ingest/internal/scrape"
	storegcs "github.com/jaehyun-p/notion-ingest/internal/storage/gcs"
	storelocal "github.com/jaehyun-p/notion-ingest/internal/storage/local"
	storemem "github.com/jaehyun-p/notion-ingest/internal/storage/memory"
	"github.com/jaehyun-p/notion-ingest/internal/traverse"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run one full ingestion of the configured content tree.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			return runIngest(cmd.Context(), cfg)
		},
	}
}

func runIngest(parent context.Context, cfg config.Config) error {
	log, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hasher := md5.New()

	transport := notion.NewTransport(notion.Config{
		BaseURL:           cfg.API.BaseURL,
		Token:             cfg.API.Token,
		APIVersion:        cfg.API.Version,
		MaxRetries:        cfg.API.MaxRetries,
		BackoffBase:       cfg.BackoffBase(),
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Timeout:           cfg.APITimeout(),
	}, log)
	paginator := notion.NewPaginator(transport, log)
	svc := notion.NewService(paginator, notion.Options{
		ParallelLimit: cfg.Ingest.Concurrency,
		EnableCaching: cfg.Ingest.EnableCaching,
	}, log)

	cache, closeCache, err := buildCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()

	assetBlobs, staticBlobs, err := buildBlobStores(ctx, cfg)
	if err != nil {
		return err
	}
	assetStore := assets.New(cache, assetBlobs, staticBlobs, hasher, log)

	graph := graphmem.New(hasher, log)
	registry := blocks.NewDefaultRegistry(assetStore, log)

	var enricher traverse.LinkEnricher
	if cfg.Ingest.ScrapeMetadata {
		scraper := scrape.New(scrape.Config{}, log)
		enricher = blocks.NewEnricher(scraper, cache, graph, hasher, log)
	}

	engine := traverse.NewEngine(traverse.Config{
		RootDatabaseID: cfg.Ingest.RootDatabaseID,
		BookDatabaseID: cfg.Ingest.BookDatabaseID,
		PostTimeout:    cfg.PostTimeout(),
	}, traverse.Deps{
		Service:   svc,
		Graph:     graph,
		Processor: registry,
		Enricher:  enricher,
		Related:   related.New(graph, cache, hasher, log),
		Assets:    assetStore,
		Cache:     cache,
		Hasher:    hasher,
		IDs:       uuid.NewUUIDGenerator(),
		Clock:     system.New(),
	}, log)

	publisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}

	shutdownServer := startServer(cfg, engine, log)
	defer shutdownServer()

	summary, err := engine.Run(ctx)
	if err != nil {
		return fmt.Errorf("ingestion run: %w", err)
	}

	if _, err := publisher.Publish(ctx, "run.completed", summary); err != nil {
		log.Warn("failed to publish run event", zap.Error(err))
	}
	return nil
}

func buildCache(ctx context.Context, cfg config.Config, log *zap.Logger) (ingest.DurableCache, func(), error) {
	switch cfg.Cache.Backend {
	case "postgres":
		pg, err := cachepg.New(ctx, cachepg.Config{
			DSN:   cfg.Cache.DSN,
			Table: cfg.Cache.Table,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		log.Info("using postgres durable cache", zap.String("table", cfg.Cache.Table))
		return pg, pg.Close, nil
	default:
		return cachemem.New(), func() {}, nil
	}
}

func buildBlobStores(ctx context.Context, cfg config.Config) (ingest.BlobStore, ingest.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := storegcs.New(client, storegcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case "memory":
		store := storemem.NewBlobStore()
		return store, store, nil
	default:
		assetStore, err := storelocal.New(storelocal.Config{BaseDir: cfg.Storage.AssetDir})
		if err != nil {
			return nil, nil, err
		}
		staticStore, err := storelocal.New(storelocal.Config{BaseDir: cfg.Storage.StaticDir})
		if err != nil {
			return nil, nil, err
		}
		return assetStore, staticStore, nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (ingest.Publisher, error) {
	if !cfg.PubSub.Enabled {
		return pubmem.New(), nil
	}
	client, err := gpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return pubgcp.New(client.Publisher(cfg.PubSub.TopicName)), nil
}

// startServer runs the status server in the background and returns its
// shutdown hook.
func startServer(cfg config.Config, engine *traverse.Engine, log *zap.Logger) func() {
	if !cfg.Server.Enabled {
		return func() {}
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(engine, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("status server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("status server failed", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

package cmd

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pubmed-graph/build"
	"pubmed-graph/compress"
	"pubmed-graph/config"
	"pubmed-graph/filter"
	"pubmed-graph/graph"
	"pubmed-graph/models"
	"pubmed-graph/providers/ftp"
	"pubmed-graph/providers/pubmed"
	"pubmed-graph/services"
	"pubmed-graph/storage"
)

func newLogger(mode string) (*zap.Logger, error) {
	if mode == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// runtime hält die gemeinsam genutzten Verbindungen eines Kommandos.
type runtime struct {
	cfg      *config.Config
	logger   *zap.Logger
	graph    *graph.Client
	metadata services.MetadataStore
	archive  *storage.Archive
	// memory ist nur im Trockenlauf gesetzt.
	memory *build.MemoryStore

	closers []func()
}

// openRuntime lädt Konfiguration und Logger und verbindet Graph, Metadaten-Store
// und Archiv. Im Trockenlauf wird keine Neo4j-Verbindung aufgebaut.
func openRuntime(ctx context.Context, dryRun bool) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	r := &runtime{cfg: cfg, logger: logger}
	r.closers = append(r.closers, func() { _ = logger.Sync() })

	if !dryRun {
		r.graph, err = graph.NewClient(ctx, cfg, logger)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.closers = append(r.closers, func() { _ = r.graph.Close(context.Background()) })
		r.graph.EnsureSchema(ctx)
	}

	if err := r.openMetadata(dryRun); err != nil {
		r.Close()
		return nil, err
	}

	if cfg.ArchiveEnabled() {
		client, err := storage.NewS3Client(ctx, cfg)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("init s3 client: %w", err)
		}
		r.archive = storage.NewArchive(client, cfg, compress.NewGZip(), logger)
	}
	return r, nil
}

// dryRunSQLite ist eine In-Memory-Datenbank, die mit der letzten Verbindung verschwindet.
const dryRunSQLite = "file:pubmed-dry-run?mode=memory&cache=shared"

func (r *runtime) openMetadata(dryRun bool) error {
	backend := r.cfg.MetadataBackend
	sqlCfg := *r.cfg
	if dryRun {
		// Der Speicher-Graph beginnt leer, also auch seine Metadaten.
		backend = "sql"
		sqlCfg.DBDSN, sqlCfg.SQLitePath = "", dryRunSQLite
	}

	switch backend {
	case "graph":
		r.metadata = graph.NewMetadataStore(r.graph)
	case "sql":
		db, err := storage.OpenSQL(&sqlCfg)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			if dryRun {
				sqlDB.SetMaxOpenConns(1)
			}
			r.closers = append(r.closers, func() { _ = sqlDB.Close() })
		}
		r.metadata = storage.NewSQLMetadataStore(db)
	default:
		return fmt.Errorf("unknown metadata backend %q", backend)
	}
	r.logger.Info("Metadaten-Backend gewählt", zap.String("backend", backend), zap.Bool("dry_run", dryRun))
	return nil
}

// Close gibt die Verbindungen in umgekehrter Reihenfolge frei.
func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// manager verdrahtet Quelle, Extractor und Store zu einem Manager.
func (r *runtime) manager(ctx context.Context) (*services.Manager, error) {
	source := ftp.NewClient(r.cfg, r.logger)
	source.OnFile = services.RecordDownload

	m := &services.Manager{
		Config:    r.cfg,
		Source:    source,
		Extractor: pubmed.NewExtractor(r.cfg, r.logger),
		Mesh:      &pubmed.MeshReader{Logger: r.logger, DTD: pubmed.NewDTDResolver(r.cfg.DTDDir(), r.logger)},
		Metadata:  r.metadata,
		Archive:   r.archive,
		Logger:    r.logger,
	}

	if r.graph == nil {
		r.memory = build.NewMemoryStore()
		m.Store, m.Seq = r.memory, build.NewCounter(0)
		m.LoadMesh = func(_ context.Context, headings []models.MeshHeading) error {
			r.memory.SetMesh(headings)
			return nil
		}
		return m, nil
	}

	store := graph.NewBuildStore(r.graph)
	seq, err := graph.NewSequence(ctx, r.graph)
	if err != nil {
		return nil, err
	}
	m.Store, m.Seq = store, seq
	m.LoadMesh = func(ctx context.Context, headings []models.MeshHeading) error {
		return store.UpsertMesh(ctx, headings, r.cfg.BuildBatchSize)
	}
	return m, nil
}

// queries baut den Abfragedienst; Redis ist die optionale zweite Cache-Stufe.
func (r *runtime) queries() (*services.QueryService, error) {
	var remote *filter.RedisCache
	if r.cfg.RedisEnabled() {
		codec, err := compress.ByName(r.cfg.FilterCacheCodec)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(&redis.Options{
			Addr:     r.cfg.RedisAddr,
			Password: r.cfg.RedisPassword,
			DB:       r.cfg.RedisDB,
		})
		r.closers = append(r.closers, func() { _ = client.Close() })
		remote = filter.NewRedisCache(client, codec, r.cfg.RedisTTL)
	}

	runner := graph.NewFilterRunner(r.graph)
	return &services.QueryService{
		Builder: filter.NewBuilder(filter.DefaultTextOptions, r.cfg.FilterDefaultNodeLimit, filter.RunnerResolver{Runner: runner}, r.logger),
		Cache:   filter.NewCache(r.cfg.FilterCacheSize, remote, r.logger),
		Runner:  runner,
		Logger:  r.logger,
	}, nil
}

// Package etl implements app.Runner for the synchronization service.
package etl

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/moviesearch/movies-etl/pkg/app/httpserver"
	"github.com/moviesearch/movies-etl/pkg/config"
	contentpg "github.com/moviesearch/movies-etl/pkg/content/pg"
	"github.com/moviesearch/movies-etl/pkg/etl"
	"github.com/moviesearch/movies-etl/pkg/pgutil"
	"github.com/moviesearch/movies-etl/pkg/retry"
	"github.com/moviesearch/movies-etl/pkg/search"
	"github.com/moviesearch/movies-etl/pkg/state"
)

const defaultHTTPMiddlewareTimeout = 30 * time.Second

// Server holds configuration for the synchronization process.
type Server struct {
	cfg  *config.ETLConfig
	once bool
}

// Option configures a Server.
type Option func(*Server)

// WithOnce makes Run execute a single cycle and return.
func WithOnce(once bool) Option {
	return func(s *Server) { s.once = once }
}

// NewServer initializes a new synchronization Server.
func NewServer(cfg *config.ETLConfig, opts ...Option) *Server {
	s := &Server{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run connects to postgres and Elasticsearch, then runs the sync engine and the
// operational HTTP server until an OS shutdown signal arrives or the engine
// fails. With the once option a single cycle is run instead.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting movies ETL",
		zap.String("database", cfg.Database.GetConnectionString(true)),
		zap.Strings("elasticsearch", cfg.Elasticsearch.Addresses),
		zap.String("state_backend", cfg.State.Backend),
		zap.Bool("once", s.once))

	retrier, err := retry.New(cfg.Retry, logger)
	if err != nil {
		return err
	}

	db, err := connectDB(ctx, retrier, &cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	logger.Info("Database connection established")

	st, err := newState(cfg, db, logger)
	if err != nil {
		return err
	}

	esClient, err := connectSearch(ctx, retrier, &cfg.Elasticsearch)
	if err != nil {
		return err
	}
	logger.Info("Elasticsearch connection established")

	schemes, err := search.LoadSchemes(cfg.Schemes.Path)
	if err != nil {
		return err
	}

	writer := search.NewWriter(esClient, schemes, st, logger)
	engine := etl.NewEngine(
		etl.Config{Interval: cfg.Sync.Interval, BatchSize: cfg.Sync.BatchSize},
		contentpg.NewReader(db, cfg.Sync.BatchSize),
		contentpg.NewBuilder(db),
		writer,
		st,
		retrier,
		logger,
	)

	if s.once {
		if err := engine.Sync(ctx); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		summary, _ := engine.LastCycle()
		logger.Info("Single cycle finished", zap.Any("indexed", summary.Indexed), zap.Any("advanced", summary.Advanced))
		return nil
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if err := engine.Start(runCtx); err != nil {
		return fmt.Errorf("start sync engine: %w", err)
	}
	go func() {
		if err := engine.Wait(); err != nil {
			cancel(err)
		}
	}()

	var serveErr error
	if cfg.Server.Enabled {
		router := newRouter(cfg, engine, st, writer, logger)
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		serveErr = httpserver.ServeAndWait(runCtx, logger, httpserver.New(addr, router), cfg.Shutdown.Timeout)
	} else {
		<-runCtx.Done()
	}

	engine.Stop()
	if err := engine.Wait(); err != nil {
		return fmt.Errorf("sync engine: %w", err)
	}
	return serveErr
}

func connectDB(ctx context.Context, retrier *retry.Retrier, cfg *config.DatabaseConfig) (*bun.DB, error) {
	var db *bun.DB
	err := retrier.Do(ctx, "connect_db", func(ctx context.Context) error {
		var err error
		db, err = pgutil.ConnectDB(ctx, cfg)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

func connectSearch(ctx context.Context, retrier *retry.Retrier, cfg *config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	client, err := search.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	err = retrier.Do(ctx, "ping_elasticsearch", func(ctx context.Context) error {
		return search.Ping(ctx, client)
	})
	if err != nil {
		return nil, fmt.Errorf("connect elasticsearch: %w", err)
	}
	return client, nil
}

func newState(cfg *config.ETLConfig, db *bun.DB, logger *zap.Logger) (*state.State, error) {
	switch cfg.State.Backend {
	case config.StateBackendPostgres:
		logger.Info("Using postgres state storage", zap.String("table", "etl_state"))
		return state.New(state.NewPGStorage(db)), nil
	case config.StateBackendFile, "":
		storage := state.NewJSONFileStorage(cfg.State.FilePath)
		logger.Info("Using file state storage", zap.String("state_file", storage.Path()))
		return state.New(storage), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
}

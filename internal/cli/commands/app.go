package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/conduit-lang/conduit-jsonapi/examples/blog/migrations"
	"github.com/conduit-lang/conduit-jsonapi/examples/blog/models"
	"github.com/conduit-lang/conduit-jsonapi/internal/config"
	"github.com/conduit-lang/conduit-jsonapi/internal/introspect"
	"github.com/conduit-lang/conduit-jsonapi/internal/jsonapi"
	"github.com/conduit-lang/conduit-jsonapi/internal/logging"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/entity"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/mapping"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/migrate"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/query"
	"github.com/conduit-lang/conduit-jsonapi/internal/web/cache"
	"github.com/conduit-lang/conduit-jsonapi/internal/web/middleware"
)

// healthPath answers liveness probes outside the API prefix
const healthPath = "/healthz"

// app holds what every command derives from the configuration
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *mapping.Registry
	catalog  *introspect.Catalog
}

func loadApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, logger)
}

// newApp registers the blog entities and derives the resource catalog
func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	registry := mapping.NewRegistry()
	if err := models.Register(registry); err != nil {
		return nil, fmt.Errorf("failed to register models: %w", err)
	}

	catalog, err := introspect.NewCatalog(registry.AllMetadata(), introspect.Options{
		TypePrefix: cfg.Schema.TypePrefix,
		TypeSuffix: cfg.Schema.TypeSuffix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build resource types: %w", err)
	}
	if err := catalog.CheckToManyAccessors(); err != nil {
		return nil, fmt.Errorf("schema.type_prefix/type_suffix do not match the model accessors: %w", err)
	}

	return &app{cfg: cfg, logger: logger, registry: registry, catalog: catalog}, nil
}

func (a *app) openStore(ctx context.Context) (*entity.Store, error) {
	db := a.cfg.Database
	if db.URL == "" {
		return nil, errors.New("database.url is not set (JSONAPI_DATABASE_URL)")
	}
	return entity.Open(ctx, db.Driver, db.URL, entity.PoolOptions{
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
	}, a.registry, a.logger.Named("sql"))
}

// openCache returns the configured response cache backend, or nil when
// caching is disabled
func (a *app) openCache(ctx context.Context) (cache.Cache, error) {
	cc := cache.CacheConfig{DefaultTTL: a.cfg.Cache.TTL, Prefix: "jsonapi:"}
	switch a.cfg.Cache.Backend {
	case config.CacheMemory:
		return cache.NewMemoryCacheWithConfig(cc), nil
	case config.CacheRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:        a.cfg.Cache.Redis.Addr,
			Password:    a.cfg.Cache.Redis.Password,
			DB:          a.cfg.Cache.Redis.DB,
			CacheConfig: cc,
		})
		if err != nil {
			return nil, err
		}
		return rc, nil
	default:
		return nil, nil
	}
}

// handler assembles the middleware chain in front of the engine
func (a *app) handler(store *entity.Store, responses cache.Cache) http.Handler {
	engine := jsonapi.NewServer(a.catalog, store, jsonapi.Options{
		Prefix:       a.cfg.Server.APIPrefix,
		DefaultLimit: a.cfg.Pagination.DefaultLimit,
		MaxLimit:     a.cfg.Pagination.MaxLimit,
	}, a.logger)

	r := chi.NewRouter()
	r.Get(healthPath, health(store))
	r.Handle("/*", engine)

	chain := middleware.NewChain(
		middleware.RequestID(),
		middleware.LoggingWithConfig(middleware.LoggingConfig{
			Logger:    a.logger.Named("http"),
			SkipPaths: []string{healthPath},
		}),
		middleware.Recovery(a.logger),
	)
	if responses != nil {
		chain.Use(cache.ResponseCache(cache.ResponseCacheConfig{
			Cache:      responses,
			Prefix:     engine.Prefix(),
			TTL:        a.cfg.Cache.TTL,
			Dependents: a.catalog.Dependents,
			Logger:     a.logger.Named("cache"),
		}))
	}
	return chain.Then(r)
}

func health(store *entity.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}
}

// migrations returns the migrations to run against dialect: the configured
// directory, the bundled Postgres files, or DDL generated from the entity
// metadata for other dialects
func (a *app) migrations(dialect query.Dialect) ([]*migrate.Migration, error) {
	if dir := a.cfg.Database.MigrationsDir; dir != "" {
		return migrate.Load(os.DirFS(dir), ".")
	}
	if dialect == query.Postgres {
		return migrate.Load(migrations.FS, ".")
	}
	m, err := migrate.GenerateMigration(a.registry.AllMetadata(), dialect, 1, "create_schema")
	if err != nil {
		return nil, err
	}
	return []*migrate.Migration{m}, nil
}

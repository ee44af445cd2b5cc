package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/fluxscan/internal/api/handlers"
	"github.com/wonny/fluxscan/internal/marketdata"
	"github.com/wonny/fluxscan/internal/scanner"
	"github.com/wonny/fluxscan/internal/scheduler/jobs"
	"github.com/wonny/fluxscan/internal/service"
	"github.com/wonny/fluxscan/internal/storage"
	"github.com/wonny/fluxscan/internal/storage/memory"
	"github.com/wonny/fluxscan/pkg/config"
	"github.com/wonny/fluxscan/pkg/database"
	"github.com/wonny/fluxscan/pkg/httputil"
	"github.com/wonny/fluxscan/pkg/logger"
	"github.com/wonny/fluxscan/pkg/redis"
)

// scheduleStore is what both the schedule handler and the dispatcher need.
type scheduleStore interface {
	handlers.ScheduleStore
	jobs.ScheduleStore
}

// stores groups the repositories, backed by PostgreSQL or by memory.
type stores struct {
	scanners   service.ScannerStore
	watchlists service.WatchlistStore
	schedules  scheduleStore
	history    service.HistoryStore
	results    service.ResultStore
}

func postgresStores(db *database.DB) stores {
	return stores{
		scanners:   storage.NewScannerRepository(db.Pool),
		watchlists: storage.NewWatchlistRepository(db.Pool),
		schedules:  storage.NewScheduleRepository(db.Pool),
		history:    storage.NewHistoryRepository(db.Pool),
		results:    storage.NewResultRepository(db.Pool),
	}
}

func memoryStores() stores {
	m := memory.New()
	return stores{
		scanners:   m.Scanners(),
		watchlists: m.Watchlists(),
		schedules:  m.Schedules(),
		history:    m.History(),
		results:    m.Results(),
	}
}

// app is the dependency graph shared by the commands.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	location *time.Location

	db       *database.DB // nil when running on the memory store
	redis    *redis.Client
	provider *marketdata.Provider
	engine   *scanner.Engine
	stores   stores
	scanners *service.ScannerService
}

type appOptions struct {
	// requireDB fails instead of falling back to the memory store.
	requireDB bool
	// skipStorage leaves stores unset, for commands that never persist.
	skipStorage bool
}

func newApp(opts appOptions) (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Schedule.Timezone, err)
	}

	a := &app{cfg: cfg, log: log, location: loc}

	// 3. Connect to Redis (disabled clients are no-ops)
	a.redis, err = redis.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	// 4. Connect to database
	if !opts.skipStorage {
		switch {
		case cfg.Database.URL != "":
			a.db, err = database.New(cfg)
			if err != nil {
				a.close()
				return nil, fmt.Errorf("connect to database: %w", err)
			}
			a.stores = postgresStores(a.db)
			log.Info("Connected to database")
		case opts.requireDB:
			a.close()
			return nil, cfg.RequireDatabase()
		default:
			a.stores = memoryStores()
			log.Warn("DATABASE_URL not set, using in-memory storage")
		}
	}

	// 5. Market data: HTTP client with local and shared rate limits, two-level cache
	httpClient := httputil.New(cfg, log).WithLocalLimit(float64(cfg.OpenAlgo.RateLimit), cfg.OpenAlgo.RateLimit)
	if a.redis.Enabled() {
		limiter := redis.NewRateLimiter(a.redis, "fluxscan", redis.OpenAlgoWindow(cfg.OpenAlgo))
		httpClient = httpClient.WithRateLimiter(limiter)
	}
	client := marketdata.NewClient(httpClient, cfg.OpenAlgo.Host, cfg.OpenAlgo.APIKey, log)
	var remote *redis.Cache
	if a.redis.Enabled() {
		remote = redis.NewCache(a.redis, "fluxscan")
	}
	a.provider = marketdata.NewProvider(client, marketdata.NewSeriesCache(cfg.OpenAlgo.CacheTTL, log), remote, cfg.OpenAlgo.CacheTTL, log)

	// 6. Scanner engine and service
	a.engine = scanner.NewEngine(a.provider, scanner.Config{
		Workers:  cfg.Scanner.Workers,
		MaxSteps: uint64(cfg.Scanner.MaxSteps),
	}, log)
	if !opts.skipStorage {
		a.scanners = service.NewScannerService(a.stores.scanners, a.stores.history, a.engine, cfg.Scanner, log)
	}
	return a, nil
}

// runs creates the background run registry publishing to pub and Redis.
func (a *app) runs(pub service.Publisher) *service.RunRegistry {
	publishers := service.Publishers{service.NewRedisPublisher(a.redis, a.log)}
	if pub != nil {
		publishers = append(publishers, pub)
	}
	return service.NewRunRegistry(a.scanners, a.stores.watchlists, a.stores.history, a.stores.results, publishers, a.log)
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func pingRedis(c *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return c.Redis().Ping(ctx).Err()
	}
}

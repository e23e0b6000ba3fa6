package app

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"

	"github.com/sabiscore/predictor/external/mlservice"
	"github.com/sabiscore/predictor/external/sportsdata"
	"github.com/sabiscore/predictor/internal/config"
	"github.com/sabiscore/predictor/internal/domain/fixture"
	"github.com/sabiscore/predictor/internal/domain/ingestion"
	"github.com/sabiscore/predictor/internal/domain/prediction"
	"github.com/sabiscore/predictor/internal/domain/team"
	"github.com/sabiscore/predictor/internal/infrastructure/repository/memory"
	"github.com/sabiscore/predictor/internal/infrastructure/repository/postgres"
	"github.com/sabiscore/predictor/internal/interfaces/httpapi"
	"github.com/sabiscore/predictor/internal/platform/cache"
	idgen "github.com/sabiscore/predictor/internal/platform/id"
	"github.com/sabiscore/predictor/internal/platform/logging"
	"github.com/sabiscore/predictor/internal/platform/resilience"
	"github.com/sabiscore/predictor/internal/usecase"
)

// App owns the wired service graph and the resources that outlive a
// request: the HTTP server, the payload cache and the DB pool.
type App struct {
	cfg    config.Config
	logger *logging.Logger
	server *http.Server
	sync   *usecase.SyncService
	store  *cache.Store
	db     *sqlx.DB
}

func New(cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	store := cache.NewStore(cfg.CacheSweepInterval)
	breakers := resilience.NewRegistry(cfg.CircuitBreaker)
	ids := idgen.NewRandomGenerator()

	var (
		db             *sqlx.DB
		fixtureRepo    fixture.Repository
		teamRepo       team.Repository
		predictionRepo prediction.Repository
		eventRepo      ingestion.Repository
	)
	if strings.TrimSpace(cfg.DBURL) != "" {
		opened, err := openDB(cfg)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("open database: %w", err)
		}
		db = opened
		fixtureRepo = postgres.NewFixtureRepository(db)
		teamRepo = postgres.NewTeamRepository(db)
		predictionRepo = postgres.NewPredictionRepository(db)
		eventRepo = postgres.NewIngestionEventRepository(db)
		logger.Info("repositories backed by postgres", "db", dbNameFromURL(cfg.DBURL))
	} else {
		memFixtures := memory.NewFixtureRepository()
		fixtureRepo = memFixtures
		teamRepo = memory.NewTeamRepository()
		predictionRepo = memory.NewPredictionRepository(memFixtures)
		eventRepo = memory.NewIngestionEventRepository()
		logger.Info("repositories backed by memory", "reason", "DB_URL empty")
	}

	provider := sportsdata.NewClient(sportsdata.ClientConfig{
		BaseURL:      cfg.SportsDataBaseURL,
		Token:        cfg.SportsDataToken,
		Timeout:      cfg.SportsDataTimeout,
		MaxRetries:   cfg.SportsDataMaxRetries,
		BackoffBase:  cfg.SportsDataBackoffBase,
		TTLLive:      cfg.TTLLive,
		TTLVolatile:  cfg.TTLVolatile,
		TTLReference: cfg.TTLReference,
		TTLOverrides: cfg.TTLOverrides,
		Logger:       logger,
		Breakers:     breakers,
		Cache:        store,
		Events:       eventRepo,
		IDs:          ids,
	})

	var model usecase.ModelClient
	if cfg.MLEnabled {
		model = mlservice.NewClient(mlservice.ClientConfig{
			BaseURL:  cfg.MLBaseURL,
			Timeout:  cfg.MLTimeout,
			Logger:   logger,
			Breakers: breakers,
		})
	}

	cleanup := func() {
		store.Close()
		if db != nil {
			_ = db.Close()
		}
	}

	featureCfg := usecase.DefaultFeatureConfig()
	featureCfg.Cache = store
	featureService, err := usecase.NewFeatureService(featureCfg, provider, fixtureRepo, teamRepo, logger)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("build feature service: %w", err)
	}
	predictionService, err := usecase.NewPredictionService(usecase.PredictionConfig{
		PredictionTTL: cfg.PredictionTTL,
		BatchWorkers:  cfg.BatchWorkers,
		MaxBatchSize:  cfg.BatchMaxFixtures,
		MLEnabled:     cfg.MLEnabled,
		MLTimeout:     cfg.MLTimeout,
		Temperature:   cfg.MLTemperature,
	}, featureService, model, predictionRepo, logger)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("build prediction service: %w", err)
	}
	fixtureService, err := usecase.NewFixtureService(provider, fixtureRepo, logger)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("build fixture service: %w", err)
	}
	ingestionService, err := usecase.NewIngestionService(eventRepo, logger)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("build ingestion service: %w", err)
	}

	var syncService *usecase.SyncService
	if cfg.SyncEnabled {
		syncService, err = usecase.NewSyncService(usecase.SyncConfig{
			Interval:          cfg.SyncInterval,
			CycleTimeout:      cfg.SyncCycleTimeout,
			GracePeriod:       cfg.SyncGracePeriod,
			FixturesPerLeague: cfg.SyncFixturesPerLeague,
			BackfillThreshold: cfg.BackfillThreshold,
			TrackedLeagues:    cfg.TrackedLeagues,
		}, provider, fixtureRepo, teamRepo, predictionService, eventRepo, ids, logger)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("build sync service: %w", err)
		}
	}

	handler := httpapi.NewHandler(predictionService, fixtureService, ingestionService, breakers, logger)
	router := httpapi.NewRouter(handler, logger, cfg.CORSAllowedOrigins)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		server: server,
		sync:   syncService,
		store:  store,
		db:     db,
	}, nil
}

func (a *App) Server() *http.Server {
	return a.server
}

// Close releases the cache janitor and the DB pool. The HTTP server is
// shut down separately so callers control the drain deadline.
func (a *App) Close() error {
	a.store.Close()
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func openDB(cfg config.Config) (*sqlx.DB, error) {
	dsn := normalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary)

	db, err := otelsqlx.Open("postgres", dsn,
		otelsql.WithDBSystem("postgresql"),
		otelsql.WithDBName(dbNameFromURL(dsn)),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

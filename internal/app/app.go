package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/templui/piggybank/internal/aggregator"
	"github.com/templui/piggybank/internal/composer"
	"github.com/templui/piggybank/internal/config"
	"github.com/templui/piggybank/internal/db"
	"github.com/templui/piggybank/internal/events"
	"github.com/templui/piggybank/internal/indexer"
	"github.com/templui/piggybank/internal/ledger"
	"github.com/templui/piggybank/internal/middleware"
	"github.com/templui/piggybank/internal/oracle"
	"github.com/templui/piggybank/internal/refresh"
	"github.com/templui/piggybank/internal/repository"
	"github.com/templui/piggybank/internal/service"
	"github.com/templui/piggybank/internal/storage"
	"github.com/templui/piggybank/internal/units"
)

type App struct {
	Cfg               *config.Config
	DB                *sqlx.DB
	Redis             *redis.Client
	Ledger            *ledger.Client
	Aggregator        *aggregator.Aggregator
	Cache             refresh.Cache
	Refresher         *refresh.Coordinator
	Publisher         events.Publisher
	Composer          *composer.Composer
	Indexer           *indexer.Indexer
	PricePoller       *oracle.Poller
	AuthService       *service.AuthService
	GoalService       *service.GoalService
	LedgerService     *service.LedgerService
	ExportService     *service.ExportService
	SubmissionLimiter *middleware.RateLimiter

	done chan struct{}
	wg   sync.WaitGroup
}

func New(cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	// Run database migrations
	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	a := &App{Cfg: cfg, DB: database, done: make(chan struct{})}

	// Repositories
	goalRepository := repository.NewGoalRepository(database)
	depositRepository := repository.NewDepositRepository(database)
	withdrawalRepository := repository.NewWithdrawalRepository(database)
	requestRepository := repository.NewWithdrawalRequestRepository(database)
	cursorRepository := repository.NewCursorRepository(database)

	// Ledger gateway
	a.Ledger = ledger.NewClient(ledger.ClientConfig{
		URL:                cfg.LedgerRPCURL,
		Timeout:            cfg.LedgerTimeout,
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerOpenTimeout: cfg.BreakerOpenTimeout,
	})
	a.Aggregator = aggregator.New(a.Ledger, cfg.GlobalLedgerID)

	// View cache
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		a.Redis, err = refresh.Connect(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.Cache = refresh.NewRedisCache(a.Redis, cfg.CachePrefix, cfg.CacheTTL)
		slog.Info("view cache: redis", "prefix", cfg.CachePrefix, "ttl", cfg.CacheTTL)
	} else {
		a.Cache = refresh.NewMemoryCache(cfg.CacheTTL)
		slog.Info("view cache: in-memory", "ttl", cfg.CacheTTL)
	}
	a.Refresher = refresh.NewCoordinator(a.Cache)

	// Submission events
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaPublisher(cfg.KafkaBrokers, map[string]string{
			events.EventSubmissionConfirmed: cfg.KafkaTopic,
			events.EventSubmissionFailed:    cfg.KafkaTopic,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize kafka publisher: %w", err)
		}
		a.Publisher = kafka
		slog.Info("events: kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		a.Publisher = events.NewLogPublisher()
	}

	// Storage
	fileStorage, err := storage.New(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize storage: %v", err)
	}

	// Services
	base := units.New(cfg.BaseSymbol, cfg.BaseDecimals)

	var prices service.PriceSource
	if cfg.OracleURL != "" {
		a.PricePoller = oracle.NewPoller(oracle.NewClient(oracle.ClientConfig{URL: cfg.OracleURL}), cfg.BaseCoinType, cfg.OraclePollInterval)
		prices = a.PricePoller
	} else {
		slog.Info("price oracle not configured, fiat estimates disabled")
	}

	a.AuthService = service.NewAuthService(cfg.JWTSecret, cfg.JWTExpiry)
	a.GoalService = service.NewGoalService(goalRepository, depositRepository, withdrawalRepository, requestRepository, a.Aggregator, a.Cache)
	a.LedgerService = service.NewLedgerService(a.Aggregator, a.Cache, prices, base)
	a.ExportService = service.NewExportService(goalRepository, depositRepository, withdrawalRepository, fileStorage, base)

	var yield composer.YieldReader = composer.NoYield{}
	if cfg.YieldPoolID != "" {
		yield = composer.NewPoolRewards(a.Ledger, cfg.YieldPoolID)
	} else {
		slog.Warn("yield pool not configured, pending yield is never harvested")
	}

	a.Composer = composer.New(
		composer.Programs{
			GoalPackage:    cfg.PackageID,
			GoalModule:     cfg.GoalModule,
			LedgerID:       cfg.GlobalLedgerID,
			YieldPackage:   cfg.YieldPackageID,
			BaseCoinType:   cfg.BaseCoinType,
			StableCoinType: cfg.StableCoinType,
			ShareType:      cfg.ShareType,
		},
		base,
		a.Ledger,
		a.Ledger,
		yield,
		a.GoalService,
		a.Refresher,
		a.Publisher,
	)

	a.Indexer = indexer.New(
		indexer.Config{
			Package:      cfg.PackageID,
			Module:       cfg.GoalModule,
			PageSize:     cfg.IndexerPageSize,
			PollInterval: cfg.IndexerPollInterval,
		},
		a.Ledger,
		goalRepository,
		depositRepository,
		requestRepository,
		withdrawalRepository,
		cursorRepository,
		a.Refresher,
	)

	a.SubmissionLimiter = middleware.NewRateLimiter(cfg.SubmissionsPerMinute, time.Minute, a.done)

	return a, nil
}

// Start runs the background loops (indexer and price poller) until ctx is canceled.
func (a *App) Start(ctx context.Context) {
	if a.Cfg.IndexerEnabled {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.Indexer.Run(ctx)
		}()
	} else {
		slog.Info("indexer disabled")
	}

	if a.PricePoller != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.PricePoller.Run(ctx)
		}()
	}
}

// Close waits for background loops, which must already be canceled, and releases
// connections.
func (a *App) Close() error {
	select {
	case <-a.done:
	default:
		close(a.done)
	}
	a.wg.Wait()

	var errs []error
	if a.Publisher != nil {
		errs = append(errs, a.Publisher.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

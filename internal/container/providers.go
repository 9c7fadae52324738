package container

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/rate"
	"github.com/garyjia/expense-approval/internal/infrastructure/cache"
	"github.com/garyjia/expense-approval/internal/infrastructure/export"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	httpapi "github.com/garyjia/expense-approval/internal/interfaces/http"
	"github.com/garyjia/expense-approval/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// CacheBundle holds the optional Redis client and the snapshot cache on top of it.
type CacheBundle struct {
	Client        *redis.Client
	RateSnapshots port.RateSnapshotCache
}

// ProvideDatabase opens the database, applies the embedded migrations and
// wraps it in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Submission: repository.NewSubmissionRepository(sqlDB, logger),
		RateConfig: repository.NewRateConfigRepository(sqlDB, logger),
		Audit:      repository.NewAuditRepository(sqlDB, logger),
		Profile:    repository.NewProfileRepository(sqlDB, logger),
		Role:       repository.NewRoleRepository(sqlDB, logger),
	}, nil
}

// ProvideCache connects to Redis when the cache is enabled. A disabled
// cache yields an empty bundle and every snapshot read goes to the database.
func ProvideCache(ctx context.Context, cfg *CacheConfig, logger *zap.Logger) (*CacheBundle, error) {
	if cfg == nil || !cfg.Enabled {
		return &CacheBundle{}, nil
	}

	client, err := cache.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	logger.Info("Rate snapshot cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.TTL))

	return &CacheBundle{
		Client:        client,
		RateSnapshots: cache.NewRateSnapshotCache(client, cfg.TTL),
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger}),
	), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	RateCache  port.RateSnapshotCache
	Dispatcher dispatcher.Dispatcher
	Payout     *PayoutConfig
	Logger     *zap.Logger
}

// ProvideServices creates all application services and subscribes the
// status sync handler to the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}

	payoutCfg := PayoutConfig{}
	if deps.Payout != nil {
		payoutCfg = *deps.Payout
	}

	recorder := service.NewAuditRecorder(deps.Repos.Audit, serviceLogger)
	rates := service.NewRateService(
		deps.Repos.RateConfig,
		deps.RateCache,
		recorder,
		deps.TxManager,
		deps.Dispatcher,
		serviceLogger,
	)

	machine := approval.NewMachine(rate.NewCalculator(rates, deps.Repos.Profile))

	sync := service.NewStatusSyncService(recorder, serviceLogger)
	sync.Register(deps.Dispatcher)

	return &ServiceBundle{
		Audit: recorder,
		Rates: rates,
		Submissions: service.NewSubmissionService(
			deps.Repos.Submission,
			machine,
			recorder,
			deps.TxManager,
			serviceLogger,
			service.WithDispatcher(deps.Dispatcher),
		),
		Access: service.NewAccessService(
			deps.Repos.Role,
			deps.Repos.Profile,
			recorder,
			deps.TxManager,
			deps.Dispatcher,
			serviceLogger,
		),
		Payouts: service.NewPayoutService(
			deps.Repos.Submission,
			export.NewPayoutSheet(payoutCfg.CompanyName, payoutCfg.SheetName, deps.Logger),
			recorder,
			serviceLogger,
		),
		Sync: sync,
	}, nil
}

// ProvideTokenAuthority creates the bearer token signer and verifier.
func ProvideTokenAuthority(cfg *AuthConfig) (*httpapi.TokenAuthority, error) {
	if cfg == nil {
		return nil, fmt.Errorf("auth config is required")
	}
	return httpapi.NewTokenAuthority(cfg.JWTSecret, cfg.Issuer, cfg.TokenTTL)
}

// ProvideHTTPServer creates the HTTP adapter on top of the services.
func ProvideHTTPServer(cfg *ServerConfig, services *ServiceBundle, tokens *httpapi.TokenAuthority, logger *zap.Logger) (*httpapi.Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server config is required")
	}
	if services == nil {
		return nil, fmt.Errorf("services are required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token authority is required")
	}

	return httpapi.NewServer(
		httpapi.ServerConfig{
			Host:         cfg.Host,
			Port:         cfg.Port,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		httpapi.Services{
			Submissions: services.Submissions,
			Rates:       services.Rates,
			Access:      services.Access,
			Audit:       services.Audit,
			Payouts:     services.Payouts,
		},
		tokens,
		&zapLoggerAdapter{logger: logger},
	), nil
}

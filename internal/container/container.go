package container

import (
	"context"
	"fmt"
	"time"

	"ballot-engine/internal/audit"
	"ballot-engine/internal/config"
	"ballot-engine/internal/credential"
	"ballot-engine/internal/notify"
	"ballot-engine/internal/repository"
	"ballot-engine/internal/service"
	"ballot-engine/internal/service/auth"
	"ballot-engine/pkg/database"
	"ballot-engine/pkg/docstore"
	pgstore "ballot-engine/pkg/docstore/postgres"
	"ballot-engine/pkg/docstore/redisstore"
	"ballot-engine/pkg/logger"
	"ballot-engine/pkg/redis"
)

// AuditStream is the Redis stream audit entries are appended to
const AuditStream = "ballot:audit"

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	RedisClient *redis.Client
	DB          *database.PostgresDB
	Repository  repository.ElectionRepository
	Notifier    *notify.Async
	Services    *service.Services

	mongoSink *audit.MongoSink
}

// New creates a new dependency injection container
func New(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	// Initialize Redis client if Redis URL is configured
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, logger.Logger)
		if err != nil {
			if cfg.StoreBackend == config.StoreRedis || cfg.AuditSink == config.AuditRedis {
				return nil, fmt.Errorf("redis: %w", err)
			}
			logger.WithError(err).Warn("Failed to initialize Redis client, proceeding without caching")
		} else {
			c.RedisClient = client
			logger.Info("Redis client initialized successfully")
		}
	} else {
		logger.Info("Redis URL not configured, proceeding without caching")
	}

	if cfg.DatabaseURL != "" && (cfg.StoreBackend == config.StorePostgres || cfg.AuditSink == config.AuditPostgres) {
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			c.Close(ctx)
			return nil, fmt.Errorf("postgres: %w", err)
		}
		c.DB = db
	}

	store, err := c.newStore(ctx)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	c.Repository = repository.NewDocumentRepository(store)

	sink, err := c.newAuditSink(ctx)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	recorder := audit.NewRecorder(sink, logger.Logger)

	var dispatcher notify.Dispatcher = notify.NewLogDispatcher(logger.Logger)
	if c.RedisClient != nil && cfg.NotifyChannel != "" {
		dispatcher = notify.NewRedisDispatcher(c.RedisClient, cfg.NotifyChannel)
	}
	c.Notifier = notify.NewAsync(dispatcher, logger.Logger)

	results := service.NewResultsCache(c.RedisClient, logger.Logger)
	resolver := credential.NewResolver(cfg.DefaultCountryCode)
	opts := service.Options{
		MaxTxAttempts:      cfg.TxMaxAttempts,
		AutoSubmitOnCreate: cfg.AutoSubmitOnCreate,
		ViewLimit:          cfg.ViewLimit,
	}

	authService := auth.NewService(cfg.JWTSecret, logger)
	c.Services = &service.Services{
		Auth:      authService,
		Elections: service.NewElectionService(c.Repository, resolver, recorder, c.Notifier, results, logger, opts),
		Ballots:   service.NewBallotService(c.Repository, resolver, authService, recorder, c.Notifier, results, logger.Logger, opts),
		Syncer:    service.NewPhaseSyncer(c.Repository, results, logger, cfg.PhaseSyncSchedule, opts),
	}

	logger.WithFields(map[string]interface{}{
		"store":  cfg.StoreBackend,
		"audit":  cfg.AuditSink,
		"redis":  c.RedisClient != nil,
		"notify": cfg.NotifyChannel,
	}).Info("Container initialized")

	return c, nil
}

func (c *Container) newStore(ctx context.Context) (docstore.Store, error) {
	switch c.Config.StoreBackend {
	case config.StorePostgres:
		if c.DB == nil {
			return nil, fmt.Errorf("postgres store requires DATABASE_URL")
		}
		store := pgstore.New(c.DB.Pool)
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate document store: %w", err)
		}
		return store, nil
	case config.StoreRedis:
		if c.RedisClient == nil {
			return nil, fmt.Errorf("redis store requires REDIS_URL")
		}
		return redisstore.New(c.RedisClient, c.Logger.Logger), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", c.Config.StoreBackend)
}

func (c *Container) newAuditSink(ctx context.Context) (audit.Sink, error) {
	switch c.Config.AuditSink {
	case config.AuditPostgres:
		if c.DB == nil {
			return nil, fmt.Errorf("postgres audit sink requires DATABASE_URL")
		}
		if _, err := c.DB.Pool.Exec(ctx, audit.Schema); err != nil {
			return nil, fmt.Errorf("migrate audit log: %w", err)
		}
		return audit.NewPostgresSink(c.DB.Pool), nil
	case config.AuditRedis:
		if c.RedisClient == nil {
			return nil, fmt.Errorf("redis audit sink requires REDIS_URL")
		}
		return audit.NewRedisSink(c.RedisClient, AuditStream), nil
	case config.AuditMongo:
		sink, err := audit.NewMongoSink(ctx, c.Config.MongoURL, c.Config.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("mongo audit sink: %w", err)
		}
		c.mongoSink = sink
		return sink, nil
	}
	return audit.NewLogSink(c.Logger.Logger), nil
}

// Health checks every backend the container holds
func (c *Container) Health(ctx context.Context) map[string]error {
	checks := map[string]error{"store": c.Repository.Health(ctx)}
	if c.RedisClient != nil {
		checks["redis"] = c.RedisClient.Health(ctx)
	}
	if c.DB != nil {
		checks["database"] = c.DB.Health(ctx)
	}
	return checks
}

// Close releases every connection in reverse order of creation
func (c *Container) Close(ctx context.Context) error {
	var errs []error

	if c.Notifier != nil {
		c.Notifier.Wait()
	}

	if c.mongoSink != nil {
		closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := c.mongoSink.Close(closeCtx); err != nil {
			errs = append(errs, fmt.Errorf("mongo close: %w", err))
		}
		cancel()
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}

	if c.DB != nil {
		c.DB.Close()
	}

	if len(errs) > 0 {
		return fmt.Errorf("close completed with %d errors: %v", len(errs), errs)
	}
	return nil
}

// GetAuthService returns the auth service
func (c *Container) GetAuthService() service.AuthService {
	return c.Services.Auth
}

// GetElectionService returns the election service
func (c *Container) GetElectionService() service.ElectionService {
	return c.Services.Elections
}

// GetBallotService returns the ballot service
func (c *Container) GetBallotService() service.BallotService {
	return c.Services.Ballots
}

// GetPhaseSyncer returns the phase syncer
func (c *Container) GetPhaseSyncer() service.PhaseSyncer {
	return c.Services.Syncer
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client (may be nil if not configured)
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

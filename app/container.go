package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/RezaEskandarii/tide/client"
	"github.com/RezaEskandarii/tide/internal/appmanager"
	"github.com/RezaEskandarii/tide/internal/constants"
	"github.com/RezaEskandarii/tide/internal/lock"
	"github.com/RezaEskandarii/tide/internal/logger"
	"github.com/RezaEskandarii/tide/internal/message_broaker"
	"github.com/RezaEskandarii/tide/internal/store"
	"github.com/RezaEskandarii/tide/internal/store/consul"
	"github.com/RezaEskandarii/tide/internal/store/memory"
	"github.com/RezaEskandarii/tide/internal/store/postgres"
	redisstore "github.com/RezaEskandarii/tide/internal/store/redis"
	"github.com/RezaEskandarii/tide/types"
	"github.com/RezaEskandarii/tide/types/config"
	"github.com/hashicorp/go-multierror"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures connections and services are created once.
type Container struct {
	Config *config.TideConfig
	Logger *zap.SugaredLogger

	// Storage connections (created once, shared by the store and the elector)
	DB    *sql.DB
	Redis *redis.Client

	Store         store.Store
	Elector       lock.LeaderElector
	MessageBroker message_broaker.MessageBroker
	Applications  appmanager.ApplicationManager

	Cron      *cron.Cron
	Scheduler *client.Scheduler

	ownsConnections bool
	ownsStore       bool
}

// NewContainer creates and wires all dependencies. Single entry point for DI.
// Call this once per application lifecycle.
// Pass optional WithDB, WithRedis, WithStore... to inject dependencies for testing.
func NewContainer(ctx context.Context, cfg *config.TideConfig, opts ...ContainerOption) (*Container, error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	log := opt.logger
	if log == nil {
		l, err := logger.New(cfg.LogLevel, cfg.LogJSON)
		if err != nil {
			return nil, err
		}
		log = l
	}

	c := &Container{Config: cfg, Logger: log}

	if opt.db != nil || opt.redis != nil {
		c.DB, c.Redis = opt.db, opt.redis
	} else {
		db, redisClient, err := initStorageConnections(ctx, cfg, opt)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		c.DB, c.Redis = db, redisClient
		c.ownsConnections = true
	}

	c.ownsStore = opt.store == nil
	var err error
	if c.Store, err = c.createStore(ctx, opt); err != nil {
		c.closeConnections()
		return nil, fmt.Errorf("init store: %w", err)
	}
	if c.Elector, err = c.createLeaderElector(opt); err != nil {
		c.closeConnections()
		return nil, fmt.Errorf("init leader election: %w", err)
	}

	c.Applications = opt.apps
	if c.Applications == nil {
		rc := cfg.RabbitMQConfig
		if rc == nil || rc.URL == "" {
			c.closeConnections()
			return nil, fmt.Errorf("init application manager: rabbitmq url is required")
		}
		broker, err := message_broaker.NewRabbitMQ(message_broaker.RabbitMQOptions{
			URL:         rc.URL,
			Exchange:    rc.Exchange,
			Queue:       rc.Queue,
			RoutingKey:  rc.RoutingKey,
			ContentType: rc.ContentType,
		})
		if err != nil {
			c.closeConnections()
			return nil, fmt.Errorf("init rabbitmq: %w", err)
		}
		c.MessageBroker = broker
		c.Applications = appmanager.NewBrokerApplicationManager(broker, rc.RoutingKey)
	}

	c.Cron = cron.New(
		cron.WithParser(types.CadenceParser),
		cron.WithLogger(cronLogger{logger: log.Named("tide-cron")}),
		cron.WithChain(cron.Recover(cronLogger{logger: log.Named("tide-cron")})),
	)

	c.Scheduler = client.NewScheduler(
		client.SchedulerConfig{
			ClusterID:         cfg.ClusterID,
			Delimiter:         cfg.Delimiter,
			ContainersPrefix:  cfg.ContainersPrefix,
			LockTimeout:       cfg.LockTimeout,
			DrainPollInterval: cfg.DrainPollInterval,
			FiringWorkers:     cfg.FiringWorkers,
		},
		c.Store,
		c.Elector,
		c.Applications,
		c.Cron,
		log.Named(logger.Scheduler),
	)
	return c, nil
}

// Run initializes the scheduler, starts it and blocks until ctx is done.
// A failed initial load is retried on every leadership tick until it succeeds.
// When this node gains leadership the registry is reloaded so the new leader
// picks up every job.
func (c *Container) Run(ctx context.Context) error {
	if keeper, ok := c.Elector.(lock.KeepAliver); ok {
		go keeper.KeepAlive(ctx)
	}

	loaded := true
	if err := c.Scheduler.Initialize(ctx); err != nil {
		c.Logger.Errorw("Error initializing scheduler", "error", err)
		loaded = false
	}
	c.Scheduler.Start()

	c.watchLeadership(ctx, c.Config.LeaderLeaseTTL, loaded)
	return ctx.Err()
}

func (c *Container) watchLeadership(ctx context.Context, interval time.Duration, loaded bool) {
	if interval <= 0 {
		interval = constants.LeaderLeaseTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	leading := c.Elector.IsControllingLeader(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := c.Elector.IsControllingLeader(ctx)
			gained := now && !leading
			if !loaded || gained {
				if gained {
					c.Logger.Infow("Became controlling leader, reloading jobs", "node", c.Config.NodeID)
				}
				if err := c.Scheduler.Reload(ctx); err != nil {
					c.Logger.Errorw("Error reloading jobs", "error", err)
					continue
				}
				loaded = true
			}
			leading = now
		}
	}
}

// Close stops the scheduler, gives up leadership and releases every connection.
func (c *Container) Close(ctx context.Context) error {
	var result *multierror.Error

	if err := c.Scheduler.Stop(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := c.Elector.Resign(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("resign leadership: %w", err))
	}
	if c.MessageBroker != nil {
		if err := c.MessageBroker.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close broker: %w", err))
		}
	}
	if c.ownsStore && c.ownsConnections {
		if err := c.Store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close store: %w", err))
		}
	}
	if err := c.closeConnections(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// closeConnections closes connections the store does not own.
func (c *Container) closeConnections() error {
	if !c.ownsConnections {
		return nil
	}
	var result *multierror.Error
	storeOwns := func(d config.StorageDriver) bool {
		return c.ownsStore && c.Store != nil && c.Config.StorageDriver == d
	}
	if c.DB != nil && !storeOwns(config.Postgres) {
		if err := c.DB.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close postgres: %w", err))
		}
	}
	if c.Redis != nil && !storeOwns(config.Redis) {
		if err := c.Redis.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close redis: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// initStorageConnections opens the connections the storage and leader drivers need.
func initStorageConnections(ctx context.Context, cfg *config.TideConfig, opt *containerConfig) (*sql.DB, *redis.Client, error) {
	needsPostgres := (opt.store == nil && cfg.StorageDriver == config.Postgres) ||
		(opt.elector == nil && cfg.LeaderDriver == config.PostgresAdvisory)
	needsRedis := (opt.store == nil && cfg.StorageDriver == config.Redis) ||
		(opt.elector == nil && cfg.LeaderDriver == config.RedisLease)

	var db *sql.DB
	var redisClient *redis.Client
	if needsPostgres {
		if cfg.PostgresConfig.ConnectionUrl == "" {
			return nil, nil, fmt.Errorf("postgres connection url is required for %s", cfg.StorageDriver)
		}
		d, err := openPostgresDB(ctx, cfg.PostgresConfig.ConnectionUrl)
		if err != nil {
			return nil, nil, err
		}
		db = d
	}
	if needsRedis {
		if cfg.RedisConfig.ConnectionUrl == "" {
			closeDB(db)
			return nil, nil, fmt.Errorf("redis connection url is required")
		}
		r, err := redisstore.Connect(ctx, cfg.RedisConfig.ConnectionUrl)
		if err != nil {
			closeDB(db)
			return nil, nil, err
		}
		redisClient = r
	}
	return db, redisClient, nil
}

func closeDB(db *sql.DB) {
	if db != nil {
		_ = db.Close()
	}
}

func openPostgresDB(ctx context.Context, connectionURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connectionURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (c *Container) createStore(ctx context.Context, opt *containerConfig) (store.Store, error) {
	if opt.store != nil {
		return opt.store, nil
	}
	switch c.Config.StorageDriver {
	case config.Postgres:
		if c.DB == nil {
			return nil, fmt.Errorf("postgres store needs a database connection")
		}
		if err := postgres.Init(ctx, c.DB); err != nil {
			return nil, err
		}
		return postgres.NewPostgresStore(c.DB), nil
	case config.Redis:
		if c.Redis == nil {
			return nil, fmt.Errorf("redis store needs a redis client")
		}
		return redisstore.NewRedisStore(c.Redis), nil
	case config.Consul:
		return consul.Connect(c.Config.ConsulConfig.Address)
	case config.Memory:
		return memory.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %v", c.Config.StorageDriver)
	}
}

func (c *Container) createLeaderElector(opt *containerConfig) (lock.LeaderElector, error) {
	if opt.elector != nil {
		return opt.elector, nil
	}
	log := c.Logger.Named(logger.Leader)
	switch c.Config.LeaderDriver {
	case config.StaticLeader:
		return lock.NewStaticLeaderElector(c.Config.StaticLeader), nil
	case config.PostgresAdvisory:
		if c.DB == nil {
			return nil, fmt.Errorf("postgres leader election needs a database connection")
		}
		return lock.NewPostgresLeaderElector(c.DB, constants.LeaderLock, log), nil
	case config.RedisLease:
		if c.Redis == nil {
			return nil, fmt.Errorf("redis leader election needs a redis client")
		}
		key := strings.Join([]string{c.Config.ClusterID, constants.LeaderKey}, c.Config.Delimiter)
		return lock.NewRedisLeaderElector(c.Redis, key, c.Config.NodeID, c.Config.LeaderLeaseTTL, log), nil
	default:
		return nil, fmt.Errorf("unsupported leader driver: %v", c.Config.LeaderDriver)
	}
}

package app

import (
	"database/sql"

	"github.com/RezaEskandarii/tide/internal/appmanager"
	"github.com/RezaEskandarii/tide/internal/lock"
	"github.com/RezaEskandarii/tide/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ContainerOption configures Container creation. Used for testing and customization.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	// Optional: inject custom connections instead of creating them from config.
	// Injected connections are left open by Close.
	db    *sql.DB
	redis *redis.Client

	store   store.Store
	elector lock.LeaderElector
	apps    appmanager.ApplicationManager
	logger  *zap.SugaredLogger
}

// WithDB injects a custom database connection. Useful for testing.
func WithDB(db *sql.DB) ContainerOption {
	return func(c *containerConfig) {
		c.db = db
	}
}

// WithRedis injects a custom Redis client. Useful for testing.
func WithRedis(redis *redis.Client) ContainerOption {
	return func(c *containerConfig) {
		c.redis = redis
	}
}

// WithStore replaces the store selected by the storage driver.
func WithStore(s store.Store) ContainerOption {
	return func(c *containerConfig) {
		c.store = s
	}
}

// WithLeaderElector replaces the elector selected by the leader driver.
func WithLeaderElector(e lock.LeaderElector) ContainerOption {
	return func(c *containerConfig) {
		c.elector = e
	}
}

// WithApplicationManager replaces the RabbitMQ backed application manager.
func WithApplicationManager(m appmanager.ApplicationManager) ContainerOption {
	return func(c *containerConfig) {
		c.apps = m
	}
}

func WithLogger(l *zap.SugaredLogger) ContainerOption {
	return func(c *containerConfig) {
		c.logger = l
	}
}

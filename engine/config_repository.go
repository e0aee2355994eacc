package engine

import (
	"database/sql"
	"errors"
	"sync"

	"github.com/go-redis/redis"
)

// ConfigRepository manages thread-safe access to configuration and the
// shared resources built from it
type ConfigRepository interface {
	GetConfig() *ConfigWorkspace
	GetRedisClient() *redis.Client
	GetDB() (*sql.DB, error)
	Close() error
}

// configRepository concrete implementation of the repository
type configRepository struct {
	mu          sync.RWMutex
	config      ConfigWorkspace
	redisClient *redis.Client
	db          *sql.DB
}

// NewConfigRepository creates a repository holding config. The composition
// root owns the instance and passes it to the components that need it.
func NewConfigRepository(config ConfigWorkspace) ConfigRepository {
	return &configRepository{config: config}
}

// GetConfig retrieves the configuration in a thread-safe manner
func (r *configRepository) GetConfig() *ConfigWorkspace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	// Return a copy to avoid external modifications
	configCopy := r.config
	return &configCopy
}

// GetRedisClient returns the redis client, building it on first use when a
// host is configured. nil means redis is disabled.
func (r *configRepository) GetRedisClient() *redis.Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.redisClient == nil && r.config.RedisConfig.Host != "" {
		rc := r.config.RedisConfig
		r.redisClient = redis.NewClient(&redis.Options{
			Addr:     rc.Host,
			Password: rc.Password,
			DB:       rc.DB,
			PoolSize: rc.MaxConnectionPool,
		})
	}
	return r.redisClient
}

// GetDB retrieves the database connection, creating it if necessary
func (r *configRepository) GetDB() (*sql.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		config := r.config.DatabaseConfig
		db, err := sql.Open(config.Driver, config.DSN)
		if err != nil {
			return nil, err
		}
		PoolSettingsFor(config).Apply(db)
		r.db = db
	}
	return r.db, nil
}

// Close releases the database and redis connections
func (r *configRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.db != nil {
		errs = append(errs, r.db.Close())
		r.db = nil
	}
	if r.redisClient != nil {
		errs = append(errs, r.redisClient.Close())
		r.redisClient = nil
	}
	return errors.Join(errs...)
}

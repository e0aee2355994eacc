package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PoolSettings are the database/sql pool limits applied when the
// repository opens the database
type PoolSettings struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// PoolSettingsFor returns the pool limits for a driver. A positive
// MaxOpenConns in the config overrides the driver default.
func PoolSettingsFor(config DatabaseConfig) PoolSettings {
	settings := PoolSettings{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	}

	switch config.Driver {
	case "sqlite3":
		// sqlite serializes writers anyway
		settings.MaxOpenConns = 1
		settings.MaxIdleConns = 1
	case "postgres":
		settings.MaxOpenConns = 50
		settings.MaxIdleConns = 10
	}

	if config.MaxOpenConns > 0 {
		settings.MaxOpenConns = config.MaxOpenConns
		if settings.MaxIdleConns > settings.MaxOpenConns {
			settings.MaxIdleConns = settings.MaxOpenConns
		}
	}
	return settings
}

// Apply configures db with the settings
func (s PoolSettings) Apply(db *sql.DB) {
	db.SetMaxOpenConns(s.MaxOpenConns)
	db.SetMaxIdleConns(s.MaxIdleConns)
	db.SetConnMaxLifetime(s.ConnMaxLifetime)
	db.SetConnMaxIdleTime(s.ConnMaxIdleTime)
}

// PingDB verifies the connection within timeout
func PingDB(db *sql.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}

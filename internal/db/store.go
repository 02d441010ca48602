package db

import (
	"fmt"

	"github.com/jmehdipour/sms-relay/internal/config"
	"github.com/jmoiron/sqlx"
)

// OpenSubscriberStore connects to the subscriber database selected by store.driver.
func OpenSubscriberStore(cfg config.Config) (*sqlx.DB, error) {
	switch cfg.Store.Driver {
	case "", "mysql":
		return NewMySQLConnection(cfg.MySQL.DSN, poolOpts(cfg.MySQL))
	case "sqlite", "sqlite3":
		return NewSQLiteConnection(cfg.SQLite.Path, cfg.SQLite.BusyTimeout)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

// OpenClickHouse connects to the broadcast archive.
func OpenClickHouse(cfg config.Config) (*sqlx.DB, error) {
	return NewClickHouseConnection(cfg.ClickHouse.DSN, poolOpts(cfg.ClickHouse))
}

func poolOpts(c config.DatabaseConfig) PoolOpts {
	return PoolOpts{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
		PingTimeout:     c.PingTimeout,
	}
}

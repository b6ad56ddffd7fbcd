package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"smartflow/internal/config"
)

const (
	ProviderPostgres = "postgres"
	ProviderSQLite   = "sqlite"
)

type DB struct {
	Gorm     *gorm.DB
	SQL      *sql.DB
	Provider string
}

func Open(cfg config.DBConfig) (*DB, error) {
	gcfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	var dialector gorm.Dialector
	switch provider {
	case "", ProviderPostgres, "postgresql":
		provider = ProviderPostgres
		dialector = postgres.Open(cfg.DSN)
	case ProviderSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown db provider %q", cfg.Provider)
	}

	gdb, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, err
	}

	sqldb, err := gdb.DB()
	if err != nil {
		return nil, err
	}

	if provider == ProviderSQLite {
		// sqlite serialises writers; a single connection also keeps in-memory databases shared.
		sqldb.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &DB{Gorm: gdb, SQL: sqldb, Provider: provider}, nil
}

func Close(db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Close()
}

func Ping(db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Ping()
}

// SetTimezone applies the session timezone. sqlite has no session timezone.
func SetTimezone(db *DB, tz string) error {
	if tz == "" || db == nil || db.Provider != ProviderPostgres {
		return nil
	}
	_, err := db.SQL.Exec("SET TIME ZONE '" + strings.ReplaceAll(tz, "'", "") + "'")
	return err
}

package database

import (
	"fmt"
	"strings"

	"crm-backend/pkg/config"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the database named by DATABASE_URL. URLs starting with
// "sqlite://" or "file:" open an embedded SQLite database for local runs.
func Open(cfg *config.Config) (*gorm.DB, error) {
	switch {
	case strings.HasPrefix(cfg.DatabaseURL, "sqlite://"):
		return NewSQLiteConnection(strings.TrimPrefix(cfg.DatabaseURL, "sqlite://"))
	case strings.HasPrefix(cfg.DatabaseURL, "file:"):
		return NewSQLiteConnection(cfg.DatabaseURL)
	}
	return NewPostgresConnection(cfg.DatabaseURL)
}

// NewPostgresConnection opens the primary database. Driver errors are
// translated, so unique violations surface as gorm.ErrDuplicatedKey.
func NewPostgresConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// NewSQLiteConnection opens a SQLite database. A single connection is kept so
// in-memory databases are shared by every caller.
func NewSQLiteConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

package database

import (
	"fmt"
	"time"

	"savefi/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database owns the GORM connection lifecycle. It is created by the process
// entry point and injected into repositories; there is no package-global
// connection state.
type Database struct {
	dsn string
	db  *gorm.DB
}

// New creates a Database for the given DSN without connecting.
func New(dsn string) *Database {
	return &Database{dsn: dsn}
}

// Connect opens the connection and tunes the underlying pool.
// Calling Connect on an already-connected Database is a no-op.
func (d *Database) Connect() error {
	if d.IsConnected() {
		return nil
	}

	db, err := gorm.Open(postgres.Open(d.dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	d.db = db
	return nil
}

// IsConnected reports whether the database is reachable.
func (d *Database) IsConnected() bool {
	if d.db == nil {
		return false
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.Ping() == nil
}

// DB returns the underlying GORM handle. It is nil before Connect succeeds.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Migrate runs AutoMigrate for all persistent models.
func (d *Database) Migrate() error {
	if d.db == nil {
		return fmt.Errorf("database is not connected")
	}
	return d.db.AutoMigrate(&models.User{})
}

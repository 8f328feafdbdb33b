package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultPath is where the session database lives unless configured otherwise.
var DefaultPath = filepath.Join(os.Getenv("HOME"), ".fintrack/session.db")

// Entry is a single key/value pair in the durable store.
type Entry struct {
	Key   string `gorm:"primaryKey" json:"key"`
	Value string `json:"value"`
}

// TableName pins the table name so renaming the struct never orphans stored sessions.
func (Entry) TableName() string { return "kv_entries" }

// Open opens (or creates) the SQLite database at path and migrates the schema.
// It returns an error if any step in the initialization process fails.
func Open(path string) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}

	if err := createDBDirectory(path); err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to open database")
		return nil, err
	}

	if err := gdb.AutoMigrate(&Entry{}); err != nil {
		log.Error().Err(err).Msg("Failed to auto-migrate database")
		return nil, err
	}

	configureLogger(gdb)

	log.Debug().Str("path", path).Msg("Database initialized successfully")
	return gdb, nil
}

// createDBDirectory creates the parent directory of the database file if it does not exist.
func createDBDirectory(path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			log.Error().Err(err).Str("dir", dir).Msg("Failed to create database directory")
			return err
		}
	}
	return nil
}

// configureLogger silences GORM unless debug logging is enabled.
func configureLogger(gdb *gorm.DB) {
	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		gdb.Logger = gdb.Logger.LogMode(logger.Silent)
	} else {
		gdb.Logger = gdb.Logger.LogMode(logger.Info)
	}
}

// Close closes the underlying SQL connection.
func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get raw database connection")
		return err
	}
	return sqlDB.Close()
}

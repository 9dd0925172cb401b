package database

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds database configuration
// ARCHITECTURAL DISCOVERY: Configuration struct provides all database settings
// needed for production deployment without hardcoded values
type Config struct {
	DatabasePath    string        `json:"database_path" yaml:"database_path"`
	MaxConnections  int           `json:"max_connections" yaml:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`

	// MigrationsPath overrides the migrations compiled into the binary
	MigrationsPath string `json:"migrations_path,omitempty" yaml:"migrations_path,omitempty"`
}

// DefaultConfig returns production-ready database configuration
// FUNCTIONAL DISCOVERY: SQLite performs optimally with 10 connections; only
// session metadata and role assignments are written, so writes are rare
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    "./data/syncboard.db",
		MaxConnections:  10, // SQLite recommended limit for concurrent access
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 10,
	}
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("database path cannot be empty")
	}
	if c.MaxConnections <= 0 {
		return errors.New("max connections must be greater than 0")
	}
	if c.ConnMaxLifetime <= 0 {
		return errors.New("connection max lifetime must be greater than 0")
	}
	if c.ConnMaxIdleTime <= 0 {
		return errors.New("connection max idle time must be greater than 0")
	}
	return nil
}

// Open opens the SQLite database with the configured pool limits and pragmas
func Open(c *Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", c.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(c.MaxConnections)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)
	db.SetConnMaxIdleTime(c.ConnMaxIdleTime)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// SQLite pragmas
// ARCHITECTURAL DISCOVERY: WAL mode enables concurrent reads while maintaining
// single-writer pattern required by DatabaseManager implementation
var sqliteOptimizations = []string{
	"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for better concurrency
	"PRAGMA synchronous = NORMAL", // Balance between safety and performance
	"PRAGMA cache_size = -16000",  // 16MB cache (negative = KB)
	"PRAGMA temp_store = MEMORY",  // Use memory for temporary tables
	"PRAGMA foreign_keys = ON",    // Enforce foreign key constraints
	"PRAGMA busy_timeout = 5000",  // 5 second timeout for locked database
}

func applySQLiteOptimizations(db *sql.DB) error {
	for _, pragma := range sqliteOptimizations {
		if _, err := db.Exec(pragma); err != nil {
			return err
		}
	}
	return nil
}

package persistence

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrStoreClosed   = errors.New("store is closed")
	ErrInvalidInput  = errors.New("invalid input")

	// ErrStorage wraps underlying file or database failures. The layer does
	// not retry; callers may.
	ErrStorage = errors.New("storage failure")

	// ErrMigration halts durable-adapter initialization when a schema
	// statement fails. Serving against a partially migrated schema is not
	// supported.
	ErrMigration = errors.New("migration failed")
)

// BackendKind identifies a backend adapter implementation.
type BackendKind string

const (
	BackendMemory   BackendKind = "memory"
	BackendPostgres BackendKind = "postgres"
)

// Config selects and parameterizes the backend adapter.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string. When set, the
	// durable backend is used; otherwise the in-process backend.
	DatabaseURL string `json:"database_url" yaml:"database_url"`

	// SnapshotPath is the JSON snapshot file for the in-process backend.
	SnapshotPath string `json:"snapshot_path" yaml:"snapshot_path"`

	// FlushInterval is how often the in-process backend writes a dirty
	// snapshot to disk. Zero disables the background flusher; the state is
	// still flushed on Stop and by explicit Flush calls.
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`

	// Connection pool settings for the durable backend.
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// DefaultConfig returns the default persistence configuration.
func DefaultConfig() Config {
	return Config{
		SnapshotPath:    "./data/agentstate.json",
		FlushInterval:   5 * time.Second,
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// Kind returns the backend kind the configuration selects.
func (c Config) Kind() BackendKind {
	if c.DatabaseURL != "" {
		return BackendPostgres
	}
	return BackendMemory
}

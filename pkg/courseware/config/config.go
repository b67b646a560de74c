// Package config builds a courseware.Service from server configuration.
// Defaults give a fully in-memory stack; options and environment
// overrides switch in postgres persistence and S3 blob storage.
package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillstream/courseware/pkg/courseware"
	"github.com/skillstream/courseware/pkg/courseware/repo/memory"
	repopg "github.com/skillstream/courseware/pkg/courseware/repo/postgres"
	fsstorage "github.com/skillstream/courseware/pkg/courseware/storage/fs"
	memorystorage "github.com/skillstream/courseware/pkg/courseware/storage/memory"
	s3storage "github.com/skillstream/courseware/pkg/courseware/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top
// of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:                  "8080",
		Environment:           "development",
		DatabaseType:          "memory",
		DefaultStorageBackend: "memory",
		StorageBackends: []StorageBackendConfig{
			{Name: "memory", Type: "memory"},
		},
		ReplicateConcurrency: 8,
	}
}

// ServerConfig represents server configuration for the courseware service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"

	// Storage configuration
	DefaultStorageBackend string
	StorageBackends       []StorageBackendConfig

	// Admin user ids granted the owner bypass
	AdminIDs []uuid.UUID

	// JWT secret for the HTTP surface
	JWTSecret string

	// Fork replication fan-out bound
	ReplicateConcurrency int
}

// StorageBackendConfig represents configuration for a storage backend
type StorageBackendConfig struct {
	Name string
	Type string // "memory", "fs", "s3"
	FS   fsstorage.Config
	S3   s3storage.Config
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	found := false
	for _, backend := range c.StorageBackends {
		if backend.Name == c.DefaultStorageBackend {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("default storage backend '%s' not found in configured backends", c.DefaultStorageBackend)
	}
	return nil
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context) (courseware.Service, error) {
	var options []courseware.Option

	repo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	options = append(options, courseware.WithRepository(repo))

	for _, backendConfig := range c.StorageBackends {
		store, err := buildStorageBackend(backendConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build storage backend %s: %w", backendConfig.Name, err)
		}
		options = append(options, courseware.WithBlobStore(backendConfig.Name, store))
	}
	options = append(options, courseware.WithDefaultBackend(c.DefaultStorageBackend))

	if len(c.AdminIDs) > 0 {
		options = append(options, courseware.WithIdentity(courseware.NewStaticAdmins(c.AdminIDs...)))
	}
	if c.ReplicateConcurrency > 0 {
		options = append(options, courseware.WithReplicateConcurrency(c.ReplicateConcurrency))
	}

	return courseware.New(options...)
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context) (courseware.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "postgres":
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// buildStorageBackend creates a BlobStore based on the backend config
func buildStorageBackend(cfg StorageBackendConfig) (courseware.BlobStore, error) {
	switch cfg.Type {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(cfg.FS)
	case "s3":
		return s3storage.New(cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", cfg.Type)
	}
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Environment variable mapping:
//
//	PORT                - Server port (default: "8080")
//	ENVIRONMENT         - Runtime environment (default: "development")
//	DATABASE_URL        - "memory" (default) or a postgres:// connection string
//	STORAGE_URL         - "memory://" (default), "fs:///path?url_prefix=..."
//	                      or "s3://bucket?region=...&endpoint=..."
//	ADMIN_IDS           - Comma-separated admin user uuids
//	JWT_SECRET          - HMAC secret for the HTTP surface
//	REPLICATE_CONCURRENCY - Fork replication fan-out bound
//
// S3 credentials come from AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY /
// AWS_REGION as usual.
func WithEnv(prefix string) Option {
	return func(c *ServerConfig) error {
		if v, ok := lookupEnv(prefix, "PORT"); ok && v != "" {
			c.Port = v
		}
		if v, ok := lookupEnv(prefix, "ENVIRONMENT"); ok && v != "" {
			c.Environment = v
		}
		if v, ok := lookupEnv(prefix, "JWT_SECRET"); ok && v != "" {
			c.JWTSecret = v
		}

		if v, ok := lookupEnv(prefix, "REPLICATE_CONCURRENCY"); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer for %sREPLICATE_CONCURRENCY: %w", prefix, err)
			}
			c.ReplicateConcurrency = n
		}

		if err := applyAdminEnv(prefix, c); err != nil {
			return err
		}
		if err := applyDatabaseEnv(prefix, c); err != nil {
			return err
		}
		if err := applyStorageEnv(prefix, c); err != nil {
			return err
		}
		return nil
	}
}

func applyAdminEnv(prefix string, c *ServerConfig) error {
	raw, ok := lookupEnv(prefix, "ADMIN_IDS")
	if !ok || raw == "" {
		return nil
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return fmt.Errorf("invalid admin id %q: %w", part, err)
		}
		c.AdminIDs = append(c.AdminIDs, id)
	}
	return nil
}

// applyDatabaseEnv applies database configuration from environment
func applyDatabaseEnv(prefix string, c *ServerConfig) error {
	dbURL, hasURL := lookupEnv(prefix, "DATABASE_URL")

	if !hasURL || dbURL == "" || dbURL == "memory" {
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
		return nil
	}

	if strings.HasPrefix(dbURL, "postgresql://") || strings.HasPrefix(dbURL, "postgres://") {
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
		return nil
	}
	return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
}

// applyStorageEnv applies storage configuration from environment
// Format: memory:// or s3://bucket?region=us-east-1&endpoint=http://localhost:9000&path_style=true
func applyStorageEnv(prefix string, c *ServerConfig) error {
	storageURL, hasURL := lookupEnv(prefix, "STORAGE_URL")

	if !hasURL || storageURL == "" || storageURL == "memory" || storageURL == "memory://" {
		c.DefaultStorageBackend = "memory"
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
			Name: "memory",
			Type: "memory",
		})
		return nil
	}

	if strings.HasPrefix(storageURL, "fs://") {
		return applyFSStorage(storageURL, c)
	}
	if strings.HasPrefix(storageURL, "s3://") {
		return applyS3Storage(storageURL, c)
	}
	return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'fs://...' or 's3://...')", storageURL)
}

// applyFSStorage parses fs:///var/data/blobs?url_prefix=http://host/files
func applyFSStorage(rawURL string, c *ServerConfig) error {
	rest := strings.TrimPrefix(rawURL, "fs://")
	baseDir, query, _ := strings.Cut(rest, "?")
	if baseDir == "" {
		return fmt.Errorf("base directory cannot be empty in STORAGE_URL")
	}

	backend := StorageBackendConfig{Name: "fs", Type: "fs"}
	backend.FS.BaseDir = baseDir

	for _, pair := range strings.Split(query, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || value == "" {
			continue
		}
		if key == "url_prefix" {
			prefix, err := url.QueryUnescape(value)
			if err != nil {
				return fmt.Errorf("invalid url_prefix in STORAGE_URL: %w", err)
			}
			backend.FS.URLPrefix = prefix
		}
	}

	c.DefaultStorageBackend = "fs"
	c.StorageBackends = upsertStorageBackend(c.StorageBackends, backend)
	return nil
}

func applyS3Storage(rawURL string, c *ServerConfig) error {
	rest := strings.TrimPrefix(rawURL, "s3://")
	bucket, query, _ := strings.Cut(rest, "?")
	if bucket == "" {
		return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
	}

	backend := StorageBackendConfig{Name: "s3", Type: "s3"}
	backend.S3.Bucket = bucket
	backend.S3.Region = "us-east-1"

	for _, pair := range strings.Split(query, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || value == "" {
			continue
		}
		switch key {
		case "region":
			backend.S3.Region = value
		case "endpoint":
			backend.S3.Endpoint = value
		case "path_style":
			pathStyle, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid path_style in STORAGE_URL: %w", err)
			}
			backend.S3.UsePathStyle = pathStyle
		case "presign_ttl":
			ttl, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid presign_ttl in STORAGE_URL: %w", err)
			}
			backend.S3.PresignDuration = ttl
		}
	}

	if accessKey, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok && accessKey != "" {
		backend.S3.AccessKeyID = accessKey
	}
	if secretKey, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok && secretKey != "" {
		backend.S3.SecretAccessKey = secretKey
	}
	if region, ok := os.LookupEnv("AWS_REGION"); ok && region != "" {
		backend.S3.Region = region
	}

	c.DefaultStorageBackend = "s3"
	c.StorageBackends = upsertStorageBackend(c.StorageBackends, backend)
	return nil
}

func lookupEnv(prefix, key string) (string, bool) {
	return os.LookupEnv(prefix + key)
}

func upsertStorageBackend(backends []StorageBackendConfig, backend StorageBackendConfig) []StorageBackendConfig {
	for i := range backends {
		if backends[i].Name == backend.Name {
			backends[i] = backend
			return backends
		}
	}
	return append(backends, backend)
}

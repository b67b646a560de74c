package config

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "memory", cfg.DatabaseType)
	assert.Equal(t, "memory", cfg.DefaultStorageBackend)
	assert.Equal(t, 8, cfg.ReplicateConcurrency)
}

func TestLoadAppliesOptionsInOrder(t *testing.T) {
	cfg, err := Load(
		func(c *ServerConfig) error { c.Port = "9000"; return nil },
		func(c *ServerConfig) error { c.Port = "9001"; return nil },
		nil,
	)
	require.NoError(t, err)
	assert.Equal(t, "9001", cfg.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*ServerConfig)
		expectError bool
	}{
		{
			name:        "defaults are valid",
			mutate:      func(c *ServerConfig) {},
			expectError: false,
		},
		{
			name:        "empty port",
			mutate:      func(c *ServerConfig) { c.Port = "" },
			expectError: true,
		},
		{
			name:        "unknown database type",
			mutate:      func(c *ServerConfig) { c.DatabaseType = "sqlite" },
			expectError: true,
		},
		{
			name:        "postgres without url",
			mutate:      func(c *ServerConfig) { c.DatabaseType = "postgres" },
			expectError: true,
		},
		{
			name:        "default backend not configured",
			mutate:      func(c *ServerConfig) { c.DefaultStorageBackend = "s3" },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuildServiceMemoryStack(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	cfg.AdminIDs = []uuid.UUID{uuid.New()}

	svc, err := cfg.BuildService(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestBuildServiceRejectsUnknownStorageType(t *testing.T) {
	cfg := defaults()
	cfg.StorageBackends = []StorageBackendConfig{{Name: "memory", Type: "tape"}}

	_, err := cfg.BuildService(context.Background())
	assert.Error(t, err)
}

package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/skillstream/courseware/pkg/courseware"
)

// Backend is an in-memory implementation of the courseware.BlobStore
// interface, used by tests and the dev server. Signed URLs are synthetic
// but deterministic for a given key.
type Backend struct {
	mu        sync.RWMutex
	blobs     map[string][]byte
	mimeTypes map[string]string
	updatedAt map[string]time.Time
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		blobs:     make(map[string][]byte),
		mimeTypes: make(map[string]string),
		updatedAt: make(map[string]time.Time),
	}
}

// Put uploads content under the given key
func (b *Backend) Put(ctx context.Context, key string, reader io.Reader, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	b.blobs[key] = data
	b.mimeTypes[key] = contentType
	b.updatedAt[key] = time.Now().UTC()
	return nil
}

// Stat returns metadata for a stored blob
func (b *Backend) Stat(ctx context.Context, key string) (*courseware.BlobMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.blobs[key]
	if !exists {
		return nil, errors.New("blob not found")
	}
	return &courseware.BlobMeta{
		Key:         key,
		Size:        int64(len(data)),
		ContentType: b.mimeTypes[key],
		UpdatedAt:   b.updatedAt[key],
	}, nil
}

// SignedReadURL returns a synthetic URL for the blob
func (b *Backend) SignedReadURL(ctx context.Context, key string, downloadFilename string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, exists := b.blobs[key]; !exists {
		return "", errors.New("blob not found")
	}
	u := fmt.Sprintf("memory://blobs/%s", key)
	if downloadFilename != "" {
		u += "?filename=" + url.QueryEscape(downloadFilename)
	}
	return u, nil
}

// Delete removes a blob
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.blobs[key]; !exists {
		return errors.New("blob not found")
	}
	delete(b.blobs, key)
	delete(b.mimeTypes, key)
	delete(b.updatedAt, key)
	return nil
}

// Read returns the stored bytes for a key; test helper.
func (b *Backend) Read(key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.blobs[key]
	if !exists {
		return nil, errors.New("blob not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

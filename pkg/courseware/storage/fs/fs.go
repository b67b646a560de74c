// Package fs provides a filesystem implementation of the courseware
// BlobStore interface, suitable for single-node deployments and local
// development with durable uploads.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/skillstream/courseware/pkg/courseware"
)

// Backend stores blobs as files under a base directory, mirroring the
// object key layout on disk.
type Backend struct {
	baseDir   string
	urlPrefix string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir   string // Base directory for storing files
	URLPrefix string // URL prefix the serving layer exposes files under
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{
		baseDir:   config.BaseDir,
		urlPrefix: strings.TrimSuffix(config.URLPrefix, "/"),
	}, nil
}

func (b *Backend) path(key string) (string, error) {
	cleaned := filepath.Clean("/" + key)
	if cleaned == "/" {
		return "", errors.New("empty blob key")
	}
	return filepath.Join(b.baseDir, cleaned), nil
}

// Put writes the blob to disk, creating the key's directory structure as
// needed.
func (b *Backend) Put(ctx context.Context, key string, reader io.Reader, contentType string) error {
	filePath, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Stat returns metadata for a stored blob. The content type is sniffed
// from the file since the filesystem does not store it.
func (b *Backend) Stat(ctx context.Context, key string) (*courseware.BlobMeta, error) {
	filePath, err := b.path(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, errors.New("blob not found")
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	contentType := "application/octet-stream"
	if file, err := os.Open(filePath); err == nil {
		defer file.Close()
		buffer := make([]byte, 512)
		if n, err := file.Read(buffer); err == nil {
			contentType = http.DetectContentType(buffer[:n])
		}
	}

	return &courseware.BlobMeta{
		Key:         key,
		Size:        info.Size(),
		ContentType: contentType,
		UpdatedAt:   info.ModTime(),
	}, nil
}

// SignedReadURL returns a download URL under the configured prefix. The
// serving layer in front of the base directory handles the actual reads.
func (b *Backend) SignedReadURL(ctx context.Context, key string, downloadFilename string) (string, error) {
	if b.urlPrefix == "" {
		return "", errors.New("filesystem backend has no url prefix configured")
	}
	if _, err := b.Stat(ctx, key); err != nil {
		return "", err
	}

	u := fmt.Sprintf("%s/download/%s", b.urlPrefix, key)
	if downloadFilename != "" {
		u += "?filename=" + url.QueryEscape(downloadFilename)
	}
	return u, nil
}

// Delete removes the blob and prunes any directories the removal left
// empty.
func (b *Backend) Delete(ctx context.Context, key string) error {
	filePath, err := b.path(key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return errors.New("blob not found")
	}
	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// cleanupEmptyDirectories recursively removes empty directories up to
// the base directory.
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir {
		return
	}
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}

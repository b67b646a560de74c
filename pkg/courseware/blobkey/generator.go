// Package blobkey generates object keys for course assets. Keys are
// opaque to the engine; generators only decide layout inside the bucket.
package blobkey

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator defines the interface for blob key generation strategies
type Generator interface {
	// GenerateKey creates the storage key for an uploaded course asset
	GenerateKey(courseID, assetID uuid.UUID, fileName string) string
}

// ShardedGenerator produces course-scoped, shard-prefixed keys:
//
//	courses/{courseID}/assets/ab/cdef1234..._{filename}
//
// The shard comes from the random asset id, so keys distribute evenly
// regardless of upload order.
type ShardedGenerator struct {
	// ShardLength controls how many hex characters form the shard
	// directory (default: 2)
	ShardLength int
}

// NewShardedGenerator returns a generator with the default shard length.
func NewShardedGenerator() *ShardedGenerator {
	return &ShardedGenerator{ShardLength: 2}
}

func (g *ShardedGenerator) GenerateKey(courseID, assetID uuid.UUID, fileName string) string {
	hexID := strings.ReplaceAll(assetID.String(), "-", "")

	shardLen := g.ShardLength
	if shardLen <= 0 || shardLen > len(hexID) {
		shardLen = 2
	}
	shard := hexID[:shardLen]
	rest := hexID[shardLen:]

	name := rest
	if fileName != "" {
		name = fmt.Sprintf("%s_%s", rest, sanitizeFileName(fileName))
	}

	return fmt.Sprintf("courses/%s/assets/%s/%s", courseID, shard, name)
}

// FlatGenerator keeps the older flat layout for buckets that predate
// sharding.
type FlatGenerator struct{}

func (FlatGenerator) GenerateKey(courseID, assetID uuid.UUID, fileName string) string {
	if fileName != "" {
		return fmt.Sprintf("courses/%s/%s/%s", courseID, assetID, sanitizeFileName(fileName))
	}
	return fmt.Sprintf("courses/%s/%s", courseID, assetID)
}

func sanitizeFileName(fileName string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return replacer.Replace(fileName)
}

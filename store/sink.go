// Package store persists run evidence: captured frames, status records,
// and report copies. The default backend is the local filesystem; an S3
// backend uploads the same keys for pipeline runs without durable disks.
package store

import "context"

// Sink writes evidence objects under hierarchical keys ("frames/A/....png").
type Sink interface {
	// Put writes one object. Keys use forward slashes on all platforms.
	Put(ctx context.Context, key string, data []byte) error

	// Close releases sink resources.
	Close() error
}

// Package cache stores extracted documents keyed by URL and extract mode.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/use-agent/skimmer/models"
)

// Store is the document cache the pipeline consults before fetching. A miss
// and a backend error look the same to the caller: ok=false. Implementations
// must be safe for concurrent use.
type Store interface {
	// Get returns the cached document if it exists and is younger than
	// maxAge. maxAge <= 0 disables the lookup.
	Get(ctx context.Context, key string, maxAge time.Duration) (*models.Document, bool)

	// Set stores a document under key for ttl.
	Set(ctx context.Context, key string, doc *models.Document, ttl time.Duration)

	// Len returns the number of live entries, where the backend can say.
	Len() int
}

// Key generates a cache key from the URL and extract mode.
func Key(url string, mode models.ExtractMode) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(mode))
	return hex.EncodeToString(h.Sum(nil))
}

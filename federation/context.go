package federation

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Resolver fetches and parses a federated object from its canonical URI or
// from an @username@host handle (resolved via webfinger).
type Resolver interface {
	Resolve(ctx context.Context, id string) (*Object, error)
}

// KeyValueCache is any TTL-capable key-value store. Get returns (nil, nil)
// on a miss; only infrastructure failures surface as errors.
type KeyValueCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CountFetcher performs a best-effort read of a remote collection's
// totalItems. Returns nil on any failure instead of an error.
type CountFetcher interface {
	FetchCount(ctx context.Context, uri string) *int
}

// ErrNotFound marks caller-input errors: the target of a request (an
// actor, a collection) does not exist or cannot be resolved. Routers
// translate it into a 404; everything else degrades silently.
var ErrNotFound = errors.New("federated object not found")

// Context bundles the capabilities the federation core consumes. It is
// constructed once at startup and passed explicitly; no package-level
// state exists.
type Context struct {
	resolver Resolver
	cache    KeyValueCache
	counts   CountFetcher
	log      zerolog.Logger

	cacheTTL     time.Duration
	feedPageSize int
}

// NewContext wires a federation context from its collaborators. cacheTTL
// falls back to 300s, feedPageSize to 20 when zero.
func NewContext(resolver Resolver, cache KeyValueCache, counts CountFetcher, logger zerolog.Logger, cacheTTL time.Duration, feedPageSize int) *Context {
	if cacheTTL <= 0 {
		cacheTTL = 300 * time.Second
	}
	if feedPageSize <= 0 {
		feedPageSize = 20
	}
	return &Context{
		resolver:     resolver,
		cache:        cache,
		counts:       counts,
		log:          logger,
		cacheTTL:     cacheTTL,
		feedPageSize: feedPageSize,
	}
}

// FeedPageSize returns the default page size for the merged feed.
func (fc *Context) FeedPageSize() int {
	return fc.feedPageSize
}

// PaginatedList is the response shape of every collection endpoint. Next
// is set if and only if more data exists; its value is a self-describing
// continuation token (base64url page URI or decimal millisecond cursor).
type PaginatedList[T any] struct {
	Items []T    `json:"items"`
	Next  string `json:"next,omitempty"`
	Count *int   `json:"count,omitempty"`
}

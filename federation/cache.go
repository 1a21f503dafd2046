package federation

import (
	"context"
)

// cacheKeyPrefix namespaces object cache entries inside the shared
// key-value store. The format "fedobj:" + <URI or handle> is shared with
// co-deployed instances and must not change.
const cacheKeyPrefix = "fedobj:"

func cacheKey(id string) string {
	return cacheKeyPrefix + id
}

// cacheable reports whether an object kind is worth storing. Collections
// and pages are deliberately excluded: they are cursors over changing
// data and caching them would serve stale continuations.
func cacheable(kind Kind) bool {
	switch kind {
	case KindActor, KindNote, KindDocument, KindVideo, KindImage:
		return true
	default:
		return false
	}
}

// Lookup returns the federated object for a URI or @user@host handle,
// reading through the object cache. It never returns an error: any
// resolution or parse failure is logged and surfaces as nil. With bypass
// set the cache read is skipped (the store is still refreshed on a
// successful fetch).
func (fc *Context) Lookup(ctx context.Context, id string, bypass bool) *Object {
	if id == "" {
		return nil
	}

	if !bypass {
		if obj := fc.cachedObject(ctx, id); obj != nil {
			return obj
		}
	}

	obj, err := fc.resolver.Resolve(ctx, id)
	if err != nil {
		fc.log.Warn().Err(err).Str("id", id).Msg("Lookup: remote resolution failed")
		return nil
	}
	if obj == nil {
		return nil
	}

	if cacheable(obj.Kind) {
		if err := fc.cache.Set(ctx, cacheKey(id), obj.Raw, fc.cacheTTL); err != nil {
			fc.log.Warn().Err(err).Str("id", id).Msg("Lookup: cache write failed")
		}
	}

	return obj
}

// cachedObject reads and deserializes a cache entry. Corrupt payloads are
// treated as a miss.
func (fc *Context) cachedObject(ctx context.Context, id string) *Object {
	data, err := fc.cache.Get(ctx, cacheKey(id))
	if err != nil {
		fc.log.Warn().Err(err).Str("id", id).Msg("Lookup: cache read failed")
		return nil
	}
	if data == nil {
		return nil
	}

	obj, err := ParseObject(data)
	if err != nil {
		fc.log.Warn().Err(err).Str("id", id).Msg("Lookup: corrupt cache entry, treating as miss")
		return nil
	}
	fc.log.Debug().Str("id", id).Msg("Lookup: cache hit")
	return obj
}

// Invalidate evicts a cache entry and returns whatever object it held so
// callers can still read the old value (e.g. an actor's inbox URL during
// an unfollow). For actors the handle-keyed alias entry is deleted as
// well. Both deletions are best effort.
func (fc *Context) Invalidate(ctx context.Context, id string) *Object {
	obj := fc.cachedObject(ctx, id)

	if err := fc.cache.Delete(ctx, cacheKey(id)); err != nil {
		fc.log.Warn().Err(err).Str("id", id).Msg("Invalidate: delete failed")
	}

	if obj != nil && obj.Kind == KindActor {
		// An actor may sit under both its canonical URI and its handle;
		// evict whichever alias differs from the key just deleted.
		for _, alias := range []string{obj.ID, obj.Handle()} {
			if alias == "" || alias == id {
				continue
			}
			if err := fc.cache.Delete(ctx, cacheKey(alias)); err != nil {
				fc.log.Warn().Err(err).Str("alias", alias).Msg("Invalidate: alias delete failed")
			}
		}
	}

	return obj
}

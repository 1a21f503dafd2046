package federation

import (
	"context"
)

// CollectionResult is one page worth of resolved collection items. Next is
// the URI of the following page, empty when the chain ends here.
type CollectionResult struct {
	Items []*Object
	Next  string
}

// resolveRef materializes an item reference: embedded objects are used
// as-is, bare URIs go through the object cache.
func (fc *Context) resolveRef(ctx context.Context, ref *Ref) *Object {
	if ref.IsZero() {
		return nil
	}
	if ref.Object != nil {
		return ref.Object
	}
	return fc.Lookup(ctx, ref.URI, false)
}

// ReadCollection normalizes one collection or page into a flat item list.
//
// A root Collection is never iterated directly: when it exposes a first
// page, that page is read instead. Item references that fail to resolve
// are dropped and iteration continues; the next cursor is only taken from
// CollectionPage inputs since a root Collection has no next of its own.
// Partial results are always preferred over a hard failure.
func (fc *Context) ReadCollection(ctx context.Context, col *Object) CollectionResult {
	if !col.IsCollection() {
		return CollectionResult{}
	}

	// Descend into the first page of a root collection.
	if col.Kind == KindCollection && !col.Collection.First.IsZero() {
		first := fc.resolveRef(ctx, col.Collection.First)
		if first == nil || !first.IsCollection() {
			fc.log.Warn().Str("collection", col.ID).Msg("ReadCollection: first page did not resolve")
			return CollectionResult{}
		}
		return fc.ReadCollection(ctx, first)
	}

	items := make([]*Object, 0, len(col.Collection.Items))
	for _, ref := range col.Collection.Items {
		obj := fc.resolveRef(ctx, ref)
		if obj == nil {
			fc.log.Warn().Str("item", ref.URI).Str("collection", col.ID).Msg("ReadCollection: dropping unresolvable item")
			continue
		}
		items = append(items, obj)
	}

	next := ""
	if col.Kind == KindCollectionPage && !col.Collection.Next.IsZero() {
		next = col.Collection.Next.URI
	}

	return CollectionResult{Items: items, Next: next}
}

// ReadEntireCollection follows a collection's page chain to the end and
// accumulates every item. Page following terminates when no next
// reference remains, when a next URI fails to resolve to a collection, or
// when a page repeats (defends against referencing loops). Only intended
// for bounded collections such as a viewer's own following list.
func (fc *Context) ReadEntireCollection(ctx context.Context, col *Object) []*Object {
	var all []*Object

	seen := make(map[string]bool)
	current := col
	for current != nil {
		if current.ID != "" {
			if seen[current.ID] {
				fc.log.Warn().Str("page", current.ID).Msg("ReadEntireCollection: page cycle detected, stopping")
				break
			}
			seen[current.ID] = true
		}

		result := fc.ReadCollection(ctx, current)
		all = append(all, result.Items...)

		if result.Next == "" || seen[result.Next] {
			break
		}

		next := fc.Lookup(ctx, result.Next, false)
		if next == nil || !next.IsCollection() {
			// Implicit termination, not an error.
			break
		}
		current = next
	}

	return all
}

// CollectionItem is one slot of a mapped collection page. A non-empty
// Skipped reason marks a slot whose reference or mapping failed; the
// zero Value in that slot must be ignored.
type CollectionItem[T any] struct {
	Value   T
	Skipped string
}

// CollectionSlice is the result of CollectionItems: mapped slots, the
// remote total (falling back to the slot count when the collection omits
// totalItems), and the continuation page URI.
type CollectionSlice[T any] struct {
	Items []CollectionItem[T]
	Total int
	Next  string
}

// Values returns the successfully mapped items in order, skipped slots
// removed.
func (s CollectionSlice[T]) Values() []T {
	out := make([]T, 0, len(s.Items))
	for _, item := range s.Items {
		if item.Skipped == "" {
			out = append(out, item.Value)
		}
	}
	return out
}

// CollectionItems reads one page of the collection at source and maps each
// resolved item through fn. With a pageToken the walk resumes from that
// specific page; an invalid token falls back to the collection's first
// page rather than failing. Per-item mapping failures produce skipped
// slots, never abort the batch.
func CollectionItems[T any](ctx context.Context, fc *Context, source string, pageToken string, fn func(context.Context, *Object) (T, error)) (CollectionSlice[T], error) {
	var start *Object
	total := 0

	if pageToken != "" {
		start = fc.Lookup(ctx, pageToken, false)
		if start == nil || !start.IsCollection() {
			fc.log.Warn().Str("token", pageToken).Msg("CollectionItems: bad page token, restarting from first page")
			start = nil
		}
	}

	if start == nil {
		root := fc.Lookup(ctx, source, false)
		if root == nil || !root.IsCollection() {
			return CollectionSlice[T]{}, ErrNotFound
		}
		if root.Collection.TotalItems != nil {
			total = *root.Collection.TotalItems
		}
		start = root
	} else if start.Collection.TotalItems != nil {
		total = *start.Collection.TotalItems
	}

	result := fc.ReadCollection(ctx, start)

	items := make([]CollectionItem[T], 0, len(result.Items))
	for _, obj := range result.Items {
		value, err := fn(ctx, obj)
		if err != nil {
			fc.log.Warn().Err(err).Str("item", obj.ID).Msg("CollectionItems: mapping failed, skipping slot")
			items = append(items, CollectionItem[T]{Skipped: err.Error()})
			continue
		}
		items = append(items, CollectionItem[T]{Value: value})
	}

	if total == 0 {
		total = len(items)
	}

	return CollectionSlice[T]{Items: items, Total: total, Next: result.Next}, nil
}

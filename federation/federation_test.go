package federation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeResolver serves canned JSON per id and counts how often each id was
// fetched. Ids listed in failing always error.
type fakeResolver struct {
	mu      sync.Mutex
	objects map[string]string
	failing map[string]bool
	calls   map[string]int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		objects: make(map[string]string),
		failing: make(map[string]bool),
		calls:   make(map[string]int),
	}
}

func (f *fakeResolver) add(id, body string) {
	f.objects[id] = body
}

func (f *fakeResolver) fail(id string) {
	f.failing[id] = true
}

func (f *fakeResolver) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeResolver) Resolve(ctx context.Context, id string) (*Object, error) {
	f.mu.Lock()
	f.calls[id]++
	f.mu.Unlock()

	if f.failing[id] {
		return nil, fmt.Errorf("simulated remote failure for %s", id)
	}
	body, ok := f.objects[id]
	if !ok {
		return nil, fmt.Errorf("remote fetch of %s failed with status: 404", id)
	}
	return ParseObject([]byte(body))
}

// memCache is an in-memory KeyValueCache with TTL bookkeeping.
type memCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
	deleted []string
}

type memEntry struct {
	value   []byte
	expires time.Time
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]memEntry)}
}

func (m *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		delete(m.entries, key)
		return nil, nil
	}
	return entry.value, nil
}

func (m *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memEntry{value: value}
	if ttl > 0 {
		entry.expires = time.Now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

func (m *memCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

// fakeCounts returns a fixed count per collection URI, nil otherwise.
type fakeCounts struct {
	counts map[string]int
}

func (f *fakeCounts) FetchCount(ctx context.Context, uri string) *int {
	if f.counts == nil {
		return nil
	}
	if n, ok := f.counts[uri]; ok {
		return &n
	}
	return nil
}

func newTestContext(resolver *fakeResolver, cache *memCache) *Context {
	return NewContext(resolver, cache, &fakeCounts{}, zerolog.Nop(), time.Minute, 20)
}

// JSON builders for test fixtures

func actorJSON(uri, username string) string {
	return fmt.Sprintf(`{
		"id": "%s",
		"type": "Person",
		"preferredUsername": "%s",
		"name": "%s display",
		"inbox": "%s/inbox",
		"outbox": "%s/outbox",
		"followers": "%s/followers",
		"following": "%s/following"
	}`, uri, username, username, uri, uri, uri, uri)
}

func noteJSON(id, content, attributedTo string, published time.Time) string {
	return fmt.Sprintf(`{
		"id": "%s",
		"type": "Note",
		"content": "%s",
		"attributedTo": "%s",
		"published": "%s"
	}`, id, content, attributedTo, published.UTC().Format(time.RFC3339Nano))
}

func createJSON(id, actor string, object string, published time.Time) string {
	return fmt.Sprintf(`{
		"id": "%s",
		"type": "Create",
		"actor": "%s",
		"object": %s,
		"published": "%s"
	}`, id, actor, object, published.UTC().Format(time.RFC3339Nano))
}

func pageJSON(id string, next string, items ...string) string {
	nextField := ""
	if next != "" {
		nextField = fmt.Sprintf(`"next": "%s",`, next)
	}
	return fmt.Sprintf(`{
		"id": "%s",
		"type": "OrderedCollectionPage",
		%s
		"orderedItems": [%s]
	}`, id, nextField, strings.Join(items, ","))
}

func collectionJSON(id, first string, total int) string {
	return fmt.Sprintf(`{
		"id": "%s",
		"type": "OrderedCollection",
		"totalItems": %d,
		"first": "%s"
	}`, id, total, first)
}

func quoted(items ...string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = fmt.Sprintf("%q", item)
	}
	return out
}

func mustParse(t *testing.T, body string) *Object {
	t.Helper()
	obj, err := ParseObject([]byte(body))
	if err != nil {
		t.Fatalf("Failed to parse fixture: %v", err)
	}
	return obj
}

package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

const (
	acceptActivityJSON = "application/activity+json"
	maxResponseBytes   = 1 * 1024 * 1024
)

// HTTPResolver fetches federated objects over plain HTTP with the
// ActivityPub accept header. Handles (@user@host) are resolved through
// webfinger first. Each remote host gets its own circuit breaker so a
// flapping server is cut off without affecting the rest of the fediverse.
type HTTPResolver struct {
	client    *http.Client
	userAgent string
	log       zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

// NewHTTPResolver builds a resolver with the given per-request timeout.
func NewHTTPResolver(timeout time.Duration, logger zerolog.Logger) *HTTPResolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPResolver{
		client:    &http.Client{Timeout: timeout},
		userAgent: "anancus/1.0 ActivityPub",
		log:       logger,
		breakers:  make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
}

// Resolve fetches and parses the object behind a URI or handle.
func (r *HTTPResolver) Resolve(ctx context.Context, id string) (*Object, error) {
	uri := id
	if strings.HasPrefix(id, "@") {
		resolved, err := r.resolveHandle(ctx, id)
		if err != nil {
			return nil, err
		}
		uri = resolved
	}

	body, err := r.fetch(ctx, uri, acceptActivityJSON)
	if err != nil {
		return nil, err
	}

	obj, err := ParseObject(body)
	if err != nil {
		return nil, err
	}
	if obj.ID == "" {
		return nil, fmt.Errorf("object at %s has no id", uri)
	}
	return obj, nil
}

// resolveHandle performs webfinger discovery for an @user@host handle and
// returns the actor's canonical URI.
func (r *HTTPResolver) resolveHandle(ctx context.Context, handle string) (string, error) {
	trimmed := strings.TrimPrefix(handle, "@")
	parts := strings.SplitN(trimmed, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid handle: %s", handle)
	}

	wfURL := fmt.Sprintf("https://%s/.well-known/webfinger?resource=acct:%s",
		parts[1], url.QueryEscape(trimmed))

	body, err := r.fetch(ctx, wfURL, "application/jrd+json, application/json")
	if err != nil {
		return "", fmt.Errorf("webfinger lookup for %s failed: %w", handle, err)
	}

	var jrd struct {
		Links []struct {
			Rel  string `json:"rel"`
			Type string `json:"type"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := json.Unmarshal(body, &jrd); err != nil {
		return "", fmt.Errorf("failed to parse webfinger response for %s: %w", handle, err)
	}

	for _, link := range jrd.Links {
		if link.Rel == "self" && strings.Contains(link.Type, "activity+json") && link.Href != "" {
			return link.Href, nil
		}
	}
	return "", fmt.Errorf("webfinger response for %s has no self link", handle)
}

// fetch performs one remote GET through the host's circuit breaker.
func (r *HTTPResolver) fetch(ctx context.Context, uri string, accept string) ([]byte, error) {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid remote URI: %s", uri)
	}

	breaker := r.breakerFor(parsed.Host)
	return breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", uri, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("User-Agent", r.userAgent)

		resp, err := r.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("remote fetch of %s failed with status: %d", uri, resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return body, nil
	})
}

func (r *HTTPResolver) breakerFor(host string) *gobreaker.CircuitBreaker[[]byte] {
	r.mu.Lock()
	defer r.mu.Unlock()

	breaker, exists := r.breakers[host]
	if !exists {
		breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:    host,
			Timeout: 60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
		r.breakers[host] = breaker
	}
	return breaker
}

// HTTPCountFetcher reads a remote collection's totalItems. Any failure
// yields nil, never an error.
type HTTPCountFetcher struct {
	resolver *HTTPResolver
	log      zerolog.Logger
}

func NewHTTPCountFetcher(resolver *HTTPResolver, logger zerolog.Logger) *HTTPCountFetcher {
	return &HTTPCountFetcher{resolver: resolver, log: logger}
}

func (cf *HTTPCountFetcher) FetchCount(ctx context.Context, uri string) *int {
	body, err := cf.resolver.fetch(ctx, uri, acceptActivityJSON)
	if err != nil {
		cf.log.Warn().Err(err).Str("uri", uri).Msg("FetchCount: remote count unavailable")
		return nil
	}

	var col struct {
		TotalItems *int `json:"totalItems"`
	}
	if err := json.Unmarshal(body, &col); err != nil {
		cf.log.Warn().Err(err).Str("uri", uri).Msg("FetchCount: unparseable collection")
		return nil
	}
	return col.TotalItems
}

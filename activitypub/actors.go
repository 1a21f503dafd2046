package activitypub

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/domain"
	"github.com/deemkeen/anancus/federation"
	"github.com/google/uuid"
)

// actorCacheMaxAge is how long a stored remote account is served without
// refetching the actor document.
const actorCacheMaxAge = 24 * time.Hour

var fedCtx *federation.Context

// Configure wires the federation context used for remote lookups. Must be
// called once at startup before any inbox or outbox processing.
func Configure(ctx *federation.Context) {
	fedCtx = ctx
}

// FetchRemoteActor fetches an actor through the federation cache and
// stores it in the database.
func FetchRemoteActor(actorURI string) (*domain.RemoteAccount, error) {
	if fedCtx == nil {
		return nil, fmt.Errorf("federation context not configured")
	}

	obj := fedCtx.Lookup(context.Background(), actorURI, false)
	if obj == nil || obj.Kind != federation.KindActor || obj.Actor == nil {
		return nil, fmt.Errorf("could not resolve actor %s", actorURI)
	}

	remoteAcc, err := remoteAccountFromObject(obj)
	if err != nil {
		return nil, err
	}

	database := db.GetDB()
	if err := database.CreateRemoteAccount(remoteAcc); err != nil {
		// Already known, refresh the stored copy instead
		if err := database.UpdateRemoteAccount(remoteAcc); err != nil {
			return nil, fmt.Errorf("failed to store remote account: %w", err)
		}
		// Keep the original row id
		if err, existing := database.ReadRemoteAccountByActorURI(remoteAcc.ActorURI); err == nil && existing != nil {
			remoteAcc = existing
		}
	}

	return remoteAcc, nil
}

// GetOrFetchActor returns the stored remote account or fetches the actor
// if unknown or stale.
func GetOrFetchActor(actorURI string) (*domain.RemoteAccount, error) {
	database := db.GetDB()

	err, cached := database.ReadRemoteAccountByActorURI(actorURI)
	if err == nil && cached != nil {
		if time.Since(cached.LastFetchedAt) < actorCacheMaxAge {
			return cached, nil
		}
	}

	return FetchRemoteActor(actorURI)
}

// InvalidateActor drops the cached actor document so the next lookup
// refetches it, e.g. after an Update activity.
func InvalidateActor(actorURI string) {
	if fedCtx != nil {
		fedCtx.Invalidate(context.Background(), actorURI)
	}
}

func remoteAccountFromObject(obj *federation.Object) (*domain.RemoteAccount, error) {
	actor := obj.Actor
	if obj.ID == "" || actor.Inbox == "" || actor.PublicKeyPem == "" {
		return nil, fmt.Errorf("actor missing required fields")
	}

	domainName, err := extractDomain(obj.ID)
	if err != nil {
		return nil, err
	}

	return &domain.RemoteAccount{
		Id:            uuid.New(),
		Username:      actor.PreferredUsername,
		Domain:        domainName,
		ActorURI:      obj.ID,
		DisplayName:   actor.Name,
		Summary:       actor.Summary,
		InboxURI:      actor.Inbox,
		OutboxURI:     actor.Outbox,
		PublicKeyPem:  actor.PublicKeyPem,
		AvatarURL:     iconURL(actor.Icon),
		LastFetchedAt: time.Now(),
	}, nil
}

func iconURL(ref *federation.Ref) string {
	if ref.IsZero() {
		return ""
	}
	if ref.Object != nil && ref.Object.Media != nil {
		return ref.Object.Media.URL
	}
	return ref.URI
}

// extractDomain extracts the domain from an actor URI
// Example: "https://mastodon.social/users/alice" -> "mastodon.social"
func extractDomain(actorURI string) (string, error) {
	parsed, err := url.Parse(actorURI)
	if err != nil {
		return "", fmt.Errorf("invalid actor URI: %w", err)
	}

	return parsed.Host, nil
}

// extractUsername extracts username from various URI formats
// Examples:
// - "https://example.com/users/alice" -> "alice"
// - "https://example.com/@alice" -> "alice"
func extractUsername(uri string) string {
	parts := strings.Split(uri, "/")
	if len(parts) > 0 {
		username := parts[len(parts)-1]
		// Remove @ prefix if present
		return strings.TrimPrefix(username, "@")
	}
	return ""
}

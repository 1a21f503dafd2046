package web

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/deemkeen/anancus/federation"
	"github.com/gin-gonic/gin"
)

// collectionPageResponse is the REST shape of one mapped collection page.
type collectionPageResponse[T any] struct {
	Items []T    `json:"items"`
	Total int    `json:"total"`
	Next  string `json:"next,omitempty"`
}

// feedResponse is the REST shape of the aggregated following feed.
type feedResponse struct {
	Items []*federation.PostView `json:"items"`
	Next  string                 `json:"next,omitempty"`
}

// encodeCursor wraps a remote page URI in an opaque client token.
func encodeCursor(next string) string {
	if next == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(next))
}

// decodeCursor unwraps a client token back into a page URI. A malformed
// token decodes to empty, which restarts the walk from the first page.
func decodeCursor(cursor string) string {
	if cursor == "" {
		return ""
	}
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return ""
	}
	return string(decoded)
}

// HandleApiUser serves a remote actor's profile, resolved via webfinger
// or actor URI.
func HandleApiUser(c *gin.Context, fedCtx *federation.Context) {
	handle := c.Param("handle")

	obj := fedCtx.Lookup(c.Request.Context(), handle, false)
	if obj == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	user := fedCtx.ObjectToUser(c.Request.Context(), obj)
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not an actor"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// HandleApiFollowers serves one page of a remote actor's followers.
func HandleApiFollowers(c *gin.Context, fedCtx *federation.Context) {
	serveUserCollection(c, fedCtx, func(actor *federation.ActorFields) string {
		return actor.Followers
	})
}

// HandleApiFollowing serves one page of the accounts a remote actor follows.
func HandleApiFollowing(c *gin.Context, fedCtx *federation.Context) {
	serveUserCollection(c, fedCtx, func(actor *federation.ActorFields) string {
		return actor.Following
	})
}

func serveUserCollection(c *gin.Context, fedCtx *federation.Context, pick func(*federation.ActorFields) string) {
	obj := lookupActor(c, fedCtx)
	if obj == nil {
		return
	}

	source := pick(obj.Actor)
	if source == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "collection not advertised"})
		return
	}

	slice, err := fedCtx.UserPage(c.Request.Context(), source, decodeCursor(c.Query("cursor")))
	if errors.Is(err, federation.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "collection not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "collection unavailable"})
		return
	}

	c.JSON(http.StatusOK, collectionPageResponse[*federation.UserView]{
		Items: slice.Values(),
		Total: slice.Total,
		Next:  encodeCursor(slice.Next),
	})
}

// HandleApiPosts serves one page of a remote actor's outbox as post views.
func HandleApiPosts(c *gin.Context, fedCtx *federation.Context) {
	obj := lookupActor(c, fedCtx)
	if obj == nil {
		return
	}

	if obj.Actor.Outbox == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "outbox not advertised"})
		return
	}

	slice, err := fedCtx.PostPage(c.Request.Context(), obj.Actor.Outbox, decodeCursor(c.Query("cursor")))
	if errors.Is(err, federation.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "outbox not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "outbox unavailable"})
		return
	}

	c.JSON(http.StatusOK, collectionPageResponse[*federation.PostView]{
		Items: slice.Values(),
		Total: slice.Total,
		Next:  encodeCursor(slice.Next),
	})
}

// HandleApiFeed serves the merged timeline of everyone the viewer follows,
// newest first, paginated by a time cursor.
func HandleApiFeed(c *gin.Context, fedCtx *federation.Context) {
	viewer := c.Query("viewer")
	if viewer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "viewer parameter required"})
		return
	}

	obj := fedCtx.Lookup(c.Request.Context(), viewer, false)
	if obj == nil || obj.Kind != federation.KindActor || obj.Actor == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "viewer not found"})
		return
	}
	if obj.Actor.Following == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "viewer has no following collection"})
		return
	}

	limit := fedCtx.FeedPageSize()
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	cutoff := federation.ParseFeedCursor(c.Query("cursor"), time.Now())

	feed, err := fedCtx.FollowingFeed(c.Request.Context(), obj.Actor.Following, limit, cutoff)
	if errors.Is(err, federation.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "following collection not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "feed unavailable"})
		return
	}

	c.JSON(http.StatusOK, feedResponse{Items: feed.Items, Next: feed.Next})
}

func lookupActor(c *gin.Context, fedCtx *federation.Context) *federation.Object {
	handle := c.Param("handle")

	obj := fedCtx.Lookup(c.Request.Context(), handle, false)
	if obj == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return nil
	}
	if obj.Kind != federation.KindActor || obj.Actor == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not an actor"})
		return nil
	}
	return obj
}

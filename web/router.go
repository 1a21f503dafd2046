package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/deemkeen/anancus/activitypub"
	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/federation"
	"github.com/deemkeen/anancus/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func Router(conf *util.AppConfig, fedCtx *federation.Context) error {
	log.Info().Str("host", conf.Conf.Host).Int("port", conf.Conf.HttpPort).Msg("Starting HTTP server")
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	g.Use(RateLimitMiddleware(APIRateLimiter()))

	// RSS Feed
	g.GET("/feed", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")

		username := c.Query("username")
		rss, err := GetRSS(conf, username)
		if err != nil {
			c.Render(404, render.String{Format: ""})
		} else {
			c.Render(200, render.String{Format: rss})
		}
	})

	g.GET("/feed/:id", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")
		name := c.Param("id")
		feedId, err := uuid.Parse(name)
		if err != nil {
			c.Render(404, render.String{Format: ""})
			return
		}

		rssItem, err := GetRSSItem(conf, feedId)
		if err != nil {
			c.Render(404, render.String{Format: ""})
		} else {
			c.Render(200, render.String{Format: rssItem})
		}
	})

	// Read API over the federation layer
	api := g.Group("/api")
	{
		api.GET("/users/:handle", func(c *gin.Context) {
			HandleApiUser(c, fedCtx)
		})
		api.GET("/users/:handle/followers", func(c *gin.Context) {
			HandleApiFollowers(c, fedCtx)
		})
		api.GET("/users/:handle/following", func(c *gin.Context) {
			HandleApiFollowing(c, fedCtx)
		})
		api.GET("/users/:handle/posts", func(c *gin.Context) {
			HandleApiPosts(c, fedCtx)
		})
		api.GET("/feed", func(c *gin.Context) {
			HandleApiFeed(c, fedCtx)
		})

		// Local account management
		api.POST("/users", func(c *gin.Context) {
			HandleCreateAccount(c, conf)
		})
		api.PUT("/users/:handle", func(c *gin.Context) {
			HandleUpdateProfile(c)
		})
		api.POST("/users/:handle/notes", func(c *gin.Context) {
			HandleCreateNote(c, conf)
		})
		api.PUT("/users/:handle/notes/:id", func(c *gin.Context) {
			HandleUpdateNote(c)
		})
		api.DELETE("/users/:handle/notes/:id", func(c *gin.Context) {
			HandleDeleteNote(c)
		})
		api.POST("/users/:handle/follow", func(c *gin.Context) {
			HandleFollow(c, conf)
		})
	}

	// ActivityPub federation endpoints
	if conf.Conf.WithAp {
		apLimiter := FederationRateLimiter()
		maxBodySize := MaxBytesMiddleware(maxActivityBytes)

		// Serve individual notes as ActivityPub objects
		g.GET("/notes/:id", func(c *gin.Context) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")

			noteIdStr := c.Param("id")
			noteId, err := uuid.Parse(noteIdStr)
			if err != nil {
				c.JSON(404, gin.H{"error": "Invalid note ID"})
				return
			}

			err, note := GetNoteObject(noteId, conf)
			if err != nil {
				c.JSON(404, gin.H{"error": "Note not found"})
			} else {
				c.Render(200, render.String{Format: note})
			}
		})

		g.GET("/users/:actor", func(c *gin.Context) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")
			err, actor := GetActor(c.Param("actor"), conf)
			if err != nil {
				c.Render(404, render.String{Format: actor})
			} else {
				c.Render(200, render.String{Format: actor})
			}
		})

		g.POST("/inbox", RateLimitMiddleware(apLimiter), maxBodySize, func(c *gin.Context) {
			handleSharedInbox(c, conf)
		})

		g.POST("/users/:actor/inbox", RateLimitMiddleware(apLimiter), maxBodySize, func(c *gin.Context) {
			actor := c.Param("actor")
			log.Debug().Str("actor", actor).Msg("POST user inbox")
			activitypub.HandleInbox(c.Writer, c.Request, actor, conf)
		})

		g.GET("/users/:actor/outbox", func(c *gin.Context) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")
			page := ParsePageParam(c.Query("page"))
			err, outbox := GetOutbox(c.Param("actor"), page, conf)
			if err != nil {
				c.Render(404, render.String{Format: outbox})
			} else {
				c.Render(200, render.String{Format: outbox})
			}
		})

		g.GET("/users/:actor/followers", func(c *gin.Context) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")
			err, collection := GetFollowersCollection(c.Param("actor"), conf)
			if err != nil {
				c.Render(404, render.String{Format: collection})
			} else {
				c.Render(200, render.String{Format: collection})
			}
		})

		g.GET("/users/:actor/following", func(c *gin.Context) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")
			err, collection := GetFollowingCollection(c.Param("actor"), conf)
			if err != nil {
				c.Render(404, render.String{Format: collection})
			} else {
				c.Render(200, render.String{Format: collection})
			}
		})

		g.GET("/.well-known/webfinger", func(c *gin.Context) {
			c.Header("Content-Type", "application/json; charset=utf-8")

			resource := c.Query("resource")
			if resource == "" || !strings.HasPrefix(resource, "acct:") {
				c.Render(404, render.String{Format: GetWebFingerNotFound()})
			} else {
				resource = strings.TrimPrefix(resource, "acct:")
				resource = strings.TrimSuffix(resource, fmt.Sprintf("@%s", conf.Conf.SslDomain))
				err, resp := GetWebfinger(resource, conf)
				if err != nil {
					c.Render(404, render.String{Format: GetWebFingerNotFound()})
				} else {
					c.Render(200, render.String{Format: resp})
				}
			}
		})
	}

	err := g.Run(fmt.Sprintf(":%d", conf.Conf.HttpPort))
	if err != nil {
		return err
	}
	return nil
}

// handleSharedInbox routes an activity delivered to the shared inbox to
// the local account it addresses.
func handleSharedInbox(c *gin.Context, conf *util.AppConfig) {
	body, err := c.GetRawData()
	if err != nil {
		log.Error().Err(err).Msg("Shared inbox: failed to read body")
		c.Status(400)
		return
	}

	var activity map[string]interface{}
	if err := json.Unmarshal(body, &activity); err != nil {
		log.Error().Err(err).Msg("Shared inbox: failed to parse activity")
		c.Status(400)
		return
	}

	targetUsername := resolveInboxTarget(activity, conf)
	if targetUsername == "" {
		log.Info().Interface("type", activity["type"]).Msg("Shared inbox: could not determine target user")
		// Accept anyway so remote servers do not retry forever
		c.Status(202)
		return
	}

	log.Debug().Str("user", targetUsername).Msg("Shared inbox: routing activity")
	req := c.Request.Clone(c.Request.Context())
	req.Body = io.NopCloser(bytes.NewReader(body))
	activitypub.HandleInbox(c.Writer, req, targetUsername, conf)
}

// resolveInboxTarget finds the local account an activity addresses, trying
// the to and cc audiences, then the object, then the follow graph.
func resolveInboxTarget(activity map[string]interface{}, conf *util.AppConfig) string {
	// Check if a URI points at one of our users: https://domain/users/username
	localUsername := func(uri string) string {
		if strings.Contains(uri, conf.Conf.SslDomain) && strings.Contains(uri, "/users/") {
			parts := strings.Split(uri, "/")
			for i, part := range parts {
				if part == "users" && i+1 < len(parts) {
					username := parts[i+1]
					// Strip /followers or /following suffixes
					if slashIdx := strings.Index(username, "/"); slashIdx > 0 {
						username = username[:slashIdx]
					}
					return username
				}
			}
		}
		return ""
	}

	fromAudience := func(key string) string {
		list, ok := activity[key].([]interface{})
		if !ok {
			return ""
		}
		for _, entry := range list {
			if uri, ok := entry.(string); ok {
				if username := localUsername(uri); username != "" {
					return username
				}
			}
		}
		return ""
	}

	if username := fromAudience("to"); username != "" {
		return username
	}
	if username := fromAudience("cc"); username != "" {
		return username
	}

	// Follow activities address the target in the object field
	if objStr, ok := activity["object"].(string); ok {
		if username := localUsername(objStr); username != "" {
			return username
		}
	}

	// Create/Update/Delete activities carry no local addressing, so route
	// to a local follower of the sending actor
	actorURI, _ := activity["actor"].(string)
	if actorURI == "" {
		return ""
	}

	database := db.GetDB()
	err, remoteActor := database.ReadRemoteAccountByActorURI(actorURI)
	if err != nil || remoteActor == nil {
		log.Debug().Str("actor", actorURI).Msg("Shared inbox: remote actor not known")
		return ""
	}

	err, followers := database.ReadFollowersByAccountId(remoteActor.Id)
	if err != nil || followers == nil || len(*followers) == 0 {
		log.Debug().Str("actor", actorURI).Msg("Shared inbox: no local followers for actor")
		return ""
	}

	firstFollower := (*followers)[0]
	err, localAccount := database.ReadAccById(firstFollower.AccountId)
	if err != nil || localAccount == nil {
		return ""
	}
	return localAccount.Username
}

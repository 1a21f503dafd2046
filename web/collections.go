package web

import (
	"encoding/json"
	"fmt"

	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/util"
	"github.com/rs/zerolog/log"
)

// GetFollowersCollection returns a user's followers as an ActivityPub
// OrderedCollection of actor URIs.
func GetFollowersCollection(actor string, conf *util.AppConfig) (error, string) {
	database := db.GetDB()
	err, acc := database.ReadAccByUsername(actor)
	if err != nil {
		return err, "{}"
	}

	err, uris := database.ReadFollowerActorURIs(acc.Id)
	if err != nil {
		log.Error().Err(err).Str("actor", actor).Msg("Failed to read follower URIs")
		return err, "{}"
	}

	return marshalActorCollection(fmt.Sprintf("https://%s/users/%s/followers", conf.Conf.SslDomain, actor), uris)
}

// GetFollowingCollection returns the accounts a user follows as an
// ActivityPub OrderedCollection of actor URIs.
func GetFollowingCollection(actor string, conf *util.AppConfig) (error, string) {
	database := db.GetDB()
	err, acc := database.ReadAccByUsername(actor)
	if err != nil {
		return err, "{}"
	}

	err, uris := database.ReadFollowingActorURIs(acc.Id)
	if err != nil {
		log.Error().Err(err).Str("actor", actor).Msg("Failed to read following URIs")
		return err, "{}"
	}

	return marshalActorCollection(fmt.Sprintf("https://%s/users/%s/following", conf.Conf.SslDomain, actor), uris)
}

func marshalActorCollection(id string, uris []string) (error, string) {
	if uris == nil {
		uris = []string{}
	}

	collection := map[string]interface{}{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           id,
		"type":         "OrderedCollection",
		"totalItems":   len(uris),
		"orderedItems": uris,
	}

	jsonData, err := json.Marshal(collection)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonData)
}

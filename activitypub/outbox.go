package activitypub

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/domain"
	"github.com/deemkeen/anancus/util"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const publicAudience = "https://www.w3.org/ns/activitystreams#Public"

// SendActivity sends an activity to a remote inbox
func SendActivity(activity interface{}, inboxURI string, localAccount *domain.Account, conf *util.AppConfig) error {
	activityJSON, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	// Digest header is part of the signed material
	hash := sha256.Sum256(activityJSON)
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	req, err := http.NewRequest("POST", inboxURI, bytes.NewReader(activityJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", "anancus/1.0 ActivityPub")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", digest)

	privateKey, err := ParsePrivateKey(localAccount.WebPrivateKey)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	keyID := fmt.Sprintf("https://%s/users/%s#main-key", conf.Conf.SslDomain, localAccount.Username)
	if err := SignRequest(req, privateKey, keyID); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}

	log.Info().Str("inbox", inboxURI).Int("status", resp.StatusCode).Msg("Outbox: sent activity")
	return nil
}

// SendAccept sends an Accept activity in response to a Follow
func SendAccept(localAccount *domain.Account, remoteActor *domain.RemoteAccount, followID string, conf *util.AppConfig) error {
	acceptID := fmt.Sprintf("https://%s/activities/%s", conf.Conf.SslDomain, uuid.New().String())
	actorURI := fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, localAccount.Username)

	accept := map[string]interface{}{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       acceptID,
		"type":     "Accept",
		"actor":    actorURI,
		"object": map[string]interface{}{
			"id":     followID,
			"type":   "Follow",
			"actor":  remoteActor.ActorURI,
			"object": actorURI,
		},
	}

	return SendActivity(accept, remoteActor.InboxURI, localAccount, conf)
}

// NoteActivity builds the Create activity for a local note, addressed
// to the public collection and the author's followers.
func NoteActivity(note *domain.Note, localAccount *domain.Account, conf *util.AppConfig) map[string]interface{} {
	actorURI := fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, localAccount.Username)
	noteURI := fmt.Sprintf("https://%s/notes/%s", conf.Conf.SslDomain, note.Id.String())
	createID := fmt.Sprintf("https://%s/activities/%s", conf.Conf.SslDomain, uuid.New().String())
	followersURI := actorURI + "/followers"

	to := []string{publicAudience}
	cc := []string{followersURI}
	if note.Visibility == "followers" {
		to = []string{followersURI}
		cc = nil
	}

	object := map[string]interface{}{
		"id":           noteURI,
		"type":         "Note",
		"attributedTo": actorURI,
		"content":      note.Message,
		"published":    note.CreatedAt.Format(time.RFC3339),
		"to":           to,
		"cc":           cc,
	}
	if note.Sensitive {
		object["sensitive"] = true
		object["summary"] = note.ContentWarning
	}
	if note.EditedAt != nil {
		object["updated"] = note.EditedAt.Format(time.RFC3339)
	}

	return map[string]interface{}{
		"@context":  "https://www.w3.org/ns/activitystreams",
		"id":        createID,
		"type":      "Create",
		"actor":     actorURI,
		"published": note.CreatedAt.Format(time.RFC3339),
		"to":        to,
		"cc":        cc,
		"object":    object,
	}
}

// SendCreate queues a Create activity for a new note to every follower
func SendCreate(note *domain.Note, localAccount *domain.Account, conf *util.AppConfig) error {
	create := NoteActivity(note, localAccount, conf)

	database := db.GetDB()
	err, followers := database.ReadFollowersByAccountId(localAccount.Id)
	if err != nil {
		// Nothing to deliver to, the note still exists locally
		log.Error().Err(err).Msg("Outbox: failed to get followers")
		return nil
	}

	if followers == nil || len(*followers) == 0 {
		log.Debug().Msg("Outbox: no followers to deliver to")
		return nil
	}

	// Queue delivery to each follower's inbox
	for _, follower := range *followers {
		// AccountId is the follower, a remote actor with an inbox
		err, remoteActor := database.ReadRemoteAccountById(follower.AccountId)
		if err != nil {
			log.Error().Err(err).Str("account", follower.AccountId.String()).Msg("Outbox: failed to get remote actor")
			continue
		}

		queueItem := &domain.DeliveryQueueItem{
			Id:           uuid.New(),
			InboxURI:     remoteActor.InboxURI,
			ActivityJSON: mustMarshal(create),
			Attempts:     0,
			NextRetryAt:  time.Now(),
			CreatedAt:    time.Now(),
		}

		if err := database.EnqueueDelivery(queueItem); err != nil {
			log.Error().Err(err).Str("inbox", remoteActor.InboxURI).Msg("Outbox: failed to queue delivery")
		}
	}

	log.Info().Str("note", note.Id.String()).Int("followers", len(*followers)).Msg("Outbox: queued Create activity")
	return nil
}

// SendFollow sends a Follow activity to a remote actor
func SendFollow(localAccount *domain.Account, remoteActorURI string, conf *util.AppConfig) error {
	remoteActor, err := GetOrFetchActor(remoteActorURI)
	if err != nil {
		return fmt.Errorf("failed to fetch remote actor: %w", err)
	}

	followID := fmt.Sprintf("https://%s/activities/%s", conf.Conf.SslDomain, uuid.New().String())
	actorURI := fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, localAccount.Username)

	follow := map[string]interface{}{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       followID,
		"type":     "Follow",
		"actor":    actorURI,
		"object":   remoteActorURI,
	}

	// Pending until the Accept comes back
	database := db.GetDB()
	followRecord := &domain.Follow{
		Id:              uuid.New(),
		AccountId:       localAccount.Id,
		TargetAccountId: remoteActor.Id,
		URI:             followID,
		Accepted:        false,
		CreatedAt:       time.Now(),
	}

	if err := database.CreateFollow(followRecord); err != nil {
		return fmt.Errorf("failed to store follow: %w", err)
	}

	return SendActivity(follow, remoteActor.InboxURI, localAccount, conf)
}

// mustMarshal marshals v to JSON, panicking on error
func mustMarshal(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal: %v", err))
	}
	return string(b)
}

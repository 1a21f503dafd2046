package activitypub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/domain"
	"github.com/deemkeen/anancus/util"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Activity represents a generic ActivityPub activity
type Activity struct {
	Context interface{} `json:"@context"`
	ID      string      `json:"id"`
	Type    string      `json:"type"`
	Actor   string      `json:"actor"`
	Object  interface{} `json:"object"`
}

// FollowActivity represents an ActivityPub Follow activity
type FollowActivity struct {
	Context interface{} `json:"@context"`
	ID      string      `json:"id"`
	Type    string      `json:"type"`
	Actor   string      `json:"actor"`
	Object  string      `json:"object"` // URI of the person being followed
}

// HandleInbox processes incoming ActivityPub activities
func HandleInbox(w http.ResponseWriter, r *http.Request, username string, conf *util.AppConfig) {
	// Verify HTTP signature
	signature := r.Header.Get("Signature")
	if signature == "" {
		log.Warn().Msg("Inbox: missing HTTP signature")
		http.Error(w, "Missing signature", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error().Err(err).Msg("Inbox: failed to read body")
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var activity Activity
	if err := json.Unmarshal(body, &activity); err != nil {
		log.Error().Err(err).Msg("Inbox: failed to parse activity")
		http.Error(w, "Invalid activity", http.StatusBadRequest)
		return
	}

	log.Info().Str("type", activity.Type).Str("actor", activity.Actor).Msg("Inbox: received activity")

	// Fetch remote actor to verify and cache
	remoteActor, err := GetOrFetchActor(activity.Actor)
	if err != nil {
		log.Error().Err(err).Str("actor", activity.Actor).Msg("Inbox: failed to fetch actor")
		http.Error(w, "Failed to verify actor", http.StatusBadRequest)
		return
	}

	// Verify HTTP signature with actor's public key
	_, err = VerifyRequest(r, remoteActor.PublicKeyPem)
	if err != nil {
		log.Warn().Err(err).Str("actor", activity.Actor).Msg("Inbox: signature verification failed")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	database := db.GetDB()

	// Extract ObjectURI from the activity's object field
	objectURI := ""
	if activity.Object != nil {
		switch obj := activity.Object.(type) {
		case string:
			// Object is a simple URI string (like in Follow, Undo, etc.)
			objectURI = obj
		case map[string]interface{}:
			// Object is a full object (like in Create, Update)
			if id, ok := obj["id"].(string); ok {
				objectURI = id
			}
		}
	}

	activityRecord := &domain.Activity{
		Id:           uuid.New(),
		ActivityURI:  activity.ID,
		ActivityType: activity.Type,
		ActorURI:     activity.Actor,
		ObjectURI:    objectURI,
		RawJSON:      string(body),
		Processed:    false,
		Local:        false,
		CreatedAt:    time.Now(),
	}

	if err := database.CreateActivity(activityRecord); err != nil {
		// Duplicate activities are fine, we still process the request
		log.Debug().Err(err).Str("uri", activity.ID).Msg("Inbox: could not store activity")
	}

	switch activity.Type {
	case "Follow":
		if err := handleFollowActivity(body, username, remoteActor, conf); err != nil {
			log.Error().Err(err).Msg("Inbox: failed to handle Follow")
			http.Error(w, "Failed to process Follow", http.StatusInternalServerError)
			return
		}
	case "Undo":
		if err := handleUndoActivity(body, remoteActor); err != nil {
			log.Error().Err(err).Msg("Inbox: failed to handle Undo")
			http.Error(w, "Failed to process Undo", http.StatusInternalServerError)
			return
		}
	case "Create":
		if err := handleCreateActivity(body, username); err != nil {
			log.Error().Err(err).Msg("Inbox: failed to handle Create")
			http.Error(w, "Failed to process Create", http.StatusInternalServerError)
			return
		}
	case "Like":
		if err := handleLikeActivity(body, remoteActor); err != nil {
			log.Error().Err(err).Msg("Inbox: failed to handle Like")
			// Don't fail the request
		}
	case "Accept":
		// Accept activities are confirmations of Follow requests
		if err := handleAcceptActivity(body); err != nil {
			log.Error().Err(err).Msg("Inbox: failed to handle Accept")
			// Don't fail the request
		}
	case "Update":
		if err := handleUpdateActivity(body); err != nil {
			log.Error().Err(err).Msg("Inbox: failed to handle Update")
			http.Error(w, "Failed to process Update", http.StatusInternalServerError)
			return
		}
	case "Delete":
		if err := handleDeleteActivity(body); err != nil {
			log.Error().Err(err).Msg("Inbox: failed to handle Delete")
			http.Error(w, "Failed to process Delete", http.StatusInternalServerError)
			return
		}
	default:
		log.Info().Str("type", activity.Type).Msg("Inbox: unsupported activity type")
	}

	// Mark activity as processed
	activityRecord.Processed = true
	database.UpdateActivity(activityRecord)

	w.WriteHeader(http.StatusAccepted)
}

// handleFollowActivity processes a Follow activity
func handleFollowActivity(body []byte, username string, remoteActor *domain.RemoteAccount, conf *util.AppConfig) error {
	var follow FollowActivity
	if err := json.Unmarshal(body, &follow); err != nil {
		return fmt.Errorf("failed to parse Follow activity: %w", err)
	}

	log.Info().Str("follower", remoteActor.Handle()).Msg("Inbox: processing Follow")

	database := db.GetDB()
	err, localAccount := database.ReadAccByUsername(username)
	if err != nil {
		return fmt.Errorf("local account not found: %w", err)
	}

	// When a remote actor follows a local account the remote actor is the
	// follower, so it goes in AccountId.
	followRecord := &domain.Follow{
		Id:              uuid.New(),
		AccountId:       remoteActor.Id,
		TargetAccountId: localAccount.Id,
		URI:             follow.ID,
		Accepted:        true, // Auto-accept for now
		CreatedAt:       time.Now(),
	}

	if err := database.CreateFollow(followRecord); err != nil {
		return fmt.Errorf("failed to create follow: %w", err)
	}

	if err := SendAccept(localAccount, remoteActor, follow.ID, conf); err != nil {
		return fmt.Errorf("failed to send Accept: %w", err)
	}

	log.Info().Str("follower", remoteActor.Handle()).Msg("Inbox: accepted follow")
	return nil
}

// handleUndoActivity processes an Undo activity (e.g., Undo Follow)
func handleUndoActivity(body []byte, remoteActor *domain.RemoteAccount) error {
	var undo struct {
		Type   string          `json:"type"`
		Actor  string          `json:"actor"`
		Object json.RawMessage `json:"object"`
	}
	if err := json.Unmarshal(body, &undo); err != nil {
		return fmt.Errorf("failed to parse Undo activity: %w", err)
	}

	var obj struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(undo.Object, &obj); err != nil {
		return fmt.Errorf("failed to parse Undo object: %w", err)
	}

	switch obj.Type {
	case "Follow":
		database := db.GetDB()
		if err := database.DeleteFollowByURI(obj.ID); err != nil {
			return fmt.Errorf("failed to delete follow: %w", err)
		}
		log.Info().Str("follower", remoteActor.Handle()).Msg("Inbox: removed follow")
	case "Like":
		// The Like was stored as an activity record, drop it again
		database := db.GetDB()
		err, likeActivity := database.ReadActivityByURI(obj.ID)
		if err == nil && likeActivity != nil {
			if err := database.DeleteActivity(likeActivity.Id); err != nil {
				return fmt.Errorf("failed to delete like: %w", err)
			}
		}
		log.Info().Str("actor", remoteActor.Handle()).Msg("Inbox: removed like")
	}

	return nil
}

// handleLikeActivity processes a Like on one of our notes. The raw
// activity is already stored, this only validates the target.
func handleLikeActivity(body []byte, remoteActor *domain.RemoteAccount) error {
	var like struct {
		Type   string      `json:"type"`
		Object interface{} `json:"object"`
	}
	if err := json.Unmarshal(body, &like); err != nil {
		return fmt.Errorf("failed to parse Like activity: %w", err)
	}

	var objectURI string
	switch obj := like.Object.(type) {
	case string:
		objectURI = obj
	case map[string]interface{}:
		if id, ok := obj["id"].(string); ok {
			objectURI = id
		}
	}
	if objectURI == "" {
		return fmt.Errorf("could not determine object URI from Like activity")
	}

	noteId, err := noteIdFromURI(objectURI)
	if err != nil {
		log.Debug().Str("uri", objectURI).Msg("Inbox: Like for a foreign object, ignoring")
		return nil
	}

	err, note := db.GetDB().ReadNoteId(noteId)
	if err != nil || note == nil {
		log.Debug().Str("uri", objectURI).Msg("Inbox: Like for unknown note, ignoring")
		return nil
	}

	log.Info().Str("actor", remoteActor.Handle()).Str("note", noteId.String()).Msg("Inbox: note liked")
	return nil
}

// noteIdFromURI extracts the note id from a local note object URI
// of the form https://host/notes/<uuid>.
func noteIdFromURI(uri string) (uuid.UUID, error) {
	idx := strings.LastIndex(uri, "/notes/")
	if idx < 0 {
		return uuid.Nil, fmt.Errorf("not a note URI: %s", uri)
	}
	return uuid.Parse(uri[idx+len("/notes/"):])
}

// handleCreateActivity processes a Create activity (incoming post/note)
func handleCreateActivity(body []byte, username string) error {
	var create struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Actor  string `json:"actor"`
		Object struct {
			ID           string `json:"id"`
			Type         string `json:"type"`
			Content      string `json:"content"`
			Published    string `json:"published"`
			AttributedTo string `json:"attributedTo"`
		} `json:"object"`
	}

	if err := json.Unmarshal(body, &create); err != nil {
		return fmt.Errorf("failed to parse Create activity: %w", err)
	}

	database := db.GetDB()

	err, localAccount := database.ReadAccByUsername(username)
	if err != nil {
		return fmt.Errorf("failed to get local account: %w", err)
	}

	err, remoteActor := database.ReadRemoteAccountByActorURI(create.Actor)
	if err != nil || remoteActor == nil {
		log.Info().Str("actor", create.Actor).Msg("Inbox: rejecting Create from unknown actor")
		return fmt.Errorf("unknown actor")
	}

	// Only accept posts from actors the local account follows
	err, follow := database.ReadFollowByAccountIds(localAccount.Id, remoteActor.Id)
	if err != nil || follow == nil {
		log.Info().Str("actor", create.Actor).Msg("Inbox: rejecting Create, not following")
		return fmt.Errorf("not following this actor")
	}

	// Use the activity ID, fall back to the object ID if missing
	activityURI := create.ID
	if activityURI == "" {
		activityURI = create.Object.ID
	}

	// Deduplicate
	err, existingActivity := database.ReadActivityByURI(activityURI)
	if err == nil && existingActivity != nil {
		log.Debug().Str("uri", activityURI).Msg("Inbox: activity already exists, skipping")
		return nil
	}

	activity := &domain.Activity{
		Id:           uuid.New(),
		ActivityURI:  activityURI,
		ActivityType: "Create",
		ActorURI:     create.Actor,
		ObjectURI:    create.Object.ID,
		RawJSON:      string(body),
		Processed:    true,
		Local:        false,
		CreatedAt:    time.Now(),
	}

	if err := database.CreateActivity(activity); err != nil {
		log.Debug().Err(err).Msg("Inbox: failed to store Create activity")
	}

	log.Info().Str("author", remoteActor.Handle()).Msg("Inbox: accepted post")
	return nil
}

// handleAcceptActivity processes an Accept activity (response to Follow)
func handleAcceptActivity(body []byte) error {
	var accept struct {
		Type   string          `json:"type"`
		Actor  string          `json:"actor"`
		Object json.RawMessage `json:"object"`
	}

	if err := json.Unmarshal(body, &accept); err != nil {
		return fmt.Errorf("failed to parse Accept activity: %w", err)
	}

	// Parse the embedded Follow object to get the follow ID
	var followObj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(accept.Object, &followObj); err != nil {
		return fmt.Errorf("failed to parse Accept object: %w", err)
	}

	database := db.GetDB()
	if err := database.AcceptFollowByURI(followObj.ID); err != nil {
		return fmt.Errorf("failed to accept follow: %w", err)
	}

	log.Info().Str("uri", followObj.ID).Str("actor", accept.Actor).Msg("Inbox: follow accepted")
	return nil
}

// handleUpdateActivity processes an Update activity (profile updates, post edits)
func handleUpdateActivity(body []byte) error {
	var update struct {
		ID     string          `json:"id"`
		Type   string          `json:"type"`
		Actor  string          `json:"actor"`
		Object json.RawMessage `json:"object"`
	}

	if err := json.Unmarshal(body, &update); err != nil {
		return fmt.Errorf("failed to parse Update activity: %w", err)
	}

	var objectType struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(update.Object, &objectType); err != nil {
		return fmt.Errorf("failed to parse Update object: %w", err)
	}

	database := db.GetDB()

	switch objectType.Type {
	case "Person", "Service", "Application":
		// Profile update: drop the cached actor document and refetch
		InvalidateActor(update.Actor)
		remoteActor, err := FetchRemoteActor(update.Actor)
		if err != nil {
			return fmt.Errorf("failed to fetch updated actor: %w", err)
		}
		log.Info().Str("actor", remoteActor.Handle()).Msg("Inbox: updated profile")

	case "Note", "Article":
		// Post edit: the activity is stored under the Create activity ID,
		// so look it up by the object ID
		err, existingActivity := database.ReadActivityByObjectURI(objectType.ID)
		if err != nil || existingActivity == nil {
			log.Debug().Str("uri", objectType.ID).Msg("Inbox: object not found for update, ignoring")
			return nil
		}

		// Keep the activity type as Create so the post stays in the timeline
		existingActivity.RawJSON = string(body)
		if err := database.UpdateActivity(existingActivity); err != nil {
			return fmt.Errorf("failed to update activity: %w", err)
		}
		log.Info().Str("uri", objectType.ID).Msg("Inbox: updated post")

	default:
		log.Info().Str("type", objectType.Type).Msg("Inbox: unsupported Update object type")
	}

	return nil
}

// handleDeleteActivity processes a Delete activity (post or account deletion)
func handleDeleteActivity(body []byte) error {
	var deleteAct struct {
		ID     string      `json:"id"`
		Type   string      `json:"type"`
		Actor  string      `json:"actor"`
		Object interface{} `json:"object"`
	}

	if err := json.Unmarshal(body, &deleteAct); err != nil {
		return fmt.Errorf("failed to parse Delete activity: %w", err)
	}

	database := db.GetDB()

	// Object can be either a string URI or an embedded object (often a Tombstone)
	var objectURI string
	switch obj := deleteAct.Object.(type) {
	case string:
		objectURI = obj
	case map[string]interface{}:
		if id, ok := obj["id"].(string); ok {
			objectURI = id
		}
	}

	if objectURI == "" {
		return fmt.Errorf("could not determine object URI from Delete activity")
	}

	if objectURI == deleteAct.Actor {
		// Actor deletion: remove the account and everything tied to it
		log.Info().Str("actor", deleteAct.Actor).Msg("Inbox: actor deleted their account")

		err, remoteAcc := database.ReadRemoteAccountByActorURI(objectURI)
		if err == nil && remoteAcc != nil {
			database.DeleteFollowsByRemoteAccountId(remoteAcc.Id)
			database.DeleteRemoteAccount(remoteAcc.Id)
			InvalidateActor(objectURI)
		}
	} else {
		// Object deletion, find the activity containing this object
		err, activity := database.ReadActivityByObjectURI(objectURI)
		if err != nil || activity == nil {
			log.Debug().Str("uri", objectURI).Msg("Inbox: object not found for deletion, ignoring")
			return nil
		}

		if err := database.DeleteActivity(activity.Id); err != nil {
			return fmt.Errorf("failed to delete activity: %w", err)
		}
		log.Info().Str("uri", objectURI).Msg("Inbox: deleted post")
	}

	return nil
}

package web

import (
	"net/http"
	"regexp"

	"github.com/deemkeen/anancus/activitypub"
	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/domain"
	"github.com/deemkeen/anancus/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{1,30}$`)

type createAccountRequest struct {
	Username string `json:"username"`
}

type updateProfileRequest struct {
	DisplayName string `json:"display_name"`
	Summary     string `json:"summary"`
	AvatarURL   string `json:"avatar_url"`
}

type createNoteRequest struct {
	Message        string `json:"message"`
	Visibility     string `json:"visibility"`
	Sensitive      bool   `json:"sensitive"`
	ContentWarning string `json:"content_warning"`
}

type updateNoteRequest struct {
	Message string `json:"message"`
}

type followRequest struct {
	Actor string `json:"actor"`
}

// accountResponse is the public shape of a local account.
type accountResponse struct {
	Id          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   string    `json:"created_at"`
}

func toAccountResponse(acc *domain.Account) accountResponse {
	return accountResponse{
		Id:          acc.Id,
		Username:    acc.Username,
		DisplayName: acc.DisplayName,
		Summary:     acc.Summary,
		AvatarURL:   acc.AvatarURL,
		CreatedAt:   acc.CreatedAt.String(),
	}
}

// HandleCreateAccount registers a new local account. Registration is
// refused on closed instances.
func HandleCreateAccount(c *gin.Context, conf *util.AppConfig) {
	if conf.Conf.Closed {
		c.JSON(http.StatusForbidden, gin.H{"error": "registration closed"})
		return
	}

	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !usernamePattern.MatchString(req.Username) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username"})
		return
	}

	database := db.GetDB()
	if err, existing := database.ReadAccByUsername(req.Username); err == nil && existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "username taken"})
		return
	}

	err, acc := database.CreateAccount(req.Username)
	if err != nil {
		log.Error().Err(err).Str("username", req.Username).Msg("Could not create account")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create account"})
		return
	}

	log.Info().Str("username", acc.Username).Msg("Created local account")
	c.JSON(http.StatusCreated, toAccountResponse(acc))
}

// HandleUpdateProfile updates display name, summary and avatar of a
// local account.
func HandleUpdateProfile(c *gin.Context) {
	acc := localAccount(c)
	if acc == nil {
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	database := db.GetDB()
	if err := database.UpdateAccountProfile(acc.Id, req.DisplayName, req.Summary, req.AvatarURL); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update profile"})
		return
	}

	err, updated := database.ReadAccById(acc.Id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read account"})
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(updated))
}

// HandleCreateNote publishes a note for a local account and federates
// it to the account's followers.
func HandleCreateNote(c *gin.Context, conf *util.AppConfig) {
	acc := localAccount(c)
	if acc == nil {
		return
	}

	var req createNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message required"})
		return
	}
	if req.Visibility != "" && req.Visibility != "public" && req.Visibility != "followers" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid visibility"})
		return
	}

	database := db.GetDB()
	err, noteId := database.CreateNote(domain.SaveNote{
		UserId:         acc.Id,
		Message:        req.Message,
		Visibility:     req.Visibility,
		Sensitive:      req.Sensitive,
		ContentWarning: req.ContentWarning,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create note"})
		return
	}

	err, note := database.ReadNoteId(noteId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read note"})
		return
	}

	if conf.Conf.WithAp {
		if err := activitypub.SendCreate(note, acc, conf); err != nil {
			log.Warn().Err(err).Str("note", noteId.String()).Msg("Could not queue note for delivery")
		}
	}

	c.JSON(http.StatusCreated, note)
}

// HandleUpdateNote edits the message of an existing note.
func HandleUpdateNote(c *gin.Context) {
	acc := localAccount(c)
	if acc == nil {
		return
	}
	note := ownedNote(c, acc)
	if note == nil {
		return
	}

	var req updateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message required"})
		return
	}

	database := db.GetDB()
	if err := database.UpdateNote(note.Id, req.Message); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update note"})
		return
	}

	err, updated := database.ReadNoteId(note.Id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read note"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// HandleDeleteNote removes a note of a local account.
func HandleDeleteNote(c *gin.Context) {
	acc := localAccount(c)
	if acc == nil {
		return
	}
	note := ownedNote(c, acc)
	if note == nil {
		return
	}

	if err := db.GetDB().DeleteNoteById(note.Id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete note"})
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleFollow makes a local account follow a remote actor. The follow
// stays pending until the remote server accepts it.
func HandleFollow(c *gin.Context, conf *util.AppConfig) {
	if !conf.Conf.WithAp {
		c.JSON(http.StatusBadRequest, gin.H{"error": "federation disabled"})
		return
	}

	acc := localAccount(c)
	if acc == nil {
		return
	}

	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Actor == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actor required"})
		return
	}

	remoteActor, err := activitypub.GetOrFetchActor(req.Actor)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not resolve actor"})
		return
	}

	if err := activitypub.SendFollow(acc, remoteActor.ActorURI, conf); err != nil {
		log.Warn().Err(err).Str("actor", remoteActor.ActorURI).Msg("Could not send follow")
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not send follow"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "follow requested", "actor": remoteActor.Handle()})
}

func localAccount(c *gin.Context) *domain.Account {
	err, acc := db.GetDB().ReadAccByUsername(c.Param("handle"))
	if err != nil || acc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return nil
	}
	return acc
}

func ownedNote(c *gin.Context, acc *domain.Account) *domain.Note {
	noteId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "note not found"})
		return nil
	}

	err, note := db.GetDB().ReadNoteId(noteId)
	if err != nil || note == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "note not found"})
		return nil
	}
	if note.CreatedBy != acc.Username {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your note"})
		return nil
	}
	return note
}

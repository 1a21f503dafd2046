package domain

import (
	"github.com/google/uuid"
	"time"
)

// RemoteAccount represents a cached federated user
type RemoteAccount struct {
	Id            uuid.UUID
	Username      string
	Domain        string
	ActorURI      string
	DisplayName   string
	Summary       string
	InboxURI      string
	OutboxURI     string
	PublicKeyPem  string
	AvatarURL     string
	LastFetchedAt time.Time
}

// Handle returns the account's fediverse handle.
func (acc *RemoteAccount) Handle() string {
	return "@" + acc.Username + "@" + acc.Domain
}

// Follow represents a follow relationship. The row always reads
// "AccountId follows TargetAccountId"; either side may be local or remote.
type Follow struct {
	Id              uuid.UUID
	AccountId       uuid.UUID
	TargetAccountId uuid.UUID
	URI             string // ActivityPub Follow activity URI
	CreatedAt       time.Time
	Accepted        bool
}

// Activity represents an ActivityPub activity (for logging/deduplication)
type Activity struct {
	Id           uuid.UUID
	ActivityURI  string
	ActivityType string // Follow, Create, Accept, Undo, etc.
	ActorURI     string
	ObjectURI    string
	RawJSON      string
	Processed    bool
	CreatedAt    time.Time
	Local        bool // true if originated from this server
}

// DeliveryQueueItem represents an item in the delivery queue
type DeliveryQueueItem struct {
	Id           uuid.UUID
	InboxURI     string
	ActivityJSON string // The complete activity to deliver
	Attempts     int
	NextRetryAt  time.Time
	CreatedAt    time.Time
}

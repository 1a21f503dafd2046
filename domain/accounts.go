package domain

import (
	"fmt"
	"github.com/google/uuid"
	"time"
)

type Account struct {
	Id            uuid.UUID
	Username      string
	CreatedAt     time.Time
	DisplayName   string
	Summary       string
	AvatarURL     string
	WebPublicKey  string
	WebPrivateKey string
}

func (acc *Account) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tUsername: %s \n\tCREATED_AT: %s)", acc.Id, acc.Username, acc.CreatedAt)
}

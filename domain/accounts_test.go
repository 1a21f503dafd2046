package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAccountToString(t *testing.T) {
	id := uuid.New()
	acc := Account{
		Id:        id,
		Username:  "testuser",
		CreatedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}

	result := acc.ToString()

	if !strings.Contains(result, id.String()) {
		t.Errorf("ToString should contain ID %s, got: %s", id, result)
	}
	if !strings.Contains(result, "testuser") {
		t.Errorf("ToString should contain username, got: %s", result)
	}
}

func TestAccountFields(t *testing.T) {
	id := uuid.New()
	now := time.Now()

	acc := Account{
		Id:            id,
		Username:      "alice",
		CreatedAt:     now,
		DisplayName:   "Alice",
		Summary:       "Just a test account",
		AvatarURL:     "https://cdn.example/alice.png",
		WebPublicKey:  "webpub",
		WebPrivateKey: "webpriv",
	}

	if acc.Id != id {
		t.Errorf("Expected Id %s, got %s", id, acc.Id)
	}
	if acc.Username != "alice" {
		t.Errorf("Expected Username alice, got %s", acc.Username)
	}
	if acc.DisplayName != "Alice" {
		t.Errorf("Expected DisplayName Alice, got %s", acc.DisplayName)
	}
	if acc.WebPublicKey != "webpub" || acc.WebPrivateKey != "webpriv" {
		t.Error("Expected signing keys to be kept as given")
	}
}

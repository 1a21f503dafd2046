package activitypub

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/domain"
	"github.com/deemkeen/anancus/util"
	"github.com/rs/zerolog/log"
)

// retryBackoffMinutes is the wait before each retry, indexed by attempt.
var retryBackoffMinutes = []int{1, 5, 15, 60, 240, 1440}

const maxDeliveryAttempts = 10

// StartDeliveryWorker starts a background worker that processes the delivery queue
func StartDeliveryWorker(conf *util.AppConfig) {
	log.Info().Msg("Starting ActivityPub delivery worker")

	ticker := time.NewTicker(10 * time.Second)
	go func() {
		for range ticker.C {
			processDeliveryQueue(conf)
		}
	}()
}

// processDeliveryQueue processes pending deliveries from the queue
func processDeliveryQueue(conf *util.AppConfig) {
	database := db.GetDB()

	err, items := database.ReadPendingDeliveries(50)
	if err != nil {
		log.Error().Err(err).Msg("DeliveryWorker: failed to read queue")
		return
	}

	if items == nil || len(*items) == 0 {
		return
	}

	log.Info().Int("count", len(*items)).Msg("DeliveryWorker: processing pending deliveries")

	for _, item := range *items {
		if err := deliverActivity(&item, conf); err != nil {
			item.Attempts++
			backoff := retryBackoffMinutes[min(item.Attempts-1, len(retryBackoffMinutes)-1)]
			item.NextRetryAt = time.Now().Add(time.Duration(backoff) * time.Minute)

			if item.Attempts >= maxDeliveryAttempts {
				log.Warn().Str("inbox", item.InboxURI).Int("attempts", item.Attempts).Msg("DeliveryWorker: giving up on delivery")
				database.DeleteDelivery(item.Id)
			} else {
				log.Info().Err(err).Str("inbox", item.InboxURI).Int("attempt", item.Attempts).Int("retryMinutes", backoff).Msg("DeliveryWorker: delivery failed, will retry")
				database.UpdateDeliveryAttempt(item.Id, item.Attempts, item.NextRetryAt)
			}
		} else {
			log.Info().Str("inbox", item.InboxURI).Msg("DeliveryWorker: delivered")
			database.DeleteDelivery(item.Id)
		}
	}
}

// deliverActivity attempts to deliver a single activity to an inbox
func deliverActivity(item *domain.DeliveryQueueItem, conf *util.AppConfig) error {
	var activity map[string]interface{}
	if err := json.Unmarshal([]byte(item.ActivityJSON), &activity); err != nil {
		return fmt.Errorf("failed to parse activity JSON: %w", err)
	}

	actor, ok := activity["actor"].(string)
	if !ok {
		return fmt.Errorf("activity missing actor field")
	}

	// Actor format: "https://example.com/users/alice"
	parts := strings.Split(actor, "/")
	if len(parts) < 2 {
		return fmt.Errorf("invalid actor URI: %s", actor)
	}
	username := parts[len(parts)-1]

	database := db.GetDB()
	err, localAccount := database.ReadAccByUsername(username)
	if err != nil {
		return fmt.Errorf("failed to get local account: %w", err)
	}

	privateKey, err := ParsePrivateKey(localAccount.WebPrivateKey)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	req, err := http.NewRequest("POST", item.InboxURI, bytes.NewReader([]byte(item.ActivityJSON)))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Digest header is part of the signed material
	hash := sha256.Sum256([]byte(item.ActivityJSON))
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", "anancus/1.0 ActivityPub")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", digest)

	keyID := fmt.Sprintf("https://%s/users/%s#main-key", conf.Conf.SslDomain, username)
	if err := SignRequest(req, privateKey, keyID); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}

	return nil
}

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func init() {
	// Load env from .env
	godotenv.Load()
}

func getPubSubProjectID() string {
	// Prefer explicit override.
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	return os.Getenv("GCP_PROJECT")
}

// PubSubEnabled reports whether order events should be published at all.
func PubSubEnabled() bool {
	return getPubSubProjectID() != "" && os.Getenv("PUBSUB_ORDER_TOPIC") != ""
}

func getPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	var (
		c   *pubsub.Client
		err error
	)
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
	} else {
		// Uses Application Default Credentials (service account or GOOGLE_APPLICATION_CREDENTIALS).
		c, err = pubsub.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, err
	}
	pubsubClient = c
	log.Printf("pubsub client ready (project_id=%s)", projectID)
	return pubsubClient, nil
}

// PubSubPublisher publishes order lifecycle events to PUBSUB_ORDER_TOPIC.
// It is used after commit only; a failed publish never undoes a stock movement.
type PubSubPublisher struct {
	Topic   string
	Timeout time.Duration
}

func NewPubSubPublisher() *PubSubPublisher {
	return &PubSubPublisher{
		Topic:   os.Getenv("PUBSUB_ORDER_TOPIC"),
		Timeout: 10 * time.Second,
	}
}

func (p *PubSubPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	if p.Topic == "" {
		return errors.New("PUBSUB_ORDER_TOPIC is required")
	}
	// Detach from the request so a finished HTTP call does not cancel the publish.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.Timeout)
	defer cancel()

	client, err := getPubSubClient(pubCtx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	result := client.Topic(p.Topic).Publish(pubCtx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"event_type": eventType},
	})
	if _, err := result.Get(pubCtx); err != nil {
		return fmt.Errorf("publish %s to %s: %w", eventType, p.Topic, err)
	}
	return nil
}

func ClosePubSub() {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		_ = pubsubClient.Close()
		pubsubClient = nil
	}
}

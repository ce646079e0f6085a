package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/intergov/notary/internal/config"
	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/log"
	"github.com/intergov/notary/internal/redis"
)

// Topics
const (
	EventCredentialEnqueued = "credential.enqueued" // EventCredentialEnqueued a wrapped credential was handed to the notarization queue
	EventCredentialAnchored = "credential.anchored" // EventCredentialAnchored the proof root of a credential was anchored
)

// Event defines the payload
type Event interface {
	Marshal() (msg Message, err error)
	Unmarshal(msg Message) error
}

// Message is the payload received in a pubsub subscriber. The input for callback functions
type Message []byte

// Publisher sends topics to the pubsub
type Publisher interface {
	Publish(ctx context.Context, topic string, payload Event) error
}

// EventHandler is the type that functions that handle an event must comply.
type EventHandler func(context.Context, Message) error

// Subscriber subscribes to the pubsub topics
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, callback EventHandler)
}

// Client is formed by the publisher and subscriber
type Client interface {
	Publisher
	Subscriber
	Close() error
}

// CredentialEnqueuedEvent is published by the orchestrator after the notarization enqueue
type CredentialEnqueuedEvent struct {
	CredentialID string `json:"credentialID"`
	BlobKey      string `json:"blobKey"`
}

// Marshal marshals the event into a pubsub.Message
func (ev *CredentialEnqueuedEvent) Marshal() (Message, error) {
	return json.Marshal(ev)
}

// Unmarshal creates an event from that message
func (ev *CredentialEnqueuedEvent) Unmarshal(msg Message) error {
	return json.Unmarshal(msg, ev)
}

// CredentialAnchoredEvent is published by the issuance worker once the receipt is in
type CredentialAnchoredEvent struct {
	CredentialID string `json:"credentialID,omitempty"`
	BlobKey      string `json:"blobKey"`
	TxHash       string `json:"txHash"`
}

// Marshal marshals the event into a pubsub.Message
func (ev *CredentialAnchoredEvent) Marshal() (Message, error) {
	return json.Marshal(ev)
}

// Unmarshal creates an event from that message
func (ev *CredentialAnchoredEvent) Unmarshal(msg Message) error {
	return json.Unmarshal(msg, ev)
}

// NewPubSub creates a new pubsub client based on the cache configuration
func NewPubSub(ctx context.Context, cfg config.Cache) (Client, error) {
	switch cfg.Provider {
	case config.CacheProviderRedis:
		rdb, err := redis.Open(ctx, cfg.URL)
		if err != nil {
			log.Error(ctx, "cannot connect to redis", "err", err, "host", cfg.URL)
			return nil, err
		}
		return NewRedis(rdb), nil
	case config.CacheProviderValKey:
		client, err := redis.OpenValKey(ctx, cfg.URL)
		if err != nil {
			log.Error(ctx, "cannot connect to valkey", "err", err, "host", cfg.URL)
			return nil, err
		}
		return NewValKeyClient(client), nil
	}
	return nil, domain.NewConfigurationError("pubsub provider", fmt.Errorf("provider %q has no pubsub", cfg.Provider))
}

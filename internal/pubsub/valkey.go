package pubsub

import (
	"context"

	"github.com/valkey-io/valkey-go"

	"github.com/intergov/notary/internal/log"
)

type valkeyClient struct {
	client valkey.Client
}

// NewValKeyClient returns a new pubsub client based on Valkey
func NewValKeyClient(client valkey.Client) Client {
	return &valkeyClient{client: client}
}

// Publish publishes a new topic payload
func (vk *valkeyClient) Publish(ctx context.Context, topic string, event Event) error {
	msg, err := event.Marshal()
	if err != nil {
		return err
	}
	return vk.client.Do(ctx, vk.client.B().Publish().Channel(topic).Message(string(msg)).Build()).Error()
}

// Subscribe dispatches topic messages to callback in the background until ctx is done
func (vk *valkeyClient) Subscribe(ctx context.Context, topic string, callback EventHandler) {
	go func() {
		err := vk.client.Receive(ctx, vk.client.B().Subscribe().Channel(topic).Build(), func(msg valkey.PubSubMessage) {
			if err := callback(ctx, Message(msg.Message)); err != nil {
				log.Error(ctx, "error processing message", "err", err, "topic", topic)
			}
		})
		if err != nil && ctx.Err() == nil {
			log.Error(ctx, "error subscribing to topic", "err", err, "topic", topic)
		}
	}()
}

// Close closes the pubsub client
func (vk *valkeyClient) Close() error {
	vk.client.Close()
	return nil
}

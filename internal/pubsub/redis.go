package pubsub

import (
	"context"

	"github.com/go-redis/redis/v8"

	"github.com/intergov/notary/internal/log"
)

// RedisClient struct
type RedisClient struct {
	conn *redis.Client
}

// NewRedis returns a redis pubsub client
func NewRedis(rdb *redis.Client) Client {
	return &RedisClient{rdb}
}

// Publish publishes a new topic payload
func (rdb *RedisClient) Publish(ctx context.Context, topic string, event Event) error {
	msg, err := event.Marshal()
	if err != nil {
		return err
	}
	return rdb.conn.Publish(ctx, topic, []byte(msg)).Err()
}

// Subscribe waits for the subscription to be confirmed and dispatches messages to callback
// until ctx is done.
func (rdb *RedisClient) Subscribe(ctx context.Context, topic string, callback EventHandler) {
	ps := rdb.conn.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		log.Error(ctx, "subscribing to topic", "err", err, "topic", topic)
		_ = ps.Close()
		return
	}
	ch := ps.Channel()
	go func() {
		defer func() { _ = ps.Close() }()
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				if event.Channel != topic {
					log.Error(ctx, "msg channel != topic", "channel", event.Channel, "topic", topic)
					continue
				}
				if err := callback(ctx, Message(event.Payload)); err != nil {
					log.Error(ctx, "executing callback function", "err", err, "topic", topic)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close closes the underlying connection
func (rdb *RedisClient) Close() error {
	return rdb.conn.Close()
}

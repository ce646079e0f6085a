package redis

import (
	"context"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/valkey-io/valkey-go"
)

// Open opens a connection to redis and returns it
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := Status(ctx, rdb); err != nil {
		return nil, err
	}
	return rdb, nil
}

// Status returns nil of redis status is ok. Otherwise a redis status err
func Status(ctx context.Context, rdb *redis.Client) error {
	if pingCmd := rdb.Ping(ctx); pingCmd.Err() != nil {
		return pingCmd.Err()
	}
	return nil
}

// OpenValKey opens a valkey client. url is either a redis:// url or a host:port address.
func OpenValKey(ctx context.Context, url string) (valkey.Client, error) {
	opts := valkey.ClientOption{InitAddress: []string{url}}
	if strings.Contains(url, "://") {
		parsed, err := valkey.ParseURL(url)
		if err != nil {
			return nil, err
		}
		opts = parsed
	}
	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, err
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Pinger adapts a redis client to the health checker
type Pinger struct {
	Client *redis.Client
}

// Ping pings redis
func (p Pinger) Ping(ctx context.Context) error {
	return Status(ctx, p.Client)
}

// ValKeyPinger adapts a valkey client to the health checker
type ValKeyPinger struct {
	Client valkey.Client
}

// Ping pings valkey
func (p ValKeyPinger) Ping(ctx context.Context) error {
	return p.Client.Do(ctx, p.Client.B().Ping().Build()).Error()
}

// Package redisstore provides the Redis-backed implementations of the user,
// refresh token and session stores. Every multi-key mutation runs as a Lua
// script, which gives the ledger its atomic consume / revoke-all semantics
// without client-side locking.
package redisstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	userKeyPrefix      = "user:"
	userEmailIdxPrefix = "user:email:"
	userNameIdxPrefix  = "user:name:"
	userProvIdxPrefix  = "user:prov:"
	refreshKeyPrefix   = "rt:"
	refreshUserPrefix  = "rt:user:"
	sessionKeyPrefix   = "sess:"
	sessionUserPrefix  = "sess:user:"
)

// NewClient constructs a Redis client from a URL and verifies connectivity.
// The client is owned by the composition root and injected into the stores;
// there is no lazily initialized global.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "[redisstore.NewClient] ParseURL")
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "[redisstore.NewClient] Ping")
	}
	return client, nil
}

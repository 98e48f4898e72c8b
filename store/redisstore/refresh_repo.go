package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/taskify/auth-server/token/refresh"
)

var _ refresh.Repo = (*RefreshTokenRepo)(nil)

var storeTokenScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "token", ARGV[1],
  "user_id", ARGV[2],
  "revoked", "0",
  "expires_at", ARGV[3],
  "created_at", ARGV[4])
redis.call("SADD", KEYS[2], ARGV[1])
return 1
`)

// consumeTokenScript is the compare-and-set at the heart of rotation: the
// existence, ownership, revocation and expiry checks and the revoke itself
// happen in one atomic script, so of two concurrent consumers of the same
// token exactly one sees "ok" and the other sees "revoked".
var consumeTokenScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return "missing"
end
if redis.call("HGET", KEYS[1], "user_id") ~= ARGV[1] then
  return "missing"
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
  return "revoked"
end
if tonumber(ARGV[2]) > tonumber(redis.call("HGET", KEYS[1], "expires_at")) then
  return "expired"
end
redis.call("HSET", KEYS[1], "revoked", "1")
return "ok"
`)

var revokeAllScript = redis.NewScript(`
local tokens = redis.call("SMEMBERS", KEYS[1])
local revoked = 0
for _, t in ipairs(tokens) do
  local key = ARGV[1] .. t
  if redis.call("HGET", key, "revoked") == "0" then
    redis.call("HSET", key, "revoked", "1")
    revoked = revoked + 1
  end
end
return revoked
`)

// RefreshTokenRepo persists refresh token records as Redis hashes plus a
// per-user set for revoke-all. Records are kept after revocation; nothing
// expires them out of the keyspace so replay attempts stay observable.
type RefreshTokenRepo struct {
	client redis.UniversalClient
}

func NewRefreshTokenRepo(client redis.UniversalClient) *RefreshTokenRepo {
	return &RefreshTokenRepo{client: client}
}

func (r *RefreshTokenRepo) Store(ctx context.Context, record *refresh.StoredRefreshToken) error {
	keys := []string{refreshKeyPrefix + record.Token, refreshUserPrefix + record.UserID}
	stored, err := storeTokenScript.Run(ctx, r.client, keys,
		record.Token,
		record.UserID,
		record.ExpiresAt.Unix(),
		record.CreatedAt.Unix(),
	).Int()
	if err != nil {
		return errors.Wrap(err, "[RefreshTokenRepo.Store] script")
	}
	if stored == 0 {
		return refresh.ErrDuplicateToken
	}
	return nil
}

func (r *RefreshTokenRepo) Consume(ctx context.Context, tokenStr, userID string, now time.Time) error {
	result, err := consumeTokenScript.Run(ctx, r.client,
		[]string{refreshKeyPrefix + tokenStr},
		userID,
		now.Unix(),
	).Text()
	if err != nil {
		return errors.Wrap(err, "[RefreshTokenRepo.Consume] script")
	}

	switch result {
	case "ok":
		return nil
	case "missing":
		return refresh.ErrTokenNotFound
	case "revoked":
		return refresh.ErrTokenRevoked
	case "expired":
		return refresh.ErrTokenExpired
	default:
		return errors.Errorf("[RefreshTokenRepo.Consume] unexpected result %q", result)
	}
}

func (r *RefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	revoked, err := revokeAllScript.Run(ctx, r.client,
		[]string{refreshUserPrefix + userID},
		refreshKeyPrefix,
	).Int()
	if err != nil {
		return 0, errors.Wrap(err, "[RefreshTokenRepo.RevokeAllForUser] script")
	}
	return revoked, nil
}

func (r *RefreshTokenRepo) Get(ctx context.Context, tokenStr string) (*refresh.StoredRefreshToken, error) {
	fields, err := r.client.HGetAll(ctx, refreshKeyPrefix+tokenStr).Result()
	if err != nil {
		return nil, errors.Wrap(err, "[RefreshTokenRepo.Get] HGetAll")
	}
	if len(fields) == 0 {
		return nil, refresh.ErrTokenNotFound
	}

	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "[RefreshTokenRepo.Get] expires_at")
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "[RefreshTokenRepo.Get] created_at")
	}

	return &refresh.StoredRefreshToken{
		Token:     fields["token"],
		UserID:    fields["user_id"],
		Revoked:   fields["revoked"] == "1",
		ExpiresAt: time.Unix(expiresAt, 0),
		CreatedAt: time.Unix(createdAt, 0),
	}, nil
}

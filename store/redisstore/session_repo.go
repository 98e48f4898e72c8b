package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/taskify/auth-server/sessions"
)

var _ sessions.Repo = (*SessionRepo)(nil)

var closeAllSessionsScript = redis.NewScript(`
local ids = redis.call("SMEMBERS", KEYS[1])
local closed = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  if redis.call("HGET", key, "active") == "1" then
    redis.call("HSET", key, "active", "0")
    closed = closed + 1
  end
end
return closed
`)

type SessionRepo struct {
	client redis.UniversalClient
}

func NewSessionRepo(client redis.UniversalClient) *SessionRepo {
	return &SessionRepo{client: client}
}

func (r *SessionRepo) Create(ctx context.Context, session *sessions.Session) error {
	key := sessionKeyPrefix + session.ID
	active := "0"
	if session.Active {
		active = "1"
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key,
		"id", session.ID,
		"user_id", session.UserID,
		"active", active,
		"user_agent", session.Metadata.UserAgent,
		"ip", session.Metadata.IP,
		"created_at", session.CreatedAt.Unix(),
		"expires_at", session.ExpiresAt.Unix(),
		"last_accessed", session.LastAccessed.Unix(),
	)
	pipe.SAdd(ctx, sessionUserPrefix+session.UserID, session.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "[SessionRepo.Create] pipeline")
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*sessions.Session, error) {
	fields, err := r.client.HGetAll(ctx, sessionKeyPrefix+id).Result()
	if err != nil {
		return nil, errors.Wrap(err, "[SessionRepo.Get] HGetAll")
	}
	if len(fields) == 0 {
		return nil, sessions.ErrNotFound
	}

	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "[SessionRepo.Get] created_at")
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "[SessionRepo.Get] expires_at")
	}
	lastAccessed, err := strconv.ParseInt(fields["last_accessed"], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "[SessionRepo.Get] last_accessed")
	}

	return &sessions.Session{
		ID:     fields["id"],
		UserID: fields["user_id"],
		Active: fields["active"] == "1",
		Metadata: sessions.Metadata{
			UserAgent: fields["user_agent"],
			IP:        fields["ip"],
		},
		CreatedAt:    time.Unix(createdAt, 0),
		ExpiresAt:    time.Unix(expiresAt, 0),
		LastAccessed: time.Unix(lastAccessed, 0),
	}, nil
}

func (r *SessionRepo) CloseAllForUser(ctx context.Context, userID string) (int, error) {
	closed, err := closeAllSessionsScript.Run(ctx, r.client,
		[]string{sessionUserPrefix + userID},
		sessionKeyPrefix,
	).Int()
	if err != nil {
		return 0, errors.Wrap(err, "[SessionRepo.CloseAllForUser] script")
	}
	return closed, nil
}

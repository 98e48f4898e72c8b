package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/taskify/auth-server/users"
)

var _ users.UserRepo = (*UserRepo)(nil)

// createUserScript inserts the record and all uniqueness indexes
// all-or-nothing. KEYS[1] is the record key, remaining KEYS are index keys.
var createUserScript = redis.NewScript(`
for i = 2, #KEYS do
  if redis.call("EXISTS", KEYS[i]) == 1 then
    return 0
  end
end
redis.call("SET", KEYS[1], ARGV[1])
for i = 2, #KEYS do
  redis.call("SET", KEYS[i], ARGV[2])
end
return 1
`)

type UserRepo struct {
	client redis.UniversalClient
}

func NewUserRepo(client redis.UniversalClient) *UserRepo {
	return &UserRepo{client: client}
}

type storedUser struct {
	users.User
	PasswordHash string `json:"password_hash,omitempty"` // shadow the json:"-" field for storage
}

func (r *UserRepo) Create(ctx context.Context, user *users.User) error {
	payload, err := json.Marshal(storedUser{User: *user, PasswordHash: user.PasswordHash})
	if err != nil {
		return errors.Wrap(err, "[UserRepo.Create] Marshal")
	}

	keys := []string{
		userKeyPrefix + user.ID,
		userEmailIdxPrefix + user.Email,
		userNameIdxPrefix + user.Username,
	}
	if user.ProviderID != "" {
		keys = append(keys, userProvIdxPrefix+user.Provider+":"+user.ProviderID)
	}

	created, err := createUserScript.Run(ctx, r.client, keys, payload, user.ID).Int()
	if err != nil {
		return errors.Wrap(err, "[UserRepo.Create] script")
	}
	if created == 0 {
		return users.ErrDuplicate
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	return r.get(ctx, userKeyPrefix+id)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.getByIndex(ctx, userEmailIdxPrefix+email)
}

func (r *UserRepo) GetByProvider(ctx context.Context, provider, providerID string) (*users.User, error) {
	return r.getByIndex(ctx, userProvIdxPrefix+provider+":"+providerID)
}

func (r *UserRepo) Update(ctx context.Context, id string, patch users.Patch) (*users.User, error) {
	// Patch fields are never indexed, so a plain read-modify-write is safe
	// with respect to the uniqueness constraints.
	user, err := r.get(ctx, userKeyPrefix+id)
	if err != nil {
		return nil, err
	}

	if user.Apply(patch) {
		user.UpdatedAt = time.Now()
		payload, err := json.Marshal(storedUser{User: *user, PasswordHash: user.PasswordHash})
		if err != nil {
			return nil, errors.Wrap(err, "[UserRepo.Update] Marshal")
		}
		if err := r.client.Set(ctx, userKeyPrefix+id, payload, 0).Err(); err != nil {
			return nil, errors.Wrap(err, "[UserRepo.Update] Set")
		}
	}
	return user, nil
}

func (r *UserRepo) getByIndex(ctx context.Context, indexKey string) (*users.User, error) {
	id, err := r.client.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, users.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[UserRepo.getByIndex] Get")
	}
	return r.get(ctx, userKeyPrefix+id)
}

func (r *UserRepo) get(ctx context.Context, key string) (*users.User, error) {
	payload, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, users.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[UserRepo.get] Get")
	}

	var stored storedUser
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, errors.Wrap(err, "[UserRepo.get] Unmarshal")
	}
	user := stored.User
	user.PasswordHash = stored.PasswordHash
	return &user, nil
}

package fakeuserrepo

import (
	"context"
	"sync"
	"time"

	"github.com/taskify/auth-server/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users       map[string]*users.User
	emailIds    map[string]string // email to user id
	usernameIds map[string]string // username to user id
	providerIds map[string]string // provider+providerID to user id
	lock        sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:       make(map[string]*users.User),
		emailIds:    make(map[string]string),
		usernameIds: make(map[string]string),
		providerIds: make(map[string]string),
	}
}

func providerKey(provider, providerID string) string {
	return provider + ":" + providerID
}

func (ur *FakeUserRepo) Create(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if _, ok := ur.emailIds[user.Email]; ok {
		return users.ErrDuplicate
	}
	if _, ok := ur.usernameIds[user.Username]; ok {
		return users.ErrDuplicate
	}
	if user.ProviderID != "" {
		if _, ok := ur.providerIds[providerKey(user.Provider, user.ProviderID)]; ok {
			return users.ErrDuplicate
		}
	}

	clone := *user
	ur.users[user.ID] = &clone
	ur.emailIds[user.Email] = user.ID
	ur.usernameIds[user.Username] = user.ID
	if user.ProviderID != "" {
		ur.providerIds[providerKey(user.Provider, user.ProviderID)] = user.ID
	}
	return nil
}

func (ur *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (ur *FakeUserRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[email]
	if !ok {
		return nil, users.ErrNotFound
	}
	clone := *ur.users[id]
	return &clone, nil
}

func (ur *FakeUserRepo) GetByProvider(_ context.Context, provider, providerID string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.providerIds[providerKey(provider, providerID)]
	if !ok {
		return nil, users.ErrNotFound
	}
	clone := *ur.users[id]
	return &clone, nil
}

func (ur *FakeUserRepo) Update(_ context.Context, id string, patch users.Patch) (*users.User, error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	if user.Apply(patch) {
		user.UpdatedAt = time.Now()
	}
	clone := *user
	return &clone, nil
}

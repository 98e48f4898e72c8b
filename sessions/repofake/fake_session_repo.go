package fakesessionrepo

import (
	"context"
	"sync"

	"github.com/taskify/auth-server/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type FakeSessionRepo struct {
	sessions map[string]*sessions.Session
	lock     sync.Mutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string]*sessions.Session),
	}
}

func (r *FakeSessionRepo) Create(_ context.Context, session *sessions.Session) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	clone := *session
	r.sessions[session.ID] = &clone
	return nil
}

func (r *FakeSessionRepo) Get(_ context.Context, id string) (*sessions.Session, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	clone := *session
	return &clone, nil
}

func (r *FakeSessionRepo) CloseAllForUser(_ context.Context, userID string) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	closed := 0
	for _, session := range r.sessions {
		if session.UserID == userID && session.Active {
			session.Active = false
			closed++
		}
	}
	return closed, nil
}

// Package memory provides an in-process store implementation. It backs unit
// tests and local development; the semantics mirror store/postgres, including
// the atomic removal cascade (both cascade steps apply under one lock).
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/socialgate/errors"
	"github.com/c360/socialgate/message"
	"github.com/c360/socialgate/store"
	"github.com/c360/socialgate/user"
)

// Store holds both collections behind a single mutex so the user removal
// cascade (relation pull + message purge + row delete) is atomic.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*user.User
	messages map[string]*message.Message

	// Query counters let tests assert at-most-one-fetch-per-key semantics.
	userBatchQueries atomic.Int64
	userPointQueries atomic.Int64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:    make(map[string]*user.User),
		messages: make(map[string]*message.Message),
	}
}

// Users returns the user collection.
func (s *Store) Users() store.UserStore { return (*userStore)(s) }

// Messages returns the message collection.
func (s *Store) Messages() store.MessageStore { return (*messageStore)(s) }

// UserBatchQueries reports how many set queries ran against the user
// collection.
func (s *Store) UserBatchQueries() int64 { return s.userBatchQueries.Load() }

// UserPointQueries reports how many single-user queries ran.
func (s *Store) UserPointQueries() int64 { return s.userPointQueries.Load() }

type userStore Store

func (s *userStore) checkUnique(u *user.User) error {
	for id, existing := range s.users {
		if id == u.ID {
			continue
		}
		if existing.Username == u.Username {
			return errors.WrapValidation(errors.ErrUsernameTaken, "memory", "checkUnique",
				"username is already taken")
		}
		if existing.Email == u.Email {
			return errors.WrapValidation(errors.ErrEmailTaken, "memory", "checkUnique",
				"email is already taken")
		}
	}
	return nil
}

func (s *userStore) Create(ctx context.Context, u *user.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if err := u.HashPassword(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID]; exists {
		return errors.WrapValidation(errors.ErrInvalidConfig, "memory", "Create",
			"user id already exists")
	}
	if err := s.checkUnique(u); err != nil {
		return err
	}

	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u.Clone()
	return nil
}

func (s *userStore) Update(ctx context.Context, u *user.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if err := u.HashPassword(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID]; !exists {
		return errors.WrapNotFound(errors.ErrUserNotFound, "memory", "Update", "user not found")
	}
	if err := s.checkUnique(u); err != nil {
		return err
	}

	u.UpdatedAt = time.Now()
	s.users[u.ID] = u.Clone()
	return nil
}

// Delete removes the user and applies the full cascade: the id is pulled from
// every other user's relation sets and all authored messages are deleted.
// Everything happens under one lock, so no partial cascade is observable.
func (s *userStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[id]; !exists {
		return errors.WrapNotFound(errors.ErrUserNotFound, "memory", "Delete", "user not found")
	}

	for _, other := range s.users {
		other.FollowerIDs = remove(other.FollowerIDs, id)
		other.FollowingIDs = remove(other.FollowingIDs, id)
	}
	for mid, m := range s.messages {
		if m.AuthorID == id {
			delete(s.messages, mid)
		}
	}
	delete(s.users, id)
	return nil
}

func (s *userStore) ByID(ctx context.Context, id string) (*user.User, error) {
	s.userPointQueries.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, errors.WrapNotFound(errors.ErrUserNotFound, "memory", "ByID", "user not found")
	}
	return u.Clone(), nil
}

func (s *userStore) ByIDs(ctx context.Context, ids []string) ([]*user.User, error) {
	s.userBatchQueries.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*user.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			result = append(result, u.Clone())
		}
	}
	return result, nil
}

func (s *userStore) ByLogin(ctx context.Context, login string) (*user.User, error) {
	s.userPointQueries.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Username match first, email fallback second.
	for _, u := range s.users {
		if u.Username == login {
			return u.Clone(), nil
		}
	}
	for _, u := range s.users {
		if u.Email == login {
			return u.Clone(), nil
		}
	}
	return nil, errors.WrapNotFound(errors.ErrUserNotFound, "memory", "ByLogin", "user not found")
}

func (s *userStore) All(ctx context.Context) ([]*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*user.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, u.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

type messageStore Store

func (s *messageStore) Create(ctx context.Context, m *message.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[m.AuthorID]; !ok {
		return errors.WrapValidation(errors.ErrUserNotFound, "memory", "Create",
			"message author does not exist")
	}
	cp := *m
	s.messages[m.ID] = &cp
	return nil
}

func (s *messageStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return errors.WrapNotFound(errors.ErrNotFound, "memory", "Delete", "message not found")
	}
	delete(s.messages, id)
	return nil
}

func (s *messageStore) ByID(ctx context.Context, id string) (*message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, errors.WrapNotFound(errors.ErrNotFound, "memory", "ByID", "message not found")
	}
	cp := *m
	return &cp, nil
}

func (s *messageStore) ByAuthor(ctx context.Context, authorID string) ([]*message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*message.Message
	for _, m := range s.messages {
		if m.AuthorID == authorID {
			cp := *m
			result = append(result, &cp)
		}
	}
	sortByCreation(result)
	return result, nil
}

func (s *messageStore) All(ctx context.Context) ([]*message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*message.Message, 0, len(s.messages))
	for _, m := range s.messages {
		cp := *m
		result = append(result, &cp)
	}
	sortByCreation(result)
	return result, nil
}

func sortByCreation(ms []*message.Message) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].ID < ms[j].ID
		}
		return ms[i].CreatedAt.Before(ms[j].CreatedAt)
	})
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

var _ store.Store = (*Store)(nil)

// Package store defines the persistence boundary consumed by the gateway.
// Implementations live in store/postgres (production) and store/memory
// (tests, local development). The store handle is the one resource shared by
// all in-flight operations and must support concurrent independent calls
// without caller-side locking.
package store

import (
	"context"

	"github.com/c360/socialgate/message"
	"github.com/c360/socialgate/user"
)

// Store bundles the persistent collections handed to every operation context.
type Store interface {
	Users() UserStore
	Messages() MessageStore
}

// UserStore is the user collection.
//
// Create and Update run the password-hash pipeline before committing, so
// plaintext never reaches the underlying rows. Delete is the removal cascade:
// before the user row is gone, the user's id is pulled from every other
// user's follower and following sets and every message the user authored is
// deleted. The cascade is atomic from the caller's point of view.
type UserStore interface {
	Create(ctx context.Context, u *user.User) error
	Update(ctx context.Context, u *user.User) error
	Delete(ctx context.Context, id string) error

	// ByID fetches a single user. Missing users yield a not-found error.
	ByID(ctx context.Context, id string) (*user.User, error)

	// ByIDs fetches the given set of users in one query. Result order is
	// unspecified and missing ids are simply absent - positional
	// correspondence is the batch loader's job, not the store's.
	ByIDs(ctx context.Context, ids []string) ([]*user.User, error)

	// ByLogin resolves a sign-in identifier: username match first, email
	// fallback second.
	ByLogin(ctx context.Context, login string) (*user.User, error)

	All(ctx context.Context) ([]*user.User, error)
}

// MessageStore is the message collection.
type MessageStore interface {
	Create(ctx context.Context, m *message.Message) error
	Delete(ctx context.Context, id string) error
	ByID(ctx context.Context, id string) (*message.Message, error)
	ByAuthor(ctx context.Context, authorID string) ([]*message.Message, error)
	All(ctx context.Context) ([]*message.Message, error)
}

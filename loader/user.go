package loader

import (
	"context"

	"github.com/c360/socialgate/errors"
	"github.com/c360/socialgate/store"
	"github.com/c360/socialgate/user"
)

// UserLoader is the request-scoped cache over the "user by id" key space.
type UserLoader = Loader[string, *user.User]

// NewUserLoader builds a fresh user loader bound to the given store. One
// instance per operation context.
func NewUserLoader(users store.UserStore) *UserLoader {
	return New(BatchUsers(users), Config{})
}

// BatchUsers returns the batch function for user lookups: deduplicate the
// incoming keys, issue one set query against the store, then re-expand the
// fetched rows back to the original (possibly repeating) key order. Keys
// without a backing user resolve to a not-found result at their position.
func BatchUsers(users store.UserStore) BatchFunc[string, *user.User] {
	return func(ctx context.Context, keys []string) []Result[*user.User] {
		unique := make([]string, 0, len(keys))
		seen := make(map[string]struct{}, len(keys))
		for _, key := range keys {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			unique = append(unique, key)
		}

		results := make([]Result[*user.User], len(keys))

		fetched, err := users.ByIDs(ctx, unique)
		if err != nil {
			// A failed set query fails every key in this batch; later
			// batches get a fresh attempt.
			for i := range results {
				results[i] = Result[*user.User]{Err: err}
			}
			return results
		}

		byID := make(map[string]*user.User, len(fetched))
		for _, u := range fetched {
			byID[u.ID] = u
		}

		for i, key := range keys {
			if u, ok := byID[key]; ok {
				results[i] = Result[*user.User]{Value: u}
			} else {
				results[i] = Result[*user.User]{Err: errors.WrapNotFound(
					errors.ErrUserNotFound, "loader", "BatchUsers", "user not found")}
			}
		}
		return results
	}
}

package loader

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/socialgate/errors"
	"github.com/c360/socialgate/store/memory"
	"github.com/c360/socialgate/user"
)

func seedUsers(t *testing.T, s *memory.Store, usernames ...string) map[string]*user.User {
	t.Helper()
	out := make(map[string]*user.User, len(usernames))
	for _, name := range usernames {
		u, err := user.New(uuid.NewString(), name, name+"@example.com", name+"-password")
		require.NoError(t, err)
		require.NoError(t, s.Users().Create(context.Background(), u))
		out[name] = u
	}
	return out
}

func TestBatchUsersDedupAndReexpand(t *testing.T) {
	s := memory.New()
	users := seedUsers(t, s, "a", "b")
	fn := BatchUsers(s.Users())

	keys := []string{users["a"].ID, users["b"].ID, users["a"].ID}
	results := fn(context.Background(), keys)

	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Value.Username)
	assert.Equal(t, "b", results[1].Value.Username)
	assert.Equal(t, "a", results[2].Value.Username)

	// Duplicated keys collapse to one set query against the store.
	assert.Equal(t, int64(1), s.UserBatchQueries())
}

func TestBatchUsersMissingKeyNotFoundInPlace(t *testing.T) {
	s := memory.New()
	users := seedUsers(t, s, "a")
	fn := BatchUsers(s.Users())

	results := fn(context.Background(), []string{users["a"].ID, "missing", users["a"].ID})

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	assert.True(t, errors.IsNotFound(results[1].Err))
	assert.NoError(t, results[2].Err)
}

func TestUserLoaderAtMostOneFetchPerKey(t *testing.T) {
	s := memory.New()
	users := seedUsers(t, s, "a", "b")
	l := NewUserLoader(s.Users())
	ctx := context.Background()

	// Two different resolvers asking for the same user in one operation.
	first, err := l.Load(ctx, users["a"].ID)
	require.NoError(t, err)
	second, err := l.Load(ctx, users["a"].ID)
	require.NoError(t, err)

	// Same resolved value object from a single underlying fetch.
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), s.UserBatchQueries())

	// A different key within the same operation batches separately but
	// still costs at most one more set query.
	_, err = l.Load(ctx, users["b"].ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, s.UserBatchQueries(), int64(2))
}

func TestUserLoaderLoadManyOrder(t *testing.T) {
	s := memory.New()
	users := seedUsers(t, s, "a", "b", "c")
	l := NewUserLoader(s.Users())

	keys := []string{users["c"].ID, users["a"].ID, users["c"].ID, users["b"].ID}
	values, errs := l.LoadMany(context.Background(), keys)

	for _, err := range errs {
		require.NoError(t, err)
	}
	got := []string{values[0].Username, values[1].Username, values[2].Username, values[3].Username}
	assert.Equal(t, []string{"c", "a", "c", "b"}, got)
	assert.Equal(t, int64(1), s.UserBatchQueries())
}

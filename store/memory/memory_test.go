package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/socialgate/errors"
	"github.com/c360/socialgate/message"
	"github.com/c360/socialgate/user"
)

func mustUser(t *testing.T, username, email string) *user.User {
	t.Helper()
	u, err := user.New(uuid.NewString(), username, email, username+"-password")
	require.NoError(t, err)
	return u
}

func seedUser(t *testing.T, s *Store, username, email string) *user.User {
	t.Helper()
	u := mustUser(t, username, email)
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func TestCreateHashesPassword(t *testing.T) {
	s := New()
	u := seedUser(t, s, "rwieruch", "hello@robin.com")

	got, err := s.Users().ByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "rwieruch-password", got.Password)
	assert.True(t, got.ValidatePassword("rwieruch-password"))
}

func TestUniqueUsernameAndEmail(t *testing.T) {
	s := New()
	seedUser(t, s, "rwieruch", "hello@robin.com")

	dupName := mustUser(t, "rwieruch", "other@robin.com")
	err := s.Users().Create(context.Background(), dupName)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, "username is already taken", errors.UserMessage(err))

	dupMail := mustUser(t, "other", "hello@robin.com")
	err = s.Users().Create(context.Background(), dupMail)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, "email is already taken", errors.UserMessage(err))
}

func TestByLoginUsernameThenEmailFallback(t *testing.T) {
	s := New()
	u := seedUser(t, s, "rwieruch", "hello@robin.com")

	byName, err := s.Users().ByLogin(context.Background(), "rwieruch")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	byMail, err := s.Users().ByLogin(context.Background(), "hello@robin.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byMail.ID)

	_, err = s.Users().ByLogin(context.Background(), "nobody")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestByIDsSingleQueryMissingAbsent(t *testing.T) {
	s := New()
	a := seedUser(t, s, "a", "a@example.com")
	b := seedUser(t, s, "b", "b@example.com")

	got, err := s.Users().ByIDs(context.Background(), []string{a.ID, "missing", b.ID})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int64(1), s.UserBatchQueries())
}

func TestUpdateDoesNotRehashUnchangedPassword(t *testing.T) {
	s := New()
	u := seedUser(t, s, "rwieruch", "hello@robin.com")
	hashed := u.Password

	u.Bio = "updated bio"
	require.NoError(t, s.Users().Update(context.Background(), u))

	got, err := s.Users().ByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, hashed, got.Password)
	assert.True(t, got.ValidatePassword("rwieruch-password"))
	assert.Equal(t, "updated bio", got.Bio)
}

func TestDeleteCascade(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := seedUser(t, s, "a", "a@example.com")
	b := seedUser(t, s, "b", "b@example.com")

	// B follows A.
	b.FollowingIDs = append(b.FollowingIDs, a.ID)
	a.FollowerIDs = append(a.FollowerIDs, b.ID)
	require.NoError(t, s.Users().Update(ctx, a))
	require.NoError(t, s.Users().Update(ctx, b))

	m, err := message.New(uuid.NewString(), "published the Road to learn React", a.ID)
	require.NoError(t, err)
	require.NoError(t, s.Messages().Create(ctx, m))

	require.NoError(t, s.Users().Delete(ctx, a.ID))

	// A is gone.
	_, err = s.Users().ByID(ctx, a.ID)
	assert.True(t, errors.IsNotFound(err))

	// B's following set no longer contains A.
	gotB, err := s.Users().ByID(ctx, b.ID)
	require.NoError(t, err)
	assert.NotContains(t, gotB.FollowingIDs, a.ID)
	assert.NotContains(t, gotB.FollowerIDs, a.ID)

	// All of A's messages are gone.
	msgs, err := s.Messages().ByAuthor(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDeleteMissingUser(t *testing.T) {
	s := New()
	err := s.Users().Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestMessageCreateRequiresAuthor(t *testing.T) {
	s := New()
	m, err := message.New(uuid.NewString(), "hello", "missing-author")
	require.NoError(t, err)

	err = s.Messages().Create(context.Background(), m)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestMessagesOrderedByCreation(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := seedUser(t, s, "a", "a@example.com")

	for _, text := range []string{"first", "second", "third"} {
		m, err := message.New(uuid.NewString(), text, a.ID)
		require.NoError(t, err)
		require.NoError(t, s.Messages().Create(ctx, m))
	}

	msgs, err := s.Messages().ByAuthor(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "third", msgs[2].Text)
}

func TestStoreReturnsClones(t *testing.T) {
	s := New()
	u := seedUser(t, s, "a", "a@example.com")

	got, err := s.Users().ByID(context.Background(), u.ID)
	require.NoError(t, err)
	got.Username = "mutated"

	again, err := s.Users().ByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", again.Username)
}

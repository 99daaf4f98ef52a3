package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/socialgate/message"
	"github.com/c360/socialgate/store/memory"
)

type execHarness struct {
	builder  *ContextBuilder
	executor *Executor
	store    *memory.Store
}

func newExecHarness(t *testing.T) *execHarness {
	t.Helper()
	builder, st := newTestBuilder(t)
	return &execHarness{
		builder:  builder,
		executor: NewExecutor(NewResolver(nil, 0, nil)),
		store:    st,
	}
}

// run executes one operation the way the transport would: build the
// operation context from the token, attach it, execute.
func (h *execHarness) run(t *testing.T, token string, req Request) (map[string]any, *Response) {
	t.Helper()
	ctx := context.Background()

	oc, err := h.builder.Request(ctx, token)
	require.NoError(t, err)

	resp := h.executor.Execute(WithOperation(ctx, oc), req)
	require.NotNil(t, resp)

	var data map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	return data, resp
}

func TestExecuteSignUpThenMe(t *testing.T) {
	h := newExecHarness(t)

	data, resp := h.run(t, "", Request{
		Query: `mutation { signUp(username: "rwieruch", email: "hello@robin.com", password: "password123") { token } }`,
	})
	require.Empty(t, resp.Errors)

	payload, ok := data["signUp"].(map[string]any)
	require.True(t, ok)
	token, ok := payload["token"].(string)
	require.True(t, ok)
	require.NotEmpty(t, token)

	data, resp = h.run(t, token, Request{Query: `{ me { username email } }`})
	require.Empty(t, resp.Errors)

	me, ok := data["me"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "rwieruch", me["username"])
	assert.Equal(t, "hello@robin.com", me["email"])
}

func TestExecuteMeAnonymous(t *testing.T) {
	h := newExecHarness(t)

	data, resp := h.run(t, "", Request{Query: `{ me { username } }`})
	require.Empty(t, resp.Errors)
	assert.Nil(t, data["me"])
}

func TestExecuteSignInByUsernameAndEmail(t *testing.T) {
	h := newExecHarness(t)
	seedUser(t, h.store, "ddavids", "hello@dave.com")

	for _, login := range []string{"ddavids", "hello@dave.com"} {
		data, resp := h.run(t, "", Request{
			Query:     `mutation SignIn($login: String!) { signIn(login: $login, password: "password123") { token } }`,
			Variables: map[string]any{"login": login},
		})
		require.Empty(t, resp.Errors, "login %q", login)
		payload := data["signIn"].(map[string]any)
		assert.NotEmpty(t, payload["token"], "login %q", login)
	}
}

func TestExecuteSignInWrongPassword(t *testing.T) {
	h := newExecHarness(t)
	seedUser(t, h.store, "ddavids", "hello@dave.com")

	data, resp := h.run(t, "", Request{
		Query: `mutation { signIn(login: "ddavids", password: "wrong-password") { token } }`,
	})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "Invalid password.", resp.Errors[0].Message)
	assert.Nil(t, data["signIn"])
}

func TestExecuteSignInUnknownLogin(t *testing.T) {
	h := newExecHarness(t)

	_, resp := h.run(t, "", Request{
		Query: `mutation { signIn(login: "nobody", password: "password123") { token } }`,
	})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "No user found with this login credentials.", resp.Errors[0].Message)
}

func TestExecuteCreateMessageRequiresIdentity(t *testing.T) {
	h := newExecHarness(t)

	_, resp := h.run(t, "", Request{
		Query: `mutation { createMessage(text: "hi") { id } }`,
	})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "UNAUTHENTICATED", resp.Errors[0].Extensions["code"])
}

func TestExecuteMessagesBatchAuthors(t *testing.T) {
	h := newExecHarness(t)
	ctx := context.Background()

	a := seedUser(t, h.store, "rwieruch", "hello@robin.com")
	b := seedUser(t, h.store, "ddavids", "hello@dave.com")
	for i, m := range []struct{ id, text, author string }{
		{"m1", "Published the Road to learn React", a.ID},
		{"m2", "Happy to release a GraphQL in React tutorial", a.ID},
		{"m3", "A complete React with Apollo and GraphQL Tutorial", b.ID},
	} {
		msg, err := message.New(m.id, m.text, m.author)
		require.NoError(t, err, "message %d", i)
		require.NoError(t, h.store.Messages().Create(ctx, msg))
	}
	batchesBefore := h.store.UserBatchQueries()

	data, resp := h.run(t, "", Request{
		Query: `{ messages { id text user { id username } } }`,
	})
	require.Empty(t, resp.Errors)

	msgs, ok := data["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 3)

	first := msgs[0].(map[string]any)
	author := first["user"].(map[string]any)
	assert.Equal(t, "rwieruch", author["username"])

	// Three author edges, two distinct authors, one batched fetch.
	assert.Equal(t, batchesBefore+1, h.store.UserBatchQueries())
	assert.Equal(t, int64(0), h.store.UserPointQueries())
}

func TestExecuteDistinctAuthorsShareOneBatch(t *testing.T) {
	h := newExecHarness(t)
	ctx := context.Background()

	// Every message has its own author. Sequential per-message loads would
	// cost one store query each; the author keys must coalesce instead.
	for i, seed := range []struct{ username, email string }{
		{"rwieruch", "hello@robin.com"},
		{"ddavids", "hello@dave.com"},
		{"cwagner", "hello@conny.com"},
	} {
		u := seedUser(t, h.store, seed.username, seed.email)
		msg, err := message.New(fmt.Sprintf("m%d", i+1), "hi from "+seed.username, u.ID)
		require.NoError(t, err)
		require.NoError(t, h.store.Messages().Create(ctx, msg))
	}
	batchesBefore := h.store.UserBatchQueries()

	data, resp := h.run(t, "", Request{
		Query: `{ messages { id user { username } } }`,
	})
	require.Empty(t, resp.Errors)

	msgs, ok := data["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 3)
	authors := make(map[string]struct{})
	for _, m := range msgs {
		username := m.(map[string]any)["user"].(map[string]any)["username"].(string)
		authors[username] = struct{}{}
	}
	assert.Len(t, authors, 3)

	assert.Equal(t, batchesBefore+1, h.store.UserBatchQueries())
	assert.Equal(t, int64(0), h.store.UserPointQueries())
}

func TestExecuteUserWithVariables(t *testing.T) {
	h := newExecHarness(t)
	u := seedUser(t, h.store, "rwieruch", "hello@robin.com")

	data, resp := h.run(t, "", Request{
		Query:     `query User($id: ID!) { user(id: $id) { id username } }`,
		Variables: map[string]any{"id": u.ID},
	})
	require.Empty(t, resp.Errors)

	got := data["user"].(map[string]any)
	assert.Equal(t, u.ID, got["id"])
}

func TestExecuteUnknownUser(t *testing.T) {
	h := newExecHarness(t)

	data, resp := h.run(t, "", Request{
		Query: `{ user(id: "missing") { id } }`,
	})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "NOT_FOUND", resp.Errors[0].Extensions["code"])
	assert.Nil(t, data["user"])
}

func TestExecuteFieldAlias(t *testing.T) {
	h := newExecHarness(t)
	seedUser(t, h.store, "rwieruch", "hello@robin.com")

	data, resp := h.run(t, "", Request{
		Query: `{ everyone: users { handle: username } }`,
	})
	require.Empty(t, resp.Errors)

	users, ok := data["everyone"].([]any)
	require.True(t, ok)
	require.Len(t, users, 1)
	assert.Equal(t, "rwieruch", users[0].(map[string]any)["handle"])
}

func TestExecuteRootFieldsFailIndependently(t *testing.T) {
	h := newExecHarness(t)
	seedUser(t, h.store, "rwieruch", "hello@robin.com")

	data, resp := h.run(t, "", Request{
		Query: `{ users { username } user(id: "missing") { id } }`,
	})
	require.Len(t, resp.Errors, 1)
	assert.Nil(t, data["user"])
	assert.NotNil(t, data["users"])
}

func TestExecuteRejectsSubscription(t *testing.T) {
	h := newExecHarness(t)

	_, resp := h.run(t, "", Request{
		Query: `subscription { messageCreated { message { id } } }`,
	})
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0].Message, "websocket")
}

func TestExecuteParseError(t *testing.T) {
	h := newExecHarness(t)

	resp := h.executor.Execute(context.Background(), Request{Query: `{ users {`})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, json.RawMessage("null"), resp.Data)
}

func TestExecuteDeleteUserCascadesThroughGateway(t *testing.T) {
	h := newExecHarness(t)
	ctx := context.Background()

	u := seedUser(t, h.store, "ddavids", "hello@dave.com")
	msg, err := message.New("m1", "soon to be gone", u.ID)
	require.NoError(t, err)
	require.NoError(t, h.store.Messages().Create(ctx, msg))

	data, resp := h.run(t, "", Request{
		Query:     `mutation Delete($id: ID!) { deleteUser(id: $id) }`,
		Variables: map[string]any{"id": u.ID},
	})
	require.Empty(t, resp.Errors)
	assert.Equal(t, true, data["deleteUser"])

	msgs, err := h.store.Messages().All(ctx)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestOperationKind(t *testing.T) {
	kind, err := OperationKind(`subscription { messageCreated { message { id } } }`, "")
	require.NoError(t, err)
	assert.Equal(t, "subscription", string(kind))

	kind, err = OperationKind(`{ users { id } }`, "")
	require.NoError(t, err)
	assert.Equal(t, "query", string(kind))

	_, err = OperationKind(`{ users`, "")
	assert.Error(t, err)
}

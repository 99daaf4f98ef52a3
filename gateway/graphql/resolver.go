package graphql

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/socialgate/auth"
	"github.com/c360/socialgate/errors"
	"github.com/c360/socialgate/events"
	"github.com/c360/socialgate/message"
	"github.com/c360/socialgate/user"
)

// Resolver implements the operations behind the GraphQL schema. Every method
// reads its operation context from ctx: identity only via Me, user fetches
// only via the user loader, never around the cache.
//
// Schema wiring (generated executor) sits above this layer and calls these
// methods directly.
type Resolver struct {
	bus      events.Bus
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewResolver creates the resolver set. bus may be nil when no subscription
// fanout is wanted (tests).
func NewResolver(bus events.Bus, tokenTTL time.Duration, logger *slog.Logger) *Resolver {
	if tokenTTL <= 0 {
		tokenTTL = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		bus:      bus,
		tokenTTL: tokenTTL,
		logger:   logger.With("component", "resolver"),
	}
}

// operation pulls the operation context or fails: a resolver invoked without
// one is a wiring bug, not a user error.
func operation(ctx context.Context) (*OperationContext, error) {
	oc, ok := FromContext(ctx)
	if !ok {
		return nil, errors.Wrap(errors.ErrNotStarted, "Resolver", "operation",
			"no operation context attached")
	}
	return oc, nil
}

// Me resolves the calling identity to its stored user. Anonymous operations
// resolve to nil without error.
func (r *Resolver) Me(ctx context.Context) (*user.User, error) {
	oc, err := operation(ctx)
	if err != nil {
		return nil, err
	}
	if !oc.Authenticated() {
		return nil, nil
	}
	return oc.Loaders.User.Load(ctx, oc.Me.ID())
}

// User resolves a user by id through the request-scoped cache.
func (r *Resolver) User(ctx context.Context, id string) (*user.User, error) {
	oc, err := operation(ctx)
	if err != nil {
		return nil, err
	}
	return oc.Loaders.User.Load(ctx, id)
}

// Users lists all users.
func (r *Resolver) Users(ctx context.Context) ([]*user.User, error) {
	oc, err := operation(ctx)
	if err != nil {
		return nil, err
	}
	users, err := oc.Store.Users().All(ctx)
	if err != nil {
		return nil, err
	}
	// Seed the cache so sibling field resolvers reuse these rows.
	for _, u := range users {
		oc.Loaders.User.Prime(u.ID, u)
	}
	return users, nil
}

// SignUp creates a user and returns a fresh session token signed with the
// operation's secret.
func (r *Resolver) SignUp(ctx context.Context, username, email, password string) (string, error) {
	oc, err := operation(ctx)
	if err != nil {
		return "", err
	}

	u, err := user.New(uuid.NewString(), username, email, password)
	if err != nil {
		return "", err
	}
	if err := oc.Store.Users().Create(ctx, u); err != nil {
		return "", err
	}

	r.logger.Info("user signed up", "username", username)
	return auth.Sign(u.ID, u.Username, u.Email, u.Role, oc.Secret, r.tokenTTL)
}

// SignIn authenticates by username or email and returns a session token.
func (r *Resolver) SignIn(ctx context.Context, login, password string) (string, error) {
	oc, err := operation(ctx)
	if err != nil {
		return "", err
	}

	u, err := oc.Store.Users().ByLogin(ctx, login)
	if err != nil {
		if errors.IsNotFound(err) {
			return "", errors.WrapValidation(err, "Resolver", "SignIn",
				"No user found with this login credentials.")
		}
		return "", err
	}

	if !u.ValidatePassword(password) {
		return "", errors.WrapValidation(errors.New("password mismatch"), "Resolver", "SignIn",
			"Invalid password.")
	}

	return auth.Sign(u.ID, u.Username, u.Email, u.Role, oc.Secret, r.tokenTTL)
}

// UpdateUser applies profile changes for the calling identity.
func (r *Resolver) UpdateUser(ctx context.Context, name, bio string) (*user.User, error) {
	oc, err := operation(ctx)
	if err != nil {
		return nil, err
	}
	if !oc.Authenticated() {
		return nil, errors.WrapAuthentication(errors.ErrSessionExpired, "Resolver", "UpdateUser")
	}

	u, err := oc.Store.Users().ByID(ctx, oc.Me.ID())
	if err != nil {
		return nil, err
	}
	u.Name = name
	u.Bio = bio
	if err := oc.Store.Users().Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteUser removes a user, cascading through relation sets and authored
// messages. Role checks belong to the schema layer above.
func (r *Resolver) DeleteUser(ctx context.Context, id string) (bool, error) {
	oc, err := operation(ctx)
	if err != nil {
		return false, err
	}
	if err := oc.Store.Users().Delete(ctx, id); err != nil {
		return false, err
	}
	r.logger.Info("user deleted", "id", id)
	return true, nil
}

// CreateMessage stores a message authored by the calling identity and
// publishes it for subscription delivery.
func (r *Resolver) CreateMessage(ctx context.Context, text string) (*message.Message, error) {
	oc, err := operation(ctx)
	if err != nil {
		return nil, err
	}
	if !oc.Authenticated() {
		return nil, errors.WrapAuthentication(errors.ErrSessionExpired, "Resolver", "CreateMessage")
	}

	m, err := message.New(uuid.NewString(), text, oc.Me.ID())
	if err != nil {
		return nil, err
	}
	if err := oc.Store.Messages().Create(ctx, m); err != nil {
		return nil, err
	}

	if r.bus != nil {
		if err := r.bus.Publish(ctx, events.Event{Type: events.TypeMessageCreated, Message: m}); err != nil {
			// The write committed; a lost fanout only degrades live
			// delivery.
			r.logger.Warn("message created but event publish failed",
				"message_id", m.ID, "error", err)
		}
	}
	return m, nil
}

// DeleteMessage removes a message owned by the calling identity.
func (r *Resolver) DeleteMessage(ctx context.Context, id string) (bool, error) {
	oc, err := operation(ctx)
	if err != nil {
		return false, err
	}
	if !oc.Authenticated() {
		return false, errors.WrapAuthentication(errors.ErrSessionExpired, "Resolver", "DeleteMessage")
	}

	m, err := oc.Store.Messages().ByID(ctx, id)
	if err != nil {
		return false, err
	}
	if m.AuthorID != oc.Me.ID() && !oc.Me.IsAdmin() {
		return false, errors.WrapValidation(errors.New("not message owner"), "Resolver", "DeleteMessage",
			"Not authorized as owner.")
	}
	if err := oc.Store.Messages().Delete(ctx, id); err != nil {
		return false, err
	}

	if r.bus != nil {
		if err := r.bus.Publish(ctx, events.Event{Type: events.TypeMessageDeleted, Message: m}); err != nil {
			r.logger.Warn("message deleted but event publish failed",
				"message_id", m.ID, "error", err)
		}
	}
	return true, nil
}

// Message resolves one message by id.
func (r *Resolver) Message(ctx context.Context, id string) (*message.Message, error) {
	oc, err := operation(ctx)
	if err != nil {
		return nil, err
	}
	return oc.Store.Messages().ByID(ctx, id)
}

// Messages lists all messages.
func (r *Resolver) Messages(ctx context.Context) ([]*message.Message, error) {
	oc, err := operation(ctx)
	if err != nil {
		return nil, err
	}
	return oc.Store.Messages().All(ctx)
}

// UserMessages resolves the messages a user authored.
func (r *Resolver) UserMessages(ctx context.Context, u *user.User) ([]*message.Message, error) {
	oc, err := operation(ctx)
	if err != nil {
		return nil, err
	}
	return oc.Store.Messages().ByAuthor(ctx, u.ID)
}

// UserFollowers resolves a user's follower set through the request-scoped
// cache. The whole set costs one batched fetch.
func (r *Resolver) UserFollowers(ctx context.Context, u *user.User) ([]*user.User, error) {
	oc, err := operation(ctx)
	if err != nil {
		return nil, err
	}
	return loadUserSet(ctx, oc, u.FollowerIDs)
}

// UserFollowing resolves the users a user follows.
func (r *Resolver) UserFollowing(ctx context.Context, u *user.User) ([]*user.User, error) {
	oc, err := operation(ctx)
	if err != nil {
		return nil, err
	}
	return loadUserSet(ctx, oc, u.FollowingIDs)
}

// loadUserSet batch-loads a relation set. Ids whose user vanished since the
// set was written are skipped; any other failure aborts the whole set.
func loadUserSet(ctx context.Context, oc *OperationContext, ids []string) ([]*user.User, error) {
	values, errs := oc.Loaders.User.LoadMany(ctx, ids)
	out := make([]*user.User, 0, len(values))
	for i, v := range values {
		if errs[i] != nil {
			if errors.IsNotFound(errs[i]) {
				continue
			}
			return nil, errs[i]
		}
		out = append(out, v)
	}
	return out, nil
}

// MessageAuthor resolves a message's author through the request-scoped
// cache. Many messages by one author cost a single user fetch per operation.
func (r *Resolver) MessageAuthor(ctx context.Context, m *message.Message) (*user.User, error) {
	oc, err := operation(ctx)
	if err != nil {
		return nil, err
	}
	return oc.Loaders.User.Load(ctx, m.AuthorID)
}

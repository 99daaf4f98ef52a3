package graphql

import (
	"context"

	"github.com/c360/socialgate/auth"
	"github.com/c360/socialgate/errors"
	"github.com/c360/socialgate/loader"
	"github.com/c360/socialgate/store"
)

// TransportKind tags the two operation lifecycles the gateway serves. The
// kind is decided once per operation and never changes afterwards.
type TransportKind int

const (
	// KindRequest is a one-shot HTTP query or mutation.
	KindRequest TransportKind = iota
	// KindSubscription is one event delivery on a long-lived connection.
	KindSubscription
)

// String returns the string representation of TransportKind
func (k TransportKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindSubscription:
		return "subscription"
	default:
		return "unknown"
	}
}

// Loaders holds the request-scoped caches, one per key space, under stable
// names so resolvers address them uniformly regardless of transport.
type Loaders struct {
	User *loader.UserLoader
}

// OperationContext is the object handed to every resolver for the duration
// of exactly one operation. It is created fresh per operation, never reused,
// and never shared across concurrent operations even on the same connection.
type OperationContext struct {
	Kind    TransportKind
	Store   store.Store
	Me      *auth.Claims // nil when the caller is anonymous
	Secret  string       // mutations that issue tokens sign with this
	Loaders Loaders
}

// Authenticated reports whether the operation carries a verified identity.
func (oc *OperationContext) Authenticated() bool {
	return oc.Me != nil
}

// ContextBuilder is the composition root for operation contexts. One builder
// serves the whole process; everything per-operation lives on the contexts
// it produces.
type ContextBuilder struct {
	store  store.Store
	secret string
}

// NewContextBuilder wires the builder to the shared store handle and the
// signing secret.
func NewContextBuilder(s store.Store, secret string) (*ContextBuilder, error) {
	if s == nil {
		return nil, errors.Wrap(errors.ErrMissingConfig, "ContextBuilder", "NewContextBuilder",
			"store is required")
	}
	return &ContextBuilder{store: s, secret: secret}, nil
}

// Request constructs the context for a query or mutation. A present token is
// verified: failure is operation-fatal and must surface before any resolver
// runs. An absent token is the anonymous case, not an error.
func (b *ContextBuilder) Request(ctx context.Context, token string) (*OperationContext, error) {
	oc := &OperationContext{
		Kind:    KindRequest,
		Store:   b.store,
		Secret:  b.secret,
		Loaders: b.freshLoaders(),
	}

	if token == "" {
		return oc, nil
	}

	claims, err := auth.Verify(token, b.secret)
	if err != nil {
		return nil, err
	}
	oc.Me = claims
	return oc, nil
}

// Subscription constructs the context for one subscription event delivery.
// Identity resolution is deliberately skipped on this path: connection-level
// authorization, if any, is established at connection setup outside this
// core, so the context is anonymous by default.
func (b *ContextBuilder) Subscription(ctx context.Context) *OperationContext {
	return &OperationContext{
		Kind:    KindSubscription,
		Store:   b.store,
		Secret:  b.secret,
		Loaders: b.freshLoaders(),
	}
}

// freshLoaders builds the per-operation caches. Never shared, never pooled.
func (b *ContextBuilder) freshLoaders() Loaders {
	return Loaders{
		User: loader.NewUserLoader(b.store.Users()),
	}
}

type operationContextKey struct{}

// WithOperation attaches the operation context to a request context.
func WithOperation(ctx context.Context, oc *OperationContext) context.Context {
	return context.WithValue(ctx, operationContextKey{}, oc)
}

// FromContext extracts the operation context placed by the gateway.
func FromContext(ctx context.Context) (*OperationContext, bool) {
	oc, ok := ctx.Value(operationContextKey{}).(*OperationContext)
	return oc, ok
}

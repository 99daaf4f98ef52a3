package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/c360/socialgate/errors"
	"github.com/c360/socialgate/events"
	"github.com/c360/socialgate/message"
	"github.com/c360/socialgate/user"
)

// Request is the standard GraphQL HTTP request body.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Response is the standard GraphQL response body.
type Response struct {
	Data   json.RawMessage `json:"data"`
	Errors gqlerror.List   `json:"errors,omitempty"`
}

// Executor walks a parsed operation and dispatches its fields to the
// resolver set. It expects the operation context to already be attached to
// ctx; the transport layer owns that step.
type Executor struct {
	resolver *Resolver
}

// NewExecutor creates an executor over the given resolver set.
func NewExecutor(r *Resolver) *Executor {
	return &Executor{resolver: r}
}

// Execute parses and runs one query or mutation. Root fields fail
// independently: a failed field contributes an error entry and a null value,
// sibling fields still resolve.
func (e *Executor) Execute(ctx context.Context, req Request) *Response {
	doc, perr := parser.ParseQuery(&ast.Source{Name: "request", Input: req.Query})
	if perr != nil {
		return &Response{
			Data:   json.RawMessage("null"),
			Errors: gqlerror.List{asGqlError(perr)},
		}
	}

	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		return errResponse("operation %q not found in document", req.OperationName)
	}
	if op.Operation == ast.Subscription {
		return errResponse("subscriptions must use the websocket transport")
	}

	data := make(map[string]any, len(op.SelectionSet))
	var errs gqlerror.List
	for _, sel := range op.SelectionSet {
		field, ok := sel.(*ast.Field)
		if !ok {
			return errResponse("fragments are not supported")
		}

		val, err := e.resolveRoot(ctx, op.Operation, field, req.Variables)
		key := fieldKey(field)
		if err != nil {
			errs = append(errs, PresentError(err, field.Name))
			data[key] = nil
			continue
		}
		data[key] = val
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return errResponse("response encoding failed")
	}
	return &Response{Data: raw, Errors: errs}
}

// OperationKind reports whether the document's selected operation is a
// subscription, so transports can route before executing anything.
func OperationKind(query, operationName string) (ast.Operation, error) {
	doc, perr := parser.ParseQuery(&ast.Source{Name: "request", Input: query})
	if perr != nil {
		return "", perr
	}
	op := doc.Operations.ForName(operationName)
	if op == nil {
		return "", fmt.Errorf("operation %q not found in document", operationName)
	}
	return op.Operation, nil
}

func (e *Executor) resolveRoot(ctx context.Context, kind ast.Operation, field *ast.Field, vars map[string]any) (any, error) {
	switch kind {
	case ast.Query:
		return e.resolveQuery(ctx, field, vars)
	case ast.Mutation:
		return e.resolveMutation(ctx, field, vars)
	default:
		return nil, fmt.Errorf("unsupported operation %q", kind)
	}
}

func (e *Executor) resolveQuery(ctx context.Context, field *ast.Field, vars map[string]any) (any, error) {
	switch field.Name {
	case "me":
		u, err := e.resolver.Me(ctx)
		if err != nil || u == nil {
			return nil, err
		}
		return e.projectUser(ctx, u, field.SelectionSet)

	case "user":
		id, err := argString(field, "id", vars)
		if err != nil {
			return nil, err
		}
		u, err := e.resolver.User(ctx, id)
		if err != nil {
			return nil, err
		}
		return e.projectUser(ctx, u, field.SelectionSet)

	case "users":
		users, err := e.resolver.Users(ctx)
		if err != nil {
			return nil, err
		}
		return e.projectUsers(ctx, users, field.SelectionSet)

	case "message":
		id, err := argString(field, "id", vars)
		if err != nil {
			return nil, err
		}
		m, err := e.resolver.Message(ctx, id)
		if err != nil {
			return nil, err
		}
		return e.projectMessage(ctx, m, field.SelectionSet)

	case "messages":
		msgs, err := e.resolver.Messages(ctx)
		if err != nil {
			return nil, err
		}
		return e.projectMessages(ctx, msgs, field.SelectionSet)
	}
	return nil, fmt.Errorf("unknown query field %q", field.Name)
}

func (e *Executor) resolveMutation(ctx context.Context, field *ast.Field, vars map[string]any) (any, error) {
	switch field.Name {
	case "signUp":
		username, err := argString(field, "username", vars)
		if err != nil {
			return nil, err
		}
		email, err := argString(field, "email", vars)
		if err != nil {
			return nil, err
		}
		password, err := argString(field, "password", vars)
		if err != nil {
			return nil, err
		}
		token, err := e.resolver.SignUp(ctx, username, email, password)
		if err != nil {
			return nil, err
		}
		return projectToken(token, field.SelectionSet), nil

	case "signIn":
		login, err := argString(field, "login", vars)
		if err != nil {
			return nil, err
		}
		password, err := argString(field, "password", vars)
		if err != nil {
			return nil, err
		}
		token, err := e.resolver.SignIn(ctx, login, password)
		if err != nil {
			return nil, err
		}
		return projectToken(token, field.SelectionSet), nil

	case "updateUser":
		name, err := argString(field, "name", vars)
		if err != nil {
			return nil, err
		}
		bio, err := argString(field, "bio", vars)
		if err != nil {
			return nil, err
		}
		u, err := e.resolver.UpdateUser(ctx, name, bio)
		if err != nil {
			return nil, err
		}
		return e.projectUser(ctx, u, field.SelectionSet)

	case "deleteUser":
		id, err := argString(field, "id", vars)
		if err != nil {
			return nil, err
		}
		deleted, err := e.resolver.DeleteUser(ctx, id)
		if err != nil {
			return nil, err
		}
		return deleted, nil

	case "createMessage":
		text, err := argString(field, "text", vars)
		if err != nil {
			return nil, err
		}
		m, err := e.resolver.CreateMessage(ctx, text)
		if err != nil {
			return nil, err
		}
		return e.projectMessage(ctx, m, field.SelectionSet)

	case "deleteMessage":
		id, err := argString(field, "id", vars)
		if err != nil {
			return nil, err
		}
		deleted, err := e.resolver.DeleteMessage(ctx, id)
		if err != nil {
			return nil, err
		}
		return deleted, nil
	}
	return nil, fmt.Errorf("unknown mutation field %q", field.Name)
}

// projectEvent shapes one subscription event for delivery, using the
// subscriber's stored selection set. Called by the websocket transport with a
// fresh subscription context on ctx.
func (e *Executor) projectEvent(ctx context.Context, field *ast.Field, ev events.Event) (any, error) {
	switch field.Name {
	case "messageCreated", "messageDeleted":
		out := make(map[string]any)
		for _, sel := range field.SelectionSet {
			sub, ok := sel.(*ast.Field)
			if !ok {
				return nil, fmt.Errorf("fragments are not supported")
			}
			switch sub.Name {
			case "message":
				val, err := e.projectMessage(ctx, ev.Message, sub.SelectionSet)
				if err != nil {
					return nil, err
				}
				out[fieldKey(sub)] = val
			default:
				return nil, fmt.Errorf("unknown field %q on %s", sub.Name, field.Name)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown subscription field %q", field.Name)
}

func (e *Executor) projectUsers(ctx context.Context, users []*user.User, sel ast.SelectionSet) (any, error) {
	primeUserRelations(ctx, users, sel)

	out := make([]any, 0, len(users))
	for _, u := range users {
		val, err := e.projectUser(ctx, u, sel)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}

func (e *Executor) projectUser(ctx context.Context, u *user.User, sel ast.SelectionSet) (any, error) {
	if len(sel) == 0 {
		return nil, fmt.Errorf("user selection set is empty")
	}

	out := make(map[string]any, len(sel))
	for _, s := range sel {
		field, ok := s.(*ast.Field)
		if !ok {
			return nil, fmt.Errorf("fragments are not supported")
		}

		var val any
		var err error
		switch field.Name {
		case "id":
			val = u.ID
		case "username":
			val = u.Username
		case "email":
			val = u.Email
		case "role":
			if u.Role != "" {
				val = u.Role
			}
		case "name":
			val = u.Name
		case "bio":
			val = u.Bio
		case "createdAt":
			val = u.CreatedAt.Format(time.RFC3339)
		case "messages":
			var msgs []*message.Message
			if msgs, err = e.resolver.UserMessages(ctx, u); err == nil {
				val, err = e.projectMessages(ctx, msgs, field.SelectionSet)
			}
		case "followers":
			var set []*user.User
			if set, err = e.resolver.UserFollowers(ctx, u); err == nil {
				val, err = e.projectUsers(ctx, set, field.SelectionSet)
			}
		case "following":
			var set []*user.User
			if set, err = e.resolver.UserFollowing(ctx, u); err == nil {
				val, err = e.projectUsers(ctx, set, field.SelectionSet)
			}
		default:
			return nil, fmt.Errorf("unknown field %q on User", field.Name)
		}
		if err != nil {
			return nil, err
		}
		out[fieldKey(field)] = val
	}
	return out, nil
}

func (e *Executor) projectMessages(ctx context.Context, msgs []*message.Message, sel ast.SelectionSet) (any, error) {
	primeMessageAuthors(ctx, msgs, sel)

	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		val, err := e.projectMessage(ctx, m, sel)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}

func (e *Executor) projectMessage(ctx context.Context, m *message.Message, sel ast.SelectionSet) (any, error) {
	if len(sel) == 0 {
		return nil, fmt.Errorf("message selection set is empty")
	}

	out := make(map[string]any, len(sel))
	for _, s := range sel {
		field, ok := s.(*ast.Field)
		if !ok {
			return nil, fmt.Errorf("fragments are not supported")
		}

		var val any
		var err error
		switch field.Name {
		case "id":
			val = m.ID
		case "text":
			val = m.Text
		case "createdAt":
			val = m.CreatedAt.Format(time.RFC3339)
		case "user":
			var author *user.User
			if author, err = e.resolver.MessageAuthor(ctx, m); err == nil {
				val, err = e.projectUser(ctx, author, field.SelectionSet)
			}
		default:
			return nil, fmt.Errorf("unknown field %q on Message", field.Name)
		}
		if err != nil {
			return nil, err
		}
		out[fieldKey(field)] = val
	}
	return out, nil
}

// projectToken shapes a Token payload. An empty selection set still yields
// the token field, which keeps hand-written clients simple.
func projectToken(token string, sel ast.SelectionSet) map[string]any {
	if len(sel) == 0 {
		return map[string]any{"token": token}
	}
	out := make(map[string]any, len(sel))
	for _, s := range sel {
		if field, ok := s.(*ast.Field); ok && field.Name == "token" {
			out[fieldKey(field)] = token
		}
	}
	return out
}

// primeMessageAuthors registers every author key with the user loader before
// any projection blocks on a value. Field resolution walks the list
// sequentially, so without this the first author's load would flush its batch
// before the remaining keys are even requested; registering the thunks up
// front puts all authors in one coalesced fetch.
func primeMessageAuthors(ctx context.Context, msgs []*message.Message, sel ast.SelectionSet) {
	if !selectsField(sel, "user") {
		return
	}
	oc, ok := FromContext(ctx)
	if !ok {
		return
	}
	for _, m := range msgs {
		oc.Loaders.User.LoadThunk(ctx, m.AuthorID)
	}
}

// primeUserRelations does the same for follower/following sets across a list
// of users: all relation keys join one pending batch before the first set
// projection blocks.
func primeUserRelations(ctx context.Context, users []*user.User, sel ast.SelectionSet) {
	followers := selectsField(sel, "followers")
	following := selectsField(sel, "following")
	if !followers && !following {
		return
	}
	oc, ok := FromContext(ctx)
	if !ok {
		return
	}
	for _, u := range users {
		if followers {
			for _, id := range u.FollowerIDs {
				oc.Loaders.User.LoadThunk(ctx, id)
			}
		}
		if following {
			for _, id := range u.FollowingIDs {
				oc.Loaders.User.LoadThunk(ctx, id)
			}
		}
	}
}

func selectsField(sel ast.SelectionSet, name string) bool {
	for _, s := range sel {
		if f, ok := s.(*ast.Field); ok && f.Name == name {
			return true
		}
	}
	return false
}

// fieldKey is the response key for a field: its alias when one is given.
func fieldKey(f *ast.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// argString coerces a required string argument, resolving variables.
func argString(field *ast.Field, name string, vars map[string]any) (string, error) {
	arg := field.Arguments.ForName(name)
	if arg == nil {
		return "", errors.WrapValidation(errors.ErrMissingConfig, "Executor", "argString",
			fmt.Sprintf("argument %q is required on field %q", name, field.Name))
	}
	val, err := arg.Value.Value(vars)
	if err != nil {
		return "", errors.WrapValidation(err, "Executor", "argString",
			fmt.Sprintf("argument %q could not be resolved", name))
	}
	s, ok := val.(string)
	if !ok {
		return "", errors.WrapValidation(fmt.Errorf("argument %q is %T", name, val),
			"Executor", "argString",
			fmt.Sprintf("argument %q must be a string", name))
	}
	return s, nil
}

func errResponse(format string, args ...any) *Response {
	return &Response{
		Data:   json.RawMessage("null"),
		Errors: gqlerror.List{gqlerror.Errorf(format, args...)},
	}
}

// asGqlError keeps parser errors intact and wraps everything else.
func asGqlError(err error) *gqlerror.Error {
	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		return gqlErr
	}
	return gqlerror.Errorf("%s", err.Error())
}

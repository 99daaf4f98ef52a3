package graphql

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/c360/socialgate/errors"
)

// PresentError converts an internal error into a GraphQL error with an
// appropriate code. Messages pass through errors.UserMessage, so internal
// wrapper text is stripped and only the domain-meaningful message reaches
// the caller. Authentication failures always carry the fixed session-expired
// message.
func PresentError(err error, operation string) *gqlerror.Error {
	if err == nil {
		return nil
	}

	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		return gqlErr
	}

	switch {
	case errors.IsAuthentication(err):
		return &gqlerror.Error{
			Message: errors.SessionExpiredMessage,
			Extensions: map[string]interface{}{
				"code":      "UNAUTHENTICATED",
				"operation": operation,
			},
		}

	case errors.IsNotFound(err):
		return &gqlerror.Error{
			Message: errors.UserMessage(err),
			Extensions: map[string]interface{}{
				"code":      "NOT_FOUND",
				"operation": operation,
			},
		}

	case errors.IsValidation(err):
		return &gqlerror.Error{
			Message: errors.UserMessage(err),
			Extensions: map[string]interface{}{
				"code":      "BAD_USER_INPUT",
				"operation": operation,
			},
		}

	case errors.IsIntegrity(err):
		return &gqlerror.Error{
			Message: "Internal server error",
			Extensions: map[string]interface{}{
				"code":      "INTERNAL_ERROR",
				"operation": operation,
			},
		}

	case errors.Is(err, context.DeadlineExceeded):
		return &gqlerror.Error{
			Message: "Request timeout exceeded",
			Extensions: map[string]interface{}{
				"code":      "DEADLINE_EXCEEDED",
				"operation": operation,
			},
		}

	case errors.Is(err, context.Canceled):
		return &gqlerror.Error{
			Message: "Request cancelled",
			Extensions: map[string]interface{}{
				"code":      "CANCELLED",
				"operation": operation,
			},
		}
	}

	return &gqlerror.Error{
		Message: errors.UserMessage(err),
		Extensions: map[string]interface{}{
			"code":      "INTERNAL_ERROR",
			"operation": operation,
			"retryable": true,
		},
	}
}

// errorResponse is the JSON body for operation-fatal failures that never
// reach an executor, shaped like a standard GraphQL error response.
type errorResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors gqlerror.List   `json:"errors"`
}

// writeOperationError writes an operation-fatal GraphQL error response.
// GraphQL transports errors in-band, so the HTTP status stays 200.
func writeOperationError(w http.ResponseWriter, err error, operation string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	body := errorResponse{
		Data:   json.RawMessage("null"),
		Errors: gqlerror.List{PresentError(err, operation)},
	}
	_ = json.NewEncoder(w).Encode(body)
}

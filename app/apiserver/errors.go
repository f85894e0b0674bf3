package apiserver

import (
	"fmt"
	"net/http"

	"github.com/mwcnet/mwcd/domain/chain"
	"github.com/mwcnet/mwcd/domain/consensus/ruleerrors"
	"github.com/pkg/errors"
)

// HandlerError is an error returned from a request handler, carrying the
// HTTP status it's answered with.
type HandlerError struct {
	Code    int
	Message string
}

func (hErr *HandlerError) Error() string {
	return hErr.Message
}

func newHandlerError(code int, format string, args ...interface{}) *HandlerError {
	return &HandlerError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func newArgumentError(format string, args ...interface{}) *HandlerError {
	return newHandlerError(http.StatusBadRequest, format, args...)
}

func newNotFoundError(format string, args ...interface{}) *HandlerError {
	return newHandlerError(http.StatusNotFound, format, args...)
}

const internalErrorMessage = "internal server error"

// toHandlerError maps err to the status and message sent to the client.
// Internal failures are logged and answered with an opaque message.
func toHandlerError(err error) *HandlerError {
	var hErr *HandlerError
	if errors.As(err, &hErr) {
		return hErr
	}
	if chain.IsNotFoundError(err) {
		return newNotFoundError("%s", err)
	}
	if kind, ok := ruleerrors.KindOf(err); ok {
		if kind == ruleerrors.KindStopped {
			return newHandlerError(http.StatusServiceUnavailable, "the node is shutting down")
		}
		if kind.IsBadData() {
			return newArgumentError("%s", err)
		}
	}
	log.Errorf("Internal error while handling a request: %+v", err)
	return newHandlerError(http.StatusInternalServerError, internalErrorMessage)
}

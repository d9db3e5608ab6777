package service

import (
	"context"
	"errors"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/sharedledger/internal/ledger"
	"github.com/mmynk/sharedledger/internal/middleware"
)

var errUnauthenticated = errors.New("authentication required")

// internalError is sent to clients as a generic message. The cause stays
// reachable through Unwrap so the logging interceptor can record it.
type internalError struct {
	cause error
}

func (e *internalError) Error() string { return "internal error, please try again" }

func (e *internalError) Unwrap() error { return e.cause }

// toConnectError maps an error kind to its Connect code. Persistence
// failures keep their cause out of the response.
func toConnectError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, errors.New("request timed out, please try again"))
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, errors.New("request canceled"))
	case errors.Is(err, ledger.ErrPersistence):
		return connect.NewError(connect.CodeInternal, &internalError{cause: err})
	case errors.Is(err, ledger.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, clientMessage(err, ledger.ErrNotFound))
	case errors.Is(err, ledger.ErrUnauthorized):
		return connect.NewError(connect.CodePermissionDenied, clientMessage(err, ledger.ErrUnauthorized))
	case errors.Is(err, ledger.ErrInvalidState):
		return connect.NewError(connect.CodeFailedPrecondition, clientMessage(err, ledger.ErrInvalidState))
	case errors.Is(err, ledger.ErrInvalidInput):
		return connect.NewError(connect.CodeInvalidArgument, clientMessage(err, ledger.ErrInvalidInput))
	case errors.Is(err, ledger.ErrDuplicateSettlement):
		return connect.NewError(connect.CodeAlreadyExists, clientMessage(err, ledger.ErrDuplicateSettlement))
	default:
		return connect.NewError(connect.CodeInternal, &internalError{cause: err})
	}
}

// clientMessage strips the kind prefix added by ledger.Errorf.
func clientMessage(err, kind error) error {
	return errors.New(strings.TrimPrefix(err.Error(), kind.Error()+": "))
}

func requireUser(ctx context.Context) (string, error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, errUnauthenticated)
	}
	return userID, nil
}

package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/nativeaudio/internal/app/coord"
	"github.com/osa030/nativeaudio/internal/app/session"
	"github.com/osa030/nativeaudio/internal/domain/audio"
)

// toConnectError maps a façade rejection to a Connect error. The message is
// the stable rejection text.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	return connect.NewError(codeOf(err), errors.New(err.Error()))
}

func codeOf(err error) connect.Code {
	switch {
	case errors.Is(err, audio.ErrNotFound):
		return connect.CodeNotFound
	case errors.Is(err, audio.ErrDuplicateID), errors.Is(err, audio.ErrNotificationAlreadyExists):
		return connect.CodeAlreadyExists
	case errors.Is(err, audio.ErrNotificationRequiredFirst),
		errors.Is(err, audio.ErrDestroyNotAllowed),
		errors.Is(err, audio.ErrNotInitialized):
		return connect.CodeFailedPrecondition
	case errors.Is(err, audio.ErrNetworkFailure):
		return connect.CodeUnavailable
	case errors.Is(err, audio.ErrInvalidArgument):
		return connect.CodeInvalidArgument
	case errors.Is(err, coord.ErrClosed), errors.Is(err, session.ErrTerminated):
		return connect.CodeUnavailable
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	default:
		return connect.CodeInternal
	}
}

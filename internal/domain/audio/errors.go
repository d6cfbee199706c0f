package audio

import "github.com/cockroachdb/errors"

var (
	ErrNotFound                  = errors.New("audio source not found")
	ErrDuplicateID               = errors.New("audio source already exists")
	ErrNotificationRequiredFirst = errors.New("first audio source must be used for notification")
	ErrNotificationAlreadyExists = errors.New("notification audio source already exists")
	ErrDestroyNotAllowed         = errors.New("notification audio source cannot be destroyed while others exist")
	ErrNotInitialized            = errors.New("audio source is not initialized")
	ErrTransportFailure          = errors.New("player operation failed")
	ErrNetworkFailure            = errors.New("metadata fetch failed")
	ErrInvalidArgument           = errors.New("invalid argument")
)

// Transport marks err as a player failure. A nil err stays nil.
func Transport(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, "player %s", op), ErrTransportFailure)
}

// Network marks err as a fetch failure. Malformed payloads are reported as
// network failures too.
func Network(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrNetworkFailure)
}

// Kind returns the sentinel err belongs to, or nil when it is not a domain error.
func Kind(err error) error {
	for _, sentinel := range []error{
		ErrNotFound,
		ErrDuplicateID,
		ErrNotificationRequiredFirst,
		ErrNotificationAlreadyExists,
		ErrDestroyNotAllowed,
		ErrNotInitialized,
		ErrTransportFailure,
		ErrNetworkFailure,
		ErrInvalidArgument,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

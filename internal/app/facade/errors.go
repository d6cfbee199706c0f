package facade

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/nativeaudio/internal/app/coord"
	"github.com/osa030/nativeaudio/internal/domain/audio"
)

// Operation names.
const (
	OpCreate            = "create"
	OpInitialize        = "initialize"
	OpChangeAudioSource = "changeAudioSource"
	OpChangeMetadata    = "changeMetadata"
	OpUpdateMetadataNow = "updateMetadataNow"
	OpGetDuration       = "getDuration"
	OpGetCurrentTime    = "getCurrentTime"
	OpPlay              = "play"
	OpPause             = "pause"
	OpSeek              = "seek"
	OpStop              = "stop"
	OpSetVolume         = "setVolume"
	OpSetRate           = "setRate"
	OpIsPlaying         = "isPlaying"
	OpDestroy           = "destroy"
	OpRegisterCallback  = "registerCallback"
	OpAppState          = "appState"
	OpTaskRemoved       = "taskRemoved"
)

var messages = map[string]string{
	OpCreate:            "There was an issue creating the audio player",
	OpInitialize:        "There was an issue initializing the audio player",
	OpChangeAudioSource: "There was an issue changing the audio source",
	OpChangeMetadata:    "There was an issue changing the audio metadata",
	OpUpdateMetadataNow: "There was an issue updating the audio metadata",
	OpGetDuration:       "There was an issue getting the duration for the audio source",
	OpGetCurrentTime:    "There was an issue getting the current time for the audio source",
	OpPlay:              "There was an issue playing the audio",
	OpPause:             "There was an issue pausing the audio",
	OpSeek:              "There was an issue seeking the audio",
	OpStop:              "There was an issue stopping the audio",
	OpSetVolume:         "There was an issue setting the audio volume",
	OpSetRate:           "There was an issue setting the rate of the audio",
	OpIsPlaying:         "There was an issue getting the playing status of the audio",
	OpDestroy:           "There was an issue cleaning up the audio player",
	OpRegisterCallback:  "There was an issue registering the callback",
	OpAppState:          "There was an issue reporting the app state",
	OpTaskRemoved:       "There was an issue stopping the audio service",
}

// Error is the caller-visible rejection of a command.
type Error struct {
	Op      string
	Message string
	Err     error
}

// Error returns the stable message followed by the failure reason.
func (e *Error) Error() string {
	return e.Message + ": " + Reason(e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Reason returns a stable description of err.
func Reason(err error) string {
	if kind := audio.Kind(err); kind != nil {
		return kind.Error()
	}
	switch {
	case errors.Is(err, coord.ErrClosed):
		return "audio service is shutting down"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "request cancelled"
	}
	return "internal error"
}

func reject(op string, err error) error {
	if err == nil {
		return nil
	}
	msg, ok := messages[op]
	if !ok {
		msg = "There was an issue with the audio player"
	}
	return &Error{Op: op, Message: msg, Err: err}
}

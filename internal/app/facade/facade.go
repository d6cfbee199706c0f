// Package facade provides the command surface of the audio service. Every
// command is validated, marshalled onto the coordination loop and turned into a
// caller-visible *Error on failure.
package facade

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nativeaudio/internal/app/callback"
	"github.com/osa030/nativeaudio/internal/app/coord"
	"github.com/osa030/nativeaudio/internal/app/session"
	"github.com/osa030/nativeaudio/internal/app/session/state"
	"github.com/osa030/nativeaudio/internal/app/source"
	"github.com/osa030/nativeaudio/internal/domain/audio"
)

// Facade is the only entry point for commands.
type Facade struct {
	c        *session.Coordinator
	validate *validator.Validate
}

// New creates a façade over c.
func New(c *session.Coordinator) *Facade {
	return &Facade{
		c:        c,
		validate: validator.New(),
	}
}

// Status returns the hosting context state.
func (f *Facade) Status() state.Status {
	return f.c.Status()
}

func (f *Facade) check(params any) error {
	if err := f.validate.Struct(params); err != nil {
		return errors.Mark(errors.Wrap(err, "validation failed"), audio.ErrInvalidArgument)
	}
	return nil
}

// withSource runs fn on the loop against the source with the given ID.
func withSource[T any](ctx context.Context, f *Facade, id string, fn func(s *source.Source) (T, error)) (T, error) {
	return coord.Call(ctx, f.c.Loop(), func() (T, error) {
		s, err := f.c.Registry().Get(id)
		if err != nil {
			var zero T
			return zero, err
		}
		return fn(s)
	})
}

func (f *Facade) run(ctx context.Context, op, id string, fn func(s *source.Source) error) error {
	_, err := withSource(ctx, f, id, func(s *source.Source) (struct{}, error) {
		return struct{}{}, fn(s)
	})
	if err != nil {
		zlog.Debug().Msgf("command rejected: op=%s id=%s error=%v", op, id, err)
	}
	return reject(op, err)
}

// Create registers a new source.
func (f *Facade) Create(ctx context.Context, p CreateParams) error {
	if err := f.check(p); err != nil {
		return reject(OpCreate, err)
	}

	defaults := f.c.SurfaceDefaults()
	def := p.definition(defaults.ShowSeekBackward, defaults.ShowSeekForward)
	if def.Metadata.UpdateURL != "" && def.Metadata.UpdateInterval == 0 {
		def.Metadata.UpdateInterval = f.c.UpdateInterval()
	}
	err := coord.Do(ctx, f.c.Loop(), func() error {
		_, err := f.c.Create(def)
		return err
	})
	return reject(OpCreate, err)
}

// Initialize attaches a player to the source. A non-notification source
// initialized from another origin goes through the hosting context's command channel.
func (f *Facade) Initialize(ctx context.Context, p IDParams) error {
	if err := f.check(p); err != nil {
		return reject(OpInitialize, err)
	}

	origin := session.OriginFrom(ctx)
	dispatch, err := withSource(ctx, f, p.AudioID, func(s *source.Source) (bool, error) {
		if !s.UseForNotification() && !f.c.IsHostOrigin(origin) {
			return true, nil
		}
		return false, f.c.Initialize(s)
	})
	if err == nil && dispatch {
		err = f.c.Dispatch(ctx, session.Command{
			Type:     session.CommandInitialize,
			SourceID: p.AudioID,
			Origin:   origin,
		})
	}
	return reject(OpInitialize, err)
}

// ChangeAudioSource switches the media locator.
func (f *Facade) ChangeAudioSource(ctx context.Context, p ChangeSourceParams) error {
	if err := f.check(p); err != nil {
		return reject(OpChangeAudioSource, err)
	}
	return f.run(ctx, OpChangeAudioSource, p.AudioID, func(s *source.Source) error {
		return s.ChangeSource(p.Source)
	})
}

// ChangeMetadata merges the provided metadata fields.
func (f *Facade) ChangeMetadata(ctx context.Context, p ChangeMetadataParams) error {
	if err := f.check(p); err != nil {
		return reject(OpChangeMetadata, err)
	}
	patch := p.patch()
	return f.run(ctx, OpChangeMetadata, p.AudioID, func(s *source.Source) error {
		return s.ChangeMetadata(patch)
	})
}

// UpdateMetadataNow fetches remote metadata once.
func (f *Facade) UpdateMetadataNow(ctx context.Context, p IDParams) error {
	if err := f.check(p); err != nil {
		return reject(OpUpdateMetadataNow, err)
	}
	return f.run(ctx, OpUpdateMetadataNow, p.AudioID, (*source.Source).RefreshMetadata)
}

// GetDuration returns the duration in seconds, -1 when unknown.
func (f *Facade) GetDuration(ctx context.Context, p IDParams) (float64, error) {
	if err := f.check(p); err != nil {
		return 0, reject(OpGetDuration, err)
	}
	d, err := withSource(ctx, f, p.AudioID, (*source.Source).Duration)
	return d, reject(OpGetDuration, err)
}

// GetCurrentTime returns the position in seconds.
func (f *Facade) GetCurrentTime(ctx context.Context, p IDParams) (float64, error) {
	if err := f.check(p); err != nil {
		return 0, reject(OpGetCurrentTime, err)
	}
	t, err := withSource(ctx, f, p.AudioID, (*source.Source).CurrentTime)
	return t, reject(OpGetCurrentTime, err)
}

// Play starts playback.
func (f *Facade) Play(ctx context.Context, p IDParams) error {
	if err := f.check(p); err != nil {
		return reject(OpPlay, err)
	}
	return f.run(ctx, OpPlay, p.AudioID, f.c.Play)
}

// Pause pauses playback.
func (f *Facade) Pause(ctx context.Context, p IDParams) error {
	if err := f.check(p); err != nil {
		return reject(OpPause, err)
	}
	return f.run(ctx, OpPause, p.AudioID, (*source.Source).Pause)
}

// Seek moves the playback position.
func (f *Facade) Seek(ctx context.Context, p SeekParams) error {
	if err := f.check(p); err != nil {
		return reject(OpSeek, err)
	}
	return f.run(ctx, OpSeek, p.AudioID, func(s *source.Source) error {
		return s.Seek(p.TimeInSeconds)
	})
}

// Stop stops playback and rewinds.
func (f *Facade) Stop(ctx context.Context, p IDParams) error {
	if err := f.check(p); err != nil {
		return reject(OpStop, err)
	}
	return f.run(ctx, OpStop, p.AudioID, (*source.Source).Stop)
}

// SetVolume sets the volume in the range 0..1.
func (f *Facade) SetVolume(ctx context.Context, p VolumeParams) error {
	if err := f.check(p); err != nil {
		return reject(OpSetVolume, err)
	}
	return f.run(ctx, OpSetVolume, p.AudioID, func(s *source.Source) error {
		return s.SetVolume(p.Volume)
	})
}

// SetRate sets the playback speed.
func (f *Facade) SetRate(ctx context.Context, p RateParams) error {
	if err := f.check(p); err != nil {
		return reject(OpSetRate, err)
	}
	return f.run(ctx, OpSetRate, p.AudioID, func(s *source.Source) error {
		return s.SetRate(p.Rate)
	})
}

// IsPlaying reports whether the source is playing.
func (f *Facade) IsPlaying(ctx context.Context, p IDParams) (bool, error) {
	if err := f.check(p); err != nil {
		return false, reject(OpIsPlaying, err)
	}
	playing, err := withSource(ctx, f, p.AudioID, func(s *source.Source) (bool, error) {
		return s.IsPlaying(), nil
	})
	return playing, reject(OpIsPlaying, err)
}

// Destroy releases and removes a source.
func (f *Facade) Destroy(ctx context.Context, p IDParams) error {
	if err := f.check(p); err != nil {
		return reject(OpDestroy, err)
	}
	err := coord.Do(ctx, f.c.Loop(), func() error {
		return f.c.Destroy(p.AudioID)
	})
	return reject(OpDestroy, err)
}

// RegisterCallback registers a persistent callback on a channel and returns its ID.
// Source-scoped kinds require the source to exist.
func (f *Facade) RegisterCallback(ctx context.Context, p CallbackParams) (string, error) {
	if err := f.check(p); err != nil {
		return "", reject(OpRegisterCallback, err)
	}
	kind, ok := callback.ParseKind(p.Kind)
	if !ok {
		return "", reject(OpRegisterCallback, errors.Wrapf(audio.ErrInvalidArgument, "unknown callback kind %q", p.Kind))
	}
	if kind.SourceScoped() && p.AudioID == "" {
		return "", reject(OpRegisterCallback, errors.Wrap(audio.ErrInvalidArgument, "audioId is required"))
	}

	id, err := coord.Call(ctx, f.c.Loop(), func() (string, error) {
		if kind.SourceScoped() {
			if _, err := f.c.Registry().Get(p.AudioID); err != nil {
				return "", err
			}
		}
		id, err := f.c.Callbacks().Register(p.ChannelID, kind, p.AudioID)
		if err != nil {
			return "", errors.Mark(err, audio.ErrInvalidArgument)
		}
		return id, nil
	})
	return id, reject(OpRegisterCallback, err)
}

// AppStateChanged reports the app moving to the foreground or background.
func (f *Facade) AppStateChanged(ctx context.Context, p AppStateParams) error {
	err := coord.Do(ctx, f.c.Loop(), func() error {
		f.c.AppStateChanged(p.Foreground)
		return nil
	})
	return reject(OpAppState, err)
}

// TaskRemoved runs the task-removal path of the hosting context.
func (f *Facade) TaskRemoved(ctx context.Context) error {
	err := coord.Do(ctx, f.c.Loop(), func() error {
		f.c.TaskRemoved()
		return nil
	})
	return reject(OpTaskRemoved, err)
}

package session

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nativeaudio/internal/app/coord"
	"github.com/osa030/nativeaudio/internal/domain/audio"
)

// CommandType identifies a command sent to the hosting context.
type CommandType int

const (
	CommandInitialize CommandType = iota // Attach an exclusive player to a source
)

// String returns the string representation of the command type.
func (t CommandType) String() string {
	switch t {
	case CommandInitialize:
		return "initialize"
	default:
		return "unknown"
	}
}

// Command carries a request across origins. Sources are referenced by ID and
// resolved by the hosting context.
type Command struct {
	Type     CommandType
	SourceID string
	Origin   string
}

type commandRequest struct {
	cmd   Command
	reply chan error
}

// Dispatch sends cmd to the hosting context and waits for its result.
func (c *Coordinator) Dispatch(ctx context.Context, cmd Command) error {
	req := commandRequest{cmd: cmd, reply: make(chan error, 1)}

	select {
	case c.commands <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrTerminated
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrTerminated
	}
}

// commandLoop serves commands for the hosting context.
func (c *Coordinator) commandLoop() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("command loop panicked: %v", r)
			zlog.Info().Msg("restarting command loop")
			go c.commandLoop()
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case req := <-c.commands:
			req.reply <- c.handleCommand(req.cmd)
		}
	}
}

func (c *Coordinator) handleCommand(cmd Command) error {
	zlog.Debug().Msgf("command received: type=%s source=%s origin=%s", cmd.Type, cmd.SourceID, cmd.Origin)

	switch cmd.Type {
	case CommandInitialize:
		return coord.Do(c.ctx, c.loop, func() error {
			s, err := c.registry.Get(cmd.SourceID)
			if err != nil {
				return err
			}
			if s.UseForNotification() {
				return errors.Wrap(audio.ErrInvalidArgument, "notification sources are initialized by the host")
			}
			return s.Initialize()
		})
	default:
		return errors.Wrapf(audio.ErrInvalidArgument, "unknown command type %d", cmd.Type)
	}
}

type originKey struct{}

// WithOrigin returns a context carrying the caller's origin.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom returns the caller's origin, or an empty string.
func OriginFrom(ctx context.Context) string {
	origin, _ := ctx.Value(originKey{}).(string)
	return origin
}

package source

import (
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nativeaudio/internal/app/callback"
	"github.com/osa030/nativeaudio/internal/app/player"
	"github.com/osa030/nativeaudio/internal/domain/audio"
)

// bridge forwards transport events from a player goroutine to the coordination
// loop. Events for a detached player or a released source are dropped there.
type bridge struct {
	s *Source
	p player.Player
}

func (b *bridge) OnIsPlayingChanged(isPlaying bool) {
	b.s.env.Loop.Post(func() {
		if b.live() {
			b.s.handleIsPlaying(isPlaying)
		}
	})
}

func (b *bridge) OnPlaybackStateChanged(state player.TransportState) {
	b.s.env.Loop.Post(func() {
		if b.live() {
			b.s.handleTransportState(state)
		}
	})
}

func (b *bridge) live() bool {
	return !b.s.released && b.s.player == b.p
}

func (s *Source) handleIsPlaying(isPlaying bool) {
	p := s.player

	switch {
	case p.State() == player.TransportReady && !p.PlayWhenReady() && s.state != audio.StateStopped:
		s.setState(audio.StatePaused)
		s.updater.Stop()
	case isPlaying || s.state == audio.StatePlaying:
		s.setState(audio.StatePlaying)
		s.updater.Start()
	default:
		s.updater.Stop()
	}

	zlog.Debug().Msgf("playback status changed: id=%s is_playing=%t status=%s", s.def.ID, isPlaying, s.state)
	s.resolve(callback.KindPlaybackStatusChange, map[string]any{"status": s.state.String()})
}

func (s *Source) handleTransportState(state player.TransportState) {
	switch state {
	case player.TransportReady:
		if !s.readyPending {
			return
		}
		s.readyPending = false
		s.resolve(callback.KindAudioReady, nil)

	case player.TransportEnded:
		if err := s.Stop(); err != nil {
			zlog.Warn().Msgf("failed to stop ended audio source: id=%s error=%v", s.def.ID, err)
		}
		s.setState(audio.StateStopped)
		zlog.Info().Msgf("audio source ended: id=%s", s.def.ID)
		s.resolve(callback.KindPlaybackStatusChange, map[string]any{"status": s.state.String()})
		s.resolve(callback.KindAudioEnd, nil)
	}
}

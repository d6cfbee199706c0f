package facade

import (
	"time"

	"github.com/osa030/nativeaudio/internal/domain/audio"
)

// CreateParams describes a new source.
type CreateParams struct {
	AudioID                string  `mapstructure:"audioId" validate:"required"`
	AudioSource            string  `mapstructure:"audioSource" validate:"required"`
	FriendlyTitle          string  `mapstructure:"friendlyTitle"`
	AlbumTitle             string  `mapstructure:"albumTitle"`
	ArtistName             string  `mapstructure:"artistName"`
	ArtworkSource          string  `mapstructure:"artworkSource"`
	UseForNotification     bool    `mapstructure:"useForNotification"`
	IsBackgroundMusic      bool    `mapstructure:"isBackgroundMusic"`
	Loop                   bool    `mapstructure:"loop"`
	ShowSeekBackward       *bool   `mapstructure:"showSeekBackward"`
	ShowSeekForward        *bool   `mapstructure:"showSeekForward"`
	MetadataUpdateURL      string  `mapstructure:"metadataUpdateUrl" validate:"omitempty,url|startswith=spotify:"`
	MetadataUpdateInterval float64 `mapstructure:"metadataUpdateInterval" validate:"gte=0"`
}

func (p CreateParams) definition(defaultBackward, defaultForward bool) audio.Definition {
	def := audio.Definition{
		ID:      p.AudioID,
		Locator: p.AudioSource,
		Metadata: audio.Metadata{
			Title:          p.FriendlyTitle,
			Artist:         p.ArtistName,
			Album:          p.AlbumTitle,
			ArtworkSource:  p.ArtworkSource,
			UpdateURL:      p.MetadataUpdateURL,
			UpdateInterval: seconds(p.MetadataUpdateInterval),
		},
		UseForNotification: p.UseForNotification,
		IsBackgroundMusic:  p.IsBackgroundMusic,
		Loop:               p.Loop,
		ShowSeekBackward:   defaultBackward,
		ShowSeekForward:    defaultForward,
	}
	if p.ShowSeekBackward != nil {
		def.ShowSeekBackward = *p.ShowSeekBackward
	}
	if p.ShowSeekForward != nil {
		def.ShowSeekForward = *p.ShowSeekForward
	}
	return def
}

// IDParams addresses a source.
type IDParams struct {
	AudioID string `mapstructure:"audioId" validate:"required"`
}

// ChangeSourceParams changes the media locator of a source.
type ChangeSourceParams struct {
	AudioID string `mapstructure:"audioId" validate:"required"`
	Source  string `mapstructure:"source" validate:"required"`
}

// ChangeMetadataParams carries a partial metadata change; nil fields are kept.
type ChangeMetadataParams struct {
	AudioID                string   `mapstructure:"audioId" validate:"required"`
	FriendlyTitle          *string  `mapstructure:"friendlyTitle"`
	AlbumTitle             *string  `mapstructure:"albumTitle"`
	ArtistName             *string  `mapstructure:"artistName"`
	ArtworkSource          *string  `mapstructure:"artworkSource"`
	MetadataUpdateURL      *string  `mapstructure:"metadataUpdateUrl"`
	MetadataUpdateInterval *float64 `mapstructure:"metadataUpdateInterval" validate:"omitempty,gte=0"`
}

func (p ChangeMetadataParams) patch() audio.MetadataPatch {
	patch := audio.MetadataPatch{
		Title:         p.FriendlyTitle,
		Album:         p.AlbumTitle,
		Artist:        p.ArtistName,
		ArtworkSource: p.ArtworkSource,
		UpdateURL:     p.MetadataUpdateURL,
	}
	if p.MetadataUpdateInterval != nil {
		d := seconds(*p.MetadataUpdateInterval)
		patch.UpdateInterval = &d
	}
	return patch
}

// SeekParams moves the position of a source.
type SeekParams struct {
	AudioID       string  `mapstructure:"audioId" validate:"required"`
	TimeInSeconds float64 `mapstructure:"timeInSeconds" validate:"gte=0"`
}

// VolumeParams sets the volume of a source.
type VolumeParams struct {
	AudioID string  `mapstructure:"audioId" validate:"required"`
	Volume  float64 `mapstructure:"volume" validate:"gte=0,lte=1"`
}

// RateParams sets the playback speed of a source.
type RateParams struct {
	AudioID string  `mapstructure:"audioId" validate:"required"`
	Rate    float64 `mapstructure:"rate" validate:"gt=0"`
}

// CallbackParams registers a persistent callback. AudioID is ignored for
// app-level kinds.
type CallbackParams struct {
	ChannelID string `mapstructure:"channelId" validate:"required"`
	Kind      string `mapstructure:"kind" validate:"required"`
	AudioID   string `mapstructure:"audioId"`
}

// AppStateParams reports an app lifecycle change.
type AppStateParams struct {
	Foreground bool `mapstructure:"foreground"`
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

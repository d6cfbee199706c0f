package player

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hajimehoshi/go-mp3"

	"github.com/osa030/nativeaudio/internal/app/player"
)

// bytes per decoded sample frame: 16-bit stereo
const mp3FrameBytes = 4

// ProbeMP3 returns the duration of local mp3 files. Streams and other formats
// report player.DurationUnknown.
func ProbeMP3(_ context.Context, locator string) (time.Duration, error) {
	path, ok := localPath(locator)
	if !ok || !strings.EqualFold(filepath.Ext(path), ".mp3") {
		return player.DurationUnknown, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return player.DurationUnknown, errors.Wrap(err, "failed to open media")
	}
	defer f.Close()

	d, err := mp3.NewDecoder(f)
	if err != nil {
		return player.DurationUnknown, errors.Wrap(err, "failed to decode mp3")
	}
	length := d.Length()
	if length < 0 || d.SampleRate() <= 0 {
		return player.DurationUnknown, nil
	}
	samples := length / mp3FrameBytes
	return time.Duration(samples) * time.Second / time.Duration(d.SampleRate()), nil
}

// localPath resolves file:// URLs and bare paths.
func localPath(locator string) (string, bool) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", false
	}
	switch u.Scheme {
	case "file":
		return u.Path, u.Path != ""
	case "":
		return locator, locator != ""
	default:
		return "", false
	}
}

// NoProbe reports every media as having an unknown duration.
func NoProbe(context.Context, string) (time.Duration, error) {
	return player.DurationUnknown, nil
}

package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/nativeaudio/internal/app/session"
	"github.com/osa030/nativeaudio/internal/domain/audio"
)

var (
	_ session.SnapshotStore = (*Memory)(nil)
	_ session.SnapshotStore = (*Redis)(nil)
)

func sampleSnapshot() audio.SessionSnapshot {
	return audio.SessionSnapshot{
		HostID:         "host-1",
		NotificationID: "a",
		Sources: []audio.SnapshotEntry{
			{ID: "a", Locator: "https://radio.example.com/live", UseForNotification: true},
			{ID: "b", Locator: "file:///music/b.mp3", IsBackgroundMusic: true, Loop: true},
		},
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestMemory_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Load(ctx, "host-1")
	assert.True(t, errors.Is(err, audio.ErrNotFound))

	snap := sampleSnapshot()
	require.NoError(t, m.Save(ctx, snap))

	// The stored copy is independent of the caller's slice
	snap.Sources[0].ID = "changed"

	got, err := m.Load(ctx, "host-1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Sources[0].ID)
	assert.Equal(t, "a", got.NotificationID)
	assert.Len(t, got.Sources, 2)

	require.NoError(t, m.Delete(ctx, "host-1"))
	require.NoError(t, m.Delete(ctx, "host-1"))
	_, err = m.Load(ctx, "host-1")
	assert.True(t, errors.Is(err, audio.ErrNotFound))
}

func TestRedis_Key(t *testing.T) {
	assert.Equal(t, "nativeaudio:session:host-1", key("host-1"))
}

func TestRedis_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	r := NewRedisWithClient(client, time.Minute)
	defer r.Close()

	ctx := context.Background()
	err := r.Save(ctx, sampleSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save snapshot")

	_, err = r.Load(ctx, "host-1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, audio.ErrNotFound))

	_, err = NewRedis(ctx, RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nativeaudio/internal/domain/audio"
)

const (
	sessionKey     = "nativeaudio:session:%s" // String: SessionSnapshot JSON
	sessionHostSet = "nativeaudio:sessions"   // Set: host IDs with a live session
)

// RedisConfig represents Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // 0 keeps snapshots until deleted
}

// Redis stores snapshots as JSON strings in Redis.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", cfg.Addr)
	}

	zlog.Info().Msgf("snapshot store connected: addr=%s db=%d", cfg.Addr, cfg.DB)
	return NewRedisWithClient(client, cfg.TTL), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func key(hostID string) string {
	return fmt.Sprintf(sessionKey, hostID)
}

// Save stores snap and records its host in the session set.
func (r *Redis) Save(ctx context.Context, snap audio.SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "failed to marshal snapshot")
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key(snap.HostID), data, r.ttl)
	pipe.SAdd(ctx, sessionHostSet, snap.HostID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to save snapshot")
	}
	return nil
}

// Load returns the snapshot of hostID.
func (r *Redis) Load(ctx context.Context, hostID string) (*audio.SessionSnapshot, error) {
	data, err := r.client.Get(ctx, key(hostID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.Wrapf(audio.ErrNotFound, "snapshot for host %s", hostID)
		}
		return nil, errors.Wrap(err, "failed to load snapshot")
	}

	var snap audio.SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal snapshot")
	}
	return &snap, nil
}

// Delete removes the snapshot of hostID.
func (r *Redis) Delete(ctx context.Context, hostID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key(hostID))
	pipe.SRem(ctx, sessionHostSet, hostID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to delete snapshot")
	}
	return nil
}

// Hosts returns the host IDs that have saved a snapshot.
func (r *Redis) Hosts(ctx context.Context) ([]string, error) {
	hosts, err := r.client.SMembers(ctx, sessionHostSet).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}
	return hosts, nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

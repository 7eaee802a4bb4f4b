package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/realm-live/internal/config"
	"github.com/weiawesome/realm-live/internal/domain"
	"github.com/weiawesome/realm-live/pkg/log"
)

// keyStore is the part of *redis.Client the mirror uses.
type keyStore interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

type presenceEvent struct {
	identity domain.UserIdentity
	online   bool
}

// RedisPresence mirrors hub membership into Redis keys with a TTL that a
// heartbeat keeps alive. Keys of a crashed process expire on their own.
type RedisPresence struct {
	client            keyStore
	closer            func() error
	prefix            string
	keyTTL            time.Duration
	heartbeatInterval time.Duration

	events chan presenceEvent
	// managed is owned by Run.
	managed map[domain.UserIdentity]struct{}
}

func NewRedisPresence(cfg config.PresenceConfig) (*RedisPresence, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	p := newRedisPresence(client, cfg)
	p.closer = client.Close
	return p, nil
}

func newRedisPresence(client keyStore, cfg config.PresenceConfig) *RedisPresence {
	return &RedisPresence{
		client:            client,
		closer:            func() error { return nil },
		prefix:            cfg.Prefix,
		keyTTL:            cfg.KeyTTL,
		heartbeatInterval: cfg.HeartbeatInterval,
		events:            make(chan presenceEvent, 1024),
		managed:           make(map[domain.UserIdentity]struct{}),
	}
}

func (r *RedisPresence) keyFor(identity domain.UserIdentity) string {
	return fmt.Sprintf("%s:user:%s", r.prefix, identity)
}

// IdentityOnline queues a presence write. It never blocks the hub.
func (r *RedisPresence) IdentityOnline(identity domain.UserIdentity) {
	r.enqueue(presenceEvent{identity: identity, online: true})
}

// IdentityOffline queues a presence delete. It never blocks the hub.
func (r *RedisPresence) IdentityOffline(identity domain.UserIdentity) {
	r.enqueue(presenceEvent{identity: identity, online: false})
}

func (r *RedisPresence) enqueue(evt presenceEvent) {
	select {
	case r.events <- evt:
	default:
		l := log.L()
		l.Warn().Str(log.FieldUserID, evt.identity.String()).Bool("online", evt.online).Msg("presence queue full, dropping update")
	}
}

// IsOnline reports whether any process has identity marked online.
func (r *RedisPresence) IsOnline(ctx context.Context, identity domain.UserIdentity) (bool, error) {
	n, err := r.client.Exists(ctx, r.keyFor(identity)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to lookup presence: %w", err)
	}
	return n > 0, nil
}

// Run applies presence updates and refreshes TTLs until ctx is done, then
// removes the keys it owns.
func (r *RedisPresence) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	l := log.L()
	l.Info().Dur("interval", r.heartbeatInterval).Dur("ttl", r.keyTTL).Msg("presence heartbeat started")

	for {
		select {
		case <-ctx.Done():
			r.clear()
			return nil
		case evt := <-r.events:
			r.apply(ctx, evt)
		case <-ticker.C:
			r.refreshKeys(ctx)
		}
	}
}

func (r *RedisPresence) apply(ctx context.Context, evt presenceEvent) {
	key := r.keyFor(evt.identity)
	l := log.L()

	if evt.online {
		r.managed[evt.identity] = struct{}{}
		if err := r.client.Set(ctx, key, "1", r.keyTTL).Err(); err != nil {
			l.Error().Str("key", key).Err(err).Msg("failed to set presence")
		}
		return
	}

	delete(r.managed, evt.identity)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		l.Error().Str("key", key).Err(err).Msg("failed to delete presence")
	}
}

func (r *RedisPresence) refreshKeys(ctx context.Context) {
	for identity := range r.managed {
		key := r.keyFor(identity)
		if err := r.client.Set(ctx, key, "1", r.keyTTL).Err(); err != nil {
			l := log.L()
			l.Error().Str("key", key).Err(err).Msg("failed to refresh key")
		}
	}
}

func (r *RedisPresence) clear() {
	if len(r.managed) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	keys := make([]string, 0, len(r.managed))
	for identity := range r.managed {
		keys = append(keys, r.keyFor(identity))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		l := log.L()
		l.Warn().Err(err).Int("keys", len(keys)).Msg("failed to clear presence keys")
	}
	r.managed = make(map[domain.UserIdentity]struct{})
}

func (r *RedisPresence) Close() error {
	return r.closer()
}

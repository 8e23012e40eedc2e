package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
)

// Options configures a RedisRegistry.
type Options struct {
	Prefix            string
	AdvertiseAddress  string
	KeyTTL            time.Duration
	HeartbeatInterval time.Duration
}

type RedisRegistry struct {
	client            *redis.Client
	advertiseAddress  string
	prefix            string
	keyTTL            time.Duration
	heartbeatInterval time.Duration
	managedKeys       map[string]struct{} // keys managed by this instance
	mu                sync.RWMutex
}

// NewRedisRegistry creates a registry on an existing client.
func NewRedisRegistry(client *redis.Client, opts Options) *RedisRegistry {
	if opts.KeyTTL <= 0 {
		opts.KeyTTL = 30 * time.Second
	}
	if opts.HeartbeatInterval <= 0 || opts.HeartbeatInterval >= opts.KeyTTL {
		opts.HeartbeatInterval = opts.KeyTTL / 3
	}
	return &RedisRegistry{
		client:            client,
		advertiseAddress:  opts.AdvertiseAddress,
		prefix:            opts.Prefix,
		keyTTL:            opts.KeyTTL,
		heartbeatInterval: opts.HeartbeatInterval,
		managedKeys:       make(map[string]struct{}),
	}
}

func (r *RedisRegistry) keyFor(roomID string) string {
	return fmt.Sprintf("%s:room:%s", r.prefix, roomID)
}

func (r *RedisRegistry) Register(ctx context.Context, roomID string) error {
	key := r.keyFor(roomID)

	if err := r.client.Set(ctx, key, r.advertiseAddress, r.keyTTL).Err(); err != nil {
		return fmt.Errorf("failed to register room: %w", err)
	}

	r.mu.Lock()
	r.managedKeys[key] = struct{}{}
	r.mu.Unlock()

	l := log.Ctx(ctx)
	l.Info().Str(log.FieldRoomID, roomID).Str("address", r.advertiseAddress).Msg("registered room")
	return nil
}

func (r *RedisRegistry) Deregister(ctx context.Context, roomID string) error {
	key := r.keyFor(roomID)

	r.mu.Lock()
	delete(r.managedKeys, key)
	r.mu.Unlock()

	// Only delete the key if it still points at this node.
	if err := deleteIfOwned.Run(ctx, r.client, []string{key}, r.advertiseAddress).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to deregister room: %w", err)
	}

	l := log.Ctx(ctx)
	l.Info().Str(log.FieldRoomID, roomID).Msg("deregistered room")
	return nil
}

var deleteIfOwned = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (r *RedisRegistry) Lookup(ctx context.Context, roomID string) (string, error) {
	addr, err := r.client.Get(ctx, r.keyFor(roomID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrRoomNotRegistered
	}
	if err != nil {
		return "", fmt.Errorf("failed to lookup room: %w", err)
	}
	return addr, nil
}

func (r *RedisRegistry) Run(ctx context.Context) error {
	l := log.L()
	l.Info().Dur("interval", r.heartbeatInterval).Dur("ttl", r.keyTTL).Msg("registry heartbeat started")

	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.refreshKeys(ctx)
		}
	}
}

// refreshKeys extends the TTL of every key this node still owns. A key that
// now points at another node is given up; a key that expired is claimed
// again only if nobody else took it and it is still managed here.
func (r *RedisRegistry) refreshKeys(ctx context.Context) {
	keys := r.keys()
	if len(keys) == 0 {
		return
	}

	l := log.L()
	ttl := r.keyTTL.Milliseconds()
	pipe := r.client.Pipeline()
	cmds := make([]*redis.Cmd, len(keys))
	for i, key := range keys {
		cmds[i] = refreshIfOwned.Eval(ctx, pipe, []string{key}, r.advertiseAddress, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		l.Error().Err(err).Int("keys", len(keys)).Msg("failed to refresh registry keys")
	}

	for i, cmd := range cmds {
		res, err := cmd.Int()
		if err != nil {
			continue
		}
		switch res {
		case refreshMissing:
			r.reclaim(ctx, keys[i])
		case refreshForeign:
			r.mu.Lock()
			delete(r.managedKeys, keys[i])
			r.mu.Unlock()
			l.Warn().Str("key", keys[i]).Msg("registry key owned by another node, no longer refreshing")
		}
	}
}

func (r *RedisRegistry) reclaim(ctx context.Context, key string) {
	// Held across the write so a concurrent Deregister either runs first
	// and stops the reclaim, or runs after and deletes what was written.
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.managedKeys[key]; !ok {
		return
	}
	if err := r.client.SetNX(ctx, key, r.advertiseAddress, r.keyTTL).Err(); err != nil {
		l := log.L()
		l.Error().Err(err).Str("key", key).Msg("failed to reclaim registry key")
	}
}

const (
	refreshForeign = -1
	refreshMissing = 0
)

var refreshIfOwned = redis.NewScript(`
local owner = redis.call("GET", KEYS[1])
if not owner then
	return 0
end
if owner ~= ARGV[1] then
	return -1
end
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return 1
`)

func (r *RedisRegistry) keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.managedKeys))
	for k := range r.managedKeys {
		keys = append(keys, k)
	}
	return keys
}

func (r *RedisRegistry) DeregisterAll(ctx context.Context) error {
	keys := r.keys()

	r.mu.Lock()
	r.managedKeys = make(map[string]struct{})
	r.mu.Unlock()

	var errs []error
	for _, key := range keys {
		if err := deleteIfOwned.Run(ctx, r.client, []string{key}, r.advertiseAddress).Err(); err != nil && !errors.Is(err, redis.Nil) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"communitychat/pkg/logger"
	"communitychat/pkg/timeutil"
)

// Each collection is one redis hash. Mutations are announced on a pub/sub
// channel so every process serving the same redis wakes its listeners.
const (
	redisHashPrefix    = "chat:tree:"
	redisChangeChannel = "chat:changes"
)

type redisBackend struct {
	cli    *redis.Client
	origin string
}

type changeEvent struct {
	Origin string `json:"origin"`
	Path   string `json:"path"`
}

// OpenRedis connects to the redis server at url (redis://host:port/db) and
// returns a Store backed by it.
func OpenRedis(ctx context.Context, url string, clock timeutil.Clock) (*Store, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	cli := redis.NewClient(opt)
	if err := cli.Ping(ctx).Err(); err != nil {
		cli.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("realtime_redis_connected", "addr", opt.Addr, "db", opt.DB)
	return NewStore("redis", &redisBackend{cli: cli, origin: uuid.NewString()}, clock), nil
}

func (r *redisBackend) Load(ctx context.Context, collection, key string) ([]byte, error) {
	b, err := r.cli.HGet(ctx, redisHashPrefix+collection, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (r *redisBackend) Save(ctx context.Context, collection, key string, rec []byte) error {
	return r.cli.HSet(ctx, redisHashPrefix+collection, key, rec).Err()
}

func (r *redisBackend) List(ctx context.Context, collection string) (map[string][]byte, error) {
	all, err := r.cli.HGetAll(ctx, redisHashPrefix+collection).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(all))
	for k, v := range all {
		out[k] = []byte(v)
	}
	return out, nil
}

func (r *redisBackend) Delete(ctx context.Context, collection, key string) error {
	return r.cli.HDel(ctx, redisHashPrefix+collection, key).Err()
}

func (r *redisBackend) Close() error { return r.cli.Close() }

func (r *redisBackend) Publish(ctx context.Context, path string) error {
	b, err := json.Marshal(changeEvent{Origin: r.origin, Path: path})
	if err != nil {
		return err
	}
	return r.cli.Publish(ctx, redisChangeChannel, b).Err()
}

func (r *redisBackend) Listen(ctx context.Context, fn func(path string)) error {
	sub := r.cli.Subscribe(ctx, redisChangeChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", redisChangeChannel, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			var ev changeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("realtime_change_decode_failed", "error", err)
				continue
			}
			// Local mutations were already fanned out by the store.
			if ev.Origin == r.origin {
				continue
			}
			fn(ev.Path)
		}
	}
}

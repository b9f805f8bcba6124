package store

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// RedisCheckpoints keeps checkpoints in redis so a restarted process can
// find hands that were interrupted.
type RedisCheckpoints struct {
	client *redis.Client
	prefix string
}

// NewRedisCheckpoints connects to redis at addr.
func NewRedisCheckpoints(addr, password string, db int) *RedisCheckpoints {
	return &RedisCheckpoints{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		prefix: "housepoker:checkpoint:",
	}
}

// Ping checks the connection.
func (r *RedisCheckpoints) Ping(ctx context.Context) error {
	return errors.Wrap(r.client.Ping(ctx).Err(), "redis ping")
}

func (r *RedisCheckpoints) Close() error {
	return r.client.Close()
}

func (r *RedisCheckpoints) key(tableID string) string {
	return r.prefix + tableID
}

func (r *RedisCheckpoints) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := encodeCheckpoint(cp)
	if err != nil {
		return err
	}
	return errors.Wrapf(r.client.Set(ctx, r.key(cp.TableID), data, 0).Err(), "save checkpoint for %s", cp.TableID)
}

func (r *RedisCheckpoints) Load(ctx context.Context, tableID string) (*Checkpoint, error) {
	data, err := r.client.Get(ctx, r.key(tableID)).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrapf(ErrNotFound, "checkpoint for %s", tableID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load checkpoint for %s", tableID)
	}
	return decodeCheckpoint(data)
}

func (r *RedisCheckpoints) Remove(ctx context.Context, tableID string) error {
	return errors.Wrapf(r.client.Del(ctx, r.key(tableID)).Err(), "remove checkpoint for %s", tableID)
}

package room

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisSettings configures the shared-store backing.
type RedisSettings struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RedisStore keeps the membership index in Redis sets so workers in
// different processes observe the same rooms. Forward and reverse sets are
// updated inside one MULTI/EXEC pipeline per mutation. Capacity is
// delegated to the Redis server.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore builds a store on a dedicated client connection.
func NewRedisStore(settings RedisSettings) *RedisStore {
	prefix := settings.Prefix
	if prefix == "" {
		prefix = "ember:"
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     settings.Addr,
			Password: settings.Password,
			DB:       settings.DB,
		}),
		prefix: prefix,
	}
}

// NewRedisStoreWithClient wraps an existing client, mainly for tests.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ember:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Prepare verifies the connection before the worker pool starts.
func (r *RedisStore) Prepare(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("room: redis ping: %w", err)
	}
	return nil
}

func (r *RedisStore) roomKey(room string) string {
	return r.prefix + "room:" + room
}

func (r *RedisStore) clientKey(fd int) string {
	return r.prefix + "client:" + strconv.Itoa(fd)
}

// Add records fd in room atomically on both indexes.
func (r *RedisStore) Add(ctx context.Context, fd int, room string) error {
	return r.AddAll(ctx, fd, []string{room})
}

// AddAll records fd in each room inside one transaction.
func (r *RedisStore) AddAll(ctx context.Context, fd int, rooms []string) error {
	if len(rooms) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, room := range rooms {
			pipe.SAdd(ctx, r.roomKey(room), fd)
		}
		members := make([]interface{}, len(rooms))
		for i, room := range rooms {
			members[i] = room
		}
		pipe.SAdd(ctx, r.clientKey(fd), members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("room: redis add: %w", err)
	}
	return nil
}

// Delete removes fd from room atomically on both indexes.
func (r *RedisStore) Delete(ctx context.Context, fd int, room string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, r.roomKey(room), fd)
		pipe.SRem(ctx, r.clientKey(fd), room)
		return nil
	})
	if err != nil {
		return fmt.Errorf("room: redis delete: %w", err)
	}
	return nil
}

// DeleteAll removes fd from the given rooms, or every room it belongs to
// when rooms is empty.
func (r *RedisStore) DeleteAll(ctx context.Context, fd int, rooms []string) error {
	if len(rooms) == 0 {
		var err error
		rooms, err = r.Rooms(ctx, fd)
		if err != nil {
			return err
		}
		if len(rooms) == 0 {
			return nil
		}
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, room := range rooms {
			pipe.SRem(ctx, r.roomKey(room), fd)
		}
		members := make([]interface{}, len(rooms))
		for i, room := range rooms {
			members[i] = room
		}
		pipe.SRem(ctx, r.clientKey(fd), members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("room: redis delete all: %w", err)
	}
	return nil
}

// Clients returns the fds currently in room.
func (r *RedisStore) Clients(ctx context.Context, room string) ([]int, error) {
	raw, err := r.client.SMembers(ctx, r.roomKey(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("room: redis clients: %w", err)
	}
	fds := make([]int, 0, len(raw))
	for _, v := range raw {
		fd, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		fds = append(fds, fd)
	}
	return fds, nil
}

// Rooms returns the rooms fd currently belongs to.
func (r *RedisStore) Rooms(ctx context.Context, fd int) ([]string, error) {
	rooms, err := r.client.SMembers(ctx, r.clientKey(fd)).Result()
	if err != nil {
		return nil, fmt.Errorf("room: redis rooms: %w", err)
	}
	return rooms, nil
}

// Close releases the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

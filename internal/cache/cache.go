package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenCache — минимальный контракт TTL-хранилища одноразовых токенов.
//
// Ключевое требование к реализациям: Take атомарен. Два конкурентных
// потребителя одного токена не могут оба увидеть значение — read-then-delete
// как два отдельных вызова здесь намеренно не поддерживается.
type TokenCache interface {
	// Set сохраняет значение с TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get возвращает значение и признак его наличия, не удаляя запись.
	Get(ctx context.Context, key string) (string, bool, error)
	// Take атомарно возвращает значение и удаляет запись (single-use).
	Take(ctx context.Context, key string) (string, bool, error)
	// Remove удаляет запись.
	Remove(ctx context.Context, key string) error
	// Close закрывает клиент.
	Close() error
}

type redisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется "accounts:tok:".
func NewRedisCache(redisURL, prefix string) (TokenCache, error) {
	if prefix == "" {
		prefix = "accounts:tok:"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return &redisCache{rdb: rdb, prefix: prefix}, nil
}

func (c *redisCache) key(k string) string { return c.prefix + k }

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *redisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	return val, true, nil
}

// Take реализован через GETDEL: чтение и удаление — одна команда,
// окно двойного потребления отсутствует.
func (c *redisCache) Take(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.GetDel(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	return val, true, nil
}

func (c *redisCache) Remove(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.key(key)).Err()
}

func (c *redisCache) Close() error { return c.rdb.Close() }

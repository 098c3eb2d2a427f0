package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	bookCacheKeyPrefix   = "book:"
	bookVersionKeySuffix = ":version"
)

// Ensure redisBookCache implements BookCache.
var _ BookCache = (*redisBookCache)(nil)

// redisBookCache keeps each serialized book under its own key with the
// configured expiry. Every invalidation bumps a per-book version counter
// and a write-back only lands when the counter did not move since the
// version was read.
type redisBookCache struct {
	logger *zap.Logger
	client *redis.Client
	ttl    time.Duration
}

// BookCacheKey returns the redis key holding a cached book.
func BookCacheKey(id string) string {
	return bookCacheKeyPrefix + id
}

// BookVersionKey returns the redis key holding the invalidations counter of a book.
func BookVersionKey(id string) string {
	return bookCacheKeyPrefix + id + bookVersionKeySuffix
}

// NewRedisBookCache provides an instance of redis-based book cache.
func NewRedisBookCache(logger *zap.Logger, client *redis.Client, ttl time.Duration) BookCache {
	return &redisBookCache{
		logger: logger,
		client: client,
		ttl:    ttl,
	}
}

// GetRedisClient provides a ready to use redis client.
func GetRedisClient(config *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", config.Redis.Host, config.Redis.Port),
		DialTimeout:  config.Redis.DialTimeout,
		ReadTimeout:  config.Redis.ReadTimeout,
		WriteTimeout: config.Redis.WriteTimeout,
		PoolSize:     config.Redis.PoolSize,
		PoolTimeout:  config.Redis.PoolTimeout,
		Password:     config.Redis.Password,
		Username:     config.Redis.Username,
		DB:           config.Redis.DatabaseIndex,
	})

	// test connection.
	if pong, err := client.Ping(context.Background()).Result(); pong != "PONG" || err != nil {
		return client, fmt.Errorf("test connection failed: %v", err)
	}
	return client, nil
}

// Get retrieves a cached book based on its ID. It returns
// ErrBookNotFound when the book is not cached.
func (rc *redisBookCache) Get(ctx context.Context, id string) (Book, error) {
	var book Book
	bookJSONString, err := rc.client.Get(ctx, BookCacheKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return book, ErrBookNotFound
	}
	if err != nil {
		return book, err
	}
	err = json.Unmarshal([]byte(bookJSONString), &book)
	return book, err
}

// Version returns the invalidations counter of a book. It must be read
// before loading the book from the database and passed to Set.
func (rc *redisBookCache) Version(ctx context.Context, id string) (int64, error) {
	version, err := rc.client.Get(ctx, BookVersionKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return version, err
}

// Set caches a book record unless the book was invalidated after version
// was read. A skipped write is not an error.
func (rc *redisBookCache) Set(ctx context.Context, book Book, version int64) error {
	bookBytes, err := json.Marshal(book)
	if err != nil {
		return err
	}

	versionKey := BookVersionKey(book.ID)
	err = rc.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			rc.logger.Debug("cache: skipped stale book write", zap.String("book.id", book.ID))
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, BookCacheKey(book.ID), bookBytes, rc.ttl)
			return nil
		})
		return err
	}, versionKey)

	if errors.Is(err, redis.TxFailedErr) {
		rc.logger.Debug("cache: skipped concurrently invalidated book", zap.String("book.id", book.ID))
		return nil
	}
	return err
}

// Invalidate removes the given books from the cache and bumps their versions.
func (rc *redisBookCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := rc.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Incr(ctx, BookVersionKey(id))
			pipe.Del(ctx, BookCacheKey(id))
		}
		return nil
	})
	return err
}

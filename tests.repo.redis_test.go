package main

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// startRedisDockerContainer runs a redis container for the test. The test
// is skipped when no docker daemon is reachable.
func startRedisDockerContainer(t *testing.T) (string, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("Failed to start Dockertest: %+v", err)
	}

	err = pool.Client.Ping()
	if err != nil {
		t.Skipf("Could not connect to Docker: %+v", err)
	}

	resource, err := pool.Run("redis", "7.0.10-alpine", nil)
	if err != nil {
		t.Fatalf("Failed to start redis: %+v", err)
	}

	// build address the container is listening on
	addr := net.JoinHostPort("localhost", resource.GetPort("6379/tcp"))

	// ensure to wait for the container to be ready
	err = pool.Retry(func() error {
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer client.Close()
		return client.Ping(context.Background()).Err()
	})

	if err != nil {
		t.Fatalf("Failed to ping Redis: %+v", err)
	}

	destroyFunc := func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("Failed to purge resource: %+v", err)
		}
	}

	return addr, destroyFunc
}

func TestRedisBookCache(t *testing.T) {
	addr, destroyFunc := startRedisDockerContainer(t)
	defer destroyFunc()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	cache := NewRedisBookCache(zap.NewNop(), client, time.Minute)
	cover := "books/covers/1-abcd.png"
	book := testBook
	book.CoverImage = &cover

	t.Run("Get NonCached Book", func(t *testing.T) {
		_, err := cache.Get(ctx, book.ID)
		assert.Equal(t, ErrBookNotFound, err)
	})

	t.Run("Set And Get Book", func(t *testing.T) {
		version, err := cache.Version(ctx, book.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), version)

		require.NoError(t, cache.Set(ctx, book, version))
		got, err := cache.Get(ctx, book.ID)
		require.NoError(t, err)
		assert.Equal(t, book.Title, got.Title)
		assert.Equal(t, book.Quantity, got.Quantity)
		require.NotNil(t, got.CoverImage)
		assert.Equal(t, cover, *got.CoverImage)
		assert.True(t, book.CreatedAt.Equal(got.CreatedAt))

		ttl, err := client.TTL(ctx, BookCacheKey(book.ID)).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, time.Minute)
	})

	t.Run("Invalidate Book", func(t *testing.T) {
		require.NoError(t, cache.Invalidate(ctx, book.ID, "b:unknown"))
		_, err := cache.Get(ctx, book.ID)
		assert.Equal(t, ErrBookNotFound, err)
		assert.NoError(t, cache.Invalidate(ctx))

		version, err := cache.Version(ctx, book.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)
	})

	t.Run("Set Skips Book Invalidated Meanwhile", func(t *testing.T) {
		version, err := cache.Version(ctx, book.ID)
		require.NoError(t, err)
		require.NoError(t, cache.Invalidate(ctx, book.ID))

		require.NoError(t, cache.Set(ctx, book, version))
		_, err = cache.Get(ctx, book.ID)
		assert.Equal(t, ErrBookNotFound, err)

		version, err = cache.Version(ctx, book.ID)
		require.NoError(t, err)
		require.NoError(t, cache.Set(ctx, book, version))
		_, err = cache.Get(ctx, book.ID)
		assert.NoError(t, err)
	})

	t.Run("Books Expire Individually", func(t *testing.T) {
		other := testBook
		other.ID = "b:other"
		shortCache := NewRedisBookCache(zap.NewNop(), client, time.Second)
		require.NoError(t, shortCache.Set(ctx, other, 0))

		ttl, err := client.TTL(ctx, BookCacheKey(book.ID)).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Second)

		assert.Eventually(t, func() bool {
			_, err := shortCache.Get(ctx, other.ID)
			return errors.Is(err, ErrBookNotFound)
		}, 5*time.Second, 100*time.Millisecond)
		_, err = cache.Get(ctx, book.ID)
		assert.NoError(t, err)
	})
}

func TestRedisQueue(t *testing.T) {
	addr, destroyFunc := startRedisDockerContainer(t)
	defer destroyFunc()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	queue := NewRedisQueue(client, time.Second)
	at := NewMockClocker().Now()

	first := LedgerEvent{Type: EventBookBorrowed, TransactionID: "t:1", BookID: "b:1", UserID: "u:1", OccurredAt: at}
	second := LedgerEvent{Type: EventBookReturned, TransactionID: "t:1", BookID: "b:1", UserID: "u:1", OccurredAt: at.Add(time.Hour)}
	require.NoError(t, queue.Push(ctx, LedgerQueue, first))
	require.NoError(t, queue.Push(ctx, LedgerQueue, second))

	qid, event, err := queue.Pop(ctx, LedgerQueue)
	require.NoError(t, err)
	assert.Equal(t, LedgerQueue, qid)
	assert.Equal(t, first.TransactionID, event.TransactionID)
	assert.Equal(t, first.Type, event.Type)
	assert.True(t, first.OccurredAt.Equal(event.OccurredAt))

	_, event, err = queue.Pop(ctx, LedgerQueue)
	require.NoError(t, err)
	assert.Equal(t, EventBookReturned, event.Type)

	// an empty queue times out with redis.Nil.
	_, _, err = queue.Pop(ctx, LedgerQueue)
	assert.ErrorIs(t, err, redis.Nil)
}

// Ensure events pushed by the borrow flow end up in the bolt archive.
func TestRedisQueue_ConsumedIntoArchive(t *testing.T) {
	addr, destroyFunc := startRedisDockerContainer(t)
	defer destroyFunc()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	queue := NewRedisQueue(client, 100*time.Millisecond)
	archive := newTestBoltArchive(t)

	store := newTestSQLiteStore(t)
	addTestBook(t, store, "b:1", 1)
	addTestUser(t, store, "u:1")
	ledger := NewBookTransactionService(zap.NewNop(), NewStepClocker(), NewIDsHandler(), store, nil, queue)
	_, err := ledger.Borrow(context.Background(), "b:1", "u:1")
	require.NoError(t, err)
	_, err = ledger.Return(context.Background(), "b:1", "u:1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewBoltDBConsumer(zap.NewNop(), queue, archive).Consume(ctx, LedgerQueue)
	}()

	assert.Eventually(t, func() bool {
		events, err := archive.GetAll(context.Background())
		return err == nil && len(events) == 2
	}, 5*time.Second, 50*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

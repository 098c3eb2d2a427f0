package main

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// startPostgresDockerContainer runs a postgres container and returns a migrated
// store on it. The test is skipped when no docker daemon is reachable.
func startPostgresDockerContainer(t *testing.T) (Store, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("Failed to start Dockertest: %+v", err)
	}

	err = pool.Client.Ping()
	if err != nil {
		t.Skipf("Could not connect to Docker: %+v", err)
	}

	resource, err := pool.Run("postgres", "16-alpine", []string{
		"POSTGRES_USER=library",
		"POSTGRES_PASSWORD=library",
		"POSTGRES_DB=library",
	})
	if err != nil {
		t.Fatalf("Failed to start postgres: %+v", err)
	}

	dsn := fmt.Sprintf("postgres://library:library@%s/library?sslmode=disable",
		net.JoinHostPort("localhost", resource.GetPort("5432/tcp")))

	var store Store
	err = pool.Retry(func() error {
		db, err := GetSQLDB(&DatabaseConfig{Driver: DriverPostgres, DSN: dsn, MaxOpenConns: 20})
		if err != nil {
			return err
		}
		if err = db.Ping(); err != nil {
			db.Close()
			return err
		}
		store = NewSQLStore(zap.NewNop(), db, DriverPostgres)
		return nil
	})
	if err != nil {
		_ = pool.Purge(resource)
		t.Fatalf("Failed to ping postgres: %+v", err)
	}

	require.NoError(t, store.Migrate(context.Background()))

	destroyFunc := func() {
		_ = store.Close()
		if err := pool.Purge(resource); err != nil {
			t.Logf("Failed to purge resource: %+v", err)
		}
	}

	return store, destroyFunc
}

func TestPostgresStore_BorrowAndReturn(t *testing.T) {
	store, destroyFunc := startPostgresDockerContainer(t)
	defer destroyFunc()
	ctx := context.Background()
	svc := NewBookTransactionService(zap.NewNop(), NewStepClocker(), NewIDsHandler(), store, NewMockBookCache(), &RecordingQueuer{})

	addTestBook(t, store, "b:pg", 1)
	const n = 8
	for i := 0; i < n; i++ {
		addTestUser(t, store, fmt.Sprintf("u:pg%d", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Borrow(ctx, "b:pg", fmt.Sprintf("u:pg%d", i))
		}(i)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "more than one borrow succeeded")
			winner = i
			continue
		}
		assert.Equal(t, ErrBookNotAvailable, err)
	}
	require.NotEqual(t, -1, winner)

	book, err := store.Books().GetOne(ctx, "b:pg")
	require.NoError(t, err)
	assert.Equal(t, 0, book.Quantity)

	_, err = svc.Return(ctx, "b:pg", fmt.Sprintf("u:pg%d", winner))
	require.NoError(t, err)

	book, err = store.Books().GetOne(ctx, "b:pg")
	require.NoError(t, err)
	assert.Equal(t, 1, book.Quantity)

	history, err := store.Ledger().FindByBook(ctx, "b:pg")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].IsOpen())
}

func TestPostgresStore_TwoReaders(t *testing.T) {
	store, destroyFunc := startPostgresDockerContainer(t)
	defer destroyFunc()
	svc := NewBookTransactionService(zap.NewNop(), NewStepClocker(), NewIDsHandler(), store, NewMockBookCache(), &RecordingQueuer{})
	runTwoReadersScenario(t, store, svc, "b:pg", "u:pga", "u:pgb")
}

func TestPostgresStore_ConcurrentBorrowsBySameUser(t *testing.T) {
	store, destroyFunc := startPostgresDockerContainer(t)
	defer destroyFunc()
	svc := NewBookTransactionService(zap.NewNop(), NewStepClocker(), NewIDsHandler(), store, NewMockBookCache(), &RecordingQueuer{})
	runConcurrentSameUserBorrows(t, store, svc, "b:pg", "u:pg", 10)
}

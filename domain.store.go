package main

import "context"

// Repositories groups the storages bound to the same database
// handle, either the connections pool or a single transaction.
type Repositories interface {
	Books() BookStorage
	Ledger() LedgerStorage
	Users() UserStorage
}

// Store is the relational storage of the application. Atomic runs fn
// inside a single database transaction: it commits only if fn returns
// nil and rolls back everything otherwise. Reads done through the
// repositories given to fn see and lock the rows they touch.
type Store interface {
	Repositories
	Atomic(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

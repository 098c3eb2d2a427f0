package main

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// BookTransactionServiceProvider runs the borrow and return lifecycle of books.
type BookTransactionServiceProvider interface {
	Borrow(ctx context.Context, bookID, userID string) (BookTransaction, error)
	Return(ctx context.Context, bookID, userID string) (BookTransaction, error)
	GetBookTransactions(ctx context.Context, bookID string) ([]BookTransaction, error)
	GetUserBorrowedBooks(ctx context.Context, userID string) ([]BookTransaction, error)
	GetAvailability(ctx context.Context, bookID string) (Availability, error)
}

// BookTransactionService coordinates the inventory and the ledger. Borrow
// and Return run entirely inside one atomic scope of the store: either the
// quantity change and the ledger change are both committed or none is.
type BookTransactionService struct {
	logger     *zap.Logger
	clock      Clocker
	idsHandler UIDHandler
	store      Store
	cache      BookCache
	queue      Queuer
}

func NewBookTransactionService(logger *zap.Logger, clock Clocker, ids UIDHandler, store Store, cache BookCache, queue Queuer) BookTransactionServiceProvider {
	return &BookTransactionService{
		logger:     logger,
		clock:      clock,
		idsHandler: ids,
		store:      store,
		cache:      cache,
		queue:      queue,
	}
}

// Borrow lends one copy of the book to the user. The book must have at least
// one available copy and the user must not already hold an open borrow of it.
func (ts *BookTransactionService) Borrow(ctx context.Context, bookID, userID string) (BookTransaction, error) {
	var bt BookTransaction
	now := ts.clock.Now().UTC()
	err := ts.store.Atomic(ctx, func(ctx context.Context, repos Repositories) error {
		book, err := repos.Books().GetOne(ctx, bookID)
		if errors.Is(err, ErrBookNotFound) {
			return ErrLedgerBookNotFound
		}
		if err != nil {
			return err
		}

		if book.Quantity <= 0 {
			return ErrBookNotAvailable
		}

		_, err = repos.Ledger().FindActiveByBookAndUser(ctx, bookID, userID)
		if err == nil {
			return ErrBookAlreadyBorrowed
		}
		if !errors.Is(err, ErrNoActiveTransaction) {
			return err
		}

		_, err = repos.Books().DecreaseQuantity(ctx, bookID, now)
		if errors.Is(err, ErrInsufficientQuantity) {
			return ErrBookNotAvailable
		}
		if err != nil {
			return err
		}

		bt, err = repos.Ledger().Create(ctx, ts.idsHandler.Generate(TransactionIDPrefix), bookID, userID, now)
		if errors.Is(err, ErrDuplicateActive) {
			return ErrBookAlreadyBorrowed
		}
		return err
	})
	if err != nil {
		return BookTransaction{}, err
	}

	ts.committed(ctx, EventBookBorrowed, bt)
	return bt, nil
}

// Return gives back the copy of the book the user holds.
func (ts *BookTransactionService) Return(ctx context.Context, bookID, userID string) (BookTransaction, error) {
	var bt BookTransaction
	now := ts.clock.Now().UTC()
	err := ts.store.Atomic(ctx, func(ctx context.Context, repos Repositories) error {
		active, err := repos.Ledger().FindActiveByBookAndUser(ctx, bookID, userID)
		if errors.Is(err, ErrNoActiveTransaction) {
			return ErrNoActiveBorrowing
		}
		if err != nil {
			return err
		}

		if _, err = repos.Books().IncreaseQuantity(ctx, bookID, now); err != nil {
			return err
		}

		bt, err = repos.Ledger().Close(ctx, active.ID, now)
		if errors.Is(err, ErrNoActiveTransaction) {
			return ErrNoActiveBorrowing
		}
		return err
	})
	if err != nil {
		return BookTransaction{}, err
	}

	ts.committed(ctx, EventBookReturned, bt)
	return bt, nil
}

// GetBookTransactions returns the whole borrow history of a book,
// the most recent borrow first.
func (ts *BookTransactionService) GetBookTransactions(ctx context.Context, bookID string) ([]BookTransaction, error) {
	if _, err := ts.store.Books().GetOne(ctx, bookID); err != nil {
		if errors.Is(err, ErrBookNotFound) {
			return nil, ErrLedgerBookNotFound
		}
		return nil, err
	}
	return ts.store.Ledger().FindByBook(ctx, bookID)
}

// GetUserBorrowedBooks returns the open borrows of a user with their books.
func (ts *BookTransactionService) GetUserBorrowedBooks(ctx context.Context, userID string) ([]BookTransaction, error) {
	return ts.store.Ledger().FindOpenByUser(ctx, userID)
}

// GetAvailability returns the available and borrowed copies of a book.
func (ts *BookTransactionService) GetAvailability(ctx context.Context, bookID string) (Availability, error) {
	book, err := ts.store.Books().GetOne(ctx, bookID)
	if errors.Is(err, ErrBookNotFound) {
		return Availability{}, ErrLedgerBookNotFound
	}
	if err != nil {
		return Availability{}, err
	}
	borrowed, err := ts.store.Ledger().CountOpenByBook(ctx, bookID)
	if err != nil {
		return Availability{}, err
	}
	return Availability{
		BookID:    bookID,
		Quantity:  book.Quantity,
		Borrowed:  borrowed,
		Available: book.Quantity > 0,
	}, nil
}

// committed runs the side effects of a committed borrow or return.
// Their failures are logged only.
func (ts *BookTransactionService) committed(ctx context.Context, eventType string, bt BookTransaction) {
	ctx = context.WithoutCancel(ctx)
	logger := LoggerFromContext(ctx, ts.logger)

	if ts.cache != nil {
		if err := ts.cache.Invalidate(ctx, bt.BookID); err != nil {
			logger.Warn("service: failed to invalidate cached book", zap.String("book.id", bt.BookID), zap.Error(err))
		}
	}

	if ts.queue == nil {
		return
	}
	event := LedgerEvent{
		Type:          eventType,
		TransactionID: bt.ID,
		BookID:        bt.BookID,
		UserID:        bt.UserID,
		OccurredAt:    bt.BorrowDate,
	}
	if bt.ReturnDate != nil {
		event.OccurredAt = *bt.ReturnDate
	}
	if err := ts.queue.Push(ctx, LedgerQueue, event); err != nil {
		logger.Error("service: failed to push ledger event to queue",
			zap.String("qid", LedgerQueue),
			zap.String("event.type", eventType),
			zap.String("transaction.id", bt.ID),
			zap.Error(err),
		)
	}
}

package main

import (
	"context"
	"time"
)

// Ledger event types.
const (
	EventBookBorrowed = "book.borrowed"
	EventBookReturned = "book.returned"
)

// BookTransaction is a borrow record. A nil ReturnDate means the
// copy is still borrowed (open transaction).
type BookTransaction struct {
	ID         string       `json:"id"`
	BookID     string       `json:"bookId"`
	UserID     string       `json:"userId"`
	BorrowDate time.Time    `json:"borrowDate"`
	ReturnDate *time.Time   `json:"returnDate"`
	Book       *Book        `json:"book,omitempty"`
	User       *UserSummary `json:"user,omitempty"`
}

// IsOpen tells whether the transaction has not been returned yet.
func (bt BookTransaction) IsOpen() bool {
	return bt.ReturnDate == nil
}

// LedgerStorage defines the operations on the borrow/return records.
type LedgerStorage interface {
	Create(ctx context.Context, id, bookID, userID string, at time.Time) (BookTransaction, error)
	FindActiveByBookAndUser(ctx context.Context, bookID, userID string) (BookTransaction, error)
	Close(ctx context.Context, id string, at time.Time) (BookTransaction, error)
	FindOpenByUser(ctx context.Context, userID string) ([]BookTransaction, error)
	FindByBook(ctx context.Context, bookID string) ([]BookTransaction, error)
	CountOpenByBook(ctx context.Context, bookID string) (int, error)
}

// Availability summarizes the inventory of a book.
type Availability struct {
	BookID    string `json:"bookId"`
	Quantity  int    `json:"quantity"`
	Borrowed  int    `json:"borrowed"`
	Available bool   `json:"available"`
}

// LedgerEvent is emitted once a borrow or return has been committed.
type LedgerEvent struct {
	Type          string    `json:"type"`
	TransactionID string    `json:"transactionId"`
	BookID        string    `json:"bookId"`
	UserID        string    `json:"userId"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// LedgerArchive stores committed ledger events for ops inspection.
type LedgerArchive interface {
	Add(ctx context.Context, event LedgerEvent) error
	GetAll(ctx context.Context) ([]LedgerEvent, error)
}

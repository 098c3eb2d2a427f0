package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

type sqlLedgerStorage struct {
	sqlRepos
}

// transactionRow is a book transaction joined with its book and user.
type transactionRow struct {
	ID                  string     `db:"id"`
	BookID              string     `db:"book_id"`
	UserID              string     `db:"user_id"`
	BorrowDate          time.Time  `db:"borrow_date"`
	ReturnDate          *time.Time `db:"return_date"`
	BookTitle           string     `db:"book_title"`
	BookAuthor          string     `db:"book_author"`
	BookISBN            string     `db:"book_isbn"`
	BookPublicationYear int        `db:"book_publication_year"`
	BookCoverImage      *string    `db:"book_cover_image"`
	BookQuantity        int        `db:"book_quantity"`
	BookCreatedAt       time.Time  `db:"book_created_at"`
	BookUpdatedAt       time.Time  `db:"book_updated_at"`
	Username            string     `db:"user_username"`
}

// toTransaction converts the row. The relations flags select which
// of the joined book and user summaries are embedded.
func (row transactionRow) toTransaction(withBook, withUser bool) BookTransaction {
	bt := BookTransaction{
		ID:         row.ID,
		BookID:     row.BookID,
		UserID:     row.UserID,
		BorrowDate: row.BorrowDate.UTC(),
	}
	if row.ReturnDate != nil {
		rd := row.ReturnDate.UTC()
		bt.ReturnDate = &rd
	}
	if withBook {
		bt.Book = &Book{
			ID:              row.BookID,
			Title:           row.BookTitle,
			Author:          row.BookAuthor,
			ISBN:            row.BookISBN,
			PublicationYear: row.BookPublicationYear,
			CoverImage:      row.BookCoverImage,
			Quantity:        row.BookQuantity,
			CreatedAt:       row.BookCreatedAt.UTC(),
			UpdatedAt:       row.BookUpdatedAt.UTC(),
		}
	}
	if withUser {
		bt.User = &UserSummary{ID: row.UserID, Username: row.Username}
	}
	return bt
}

// detailed selects transactions with the columns of their book and user.
func (ls *sqlLedgerStorage) detailed() *goqu.SelectDataset {
	return ls.dialect.From(goqu.T(tableTransactions).As("t")).
		InnerJoin(goqu.T(tableBooks).As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("t.book_id")))).
		InnerJoin(goqu.T(tableUsers).As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("t.user_id")))).
		Select(
			goqu.I("t.id").As("id"),
			goqu.I("t.book_id").As("book_id"),
			goqu.I("t.user_id").As("user_id"),
			goqu.I("t.borrow_date").As("borrow_date"),
			goqu.I("t.return_date").As("return_date"),
			goqu.I("b.title").As("book_title"),
			goqu.I("b.author").As("book_author"),
			goqu.I("b.isbn").As("book_isbn"),
			goqu.I("b.publication_year").As("book_publication_year"),
			goqu.I("b.cover_image").As("book_cover_image"),
			goqu.I("b.quantity").As("book_quantity"),
			goqu.I("b.created_at").As("book_created_at"),
			goqu.I("b.updated_at").As("book_updated_at"),
			goqu.I("u.username").As("user_username"),
		).
		Prepared(true)
}

func (ls *sqlLedgerStorage) getDetailed(ctx context.Context, id string) (BookTransaction, error) {
	var row transactionRow
	err := ls.get(ctx, &row, ls.detailed().Where(goqu.I("t.id").Eq(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return BookTransaction{}, ErrTransactionNotFound
	}
	if err != nil {
		return BookTransaction{}, fmt.Errorf("ledger: failed to get %s: %w", id, err)
	}
	return row.toTransaction(true, true), nil
}

// Create inserts an open transaction and returns it with its book and user.
func (ls *sqlLedgerStorage) Create(ctx context.Context, id, bookID, userID string, at time.Time) (BookTransaction, error) {
	_, err := ls.exec(ctx, ls.dialect.Insert(tableTransactions).Rows(goqu.Record{
		"id":          id,
		"book_id":     bookID,
		"user_id":     userID,
		"borrow_date": at.UTC(),
		"return_date": nil,
	}).Prepared(true))
	if isUniqueViolation(err) {
		return BookTransaction{}, ErrDuplicateActive
	}
	if err != nil {
		return BookTransaction{}, fmt.Errorf("ledger: failed to insert %s: %w", id, err)
	}
	return ls.getDetailed(ctx, id)
}

// FindActiveByBookAndUser returns the open transaction of the user on the book.
// Inside an atomic scope on postgres the row stays locked until the end.
func (ls *sqlLedgerStorage) FindActiveByBookAndUser(ctx context.Context, bookID, userID string) (BookTransaction, error) {
	ds := ls.dialect.From(tableTransactions).
		Select("id", "book_id", "user_id", "borrow_date", "return_date").
		Where(
			goqu.C("book_id").Eq(bookID),
			goqu.C("user_id").Eq(userID),
			goqu.C("return_date").IsNull(),
		).
		Prepared(true)
	if ls.lock {
		ds = ds.ForUpdate(exp.Wait)
	}

	var row transactionRow
	err := ls.get(ctx, &row, ds)
	if errors.Is(err, sql.ErrNoRows) {
		return BookTransaction{}, ErrNoActiveTransaction
	}
	if err != nil {
		return BookTransaction{}, fmt.Errorf("ledger: failed to find active of book %s and user %s: %w", bookID, userID, err)
	}
	return row.toTransaction(false, false), nil
}

// Close sets the return date of an open transaction.
func (ls *sqlLedgerStorage) Close(ctx context.Context, id string, at time.Time) (BookTransaction, error) {
	n, err := ls.exec(ctx, ls.dialect.Update(tableTransactions).
		Set(goqu.Record{"return_date": at.UTC()}).
		Where(goqu.C("id").Eq(id), goqu.C("return_date").IsNull()).
		Prepared(true))
	if err != nil {
		return BookTransaction{}, fmt.Errorf("ledger: failed to close %s: %w", id, err)
	}
	if n == 0 {
		return BookTransaction{}, ErrNoActiveTransaction
	}
	return ls.getDetailed(ctx, id)
}

// FindOpenByUser lists the open transactions of a user with their book.
func (ls *sqlLedgerStorage) FindOpenByUser(ctx context.Context, userID string) ([]BookTransaction, error) {
	ds := ls.detailed().
		Where(goqu.I("t.user_id").Eq(userID), goqu.I("t.return_date").IsNull()).
		Order(goqu.I("t.borrow_date").Desc())
	return ls.list(ctx, ds, true, false)
}

// FindByBook lists every transaction of a book with the borrowing
// user, starting from the most recent borrow.
func (ls *sqlLedgerStorage) FindByBook(ctx context.Context, bookID string) ([]BookTransaction, error) {
	ds := ls.detailed().
		Where(goqu.I("t.book_id").Eq(bookID)).
		Order(goqu.I("t.borrow_date").Desc(), goqu.I("t.id").Desc())
	return ls.list(ctx, ds, false, true)
}

func (ls *sqlLedgerStorage) list(ctx context.Context, ds *goqu.SelectDataset, withBook, withUser bool) ([]BookTransaction, error) {
	var rows []transactionRow
	if err := ls.selectAll(ctx, &rows, ds); err != nil {
		return nil, fmt.Errorf("ledger: failed to list: %w", err)
	}
	txs := make([]BookTransaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, row.toTransaction(withBook, withUser))
	}
	return txs, nil
}

// CountOpenByBook returns the number of copies of a book currently borrowed.
func (ls *sqlLedgerStorage) CountOpenByBook(ctx context.Context, bookID string) (int, error) {
	var count int
	err := ls.get(ctx, &count, ls.dialect.From(tableTransactions).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.C("book_id").Eq(bookID), goqu.C("return_date").IsNull()).
		Prepared(true))
	if err != nil {
		return 0, fmt.Errorf("ledger: failed to count open of book %s: %w", bookID, err)
	}
	return count, nil
}

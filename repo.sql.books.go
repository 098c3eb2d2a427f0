package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

var bookColumns = []interface{}{
	"id", "title", "author", "isbn", "publication_year",
	"cover_image", "quantity", "created_at", "updated_at",
}

type sqlBookStorage struct {
	sqlRepos
}

// Add inserts a new book record.
func (bs *sqlBookStorage) Add(ctx context.Context, book Book) error {
	_, err := bs.exec(ctx, bs.dialect.Insert(tableBooks).Rows(goqu.Record{
		"id":               book.ID,
		"title":            book.Title,
		"author":           book.Author,
		"isbn":             book.ISBN,
		"publication_year": book.PublicationYear,
		"cover_image":      book.CoverImage,
		"quantity":         book.Quantity,
		"created_at":       book.CreatedAt.UTC(),
		"updated_at":       book.UpdatedAt.UTC(),
	}).Prepared(true))
	if isUniqueViolation(err) {
		return ErrDuplicateISBN
	}
	if isCheckViolation(err) {
		return ErrInsufficientQuantity
	}
	if err != nil {
		return fmt.Errorf("books: failed to insert %s: %w", book.ID, err)
	}
	return nil
}

// GetOne retrieves a book record based on its ID. Inside an
// atomic scope on postgres the row stays locked until the end.
func (bs *sqlBookStorage) GetOne(ctx context.Context, id string) (Book, error) {
	ds := bs.dialect.From(tableBooks).Select(bookColumns...).Where(goqu.C("id").Eq(id)).Prepared(true)
	if bs.lock {
		ds = ds.ForUpdate(exp.Wait)
	}
	return bs.getOne(ctx, ds, id)
}

// GetByISBN retrieves a book record based on its ISBN.
func (bs *sqlBookStorage) GetByISBN(ctx context.Context, isbn string) (Book, error) {
	ds := bs.dialect.From(tableBooks).Select(bookColumns...).Where(goqu.C("isbn").Eq(isbn)).Prepared(true)
	return bs.getOne(ctx, ds, isbn)
}

func (bs *sqlBookStorage) getOne(ctx context.Context, ds *goqu.SelectDataset, key string) (Book, error) {
	var book Book
	err := bs.get(ctx, &book, ds)
	if errors.Is(err, sql.ErrNoRows) {
		return book, ErrBookNotFound
	}
	if err != nil {
		return book, fmt.Errorf("books: failed to get %s: %w", key, err)
	}
	return normalizeBook(book), nil
}

// Update replaces the mutable fields of an existing book record.
func (bs *sqlBookStorage) Update(ctx context.Context, book Book) (Book, error) {
	n, err := bs.exec(ctx, bs.dialect.Update(tableBooks).Set(goqu.Record{
		"title":            book.Title,
		"author":           book.Author,
		"isbn":             book.ISBN,
		"publication_year": book.PublicationYear,
		"cover_image":      book.CoverImage,
		"quantity":         book.Quantity,
		"updated_at":       book.UpdatedAt.UTC(),
	}).Where(goqu.C("id").Eq(book.ID)).Prepared(true))
	if isUniqueViolation(err) {
		return book, ErrDuplicateISBN
	}
	if isCheckViolation(err) {
		return book, ErrInsufficientQuantity
	}
	if err != nil {
		return book, fmt.Errorf("books: failed to update %s: %w", book.ID, err)
	}
	if n == 0 {
		return book, ErrBookNotFound
	}
	return bs.GetOne(ctx, book.ID)
}

// Delete removes a book record based on its ID.
func (bs *sqlBookStorage) Delete(ctx context.Context, id string) error {
	n, err := bs.exec(ctx, bs.dialect.Delete(tableBooks).Where(goqu.C("id").Eq(id)).Prepared(true))
	if err != nil {
		return fmt.Errorf("books: failed to delete %s: %w", id, err)
	}
	if n == 0 {
		return ErrBookNotFound
	}
	return nil
}

// Search returns a page of books ordered from the most recent, with the total
// number of matching books. The search term matches title or author
// regardless of the case.
func (bs *sqlBookStorage) Search(ctx context.Context, query BookQuery) ([]Book, int, error) {
	ds := bs.dialect.From(tableBooks).Prepared(true)
	if term := strings.TrimSpace(query.Search); term != "" {
		pattern := "%" + strings.ToLower(term) + "%"
		ds = ds.Where(goqu.Or(
			goqu.Func("LOWER", goqu.C("title")).Like(pattern),
			goqu.Func("LOWER", goqu.C("author")).Like(pattern),
		))
	}

	var total int
	if err := bs.get(ctx, &total, ds.Select(goqu.COUNT(goqu.Star()))); err != nil {
		return nil, 0, fmt.Errorf("books: failed to count: %w", err)
	}

	books := []Book{}
	page := ds.Select(bookColumns...).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc()).
		Limit(uint(query.Limit)).
		Offset(uint((query.Page - 1) * query.Limit))
	if err := bs.selectAll(ctx, &books, page); err != nil {
		return nil, 0, fmt.Errorf("books: failed to search: %w", err)
	}
	for i := range books {
		books[i] = normalizeBook(books[i])
	}
	return books, total, nil
}

// DecreaseQuantity takes one copy out of the inventory. The
// guarded update never lets the quantity go below zero.
func (bs *sqlBookStorage) DecreaseQuantity(ctx context.Context, id string, at time.Time) (Book, error) {
	return bs.shiftQuantity(ctx, id, at, "quantity - 1", goqu.C("quantity").Gt(0))
}

// IncreaseQuantity puts one copy back into the inventory.
func (bs *sqlBookStorage) IncreaseQuantity(ctx context.Context, id string, at time.Time) (Book, error) {
	return bs.shiftQuantity(ctx, id, at, "quantity + 1", nil)
}

func (bs *sqlBookStorage) shiftQuantity(ctx context.Context, id string, at time.Time, expr string, guard exp.Expression) (Book, error) {
	where := []exp.Expression{goqu.C("id").Eq(id)}
	if guard != nil {
		where = append(where, guard)
	}
	n, err := bs.exec(ctx, bs.dialect.Update(tableBooks).Set(goqu.Record{
		"quantity":   goqu.L(expr),
		"updated_at": at.UTC(),
	}).Where(where...).Prepared(true))
	if isCheckViolation(err) {
		return Book{}, ErrInsufficientQuantity
	}
	if err != nil {
		return Book{}, fmt.Errorf("books: failed to update quantity of %s: %w", id, err)
	}

	book, err := bs.GetOne(ctx, id)
	if err != nil {
		return book, err
	}
	if n == 0 {
		return book, ErrInsufficientQuantity
	}
	return book, nil
}

// normalizeBook sets the timestamps location to UTC whatever the driver.
func normalizeBook(book Book) Book {
	book.CreatedAt = book.CreatedAt.UTC()
	book.UpdatedAt = book.UpdatedAt.UTC()
	return book
}

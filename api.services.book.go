package main

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

type BookServiceProvider interface {
	Add(ctx context.Context, book Book) (Book, error)
	GetOne(ctx context.Context, id string) (Book, error)
	Search(ctx context.Context, query BookQuery) ([]Book, *Pagination, error)
	Update(ctx context.Context, id string, update BookUpdate) (Book, error)
	UpdateCover(ctx context.Context, id string, coverPath string) (Book, error)
	Delete(ctx context.Context, id string) (Book, error)
}

type BookService struct {
	logger *zap.Logger
	clock  Clocker
	store  Store
	cache  BookCache
	covers CoverStorage
}

func NewBookService(logger *zap.Logger, clock Clocker, store Store, cache BookCache, covers CoverStorage) BookServiceProvider {
	return &BookService{
		logger: logger,
		clock:  clock,
		store:  store,
		cache:  cache,
		covers: covers,
	}
}

// Add registers a new book into the catalog. The ISBN must be unique.
func (bs *BookService) Add(ctx context.Context, book Book) (Book, error) {
	_, err := bs.store.Books().GetByISBN(ctx, book.ISBN)
	if err == nil {
		return book, ErrISBNAlreadyExists
	}
	if !errors.Is(err, ErrBookNotFound) {
		return book, err
	}

	now := bs.clock.Now().UTC()
	book.CreatedAt = now
	book.UpdatedAt = now
	err = bs.store.Books().Add(ctx, book)
	if errors.Is(err, ErrDuplicateISBN) {
		return book, ErrISBNAlreadyExists
	}
	return book, err
}

// GetOne returns a book, from the cache when possible.
func (bs *BookService) GetOne(ctx context.Context, id string) (Book, error) {
	cacheable := false
	var version int64
	if bs.cache != nil {
		book, err := bs.cache.Get(ctx, id)
		if err == nil {
			return book, nil
		}
		if !errors.Is(err, ErrBookNotFound) {
			bs.logger.Warn("service: failed to read book from cache", zap.String("book.id", id), zap.Error(err))
		}
		// the version is read before the database so that a change
		// committed in between prevents the write-back below.
		version, err = bs.cache.Version(ctx, id)
		if err != nil {
			bs.logger.Warn("service: failed to read book cache version", zap.String("book.id", id), zap.Error(err))
		} else {
			cacheable = true
		}
	}

	book, err := bs.store.Books().GetOne(ctx, id)
	if errors.Is(err, ErrBookNotFound) {
		return book, BookWithIDNotFound(id)
	}
	if err != nil {
		return book, err
	}

	if cacheable {
		if err = bs.cache.Set(ctx, book, version); err != nil {
			bs.logger.Warn("service: failed to cache book", zap.String("book.id", id), zap.Error(err))
		}
	}
	return book, nil
}

// Search returns a page of the catalog with its pagination details.
func (bs *BookService) Search(ctx context.Context, query BookQuery) ([]Book, *Pagination, error) {
	books, total, err := bs.store.Books().Search(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	return books, NewPagination(query, total), nil
}

// Update applies a partial update to a book. Changing the ISBN to the one
// of another book is refused.
func (bs *BookService) Update(ctx context.Context, id string, update BookUpdate) (Book, error) {
	var book Book
	err := bs.store.Atomic(ctx, func(ctx context.Context, repos Repositories) error {
		current, err := repos.Books().GetOne(ctx, id)
		if errors.Is(err, ErrBookNotFound) {
			return BookWithIDNotFound(id)
		}
		if err != nil {
			return err
		}

		if update.ISBN != nil && strings.TrimSpace(*update.ISBN) != current.ISBN {
			other, err := repos.Books().GetByISBN(ctx, strings.TrimSpace(*update.ISBN))
			if err == nil && other.ID != id {
				return ErrISBNAlreadyExists
			}
			if err != nil && !errors.Is(err, ErrBookNotFound) {
				return err
			}
		}

		applyBookUpdate(&current, update)
		current.UpdatedAt = bs.clock.Now().UTC()
		book, err = repos.Books().Update(ctx, current)
		if errors.Is(err, ErrDuplicateISBN) {
			return ErrISBNAlreadyExists
		}
		return err
	})
	if err != nil {
		return book, err
	}
	bs.invalidate(ctx, id)
	return book, nil
}

// UpdateCover replaces the cover of a book and removes the previous file.
func (bs *BookService) UpdateCover(ctx context.Context, id string, coverPath string) (Book, error) {
	var book Book
	var previous *string
	err := bs.store.Atomic(ctx, func(ctx context.Context, repos Repositories) error {
		current, err := repos.Books().GetOne(ctx, id)
		if errors.Is(err, ErrBookNotFound) {
			return BookWithIDNotFound(id)
		}
		if err != nil {
			return err
		}
		previous = current.CoverImage
		current.CoverImage = &coverPath
		current.UpdatedAt = bs.clock.Now().UTC()
		book, err = repos.Books().Update(ctx, current)
		return err
	})
	if err != nil {
		bs.removeCover(coverPath)
		return book, err
	}
	if previous != nil {
		bs.removeCover(*previous)
	}
	bs.invalidate(ctx, id)
	return book, nil
}

// Delete removes a book which has no copy currently borrowed.
// Its closed transactions and its cover file are removed too.
func (bs *BookService) Delete(ctx context.Context, id string) (Book, error) {
	var book Book
	err := bs.store.Atomic(ctx, func(ctx context.Context, repos Repositories) error {
		var err error
		book, err = repos.Books().GetOne(ctx, id)
		if errors.Is(err, ErrBookNotFound) {
			return BookWithIDNotFound(id)
		}
		if err != nil {
			return err
		}

		open, err := repos.Ledger().CountOpenByBook(ctx, id)
		if err != nil {
			return err
		}
		if open > 0 {
			return ErrBookStillBorrowed
		}
		return repos.Books().Delete(ctx, id)
	})
	if err != nil {
		return book, err
	}
	if book.CoverImage != nil {
		bs.removeCover(*book.CoverImage)
	}
	bs.invalidate(ctx, id)
	return book, nil
}

func (bs *BookService) invalidate(ctx context.Context, ids ...string) {
	if bs.cache == nil {
		return
	}
	if err := bs.cache.Invalidate(context.WithoutCancel(ctx), ids...); err != nil {
		bs.logger.Warn("service: failed to invalidate cached books", zap.Strings("book.ids", ids), zap.Error(err))
	}
}

func (bs *BookService) removeCover(path string) {
	if bs.covers == nil {
		return
	}
	if err := bs.covers.Remove(path); err != nil {
		bs.logger.Warn("service: failed to remove cover file", zap.String("cover.path", path), zap.Error(err))
	}
}

// applyBookUpdate copies the provided fields of the update into the book.
func applyBookUpdate(book *Book, update BookUpdate) {
	if update.Title != nil {
		book.Title = strings.TrimSpace(*update.Title)
	}
	if update.Author != nil {
		book.Author = strings.TrimSpace(*update.Author)
	}
	if update.ISBN != nil {
		book.ISBN = strings.TrimSpace(*update.ISBN)
	}
	if update.PublicationYear != nil {
		book.PublicationYear = *update.PublicationYear
	}
	if update.Quantity != nil {
		book.Quantity = *update.Quantity
	}
}

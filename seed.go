package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// seedCover is the placeholder cover of the seeded books.
const seedCover = "https://placehold.co/600x400"

// defaultSeedQuantity is the number of copies of each seeded book.
const defaultSeedQuantity = 5

// seedBooks is the initial catalog of the library.
var seedBooks = []Book{
	{Title: "The Great Gatsby", Author: "F. Scott Fitzgerald", ISBN: "9780743273565", PublicationYear: 1925},
	{Title: "To Kill a Mockingbird", Author: "Harper Lee", ISBN: "9780061120084", PublicationYear: 1960},
	{Title: "1984", Author: "George Orwell", ISBN: "9780451524935", PublicationYear: 1949},
	{Title: "Pride and Prejudice", Author: "Jane Austen", ISBN: "9780141439518", PublicationYear: 1813},
	{Title: "The Catcher in the Rye", Author: "J.D. Salinger", ISBN: "9780316769488", PublicationYear: 1951},
	{Title: "The Lord of the Rings", Author: "J.R.R. Tolkien", ISBN: "9780544003415", PublicationYear: 1954},
	{Title: "Harry Potter and the Philosopher's Stone", Author: "J.K. Rowling", ISBN: "9780747532699", PublicationYear: 1997},
	{Title: "The Hobbit", Author: "J.R.R. Tolkien", ISBN: "9780547928227", PublicationYear: 1937},
	{Title: "Fahrenheit 451", Author: "Ray Bradbury", ISBN: "9781451673319", PublicationYear: 1953},
	{Title: "Brave New World", Author: "Aldous Huxley", ISBN: "9780060850524", PublicationYear: 1932},
}

// Seeder inserts the initial catalog. Books whose ISBN already exists are skipped.
type Seeder struct {
	logger     *zap.Logger
	clock      Clocker
	idsHandler UIDHandler
	store      Store
}

func NewSeeder(logger *zap.Logger, clock Clocker, ids UIDHandler, store Store) *Seeder {
	return &Seeder{logger: logger, clock: clock, idsHandler: ids, store: store}
}

// Seed adds the missing books with the given number of copies and
// returns how many were inserted.
func (s *Seeder) Seed(ctx context.Context, quantity int) (int, error) {
	if quantity < 0 {
		return 0, fmt.Errorf("seed: quantity must not be negative, got %d", quantity)
	}
	inserted := 0
	err := s.store.Atomic(ctx, func(ctx context.Context, repos Repositories) error {
		for _, book := range seedBooks {
			_, err := repos.Books().GetByISBN(ctx, book.ISBN)
			if err == nil {
				s.logger.Debug("seed: book already exists", zap.String("book.isbn", book.ISBN))
				continue
			}
			if !errors.Is(err, ErrBookNotFound) {
				return err
			}

			now := s.clock.Now().UTC()
			cover := seedCover
			book.ID = s.idsHandler.Generate(BookIDPrefix)
			book.CoverImage = &cover
			book.Quantity = quantity
			book.CreatedAt = now
			book.UpdatedAt = now
			if err = repos.Books().Add(ctx, book); err != nil {
				return fmt.Errorf("seed: failed to add %q: %w", book.Title, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("seed: books inserted", zap.Int("books.inserted", inserted), zap.Int("books.total", len(seedBooks)))
	return inserted, nil
}

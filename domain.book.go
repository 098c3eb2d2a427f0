package main

import (
	"context"
	"time"
)

// Book represents a book entity. Quantity is the number
// of copies currently available for borrowing.
type Book struct {
	ID              string    `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	Author          string    `json:"author" db:"author"`
	ISBN            string    `json:"isbn" db:"isbn"`
	PublicationYear int       `json:"publicationYear" db:"publication_year"`
	CoverImage      *string   `json:"coverImage" db:"cover_image"`
	Quantity        int       `json:"quantity" db:"quantity"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}

// BookUpdate carries the fields of a partial book update. Nil fields are left untouched.
type BookUpdate struct {
	Title           *string `json:"title"`
	Author          *string `json:"author"`
	ISBN            *string `json:"isbn"`
	PublicationYear *int    `json:"publicationYear"`
	Quantity        *int    `json:"quantity"`
}

// BookQuery holds the catalog listing criteria.
type BookQuery struct {
	Page   int
	Limit  int
	Search string
}

// Pagination describes the page returned by a catalog listing.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// BookStorage defines possible operations on book entity. It
// owns the inventory of each book, meaning its quantity field.
type BookStorage interface {
	Add(ctx context.Context, book Book) error
	GetOne(ctx context.Context, id string) (Book, error)
	GetByISBN(ctx context.Context, isbn string) (Book, error)
	Update(ctx context.Context, book Book) (Book, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query BookQuery) ([]Book, int, error)
	DecreaseQuantity(ctx context.Context, id string, at time.Time) (Book, error)
	IncreaseQuantity(ctx context.Context, id string, at time.Time) (Book, error)
}

// BookCache is a read-through cache for single book lookups. Set only
// stores the book when no invalidation happened since Version was read.
type BookCache interface {
	Get(ctx context.Context, id string) (Book, error)
	Version(ctx context.Context, id string) (int64, error)
	Set(ctx context.Context, book Book, version int64) error
	Invalidate(ctx context.Context, ids ...string) error
}

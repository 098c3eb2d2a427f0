package main

import (
	"errors"
	"fmt"
	"net/http"
)

// Errors categories. Each DomainError belongs to exactly one of them
// so callers can check the category with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrConflict         = errors.New("conflict")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidInput     = errors.New("invalid input")
)

// Storage level sentinels. They are translated into domain errors by services.
var (
	ErrBookNotFound         = errors.New("book not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrNoActiveTransaction  = errors.New("no active transaction")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrInsufficientQuantity = errors.New("book quantity cannot go below zero")
	ErrDuplicateISBN        = errors.New("isbn already exists")
	ErrDuplicateUsername    = errors.New("username already exists")
	ErrDuplicateActive      = errors.New("open transaction already exists for this book and user")
)

// DomainError is a caller-visible business error. Its message is safe to
// send to the client while its kind drives the response status code.
type DomainError struct {
	kind    error
	message string
}

// NewDomainError builds a DomainError of the given category.
func NewDomainError(kind error, message string) *DomainError {
	return &DomainError{kind: kind, message: message}
}

func (e *DomainError) Error() string {
	return e.message
}

// Is reports whether the target is the category of the error.
func (e *DomainError) Is(target error) bool {
	return e.kind == target
}

// Kind returns the error category.
func (e *DomainError) Kind() error {
	return e.kind
}

// Book-transaction lifecycle errors.
var (
	ErrLedgerBookNotFound  = NewDomainError(ErrNotFound, "Book not found")
	ErrBookNotAvailable    = NewDomainError(ErrInvalidOperation, "Book is not available for borrowing")
	ErrBookAlreadyBorrowed = NewDomainError(ErrInvalidOperation, "You have already borrowed this book")
	ErrNoActiveBorrowing   = NewDomainError(ErrNotFound, "No active borrowing record found for this book")
)

// Catalog and accounts errors.
var (
	ErrISBNAlreadyExists   = NewDomainError(ErrConflict, "A book with this ISBN already exists")
	ErrBookStillBorrowed   = NewDomainError(ErrConflict, "Book has active borrowings and cannot be deleted")
	ErrUsernameTaken       = NewDomainError(ErrConflict, "Username already exists")
	ErrPasswordTooLong     = NewDomainError(ErrInvalidInput, "password must be at most 72 bytes")
	ErrInvalidCredentials  = NewDomainError(ErrUnauthorized, "Invalid credentials")
	ErrMissingToken        = NewDomainError(ErrUnauthorized, "Token not found")
	ErrInvalidToken        = NewDomainError(ErrUnauthorized, "Invalid token")
	ErrInvalidCoverType    = NewDomainError(ErrInvalidInput, "Invalid file type. Only JPEG, PNG, and WebP are allowed.")
	ErrCoverTooLarge       = NewDomainError(ErrInvalidInput, "File too large.")
	ErrMissingCoverPayload = NewDomainError(ErrInvalidInput, "coverImage file is required")
)

// BookWithIDNotFound returns the catalog not found error for the given id.
func BookWithIDNotFound(id string) *DomainError {
	return NewDomainError(ErrNotFound, fmt.Sprintf("Book with ID %s not found", id))
}

// StatusFromError maps an error to its http status code. Any error
// outside the domain categories is an internal failure.
func StatusFromError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidOperation), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// MessageFromError returns the client-safe message of an error.
// Internal errors details are never exposed.
func MessageFromError(err error, fallback string) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.message
	}
	return fallback
}

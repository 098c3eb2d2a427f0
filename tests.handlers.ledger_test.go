package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withUserID sets the user the auth middleware would have resolved.
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), UserIDContextKey, userID))
}

func testTransaction(returned bool) BookTransaction {
	cover := "books/covers/1-abcd.png"
	book := testBook
	book.CoverImage = &cover
	bt := BookTransaction{
		ID:         "t:1",
		BookID:     book.ID,
		UserID:     "u:1",
		BorrowDate: NewMockClocker().Now(),
		Book:       &book,
		User:       &UserSummary{ID: "u:1", Username: "alice"},
	}
	if returned {
		rd := bt.BorrowDate.Add(time.Hour)
		bt.ReturnDate = &rd
	}
	return bt
}

func TestBorrowBookHandler(t *testing.T) {
	var gotBook, gotUser string
	ledger := &MockLedgerService{
		BorrowFunc: func(ctx context.Context, bookID, userID string) (BookTransaction, error) {
			gotBook, gotUser = bookID, userID
			return testTransaction(false), nil
		},
	}
	api := newTestAPIHandler(Services{Ledger: ledger})

	t.Run("should pass: book borrowed", func(t *testing.T) {
		req := withUserID(withRequestID(httptest.NewRequest(http.MethodPost, "http://example.com/v1/books/b:1/borrow", nil)), "u:1")
		w := httptest.NewRecorder()
		api.BorrowBook(w, req, httprouter.Params{{Key: "id", Value: "b:1"}})
		res, m := decodeResponse(t, w)
		assert.Equal(t, http.StatusCreated, res.StatusCode)
		assert.Equal(t, "Book borrowed successfully.", m["message"])
		assert.Equal(t, "b:1", gotBook)
		assert.Equal(t, "u:1", gotUser)

		data, ok := m["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "t:1", data["id"])
		assert.Nil(t, data["returnDate"])
		book, ok := data["book"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "http://example.com/uploads/books/covers/1-abcd.png", book["coverImage"])
	})

	errorCases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"unknown book", ErrLedgerBookNotFound, http.StatusNotFound, "Book not found"},
		{"no copy left", ErrBookNotAvailable, http.StatusBadRequest, "Book is not available for borrowing"},
		{"already borrowed", ErrBookAlreadyBorrowed, http.StatusBadRequest, "You have already borrowed this book"},
	}
	for _, tc := range errorCases {
		t.Run("should fail: "+tc.name, func(t *testing.T) {
			ledger.BorrowFunc = func(ctx context.Context, bookID, userID string) (BookTransaction, error) {
				return BookTransaction{}, tc.err
			}
			req := withUserID(withRequestID(httptest.NewRequest(http.MethodPost, "/v1/books/b:1/borrow", nil)), "u:1")
			w := httptest.NewRecorder()
			api.BorrowBook(w, req, httprouter.Params{{Key: "id", Value: "b:1"}})
			res, m := decodeResponse(t, w)
			assert.Equal(t, tc.status, res.StatusCode)
			assert.Equal(t, tc.message, m["message"])
		})
	}
}

func TestReturnBookHandler(t *testing.T) {
	ledger := &MockLedgerService{
		ReturnFunc: func(ctx context.Context, bookID, userID string) (BookTransaction, error) {
			if userID != "u:1" {
				return BookTransaction{}, ErrNoActiveBorrowing
			}
			return testTransaction(true), nil
		},
	}
	api := newTestAPIHandler(Services{Ledger: ledger})

	req := withUserID(withRequestID(httptest.NewRequest(http.MethodPost, "/v1/books/b:1/return", nil)), "u:1")
	w := httptest.NewRecorder()
	api.ReturnBook(w, req, httprouter.Params{{Key: "id", Value: "b:1"}})
	res, m := decodeResponse(t, w)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Book returned successfully.", m["message"])
	assert.NotNil(t, m["data"].(map[string]interface{})["returnDate"])

	req = withUserID(withRequestID(httptest.NewRequest(http.MethodPost, "/v1/books/b:1/return", nil)), "u:2")
	w = httptest.NewRecorder()
	api.ReturnBook(w, req, httprouter.Params{{Key: "id", Value: "b:1"}})
	res, m = decodeResponse(t, w)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "No active borrowing record found for this book", m["message"])
}

func TestGetBookTransactionsHandler(t *testing.T) {
	api := newTestAPIHandler(Services{Ledger: &MockLedgerService{
		GetBookTransactionsFunc: func(ctx context.Context, bookID string) ([]BookTransaction, error) {
			if bookID != "b:1" {
				return nil, ErrLedgerBookNotFound
			}
			return []BookTransaction{testTransaction(false), testTransaction(true)}, nil
		},
	}})

	req := withRequestID(httptest.NewRequest(http.MethodGet, "/v1/books/b:1/transactions", nil))
	w := httptest.NewRecorder()
	api.GetBookTransactions(w, req, httprouter.Params{{Key: "id", Value: "b:1"}})
	res, m := decodeResponse(t, w)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Book transactions fetched successfully.", m["message"])
	assert.Equal(t, float64(2), m["total"])
	assert.Len(t, m["data"], 2)

	req = withRequestID(httptest.NewRequest(http.MethodGet, "/v1/books/b:2/transactions", nil))
	w = httptest.NewRecorder()
	api.GetBookTransactions(w, req, httprouter.Params{{Key: "id", Value: "b:2"}})
	res, _ = decodeResponse(t, w)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestGetBookAvailabilityHandler(t *testing.T) {
	api := newTestAPIHandler(Services{Ledger: &MockLedgerService{
		GetAvailabilityFunc: func(ctx context.Context, bookID string) (Availability, error) {
			return Availability{BookID: bookID, Quantity: 0, Borrowed: 2, Available: false}, nil
		},
	}})

	req := withRequestID(httptest.NewRequest(http.MethodGet, "/v1/books/b:1/availability", nil))
	w := httptest.NewRecorder()
	api.GetBookAvailability(w, req, httprouter.Params{{Key: "id", Value: "b:1"}})
	res, m := decodeResponse(t, w)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, map[string]interface{}{
		"bookId": "b:1", "quantity": float64(0), "borrowed": float64(2), "available": false,
	}, m["data"])
}

func TestGetUserBorrowedBooksHandler(t *testing.T) {
	var gotUser string
	api := newTestAPIHandler(Services{Ledger: &MockLedgerService{
		GetUserBorrowedBooksFunc: func(ctx context.Context, userID string) ([]BookTransaction, error) {
			gotUser = userID
			return []BookTransaction{}, nil
		},
	}})

	req := withUserID(withRequestID(httptest.NewRequest(http.MethodGet, "/v1/user/borrowed-books", nil)), "u:9")
	w := httptest.NewRecorder()
	api.GetUserBorrowedBooks(w, req, httprouter.Params{})
	res, m := decodeResponse(t, w)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "u:9", gotUser)
	assert.Equal(t, float64(0), m["total"])
	assert.Equal(t, []interface{}{}, m["data"])
}

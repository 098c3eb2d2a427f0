package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestAPIHandler provides an api handler with mocked clock and ids.
func newTestAPIHandler(services Services) *APIHandler {
	return NewAPIHandler(zap.NewNop(), nil, &Statistics{started: NewMockClocker().Now()}, NewMockClocker(), NewMockUIDHandler("test", true), services)
}

// decodeResponse reads the recorded response into a generic map.
func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) (*http.Response, map[string]interface{}) {
	t.Helper()
	res := w.Result()
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "application/json; charset=UTF-8", res.Header.Get("Content-Type"))
	m := make(map[string]interface{})
	require.NoError(t, json.Unmarshal(data, &m))
	return res, m
}

// withRequestID sets the request id the middleware would have set.
func withRequestID(r *http.Request) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), RequestIDContextKey, "r:test"))
}

var testBook = Book{
	ID:              "b:1",
	Title:           "1984",
	Author:          "George Orwell",
	ISBN:            "978-0451524935",
	PublicationYear: 1949,
	Quantity:        3,
	CreatedAt:       NewMockClocker().Now(),
	UpdatedAt:       NewMockClocker().Now(),
}

// TestStatusHandler ensures api handler can provides its status.
func TestStatusHandler(t *testing.T) {
	req := withRequestID(httptest.NewRequest(http.MethodGet, "/status", nil))
	w := httptest.NewRecorder()
	api := newTestAPIHandler(Services{})
	api.Status(w, req, httprouter.Params{})
	res, m := decodeResponse(t, w)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "r:test", m["requestid"])
	assert.Equal(t, "up & running since 0 mins", m["status"])
	assert.Equal(t, "Hello. Library api is available. Enjoy :)", m["message"])
}

// TestCreateBookHandler ensures api handler can create a book.
//
//nolint:funlen
func TestCreateBookHandler(t *testing.T) {
	var added Book
	books := &MockBookService{
		AddFunc: func(ctx context.Context, book Book) (Book, error) {
			added = book
			book.CreatedAt = NewMockClocker().Now()
			book.UpdatedAt = book.CreatedAt
			return book, nil
		},
	}
	api := newTestAPIHandler(Services{Books: books})

	t.Run("should pass: valid payload", func(t *testing.T) {
		payload := `{"title":"  1984 ","author":"George Orwell","isbn":"978-0451524935","publicationYear":1949,"quantity":3,"coverImage":"ignored.png"}`
		req := withRequestID(httptest.NewRequest(http.MethodPost, "/v1/books", strings.NewReader(payload)))
		w := httptest.NewRecorder()
		api.CreateBook(w, req, httprouter.Params{})
		res, m := decodeResponse(t, w)
		assert.Equal(t, http.StatusCreated, res.StatusCode)
		assert.Equal(t, float64(http.StatusCreated), m["status"])
		assert.Equal(t, "Book created successfully.", m["message"])

		assert.Equal(t, "b:test", added.ID)
		assert.Equal(t, "1984", added.Title)
		assert.Nil(t, added.CoverImage)

		book, ok := m["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "1984", book["title"])
		assert.Equal(t, float64(3), book["quantity"])
		assert.Nil(t, book["coverImage"])
		assert.NotEmpty(t, book["createdAt"])
	})

	t.Run("should fail: invalid payloads", func(t *testing.T) {
		cases := []struct {
			payload string
			message string
		}{
			{"", "invalid request body"},
			{"{", "invalid request body"},
			{`{"author":"a","isbn":"i","publicationYear":2000}`, "title is required"},
			{`{"title":"t","isbn":"i","publicationYear":2000}`, "author is required"},
			{`{"title":"t","author":"a","publicationYear":2000}`, "isbn is required"},
			{`{"title":"t","author":"a","isbn":"i","publicationYear":999}`, "publicationYear must not be less than 1000"},
			{`{"title":"t","author":"a","isbn":"i","publicationYear":2000,"quantity":-1}`, "quantity must not be negative"},
		}
		for _, tc := range cases {
			req := withRequestID(httptest.NewRequest(http.MethodPost, "/v1/books", strings.NewReader(tc.payload)))
			w := httptest.NewRecorder()
			api.CreateBook(w, req, httprouter.Params{})
			res, m := decodeResponse(t, w)
			assert.Equal(t, http.StatusBadRequest, res.StatusCode, tc.payload)
			assert.Equal(t, tc.message, m["message"], tc.payload)
		}
	})

	t.Run("should fail: duplicate isbn", func(t *testing.T) {
		books.AddFunc = func(ctx context.Context, book Book) (Book, error) {
			return book, ErrISBNAlreadyExists
		}
		payload, err := json.Marshal(testBook)
		require.NoError(t, err)
		req := withRequestID(httptest.NewRequest(http.MethodPost, "/v1/books", bytes.NewBuffer(payload)))
		w := httptest.NewRecorder()
		api.CreateBook(w, req, httprouter.Params{})
		res, m := decodeResponse(t, w)
		assert.Equal(t, http.StatusConflict, res.StatusCode)
		assert.Equal(t, "A book with this ISBN already exists", m["message"])
	})

	t.Run("should fail: storage failure is not leaked", func(t *testing.T) {
		books.AddFunc = func(ctx context.Context, book Book) (Book, error) {
			return book, errors.New("disk is on fire")
		}
		payload, err := json.Marshal(testBook)
		require.NoError(t, err)
		req := withRequestID(httptest.NewRequest(http.MethodPost, "/v1/books", bytes.NewBuffer(payload)))
		w := httptest.NewRecorder()
		api.CreateBook(w, req, httprouter.Params{})
		res, m := decodeResponse(t, w)
		assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
		assert.Equal(t, genericFailureMessage, m["message"])
		assert.Equal(t, "r:test", m["requestid"])
	})
}

func TestGetAllBooksHandler(t *testing.T) {
	var got BookQuery
	cover := "books/covers/1-abcd.png"
	book := testBook
	book.CoverImage = &cover
	api := newTestAPIHandler(Services{Books: &MockBookService{
		SearchFunc: func(ctx context.Context, query BookQuery) ([]Book, *Pagination, error) {
			got = query
			return []Book{book}, NewPagination(query, 21), nil
		},
	}})

	req := withRequestID(httptest.NewRequest(http.MethodGet, "http://example.com/v1/books?page=3&limit=10&search=orwell", nil))
	w := httptest.NewRecorder()
	api.GetAllBooks(w, req, httprouter.Params{})
	res, m := decodeResponse(t, w)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, BookQuery{Page: 3, Limit: 10, Search: "orwell"}, got)
	assert.Equal(t, "Books fetched successfully.", m["message"])
	assert.Equal(t, float64(21), m["total"])
	assert.Equal(t, map[string]interface{}{
		"page": float64(3), "limit": float64(10), "total": float64(21), "pages": float64(3),
	}, m["pagination"])

	data, ok := m["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 1)
	assert.Equal(t, "http://example.com/uploads/books/covers/1-abcd.png", data[0].(map[string]interface{})["coverImage"])

	// the stored value is left untouched by the presentation.
	assert.Equal(t, "books/covers/1-abcd.png", cover)
}

func TestGetOneBookHandler(t *testing.T) {
	api := newTestAPIHandler(Services{Books: &MockBookService{
		GetOneFunc: func(ctx context.Context, id string) (Book, error) {
			if id == testBook.ID {
				return testBook, nil
			}
			return Book{}, BookWithIDNotFound(id)
		},
	}})

	t.Run("should pass: existing book", func(t *testing.T) {
		req := withRequestID(httptest.NewRequest(http.MethodGet, "/v1/books/b:1", nil))
		w := httptest.NewRecorder()
		api.GetOneBook(w, req, httprouter.Params{{Key: "id", Value: "b:1"}})
		res, m := decodeResponse(t, w)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "Book fetched successfully.", m["message"])
		assert.Equal(t, "b:1", m["data"].(map[string]interface{})["id"])
	})

	t.Run("should fail: unknown book", func(t *testing.T) {
		req := withRequestID(httptest.NewRequest(http.MethodGet, "/v1/books/b:2", nil))
		w := httptest.NewRecorder()
		api.GetOneBook(w, req, httprouter.Params{{Key: "id", Value: "b:2"}})
		res, m := decodeResponse(t, w)
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
		assert.Equal(t, "Book with ID b:2 not found", m["message"])
		assert.Equal(t, map[string]interface{}{}, m["data"])
	})
}

func TestUpdateBookHandler(t *testing.T) {
	var got BookUpdate
	api := newTestAPIHandler(Services{Books: &MockBookService{
		UpdateFunc: func(ctx context.Context, id string, update BookUpdate) (Book, error) {
			got = update
			book := testBook
			book.Quantity = *update.Quantity
			return book, nil
		},
	}})

	t.Run("should pass: partial update", func(t *testing.T) {
		req := withRequestID(httptest.NewRequest(http.MethodPatch, "/v1/books/b:1", strings.NewReader(`{"quantity":7}`)))
		w := httptest.NewRecorder()
		api.UpdateBook(w, req, httprouter.Params{{Key: "id", Value: "b:1"}})
		res, m := decodeResponse(t, w)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "Book updated successfully.", m["message"])
		assert.Nil(t, got.Title)
		require.NotNil(t, got.Quantity)
		assert.Equal(t, 7, *got.Quantity)
		assert.Equal(t, float64(7), m["data"].(map[string]interface{})["quantity"])
	})

	t.Run("should fail: invalid field", func(t *testing.T) {
		req := withRequestID(httptest.NewRequest(http.MethodPut, "/v1/books/b:1", strings.NewReader(`{"title":"   "}`)))
		w := httptest.NewRecorder()
		api.UpdateBook(w, req, httprouter.Params{{Key: "id", Value: "b:1"}})
		res, m := decodeResponse(t, w)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Equal(t, "title is required", m["message"])
	})
}

func TestDeleteOneBookHandler(t *testing.T) {
	api := newTestAPIHandler(Services{Books: &MockBookService{
		DeleteFunc: func(ctx context.Context, id string) (Book, error) {
			if id == "b:borrowed" {
				return Book{}, ErrBookStillBorrowed
			}
			return testBook, nil
		},
	}})

	req := withRequestID(httptest.NewRequest(http.MethodDelete, "/v1/books/b:1", nil))
	w := httptest.NewRecorder()
	api.DeleteOneBook(w, req, httprouter.Params{{Key: "id", Value: "b:1"}})
	res, m := decodeResponse(t, w)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Book deleted successfully.", m["message"])

	req = withRequestID(httptest.NewRequest(http.MethodDelete, "/v1/books/b:borrowed", nil))
	w = httptest.NewRecorder()
	api.DeleteOneBook(w, req, httprouter.Params{{Key: "id", Value: "b:borrowed"}})
	res, m = decodeResponse(t, w)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "Book has active borrowings and cannot be deleted", m["message"])
}

// newCoverUploadRequest builds a multipart request carrying the content in the given field.
func newCoverUploadRequest(t *testing.T, field string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if field != "" {
		part, err := mw.CreateFormFile(field, "cover.png")
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "http://example.com/v1/books/b:1/cover", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return withRequestID(req)
}

func TestUploadBookCoverHandler(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	var saved []byte
	covers := &MockCoverStorage{
		SaveFunc: func(src io.Reader) (string, error) {
			data, err := io.ReadAll(src)
			saved = data
			return "books/covers/1-abcd.png", err
		},
	}
	books := &MockBookService{
		UpdateCoverFunc: func(ctx context.Context, id string, coverPath string) (Book, error) {
			book := testBook
			book.CoverImage = &coverPath
			return book, nil
		},
	}
	api := newTestAPIHandler(Services{Books: books, Covers: covers})

	t.Run("should pass: image uploaded", func(t *testing.T) {
		w := httptest.NewRecorder()
		api.UploadBookCover(w, newCoverUploadRequest(t, "coverImage", png), httprouter.Params{{Key: "id", Value: "b:1"}})
		res, m := decodeResponse(t, w)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "Book cover uploaded successfully.", m["message"])
		assert.Equal(t, png, saved)
		assert.Equal(t, "http://example.com/uploads/books/covers/1-abcd.png", m["data"].(map[string]interface{})["coverImage"])
	})

	t.Run("should fail: missing file field", func(t *testing.T) {
		w := httptest.NewRecorder()
		api.UploadBookCover(w, newCoverUploadRequest(t, "", nil), httprouter.Params{{Key: "id", Value: "b:1"}})
		res, m := decodeResponse(t, w)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Equal(t, "coverImage file is required", m["message"])
	})

	t.Run("should fail: not a multipart body", func(t *testing.T) {
		req := withRequestID(httptest.NewRequest(http.MethodPost, "/v1/books/b:1/cover", strings.NewReader("{}")))
		w := httptest.NewRecorder()
		api.UploadBookCover(w, req, httprouter.Params{{Key: "id", Value: "b:1"}})
		res, _ := decodeResponse(t, w)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("should fail: rejected file type", func(t *testing.T) {
		covers.SaveFunc = func(src io.Reader) (string, error) {
			return "", ErrInvalidCoverType
		}
		w := httptest.NewRecorder()
		api.UploadBookCover(w, newCoverUploadRequest(t, "coverImage", []byte("plain text")), httprouter.Params{{Key: "id", Value: "b:1"}})
		res, m := decodeResponse(t, w)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Equal(t, "Invalid file type. Only JPEG, PNG, and WebP are allowed.", m["message"])
	})

	t.Run("should fail: body over the size limit", func(t *testing.T) {
		limited := NewAPIHandler(zap.NewNop(), &Config{Uploads: UploadsConfig{MaxFileSize: 1024}}, &Statistics{started: time.Now()}, NewMockClocker(), NewMockUIDHandler("test", true), Services{Books: books, Covers: covers})
		w := httptest.NewRecorder()
		limited.UploadBookCover(w, newCoverUploadRequest(t, "coverImage", bytes.Repeat([]byte{'a'}, 3<<20)), httprouter.Params{{Key: "id", Value: "b:1"}})
		res, m := decodeResponse(t, w)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Equal(t, "File too large.", m["message"])
	})
}

// newBookFormRequest builds a multipart book form with an optional cover.
func newBookFormRequest(t *testing.T, method, target string, fields map[string]string, cover []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, mw.WriteField(key, value))
	}
	if cover != nil {
		part, err := mw.CreateFormFile("coverImage", "cover.png")
		require.NoError(t, err)
		_, err = part.Write(cover)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return withRequestID(req)
}

func TestCreateBookHandler_MultipartForm(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	var removed []string
	covers := &MockCoverStorage{
		SaveFunc: func(src io.Reader) (string, error) {
			_, err := io.ReadAll(src)
			return "books/covers/1-abcd.png", err
		},
		RemoveFunc: func(relativePath string) error {
			removed = append(removed, relativePath)
			return nil
		},
	}
	var added Book
	books := &MockBookService{
		AddFunc: func(ctx context.Context, book Book) (Book, error) {
			if book.ISBN == "taken" {
				return book, ErrISBNAlreadyExists
			}
			added = book
			return book, nil
		},
	}
	api := newTestAPIHandler(Services{Books: books, Covers: covers})
	fields := map[string]string{
		"title":           "Dune",
		"author":          "Frank Herbert",
		"isbn":            "978-0441172719",
		"publicationYear": "1965",
		"quantity":        "4",
	}

	t.Run("should pass: fields and cover", func(t *testing.T) {
		w := httptest.NewRecorder()
		api.CreateBook(w, newBookFormRequest(t, http.MethodPost, "http://example.com/v1/books", fields, png), httprouter.Params{})
		res, m := decodeResponse(t, w)
		assert.Equal(t, http.StatusCreated, res.StatusCode)
		assert.Equal(t, "b:test", added.ID)
		assert.Equal(t, 1965, added.PublicationYear)
		assert.Equal(t, 4, added.Quantity)
		require.NotNil(t, added.CoverImage)
		assert.Equal(t, "books/covers/1-abcd.png", *added.CoverImage)
		assert.Equal(t, "http://example.com/uploads/books/covers/1-abcd.png", m["data"].(map[string]interface{})["coverImage"])
		assert.Empty(t, removed)
	})

	t.Run("should pass: fields without cover", func(t *testing.T) {
		w := httptest.NewRecorder()
		api.CreateBook(w, newBookFormRequest(t, http.MethodPost, "/v1/books", fields, nil), httprouter.Params{})
		res, _ := decodeResponse(t, w)
		assert.Equal(t, http.StatusCreated, res.StatusCode)
		assert.Nil(t, added.CoverImage)
	})

	t.Run("should fail: non numeric year removes the cover", func(t *testing.T) {
		removed = nil
		invalid := map[string]string{"title": "Dune", "author": "Frank Herbert", "isbn": "x", "publicationYear": "sixties"}
		w := httptest.NewRecorder()
		api.CreateBook(w, newBookFormRequest(t, http.MethodPost, "/v1/books", invalid, png), httprouter.Params{})
		res, m := decodeResponse(t, w)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Equal(t, "publicationYear must be an integer", m["message"])
		assert.Equal(t, []string{"books/covers/1-abcd.png"}, removed)
	})

	t.Run("should fail: duplicate isbn removes the cover", func(t *testing.T) {
		removed = nil
		taken := map[string]string{"title": "Dune", "author": "Frank Herbert", "isbn": "taken", "publicationYear": "1965"}
		w := httptest.NewRecorder()
		api.CreateBook(w, newBookFormRequest(t, http.MethodPost, "/v1/books", taken, png), httprouter.Params{})
		res, _ := decodeResponse(t, w)
		assert.Equal(t, http.StatusConflict, res.StatusCode)
		assert.Equal(t, []string{"books/covers/1-abcd.png"}, removed)
	})
}

func TestUpdateBookHandler_MultipartForm(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	covers := &MockCoverStorage{
		SaveFunc: func(src io.Reader) (string, error) {
			_, err := io.ReadAll(src)
			return "books/covers/2-abcd.png", err
		},
		RemoveFunc: func(string) error { return nil },
	}
	var update BookUpdate
	var coverSet string
	books := &MockBookService{
		UpdateFunc: func(ctx context.Context, id string, u BookUpdate) (Book, error) {
			update = u
			return testBook, nil
		},
		UpdateCoverFunc: func(ctx context.Context, id string, coverPath string) (Book, error) {
			coverSet = coverPath
			book := testBook
			book.CoverImage = &coverPath
			return book, nil
		},
	}
	api := newTestAPIHandler(Services{Books: books, Covers: covers})

	w := httptest.NewRecorder()
	req := newBookFormRequest(t, http.MethodPatch, "/v1/books/b:1", map[string]string{"quantity": "7"}, png)
	api.UpdateBook(w, req, httprouter.Params{{Key: "id", Value: "b:1"}})
	res, m := decodeResponse(t, w)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	require.NotNil(t, update.Quantity)
	assert.Equal(t, 7, *update.Quantity)
	assert.Nil(t, update.Title)
	assert.Nil(t, update.PublicationYear)
	assert.Equal(t, "books/covers/2-abcd.png", coverSet)
	assert.Contains(t, m["data"].(map[string]interface{})["coverImage"], "books/covers/2-abcd.png")
}

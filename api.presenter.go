package main

import (
	"net/http"
	"strings"
)

// UploadsRoute is the route prefix serving the uploaded files.
const UploadsRoute = "/uploads/"

// FormatCoverURL resolves a stored cover path into a servable url. Absolute
// urls are kept as they are. Without base url the result is a path relative
// to the server root.
func FormatCoverURL(baseURL, relativePath string) string {
	relativePath = strings.TrimSpace(relativePath)
	if relativePath == "" {
		return ""
	}
	if strings.HasPrefix(relativePath, "http://") || strings.HasPrefix(relativePath, "https://") {
		return relativePath
	}
	relativePath = strings.TrimPrefix(strings.ReplaceAll(relativePath, "\\", "/"), "/")
	return strings.TrimSuffix(baseURL, "/") + UploadsRoute + relativePath
}

// BaseURLFromRequest returns the configured base url or builds one from the
// scheme and host the request was received on.
func BaseURLFromRequest(r *http.Request, configured string) string {
	if configured != "" {
		return configured
	}
	if r == nil || r.Host == "" {
		return ""
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// PresentBook returns the response view of a book.
func PresentBook(baseURL string, book Book) Book {
	if book.CoverImage != nil {
		url := FormatCoverURL(baseURL, *book.CoverImage)
		if url == "" {
			book.CoverImage = nil
		} else {
			book.CoverImage = &url
		}
	}
	return book
}

func PresentBooks(baseURL string, books []Book) []Book {
	out := make([]Book, 0, len(books))
	for _, b := range books {
		out = append(out, PresentBook(baseURL, b))
	}
	return out
}

// PresentTransaction returns the response view of a transaction. Its
// embedded book, if any, gets its cover resolved.
func PresentTransaction(baseURL string, bt BookTransaction) BookTransaction {
	if bt.Book != nil {
		book := PresentBook(baseURL, *bt.Book)
		bt.Book = &book
	}
	return bt
}

func PresentTransactions(baseURL string, txs []BookTransaction) []BookTransaction {
	out := make([]BookTransaction, 0, len(txs))
	for _, bt := range txs {
		out = append(out, PresentTransaction(baseURL, bt))
	}
	return out
}

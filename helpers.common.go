package main

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
)

type (
	ContextKey        string
	missingFieldError string
	invalidFieldError string
)

const (
	BookIDPrefix            string     = "b"
	UserIDPrefix            string     = "u"
	TransactionIDPrefix     string     = "t"
	RequestIDPrefix         string     = "r"
	RequestIDContextKey     ContextKey = "request.id"
	RequestNumberContextKey ContextKey = "request.number"
	UserIDContextKey        ContextKey = "user.id"
	ConnContextKey          ContextKey = "http-conn"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
	maxPage          = 1_000_000
	minPublishYear   = 1000
	maxPasswordBytes = 72 // bcrypt input limit.
)

func (m missingFieldError) Error() string {
	return string(m) + " is required"
}

func (i invalidFieldError) Error() string {
	return string(i)
}

// GetValueFromContext returns the value of a given key in the context
// if this key is not available, it returns an empty string.
func GetValueFromContext(ctx context.Context, contextKey ContextKey) string {
	if val := ctx.Value(contextKey); val != nil {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

// GetRequestNumberFromContext returns the request number set in
// the context. if not previously set then it returns 0.
func GetRequestNumberFromContext(ctx context.Context) uint64 {
	if val := ctx.Value(RequestNumberContextKey); val != nil {
		return val.(uint64)
	}
	return 0
}

// DecodeJSONRequestBody is a helper function to read the json content of a request.
func DecodeJSONRequestBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errors.New("invalid request body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// IsMultipartRequest reports whether the request body is a multipart form.
func IsMultipartRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// formInt reads an optional integer field of a form.
func formInt(form url.Values, key string) (*int, error) {
	if !form.Has(key) {
		return nil, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(form.Get(key)))
	if err != nil {
		return nil, invalidFieldError(key + " must be an integer")
	}
	return &value, nil
}

// BookFromForm reads the fields of a book creation sent as a form.
func BookFromForm(form url.Values) (Book, error) {
	book := Book{
		Title:  form.Get("title"),
		Author: form.Get("author"),
		ISBN:   form.Get("isbn"),
	}
	year, err := formInt(form, "publicationYear")
	if err != nil {
		return book, err
	}
	if year != nil {
		book.PublicationYear = *year
	}
	quantity, err := formInt(form, "quantity")
	if err != nil {
		return book, err
	}
	if quantity != nil {
		book.Quantity = *quantity
	}
	return book, nil
}

// BookUpdateFromForm reads the fields of a book update sent as a form.
// Absent fields are left nil.
func BookUpdateFromForm(form url.Values) (BookUpdate, error) {
	var update BookUpdate
	for key, field := range map[string]**string{"title": &update.Title, "author": &update.Author, "isbn": &update.ISBN} {
		if form.Has(key) {
			value := form.Get(key)
			*field = &value
		}
	}
	var err error
	if update.PublicationYear, err = formInt(form, "publicationYear"); err != nil {
		return update, err
	}
	if update.Quantity, err = formInt(form, "quantity"); err != nil {
		return update, err
	}
	return update, nil
}

// ValidateCreateBookRequestBody is a helper function to check if the content of a book creation request is valid.
func ValidateCreateBookRequestBody(book *Book) error {
	book.Title = strings.TrimSpace(book.Title)
	book.Author = strings.TrimSpace(book.Author)
	book.ISBN = strings.TrimSpace(book.ISBN)

	if len(book.Title) == 0 {
		return missingFieldError("title")
	}

	if len(book.Author) == 0 {
		return missingFieldError("author")
	}

	if len(book.ISBN) == 0 {
		return missingFieldError("isbn")
	}

	if book.PublicationYear < minPublishYear {
		return invalidFieldError("publicationYear must not be less than 1000")
	}

	if book.Quantity < 0 {
		return invalidFieldError("quantity must not be negative")
	}

	return nil
}

// ValidateUpdateBookRequestBody is a helper function to check if the content of a book update request is valid.
func ValidateUpdateBookRequestBody(update *BookUpdate) error {
	if update.Title != nil && len(strings.TrimSpace(*update.Title)) == 0 {
		return missingFieldError("title")
	}

	if update.Author != nil && len(strings.TrimSpace(*update.Author)) == 0 {
		return missingFieldError("author")
	}

	if update.ISBN != nil && len(strings.TrimSpace(*update.ISBN)) == 0 {
		return missingFieldError("isbn")
	}

	if update.PublicationYear != nil && *update.PublicationYear < minPublishYear {
		return invalidFieldError("publicationYear must not be less than 1000")
	}

	if update.Quantity != nil && *update.Quantity < 0 {
		return invalidFieldError("quantity must not be negative")
	}

	return nil
}

// ValidateCredentialsRequestBody checks the username and password of a register or login request.
func ValidateCredentialsRequestBody(creds *Credentials) error {
	creds.Username = strings.TrimSpace(creds.Username)
	if len(creds.Username) == 0 {
		return missingFieldError("username")
	}

	if len(creds.Username) < 3 || len(creds.Username) > 32 {
		return invalidFieldError("username must be between 3 and 32 characters")
	}

	if len(creds.Password) == 0 {
		return missingFieldError("password")
	}

	if len(creds.Password) < 6 {
		return invalidFieldError("password must be at least 6 characters")
	}

	if len(creds.Password) > maxPasswordBytes {
		return invalidFieldError("password must be at most 72 bytes")
	}

	return nil
}

// ParseBookQuery builds the catalog listing criteria from the url query values.
// Invalid or missing values fall back to the defaults.
func ParseBookQuery(r *http.Request) BookQuery {
	q := r.URL.Query()
	query := BookQuery{Page: 1, Limit: defaultPageLimit, Search: strings.TrimSpace(q.Get("search"))}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		query.Page = page
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		query.Limit = limit
	}
	if query.Limit > maxPageLimit {
		query.Limit = maxPageLimit
	}
	if query.Page > maxPage {
		query.Page = maxPage
	}
	return query
}

// NewPagination computes the pagination details of a listing.
func NewPagination(query BookQuery, total int) *Pagination {
	return &Pagination{
		Page:  query.Page,
		Limit: query.Limit,
		Total: total,
		Pages: int(math.Ceil(float64(total) / float64(query.Limit))),
	}
}

// GetRequestSourceIP helps find the source IP of the caller.
func GetRequestSourceIP(r *http.Request) string {
	// Get IP from the X-REAL-IP header
	ip := r.Header.Get("X-REAL-IP")
	netIP := net.ParseIP(ip)
	if netIP != nil {
		return ip
	}

	// Get IP from X-FORWARDED-FOR header
	ips := r.Header.Get("X-FORWARDED-FOR")
	splitIps := strings.Split(ips, ",")
	for _, ip := range splitIps {
		netIP = net.ParseIP(strings.TrimSpace(ip))
		if netIP != nil {
			return strings.TrimSpace(ip)
		}
	}

	// Get IP from RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	netIP = net.ParseIP(ip)
	if netIP != nil {
		return ip
	}
	return ""
}

// IsAppRunningInDocker checks the existence of the .dockerenv
// file at the root directory and returns a boolean result. This
// helps know if the App is running in a docker container or not.
func IsAppRunningInDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}

// SaveConnInContext is the hook used by the server under ConnContext.
// It sets the underlying connection into the request context for later
// use by ReadDeadline or WriteDeadline method on *CustomResponseWriter.
func SaveConnInContext(ctx context.Context, c net.Conn) context.Context {
	return context.WithValue(ctx, ConnContextKey, c)
}

// GetConnFromContext returns the connection saved into the context.
func GetConnFromContext(ctx context.Context) net.Conn {
	if c, ok := ctx.Value(ConnContextKey).(net.Conn); ok {
		return c
	}
	return nil
}

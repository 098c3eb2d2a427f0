package main

import (
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// CreateBook registers a new book into the catalog. The book can be sent
// as json or as a multipart form with an optional `coverImage` file.
//
//	@Summary	Create a book
//	@Tags		books
//	@Accept		json,mpfd
//	@Produce	json
//	@Security	BearerAuth
//	@Param		book	body		Book	true	"book details"
//	@Success	201		{object}	APIResponse
//	@Failure	400		{object}	APIError
//	@Failure	409		{object}	APIError
//	@Router		/v1/books [post]
func (api *APIHandler) CreateBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var book Book
	var coverPath string
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	if IsMultipartRequest(r) {
		var err error
		if coverPath, err = api.receiveCover(w, r, false); err != nil {
			api.sendError(w, r, "failed to create book", err)
			return
		}
		defer r.MultipartForm.RemoveAll()
		if book, err = BookFromForm(r.MultipartForm.Value); err != nil {
			api.dropCover(coverPath)
			api.sendError(w, r, "failed to create book", invalidInput(err))
			return
		}
	} else if err := DecodeJSONRequestBody(r, &book); err != nil {
		api.sendError(w, r, "failed to create book", NewDomainError(ErrInvalidInput, "invalid request body"))
		return
	}

	if err := ValidateCreateBookRequestBody(&book); err != nil {
		api.dropCover(coverPath)
		api.sendError(w, r, "failed to create book", invalidInput(err))
		return
	}

	book.ID = api.idsHandler.Generate(BookIDPrefix)
	book.CoverImage = nil
	if coverPath != "" {
		book.CoverImage = &coverPath
	}
	book, err := api.bookService.Add(r.Context(), book)
	if err != nil {
		api.dropCover(coverPath)
		api.sendError(w, r, "failed to create book", err)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to create book", zap.String("book.id", book.ID))
	resp := GenericResponse(requestID, http.StatusCreated, "Book created successfully.", nil, PresentBook(api.baseURL(r), book))
	api.sendResponse(w, r, resp)
}

// GetAllBooks serves a page of the catalog. The listing can be filtered
// on the title or the author with the `search` query parameter.
//
//	@Summary	List books
//	@Tags		books
//	@Produce	json
//	@Security	BearerAuth
//	@Param		page	query		int		false	"page number"
//	@Param		limit	query		int		false	"page size"
//	@Param		search	query		string	false	"title or author filter"
//	@Success	200		{object}	APIResponse
//	@Router		/v1/books [get]
//
//nolint:bodyclose
func (api *APIHandler) GetAllBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	logger := api.GetLoggerFromContext(r.Context())
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	rc := http.NewResponseController(w)
	if api.config != nil && api.config.Server.LongRequestWriteTimeout > 0 {
		if err := rc.SetWriteDeadline(api.clock.Now().Add(api.config.Server.LongRequestWriteTimeout)); err != nil {
			logger.Debug("http: failed to update the write deadline", zap.Error(err))
		}
	}

	query := ParseBookQuery(r)
	books, pagination, err := api.bookService.Search(r.Context(), query)
	if err != nil {
		api.sendError(w, r, "failed to get books", err)
		return
	}
	logger.Info("success to get books", zap.Int("books.total", pagination.Total), zap.Int("books.page", pagination.Page))
	resp := PaginatedResponse(requestID, "Books fetched successfully.", pagination, PresentBooks(api.baseURL(r), books))
	api.sendResponse(w, r, resp)
}

// GetOneBook serves a single book.
//
//	@Summary	Get a book
//	@Tags		books
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"book id"
//	@Success	200	{object}	APIResponse
//	@Failure	404	{object}	APIError
//	@Router		/v1/books/{id} [get]
func (api *APIHandler) GetOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	id := ps.ByName("id")
	book, err := api.bookService.GetOne(r.Context(), id)
	if err != nil {
		api.sendError(w, r, "failed to get book", err)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to get book", zap.String("book.id", id))
	resp := GenericResponse(requestID, http.StatusOK, "Book fetched successfully.", nil, PresentBook(api.baseURL(r), book))
	api.sendResponse(w, r, resp)
}

// UpdateBook applies a partial update to a book.
//
//	@Summary	Update a book
//	@Tags		books
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string		true	"book id"
//	@Param		book	body		BookUpdate	true	"fields to update"
//	@Success	200		{object}	APIResponse
//	@Failure	400		{object}	APIError
//	@Failure	404		{object}	APIError
//	@Failure	409		{object}	APIError
//	@Router		/v1/books/{id} [put]
func (api *APIHandler) UpdateBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var update BookUpdate
	var coverPath string
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	id := ps.ByName("id")
	if IsMultipartRequest(r) {
		var err error
		if coverPath, err = api.receiveCover(w, r, false); err != nil {
			api.sendError(w, r, "failed to update book", err)
			return
		}
		defer r.MultipartForm.RemoveAll()
		if update, err = BookUpdateFromForm(r.MultipartForm.Value); err != nil {
			api.dropCover(coverPath)
			api.sendError(w, r, "failed to update book", invalidInput(err))
			return
		}
	} else if err := DecodeJSONRequestBody(r, &update); err != nil {
		api.sendError(w, r, "failed to update book", NewDomainError(ErrInvalidInput, "invalid request body"))
		return
	}

	if err := ValidateUpdateBookRequestBody(&update); err != nil {
		api.dropCover(coverPath)
		api.sendError(w, r, "failed to update book", invalidInput(err))
		return
	}

	book, err := api.bookService.Update(r.Context(), id, update)
	if err != nil {
		api.dropCover(coverPath)
		api.sendError(w, r, "failed to update book", err)
		return
	}
	if coverPath != "" {
		// the service removes the new file itself when this fails.
		if book, err = api.bookService.UpdateCover(r.Context(), id, coverPath); err != nil {
			api.sendError(w, r, "failed to update book", err)
			return
		}
	}
	api.GetLoggerFromContext(r.Context()).Info("success to update book", zap.String("book.id", id))
	resp := GenericResponse(requestID, http.StatusOK, "Book updated successfully.", nil, PresentBook(api.baseURL(r), book))
	api.sendResponse(w, r, resp)
}

// DeleteOneBook removes a book with no copy currently borrowed.
//
//	@Summary	Delete a book
//	@Tags		books
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"book id"
//	@Success	200	{object}	APIResponse
//	@Failure	404	{object}	APIError
//	@Failure	409	{object}	APIError
//	@Router		/v1/books/{id} [delete]
func (api *APIHandler) DeleteOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	id := ps.ByName("id")
	book, err := api.bookService.Delete(r.Context(), id)
	if err != nil {
		api.sendError(w, r, "failed to delete book", err)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to delete book", zap.String("book.id", id))
	resp := GenericResponse(requestID, http.StatusOK, "Book deleted successfully.", nil, PresentBook(api.baseURL(r), book))
	api.sendResponse(w, r, resp)
}

// UploadBookCover stores the image sent in the `coverImage` multipart
// field and sets it as the cover of the book.
//
//	@Summary	Upload a book cover
//	@Tags		books
//	@Accept		mpfd
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id			path		string	true	"book id"
//	@Param		coverImage	formData	file	true	"jpeg, png or webp image"
//	@Success	200			{object}	APIResponse
//	@Failure	400			{object}	APIError
//	@Failure	404			{object}	APIError
//	@Router		/v1/books/{id}/cover [post]
func (api *APIHandler) UploadBookCover(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	id := ps.ByName("id")

	coverPath, err := api.receiveCover(w, r, true)
	if err != nil {
		api.sendError(w, r, "failed to upload cover", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	book, err := api.bookService.UpdateCover(r.Context(), id, coverPath)
	if err != nil {
		api.sendError(w, r, "failed to upload cover", err)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to upload book cover", zap.String("book.id", id), zap.String("cover.path", coverPath))
	resp := GenericResponse(requestID, http.StatusOK, "Book cover uploaded successfully.", nil, PresentBook(api.baseURL(r), book))
	api.sendResponse(w, r, resp)
}

// receiveCover parses the multipart form of the request and stores the
// image of its `coverImage` field. It returns an empty path when the
// field is absent and not required. On success r.MultipartForm is set.
func (api *APIHandler) receiveCover(w http.ResponseWriter, r *http.Request, required bool) (string, error) {
	maxSize := int64(5 << 20)
	if api.config != nil && api.config.Uploads.MaxFileSize > 0 {
		maxSize = api.config.Uploads.MaxFileSize
	}
	// leave room for the multipart envelope.
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+(1<<20))
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", ErrCoverTooLarge
		}
		if !required {
			return "", NewDomainError(ErrInvalidInput, "invalid request body")
		}
		return "", ErrMissingCoverPayload
	}

	file, _, err := r.FormFile("coverImage")
	if errors.Is(err, http.ErrMissingFile) && !required {
		return "", nil
	}
	if err != nil {
		_ = r.MultipartForm.RemoveAll()
		return "", ErrMissingCoverPayload
	}
	defer file.Close()

	coverPath, err := api.covers.Save(file)
	if err != nil {
		_ = r.MultipartForm.RemoveAll()
		return "", err
	}
	return coverPath, nil
}

// dropCover removes a stored cover whose book change was refused.
func (api *APIHandler) dropCover(coverPath string) {
	if coverPath == "" {
		return
	}
	if err := api.covers.Remove(coverPath); err != nil {
		api.logger.Warn("failed to remove unused cover", zap.String("cover.path", coverPath), zap.Error(err))
	}
}

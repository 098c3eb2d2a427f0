package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// BorrowBook lends one copy of the book to the authenticated user.
//
//	@Summary	Borrow a book
//	@Tags		ledger
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"book id"
//	@Success	201	{object}	APIResponse
//	@Failure	400	{object}	APIError
//	@Failure	404	{object}	APIError
//	@Router		/v1/books/{id}/borrow [post]
func (api *APIHandler) BorrowBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	userID := GetValueFromContext(r.Context(), UserIDContextKey)
	bookID := ps.ByName("id")
	bt, err := api.ledgerService.Borrow(r.Context(), bookID, userID)
	if err != nil {
		api.sendError(w, r, "failed to borrow book", err)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to borrow book",
		zap.String("book.id", bookID),
		zap.String("transaction.id", bt.ID),
	)
	resp := GenericResponse(requestID, http.StatusCreated, "Book borrowed successfully.", nil, PresentTransaction(api.baseURL(r), bt))
	api.sendResponse(w, r, resp)
}

// ReturnBook gives back the copy of the book held by the authenticated user.
//
//	@Summary	Return a book
//	@Tags		ledger
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"book id"
//	@Success	200	{object}	APIResponse
//	@Failure	404	{object}	APIError
//	@Router		/v1/books/{id}/return [post]
func (api *APIHandler) ReturnBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	userID := GetValueFromContext(r.Context(), UserIDContextKey)
	bookID := ps.ByName("id")
	bt, err := api.ledgerService.Return(r.Context(), bookID, userID)
	if err != nil {
		api.sendError(w, r, "failed to return book", err)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to return book",
		zap.String("book.id", bookID),
		zap.String("transaction.id", bt.ID),
	)
	resp := GenericResponse(requestID, http.StatusOK, "Book returned successfully.", nil, PresentTransaction(api.baseURL(r), bt))
	api.sendResponse(w, r, resp)
}

// GetBookTransactions serves the borrow history of a book, most recent first.
//
//	@Summary	Book borrow history
//	@Tags		ledger
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"book id"
//	@Success	200	{object}	APIResponse
//	@Failure	404	{object}	APIError
//	@Router		/v1/books/{id}/transactions [get]
func (api *APIHandler) GetBookTransactions(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	bookID := ps.ByName("id")
	txs, err := api.ledgerService.GetBookTransactions(r.Context(), bookID)
	if err != nil {
		api.sendError(w, r, "failed to get book transactions", err)
		return
	}
	total := len(txs)
	resp := GenericResponse(requestID, http.StatusOK, "Book transactions fetched successfully.", &total, PresentTransactions(api.baseURL(r), txs))
	api.sendResponse(w, r, resp)
}

// GetBookAvailability serves the available and borrowed copies of a book.
//
//	@Summary	Book availability
//	@Tags		ledger
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"book id"
//	@Success	200	{object}	APIResponse
//	@Failure	404	{object}	APIError
//	@Router		/v1/books/{id}/availability [get]
func (api *APIHandler) GetBookAvailability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	availability, err := api.ledgerService.GetAvailability(r.Context(), ps.ByName("id"))
	if err != nil {
		api.sendError(w, r, "failed to get book availability", err)
		return
	}
	resp := GenericResponse(requestID, http.StatusOK, "Book availability fetched successfully.", nil, availability)
	api.sendResponse(w, r, resp)
}

// GetUserBorrowedBooks serves the books currently held by the authenticated user.
//
//	@Summary	Borrowed books of the current user
//	@Tags		ledger
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	APIResponse
//	@Router		/v1/user/borrowed-books [get]
func (api *APIHandler) GetUserBorrowedBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	userID := GetValueFromContext(r.Context(), UserIDContextKey)
	txs, err := api.ledgerService.GetUserBorrowedBooks(r.Context(), userID)
	if err != nil {
		api.sendError(w, r, "failed to get borrowed books", err)
		return
	}
	total := len(txs)
	resp := GenericResponse(requestID, http.StatusOK, "Borrowed books fetched successfully.", &total, PresentTransactions(api.baseURL(r), txs))
	api.sendResponse(w, r, resp)
}

package main

import (
	"github.com/julienschmidt/httprouter"
)

// SetupAuthRoutes injects the public endpoints and the accounts ones.
func (api *APIHandler) SetupAuthRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.GET("/", m.public(api.Index))
	router.GET("/status", m.public(api.Status))
	router.POST("/v1/auth/register", m.public(api.Register))
	router.POST("/v1/auth/login", m.public(api.Login))
	return router
}

// SetupBookRoutes injects the catalog and the borrowing endpoints.
// All of them require an authenticated user.
func (api *APIHandler) SetupBookRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.POST("/v1/books", m.private(api.CreateBook))
	router.GET("/v1/books", m.private(api.GetAllBooks))
	router.GET("/v1/books/:id", m.private(api.GetOneBook))
	router.PUT("/v1/books/:id", m.private(api.UpdateBook))
	router.PATCH("/v1/books/:id", m.private(api.UpdateBook))
	router.DELETE("/v1/books/:id", m.private(api.DeleteOneBook))
	router.POST("/v1/books/:id/cover", m.private(api.UploadBookCover))

	router.POST("/v1/books/:id/borrow", m.private(api.BorrowBook))
	router.POST("/v1/books/:id/return", m.private(api.ReturnBook))
	router.GET("/v1/books/:id/transactions", m.private(api.GetBookTransactions))
	router.GET("/v1/books/:id/availability", m.private(api.GetBookAvailability))
	router.GET("/v1/user/borrowed-books", m.private(api.GetUserBorrowedBooks))
	return router
}

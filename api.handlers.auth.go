package main

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Register creates a user account and returns its access token.
//
//	@Summary	Register
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Param		credentials	body		Credentials	true	"username and password"
//	@Success	201			{object}	APIResponse
//	@Failure	400			{object}	APIError
//	@Failure	409			{object}	APIError
//	@Router		/v1/auth/register [post]
func (api *APIHandler) Register(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var creds Credentials
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	if err := DecodeJSONRequestBody(r, &creds); err != nil {
		api.sendError(w, r, "failed to register user", NewDomainError(ErrInvalidInput, "invalid request body"))
		return
	}

	if err := ValidateCredentialsRequestBody(&creds); err != nil {
		api.sendError(w, r, "failed to register user", invalidInput(err))
		return
	}

	result, err := api.authService.Register(r.Context(), creds)
	if err != nil {
		api.sendError(w, r, "failed to register user", err)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to register user", zap.String("user.id", result.User.ID))
	resp := GenericResponse(requestID, http.StatusCreated, "User registered successfully.", nil, result)
	api.sendResponse(w, r, resp)
}

// Login checks the credentials of a user and returns a new access token.
//
//	@Summary	Login
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Param		credentials	body		Credentials	true	"username and password"
//	@Success	200			{object}	APIResponse
//	@Failure	401			{object}	APIError
//	@Router		/v1/auth/login [post]
func (api *APIHandler) Login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var creds Credentials
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	if err := DecodeJSONRequestBody(r, &creds); err != nil {
		api.sendError(w, r, "failed to login user", NewDomainError(ErrInvalidInput, "invalid request body"))
		return
	}

	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || creds.Password == "" {
		api.sendError(w, r, "failed to login user", ErrInvalidCredentials)
		return
	}

	result, err := api.authService.Login(r.Context(), creds)
	if err != nil {
		api.sendError(w, r, "failed to login user", err)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to login user", zap.String("user.id", result.User.ID))
	resp := GenericResponse(requestID, http.StatusOK, "User logged in successfully.", nil, result)
	api.sendResponse(w, r, resp)
}

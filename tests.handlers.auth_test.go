package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterHandler(t *testing.T) {
	var got Credentials
	auth := &MockAuthService{
		RegisterFunc: func(ctx context.Context, creds Credentials) (AuthResult, error) {
			got = creds
			return AuthResult{AccessToken: "token", User: UserSummary{ID: "u:1", Username: creds.Username}}, nil
		},
	}
	api := newTestAPIHandler(Services{Auth: auth})

	t.Run("should pass: valid credentials", func(t *testing.T) {
		req := withRequestID(httptest.NewRequest(http.MethodPost, "/v1/auth/register", strings.NewReader(`{"username":" alice ","password":"secret"}`)))
		w := httptest.NewRecorder()
		api.Register(w, req, httprouter.Params{})
		res, m := decodeResponse(t, w)
		assert.Equal(t, http.StatusCreated, res.StatusCode)
		assert.Equal(t, "User registered successfully.", m["message"])
		assert.Equal(t, "alice", got.Username)
		data, ok := m["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "token", data["access_token"])
		assert.Equal(t, map[string]interface{}{"id": "u:1", "username": "alice"}, data["user"])
	})

	t.Run("should fail: invalid credentials", func(t *testing.T) {
		cases := []struct {
			payload string
			message string
		}{
			{`{"password":"secret"}`, "username is required"},
			{`{"username":"al","password":"secret"}`, "username must be between 3 and 32 characters"},
			{`{"username":"alice"}`, "password is required"},
			{`{"username":"alice","password":"123"}`, "password must be at least 6 characters"},
			{`{"username":"alice","password":"` + strings.Repeat("a", 80) + `"}`, "password must be at most 72 bytes"},
			{`not json`, "invalid request body"},
		}
		for _, tc := range cases {
			req := withRequestID(httptest.NewRequest(http.MethodPost, "/v1/auth/register", strings.NewReader(tc.payload)))
			w := httptest.NewRecorder()
			api.Register(w, req, httprouter.Params{})
			res, m := decodeResponse(t, w)
			assert.Equal(t, http.StatusBadRequest, res.StatusCode, tc.payload)
			assert.Equal(t, tc.message, m["message"], tc.payload)
		}
	})

	t.Run("should fail: username taken", func(t *testing.T) {
		auth.RegisterFunc = func(ctx context.Context, creds Credentials) (AuthResult, error) {
			return AuthResult{}, ErrUsernameTaken
		}
		req := withRequestID(httptest.NewRequest(http.MethodPost, "/v1/auth/register", strings.NewReader(`{"username":"alice","password":"secret"}`)))
		w := httptest.NewRecorder()
		api.Register(w, req, httprouter.Params{})
		res, m := decodeResponse(t, w)
		assert.Equal(t, http.StatusConflict, res.StatusCode)
		assert.Equal(t, "Username already exists", m["message"])
	})
}

func TestLoginHandler(t *testing.T) {
	api := newTestAPIHandler(Services{Auth: &MockAuthService{
		LoginFunc: func(ctx context.Context, creds Credentials) (AuthResult, error) {
			if creds.Username != "alice" || creds.Password != "secret" {
				return AuthResult{}, ErrInvalidCredentials
			}
			return AuthResult{AccessToken: "token", User: UserSummary{ID: "u:1", Username: "alice"}}, nil
		},
	}})

	cases := []struct {
		payload string
		status  int
		message string
	}{
		{`{"username":"alice","password":"secret"}`, http.StatusOK, "User logged in successfully."},
		{`{"username":"alice","password":"wrong"}`, http.StatusUnauthorized, "Invalid credentials"},
		{`{"username":"  ","password":"secret"}`, http.StatusUnauthorized, "Invalid credentials"},
		{`{"username":"alice"}`, http.StatusUnauthorized, "Invalid credentials"},
		{`[`, http.StatusBadRequest, "invalid request body"},
	}
	for _, tc := range cases {
		req := withRequestID(httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(tc.payload)))
		w := httptest.NewRecorder()
		api.Login(w, req, httprouter.Params{})
		res, m := decodeResponse(t, w)
		assert.Equal(t, tc.status, res.StatusCode, tc.payload)
		assert.Equal(t, tc.message, m["message"], tc.payload)
	}
}

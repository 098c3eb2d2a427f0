package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

type AuthServiceProvider interface {
	Register(ctx context.Context, creds Credentials) (AuthResult, error)
	Login(ctx context.Context, creds Credentials) (AuthResult, error)
	Authenticate(ctx context.Context, token string) (User, error)
}

type AuthService struct {
	logger     *zap.Logger
	clock      Clocker
	idsHandler UIDHandler
	users      UserStorage
	hasher     PasswordHasher
	tokens     TokenIssuer
}

func NewAuthService(logger *zap.Logger, clock Clocker, ids UIDHandler, users UserStorage, hasher PasswordHasher, tokens TokenIssuer) AuthServiceProvider {
	return &AuthService{
		logger:     logger,
		clock:      clock,
		idsHandler: ids,
		users:      users,
		hasher:     hasher,
		tokens:     tokens,
	}
}

// Register creates a new user account and returns its access token.
func (as *AuthService) Register(ctx context.Context, creds Credentials) (AuthResult, error) {
	_, err := as.users.GetByUsername(ctx, creds.Username)
	if err == nil {
		return AuthResult{}, ErrUsernameTaken
	}
	if !errors.Is(err, ErrUserNotFound) {
		return AuthResult{}, err
	}

	hashed, err := as.hasher.Hash(creds.Password)
	if err != nil {
		return AuthResult{}, err
	}

	now := as.clock.Now().UTC()
	user := User{
		ID:        as.idsHandler.Generate(UserIDPrefix),
		Username:  creds.Username,
		Password:  hashed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = as.users.Add(ctx, user)
	if errors.Is(err, ErrDuplicateUsername) {
		return AuthResult{}, ErrUsernameTaken
	}
	if err != nil {
		return AuthResult{}, err
	}
	return as.issue(user, now)
}

// Login checks the credentials and returns a fresh access token. Unknown
// usernames and wrong passwords are reported the same way.
func (as *AuthService) Login(ctx context.Context, creds Credentials) (AuthResult, error) {
	user, err := as.users.GetByUsername(ctx, creds.Username)
	if errors.Is(err, ErrUserNotFound) {
		return AuthResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return AuthResult{}, err
	}

	if err = as.hasher.Compare(user.Password, creds.Password); err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}
	return as.issue(user, as.clock.Now().UTC())
}

// Authenticate verifies an access token and loads its user.
func (as *AuthService) Authenticate(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrMissingToken
	}

	claims, err := as.tokens.Verify(token)
	if err != nil {
		as.logger.Debug("auth: token verification failed", zap.Error(err))
		return User{}, ErrInvalidToken
	}

	user, err := as.users.GetOne(ctx, claims.Subject)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidToken
	}
	return user, err
}

func (as *AuthService) issue(user User, now time.Time) (AuthResult, error) {
	token, err := as.tokens.Issue(user, now)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{AccessToken: token, User: user.Summary()}, nil
}

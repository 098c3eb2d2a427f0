package main

import (
	"context"
	"time"
)

// User is a registered library member. The password
// field holds the bcrypt hash and is never serialized.
type User struct {
	ID        string    `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Password  string    `json:"-" db:"password"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// UserSummary is the public view of a user embedded into transactions.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Summary returns the public view of the user.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username}
}

// UserStorage defines possible operations on user entity.
type UserStorage interface {
	Add(ctx context.Context, user User) error
	GetOne(ctx context.Context, id string) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
}

// Credentials is the payload of the register and login requests.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResult is returned on successful register or login.
type AuthResult struct {
	AccessToken string      `json:"access_token"`
	User        UserSummary `json:"user"`
}

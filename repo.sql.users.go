package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
)

type sqlUserStorage struct {
	sqlRepos
}

// Add inserts a new user record.
func (us *sqlUserStorage) Add(ctx context.Context, user User) error {
	_, err := us.exec(ctx, us.dialect.Insert(tableUsers).Rows(goqu.Record{
		"id":         user.ID,
		"username":   user.Username,
		"password":   user.Password,
		"created_at": user.CreatedAt.UTC(),
		"updated_at": user.UpdatedAt.UTC(),
	}).Prepared(true))
	if isUniqueViolation(err) {
		return ErrDuplicateUsername
	}
	if err != nil {
		return fmt.Errorf("users: failed to insert %s: %w", user.ID, err)
	}
	return nil
}

// GetOne retrieves a user record based on its ID.
func (us *sqlUserStorage) GetOne(ctx context.Context, id string) (User, error) {
	return us.getBy(ctx, "id", id)
}

// GetByUsername retrieves a user record based on its username.
func (us *sqlUserStorage) GetByUsername(ctx context.Context, username string) (User, error) {
	return us.getBy(ctx, "username", username)
}

func (us *sqlUserStorage) getBy(ctx context.Context, column, value string) (User, error) {
	var user User
	err := us.get(ctx, &user, us.dialect.From(tableUsers).
		Select("id", "username", "password", "created_at", "updated_at").
		Where(goqu.C(column).Eq(value)).
		Prepared(true))
	if errors.Is(err, sql.ErrNoRows) {
		return user, ErrUserNotFound
	}
	if err != nil {
		return user, fmt.Errorf("users: failed to get by %s: %w", column, err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

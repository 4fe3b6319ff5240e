// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is the account behind an account request. Users are created inactive
// on signup and activated when staff accept their request.
type User struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email"`
	IsActive   bool      `json:"is_active"`
	IsStaff    bool      `json:"is_staff"`
	DateJoined time.Time `json:"date_joined"`

	// password is the bcrypt hash, never serialized
	password string
}

var (
	errNotFound = errors.New("not found")

	dropPlusExtender = regexp.MustCompile(`(\+.*)$`)
	dropPeriods      = strings.NewReplacer(".", "")
)

func (u *User) CleanEmail() string {
	return cleanEmail(u.Email)
}

// cleanEmail strips all the funky characters from an email address.
//
// Essentially this boils down to the following pattern (ignoring case):
//   [a-z0-9]@[a-z0-9].[a-z]
//
// Callers should be aware of when an empty string is returned.
func cleanEmail(email string) string {
	// split at '@'
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}

	parts[0] = dropPlusExtender.ReplaceAllString(parts[0], "")
	parts[0] = dropPeriods.Replace(parts[0])

	return strings.ToLower(strings.Join(parts, "@"))
}

// generateID creates a random value for session cookies.
// Do no assume anything about these ID's other than
// they are strings. Case matters
func generateID() string {
	bs := make([]byte, 20)
	n, err := rand.Read(bs)
	if err != nil || n == 0 {
		return ""
	}
	return strings.ToLower(hex.EncodeToString(bs))
}

// hashPassword returns the bcrypt hash stored in users.password.
func hashPassword(pass string) (string, error) {
	bs, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("problem hashing password: %v", err)
	}
	return string(bs), nil
}

type userRepository interface {
	lookupByID(ctx context.Context, id int64) (*User, error)
	lookupByUsername(ctx context.Context, username string) (*User, error)

	// lookupByEmail finds a user by the given email address.
	// The address is compared by its CleanEmail() form.
	lookupByEmail(ctx context.Context, email string) (*User, error)

	// upsert writes u, keyed by username. u.ID is set from the stored row.
	// pass is hashed when non-empty, otherwise the stored hash is kept.
	upsert(ctx context.Context, u *User, pass string) error
}

type sqliteUserRepository struct {
	db *sql.DB
}

const userColumns = `user_id, username, first_name, last_name, email, is_active, is_staff, date_joined, password`

func scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Email, &u.IsActive, &u.IsStaff, &u.DateJoined, &u.password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *sqliteUserRepository) lookupByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where user_id = ?`, id)
	u, err := scanUser(row)
	if err != nil && !errors.Is(err, errNotFound) {
		return nil, fmt.Errorf("problem reading user %d: %v", id, err)
	}
	return u, err
}

func (s *sqliteUserRepository) lookupByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where username = ?`, username)
	u, err := scanUser(row)
	if err != nil && !errors.Is(err, errNotFound) {
		return nil, fmt.Errorf("problem reading user %q: %v", username, err)
	}
	return u, err
}

func (s *sqliteUserRepository) lookupByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where clean_email = ? limit 1`, cleanEmail(email))
	u, err := scanUser(row)
	if err != nil && !errors.Is(err, errNotFound) {
		return nil, fmt.Errorf("problem reading user by email: %v", err)
	}
	return u, err
}

func (s *sqliteUserRepository) upsert(ctx context.Context, u *User, pass string) error {
	if u.DateJoined.IsZero() {
		u.DateJoined = time.Now().UTC()
	}
	hash := ""
	if pass != "" {
		h, err := hashPassword(pass)
		if err != nil {
			return err
		}
		hash = h
	}

	query := `insert into users (username, first_name, last_name, email, clean_email, is_active, is_staff, date_joined, password)
values (?, ?, ?, ?, ?, ?, ?, ?, ?)
on conflict(username) do update set
  first_name = excluded.first_name, last_name = excluded.last_name,
  email = excluded.email, clean_email = excluded.clean_email,
  is_active = excluded.is_active, is_staff = excluded.is_staff,
  password = case when excluded.password = '' then users.password else excluded.password end`
	_, err := s.db.ExecContext(ctx, query, u.Username, u.FirstName, u.LastName, u.Email, u.CleanEmail(), u.IsActive, u.IsStaff, u.DateJoined, hash)
	if err != nil {
		return fmt.Errorf("problem writing user %q: %v", u.Username, err)
	}
	return s.db.QueryRowContext(ctx, `select user_id from users where username = ?`, u.Username).Scan(&u.ID)
}

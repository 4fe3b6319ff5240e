// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type authable interface {
	// checkPassword compares the provided pass for the user.
	// a non-nil error is returned if the passwords don't match
	// or that the userId doesn't exist.
	checkPassword(userId int64, pass string) error

	// findUserId returns the userId of an unexpired cookie value.
	findUserId(data string) (int64, error)

	// invalidateCookies removes every cookie of a user (require them to login again)
	invalidateCookies(userId int64) error

	// deleteCookie removes a single session, leaving the user's others alone.
	deleteCookie(data string) error

	// writeCookie stores cookie for userId until cookie.Expires
	writeCookie(userId int64, cookie *http.Cookie) error
}

type auth struct {
	db *sql.DB
}

func (a *auth) checkPassword(userId int64, pass string) error {
	var hash string
	err := a.db.QueryRow(`select password from users where user_id = ?`, userId).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound
		}
		return err
	}
	if hash == "" {
		return errors.New("no password set")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass))
}

func (a *auth) findUserId(data string) (int64, error) {
	if data == "" {
		return 0, errNotFound
	}
	var userId int64
	err := a.db.QueryRow(`select user_id from user_cookies where data = ? and valid_until > ?`, data, time.Now().UTC()).Scan(&userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errNotFound
		}
		return 0, fmt.Errorf("problem reading cookie: %v", err)
	}
	return userId, nil
}

func (a *auth) invalidateCookies(userId int64) error {
	_, err := a.db.Exec(`delete from user_cookies where user_id = ?`, userId)
	return err
}

func (a *auth) deleteCookie(data string) error {
	_, err := a.db.Exec(`delete from user_cookies where data = ?`, data)
	return err
}

func (a *auth) writeCookie(userId int64, cookie *http.Cookie) error {
	if cookie == nil || cookie.Value == "" {
		return errors.New("empty cookie")
	}
	_, err := a.db.Exec(`insert into user_cookies (user_id, data, valid_until) values (?, ?, ?)`, userId, cookie.Value, cookie.Expires.UTC())
	return err
}

// sessionUser resolves the user behind the request's session cookie.
func sessionUser(ctx context.Context, r *http.Request, a authable, users userRepository) (*User, error) {
	cookie := extractCookie(r)
	if cookie == nil {
		return nil, errNotFound
	}
	userId, err := a.findUserId(cookie.Value)
	if err != nil {
		return nil, err
	}
	return users.lookupByID(ctx, userId)
}

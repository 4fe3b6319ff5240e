// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// errUsernameTaken is returned by insert when another user already has
// the username, e.g. after a concurrent signup won the race.
var errUsernameTaken = errors.New("username already exists")

// AccountRequest is a pending signup. It points at an inactive User which
// holds the hashed password until staff accept or deny the request.
type AccountRequest struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Date      time.Time `json:"date"`

	userID int64
}

type accountRequestRepository interface {
	getAll(ctx context.Context) ([]*AccountRequest, error)
	get(ctx context.Context, id string) (*AccountRequest, error)

	// insert creates the inactive user and its request.
	insert(ctx context.Context, u *User, pass string) (*AccountRequest, error)

	// accept activates the request's user and removes the request.
	accept(ctx context.Context, req *AccountRequest) error

	// deny removes the request and its (still inactive) user.
	deny(ctx context.Context, req *AccountRequest) error
}

type sqliteAccountRequestRepository struct {
	db *sql.DB
}

const accountRequestColumns = `account_request_id, user_id, username, first_name, last_name, email, created_at`

func scanAccountRequest(row interface{ Scan(...interface{}) error }) (*AccountRequest, error) {
	req := &AccountRequest{}
	if err := row.Scan(&req.ID, &req.userID, &req.Username, &req.FirstName, &req.LastName, &req.Email, &req.Date); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *sqliteAccountRequestRepository) getAll(ctx context.Context) ([]*AccountRequest, error) {
	rows, err := r.db.QueryContext(ctx, `select `+accountRequestColumns+` from account_requests order by created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("problem listing account requests: %v", err)
	}
	defer rows.Close()

	out := make([]*AccountRequest, 0)
	for rows.Next() {
		req, err := scanAccountRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("problem reading account request: %v", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *sqliteAccountRequestRepository) get(ctx context.Context, id string) (*AccountRequest, error) {
	row := r.db.QueryRowContext(ctx, `select `+accountRequestColumns+` from account_requests where account_request_id = ?`, id)
	req, err := scanAccountRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound
		}
		return nil, fmt.Errorf("problem reading account request %s: %v", id, err)
	}
	return req, nil
}

func (r *sqliteAccountRequestRepository) insert(ctx context.Context, u *User, pass string) (*AccountRequest, error) {
	hash, err := hashPassword(pass)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `insert into users (username, first_name, last_name, email, clean_email, is_active, is_staff, date_joined, password) values (?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		u.Username, u.FirstName, u.LastName, u.Email, u.CleanEmail(), now, hash)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, errUsernameTaken
		}
		return nil, fmt.Errorf("problem creating user %q: %v", u.Username, err)
	}
	userID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	req := &AccountRequest{
		ID:        uuid.NewString(),
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Date:      now,
		userID:    userID,
	}
	_, err = tx.ExecContext(ctx, `insert into account_requests (`+accountRequestColumns+`) values (?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.userID, req.Username, req.FirstName, req.LastName, req.Email, req.Date)
	if err != nil {
		return nil, fmt.Errorf("problem creating account request: %v", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	u.ID = userID
	u.DateJoined = now
	return req, nil
}

func (r *sqliteAccountRequestRepository) accept(ctx context.Context, req *AccountRequest) error {
	return r.resolve(ctx, req, `update users set is_active = 1 where user_id = ?`)
}

func (r *sqliteAccountRequestRepository) deny(ctx context.Context, req *AccountRequest) error {
	return r.resolve(ctx, req, `delete from users where user_id = ? and is_active = 0`)
}

// resolve runs userQuery against the request's user and removes the request
// in one transaction.
func (r *sqliteAccountRequestRepository) resolve(ctx context.Context, req *AccountRequest, userQuery string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `delete from account_requests where account_request_id = ?`, req.ID)
	if err != nil {
		return fmt.Errorf("problem removing account request %s: %v", req.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errNotFound
	}
	if _, err := tx.ExecContext(ctx, userQuery, req.userID); err != nil {
		return fmt.Errorf("problem updating user %d: %v", req.userID, err)
	}
	return tx.Commit()
}

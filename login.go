// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

var errBadCredentials = errors.New("invalid username or password")

func addLoginRoutes(router *mux.Router, logger log.Logger, auth authable, users userRepository) {
	router.Methods("POST").Path("/users/login").HandlerFunc(loginRoute(logger, auth, users))
}

// login checks the credentials of an active user and issues a session cookie.
func login(ctx context.Context, logger log.Logger, auth authable, users userRepository, username, pass string) (*User, *http.Cookie, error) {
	u, err := users.lookupByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, errNotFound) {
			authFailures.With("method", "web").Add(1)
			return nil, nil, errBadCredentials
		}
		return nil, nil, err
	}
	if !u.IsActive {
		// pending account requests can't login
		authFailures.With("method", "web").Add(1)
		return nil, nil, errBadCredentials
	}
	if err := auth.checkPassword(u.ID, pass); err != nil {
		authFailures.With("method", "web").Add(1)
		logger.Log("login", fmt.Sprintf("userId=%d failed: %v", u.ID, err))
		return nil, nil, errBadCredentials
	}

	authSuccesses.With("method", "web").Add(1)
	cookie, err := createCookie(u.ID, auth)
	if err != nil {
		return nil, nil, err
	}
	if cookie == nil {
		return nil, nil, fmt.Errorf("nil cookie for userId=%d", u.ID)
	}
	return u, cookie, nil
}

func loginRoute(logger log.Logger, auth authable, users userRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil {
			writeMessage(w, http.StatusBadRequest, "No data provided")
			return
		}

		bs, err := read(r.Body)
		if err != nil {
			internalError(logger, w, err, "login")
			return
		}

		// read request body
		var req loginRequest
		if err := json.Unmarshal(bs, &req); err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}

		u, cookie, err := login(r.Context(), logger, auth, users, req.Username, req.Password)
		if err != nil {
			if errors.Is(err, errBadCredentials) {
				writeMessage(w, http.StatusForbidden, err.Error())
				return
			}
			internalError(logger, w, err, "login")
			return
		}

		http.SetCookie(w, cookie)
		writeJSON(w, http.StatusOK, u)
	}
}

// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

func addLogoutRoutes(router *mux.Router, logger log.Logger, auth authable) {
	router.Methods("DELETE").Path("/users/login").HandlerFunc(logoutRoute(logger, auth))
}

// logout invalidates every session of the cookie's user.
func logout(auth authable, r *http.Request) error {
	cookie := extractCookie(r)
	if cookie == nil {
		return errNotFound
	}
	userId, err := auth.findUserId(cookie.Value)
	if err != nil {
		return err
	}
	if err := auth.invalidateCookies(userId); err != nil {
		return err
	}
	authInactivations.With("method", "web").Add(1)
	return nil
}

func logoutRoute(logger log.Logger, auth authable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := logout(auth, r); err != nil {
			if errors.Is(err, errNotFound) {
				writeMessage(w, http.StatusBadRequest, "not logged in")
				return
			}
			internalError(logger, w, err, "logout")
			return
		}
		http.SetCookie(w, expiredCookie())
		w.WriteHeader(http.StatusOK)
	}
}

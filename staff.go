// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-kit/kit/log"
)

const staffRequired = "Staff access required."

var errNotStaff = errors.New("not a staff member")

// staffAuthorizer guards routes which only active staff users may call.
// Callers identify themselves with our session cookie or an OAuth2
// bearer token whose client is bound to a user.
type staffAuthorizer struct {
	auth  authable
	users userRepository
	oauth *oauth // optional

	logger log.Logger
}

// staffUser returns the active staff user making r. Callers who aren't
// staff get an error matching errNotFound or errNotStaff, anything else
// is a failure to check.
func (s *staffAuthorizer) staffUser(r *http.Request) (*User, error) {
	var (
		u   *User
		err error
	)
	if s.viaBearer(r) {
		u, err = s.bearerUser(r)
	} else {
		u, err = sessionUser(r.Context(), r, s.auth, s.users)
	}
	if err != nil {
		return nil, err
	}
	if u == nil || !u.IsActive || !u.IsStaff {
		return nil, errNotStaff
	}
	return u, nil
}

func (s *staffAuthorizer) bearerUser(r *http.Request) (*User, error) {
	ti, err := s.oauth.server.ValidationBearerToken(r)
	if err != nil {
		authFailures.With("method", "oauth2").Add(1)
		return nil, fmt.Errorf("%w: %v", errNotStaff, err)
	}
	cli, err := s.oauth.clientStore.GetByID(ti.GetClientID())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNotStaff, err)
	}
	userId, err := strconv.ParseInt(cli.GetUserID(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: client %s has no user: %v", errNotStaff, ti.GetClientID(), err)
	}
	return s.users.lookupByID(r.Context(), userId)
}

// api rejects non-staff callers with "403 Forbidden".
func (s *staffAuthorizer) api(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.staffUser(r); err != nil {
			if !isDenial(err) {
				internalError(s.logger, w, err, "staff")
				return
			}
			s.deny(r, err)
			writeMessage(w, http.StatusForbidden, staffRequired)
			return
		}
		// cookie authenticated posts must be JSON, cross-site forms can't send it
		if r.Method == "POST" && !s.viaBearer(r) {
			if mediaType := requestMediaType(r); mediaType != "application/json" {
				staffDenials.Add(1)
				writeMessage(w, http.StatusUnsupportedMediaType, fmt.Sprintf("Unsupported media type %q in request.", mediaType))
				return
			}
		}
		next(w, r)
	}
}

// page redirects non-staff callers to the admin login form.
func (s *staffAuthorizer) page(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.staffUser(r); err != nil {
			if !isDenial(err) {
				renderError(s.logger, w, err, "staff")
				return
			}
			s.deny(r, err)
			target := adminLoginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		next(w, r)
	}
}

func (s *staffAuthorizer) viaBearer(r *http.Request) bool {
	return s.oauth != nil && strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func requestMediaType(r *http.Request) string {
	v := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(v)
	if err != nil {
		return v
	}
	return mediaType
}

func isDenial(err error) bool {
	return errors.Is(err, errNotFound) || errors.Is(err, errNotStaff)
}

func (s *staffAuthorizer) deny(r *http.Request, err error) {
	staffDenials.Add(1)
	if s.logger != nil && !errors.Is(err, errNotFound) {
		s.logger.Log("staff", fmt.Sprintf("denied %s %s: %v", r.Method, r.URL.Path, err))
	}
}

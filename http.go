// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

const (
	// maxReadBytes is the number of bytes to read
	// from a request body. It's intended to be used
	// with an io.LimitReader
	maxReadBytes = 1 * 1024 * 1024

	cookieName = "website_session"
	cookieTTL  = 30 * 24 * time.Hour // days * hours/day * hours
)

var (
	// Domain is the domain to publish cookies under.
	// If empty "localhost" is used.
	//
	// The path is always set to /.
	Domain string = os.Getenv("DOMAIN")

	// serveViaTLS marks cookies as Secure.
	serveViaTLS = yes(os.Getenv("HTTPS_COOKIES"), false)
)

func init() {
	if Domain == "" {
		Domain = "localhost"
	}
}

// read consumes an io.Reader (wrapping with io.LimitReader)
// and returns either the resulting bytes or a non-nil error.
func read(r io.Reader) ([]byte, error) {
	r = io.LimitReader(r, maxReadBytes)
	return io.ReadAll(r)
}

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeMessage writes the {"message": ...} envelope used by every error
// response. msg is either a string or a structured validation detail.
func writeMessage(w http.ResponseWriter, status int, msg interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"message": msg,
	})
}

// internalError logs err under component and responds with
// "500 Internal Server Error" carrying the error's message.
func internalError(logger log.Logger, w http.ResponseWriter, err error, component string) {
	internalServerErrors.Add(1)
	if logger != nil {
		logger.Log(component, err)
	}
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	writeMessage(w, http.StatusInternalServerError, msg)
}

// extractCookie attempts to pull out our cookie from the incoming request.
// We use the contents to find the associated userId.
func extractCookie(r *http.Request) *http.Cookie {
	if r == nil {
		return nil
	}
	cs := r.Cookies()
	for i := range cs {
		if cs[i].Name == cookieName {
			return cs[i]
		}
	}
	return nil
}

// createCookie generates a new cookie and associates it with the provided
// userId.
func createCookie(userId int64, auth authable) (*http.Cookie, error) {
	cookie := &http.Cookie{
		Domain:   Domain,
		Expires:  time.Now().Add(cookieTTL),
		HttpOnly: true,
		Name:     cookieName,
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
		Secure:   serveViaTLS,
		Value:    generateID(),
	}
	if err := auth.writeCookie(userId, cookie); err != nil {
		return nil, err
	}
	return cookie, nil
}

// expiredCookie clears our cookie on the client.
func expiredCookie() *http.Cookie {
	return &http.Cookie{
		Domain:   Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Name:     cookieName,
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
		Secure:   serveViaTLS,
	}
}

// routeID returns the {id} path variable.
func routeID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

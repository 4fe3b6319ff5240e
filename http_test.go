// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kit/kit/log"
)

func TestHTTP__extractCookie(t *testing.T) {
	req, _ := http.NewRequest("GET", "http://example.com", nil)
	if req == nil {
		t.Fatal("nil req")
	}
	if cookie := extractCookie(req); cookie != nil {
		t.Errorf("got %v", cookie)
	}

	req.AddCookie(&http.Cookie{
		Name:  "website_session",
		Value: "data",
	})

	cookie := extractCookie(req)
	if cookie == nil {
		t.Fatal("nil cookie")
	}
	if cookie.Value != "data" {
		t.Errorf("got %q", cookie.Value)
	}

	if cookie := extractCookie(nil); cookie != nil {
		t.Errorf("got %v", cookie)
	}
}

func TestHTTP__writeMessage(t *testing.T) {
	w := httptest.NewRecorder()
	writeMessage(w, http.StatusNotFound, "Account request not found.")

	if w.Code != http.StatusNotFound {
		t.Errorf("got %d", w.Code)
	}
	if v := w.Header().Get("Content-Type"); !strings.HasPrefix(v, "application/json") {
		t.Errorf("got %q", v)
	}
	if v := strings.TrimSpace(w.Body.String()); v != `{"message":"Account request not found."}` {
		t.Errorf("got %s", v)
	}
}

func TestHTTP__internalError(t *testing.T) {
	w := httptest.NewRecorder()
	internalError(log.NewNopLogger(), w, errors.New("database is locked"), "test")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("got %d", w.Code)
	}
	if msg := decodeMessage(t, w); msg != "database is locked" {
		t.Errorf("got %v", msg)
	}
}

func TestHTTP__read(t *testing.T) {
	bs, err := read(strings.NewReader(strings.Repeat("a", maxReadBytes+10)))
	if err != nil {
		t.Fatal(err)
	}
	if len(bs) != maxReadBytes {
		t.Errorf("read %d bytes", len(bs))
	}
}

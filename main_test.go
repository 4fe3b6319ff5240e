// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

// recordingNotifier keeps every published event.
type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	eventType string
	data      interface{}
}

func (n *recordingNotifier) Publish(ctx context.Context, eventType string, data interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{eventType, data})
	return nil
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for i := range n.events {
		out = append(out, n.events[i].eventType)
	}
	return out
}

type testServer struct {
	db     *sql.DB
	router *mux.Router
	oauth  *oauth

	auth     *auth
	users    *sqliteUserRepository
	requests *sqliteAccountRequestRepository
	messages *sqliteContactMessageRepository
	events   *recordingNotifier
}

func setupTestServer(t *testing.T, cfg settings) *testServer {
	t.Helper()

	db, err := migrate(log.NewNopLogger(), filepath.Join(t.TempDir(), "website.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	o, err := setupOauthServer(log.NewNopLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}

	events := &recordingNotifier{}
	return &testServer{
		db:       db,
		router:   setupRouter(log.NewNopLogger(), db, o, events, cfg),
		oauth:    o,
		auth:     &auth{db: db},
		users:    &sqliteUserRepository{db: db},
		requests: &sqliteAccountRequestRepository{db: db},
		messages: &sqliteContactMessageRepository{db: db},
		events:   events,
	}
}

// createUser writes an active user and returns a session cookie for them.
func (ts *testServer) createUser(t *testing.T, username string, staff bool) (*User, *http.Cookie) {
	t.Helper()

	u := &User{
		Username:  username,
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     username + "@example.com",
		IsActive:  true,
		IsStaff:   staff,
	}
	if err := ts.users.upsert(context.Background(), u, "password123"); err != nil {
		t.Fatal(err)
	}
	cookie, err := createCookie(u.ID, ts.auth)
	if err != nil {
		t.Fatal(err)
	}
	return u, cookie
}

func (ts *testServer) staffCookie(t *testing.T) *http.Cookie {
	t.Helper()
	_, cookie := ts.createUser(t, "staff", true)
	return cookie
}

// createAccountRequest stores a pending request as if jdoe signed up.
func (ts *testServer) createAccountRequest(t *testing.T, username string) *AccountRequest {
	t.Helper()

	req, err := ts.requests.insert(context.Background(), &User{
		Username:  username,
		FirstName: "John",
		LastName:  "Doe",
		Email:     username + "@example.com",
	}, "password123")
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		t.Fatal(err)
	}
	return &buf
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch v := body.(type) {
		case string:
			buf.WriteString(v)
		default:
			if err := json.NewEncoder(&buf).Encode(body); err != nil {
				t.Fatal(err)
			}
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil || method == "POST" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

// decodeMessage returns the "message" of an error response.
func decodeMessage(t *testing.T, w *httptest.ResponseRecorder) interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("problem decoding %q: %v", w.Body.String(), err)
	}
	return body["message"]
}

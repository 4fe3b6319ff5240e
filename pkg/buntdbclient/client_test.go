// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package buntdbclient

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/oauth2.v3/models"
)

var (
	flagDebug = flag.Bool("debug", false, "Create db inside project dir for tests")
)

func makeCS(t *testing.T) *ClientStore {
	t.Helper()

	filename := "client_test.db"
	if *flagDebug {
		os.Remove(filename)
	} else {
		filename = filepath.Join(t.TempDir(), filename)
	}
	cs, err := New(filename)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func TestClientStore(t *testing.T) {
	cs := makeCS(t)

	id := "website"

	// get nothing
	cli, err := cs.GetByID(id)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("got %#v", err)
	}
	if cli.GetID() != "" {
		t.Errorf("got %#v", err)
	}

	// set something
	err = cs.Set(id, &models.Client{
		ID:     id,
		Secret: "secret",
		Domain: "domain",
		UserID: "1",
	})
	if err != nil {
		t.Errorf("got %v", err)
	}

	// get something
	cli, err = cs.GetByID(id)
	if err != nil {
		t.Errorf("got %v", err)
	}
	if cli.GetID() != id {
		t.Errorf("got %s", cli.GetID())
	}
	if cli.GetSecret() != "secret" {
		t.Errorf("got %s", cli.GetSecret())
	}
	if cli.GetDomain() != "domain" {
		t.Errorf("got %s", cli.GetDomain())
	}
	if cli.GetUserID() != "1" {
		t.Errorf("got %s", cli.GetUserID())
	}
}

func TestClientStore__mismatch(t *testing.T) {
	cs := makeCS(t)

	err := cs.Set("a", &models.Client{ID: "b"})
	if err == nil || !strings.Contains(err.Error(), "don't match") {
		t.Errorf("got %v", err)
	}
}

func TestClientStore__scan(t *testing.T) {
	cs := makeCS(t)

	id, userId := "website", "12"

	// scan nothing
	results, err := cs.GetByUserID(userId)
	if results != nil || err != nil {
		t.Errorf("got results=%v, err=%#v", results, err)
	}

	// write something
	clients := []*models.Client{
		{ID: id, Secret: "secret", Domain: "domain", UserID: userId},
		{ID: id + "2", Secret: "secret", Domain: "domain", UserID: userId + "2"},
		{ID: "other-id", Secret: "secret", Domain: "domain", UserID: "7"},
	}
	for i := range clients {
		if err := cs.Set(clients[i].ID, clients[i]); err != nil {
			t.Errorf("got %v", err)
		}
	}

	// scan something
	results, err = cs.GetByUserID(userId)
	if err != nil {
		t.Error(err)
	}
	if v := len(results); v != 1 {
		t.Fatalf("got %d", v)
	}
	if results[0].GetID() != id {
		t.Errorf("got %s", results[0].GetID())
	}
}

func TestClientStore__delete(t *testing.T) {
	cs := makeCS(t)

	id := "website"

	// set something
	cs.Set(id, &models.Client{
		ID:     id,
		Secret: "secret",
		Domain: "domain",
		UserID: "1",
	})

	// get something
	cli, err := cs.GetByID(id)
	if err != nil || cli == nil {
		t.Errorf("got cli=%v, err=%#v", cli, err)
	}

	// delete
	if err := cs.DeleteByID(id); err != nil {
		t.Error(err)
	}

	// get nothing :-(
	_, err = cs.GetByID(id)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("got %#v", err)
	}

	// deleting twice is fine
	if err := cs.DeleteByID(id); err != nil {
		t.Error(err)
	}
}

// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"path/filepath"
	"testing"

	"github.com/go-kit/kit/log"

	"github.com/moov-io/website/pkg/buntdbclient"
)

func TestOAuth__registerClient(t *testing.T) {
	clients, err := buntdbclient.New(filepath.Join(t.TempDir(), "clients.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer clients.Close()

	o, err := setupOauthServer(log.NewNopLogger(), clients)
	if err != nil {
		t.Fatal(err)
	}

	if err := o.registerClient("first", "secret", 12); err != nil {
		t.Fatal(err)
	}
	if err := o.registerClient("other", "secret", 7); err != nil {
		t.Fatal(err)
	}
	cli, err := clients.GetByID("first")
	if err != nil {
		t.Fatal(err)
	}
	if cli.GetUserID() != "12" || cli.GetSecret() != "secret" {
		t.Errorf("got %#v", cli)
	}

	// re-registering keeps the client
	if err := o.registerClient("first", "rotated", 12); err != nil {
		t.Fatal(err)
	}
	if cli, err := clients.GetByID("first"); err != nil || cli.GetSecret() != "rotated" {
		t.Errorf("got %#v, %v", cli, err)
	}

	// a new client id replaces the user's old one
	if err := o.registerClient("second", "secret", 12); err != nil {
		t.Fatal(err)
	}
	if _, err := clients.GetByID("first"); err == nil {
		t.Error("expected first client to be revoked")
	}
	found, err := clients.GetByUserID("12")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].GetID() != "second" {
		t.Errorf("got %#v", found)
	}

	// other users are untouched
	if _, err := clients.GetByID("other"); err != nil {
		t.Error(err)
	}
}

// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
)

func TestSqlite__migrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "website.db")

	db, err := migrate(log.NewNopLogger(), path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`insert into web_pages (page_type, content) values ('terms_of_use', 'hello')`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	// migrations run again over an existing database
	db, err = migrate(log.NewNopLogger(), path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var content string
	if err := db.QueryRow(`select content from web_pages where page_type = 'terms_of_use'`).Scan(&content); err != nil {
		t.Fatal(err)
	}
	if content != "hello" {
		t.Errorf("got %q", content)
	}
	if err := db.Ping(); err != nil {
		t.Error(err)
	}
}

func TestSqlite__getSqlitePath(t *testing.T) {
	t.Setenv("SQLITE_DB_PATH", "")
	if v := getSqlitePath(); v != "website.db" {
		t.Errorf("got %q", v)
	}
	t.Setenv("SQLITE_DB_PATH", "../../etc/website.db")
	if v := getSqlitePath(); v != "website.db" {
		t.Errorf("got %q", v)
	}
	t.Setenv("SQLITE_DB_PATH", "/var/lib/website.db")
	if v := getSqlitePath(); v != "/var/lib/website.db" {
		t.Errorf("got %q", v)
	}
}

func TestSqlite__metricCollector(t *testing.T) {
	db, err := migrate(log.NewNopLogger(), filepath.Join(t.TempDir(), "website.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		promMetricCollector{interval: time.Millisecond}.run(db, stop)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector didn't stop")
	}
}

// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-kit/kit/log"
	kitprom "github.com/go-kit/kit/metrics/prometheus"
	stdprom "github.com/prometheus/client_golang/prometheus"
)

var (
	// migrations holds all our SQL migrations to be done (in order)
	migrations = []string{
		`create table if not exists users(user_id integer primary key autoincrement, username text not null unique, first_name, last_name, email, clean_email, is_active boolean not null default 0, is_staff boolean not null default 0, date_joined timestamp, password);`,
		`create table if not exists user_cookies(user_id integer, data text primary key, valid_until timestamp);`,
		`create table if not exists account_requests(account_request_id text primary key, user_id integer not null, username, first_name, last_name, email, created_at timestamp);`,
		`create table if not exists contact_messages(contact_message_id text primary key, name, email, content, created_at timestamp);`,
		`create table if not exists web_pages(page_type text primary key, content, updated_at timestamp);`,
		`create index if not exists users_clean_email on users(clean_email);`,
		`create index if not exists user_cookies_user_id on user_cookies(user_id);`,
	}

	// Metrics
	connections = kitprom.NewGaugeFrom(stdprom.GaugeOpts{
		Name: "sqlite_connections",
		Help: "How many sqlite connections and what status they're in.",
	}, []string{"state"})
)

type promMetricCollector struct {
	interval time.Duration
}

// run samples db pool stats until stop is closed.
func (p promMetricCollector) run(db *sql.DB, stop <-chan struct{}) {
	if db == nil {
		return
	}
	interval := p.interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		stats := db.Stats()
		connections.With("state", "idle").Set(float64(stats.Idle))
		connections.With("state", "inuse").Set(float64(stats.InUse))
		connections.With("state", "open").Set(float64(stats.OpenConnections))

		select {
		case <-ticker.C:
		case <-stop:
			return
		}
	}
}

func getSqlitePath() string {
	path := os.Getenv("SQLITE_DB_PATH")
	if path == "" || strings.Contains(path, "..") {
		// set default if empty or trying to escape
		// don't filepath.ABS to avoid full-fs reads
		path = "website.db"
	}
	return path
}

func createConnection(logger log.Logger, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=1&_busy_timeout=5000", path))
	if err != nil {
		err = fmt.Errorf("problem opening sqlite3 file: %v", err)
		logger.Log("sqlite", err)
		return nil, err
	}
	return db, nil
}

// migrate runs our database migrations (defined at the top of this file)
// over a sqlite database it creates first.
// To configure where on disk the sqlite db is set SQLITE_DB_PATH.
//
// You use db like any other database/sql driver.
func migrate(logger log.Logger, path string) (*sql.DB, error) {
	db, err := createConnection(logger, path)
	if err != nil {
		return nil, err
	}

	logger.Log("sqlite", fmt.Sprintf("migrating %s", path))
	for i := range migrations {
		row := migrations[i]
		res, err := db.Exec(row)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("migration #%d [%s...] had problem: %v", i, row[:40], err)
		}
		n, err := res.RowsAffected()
		if err == nil {
			logger.Log("sqlite", fmt.Sprintf("migration #%d [%s...] changed %d rows", i, row[:40], n))
		}
	}
	logger.Log("sqlite", "finished migrations")

	return db, nil
}

// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestAdmin__pprofProfileEnabled(t *testing.T) {
	cases := []struct {
		env      string
		zero     bool
		expected bool
	}{
		{"", true, true},
		{"", false, false},
		{"yes", false, true},
		{"YES", false, true},
		{"no", true, false},
		{"maybe", true, true},
	}
	for i := range cases {
		os.Setenv("PPROF_TESTPROFILE", cases[i].env)
		if v := pprofProfileEnabled("testprofile", cases[i].zero); v != cases[i].expected {
			t.Errorf("env=%q zero=%v got %v", cases[i].env, cases[i].zero, v)
		}
	}
	os.Unsetenv("PPROF_TESTPROFILE")
}

func TestAdmin__live(t *testing.T) {
	svc := SetupServer("")
	if v := svc.BindAddress(); v != ":9090" {
		t.Errorf("got %s", v)
	}

	svc.AddLivenessCheck("sqlite", func() error { return nil })

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/live", nil)
	svc.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("got %d", w.Code)
	}

	svc.AddLivenessCheck("redis", func() error { return errors.New("connection refused") })

	w = httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("got %d", w.Code)
	}
	var results map[string]string
	if err := json.NewDecoder(w.Body).Decode(&results); err != nil {
		t.Fatal(err)
	}
	if results["sqlite"] != "good" || results["redis"] != "connection refused" {
		t.Errorf("got %#v", results)
	}
}

func TestAdmin__metrics(t *testing.T) {
	svc := SetupServer(":0")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	svc.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("got %d", w.Code)
	}
}

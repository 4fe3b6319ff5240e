// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

// Package admin runs the metrics, liveness and pprof servlet which sits
// next to the public website listener.
package admin

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// profiles lists the pprof endpoints served on the admin servlet and whether
// each is on by default. Profiles can include user data (emails, password
// hashes) so they never go on the public listener.
//
// Each default is overridden with PPROF_$NAME=yes|no.
var profiles = []struct {
	name    string
	enabled bool
}{
	{"allocs", true},
	{"block", true},
	{"cmdline", true},
	{"goroutine", true},
	{"heap", true},
	{"mutex", true},
	{"profile", true},
	{"threadcreate", false},
	{"trace", false},
}

// Init turns on runtime sampling for the enabled block and mutex profiles.
func Init() error {
	if pprofProfileEnabled("block", true) {
		runtime.SetBlockProfileRate(1)
	}
	if pprofProfileEnabled("mutex", true) {
		runtime.SetMutexProfileFraction(1)
	}
	return nil
}

// pprofProfileEnabled reads PPROF_$NAME, falling back to zero when unset
// or unrecognized.
func pprofProfileEnabled(name string, zero bool) bool {
	switch strings.ToLower(os.Getenv(fmt.Sprintf("PPROF_%s", strings.ToUpper(name)))) {
	case "yes", "true", "1":
		return true
	case "no", "false", "0":
		return false
	}
	return zero
}

// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupServer returns an admin Server bound to addr, ":9090" when empty.
func SetupServer(addr string) *Server {
	if addr == "" {
		addr = ":9090"
	}
	timeout, _ := time.ParseDuration("45s")
	s := &Server{
		checks: make(map[string]LivenessCheck),
	}
	s.svc = &http.Server{
		Addr:         addr,
		Handler:      s.handler(),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		IdleTimeout:  timeout,
	}
	return s
}

// LivenessCheck returns a non-nil error when a dependency is unhealthy.
type LivenessCheck func() error

// Server represents a holder around a net/http Server which
// is used for admin endpoints. (i.e. metrics, healthcheck)
type Server struct {
	svc *http.Server

	mu     sync.RWMutex
	checks map[string]LivenessCheck
}

func (s *Server) BindAddress() string {
	return s.svc.Addr
}

// AddLivenessCheck registers check under name for the /live endpoint.
func (s *Server) AddLivenessCheck(name string, check LivenessCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Handler exposes the admin routes, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.svc.Handler
}

// Listen brings up the admin HTTP service. This call blocks.
func (s *Server) Listen() error {
	if s == nil || s.svc == nil {
		return nil
	}
	return s.svc.ListenAndServe()
}

// Shutdown unbinds the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.svc == nil {
		return nil
	}
	return s.svc.Shutdown(ctx)
}

// liveHandler runs every liveness check and responds "200 OK" when all
// pass, otherwise "400 Bad Request". The body maps each check to "good"
// or its error.
func (s *Server) liveHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name](); err != nil {
			status = http.StatusBadRequest
			results[name] = err.Error()
		} else {
			results[name] = "good"
		}
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(results)
}

func (s *Server) handler() http.Handler {
	r := mux.NewRouter()

	// prometheus metrics
	r.Methods("GET").Path("/metrics").Handler(promhttp.Handler())

	r.Methods("GET").Path("/live").HandlerFunc(s.liveHandler)

	// add all pprof handlers we've configured
	r.HandleFunc("/debug/pprof/", pprof.Index)
	for _, p := range profiles {
		if k := p.name; pprofProfileEnabled(k, p.enabled) {
			switch k {
			case "cmdline":
				r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
			case "profile":
				r.HandleFunc("/debug/pprof/profile", pprof.Profile)
			case "trace":
				r.HandleFunc("/debug/pprof/trace", pprof.Trace)
			default:
				r.Handle(fmt.Sprintf("/debug/pprof/%s", k), pprof.Handler(k))
			}
		}
	}

	return r
}

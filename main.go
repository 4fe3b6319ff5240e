// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/moov-io/website/admin"
	"github.com/moov-io/website/pkg/buntdbclient"
	"github.com/moov-io/website/pkg/notify"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics/prometheus"
	"github.com/gorilla/mux"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

var (
	httpAddr  = flag.String("http.addr", ":8080", "HTTP listen address")
	adminAddr = flag.String("admin.addr", ":9090", "Admin HTTP listen address")

	// Metrics
	authSuccesses = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_successes",
		Help: "Count of successful authorizations",
	}, []string{"method"})
	authFailures = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_failures",
		Help: "Count of failed authorizations",
	}, []string{"method"})
	authInactivations = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_inactivations",
		Help: "Count of inactivated auths (i.e. user logout)",
	}, []string{"method"})
	staffDenials = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "staff_denials",
		Help: "Count of requests rejected for not coming from staff",
	}, nil)

	tokenGenerations = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_token_generations",
		Help: "Count of auth tokens created",
	}, []string{"method"})

	accountRequestsCreated = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "account_requests_created",
		Help: "Count of account requests submitted",
	}, nil)
	accountRequestsResolved = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "account_requests_resolved",
		Help: "Count of account requests accepted or denied",
	}, []string{"result"})
	contactMessagesReceived = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "contact_messages_received",
		Help: "Count of contact messages submitted",
	}, nil)

	notificationsPublished = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "notifications_published",
		Help: "Count of notification events published",
	}, []string{"type"})
	notificationFailures = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "notification_failures",
		Help: "Count of notification events which failed to publish",
	}, []string{"type"})

	internalServerErrors = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "http_internal_server_errors",
		Help: "Count of how many 5xx errors we send out",
	}, nil)
)

const Version = "0.2.0-dev"

func main() {
	flag.Parse()

	// Setup logging, default to stdout
	logger := log.NewLogfmtLogger(os.Stderr)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)
	logger.Log("startup", fmt.Sprintf("Starting website server version %s", Version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for application termination.
	errs := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errs <- fmt.Errorf("%s", <-c)
	}()

	admin.Init()
	adminServer := admin.SetupServer(*adminAddr)

	// sqlite
	db, err := migrate(logger, getSqlitePath())
	if err != nil {
		logger.Log("sqlite", err)
		os.Exit(1)
	}
	defer db.Close()
	adminServer.AddLivenessCheck("sqlite", db.Ping)

	stopCollector := make(chan struct{})
	defer close(stopCollector)
	go promMetricCollector{}.run(db, stopCollector)

	// oauth2 clients
	clients, err := buntdbclient.New(getClientsPath())
	if err != nil {
		logger.Log("oauth", fmt.Sprintf("problem opening client store: %v", err))
		os.Exit(1)
	}
	defer clients.Close()
	oauth, err := setupOauthServer(logger, clients)
	if err != nil {
		logger.Log("oauth", err)
		os.Exit(1)
	}

	users := &sqliteUserRepository{db: db}
	if err := setupStaff(ctx, logger, users, oauth); err != nil {
		logger.Log("staff", err)
		os.Exit(1)
	}

	// notifications
	var events notifier = discardNotifier{}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		pub, err := notify.New(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0)
		if err != nil {
			logger.Log("notify", err)
			os.Exit(1)
		}
		defer pub.Close()
		adminServer.AddLivenessCheck("redis", func() error {
			return pub.Ping(context.Background())
		})
		events = pub
		logger.Log("notify", fmt.Sprintf("publishing events to redis %s", addr))
	}

	handler := setupRouter(logger, db, oauth, events, readSettings())

	readTimeout, _ := time.ParseDuration("30s")
	writTimeout, _ := time.ParseDuration("30s")
	idleTimeout, _ := time.ParseDuration("60s")

	serve := &http.Server{
		Addr:    *httpAddr,
		Handler: handler,
		TLSConfig: &tls.Config{
			InsecureSkipVerify:       false,
			PreferServerCipherSuites: true,
			MinVersion:               tls.VersionTLS12,
		},
		ReadTimeout:  readTimeout,
		WriteTimeout: writTimeout,
		IdleTimeout:  idleTimeout,
	}
	shutdownServer := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := serve.Shutdown(ctx); err != nil {
			logger.Log("shutdown", err)
		}
	}

	go func() {
		logger.Log("admin", fmt.Sprintf("Starting admin service on %s", adminServer.BindAddress()))
		if err := adminServer.Listen(); err != nil {
			logger.Log("admin", "shutting down", "error", err)
		}
	}()

	go func() {
		logger.Log("transport", "HTTP", "addr", *httpAddr)
		errs <- serve.ListenAndServe()
	}()

	if err := <-errs; err != nil {
		adminServer.Shutdown(context.Background())
		shutdownServer()
		logger.Log("exit", err)
	}
}

// setupRouter wires every repository and route onto one router.
// o may be nil, which disables OAuth2 bearer tokens.
func setupRouter(logger log.Logger, db *sql.DB, o *oauth, events notifier, cfg settings) *mux.Router {
	users := &sqliteUserRepository{db: db}
	a := &auth{db: db}
	requests := &sqliteAccountRequestRepository{db: db}
	messages := &sqliteContactMessageRepository{db: db}
	pages := &sqliteWebPageRepository{db: db}

	staff := &staffAuthorizer{
		auth:   a,
		users:  users,
		oauth:  o,
		logger: logger,
	}

	router := mux.NewRouter()
	addSignupRoutes(router, logger, users, requests)
	addAccountRequestRoutes(router, logger, staff, requests, events, cfg)
	addContactMessageRoutes(router, logger, staff, messages, events, cfg)
	addTermsOfUseRoutes(router, logger, staff, pages)
	addAdminPageRoutes(router, logger, staff, requests, messages, cfg)
	addLoginRoutes(router, logger, a, users)
	addLogoutRoutes(router, logger, a)
	if o != nil {
		addOAuthRoutes(router, o)
	}
	return router
}

func getClientsPath() string {
	path := os.Getenv("OAUTH_CLIENTS_DB_PATH")
	if path == "" || strings.Contains(path, "..") {
		path = "oauth_clients.db"
	}
	return path
}

// setupStaff creates (or updates) the staff account named by STAFF_USERNAME
// and registers the OAUTH_CLIENT_ID API client for it.
func setupStaff(ctx context.Context, logger log.Logger, users userRepository, o *oauth) error {
	username, pass := os.Getenv("STAFF_USERNAME"), os.Getenv("STAFF_PASSWORD")
	if username == "" {
		return nil
	}
	if pass != "" {
		if err := checkPassword(pass); err != nil {
			return fmt.Errorf("STAFF_PASSWORD: %v", err)
		}
	}
	email := os.Getenv("STAFF_EMAIL")
	if email != "" {
		if err := checkEmail(email); err != nil {
			return fmt.Errorf("STAFF_EMAIL: %v", err)
		}
	}
	u := &User{
		Username: username,
		Email:    email,
		IsActive: true,
		IsStaff:  true,
	}
	if err := users.upsert(ctx, u, pass); err != nil {
		return err
	}
	logger.Log("staff", fmt.Sprintf("staff user %s has userId=%d", u.Username, u.ID))

	clientID, secret := os.Getenv("OAUTH_CLIENT_ID"), os.Getenv("OAUTH_CLIENT_SECRET")
	if clientID == "" || o == nil {
		return nil
	}
	if secret == "" {
		return fmt.Errorf("OAUTH_CLIENT_SECRET is required with OAUTH_CLIENT_ID=%s", clientID)
	}
	if err := o.registerClient(clientID, secret, u.ID); err != nil {
		return err
	}
	logger.Log("staff", fmt.Sprintf("registered oauth2 client %s for %s", clientID, u.Username))
	return nil
}

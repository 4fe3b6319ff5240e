// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
	"gopkg.in/oauth2.v3"
	"gopkg.in/oauth2.v3/errors"
	"gopkg.in/oauth2.v3/manage"
	"gopkg.in/oauth2.v3/models"
	"gopkg.in/oauth2.v3/server"
	"gopkg.in/oauth2.v3/store"
)

// clientStore is an oauth2.ClientStore we can register clients into.
// Both *buntdbclient.ClientStore and *store.ClientStore satisfy it.
type clientStore interface {
	oauth2.ClientStore

	Set(id string, cli oauth2.ClientInfo) error
}

// clientRevoker is implemented by client stores which can find and remove
// the clients of a user.
type clientRevoker interface {
	GetByUserID(userId string) ([]oauth2.ClientInfo, error)
	DeleteByID(id string) error
}

type oauth struct {
	manager     *manage.Manager
	clientStore clientStore
	server      *server.Server

	logger log.Logger
}

func setupOauthServer(logger log.Logger, clients clientStore) (*oauth, error) {
	out := &oauth{
		logger: logger,
	}

	// oauth2 setup
	tokenStore, err := store.NewMemoryTokenStore()
	if err != nil {
		return nil, fmt.Errorf("problem creating token store: %v", err)
	}

	out.manager = manage.NewDefaultManager()
	out.manager.MapTokenStorage(tokenStore)

	if clients == nil {
		clients = store.NewClientStore()
	}
	out.clientStore = clients
	out.manager.MapClientStorage(out.clientStore)

	out.server = server.NewDefaultServer(out.manager)
	out.server.SetAllowGetAccessRequest(true)
	out.server.SetAllowedGrantType(oauth2.ClientCredentials)
	out.server.SetClientInfoHandler(server.ClientFormHandler)
	out.server.SetInternalErrorHandler(func(err error) (re *errors.Response) {
		logger.Log("internal-error", err.Error())
		return
	})
	out.server.SetResponseErrorHandler(func(re *errors.Response) {
		logger.Log("response-error", re.Error.Error())
	})

	return out, nil
}

// registerClient binds an API client to a staff user. Tokens issued to the
// client act on behalf of that user. Other clients of the user are revoked
// when the store supports it, so rotating the client id drops the old one.
func (o *oauth) registerClient(id, secret string, userId int64) error {
	uid := strconv.FormatInt(userId, 10)
	if revoker, ok := o.clientStore.(clientRevoker); ok {
		existing, err := revoker.GetByUserID(uid)
		if err != nil {
			return fmt.Errorf("problem reading clients of userId=%s: %v", uid, err)
		}
		for _, cli := range existing {
			if cli.GetID() == id {
				continue
			}
			if err := revoker.DeleteByID(cli.GetID()); err != nil {
				return err
			}
			o.logger.Log("oauth", fmt.Sprintf("revoked client %s of userId=%s", cli.GetID(), uid))
		}
	}
	return o.clientStore.Set(id, &models.Client{
		ID:     id,
		Secret: secret,
		Domain: "http://" + Domain,
		UserID: uid,
	})
}

func addOAuthRoutes(router *mux.Router, o *oauth) {
	router.Methods("GET").Path("/authorize").HandlerFunc(o.authorizeHandler)
	router.Methods("GET", "POST").Path("/token").HandlerFunc(o.tokenHandler)
}

// authorizeHandler checks the request for appropriate oauth information
// and returns "200 OK" if the token is valid.
func (o *oauth) authorizeHandler(w http.ResponseWriter, r *http.Request) {
	// We aren't using HandleAuthorizeRequest here because that assumes redirect_uri
	// exists on the request. We're just checking for a valid token.
	ti, err := o.server.ValidationBearerToken(r)
	if err != nil {
		authFailures.With("method", "oauth2").Add(1)
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if ti.GetClientID() == "" {
		authFailures.With("method", "oauth2").Add(1)
		writeMessage(w, http.StatusBadRequest, "missing client_id")
		return
	}

	// Passed token check, return "200 OK"
	authSuccesses.With("method", "oauth2").Add(1)
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
}

// tokenHandler passes off the request down to our oauth2 library to
// generate a token (or return an error).
func (o *oauth) tokenHandler(w http.ResponseWriter, r *http.Request) {
	err := o.server.HandleTokenRequest(w, r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	tokenGenerations.With("method", "oauth2").Add(1)
}

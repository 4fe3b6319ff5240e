// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"

	"github.com/moov-io/website/pkg/notify"
)

const accountRequestNotFound = "Account request not found."

// denyRequest is the optional body of a deny action.
type denyRequest struct {
	SendEmail *bool  `json:"send_email"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
}

// accountRequestEvent is published when a request is accepted or denied.
type accountRequestEvent struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Subject   string `json:"subject,omitempty"`
	Message   string `json:"message,omitempty"`
}

func newAccountRequestEvent(req *AccountRequest) accountRequestEvent {
	return accountRequestEvent{
		ID:        req.ID,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	}
}

// accountRequestAction is the side effect of accepting or denying a request.
// It runs after the request was found.
type accountRequestAction func(ctx context.Context, r *http.Request, req *AccountRequest) (string, error)

func addAccountRequestRoutes(router *mux.Router, logger log.Logger, staff *staffAuthorizer, requests accountRequestRepository, events notifier, cfg settings) {
	router.Methods("GET").Path("/account-requests/").HandlerFunc(staff.api(listAccountRequests(logger, requests)))
	router.Methods("GET").Path("/account-requests/{id}/").HandlerFunc(staff.api(getAccountRequest(logger, requests)))

	accept := acceptAccountRequest(logger, requests, events, cfg)
	deny := denyAccountRequest(logger, requests, events, cfg)
	router.Methods("PATCH", "POST").Path("/account-requests/{id}/accept/").HandlerFunc(staff.api(actionAccountRequest(logger, requests, accept)))
	router.Methods("PATCH", "POST").Path("/account-requests/{id}/deny/").HandlerFunc(staff.api(actionAccountRequest(logger, requests, deny)))
}

func listAccountRequests(logger log.Logger, requests accountRequestRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqs, err := requests.getAll(r.Context())
		if err != nil {
			internalError(logger, w, err, "account-requests")
			return
		}
		writeJSON(w, http.StatusOK, reqs)
	}
}

func getAccountRequest(logger log.Logger, requests accountRequestRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := requests.get(r.Context(), routeID(r))
		if err != nil {
			if errors.Is(err, errNotFound) {
				writeMessage(w, http.StatusNotFound, accountRequestNotFound)
				return
			}
			internalError(logger, w, err, "account-requests")
			return
		}
		writeJSON(w, http.StatusOK, req)
	}
}

// actionAccountRequest is the shared lookup / perform / respond flow
// of the accept and deny routes.
func actionAccountRequest(logger log.Logger, requests accountRequestRepository, perform accountRequestAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := requests.get(r.Context(), routeID(r))
		if err != nil {
			if errors.Is(err, errNotFound) {
				writeMessage(w, http.StatusNotFound, accountRequestNotFound)
				return
			}
			internalError(logger, w, err, "account-requests")
			return
		}

		msg, err := perform(r.Context(), r, req)
		if err != nil {
			if errors.Is(err, errNotFound) {
				// resolved by someone else in the meantime
				writeMessage(w, http.StatusNotFound, accountRequestNotFound)
				return
			}
			internalError(logger, w, err, "account-requests")
			return
		}
		writeMessage(w, http.StatusOK, msg)
	}
}

func acceptAccountRequest(logger log.Logger, requests accountRequestRepository, events notifier, cfg settings) accountRequestAction {
	return func(ctx context.Context, r *http.Request, req *AccountRequest) (string, error) {
		if err := requests.accept(ctx, req); err != nil {
			return "", err
		}
		accountRequestsResolved.With("result", "accepted").Add(1)
		logger.Log("account-requests", fmt.Sprintf("accepted %s username=%s", req.ID, req.Username))

		if cfg.SendEmailWhenAccountRequestIsAccepted {
			publish(ctx, logger, events, notify.AccountRequestAccepted, newAccountRequestEvent(req))
		}
		return "Account request accepted.", nil
	}
}

func denyAccountRequest(logger log.Logger, requests accountRequestRepository, events notifier, cfg settings) accountRequestAction {
	return func(ctx context.Context, r *http.Request, req *AccountRequest) (string, error) {
		var body denyRequest
		if r.ContentLength != 0 && r.Body != nil {
			// the body is optional, a broken one falls back to defaults
			if err := decodeBody(r, &body); err != nil {
				logger.Log("account-requests", fmt.Sprintf("ignoring deny body for %s: %v", req.ID, err))
				body = denyRequest{}
			}
		}

		if err := requests.deny(ctx, req); err != nil {
			return "", err
		}
		accountRequestsResolved.With("result", "denied").Add(1)
		logger.Log("account-requests", fmt.Sprintf("denied %s username=%s", req.ID, req.Username))

		send := cfg.SendEmailWhenAccountRequestIsDenied
		if body.SendEmail != nil {
			send = *body.SendEmail
		}
		if send {
			event := newAccountRequestEvent(req)
			event.Subject = body.Subject
			if event.Subject == "" {
				event.Subject = cfg.EmailDenySubject
			}
			event.Message = body.Message
			publish(ctx, logger, events, notify.AccountRequestDenied, event)
		}
		return "Account request denied.", nil
	}
}

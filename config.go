// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"strings"
)

// settings holds the environment driven toggles for notifications
// and admin page rendering.
type settings struct {
	// SendEmailWhenAccountRequestIsAccepted publishes an event on accept.
	SendEmailWhenAccountRequestIsAccepted bool

	// SendEmailWhenAccountRequestIsDenied publishes an event on deny,
	// unless the deny request says otherwise.
	SendEmailWhenAccountRequestIsDenied bool

	SendEmailWhenContactMessageIsReceived bool

	// EmailDenySubject is the default subject offered on the deny form.
	EmailDenySubject string

	// DisplayHeaders toggles the site header banner on admin pages.
	DisplayHeaders bool

	// CSRFKey signs the admin login form tokens, 32 bytes.
	CSRFKey []byte
}

const defaultEmailDenySubject = "Account Request Denied"

// readSettings reads settings from environment variables of the same
// (upper snake case) name.
func readSettings() settings {
	s := settings{
		SendEmailWhenAccountRequestIsAccepted: yes(os.Getenv("SEND_EMAIL_WHEN_ACCOUNT_REQUEST_IS_ACCEPTED"), false),
		SendEmailWhenAccountRequestIsDenied:   yes(os.Getenv("SEND_EMAIL_WHEN_ACCOUNT_REQUEST_IS_DENIED"), false),
		SendEmailWhenContactMessageIsReceived: yes(os.Getenv("SEND_EMAIL_WHEN_CONTACT_MESSAGE_IS_RECEIVED"), true),
		EmailDenySubject:                      os.Getenv("EMAIL_DENY_SUBJECT"),
		DisplayHeaders:                        yes(os.Getenv("DISPLAY_SITE_HEADERS"), true),
		CSRFKey:                               []byte(os.Getenv("CSRF_KEY")),
	}
	if s.EmailDenySubject == "" {
		s.EmailDenySubject = defaultEmailDenySubject
	}
	return s
}

// yes parses v as a boolean toggle.
//
// "yes", "true" and "1" return true, "no", "false" and "0" return false,
// otherwise zero is returned. Empty strings return zero.
func yes(v string, zero bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "true", "1":
		return true
	case "no", "false", "0":
		return false
	}
	return zero
}

// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/moov-io/website/pkg/notify"
)

// ContactMessage is a message left on the public contact form.
type ContactMessage struct {
	ID      string    `json:"id"`
	Name    string    `json:"name" validate:"required,max=255"`
	Email   string    `json:"email" validate:"required,max=254,email"`
	Content string    `json:"content" validate:"required"`
	Date    time.Time `json:"date"`
}

func (m *ContactMessage) trim() {
	m.Name = strings.TrimSpace(m.Name)
	m.Email = strings.TrimSpace(m.Email)
	m.Content = strings.TrimSpace(m.Content)
}

type contactMessageRepository interface {
	getAll(ctx context.Context) ([]*ContactMessage, error)
	get(ctx context.Context, id string) (*ContactMessage, error)
	insert(ctx context.Context, msg *ContactMessage) error
	delete(ctx context.Context, msg *ContactMessage) error
}

type sqliteContactMessageRepository struct {
	db *sql.DB
}

func (r *sqliteContactMessageRepository) getAll(ctx context.Context) ([]*ContactMessage, error) {
	rows, err := r.db.QueryContext(ctx, `select contact_message_id, name, email, content, created_at from contact_messages order by created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("problem listing contact messages: %v", err)
	}
	defer rows.Close()

	out := make([]*ContactMessage, 0)
	for rows.Next() {
		msg := &ContactMessage{}
		if err := rows.Scan(&msg.ID, &msg.Name, &msg.Email, &msg.Content, &msg.Date); err != nil {
			return nil, fmt.Errorf("problem reading contact message: %v", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (r *sqliteContactMessageRepository) get(ctx context.Context, id string) (*ContactMessage, error) {
	msg := &ContactMessage{}
	err := r.db.QueryRowContext(ctx, `select contact_message_id, name, email, content, created_at from contact_messages where contact_message_id = ?`, id).
		Scan(&msg.ID, &msg.Name, &msg.Email, &msg.Content, &msg.Date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound
		}
		return nil, fmt.Errorf("problem reading contact message %s: %v", id, err)
	}
	return msg, nil
}

func (r *sqliteContactMessageRepository) insert(ctx context.Context, msg *ContactMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Date.IsZero() {
		msg.Date = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `insert into contact_messages (contact_message_id, name, email, content, created_at) values (?, ?, ?, ?, ?)`,
		msg.ID, msg.Name, msg.Email, msg.Content, msg.Date)
	if err != nil {
		return fmt.Errorf("problem creating contact message: %v", err)
	}
	return nil
}

func (r *sqliteContactMessageRepository) delete(ctx context.Context, msg *ContactMessage) error {
	res, err := r.db.ExecContext(ctx, `delete from contact_messages where contact_message_id = ?`, msg.ID)
	if err != nil {
		return fmt.Errorf("problem deleting contact message %s: %v", msg.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errNotFound
	}
	return nil
}

func addContactMessageRoutes(router *mux.Router, logger log.Logger, staff *staffAuthorizer, messages contactMessageRepository, events notifier, cfg settings) {
	router.Methods("GET").Path("/contact-messages/").HandlerFunc(staff.api(listContactMessages(logger, messages)))
	router.Methods("POST").Path("/contact-messages/").HandlerFunc(createContactMessage(logger, messages, events, cfg))
	router.Methods("GET").Path("/contact-messages/{id}/").HandlerFunc(staff.api(getContactMessage(logger, messages)))
	router.Methods("DELETE").Path("/contact-messages/{id}/").HandlerFunc(staff.api(deleteContactMessage(logger, messages)))
}

func listContactMessages(logger log.Logger, messages contactMessageRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := messages.getAll(r.Context())
		if err != nil {
			internalError(logger, w, err, "contact-messages")
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func createContactMessage(logger log.Logger, messages contactMessageRepository, events notifier, cfg settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg ContactMessage
		if err := decodeBody(r, &msg); err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		msg.trim()
		if detail := validateRequest(msg); detail != nil {
			writeMessage(w, http.StatusBadRequest, detail)
			return
		}

		// ids and dates are ours to assign
		msg.ID, msg.Date = "", time.Time{}
		if err := messages.insert(r.Context(), &msg); err != nil {
			internalError(logger, w, err, "contact-messages")
			return
		}
		contactMessagesReceived.Add(1)

		if cfg.SendEmailWhenContactMessageIsReceived {
			publish(r.Context(), logger, events, notify.ContactMessageReceived, msg)
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func getContactMessage(logger log.Logger, messages contactMessageRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, err := messages.get(r.Context(), routeID(r))
		if err != nil {
			if errors.Is(err, errNotFound) {
				writeMessage(w, http.StatusNotFound, "Contact message not found.")
				return
			}
			internalError(logger, w, err, "contact-messages")
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

func deleteContactMessage(logger log.Logger, messages contactMessageRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, err := messages.get(r.Context(), routeID(r))
		if err == nil {
			err = messages.delete(r.Context(), msg)
		}
		if err != nil {
			if errors.Is(err, errNotFound) {
				writeMessage(w, http.StatusNotFound, "Data not found.")
				return
			}
			internalError(logger, w, err, "contact-messages")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

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
	"time"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

const (
	termsOfUsePage = "terms_of_use"

	missingTermsContent = "Expected parameters not provided."
)

// WebPage is an editable singleton page of the website.
type WebPage struct {
	Content string `json:"content"`
}

type webPageRepository interface {
	// get returns the page, or an empty one if it was never written.
	get(ctx context.Context, pageType string) (*WebPage, error)
	upsert(ctx context.Context, pageType string, content string) (*WebPage, error)
}

type sqliteWebPageRepository struct {
	db *sql.DB
}

func (r *sqliteWebPageRepository) get(ctx context.Context, pageType string) (*WebPage, error) {
	page := &WebPage{}
	err := r.db.QueryRowContext(ctx, `select content from web_pages where page_type = ?`, pageType).Scan(&page.Content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return page, nil
		}
		return nil, fmt.Errorf("problem reading %s: %v", pageType, err)
	}
	return page, nil
}

func (r *sqliteWebPageRepository) upsert(ctx context.Context, pageType string, content string) (*WebPage, error) {
	_, err := r.db.ExecContext(ctx, `insert into web_pages (page_type, content, updated_at) values (?, ?, ?)
on conflict(page_type) do update set content = excluded.content, updated_at = excluded.updated_at`, pageType, content, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("problem writing %s: %v", pageType, err)
	}
	return &WebPage{Content: content}, nil
}

func addTermsOfUseRoutes(router *mux.Router, logger log.Logger, staff *staffAuthorizer, pages webPageRepository) {
	router.Methods("GET").Path("/terms-of-use/").HandlerFunc(getTermsOfUse(logger, pages))
	router.Methods("POST").Path("/terms-of-use/").HandlerFunc(staff.api(postTermsOfUse(logger, pages)))
}

func getTermsOfUse(logger log.Logger, pages webPageRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := pages.get(r.Context(), termsOfUsePage)
		if err != nil {
			logger.Log("terms-of-use", err)
			writeMessage(w, http.StatusBadRequest, "Serialization fail")
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func postTermsOfUse(logger log.Logger, pages webPageRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content *string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil || body.Content == nil {
			writeMessage(w, http.StatusBadRequest, missingTermsContent)
			return
		}

		page, err := pages.upsert(r.Context(), termsOfUsePage, *body.Content)
		if err != nil {
			logger.Log("terms-of-use", err)
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

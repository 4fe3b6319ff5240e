// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/rand"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"
)

const adminLoginPath = "/admin/login/"

var (
	//go:embed templates/*.html
	templateFS embed.FS

	adminTemplates = template.Must(template.New("admin").Funcs(template.FuncMap{
		"datetime": formatDate,
	}).ParseFS(templateFS, "templates/*.html"))
)

// pageData is handed to every admin template.
type pageData struct {
	Title          string
	DisplayHeaders bool
	User           *User
	Error          string

	// page specific
	Requests                            []map[string]interface{}
	Contacts                            []*ContactMessage
	SendEmailWhenAccountRequestIsDenied bool
	DefaultEmailSubject                 string
	EditUser                            *User
	Next                                string
	CSRFField                           template.HTML
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("Jan 2, 2006, 15:04 MST")
}

func addAdminPageRoutes(router *mux.Router, logger log.Logger, staff *staffAuthorizer, requests accountRequestRepository, messages contactMessageRepository, cfg settings) {
	router.Methods("GET").Path("/admin/user-requests/").HandlerFunc(staff.page(userRequestsPage(logger, staff, requests, cfg)))
	router.Methods("GET").Path("/admin/contact-messages/").HandlerFunc(staff.page(contactMessagesPage(logger, staff, messages, cfg)))
	router.Methods("GET").Path("/admin/auth/user/{id}/change/").HandlerFunc(staff.page(userChangePage(logger, staff, cfg)))

	protect := csrf.Protect(csrfKey(logger, cfg),
		csrf.Path(adminLoginPath),
		csrf.Secure(serveViaTLS),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteStrictMode),
		csrf.ErrorHandler(adminLoginForgery(logger, cfg)),
	)
	router.Methods("GET", "POST").Path(adminLoginPath).Handler(protect(adminLoginPage(logger, staff, cfg)))
	router.Methods("GET").Path("/admin/logout/").HandlerFunc(adminLogoutPage(logger, staff))
}

// csrfKey returns the key signing admin login form tokens. Without a
// 32 byte CSRF_KEY a random key is used, so forms don't survive restarts.
func csrfKey(logger log.Logger, cfg settings) []byte {
	if len(cfg.CSRFKey) == 32 {
		return cfg.CSRFKey
	}
	if len(cfg.CSRFKey) > 0 {
		logger.Log("admin-pages", fmt.Sprintf("ignoring CSRF_KEY of %d bytes, expected 32", len(cfg.CSRFKey)))
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("problem generating csrf key: %v", err))
	}
	return key
}

// editURL is the admin page of a user account.
func editURL(userId int64) string {
	return fmt.Sprintf("/admin/auth/user/%d/change/", userId)
}

// buildRequestsContext turns account requests into the rows of the user
// requests page. Each row links to the admin page of the request's user.
func buildRequestsContext(ctx context.Context, requests []*AccountRequest, users userRepository) ([]map[string]interface{}, error) {
	out := make([]map[string]interface{}, 0, len(requests))
	for _, req := range requests {
		u, err := users.lookupByUsername(ctx, req.Username)
		if err != nil {
			return nil, fmt.Errorf("problem resolving user of account request %s: %v", req.ID, err)
		}
		out = append(out, map[string]interface{}{
			"id":         req.ID,
			"username":   req.Username,
			"first_name": req.FirstName,
			"last_name":  req.LastName,
			"email":      req.Email,
			"date":       req.Date,
			"edit_url":   editURL(u.ID),
		})
	}
	return out, nil
}

func render(logger log.Logger, w http.ResponseWriter, status int, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := adminTemplates.ExecuteTemplate(w, name, data); err != nil {
		logger.Log("admin-pages", fmt.Sprintf("problem rendering %s: %v", name, err))
	}
}

func renderError(logger log.Logger, w http.ResponseWriter, err error, component string) {
	internalServerErrors.Add(1)
	if logger != nil {
		logger.Log(component, err)
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func userRequestsPage(logger log.Logger, staff *staffAuthorizer, requests accountRequestRepository, cfg settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqs, err := requests.getAll(r.Context())
		if err != nil {
			renderError(logger, w, err, "admin-pages")
			return
		}
		rows, err := buildRequestsContext(r.Context(), reqs, staff.users)
		if err != nil {
			renderError(logger, w, err, "admin-pages")
			return
		}
		user, _ := staff.staffUser(r)
		render(logger, w, http.StatusOK, "user_requests.html", pageData{
			Title:                               "User Requests",
			DisplayHeaders:                      cfg.DisplayHeaders,
			User:                                user,
			Requests:                            rows,
			SendEmailWhenAccountRequestIsDenied: cfg.SendEmailWhenAccountRequestIsDenied,
			DefaultEmailSubject:                 cfg.EmailDenySubject,
		})
	}
}

func contactMessagesPage(logger log.Logger, staff *staffAuthorizer, messages contactMessageRepository, cfg settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := messages.getAll(r.Context())
		if err != nil {
			renderError(logger, w, err, "admin-pages")
			return
		}
		user, _ := staff.staffUser(r)
		render(logger, w, http.StatusOK, "contact_messages.html", pageData{
			Title:          "Contact Messages",
			DisplayHeaders: cfg.DisplayHeaders,
			User:           user,
			Contacts:       msgs,
		})
	}
}

func userChangePage(logger log.Logger, staff *staffAuthorizer, cfg settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId, err := strconv.ParseInt(routeID(r), 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		u, err := staff.users.lookupByID(r.Context(), userId)
		if err != nil {
			if errors.Is(err, errNotFound) {
				http.NotFound(w, r)
				return
			}
			renderError(logger, w, err, "admin-pages")
			return
		}
		user, _ := staff.staffUser(r)
		render(logger, w, http.StatusOK, "user_change.html", pageData{
			Title:          "Change user",
			DisplayHeaders: cfg.DisplayHeaders,
			User:           user,
			EditUser:       u,
		})
	}
}

// safeNext only allows redirects to local paths.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/admin/user-requests/"
	}
	return next
}

func adminLoginPage(logger log.Logger, staff *staffAuthorizer, cfg settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := pageData{
			Title:          "Log in",
			DisplayHeaders: cfg.DisplayHeaders,
			Next:           safeNext(r.URL.Query().Get("next")),
			CSRFField:      csrf.TemplateField(r),
		}
		if r.Method == "GET" {
			render(logger, w, http.StatusOK, "login.html", data)
			return
		}

		if err := r.ParseForm(); err != nil {
			data.Error = "Invalid form."
			render(logger, w, http.StatusBadRequest, "login.html", data)
			return
		}
		if next := r.PostForm.Get("next"); next != "" {
			data.Next = safeNext(next)
		}
		u, cookie, err := login(r.Context(), logger, staff.auth, staff.users, r.PostForm.Get("username"), r.PostForm.Get("password"))
		if err == nil && !u.IsStaff {
			// drop the session login() just issued
			if err := staff.auth.deleteCookie(cookie.Value); err != nil {
				logger.Log("admin-login", fmt.Sprintf("problem removing cookie of userId=%d: %v", u.ID, err))
			}
			err = errBadCredentials
		}
		if err != nil {
			if !errors.Is(err, errBadCredentials) {
				renderError(logger, w, err, "admin-login")
				return
			}
			data.Error = "Please enter the correct username and password for a staff account."
			render(logger, w, http.StatusForbidden, "login.html", data)
			return
		}
		http.SetCookie(w, cookie)
		http.Redirect(w, r, data.Next, http.StatusFound)
	}
}

// adminLoginForgery answers login posts with a missing or bad form token.
func adminLoginForgery(logger log.Logger, cfg settings) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Log("admin-login", fmt.Sprintf("rejected login form: %v", csrf.FailureReason(r)))
		render(logger, w, http.StatusForbidden, "login.html", pageData{
			Title:          "Log in",
			DisplayHeaders: cfg.DisplayHeaders,
			Error:          "Your login form expired, please try again.",
			Next:           safeNext(r.URL.Query().Get("next")),
			CSRFField:      csrf.TemplateField(r),
		})
	})
}

func adminLogoutPage(logger log.Logger, staff *staffAuthorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := logout(staff.auth, r); err != nil && !errors.Is(err, errNotFound) {
			logger.Log("admin-logout", err)
		}
		http.SetCookie(w, expiredCookie())
		http.Redirect(w, r, adminLoginPath, http.StatusFound)
	}
}

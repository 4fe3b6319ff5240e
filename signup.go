// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// signupRequest is the public account request payload.
type signupRequest struct {
	Username  string `json:"username" validate:"required,max=150,username"`
	FirstName string `json:"first_name" validate:"required,max=150"`
	LastName  string `json:"last_name" validate:"required,max=150"`
	Email     string `json:"email" validate:"required,max=254,email"`
	Password  string `json:"password" validate:"required,max=128,bcryptlen"`
}

// trim drops surrounding whitespace so blank values fail "required".
// Passwords are kept as typed.
func (s *signupRequest) trim() {
	s.Username = strings.TrimSpace(s.Username)
	s.FirstName = strings.TrimSpace(s.FirstName)
	s.LastName = strings.TrimSpace(s.LastName)
	s.Email = strings.TrimSpace(s.Email)
}

var (
	validate = newValidator()

	usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)
)

// maxPasswordBytes is the most bcrypt will hash.
const maxPasswordBytes = 72

var usernameTaken = validationDetail{
	"username": {"A user with that username already exists."},
}

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their json names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	v.RegisterValidation("bcryptlen", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= maxPasswordBytes
	})
	return v
}

// validationDetail maps each invalid field to its messages.
type validationDetail map[string][]string

func (d validationDetail) add(field, msg string) {
	d[field] = append(d[field], msg)
}

// validateRequest returns nil when obj passes its `validate` tags.
func validateRequest(obj interface{}) validationDetail {
	err := validate.Struct(obj)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return validationDetail{"non_field_errors": {err.Error()}}
	}
	detail := make(validationDetail)
	for _, fe := range errs {
		detail.add(fe.Field(), fieldErrorMessage(fe))
	}
	return detail
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "bcryptlen":
		return fmt.Sprintf("Ensure this field has no more than %d bytes.", maxPasswordBytes)
	case "username":
		return "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	default:
		return "Invalid value."
	}
}

func checkEmail(email string) error {
	if err := validate.Var(email, "required,max=254,email"); err != nil {
		return fmt.Errorf("invalid email %q", email)
	}
	return nil
}

func checkPassword(pass string) error {
	if err := validate.Var(pass, "required,max=128,bcryptlen"); err != nil {
		return errors.New("invalid password")
	}
	return nil
}

// decodeBody reads a JSON request body into v. The returned error is
// meant for the caller of the route.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("No data provided")
	}
	bs, err := read(r.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(bs)) == 0 {
		return errors.New("No data provided")
	}
	if err := json.Unmarshal(bs, v); err != nil {
		return fmt.Errorf("JSON parse error - %v", err)
	}
	return nil
}

func addSignupRoutes(router *mux.Router, logger log.Logger, users userRepository, requests accountRequestRepository) {
	router.Methods("POST").Path("/account-requests/").HandlerFunc(signupRoute(logger, users, requests))
}

func signupRoute(logger log.Logger, users userRepository, requests accountRequestRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var signup signupRequest
		if err := decodeBody(r, &signup); err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		signup.trim()
		if detail := validateRequest(signup); detail != nil {
			writeMessage(w, http.StatusBadRequest, detail)
			return
		}

		existing, err := users.lookupByUsername(r.Context(), signup.Username)
		if err != nil && !errors.Is(err, errNotFound) {
			internalError(logger, w, err, "signup")
			return
		}
		if existing != nil {
			writeMessage(w, http.StatusBadRequest, usernameTaken)
			return
		}
		// dedup on the cleaned address, i.e. john.doe+x@ matches johndoe@
		existing, err = users.lookupByEmail(r.Context(), signup.Email)
		if err != nil && !errors.Is(err, errNotFound) {
			internalError(logger, w, err, "signup")
			return
		}
		if existing != nil {
			writeMessage(w, http.StatusBadRequest, validationDetail{
				"email": {"A user with that email already exists."},
			})
			return
		}

		u := &User{
			Username:  signup.Username,
			FirstName: signup.FirstName,
			LastName:  signup.LastName,
			Email:     signup.Email,
		}
		req, err := requests.insert(r.Context(), u, signup.Password)
		if err != nil {
			if errors.Is(err, errUsernameTaken) {
				writeMessage(w, http.StatusBadRequest, usernameTaken)
				return
			}
			internalError(logger, w, err, "signup")
			return
		}

		accountRequestsCreated.Add(1)
		logger.Log("signup", fmt.Sprintf("account request %s created for username=%s", req.ID, req.Username))
		writeJSON(w, http.StatusCreated, req)
	}
}

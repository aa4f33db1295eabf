// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"

	"github.com/holomush/holoauth/internal/auth"
)

// maxBodyBytes caps login request bodies.
const maxBodyBytes = 1 << 20

// invalidCredentialsMessage never says which of email or password was wrong.
const invalidCredentialsMessage = "invalid email or password"

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type userView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type userResponse struct {
	User userView `json:"user"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func viewOf(u *auth.User) userResponse {
	return userResponse{User: userView{ID: u.ID.String(), Name: u.Name, Email: u.Email}}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeLogin(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	result, err := s.auth.AttemptLogin(ctx, req.Email, req.Password, req.RememberMe)
	if err != nil {
		s.unavailable(w, r, "login", err)
		return
	}
	s.metrics.RecordLogin(result.Status.String())

	if result.Status != auth.LoginSucceeded {
		writeError(w, http.StatusUnprocessableEntity, invalidCredentialsMessage)
		return
	}

	st := stateFrom(ctx)
	st.handle.SetUserID(result.User.ID)
	if err := s.saveSession(w, r, st.handle); err != nil {
		s.unavailable(w, r, "session", err)
		return
	}
	st.user = result.User

	if result.Remember != nil {
		if err := s.cookies.SetRemember(w, result.Remember); err != nil {
			s.unavailable(w, r, "cookie", err)
			return
		}
	}
	if result.ForgetCookie {
		s.cookies.ClearRemember(w)
	}

	writeJSON(w, http.StatusOK, viewOf(result.User))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := stateFrom(ctx)

	if _, err := s.auth.LogOut(ctx, st.user); err != nil {
		s.unavailable(w, r, "logout", err)
		return
	}
	if st.user != nil {
		s.metrics.RecordLogout()
	}

	st.handle.Destroy()
	if err := s.saveSession(w, r, st.handle); err != nil {
		s.unavailable(w, r, "session", err)
		return
	}
	st.user = nil
	s.cookies.ClearRemember(w)

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(CurrentUser(r.Context())))
}

// decodeLogin reads a JSON or form login request. It writes a 400 and
// returns false when the body cannot be parsed.
func decodeLogin(w http.ResponseWriter, r *http.Request) (loginRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req loginRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return req, false
		}
		return req, true
	}

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return req, false
	}
	req.Email = r.PostForm.Get("email")
	req.Password = r.PostForm.Get("password")
	req.RememberMe = truthy(r.PostForm.Get("remember_me"))
	return req, true
}

// truthy accepts checkbox values as well as strconv booleans.
func truthy(v string) bool {
	if v == "on" || v == "yes" {
		return true
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

package httpserver

import (
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sugarscan/sugartrack/internal/auth"
	"github.com/sugarscan/sugartrack/internal/hooks"
	"github.com/sugarscan/sugartrack/internal/httpserver/protocol"
	"github.com/sugarscan/sugartrack/internal/userstore"
)

const (
	msgAccountInvalid = "Account invalid"
	msgUserNotFound   = "User is not found!"
)

type accountEndpoint struct {
	server *Server
}

func newAccountEndpoint(server *Server) protocol.Endpoint {
	return &accountEndpoint{server: server}
}

func (e *accountEndpoint) Name() string { return "account" }

func (e *accountEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodPost, Path: "/register", Handler: http.HandlerFunc(e.server.handleRegister), Access: protocol.AccessPublic},
		{Method: http.MethodPost, Path: "/login", Handler: http.HandlerFunc(e.server.handleLogin), Access: protocol.AccessPublic},
		{Method: http.MethodGet, Path: "/readUser", Handler: http.HandlerFunc(e.server.handleReadUser)},
		{Method: http.MethodPut, Path: "/updateUser", Handler: http.HandlerFunc(e.server.handleUpdateUser)},
	}
}

type credentialsRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Pass     string `json:"pass"`
	Password string `json:"password"`
}

func (c credentialsRequest) password() string {
	if c.Pass != "" {
		return c.Pass
	}
	return c.Password
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	email := userstore.NormalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	password := req.password()
	if name == "" || email == "" || password == "" {
		s.respondFail(w, http.StatusBadRequest, "name, email and password are required")
		return
	}
	if !strings.Contains(email, "@") {
		s.respondFail(w, http.StatusBadRequest, "invalid email address")
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	user, err := s.users.CreateUser(r.Context(), userstore.NewUser{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		SugarLimit:   s.defaultSugarLimit,
	})
	if errors.Is(err, userstore.ErrEmailTaken) {
		s.respondFail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.emit(r.Context(), hooks.EventUserRegistered, user.ID, map[string]any{
		"email":       user.Email,
		"name":        user.Name,
		"sugar_limit": user.SugarLimit,
	})
	s.respondSuccess(w, "User created successfully", nil)
}

type loginData struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	UserData  *userstore.User `json:"userData"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	email := userstore.NormalizeEmail(req.Email)
	password := req.password()
	if email == "" || password == "" {
		s.respondFail(w, http.StatusBadRequest, msgAccountInvalid)
		return
	}

	user, err := s.users.FindByEmail(r.Context(), email)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if user == nil {
		s.respondFail(w, http.StatusBadRequest, msgAccountInvalid)
		return
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		s.respondFail(w, http.StatusBadRequest, msgAccountInvalid)
		return
	}

	token, expiresAt, err := s.gate.IssueToken(user.ID, 0)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondSuccess(w, "login successful", loginData{Token: token, ExpiresAt: expiresAt, UserData: user})
}

func (s *Server) handleReadUser(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	user, err := s.users.GetUser(r.Context(), id.UserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if user == nil {
		s.respondFail(w, http.StatusBadRequest, msgUserNotFound)
		return
	}
	s.respondSuccess(w, "read successful", user)
}

type profileRequest struct {
	Name   *string `json:"name"`
	Age    number  `json:"age"`
	Height number  `json:"height"`
	Weight number  `json:"weight"`
	Limit  number  `json:"limit"`
}

// handleUpdateUser applies the supplied fields over the stored profile.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	user, err := s.users.GetUser(r.Context(), id.UserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if user == nil {
		s.respondFail(w, http.StatusBadRequest, msgUserNotFound)
		return
	}

	update := userstore.ProfileUpdate{
		Name:       user.Name,
		Age:        user.Age,
		Height:     user.Height,
		Weight:     user.Weight,
		SugarLimit: user.SugarLimit,
	}
	if req.Name != nil {
		if name := strings.TrimSpace(*req.Name); name != "" {
			update.Name = name
		}
	}
	for _, f := range []struct {
		field string
		in    number
		dst   *float64
	}{
		{"height", req.Height, &update.Height},
		{"weight", req.Weight, &update.Weight},
		{"limit", req.Limit, &update.SugarLimit},
	} {
		if !f.in.Set {
			continue
		}
		if f.in.Value < 0 || math.IsNaN(f.in.Value) || math.IsInf(f.in.Value, 0) {
			s.respondFail(w, http.StatusBadRequest, f.field+" must be a non-negative number")
			return
		}
		*f.dst = f.in.Value
	}
	if req.Age.Set {
		if req.Age.Value < 0 || req.Age.Value > 150 || req.Age.Value != math.Trunc(req.Age.Value) {
			s.respondFail(w, http.StatusBadRequest, "age must be a whole number between 0 and 150")
			return
		}
		update.Age = int(req.Age.Value)
	}

	updated, err := s.users.UpdateProfile(r.Context(), id.UserID, update)
	if errors.Is(err, userstore.ErrNotFound) {
		s.respondFail(w, http.StatusBadRequest, msgUserNotFound)
		return
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.emit(r.Context(), hooks.EventProfileUpdated, updated.ID, map[string]any{
		"name":        updated.Name,
		"sugar_limit": updated.SugarLimit,
	})
	s.respondSuccess(w, "update successful", updated)
}

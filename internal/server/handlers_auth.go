package server

import (
	"net/http"

	"go.uber.org/zap"

	"researchtools/internal/auth"
	apperrors "researchtools/internal/errors"
	"researchtools/internal/store"
)

func (s *Server) recordLogin(r *http.Request, userID, method string) {
	if s.deps.Logins != nil {
		s.deps.Logins.UserLoggedIn(r.Context(), userID, method)
	}
}

// startSession sets the cookie session. A failure leaves the bearer token
// usable, so it is only logged.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, u *store.User) {
	if err := s.deps.Auth.StartSession(w, r, u); err != nil {
		s.logger.Warn("failed to save session cookie", zap.String("user_id", u.ID), zap.Error(err))
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.deps.Auth.Register(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccessStatus(w, http.StatusCreated, u)
}

// handleLogin implements the OAuth2 password flow with a form body
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, apperrors.NewValidationError("Invalid form body", nil))
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if username == "" || password == "" {
		s.fail(w, r, apperrors.NewValidationError("username and password are required", nil))
		return
	}

	token, err := s.deps.Auth.Login(r.Context(), username, password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.startSession(w, r, token.User)
	s.recordLogin(r, token.User.ID, "password")
	apperrors.SendSuccess(w, token)
}

func (s *Server) handleHashRegister(w http.ResponseWriter, r *http.Request) {
	reg, err := s.deps.Auth.RegisterWithHash(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.startSession(w, r, reg.User)
	apperrors.SendSuccessStatus(w, http.StatusCreated, reg)
}

func (s *Server) handleHashLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AccountHash string `json:"account_hash"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := s.deps.Auth.LoginWithHash(r.Context(), in.AccountHash)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.startSession(w, r, token.User)
	s.recordLogin(r, token.User.ID, "account_hash")
	apperrors.SendSuccess(w, token)
}

func (s *Server) handleHashRotate(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.GetUserFromContext(r.Context())
	reg, err := s.deps.Auth.RotateHash(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apperrors.SendSuccess(w, reg)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.GetUserFromContext(r.Context())
	role := auth.Role(u.Role)
	apperrors.SendSuccess(w, map[string]interface{}{
		"user": u,
		"capabilities": map[string]bool{
			string(auth.CapCreateFrameworks): role.CanCreateFrameworks(),
			string(auth.CapExport):           role.CanExport(),
			string(auth.CapAdmin):            role.CanAdmin(),
		},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Auth.EndSession(w, r); err != nil {
		s.logger.Warn("failed to clear session cookie", zap.Error(err))
	}
	apperrors.SendSuccess(w, map[string]string{"message": "logged out"})
}

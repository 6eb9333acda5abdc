package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"researchtools/internal/store"
)

// Role is a user's authorization level
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleAnalyst    Role = "analyst"
	RoleResearcher Role = "researcher"
	RoleViewer     Role = "viewer"
)

// Capability is a permission derived from a role
type Capability string

const (
	CapCreateFrameworks Capability = "create_frameworks"
	CapExport           Capability = "export"
	CapAdmin            Capability = "admin"
)

// CanCreateFrameworks reports whether the role may create and edit sessions
func (r Role) CanCreateFrameworks() bool {
	return r == RoleAdmin || r == RoleAnalyst || r == RoleResearcher
}

// CanExport reports whether the role may export sessions
func (r Role) CanExport() bool {
	return r == RoleAdmin || r == RoleAnalyst || r == RoleResearcher
}

// CanAdmin reports whether the role may use admin endpoints
func (r Role) CanAdmin() bool {
	return r == RoleAdmin
}

// Has reports whether the role grants c
func (r Role) Has(c Capability) bool {
	switch c {
	case CapCreateFrameworks:
		return r.CanCreateFrameworks()
	case CapExport:
		return r.CanExport()
	case CapAdmin:
		return r.CanAdmin()
	}
	return false
}

// SelfServiceRoles are the roles a user may pick at registration
var SelfServiceRoles = []string{string(RoleAnalyst), string(RoleResearcher), string(RoleViewer)}

// ParseRole validates a role name
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleAdmin, RoleAnalyst, RoleResearcher, RoleViewer:
		return r, true
	}
	return "", false
}

var (
	// ErrInvalidCredentials covers every login failure so callers cannot
	// distinguish unknown users, wrong passwords and bad hashes.
	ErrInvalidCredentials = errors.New("could not validate credentials")
	ErrUserExists         = errors.New("username or email already registered")
	ErrInactiveUser       = errors.New("user account is disabled")
)

// Repository is the user and account-hash storage. *store.DB satisfies it.
type Repository interface {
	CreateUser(ctx context.Context, u *store.User) error
	GetUser(ctx context.Context, id string) (*store.User, error)
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	CreateAccountHash(ctx context.Context, h *store.AccountHash) error
	GetAccountHash(ctx context.Context, digest string) (*store.AccountHash, error)
	MarkAccountHashUsed(ctx context.Context, digest string, at time.Time) error
	RevokeAccountHashes(ctx context.Context, userID string, at time.Time) (int64, error)
	PurgeExpiredAccountHashes(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuthService handles registration, login and token validation
type AuthService struct {
	repo           Repository
	jwtSecret      []byte
	sessionStore   *sessions.CookieStore
	accessTokenTTL time.Duration
	hashDelay      time.Duration
	hashTTL        time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

// RegisterInput is the payload of password registration
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// Token is an issued bearer token
type Token struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int64       `json:"expires_in"`
	User        *store.User `json:"user"`
}

// HashRegistration is returned once when an account hash is issued. The
// plain hash is never stored.
type HashRegistration struct {
	AccountHash string      `json:"account_hash"`
	ExpiresAt   time.Time   `json:"expires_at"`
	Token       *Token      `json:"token,omitempty"`
	User        *store.User `json:"user"`
}

type contextKey string

const (
	userContextKey contextKey = "user"
	sessionName               = "researchtools-session"
)

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"researchtools/internal/config"
	apperrors "researchtools/internal/errors"
	"researchtools/internal/store"
)

const accountHashDigits = 16

// dummyHash is compared against when the user does not exist so that unknown
// usernames cost the same as wrong passwords.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("researchtools-dummy-password"), bcrypt.DefaultCost)

// NewAuthService creates a new authentication service
func NewAuthService(repo Repository, cfg config.AuthConfig, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.AccessTokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &AuthService{
		repo:           repo,
		jwtSecret:      []byte(cfg.JWTSecret),
		sessionStore:   store,
		accessTokenTTL: cfg.AccessTokenTTL,
		hashDelay:      cfg.HashAuthDelay,
		hashTTL:        cfg.AccountHashTTL,
		logger:         logger.Named("auth"),
		now:            time.Now,
	}
}

func invalidField(field, message string) error {
	return apperrors.NewValidationError(message, map[string]interface{}{"field": field})
}

// Register creates a password account
func (as *AuthService) Register(ctx context.Context, in RegisterInput) (*store.User, error) {
	username := strings.TrimSpace(in.Username)
	if len(username) < 3 || len(username) > 50 {
		return nil, invalidField("username", "username must be 3 to 50 characters")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, invalidField("email", "invalid email address")
	}
	if len(in.Password) < 8 {
		return nil, invalidField("password", "password must be at least 8 characters")
	}

	role := RoleAnalyst
	if in.Role != "" {
		r, ok := ParseRole(in.Role)
		if !ok || r == RoleAdmin {
			return nil, apperrors.NewInvalidChoiceError("role", in.Role, SelfServiceRoles)
		}
		role = r
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	u := &store.User{
		ID:             uuid.NewString(),
		Username:       username,
		Email:          strings.ToLower(strings.TrimSpace(in.Email)),
		FullName:       in.FullName,
		HashedPassword: string(hashed),
		Role:           string(role),
		IsActive:       true,
		CreatedAt:      as.now(),
	}
	if err := as.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	as.logger.Info("user registered", zap.String("user_id", u.ID), zap.String("role", u.Role))
	return u, nil
}

// Login checks a username (or email) and password and issues a token
func (as *AuthService) Login(ctx context.Context, username, password string) (*Token, error) {
	u, err := as.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if u.HashedPassword == "" || bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrInactiveUser
	}
	return as.issue(ctx, u)
}

// RegisterWithHash creates an anonymous account identified only by a fresh
// account hash.
func (as *AuthService) RegisterWithHash(ctx context.Context) (*HashRegistration, error) {
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	u := &store.User{
		ID:        uuid.NewString(),
		Username:  "analyst-" + short,
		Email:     "analyst-" + short + "@hash.local",
		Role:      string(RoleResearcher),
		IsActive:  true,
		CreatedAt: as.now(),
	}
	if err := as.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	reg, err := as.issueHash(ctx, u)
	if err != nil {
		return nil, err
	}
	if reg.Token, err = as.issue(ctx, u); err != nil {
		return nil, err
	}
	return reg, nil
}

// LoginWithHash exchanges an account hash for a token. Every failure waits the
// configured delay and returns ErrInvalidCredentials.
func (as *AuthService) LoginWithHash(ctx context.Context, hash string) (*Token, error) {
	fail := func() (*Token, error) {
		sleepCtx(ctx, as.hashDelay)
		return nil, ErrInvalidCredentials
	}

	hash = strings.TrimSpace(hash)
	if !validAccountHash(hash) {
		return fail()
	}

	digest := digestHash(hash)
	h, err := as.repo.GetAccountHash(ctx, digest)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			as.logger.Error("account hash lookup failed", zap.Error(err))
		}
		return fail()
	}
	now := as.now()
	if !h.Usable(now) {
		return fail()
	}
	u, err := as.repo.GetUser(ctx, h.UserID)
	if err != nil || !u.IsActive {
		return fail()
	}

	if err := as.repo.MarkAccountHashUsed(ctx, digest, now); err != nil {
		as.logger.Warn("marking account hash used", zap.Error(err))
	}
	return as.issue(ctx, u)
}

// RotateHash revokes the user's existing hashes and issues a new one.
func (as *AuthService) RotateHash(ctx context.Context, userID string) (*HashRegistration, error) {
	u, err := as.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	revoked, err := as.repo.RevokeAccountHashes(ctx, userID, as.now())
	if err != nil {
		return nil, err
	}
	as.logger.Info("account hashes revoked", zap.String("user_id", userID), zap.Int64("count", revoked))
	return as.issueHash(ctx, u)
}

// PurgeExpiredHashes deletes hashes that expired or were revoked before now.
func (as *AuthService) PurgeExpiredHashes(ctx context.Context) (int64, error) {
	return as.repo.PurgeExpiredAccountHashes(ctx, as.now())
}

func (as *AuthService) issueHash(ctx context.Context, u *store.User) (*HashRegistration, error) {
	hash, err := generateAccountHash()
	if err != nil {
		return nil, err
	}
	now := as.now()
	h := &store.AccountHash{
		Digest:    digestHash(hash),
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(as.hashTTL),
	}
	if err := as.repo.CreateAccountHash(ctx, h); err != nil {
		return nil, err
	}
	return &HashRegistration{AccountHash: hash, ExpiresAt: h.ExpiresAt, User: u}, nil
}

func (as *AuthService) issue(ctx context.Context, u *store.User) (*Token, error) {
	token, err := as.GenerateJWT(u)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}
	now := as.now()
	if err := as.repo.TouchLastLogin(ctx, u.ID, now); err != nil {
		as.logger.Warn("updating last login", zap.String("user_id", u.ID), zap.Error(err))
	} else {
		u.LastLogin = &now
	}
	return &Token{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(as.accessTokenTTL.Seconds()),
		User:        u,
	}, nil
}

// GenerateJWT generates a JWT token for the user
func (as *AuthService) GenerateJWT(u *store.User) (string, error) {
	now := as.now()
	claims := jwt.MapClaims{
		"sub":      u.ID,
		"username": u.Username,
		"role":     u.Role,
		"exp":      now.Add(as.accessTokenTTL).Unix(),
		"iat":      now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(as.jwtSecret)
}

// ValidateJWT validates a token and returns the user ID it was issued to
func (as *AuthService) ValidateJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return as.jwtSecret, nil
	}, jwt.WithTimeFunc(as.now))
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("sub claim not found or not a string")
	}
	return userID, nil
}

// StartSession records the user in the cookie session
func (as *AuthService) StartSession(w http.ResponseWriter, r *http.Request, u *store.User) error {
	session, _ := as.sessionStore.Get(r, sessionName)
	session.Values["user_id"] = u.ID
	return session.Save(r, w)
}

// EndSession clears the cookie session
func (as *AuthService) EndSession(w http.ResponseWriter, r *http.Request) error {
	session, _ := as.sessionStore.Get(r, sessionName)
	session.Values = make(map[interface{}]interface{})
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// validAccountHash reports whether s is exactly 16 ASCII digits
func validAccountHash(s string) bool {
	if len(s) != accountHashDigits {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func generateAccountHash() (string, error) {
	var b strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < accountHashDigits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generating account hash: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

func digestHash(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:])
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

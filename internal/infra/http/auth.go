package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const adminRole = "admin"

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

// AdminClaims is the payload of an operator bearer token.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthManager mints and verifies HS256 operator tokens.
type AuthManager struct {
	secret []byte
	now    func() time.Time
}

func NewAuthManager(secret string) *AuthManager {
	return &AuthManager{secret: []byte(secret), now: time.Now}
}

// Enabled reports whether a signing secret is configured. Admin routes
// refuse every request otherwise.
func (a *AuthManager) Enabled() bool { return len(a.secret) > 0 }

// Mint signs a token for subject valid for ttl. replyctl uses it to hand
// out operator tokens.
func (a *AuthManager) Mint(subject string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", errors.New("admin jwt secret is not configured")
	}
	now := a.now()
	claims := AdminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   subject,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseFromRequest reads "Authorization: Bearer <jwt>".
func (a *AuthManager) ParseFromRequest(r *http.Request) (*AdminClaims, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, errMissingToken
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthManager) parse(tok string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !tkn.Valid {
		return nil, errInvalidToken
	}
	if claims.Role != adminRole {
		return nil, errInvalidToken
	}
	return claims, nil
}

// Middleware rejects requests without a valid operator token.
func (a *AuthManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			writeError(w, http.StatusForbidden, "admin api disabled")
			return
		}
		if _, err := a.ParseFromRequest(r); err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
